package types

import (
	"time"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Avatar struct {
	Id          string    `json:"id"`
	SessionId   string    `json:"-"`
	OwnerId     *int      `json:"owner_id,omitempty"`
	DisplayName string    `json:"display_name"`
	X           float64   `json:"x"`
	Y           float64   `json:"y"`
	Color       string    `json:"color"`
	LastActive  time.Time `json:"last_active"`
}

type Message struct {
	Id        string    `json:"id"`
	AvatarId  string    `json:"avatar_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
