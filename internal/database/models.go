package database

import "time"

type Avatar struct {
	Id          string
	SessionId   string
	OwnerId     *int
	DisplayName string
	X           float64
	Y           float64
	Color       string
	LastActive  time.Time
	CreatedAt   time.Time
}

type Message struct {
	Id        string
	AvatarId  string
	Text      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type User struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

type CreateAvatarParams struct {
	SessionId   string
	OwnerId     *int
	DisplayName string
	X           float64
	Y           float64
	Color       string
	Now         time.Time
}

type CreateMessageParams struct {
	AvatarId  string
	Text      string
	CreatedAt time.Time
	ExpiresAt time.Time
}
