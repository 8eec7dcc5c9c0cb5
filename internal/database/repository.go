package database

import (
	"context"
	"time"
)

type CrabRepository interface {
	Ping(ctx context.Context) error
	Close() error

	CreateAccount(ctx context.Context, params CreateAccountParams) (User, error)
	GetAccountById(ctx context.Context, accountId int) (User, error)
	GetAccountByEmail(ctx context.Context, email string) (User, error)

	GetAvatarBySessionId(ctx context.Context, sessionId string) (Avatar, error)
	// CreateAvatarIfAbsent inserts a new avatar unless one already exists for
	// params.SessionId. It returns the stored row and whether it was created.
	CreateAvatarIfAbsent(ctx context.Context, params CreateAvatarParams) (Avatar, bool, error)
	// TouchAvatar sets last_active and, when ownerId is non-nil, owner_id.
	TouchAvatar(ctx context.Context, avatarId string, lastActive time.Time, ownerId *int) (Avatar, error)
	UpdateAvatarPosition(ctx context.Context, avatarId string, x, y float64, lastActive time.Time) error
	ListAvatarsActiveSince(ctx context.Context, since time.Time) ([]Avatar, error)

	CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error)
	ListMessagesExpiringAfter(ctx context.Context, t time.Time) ([]Message, error)
	DeleteMessagesExpiredBy(ctx context.Context, t time.Time) (int64, error)
}
