// Package messaging posts short-lived chat bubbles and removes them once they
// expire.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/npezzotti/go-crabs/internal/clock"
	"github.com/npezzotti/go-crabs/internal/database"
	"github.com/npezzotti/go-crabs/internal/types"
	"go.uber.org/zap"
)

const (
	MessageTTL    = 15 * time.Second
	MaxTextLength = 200
)

// ErrNotFound is returned when posting for a session that has no avatar.
var ErrNotFound = fmt.Errorf("avatar %w", database.ErrNotFound)

type Manager struct {
	db    database.CrabRepository
	clock clock.Clock
	log   *zap.SugaredLogger
}

func NewManager(db database.CrabRepository, clk clock.Clock, logger *zap.SugaredLogger) *Manager {
	return &Manager{
		db:    db,
		clock: clk,
		log:   logger,
	}
}

func toMessage(m database.Message) types.Message {
	return types.Message{
		Id:        m.Id,
		AvatarId:  m.AvatarId,
		Text:      m.Text,
		CreatedAt: m.CreatedAt,
		ExpiresAt: m.ExpiresAt,
	}
}

// Truncate returns the first MaxTextLength characters of text.
func Truncate(text string) string {
	n := 0
	for i := range text {
		if n == MaxTextLength {
			return text[:i]
		}
		n++
	}
	return text
}

// Post attaches a message to the session's avatar and counts as activity for
// that avatar. Earlier live messages are left in place.
func (m *Manager) Post(ctx context.Context, sessionId, text string) (types.Message, error) {
	avatar, err := m.db.GetAvatarBySessionId(ctx, sessionId)
	if errors.Is(err, database.ErrNotFound) {
		return types.Message{}, ErrNotFound
	}
	if err != nil {
		return types.Message{}, fmt.Errorf("get avatar: %w", err)
	}

	now := m.clock.Now()
	msg, err := m.db.CreateMessage(ctx, database.CreateMessageParams{
		AvatarId:  avatar.Id,
		Text:      Truncate(text),
		CreatedAt: now,
		ExpiresAt: now.Add(MessageTTL),
	})
	if errors.Is(err, database.ErrNotFound) {
		return types.Message{}, ErrNotFound
	}
	if err != nil {
		return types.Message{}, fmt.Errorf("create message: %w", err)
	}

	if _, err := m.db.TouchAvatar(ctx, avatar.Id, now, nil); err != nil {
		return types.Message{}, fmt.Errorf("touch avatar: %w", err)
	}

	m.log.Debugw("posted message", "message_id", msg.Id, "avatar_id", avatar.Id)
	return toMessage(msg), nil
}

// ListLive returns every message that has not expired yet.
func (m *Manager) ListLive(ctx context.Context) ([]types.Message, error) {
	rows, err := m.db.ListMessagesExpiringAfter(ctx, m.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	messages := make([]types.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, toMessage(row))
	}

	return messages, nil
}

// SweepExpired deletes every message whose expiry is at or before now and
// returns how many were removed.
func (m *Manager) SweepExpired(ctx context.Context) (int64, error) {
	n, err := m.db.DeleteMessagesExpiredBy(ctx, m.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("sweep messages: %w", err)
	}

	if n > 0 {
		m.log.Debugw("swept expired messages", "count", n)
	}
	return n, nil
}
