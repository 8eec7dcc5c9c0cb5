// Package presence resolves client sessions to avatars, moves them and
// reports who is online.
package presence

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/npezzotti/go-crabs/internal/clock"
	"github.com/npezzotti/go-crabs/internal/database"
	"github.com/npezzotti/go-crabs/internal/types"
	"go.uber.org/zap"
)

// OnlineWindow is how recently an avatar must have been active to be listed.
const OnlineWindow = 5 * time.Minute

var (
	ErrInvalidSession  = errors.New("session id cannot be empty")
	ErrInvalidPosition = errors.New("position must be finite")
)

type Manager struct {
	db    database.CrabRepository
	clock clock.Clock
	log   *zap.SugaredLogger

	// rnd is not safe for concurrent use
	rndLock sync.Mutex
	rnd     *rand.Rand
}

func NewManager(db database.CrabRepository, clk clock.Clock, rnd *rand.Rand, logger *zap.SugaredLogger) *Manager {
	return &Manager{
		db:    db,
		clock: clk,
		log:   logger,
		rnd:   rnd,
	}
}

func toAvatar(a database.Avatar) types.Avatar {
	return types.Avatar{
		Id:          a.Id,
		SessionId:   a.SessionId,
		OwnerId:     a.OwnerId,
		DisplayName: a.DisplayName,
		X:           a.X,
		Y:           a.Y,
		Color:       a.Color,
		LastActive:  a.LastActive,
	}
}

func (m *Manager) newAvatarParams(sessionId string, ownerId *int, now time.Time) database.CreateAvatarParams {
	m.rndLock.Lock()
	defer m.rndLock.Unlock()

	x, y := SpawnPosition(m.rnd)
	return database.CreateAvatarParams{
		SessionId:   sessionId,
		OwnerId:     ownerId,
		DisplayName: GenerateHandle(m.rnd),
		X:           x,
		Y:           y,
		Color:       PickColor(m.rnd),
		Now:         now,
	}
}

// GetOrCreate returns the avatar bound to sessionId, creating it on first
// contact. An existing avatar has its activity refreshed and, when ownerId is
// set, its owner overwritten. The second return value reports creation.
func (m *Manager) GetOrCreate(ctx context.Context, sessionId string, ownerId *int) (types.Avatar, bool, error) {
	if sessionId == "" {
		return types.Avatar{}, false, ErrInvalidSession
	}

	now := m.clock.Now()
	existing, err := m.db.GetAvatarBySessionId(ctx, sessionId)
	switch {
	case err == nil:
		return m.touch(ctx, existing.Id, now, ownerId)
	case !errors.Is(err, database.ErrNotFound):
		return types.Avatar{}, false, fmt.Errorf("get avatar: %w", err)
	}

	avatar, created, err := m.db.CreateAvatarIfAbsent(ctx, m.newAvatarParams(sessionId, ownerId, now))
	if err != nil {
		return types.Avatar{}, false, fmt.Errorf("create avatar: %w", err)
	}

	if !created {
		m.log.Debugw("lost avatar creation race", "session_id", sessionId)
		return m.touch(ctx, avatar.Id, now, ownerId)
	}

	m.log.Infow("created avatar", "avatar_id", avatar.Id, "display_name", avatar.DisplayName)
	return toAvatar(avatar), true, nil
}

func (m *Manager) touch(ctx context.Context, avatarId string, now time.Time, ownerId *int) (types.Avatar, bool, error) {
	a, err := m.db.TouchAvatar(ctx, avatarId, now, ownerId)
	if err != nil {
		return types.Avatar{}, false, fmt.Errorf("touch avatar: %w", err)
	}

	return toAvatar(a), false, nil
}

// Move sets the avatar's position. A session without an avatar is ignored.
func (m *Manager) Move(ctx context.Context, sessionId string, x, y float64) error {
	if sessionId == "" {
		return ErrInvalidSession
	}
	if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
		return ErrInvalidPosition
	}

	avatar, err := m.db.GetAvatarBySessionId(ctx, sessionId)
	if errors.Is(err, database.ErrNotFound) {
		m.log.Debugw("move for unknown session ignored", "session_id", sessionId)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get avatar: %w", err)
	}

	err = m.db.UpdateAvatarPosition(ctx, avatar.Id, x, y, m.clock.Now())
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("update position: %w", err)
	}

	return nil
}

// ListOnline returns every avatar active within OnlineWindow.
func (m *Manager) ListOnline(ctx context.Context) ([]types.Avatar, error) {
	rows, err := m.db.ListAvatarsActiveSince(ctx, m.clock.Now().Add(-OnlineWindow))
	if err != nil {
		return nil, fmt.Errorf("list avatars: %w", err)
	}

	avatars := make([]types.Avatar, 0, len(rows))
	for _, row := range rows {
		avatars = append(avatars, toAvatar(row))
	}

	return avatars, nil
}
