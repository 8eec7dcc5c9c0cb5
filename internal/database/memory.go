package database

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemCrabRepository keeps every table in process memory. Rows are returned
// in insertion order.
type MemCrabRepository struct {
	mu sync.RWMutex

	accounts      []User
	accountSeq    int
	avatars       []Avatar
	avatarIdx     map[string]int
	avatarSession map[string]string
	messages      []Message
}

func NewMemCrabRepository() *MemCrabRepository {
	return &MemCrabRepository{
		avatarIdx:     make(map[string]int),
		avatarSession: make(map[string]string),
	}
}

func (m *MemCrabRepository) Ping(context.Context) error { return nil }

func (m *MemCrabRepository) Close() error { return nil }

func copyAvatar(a Avatar) Avatar {
	if a.OwnerId != nil {
		id := *a.OwnerId
		a.OwnerId = &id
	}
	return a
}

func (m *MemCrabRepository) CreateAccount(_ context.Context, params CreateAccountParams) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.accounts {
		if u.EmailAddress == params.EmailAddress {
			return User{}, ErrDuplicate
		}
	}

	m.accountSeq++
	now := time.Now().UTC()
	u := User{
		Id:           m.accountSeq,
		Username:     params.Username,
		EmailAddress: params.EmailAddress,
		PasswordHash: params.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.accounts = append(m.accounts, u)

	return u, nil
}

func (m *MemCrabRepository) GetAccountById(_ context.Context, id int) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.accounts {
		if u.Id == id {
			return u, nil
		}
	}

	return User{}, ErrNotFound
}

func (m *MemCrabRepository) GetAccountByEmail(_ context.Context, email string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.accounts {
		if u.EmailAddress == email {
			return u, nil
		}
	}

	return User{}, ErrNotFound
}

func (m *MemCrabRepository) GetAvatarBySessionId(_ context.Context, sessionId string) (Avatar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.avatarSession[sessionId]
	if !ok {
		return Avatar{}, ErrNotFound
	}

	return copyAvatar(m.avatars[m.avatarIdx[id]]), nil
}

func (m *MemCrabRepository) CreateAvatarIfAbsent(_ context.Context, params CreateAvatarParams) (Avatar, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.avatarSession[params.SessionId]; ok {
		return copyAvatar(m.avatars[m.avatarIdx[id]]), false, nil
	}

	a := copyAvatar(Avatar{
		Id:          uuid.NewString(),
		SessionId:   params.SessionId,
		OwnerId:     params.OwnerId,
		DisplayName: params.DisplayName,
		X:           params.X,
		Y:           params.Y,
		Color:       params.Color,
		LastActive:  params.Now,
		CreatedAt:   params.Now,
	})

	m.avatarIdx[a.Id] = len(m.avatars)
	m.avatarSession[a.SessionId] = a.Id
	m.avatars = append(m.avatars, a)

	return copyAvatar(a), true, nil
}

func (m *MemCrabRepository) TouchAvatar(_ context.Context, avatarId string, lastActive time.Time, ownerId *int) (Avatar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.avatarIdx[avatarId]
	if !ok {
		return Avatar{}, ErrNotFound
	}

	m.avatars[i].LastActive = lastActive
	if ownerId != nil {
		id := *ownerId
		m.avatars[i].OwnerId = &id
	}

	return copyAvatar(m.avatars[i]), nil
}

func (m *MemCrabRepository) UpdateAvatarPosition(_ context.Context, avatarId string, x, y float64, lastActive time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.avatarIdx[avatarId]
	if !ok {
		return ErrNotFound
	}

	m.avatars[i].X = x
	m.avatars[i].Y = y
	m.avatars[i].LastActive = lastActive

	return nil
}

func (m *MemCrabRepository) ListAvatarsActiveSince(_ context.Context, since time.Time) ([]Avatar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	avatars := make([]Avatar, 0)
	for _, a := range m.avatars {
		if a.LastActive.After(since) {
			avatars = append(avatars, copyAvatar(a))
		}
	}

	return avatars, nil
}

func (m *MemCrabRepository) CreateMessage(_ context.Context, params CreateMessageParams) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.avatarIdx[params.AvatarId]; !ok {
		return Message{}, ErrNotFound
	}

	msg := Message{
		Id:        uuid.NewString(),
		AvatarId:  params.AvatarId,
		Text:      params.Text,
		CreatedAt: params.CreatedAt,
		ExpiresAt: params.ExpiresAt,
	}
	m.messages = append(m.messages, msg)

	return msg, nil
}

func (m *MemCrabRepository) ListMessagesExpiringAfter(_ context.Context, t time.Time) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	messages := make([]Message, 0)
	for _, msg := range m.messages {
		if msg.ExpiresAt.After(t) {
			messages = append(messages, msg)
		}
	}

	return messages, nil
}

func (m *MemCrabRepository) DeleteMessagesExpiredBy(_ context.Context, t time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.messages[:0]
	var deleted int64
	for _, msg := range m.messages {
		if msg.ExpiresAt.After(t) {
			kept = append(kept, msg)
		} else {
			deleted++
		}
	}
	m.messages = kept

	return deleted, nil
}
