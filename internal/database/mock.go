package database

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockCrabRepository struct {
	mock.Mock
}

func (m *MockCrabRepository) Ping(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockCrabRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockCrabRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockCrabRepository) GetAccountById(ctx context.Context, accountId int) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockCrabRepository) GetAccountByEmail(ctx context.Context, email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockCrabRepository) GetAvatarBySessionId(ctx context.Context, sessionId string) (Avatar, error) {
	args := m.Called(sessionId)
	return args.Get(0).(Avatar), args.Error(1)
}
func (m *MockCrabRepository) CreateAvatarIfAbsent(ctx context.Context, params CreateAvatarParams) (Avatar, bool, error) {
	args := m.Called(params)
	return args.Get(0).(Avatar), args.Bool(1), args.Error(2)
}
func (m *MockCrabRepository) TouchAvatar(ctx context.Context, avatarId string, lastActive time.Time, ownerId *int) (Avatar, error) {
	args := m.Called(avatarId, lastActive, ownerId)
	return args.Get(0).(Avatar), args.Error(1)
}
func (m *MockCrabRepository) UpdateAvatarPosition(ctx context.Context, avatarId string, x, y float64, lastActive time.Time) error {
	args := m.Called(avatarId, x, y, lastActive)
	return args.Error(0)
}
func (m *MockCrabRepository) ListAvatarsActiveSince(ctx context.Context, since time.Time) ([]Avatar, error) {
	args := m.Called(since)
	if avatars, ok := args.Get(0).([]Avatar); ok {
		return avatars, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockCrabRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockCrabRepository) ListMessagesExpiringAfter(ctx context.Context, t time.Time) ([]Message, error) {
	args := m.Called(t)
	if messages, ok := args.Get(0).([]Message); ok {
		return messages, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockCrabRepository) DeleteMessagesExpiredBy(ctx context.Context, t time.Time) (int64, error) {
	args := m.Called(t)
	return args.Get(0).(int64), args.Error(1)
}
