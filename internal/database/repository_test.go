package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)

func intPtr(i int) *int { return &i }

func testRepository(t *testing.T, newRepo func(t *testing.T) CrabRepository) {
	ctx := context.Background()

	t.Run("accounts", func(t *testing.T) {
		repo := newRepo(t)

		u, err := repo.CreateAccount(ctx, CreateAccountParams{
			Username:     "crab",
			EmailAddress: "crab@example.com",
			PasswordHash: "hash",
		})
		require.NoError(t, err)
		assert.NotZero(t, u.Id, "expected account id to be assigned")

		_, err = repo.CreateAccount(ctx, CreateAccountParams{
			Username:     "other",
			EmailAddress: "crab@example.com",
			PasswordHash: "hash",
		})
		assert.ErrorIs(t, err, ErrDuplicate, "expected duplicate email to be rejected")

		byId, err := repo.GetAccountById(ctx, u.Id)
		require.NoError(t, err)
		assert.Equal(t, "crab", byId.Username)

		byEmail, err := repo.GetAccountByEmail(ctx, "crab@example.com")
		require.NoError(t, err)
		assert.Equal(t, u.Id, byEmail.Id)
		assert.Equal(t, "hash", byEmail.PasswordHash)

		_, err = repo.GetAccountById(ctx, u.Id+100)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = repo.GetAccountByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("create avatar if absent", func(t *testing.T) {
		repo := newRepo(t)
		params := CreateAvatarParams{
			SessionId:   "session-1",
			DisplayName: "SandyClaw7",
			X:           250,
			Y:           300,
			Color:       "#FF6B6B",
			Now:         baseTime,
		}

		first, created, err := repo.CreateAvatarIfAbsent(ctx, params)
		require.NoError(t, err)
		assert.True(t, created, "expected first insert to create the avatar")
		assert.NotEmpty(t, first.Id)
		assert.Nil(t, first.OwnerId)

		params.DisplayName = "SaltyNomad3"
		params.Color = "#4D96FF"
		second, created, err := repo.CreateAvatarIfAbsent(ctx, params)
		require.NoError(t, err)
		assert.False(t, created, "expected second insert to return the existing avatar")
		assert.Equal(t, first.Id, second.Id)
		assert.Equal(t, "SandyClaw7", second.DisplayName)
		assert.Equal(t, "#FF6B6B", second.Color)

		found, err := repo.GetAvatarBySessionId(ctx, "session-1")
		require.NoError(t, err)
		assert.Equal(t, first.Id, found.Id)
		assert.Equal(t, 250.0, found.X)
		assert.Equal(t, 300.0, found.Y)
		assert.True(t, baseTime.Equal(found.LastActive), "expected last active to be stored")

		_, err = repo.GetAvatarBySessionId(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("touch avatar", func(t *testing.T) {
		repo := newRepo(t)
		a, _, err := repo.CreateAvatarIfAbsent(ctx, CreateAvatarParams{SessionId: "s", Now: baseTime})
		require.NoError(t, err)

		later := baseTime.Add(time.Minute)
		touched, err := repo.TouchAvatar(ctx, a.Id, later, intPtr(7))
		require.NoError(t, err)
		assert.True(t, later.Equal(touched.LastActive))
		require.NotNil(t, touched.OwnerId)
		assert.Equal(t, 7, *touched.OwnerId)

		touched, err = repo.TouchAvatar(ctx, a.Id, later.Add(time.Minute), nil)
		require.NoError(t, err)
		require.NotNil(t, touched.OwnerId, "expected owner to be kept when none is given")
		assert.Equal(t, 7, *touched.OwnerId)

		_, err = repo.TouchAvatar(ctx, "missing", later, nil)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = repo.TouchAvatar(ctx, uuid.NewString(), later, nil)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("update avatar position", func(t *testing.T) {
		repo := newRepo(t)
		a, _, err := repo.CreateAvatarIfAbsent(ctx, CreateAvatarParams{SessionId: "s", X: 300, Y: 300, Now: baseTime})
		require.NoError(t, err)

		later := baseTime.Add(time.Second)
		require.NoError(t, repo.UpdateAvatarPosition(ctx, a.Id, 10, 20, later))

		found, err := repo.GetAvatarBySessionId(ctx, "s")
		require.NoError(t, err)
		assert.Equal(t, 10.0, found.X)
		assert.Equal(t, 20.0, found.Y)
		assert.True(t, later.Equal(found.LastActive))

		err = repo.UpdateAvatarPosition(ctx, "missing", 1, 2, later)
		assert.ErrorIs(t, err, ErrNotFound)
		err = repo.UpdateAvatarPosition(ctx, uuid.NewString(), 1, 2, later)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list avatars active since", func(t *testing.T) {
		repo := newRepo(t)
		_, _, err := repo.CreateAvatarIfAbsent(ctx, CreateAvatarParams{SessionId: "old", Now: baseTime})
		require.NoError(t, err)
		_, _, err = repo.CreateAvatarIfAbsent(ctx, CreateAvatarParams{SessionId: "edge", Now: baseTime.Add(time.Minute)})
		require.NoError(t, err)
		_, _, err = repo.CreateAvatarIfAbsent(ctx, CreateAvatarParams{SessionId: "new", Now: baseTime.Add(2 * time.Minute)})
		require.NoError(t, err)

		avatars, err := repo.ListAvatarsActiveSince(ctx, baseTime.Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, avatars, 1, "expected only avatars strictly after the cutoff")
		assert.Equal(t, "new", avatars[0].SessionId)
	})

	t.Run("messages", func(t *testing.T) {
		repo := newRepo(t)
		a, _, err := repo.CreateAvatarIfAbsent(ctx, CreateAvatarParams{SessionId: "s", Now: baseTime})
		require.NoError(t, err)

		_, err = repo.CreateMessage(ctx, CreateMessageParams{
			AvatarId:  "missing",
			Text:      "hi",
			CreatedAt: baseTime,
			ExpiresAt: baseTime.Add(15 * time.Second),
		})
		assert.ErrorIs(t, err, ErrNotFound, "expected message for unknown avatar to fail")
		_, err = repo.CreateMessage(ctx, CreateMessageParams{
			AvatarId:  uuid.NewString(),
			Text:      "hi",
			CreatedAt: baseTime,
			ExpiresAt: baseTime.Add(15 * time.Second),
		})
		assert.ErrorIs(t, err, ErrNotFound, "expected message for a well-formed unknown id to fail")

		for i, text := range []string{"first", "second", "third"} {
			created := baseTime.Add(time.Duration(i) * 10 * time.Second)
			msg, err := repo.CreateMessage(ctx, CreateMessageParams{
				AvatarId:  a.Id,
				Text:      text,
				CreatedAt: created,
				ExpiresAt: created.Add(15 * time.Second),
			})
			require.NoError(t, err)
			assert.NotEmpty(t, msg.Id)
			assert.Equal(t, a.Id, msg.AvatarId)
		}

		// first expires at +15s, second at +25s, third at +35s
		live, err := repo.ListMessagesExpiringAfter(ctx, baseTime.Add(15*time.Second))
		require.NoError(t, err)
		require.Len(t, live, 2)
		assert.Equal(t, "second", live[0].Text)
		assert.Equal(t, "third", live[1].Text)

		deleted, err := repo.DeleteMessagesExpiredBy(ctx, baseTime.Add(25*time.Second))
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted, "expected messages expiring at or before the cutoff to be removed")

		deleted, err = repo.DeleteMessagesExpiredBy(ctx, baseTime.Add(25*time.Second))
		require.NoError(t, err)
		assert.Zero(t, deleted, "expected a repeated sweep to remove nothing")

		live, err = repo.ListMessagesExpiringAfter(ctx, baseTime)
		require.NoError(t, err)
		require.Len(t, live, 1)
		assert.Equal(t, "third", live[0].Text)
	})
}
