package presence

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/npezzotti/go-crabs/internal/clock"
	"github.com/npezzotti/go-crabs/internal/database"
	"github.com/npezzotti/go-crabs/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *database.MemCrabRepository, *clock.Fake) {
	db := database.NewMemCrabRepository()
	clk := clock.NewFake(testutil.Epoch)
	m := NewManager(db, clk, rand.New(rand.NewPCG(1, 1)), testutil.TestLogger(t))
	return m, db, clk
}

func intPtr(i int) *int { return &i }

func TestGetOrCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("idempotent for a session", func(t *testing.T) {
		m, _, clk := newTestManager(t)

		first, created, err := m.GetOrCreate(ctx, "A", nil)
		require.NoError(t, err)
		assert.True(t, created)

		clk.Advance(time.Minute)
		second, created, err := m.GetOrCreate(ctx, "A", nil)
		require.NoError(t, err)
		assert.False(t, created)

		assert.Equal(t, first.Id, second.Id)
		assert.Equal(t, first.DisplayName, second.DisplayName)
		assert.Equal(t, first.Color, second.Color)
		assert.Equal(t, first.X, second.X)
		assert.Equal(t, first.Y, second.Y)
		assert.Equal(t, testutil.Epoch.Add(time.Minute), second.LastActive, "expected last active to be refreshed")
	})

	t.Run("spawns inside the spawn area", func(t *testing.T) {
		m, _, _ := newTestManager(t)
		for i := range 200 {
			a, _, err := m.GetOrCreate(ctx, fmt.Sprintf("session-%d", i), nil)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, a.X, 200.0)
			assert.Less(t, a.X, 800.0)
			assert.GreaterOrEqual(t, a.Y, 200.0)
			assert.Less(t, a.Y, 600.0)
		}
	})

	t.Run("owner handling", func(t *testing.T) {
		m, _, _ := newTestManager(t)

		a, _, err := m.GetOrCreate(ctx, "A", intPtr(1))
		require.NoError(t, err)
		require.NotNil(t, a.OwnerId)
		assert.Equal(t, 1, *a.OwnerId)

		a, _, err = m.GetOrCreate(ctx, "A", nil)
		require.NoError(t, err)
		require.NotNil(t, a.OwnerId, "expected unauthenticated call to keep the owner")
		assert.Equal(t, 1, *a.OwnerId)

		a, _, err = m.GetOrCreate(ctx, "A", intPtr(2))
		require.NoError(t, err)
		require.NotNil(t, a.OwnerId)
		assert.Equal(t, 2, *a.OwnerId, "expected authenticated call to overwrite the owner")
	})

	t.Run("empty session", func(t *testing.T) {
		m, _, _ := newTestManager(t)
		_, _, err := m.GetOrCreate(ctx, "", nil)
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("concurrent first contact creates one avatar", func(t *testing.T) {
		m, db, clk := newTestManager(t)

		var wg sync.WaitGroup
		ids := make([]string, 20)
		for i := range ids {
			wg.Add(1)
			go func() {
				defer wg.Done()
				a, _, err := m.GetOrCreate(ctx, "racy", nil)
				assert.NoError(t, err)
				ids[i] = a.Id
			}()
		}
		wg.Wait()

		for _, id := range ids {
			assert.Equal(t, ids[0], id, "expected every caller to see the same avatar")
		}

		avatars, err := db.ListAvatarsActiveSince(ctx, clk.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.Len(t, avatars, 1)
	})
}

func TestGetOrCreate_lostRace(t *testing.T) {
	db := &database.MockCrabRepository{}
	defer db.AssertExpectations(t)

	clk := clock.NewFake(testutil.Epoch)
	m := NewManager(db, clk, rand.New(rand.NewPCG(1, 1)), testutil.TestLogger(t))

	winner := database.Avatar{Id: "winner", SessionId: "A", DisplayName: "ReefNomad1", Color: "#FF6B6B"}
	touched := winner
	touched.LastActive = clk.Now()

	db.On("GetAvatarBySessionId", "A").Return(database.Avatar{}, database.ErrNotFound).Once()
	db.On("CreateAvatarIfAbsent", mock.AnythingOfType("database.CreateAvatarParams")).Return(winner, false, nil).Once()
	db.On("TouchAvatar", "winner", clk.Now(), (*int)(nil)).Return(touched, nil).Once()

	a, created, err := m.GetOrCreate(context.Background(), "A", nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "winner", a.Id)
	assert.Equal(t, clk.Now(), a.LastActive)
}

func TestGetOrCreate_storeError(t *testing.T) {
	db := &database.MockCrabRepository{}
	defer db.AssertExpectations(t)

	m := NewManager(db, clock.NewFake(testutil.Epoch), rand.New(rand.NewPCG(1, 1)), testutil.TestLogger(t))
	dbErr := errors.New("db error")
	db.On("GetAvatarBySessionId", "A").Return(database.Avatar{}, dbErr).Once()

	_, _, err := m.GetOrCreate(context.Background(), "A", nil)
	assert.ErrorIs(t, err, dbErr)
}

func TestMove(t *testing.T) {
	ctx := context.Background()

	t.Run("moves an existing avatar", func(t *testing.T) {
		m, db, clk := newTestManager(t)
		_, _, err := m.GetOrCreate(ctx, "A", nil)
		require.NoError(t, err)

		clk.Advance(time.Second)
		require.NoError(t, m.Move(ctx, "A", 10, 20))

		a, err := db.GetAvatarBySessionId(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, 10.0, a.X)
		assert.Equal(t, 20.0, a.Y)
		assert.Equal(t, clk.Now(), a.LastActive)
	})

	t.Run("unknown session is a no-op", func(t *testing.T) {
		m, db, clk := newTestManager(t)
		require.NoError(t, m.Move(ctx, "ghost", 10, 20))

		_, err := db.GetAvatarBySessionId(ctx, "ghost")
		assert.ErrorIs(t, err, database.ErrNotFound, "expected no avatar to be created")

		avatars, err := db.ListAvatarsActiveSince(ctx, clk.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.Empty(t, avatars)
	})

	t.Run("rejects non-finite coordinates", func(t *testing.T) {
		m, _, _ := newTestManager(t)
		_, _, err := m.GetOrCreate(ctx, "A", nil)
		require.NoError(t, err)

		tcases := []struct {
			name string
			x, y float64
		}{
			{name: "nan x", x: math.NaN(), y: 1},
			{name: "inf y", x: 1, y: math.Inf(1)},
			{name: "negative inf x", x: math.Inf(-1), y: 1},
		}
		for _, tc := range tcases {
			t.Run(tc.name, func(t *testing.T) {
				assert.ErrorIs(t, m.Move(ctx, "A", tc.x, tc.y), ErrInvalidPosition)
			})
		}
	})

	t.Run("accepts coordinates outside the spawn area", func(t *testing.T) {
		m, db, _ := newTestManager(t)
		_, _, err := m.GetOrCreate(ctx, "A", nil)
		require.NoError(t, err)

		require.NoError(t, m.Move(ctx, "A", -50, 5000))
		a, err := db.GetAvatarBySessionId(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, -50.0, a.X)
		assert.Equal(t, 5000.0, a.Y)
	})
}

func TestListOnline(t *testing.T) {
	ctx := context.Background()
	m, _, clk := newTestManager(t)

	_, _, err := m.GetOrCreate(ctx, "idle", nil)
	require.NoError(t, err)

	clk.Advance(4 * time.Minute)
	_, _, err = m.GetOrCreate(ctx, "active", nil)
	require.NoError(t, err)

	online, err := m.ListOnline(ctx)
	require.NoError(t, err)
	assert.Len(t, online, 2)

	clk.Advance(time.Minute + time.Millisecond)
	online, err = m.ListOnline(ctx)
	require.NoError(t, err)
	require.Len(t, online, 1, "expected the idle avatar to drop out after five minutes")
	assert.Equal(t, "active", online[0].SessionId)

	require.NoError(t, m.Move(ctx, "idle", 300, 300))
	online, err = m.ListOnline(ctx)
	require.NoError(t, err)
	assert.Len(t, online, 2, "expected moving to bring the avatar back online")
}
