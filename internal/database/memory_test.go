package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemCrabRepository(t *testing.T) {
	testRepository(t, func(t *testing.T) CrabRepository {
		return NewMemCrabRepository()
	})
}

func TestMemCrabRepository_returnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemCrabRepository()

	owner := 3
	a, _, err := repo.CreateAvatarIfAbsent(ctx, CreateAvatarParams{SessionId: "s", OwnerId: &owner, Now: time.Now()})
	require.NoError(t, err)

	owner = 4
	*a.OwnerId = 5

	found, err := repo.GetAvatarBySessionId(ctx, "s")
	require.NoError(t, err)
	require.NotNil(t, found.OwnerId)
	assert.Equal(t, 3, *found.OwnerId, "expected stored owner to be isolated from callers")
}
