//go:build unit

package eventstream

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLog(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	log := NewMemoryLog()

	_, err := log.Append(ctx, " ", nil)
	assert.ErrorIs(t, err, ErrEventTypeRequired)

	first, err := log.Append(ctx, "opened", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), first.ID)
	assert.Equal(t, `{}`, string(first.Message))

	second, err := log.Append(ctx, "deposited", json.RawMessage(`{"amount":5}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1), second.ID)

	n, err := log.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, ok, err := log.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, second, got)

	_, ok, err = log.Get(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, _ = log.Get(ctx, -1)
	assert.False(t, ok)
}

func TestMemoryPositionStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryPositionStore("")

	_, ok, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.TransitionedTo(ctx, "/events/3"))

	latest, ok, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/events/3", latest)

	_, ok, err = NopPositionStore{}.Latest(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}
