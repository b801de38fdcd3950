package content

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-db/tessera/internal/store"
)

func TestNavigator_NextPrevious(t *testing.T) {
	st := store.NewMemoryStore()
	seedDoc(t, st, "doc", 6)
	nav := NewNavigator(st)
	ctx := context.Background()

	ch, found, err := nav.Next(ctx, "doc", 2)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 3, ch.SeqNum)

	ch, found, err = nav.Previous(ctx, "doc", 5)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 4, ch.SeqNum)

	// No wraparound at either edge.
	_, found, err = nav.Next(ctx, "doc", 5)
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = nav.Previous(ctx, "doc", 0)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNavigator_UnknownContent(t *testing.T) {
	nav := NewNavigator(store.NewMemoryStore())

	_, found, err := nav.Next(context.Background(), "ghost", 0)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNavigator_RangeClips(t *testing.T) {
	st := store.NewMemoryStore()
	seedDoc(t, st, "doc", 12)
	nav := NewNavigator(st)
	ctx := context.Background()

	chunks, err := nav.Range(ctx, "doc", 10, 5)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 10, chunks[0].SeqNum)
	assert.Equal(t, 11, chunks[1].SeqNum)

	chunks, err = nav.Range(ctx, "doc", 0, 12)
	require.NoError(t, err)
	assert.Len(t, chunks, 12)

	chunks, err = nav.Range(ctx, "doc", 50, 5)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	chunks, err = nav.Range(ctx, "doc", 3, 0)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestNavigator_RangeOrdered(t *testing.T) {
	st := store.NewMemoryStore()
	seedDoc(t, st, "doc", 8)
	nav := NewNavigator(st)

	chunks, err := nav.Range(context.Background(), "doc", 2, 4)
	require.NoError(t, err)
	require.Len(t, chunks, 4)
	for i, ch := range chunks {
		assert.Equal(t, 2+i, ch.SeqNum)
	}
}
