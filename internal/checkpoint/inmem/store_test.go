package inmem

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcraft/chatagent/internal/checkpoint"
	"github.com/flowcraft/chatagent/internal/state"
)

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	store := New()
	sess := state.New("sess-1", "add a retry node", "capability-first")
	sess.MergeFacts("target", map[string]any{"chatflow_id": "cf-1"})
	snap := sess.Snapshot(time.Now())

	require.NoError(t, store.Save(context.Background(), snap))
	loaded, err := store.Load(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, snap.SessionID, loaded.SessionID)
	assert.Equal(t, "cf-1", loaded.Facts["target"]["chatflow_id"])
}

func TestStoreLoadMissingReturnsErrNotFound(t *testing.T) {
	store := New()
	_, err := store.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestStoreSaveReturnsIndependentCopies(t *testing.T) {
	store := New()
	sess := state.New("sess-2", "req", "capability-first")
	sess.MergeFacts("target", map[string]any{"k": "v"})
	snap := sess.Snapshot(time.Now())
	require.NoError(t, store.Save(context.Background(), snap))

	loaded, err := store.Load(context.Background(), "sess-2")
	require.NoError(t, err)
	loaded.Facts["target"]["k"] = "mutated"

	loadedAgain, err := store.Load(context.Background(), "sess-2")
	require.NoError(t, err)
	assert.Equal(t, "v", loadedAgain.Facts["target"]["k"], "Load must return a copy, not a shared reference to stored state")
}

func TestStoreDelete(t *testing.T) {
	store := New()
	sess := state.New("sess-3", "req", "capability-first")
	require.NoError(t, store.Save(context.Background(), sess.Snapshot(time.Now())))
	require.NoError(t, store.Delete(context.Background(), "sess-3"))
	_, err := store.Load(context.Background(), "sess-3")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
	assert.Equal(t, 0, store.Len())
}
