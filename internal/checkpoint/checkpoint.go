// Package checkpoint defines the durable session checkpointer contract
// (spec §3, §8): every node boundary persists a full state.Snapshot so a
// session can resume exactly where it left off after a crash, a HITL pause,
// or a worker restart. internal/checkpoint/inmem and
// internal/checkpoint/mongo provide the two implementations this repo ships.
package checkpoint

import (
	"context"
	"errors"

	"github.com/flowcraft/chatagent/internal/state"
)

// ErrNotFound is returned by Load when no checkpoint exists for a session
// id, distinguishing "never started" from a storage-layer failure.
var ErrNotFound = errors.New("checkpoint: session not found")

// Store is the durable checkpointer contract. Save is called at every node
// boundary in the staged graph; Load is called once, at workflow start, to
// decide between a fresh Session and state.Restore of a prior Snapshot.
type Store interface {
	// Save persists snap as the latest checkpoint for its SessionID,
	// overwriting any prior checkpoint for the same session. Implementations
	// must make this idempotent: saving the same Snapshot twice is a no-op
	// observable effect.
	Save(ctx context.Context, snap state.Snapshot) error
	// Load returns the latest checkpoint for sessionID, or ErrNotFound if
	// none exists.
	Load(ctx context.Context, sessionID string) (state.Snapshot, error)
	// Delete removes a session's checkpoint once it reaches a terminal
	// state and its event log has been durably flushed. Deleting an absent
	// session is a no-op, not an error.
	Delete(ctx context.Context, sessionID string) error
}
