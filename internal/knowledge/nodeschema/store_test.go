package nodeschema

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	schemas map[string]Schema
	calls   int
}

func (f *fakeFetcher) FetchNodeSchema(_ context.Context, name string) (Schema, error) {
	f.calls++
	sc, ok := f.schemas[name]
	if !ok {
		return Schema{}, errors.New("not found upstream")
	}
	return sc, nil
}

func TestGetOrRepairHitsLocalSnapshotFirst(t *testing.T) {
	store := New([]Schema{{Name: "chatOpenAI", Version: "1"}}, &fakeFetcher{})
	sc, err := store.GetOrRepair(context.Background(), "chatOpenAI")
	require.NoError(t, err)
	assert.Equal(t, "1", sc.Version)
}

func TestGetOrRepairFetchesOnMiss(t *testing.T) {
	fetcher := &fakeFetcher{schemas: map[string]Schema{"newTool": {Name: "newTool", Version: "1"}}}
	store := New(nil, fetcher)
	sc, err := store.GetOrRepair(context.Background(), "newTool")
	require.NoError(t, err)
	assert.Equal(t, "newTool", sc.Name)
	assert.NotEmpty(t, sc.Hash)
	assert.Equal(t, 1, fetcher.calls)

	// Second call must hit the now-warm cache, not the fetcher again.
	_, err = store.GetOrRepair(context.Background(), "newTool")
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.calls)
}

func TestGetOrRepairRespectsRepairBudget(t *testing.T) {
	fetcher := &fakeFetcher{schemas: map[string]Schema{
		"a": {Name: "a", Version: "1"},
		"b": {Name: "b", Version: "1"},
	}}
	store := New(nil, fetcher)
	store.ResetRepairBudget(1)

	_, err := store.GetOrRepair(context.Background(), "a")
	require.NoError(t, err)

	_, err = store.GetOrRepair(context.Background(), "b")
	require.ErrorIs(t, err, ErrRepairBudgetExhausted)
}

func TestContentHashIsOrderIndependent(t *testing.T) {
	a := Schema{
		Name: "x",
		InputAnchors: []Anchor{
			{Name: "b", AcceptedTypes: []string{"T"}},
			{Name: "a", AcceptedTypes: []string{"T"}},
		},
	}
	b := Schema{
		Name: "x",
		InputAnchors: []Anchor{
			{Name: "a", AcceptedTypes: []string{"T"}},
			{Name: "b", AcceptedTypes: []string{"T"}},
		},
	}
	assert.Equal(t, ContentHash(a), ContentHash(b))
}

func TestFingerprintChangesWithContent(t *testing.T) {
	store := New([]Schema{{Name: "a", Hash: "h1"}}, nil)
	fp1 := store.Fingerprint()
	store.mu.Lock()
	store.schemas["a"] = Schema{Name: "a", Hash: "h2"}
	store.mu.Unlock()
	fp2 := store.Fingerprint()
	assert.NotEqual(t, fp1, fp2)
}

func TestGateFourCases(t *testing.T) {
	assert.Equal(t, DecisionSkipSameVersion, Gate(Schema{Version: "1"}, Schema{Version: "1"}))
	assert.Equal(t, DecisionUpdateChanged, Gate(Schema{Version: "1"}, Schema{Version: "2"}))
	assert.Equal(t, DecisionSkipSameHash, Gate(Schema{Hash: "h"}, Schema{Hash: "h"}))
	assert.Equal(t, DecisionUpdateNoVersionInfo, Gate(Schema{Hash: "h1"}, Schema{Hash: "h2"}))
}
