package credential

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	creds map[string]Credential
}

func (f *fakeFetcher) FetchCredential(_ context.Context, id string) (Credential, error) {
	c, ok := f.creds[id]
	if !ok {
		return Credential{}, assertError{}
	}
	return c, nil
}

type assertError struct{}

func (assertError) Error() string { return "not found upstream" }

func TestResolveHitsLocalSnapshot(t *testing.T) {
	store := New([]Credential{{ID: "c1", Name: "openai-prod", Type: "openAIApi"}}, nil)
	typ, ok := store.Resolve(context.Background(), "c1")
	require.True(t, ok)
	assert.Equal(t, "openAIApi", typ)
}

func TestResolveMissDoesNotFetch(t *testing.T) {
	fetcher := &fakeFetcher{creds: map[string]Credential{"c1": {ID: "c1", Type: "openAIApi"}}}
	store := New(nil, fetcher)
	_, ok := store.Resolve(context.Background(), "c1")
	assert.False(t, ok, "Resolve must stay synchronous/local-only, never triggering a repair fetch")
}

func TestResolveOrRepairFetchesOnMiss(t *testing.T) {
	fetcher := &fakeFetcher{creds: map[string]Credential{"c1": {ID: "c1", Name: "openai-prod", Type: "openAIApi"}}}
	store := New(nil, fetcher)
	c, err := store.ResolveOrRepair(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "openAIApi", c.Type)

	typ, ok := store.Resolve(context.Background(), "c1")
	require.True(t, ok)
	assert.Equal(t, "openAIApi", typ)
}

func TestListByTypePreservesRegistrationOrder(t *testing.T) {
	store := New([]Credential{
		{ID: "c1", Type: "openAIApi"},
		{ID: "c2", Type: "anthropicApi"},
		{ID: "c3", Type: "openAIApi"},
	}, nil)
	assert.Equal(t, []string{"c1", "c3"}, store.ListByType("openAIApi"))
}
