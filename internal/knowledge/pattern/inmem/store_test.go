package inmem

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcraft/chatagent/internal/knowledge/pattern"
)

func seedStore() *Store {
	return New(
		pattern.Pattern{ID: "p1", Domain: "support", Category: "faq", NodeTypes: []string{"chatOpenAI", "retriever"}, LastUsedAt: time.Unix(100, 0)},
		pattern.Pattern{ID: "p2", Domain: "support", Category: "lead-gen", NodeTypes: []string{"chatOpenAI"}, LastUsedAt: time.Unix(200, 0)},
		pattern.Pattern{ID: "p3", Domain: "sales", Category: "faq", NodeTypes: []string{"toolAgent"}, LastUsedAt: time.Unix(50, 0)},
	)
}

func TestGetReturnsNotFoundForMissingID(t *testing.T) {
	s := seedStore()
	_, err := s.Get(t.Context(), "missing")
	require.ErrorIs(t, err, pattern.ErrNotFound)
}

func TestSearchFiltersByDomainAndOrdersByRecency(t *testing.T) {
	s := seedStore()
	results, err := s.Search(t.Context(), pattern.Filter{Domain: "support"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "p2", results[0].ID)
	assert.Equal(t, "p1", results[1].ID)
}

func TestSearchFiltersByNodeTypeOverlap(t *testing.T) {
	s := seedStore()
	results, err := s.Search(t.Context(), pattern.Filter{NodeTypes: []string{"toolAgent"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p3", results[0].ID)
}

func TestRecordUseIncrementsSuccessCountAndBumpsLastUsed(t *testing.T) {
	s := seedStore()
	now := time.Unix(9999, 0)
	require.NoError(t, s.RecordUse(t.Context(), "p1", now))

	got, err := s.Get(t.Context(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.SuccessCount)
	assert.Equal(t, now, got.LastUsedAt)
}

func TestRecordUseUnknownIDReturnsNotFound(t *testing.T) {
	s := seedStore()
	err := s.RecordUse(t.Context(), "missing", time.Now())
	require.ErrorIs(t, err, pattern.ErrNotFound)
}

func TestSaveUpserts(t *testing.T) {
	s := New()
	require.NoError(t, s.Save(t.Context(), pattern.Pattern{ID: "new1", Domain: "d"}))
	got, err := s.Get(t.Context(), "new1")
	require.NoError(t, err)
	assert.Equal(t, "d", got.Domain)
}
