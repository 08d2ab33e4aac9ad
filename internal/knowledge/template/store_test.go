package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() []Template {
	return []Template{
		{ID: "t1", Name: "Customer Support Bot", Keywords: []string{"support", "faq"}, NodeTypes: []string{"chatOpenAI", "retriever"}},
		{ID: "t2", Name: "Sales Qualifier", Keywords: []string{"sales", "lead"}, NodeTypes: []string{"chatOpenAI"}},
		{ID: "t3", Name: "FAQ Retriever Bot", Keywords: []string{"faq", "retrieval"}, NodeTypes: []string{"retriever"}},
	}
}

func TestGetReturnsByID(t *testing.T) {
	s := New(sampleSnapshot())
	tpl, ok := s.Get("t2")
	require.True(t, ok)
	assert.Equal(t, "Sales Qualifier", tpl.Name)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestSearchRanksByKeywordOverlap(t *testing.T) {
	s := New(sampleSnapshot())
	results := s.Search("faq bot")
	require.NotEmpty(t, results)
	// t1 and t3 both match "faq"; t1 and t3 also match "bot" via Name tokens.
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	assert.NotContains(t, ids, "t2")
	assert.Contains(t, ids, "t1")
	assert.Contains(t, ids, "t3")
}

func TestSearchEmptyQueryMatchesNothing(t *testing.T) {
	s := New(sampleSnapshot())
	assert.Empty(t, s.Search(""))
	assert.Empty(t, s.Search("   "))
}

func TestSearchNoMatchReturnsEmpty(t *testing.T) {
	s := New(sampleSnapshot())
	assert.Empty(t, s.Search("xyzzy nonexistent"))
}
