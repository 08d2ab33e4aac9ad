package platform

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcraft/chatagent/internal/platform/retry"
	"github.com/flowcraft/chatagent/internal/taxonomy"
)

func fastRetryConfig() retry.Config {
	return retry.Config{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 1}
}

func TestGetChatflowDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chatflows/abc", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Chatflow{ID: "abc", Name: "My Flow"})
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithBearerToken("tok"), WithRetryConfig(fastRetryConfig()))
	require.NoError(t, err)

	cf, err := c.GetChatflow(t.Context(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", cf.ID)
	assert.Equal(t, "My Flow", cf.Name)
}

func TestUpdateChatflowMapsConflictToWriteConflictError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte("stale hash"))
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithRetryConfig(fastRetryConfig()))
	require.NoError(t, err)

	_, err = c.UpdateChatflow(t.Context(), "abc", UpdateChatflowRequest{ExpectedHash: "h1"})
	require.Error(t, err)
	var conflict *taxonomy.WriteConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "abc", conflict.TargetID)
	assert.Equal(t, "h1", conflict.ExpectedHash)
}

func TestDoRetriesTransientStatusThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]ChatflowSummary{{ID: "x"}})
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithRetryConfig(fastRetryConfig()))
	require.NoError(t, err)

	list, err := c.ListChatflows(t.Context())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, attempts)
}

func TestListChatflowsWrapsExhaustedRetryAsExternalError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithRetryConfig(fastRetryConfig()))
	require.NoError(t, err)

	_, err = c.ListChatflows(t.Context())
	require.Error(t, err)
	var extErr *taxonomy.ExternalError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, "platform.list_chatflows", extErr.Endpoint)
	assert.Equal(t, http.StatusServiceUnavailable, extErr.StatusCode)
}

func TestGetNodeSchemaConvertsDocToSchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/nodes/chatOpenAI", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(nodeSchemaDoc{
			Name:        "chatOpenAI",
			Version:     "1",
			InputAnchors: []anchorDoc{{Name: "model", AcceptedTypes: []string{"BaseChatModel"}}},
			Credential:  &credentialDecl{Type: "openAIApi"},
		})
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithRetryConfig(fastRetryConfig()))
	require.NoError(t, err)

	sc, err := c.FetchNodeSchema(t.Context(), "chatOpenAI")
	require.NoError(t, err)
	assert.Equal(t, "chatOpenAI", sc.Name)
	require.Len(t, sc.InputAnchors, 1)
	assert.Equal(t, "model", sc.InputAnchors[0].Name)
	require.NotNil(t, sc.Credential)
	assert.Equal(t, "openAIApi", sc.Credential.Type)
	assert.NotEmpty(t, sc.Hash)
}

func TestFetchCredentialConvertsDoc(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/credentials/cred1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(credentialDoc{ID: "cred1", Name: "My OpenAI Key", Type: "openAIApi"})
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithRetryConfig(fastRetryConfig()))
	require.NoError(t, err)

	cr, err := c.FetchCredential(t.Context(), "cred1")
	require.NoError(t, err)
	assert.Equal(t, "cred1", cr.ID)
	assert.Equal(t, "openAIApi", cr.Type)
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
