// Package platform implements a thin JSON/HTTP client for the chatflow
// platform API: chatflow CRUD, predict, and the credential/node-schema
// listings that back internal/knowledge's local-first stores and targeted
// repair. Retries use internal/platform/retry's bounded, jittered backoff
// on transient (429/502/503/504, timeout) failures.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flowcraft/chatagent/internal/knowledge/credential"
	"github.com/flowcraft/chatagent/internal/knowledge/nodeschema"
	"github.com/flowcraft/chatagent/internal/platform/retry"
	"github.com/flowcraft/chatagent/internal/taxonomy"
)

type (
	// Option configures a Client during construction.
	Option func(*Client)

	// Client is a JSON/HTTP client bound to one platform base URL.
	Client struct {
		baseURL string
		http    *http.Client
		headers http.Header
		retry   retry.Config
	}
)

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithHeader adds a static header sent with every request.
func WithHeader(name, value string) Option {
	return func(c *Client) {
		if c.headers == nil {
			c.headers = make(http.Header)
		}
		c.headers.Add(name, value)
	}
}

// WithBearerToken configures an Authorization: Bearer header.
func WithBearerToken(token string) Option {
	return WithHeader("Authorization", "Bearer "+token)
}

// WithRetryConfig overrides the default retry.Config.
func WithRetryConfig(cfg retry.Config) Option {
	return func(c *Client) { c.retry = cfg }
}

// New constructs a Client bound to baseURL (e.g. "https://platform.example.com/api/v1").
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("platform: base URL is required")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		headers: make(http.Header),
		retry:   retry.DefaultConfig(),
	}
	for _, o := range opts {
		if o != nil {
			o(c)
		}
	}
	return c, nil
}

// do issues one HTTP request with retry, decoding a JSON response body into
// out (if non-nil) on a 2xx response.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var raw []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("platform: encoding request body: %w", err)
		}
		raw = b
	}

	return retry.Do(ctx, c.retry, func(ctx context.Context) error {
		var reader io.Reader
		if raw != nil {
			reader = bytes.NewReader(raw)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return err
		}
		if raw != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, vs := range c.headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &retry.HTTPStatusError{StatusCode: resp.StatusCode, Message: string(respBody)}
		}
		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("platform: decoding response: %w", err)
			}
		}
		return nil
	})
}

// ListChatflows returns every chatflow summary visible to the caller.
func (c *Client) ListChatflows(ctx context.Context) ([]ChatflowSummary, error) {
	var out []ChatflowSummary
	if err := c.do(ctx, http.MethodGet, "/chatflows", nil, &out); err != nil {
		return nil, endpointError("platform.list_chatflows", err)
	}
	return out, nil
}

// GetChatflow fetches one chatflow by ID.
func (c *Client) GetChatflow(ctx context.Context, id string) (Chatflow, error) {
	var out Chatflow
	if err := c.do(ctx, http.MethodGet, "/chatflows/"+id, nil, &out); err != nil {
		return Chatflow{}, endpointError("platform.get_chatflow", err)
	}
	return out, nil
}

// CreateChatflow creates a new chatflow, used by the CREATE phase path.
func (c *Client) CreateChatflow(ctx context.Context, req CreateChatflowRequest) (Chatflow, error) {
	var out Chatflow
	if err := c.do(ctx, http.MethodPost, "/chatflows", req, &out); err != nil {
		return Chatflow{}, endpointError("platform.create_chatflow", err)
	}
	return out, nil
}

// UpdateChatflow writes a compiled flow graph back to the platform. A 409
// response (the platform's own concurrent-modification signal) is
// surfaced as a taxonomy.WriteConflictError instead of a generic
// ExternalError so apply_patch can route on it without string matching.
func (c *Client) UpdateChatflow(ctx context.Context, id string, req UpdateChatflowRequest) (Chatflow, error) {
	var out Chatflow
	err := c.do(ctx, http.MethodPut, "/chatflows/"+id, req, &out)
	if err == nil {
		return out, nil
	}
	var statusErr *retry.HTTPStatusError
	if asHTTPStatusError(err, &statusErr) && statusErr.StatusCode == http.StatusConflict {
		return Chatflow{}, &taxonomy.WriteConflictError{
			TargetID:     id,
			ExpectedHash: req.ExpectedHash,
			Cause:        err,
		}
	}
	return Chatflow{}, endpointError("platform.update_chatflow", err)
}

// Predict invokes a chatflow's prediction endpoint, used by the test node.
func (c *Client) Predict(ctx context.Context, id string, req PredictRequest) (PredictResponse, error) {
	var out PredictResponse
	if err := c.do(ctx, http.MethodPost, "/chatflows/"+id+"/predict", req, &out); err != nil {
		return PredictResponse{}, endpointError("platform.predict", err)
	}
	return out, nil
}

// ListNodeSchemas returns every node type's schema known to the platform.
func (c *Client) ListNodeSchemas(ctx context.Context) ([]nodeschema.Schema, error) {
	var docs []nodeSchemaDoc
	if err := c.do(ctx, http.MethodGet, "/nodes", nil, &docs); err != nil {
		return nil, endpointError("platform.list_node_schemas", err)
	}
	out := make([]nodeschema.Schema, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromNodeSchemaDoc(d))
	}
	return out, nil
}

// FetchNodeSchema satisfies nodeschema.Fetcher: it fetches one node type's
// schema by name for repair_schema's targeted, budget-gated lookups.
func (c *Client) FetchNodeSchema(ctx context.Context, name string) (nodeschema.Schema, error) {
	var doc nodeSchemaDoc
	if err := c.do(ctx, http.MethodGet, "/nodes/"+name, nil, &doc); err != nil {
		return nodeschema.Schema{}, endpointError("platform.get_node_schema", err)
	}
	return fromNodeSchemaDoc(doc), nil
}

func fromNodeSchemaDoc(d nodeSchemaDoc) nodeschema.Schema {
	sc := nodeschema.Schema{
		Name:        d.Name,
		Version:     d.Version,
		Label:       d.Label,
		BaseClasses: d.BaseClasses,
	}
	for _, a := range d.InputAnchors {
		sc.InputAnchors = append(sc.InputAnchors, nodeschema.Anchor{Name: a.Name, AcceptedTypes: a.AcceptedTypes, Optional: a.Optional})
	}
	for _, p := range d.InputParams {
		sc.InputParams = append(sc.InputParams, nodeschema.Param{Name: p.Name, Type: p.Type, Optional: p.Optional, Default: p.Default})
	}
	for _, o := range d.OutputAnchors {
		sc.OutputAnchors = append(sc.OutputAnchors, nodeschema.OutputAnchor{Name: o.Name, Type: o.Type})
	}
	if d.Credential != nil {
		sc.Credential = &nodeschema.CredentialDecl{Type: d.Credential.Type}
	}
	sc.Hash = nodeschema.ContentHash(sc)
	return sc
}

// ListCredentials returns every credential the caller may bind to a node.
func (c *Client) ListCredentials(ctx context.Context) ([]credential.Credential, error) {
	var docs []credentialDoc
	if err := c.do(ctx, http.MethodGet, "/credentials", nil, &docs); err != nil {
		return nil, endpointError("platform.list_credentials", err)
	}
	out := make([]credential.Credential, 0, len(docs))
	for _, d := range docs {
		out = append(out, credential.Credential{ID: d.ID, Name: d.Name, Type: d.Type})
	}
	return out, nil
}

// FetchCredential satisfies credential.Fetcher.
func (c *Client) FetchCredential(ctx context.Context, id string) (credential.Credential, error) {
	var d credentialDoc
	if err := c.do(ctx, http.MethodGet, "/credentials/"+id, nil, &d); err != nil {
		return credential.Credential{}, endpointError("platform.get_credential", err)
	}
	return credential.Credential{ID: d.ID, Name: d.Name, Type: d.Type}, nil
}

func asHTTPStatusError(err error, target **retry.HTTPStatusError) bool {
	for err != nil {
		if se, ok := err.(*retry.HTTPStatusError); ok {
			*target = se
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func endpointError(endpoint string, err error) error {
	var statusErr *retry.HTTPStatusError
	if asHTTPStatusError(err, &statusErr) {
		return &taxonomy.ExternalError{
			Endpoint:   endpoint,
			StatusCode: statusErr.StatusCode,
			Transient:  retry.IsRetryable(statusErr),
			Cause:      err,
		}
	}
	return &taxonomy.ExternalError{Endpoint: endpoint, Transient: true, Cause: err}
}

var (
	_ nodeschema.Fetcher  = (*Client)(nil)
	_ credential.Fetcher  = (*Client)(nil)
)
