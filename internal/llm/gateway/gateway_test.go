package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcraft/chatagent/internal/budget"
	"github.com/flowcraft/chatagent/internal/llm"
)

type fakeEngine struct {
	resp llm.Response
	err  error
	n    int
}

func (f *fakeEngine) Complete(_ context.Context, _ llm.Request) (llm.Response, error) {
	f.n++
	return f.resp, f.err
}

func TestNewServerRequiresEngine(t *testing.T) {
	_, err := NewServer()
	assert.ErrorIs(t, err, ErrEngineRequired)
}

func TestServerAppliesMiddlewareInRegistrationOrder(t *testing.T) {
	var order []string
	mwA := func(next Handler) Handler {
		return func(ctx context.Context, req llm.Request) (llm.Response, error) {
			order = append(order, "a")
			return next(ctx, req)
		}
	}
	mwB := func(next Handler) Handler {
		return func(ctx context.Context, req llm.Request) (llm.Response, error) {
			order = append(order, "b")
			return next(ctx, req)
		}
	}
	eng := &fakeEngine{}
	srv, err := NewServer(WithEngine(eng), WithMiddleware(mwA, mwB))
	require.NoError(t, err)

	_, err = srv.Complete(context.Background(), llm.Request{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, 1, eng.n)
}

func TestRateLimitMiddlewareObservesSuccessAndFailure(t *testing.T) {
	rl := budget.NewRateLimiter(600000, 600000)
	eng := &fakeEngine{err: errors.New("boom")}
	srv, err := NewServer(WithEngine(eng), WithMiddleware(RateLimitMiddleware(rl)))
	require.NoError(t, err)

	before := rl.CurrentTPM()
	_, _ = srv.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart{Text: "hi"}}}},
	})
	assert.Equal(t, before, rl.CurrentTPM(), "a non-rate-limit error should probe upward, not backoff")

	eng.err = budget.ErrRateLimited
	_, _ = srv.Complete(context.Background(), llm.Request{})
	assert.Less(t, rl.CurrentTPM(), before, "a rate-limit error should back off the ceiling")
}
