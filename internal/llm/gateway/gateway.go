// Package gateway adapts an llm.Engine into a composable request handler
// with middleware support, mirroring the onion-handler/Option-functional
// construction used throughout this codebase's provider-facing clients.
// Middleware is applied in registration order: the first middleware
// registered wraps every subsequent one, forming an onion where the
// innermost layer invokes the configured engine.
package gateway

import (
	"context"
	"errors"

	"github.com/flowcraft/chatagent/internal/llm"
)

// ErrEngineRequired is returned by NewServer when no engine was configured.
var ErrEngineRequired = errors.New("gateway: engine is required")

type (
	// Handler processes a single completion request and returns the
	// complete response.
	Handler func(ctx context.Context, req llm.Request) (llm.Response, error)

	// Middleware wraps a Handler to add behavior before, after, or around
	// the handler invocation.
	Middleware func(next Handler) Handler

	// Option configures a Server during construction.
	Option func(*config)

	config struct {
		engine llm.Engine
		mw     []Middleware
	}

	// Server composes a configured llm.Engine with zero or more Middleware
	// into a single Handler, satisfying llm.Engine itself so it can be
	// passed anywhere a plain engine is expected.
	Server struct {
		handler Handler
	}
)

// WithEngine sets the underlying engine. Required; NewServer returns
// ErrEngineRequired without one.
func WithEngine(e llm.Engine) Option {
	return func(c *config) { c.engine = e }
}

// WithMiddleware appends one or more Middleware to the completion chain, in
// registration order: the first registered becomes the outermost layer.
func WithMiddleware(mw ...Middleware) Option {
	return func(c *config) { c.mw = append(c.mw, mw...) }
}

// NewServer constructs a Server from the given options.
func NewServer(opts ...Option) (*Server, error) {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.engine == nil {
		return nil, ErrEngineRequired
	}
	handler := Handler(cfg.engine.Complete)
	for i := len(cfg.mw) - 1; i >= 0; i-- {
		handler = cfg.mw[i](handler)
	}
	return &Server{handler: handler}, nil
}

// Complete satisfies llm.Engine, running req through the configured
// middleware chain before reaching the underlying engine.
func (s *Server) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	return s.handler(ctx, req)
}

var _ llm.Engine = (*Server)(nil)
