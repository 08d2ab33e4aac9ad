package gateway

import (
	"context"

	"github.com/flowcraft/chatagent/internal/budget"
	"github.com/flowcraft/chatagent/internal/llm"
)

// RateLimitMiddleware wraps every call with rl.Wait before admitting it and
// rl.Observe after it returns, so the underlying engine's effective
// tokens-per-minute ceiling adapts to provider rate-limit signals (spec §5's
// resource-budget framing applied to outbound LLM calls).
func RateLimitMiddleware(rl *budget.RateLimiter) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req llm.Request) (llm.Response, error) {
			estimated := estimateRequestTokens(req)
			if err := rl.Wait(ctx, estimated); err != nil {
				return llm.Response{}, err
			}
			resp, err := next(ctx, req)
			rl.Observe(err)
			return resp, err
		}
	}
}

func estimateRequestTokens(req llm.Request) int {
	chars := 0
	for _, m := range req.Messages {
		chars += len(m.Text())
	}
	return budget.EstimateTokens(chars)
}
