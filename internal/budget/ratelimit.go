package budget

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"github.com/flowcraft/chatagent/internal/taxonomy"
)

// ErrRateLimited is the sentinel an outbound call wrapped by RateLimiter
// should return (wrapped via errors.Is) when the upstream provider or
// platform API signals it is throttling the caller, e.g. an ExternalError
// with StatusCode 429.
var ErrRateLimited = errors.New("budget: rate limited")

// IsRateLimited reports whether err indicates the caller was throttled,
// recognizing both ErrRateLimited directly and an ExternalError carrying a
// 429 status.
func IsRateLimited(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var ee *taxonomy.ExternalError
	if errors.As(err, &ee) {
		return ee.StatusCode == 429
	}
	return false
}

// RateLimiter applies an AIMD-style adaptive token bucket in front of
// outbound LLM and platform calls (spec §5's resource-budget framing).
// It estimates a call's token cost, blocks until capacity is available, and
// adjusts its effective tokens-per-minute ceiling down on a rate-limit
// signal and back up on sustained success.
//
// RateLimiter is process-local: a session runtime constructs one instance
// per provider and shares it across every call that provider makes, rather
// than coordinating budget across processes.
type RateLimiter struct {
	mu sync.Mutex

	limiter *rate.Limiter

	currentTPM float64
	minTPM     float64
	maxTPM     float64

	recoveryRate float64
}

// NewRateLimiter constructs a RateLimiter with an initial and maximum
// tokens-per-minute budget. When maxTPM is zero or less than initialTPM, it
// is clamped to initialTPM. A non-positive initialTPM defaults to 60000.
func NewRateLimiter(initialTPM, maxTPM float64) *RateLimiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recoveryRate := initialTPM * 0.05
	if recoveryRate < 1 {
		recoveryRate = 1
	}
	return &RateLimiter{
		limiter:      rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM)),
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recoveryRate,
	}
}

// Wait blocks until estimatedTokens of capacity are available, or ctx is
// done. Call it immediately before issuing the outbound request.
func (l *RateLimiter) Wait(ctx context.Context, estimatedTokens int) error {
	if estimatedTokens < 1 {
		estimatedTokens = 1
	}
	return l.limiter.WaitN(ctx, estimatedTokens)
}

// Observe adjusts the effective budget in response to the outcome of a call
// already admitted by Wait: a rate-limit signal halves the budget down to
// its floor, any other outcome (including success) nudges it back toward
// maxTPM by one recovery step.
func (l *RateLimiter) Observe(err error) {
	if IsRateLimited(err) {
		l.backoff()
		return
	}
	l.probe()
}

func (l *RateLimiter) backoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	newTPM := l.currentTPM * 0.5
	if newTPM < l.minTPM {
		newTPM = l.minTPM
	}
	l.setTPM(newTPM)
}

func (l *RateLimiter) probe() {
	l.mu.Lock()
	defer l.mu.Unlock()
	newTPM := l.currentTPM + l.recoveryRate
	if newTPM > l.maxTPM {
		newTPM = l.maxTPM
	}
	l.setTPM(newTPM)
}

// setTPM must be called with mu held.
func (l *RateLimiter) setTPM(tpm float64) {
	if tpm == l.currentTPM {
		return
	}
	l.currentTPM = tpm
	l.limiter.SetLimit(rate.Limit(tpm / 60.0))
	l.limiter.SetBurst(int(tpm))
}

// CurrentTPM reports the current effective tokens-per-minute ceiling, for
// the session summary and diagnostics.
func (l *RateLimiter) CurrentTPM() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentTPM
}

// EstimateTokens computes a cheap heuristic for the number of tokens a
// transcript of text will cost: roughly one token per three characters,
// plus a fixed buffer for system prompt and provider framing overhead.
func EstimateTokens(charCount int) int {
	if charCount <= 0 {
		return 500
	}
	tokens := charCount / 3
	if tokens < 1 {
		tokens = 1
	}
	return tokens + 500
}
