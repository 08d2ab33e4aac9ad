// Package interrupt provides workflow signal handling for the staged
// session graph's three HITL nodes (HITL_select_target, HITL_plan,
// HITL_review). It exposes a Controller that a graph node handler uses to
// suspend at a signal channel and resume deterministically when a human (or
// the auto_approve short-circuit) delivers a decision.
package interrupt

import (
	"context"
	"errors"
	"time"

	"github.com/flowcraft/chatagent/internal/graph/engine"
)

const (
	// SignalPause carries an out-of-band pause request, read with
	// Controller.PollPause. No node of the staged graph polls it, so a pause
	// signal does not by itself suspend a running session.
	SignalPause = "chatagent.interrupt.pause"
	// SignalResume delivers a generic approve/reject/revise decision to a
	// paused session (used by HITL_plan; HITL_review uses SignalReview).
	SignalResume = "chatagent.interrupt.resume"
	// SignalSelectTarget delivers the user's chatflow choice (or a decision
	// to create a new one) to a session paused at HITL_select_target.
	SignalSelectTarget = "chatagent.interrupt.select_target"
	// SignalReview delivers the terminal review decision to a session paused
	// at HITL_review.
	SignalReview = "chatagent.interrupt.review"
)

type (
	// PauseRequest carries metadata attached to an out-of-band pause signal,
	// e.g. an operator force-pausing a session mid-run.
	PauseRequest struct {
		SessionID   string
		Reason      string
		RequestedBy string
	}

	// ResumeDecision carries a human's approve/reject/revise verdict for the
	// HITL_plan node.
	ResumeDecision struct {
		SessionID   string
		Decision    string // "approved" | "rejected" | "revise"
		Notes       string
		RequestedBy string
	}

	// SelectTargetAnswer carries the user's answer for HITL_select_target:
	// either an existing chatflow id to update, or a request to create new.
	SelectTargetAnswer struct {
		SessionID         string
		TargetChatflowID  string
		CreateNew         bool
		RequestedBy       string
	}

	// ReviewDecision carries the terminal verdict for HITL_review.
	ReviewDecision struct {
		SessionID   string
		Approved    bool
		Notes       string
		RequestedBy string
	}

	// Controller wires a graph node to the signal channels a workflow
	// context exposes, and provides blocking/non-blocking helpers so node
	// handlers don't need to know about the underlying engine's signal
	// mechanism.
	Controller struct {
		pauseCh        engine.SignalChannel
		resumeCh       engine.SignalChannel
		selectTargetCh engine.SignalChannel
		reviewCh       engine.SignalChannel
	}
)

// NewController builds a controller wired to the workflow context's signal
// channels. Call once per session run, typically at workflow start.
func NewController(wfCtx engine.WorkflowContext) *Controller {
	return &Controller{
		pauseCh:        wfCtx.SignalChannel(SignalPause),
		resumeCh:       wfCtx.SignalChannel(SignalResume),
		selectTargetCh: wfCtx.SignalChannel(SignalSelectTarget),
		reviewCh:       wfCtx.SignalChannel(SignalReview),
	}
}

// PollPause attempts to dequeue a pause request without blocking.
func (c *Controller) PollPause() (PauseRequest, bool) {
	if c == nil || c.pauseCh == nil {
		return PauseRequest{}, false
	}
	var req PauseRequest
	if !c.pauseCh.ReceiveAsync(&req) {
		return PauseRequest{}, false
	}
	return req, true
}

// WaitResume blocks until a resume decision is delivered for HITL_plan, or
// until ctx is done. Callers enforce the HITL long-poll bound (default 300s,
// spec §5) by deriving ctx with a deadline before calling.
func (c *Controller) WaitResume(ctx context.Context) (ResumeDecision, error) {
	if c == nil || c.resumeCh == nil {
		return ResumeDecision{}, errors.New("interrupt: resume channel unavailable")
	}
	var dec ResumeDecision
	if err := c.resumeCh.Receive(ctx, &dec); err != nil {
		return ResumeDecision{}, err
	}
	return dec, nil
}

// WaitSelectTarget blocks until the user answers HITL_select_target.
func (c *Controller) WaitSelectTarget(ctx context.Context) (SelectTargetAnswer, error) {
	if c == nil || c.selectTargetCh == nil {
		return SelectTargetAnswer{}, errors.New("interrupt: select_target channel unavailable")
	}
	var ans SelectTargetAnswer
	if err := c.selectTargetCh.Receive(ctx, &ans); err != nil {
		return SelectTargetAnswer{}, err
	}
	return ans, nil
}

// WaitReview blocks until the user delivers the terminal HITL_review
// decision.
func (c *Controller) WaitReview(ctx context.Context) (ReviewDecision, error) {
	if c == nil || c.reviewCh == nil {
		return ReviewDecision{}, errors.New("interrupt: review channel unavailable")
	}
	var dec ReviewDecision
	if err := c.reviewCh.Receive(ctx, &dec); err != nil {
		return ReviewDecision{}, err
	}
	return dec, nil
}

// AutoApprove synthesizes the signal that would otherwise come from a human,
// for sessions started with auto_approve=true (spec §8: "every HITL
// interrupt is auto-resumed with approved, and an [auto-approved] entry
// appears in the event log"). The caller is responsible for appending that
// event; AutoApprove only produces the decision value.
func AutoApprove(sessionID string) ResumeDecision {
	return ResumeDecision{SessionID: sessionID, Decision: "approved", Notes: "[auto-approved]"}
}

// ErrLongPollTimeout is returned by node handlers (not by Controller itself)
// when a WaitX call's deadline elapses before a signal arrives, distinct from
// ctx.Err() == context.Canceled so the staged graph can route to
// status=timeout rather than status=error (spec §5).
var ErrLongPollTimeout = errors.New("interrupt: long-poll deadline exceeded")

// DefaultLongPoll is the default outer bound on a blocking HITL wait,
// overridable via internal/config.
const DefaultLongPoll = 300 * time.Second
