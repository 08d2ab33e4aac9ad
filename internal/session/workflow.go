// Package session binds the staged execution graph (internal/graph/nodes)
// to internal/graph/engine's durable workflow abstraction: one workflow
// execution is one session run end to end, suspending at HITL nodes via
// the engine's signal channels rather than blocking a goroutine forever.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/flowcraft/chatagent/internal/budget"
	"github.com/flowcraft/chatagent/internal/checkpoint"
	"github.com/flowcraft/chatagent/internal/graph/engine"
	"github.com/flowcraft/chatagent/internal/graph/interrupt"
	"github.com/flowcraft/chatagent/internal/graph/nodes"
	"github.com/flowcraft/chatagent/internal/state"
)

// WorkflowName is the logical name this package's workflow registers under.
const WorkflowName = "chatagent.session"

// Input is the workflow's start payload: the requirement, runtime mode and
// auto-approve flag, plus the session id the caller mints before starting
// the workflow so it can be returned immediately even if the workflow
// suspends at a HITL node. It carries no wait timeout.
type Input struct {
	SessionID   string
	Requirement string
	RuntimeMode string
	AutoApprove bool
}

// Result is the workflow's return value, mirroring nodes.Outcome plus the
// session id for a caller holding only the workflow handle.
type Result struct {
	SessionID  string
	Status     nodes.Status
	ResultRefs []string
	Summary    string
}

// NewWorkflow closures over a process-wide *nodes.Graph and its
// checkpointer, producing the engine.WorkflowFunc that RegisterWorkflow
// binds under WorkflowName. A fresh session is created on first entry; an
// engine restart or a HITL suspend-then-resume re-enters this function
// against the same SessionID, so the checkpoint is always consulted first
// (spec §3: "Created on intake, checkpointed at every node boundary").
func NewWorkflow(g *nodes.Graph, checkpoints checkpoint.Store, budgetCfg budget.Config) engine.WorkflowFunc {
	return func(wfCtx engine.WorkflowContext, rawInput any) (any, error) {
		in, ok := rawInput.(Input)
		if !ok {
			return nil, fmt.Errorf("session: workflow expects session.Input, got %T", rawInput)
		}

		ctx := wfCtx.Context()
		sess, err := loadOrCreateSession(ctx, checkpoints, in)
		if err != nil {
			return nil, fmt.Errorf("session: loading checkpoint for %s: %w", in.SessionID, err)
		}

		run := &nodes.Run{
			Graph:   g,
			Session: sess,
			Budget:  budget.NewTracker(budgetCfg),
			Ctrl:    interrupt.NewController(wfCtx),
		}

		// Execute checkpoints through Deps.Checkpoints (the same store passed
		// in here) at every node boundary already, including the final one,
		// so no further Save is needed on return.
		outcome, runErr := g.Execute(ctx, run)
		if runErr != nil {
			return Result{SessionID: sess.SessionID, Status: nodes.StatusError, Summary: runErr.Error()}, runErr
		}

		return Result{
			SessionID:  sess.SessionID,
			Status:     outcome.Status,
			ResultRefs: outcome.ResultRefs,
			Summary:    outcome.Summary,
		}, nil
	}
}

// loadOrCreateSession restores sessionID's last checkpoint when one exists
// (a resumed HITL wait, or a worker restart mid-session) and otherwise
// starts a fresh Session at classify_intent.
func loadOrCreateSession(ctx context.Context, checkpoints checkpoint.Store, in Input) (*state.Session, error) {
	snap, err := checkpoints.Load(ctx, in.SessionID)
	if err == nil {
		return state.Restore(snap), nil
	}
	if !errors.Is(err, checkpoint.ErrNotFound) {
		return nil, err
	}
	sess := state.New(in.SessionID, in.Requirement, in.RuntimeMode)
	sess.AutoApprove = in.AutoApprove
	return sess, nil
}
