// Package ingress implements the session ingress contract (spec §6: "shape,
// not transport"): translating a bare {requirement, auto_approve?,
// max_wait_secs?} request into an engine.WorkflowStartRequest for
// internal/session's workflow, and the workflow's outcome back into
// {session_id, status, result_refs, summary}. A concrete transport (HTTP
// handler, RPC method, CLI command) wraps this package rather than talking
// to engine.Engine directly.
package ingress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowcraft/chatagent/internal/graph/engine"
	"github.com/flowcraft/chatagent/internal/graph/nodes"
	"github.com/flowcraft/chatagent/internal/session"
)

// DefaultMaxWaitSecs bounds how long Start/Signal blocks for a same-call
// result before returning pending_interrupt, absent an explicit
// MaxWaitSecs (spec §6: "max_wait_secs?").
const DefaultMaxWaitSecs = 30

// Request is the session ingress contract's input shape.
type Request struct {
	Requirement string
	AutoApprove bool
	MaxWaitSecs int
	RuntimeMode string
}

// Response is the session ingress contract's output shape.
type Response struct {
	SessionID  string
	Status     nodes.Status
	ResultRefs []string
	Summary    string
}

// Service starts and resumes sessions against one wired engine.Engine. It
// keeps a process-local registry of live workflow handles so Signal can
// deliver a HITL decision to an already-running session without asking the
// engine to start a second execution under the same id.
type Service struct {
	Engine    engine.Engine
	TaskQueue string

	mu      sync.Mutex
	handles map[string]engine.WorkflowHandle
}

// NewService builds a Service bound to eng. Callers register
// session.WorkflowName with eng via RegisterWorkflow before constructing a
// Service (see cmd/chatagent's wiring).
func NewService(eng engine.Engine, taskQueue string) *Service {
	return &Service{Engine: eng, TaskQueue: taskQueue, handles: make(map[string]engine.WorkflowHandle)}
}

// Start mints a session id, starts its workflow, and blocks up to
// req.MaxWaitSecs for a result before returning status=pending_interrupt so
// a caller isn't held open across an arbitrarily long HITL wait.
func (s *Service) Start(ctx context.Context, req Request) (Response, error) {
	sessionID := uuid.NewString()
	handle, err := s.Engine.StartWorkflow(ctx, engine.WorkflowStartRequest{
		ID:        sessionID,
		Workflow:  session.WorkflowName,
		TaskQueue: s.TaskQueue,
		Input: session.Input{
			SessionID:   sessionID,
			Requirement: req.Requirement,
			RuntimeMode: req.RuntimeMode,
			AutoApprove: req.AutoApprove,
		},
	})
	if err != nil {
		return Response{}, fmt.Errorf("ingress: starting session %s: %w", sessionID, err)
	}
	s.putHandle(sessionID, handle)
	return s.await(ctx, sessionID, handle, req.MaxWaitSecs)
}

// Signal delivers an out-of-band HITL decision to a suspended session
// (payload is one of interrupt.ResumeDecision, interrupt.SelectTargetAnswer,
// interrupt.ReviewDecision, matched to signalName by the caller), then
// re-waits up to maxWaitSecs for the session to either suspend again at a
// later HITL node or reach a terminal state.
func (s *Service) Signal(ctx context.Context, sessionID, signalName string, payload any, maxWaitSecs int) (Response, error) {
	handle, ok := s.getHandle(sessionID)
	if !ok {
		return Response{}, fmt.Errorf("ingress: no live session %s to signal", sessionID)
	}
	if err := handle.Signal(ctx, signalName, payload); err != nil {
		return Response{}, fmt.Errorf("ingress: signaling session %s: %w", sessionID, err)
	}
	return s.await(ctx, sessionID, handle, maxWaitSecs)
}

func (s *Service) await(ctx context.Context, sessionID string, handle engine.WorkflowHandle, maxWaitSecs int) (Response, error) {
	if maxWaitSecs <= 0 {
		maxWaitSecs = DefaultMaxWaitSecs
	}
	waitCtx, cancel := context.WithTimeout(ctx, time.Duration(maxWaitSecs)*time.Second)
	defer cancel()

	var result session.Result
	if err := handle.Wait(waitCtx, &result); err != nil {
		if waitCtx.Err() != nil {
			return Response{SessionID: sessionID, Status: nodes.StatusPendingInterrupt,
				Summary: "session is still running or awaiting a HITL decision"}, nil
		}
		return Response{SessionID: sessionID, Status: nodes.StatusError, Summary: err.Error()}, err
	}

	if result.Status != "" && result.Status != nodes.StatusPendingInterrupt {
		s.dropHandle(sessionID)
	}
	return Response{
		SessionID:  result.SessionID,
		Status:     result.Status,
		ResultRefs: result.ResultRefs,
		Summary:    result.Summary,
	}, nil
}

func (s *Service) putHandle(sessionID string, h engine.WorkflowHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles[sessionID] = h
}

func (s *Service) getHandle(sessionID string) (engine.WorkflowHandle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[sessionID]
	return h, ok
}

func (s *Service) dropHandle(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handles, sessionID)
}
