// Package domain defines the DomainCapability shape (spec §9): the
// pluggable contract a second domain (a different low-code platform, an
// HR-system MCP, etc.) implements so the staged graph can discover,
// compile, validate, test, and evaluate against it without any node
// knowing which concrete domain is wired in. The chatflow platform itself
// is just the first, reference implementation of this shape.
package domain

import "context"

type (
	// DiscoverResult is what a capability's discovery step contributes to
	// the discover phase: domain-specific facts (already prompt-size
	// bounded) a plan can reason about.
	DiscoverResult struct {
		Facts map[string]any
	}

	// CompiledOps is the result of compiling a plan into domain operations;
	// Ops is deliberately `any` here since a capability's own op type
	// (patchir.Op for the chatflow domain) is domain-specific — the graph
	// only ever threads it opaquely between a capability's own Compile and
	// Validate methods.
	CompiledOps struct {
		Ops   any
		Scope map[string]any
	}

	// ValidateResult reports whether compiled ops passed domain-specific
	// validation, mirroring the chatflow patch compiler's own
	// Result/DiagnosticList shape closely enough that a node can treat
	// either uniformly.
	ValidateResult struct {
		OK            bool
		FailureType   string
		MissingTypes  []string
		Detail        string
	}

	// GeneratedTest is one domain-specific test case a capability wants
	// run against the applied change (the chatflow domain's test node
	// issues exactly one happy-path and one edge-case GeneratedTest).
	GeneratedTest struct {
		Name  string
		Input any
	}

	// TestOutcome reports one test's result.
	TestOutcome struct {
		Name       string
		Passed     bool
		StatusCode int
		BodyExcerpt string
	}

	// EvalResult is a capability's verdict on a round of applied changes.
	EvalResult struct {
		Verdict     string // "done" | "iterate" | "done-with-failure"
		DiffSummary string
	}

	// Capability is the pluggable per-domain contract the staged graph
	// consumes through the tool registry and a small set of direct calls;
	// no node in internal/graph/nodes contains a type switch or an
	// if-domain-equals branch — new domains register a Capability and the
	// graph's behavior generalizes automatically (spec §9: "implementers
	// choose between sum-typed variants or interface-based dispatch;
	// either preserves the contract" — this repo chooses interface-based
	// dispatch).
	Capability interface {
		// Name identifies the domain for facts/events/pattern filtering.
		Name() string
		// Discover gathers domain-specific context for the discover phase.
		Discover(ctx context.Context, requirement string) (DiscoverResult, error)
		// CompileOps lowers a plan's text/contract into domain ops.
		CompileOps(ctx context.Context, planText string, scope map[string]any) (CompiledOps, error)
		// Validate checks compiled ops against domain-specific structural
		// rules, beyond whatever the generic patch compiler already did.
		Validate(ctx context.Context, ops any) (ValidateResult, error)
		// GenerateTests produces the bounded test set to run after apply.
		GenerateTests(ctx context.Context, planText string) ([]GeneratedTest, error)
		// Evaluate produces the verdict for one iteration's applied change.
		Evaluate(ctx context.Context, outcomes []TestOutcome) (EvalResult, error)
	}

	// Registry looks up a Capability by domain name. Most deployments
	// register exactly one (the chatflow platform); a second domain is
	// added by registering another Capability under its own name.
	Registry struct {
		byName map[string]Capability
	}
)

// NewRegistry constructs an empty capability Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Capability)}
}

// Register adds cap under its own Name(), rejecting a collision.
func (r *Registry) Register(cap Capability) error {
	if cap == nil {
		return errCapabilityNil
	}
	name := cap.Name()
	if _, exists := r.byName[name]; exists {
		return &duplicateCapabilityError{Name: name}
	}
	r.byName[name] = cap
	return nil
}

// Get returns the capability registered under name, if any.
func (r *Registry) Get(name string) (Capability, bool) {
	cap, ok := r.byName[name]
	return cap, ok
}

type duplicateCapabilityError struct{ Name string }

func (e *duplicateCapabilityError) Error() string {
	return "domain: capability " + e.Name + " already registered"
}

var errCapabilityNil = &nilCapabilityError{}

type nilCapabilityError struct{}

func (*nilCapabilityError) Error() string { return "domain: cannot register a nil capability" }
