// Package toolregistry implements the namespaced tool registry (spec §4.2):
// tools are registered under a domain namespace, exposed to the LLM per
// execution phase, and invoked through a dual-keyed executor so both
// "domain.name" and bare "name" resolve, with every call result normalized
// through internal/envelope.
package toolregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/flowcraft/chatagent/internal/envelope"
)

// Phase is one of the six execution phases a tool may be visible in.
type Phase string

const (
	PhaseDiscover Phase = "discover"
	PhasePlan     Phase = "plan"
	PhasePatch    Phase = "patch"
	PhaseTest     Phase = "test"
	PhaseEvaluate Phase = "evaluate"
	PhaseConverge Phase = "converge"
)

// AllPhases enumerates every valid phase, in the canonical graph order.
var AllPhases = []Phase{PhaseDiscover, PhasePlan, PhasePatch, PhaseTest, PhaseEvaluate, PhaseConverge}

type (
	// HandlerFunc executes a tool call with already-validated args, returning
	// the raw result (or error) that envelope.Wrap will normalize. Handlers
	// never wrap their own results.
	HandlerFunc func(ctx context.Context, args map[string]any) (any, error)

	// ToolDef is the LLM-facing tool declaration: name, description, the
	// phases it is offered in, and an optional JSON Schema for its
	// arguments.
	ToolDef struct {
		Name         string
		Description  string
		Phases       []Phase
		ParamsSchema json.RawMessage
	}

	// DomainTool pairs a ToolDef with its handler, for bulk registration via
	// RegisterDomain.
	DomainTool struct {
		Def     ToolDef
		Handler HandlerFunc
	}

	registeredTool struct {
		qualifiedName string
		def           ToolDef
		handler       HandlerFunc
		schema        *jsonschema.Schema
	}

	// Registry is the process-wide namespaced tool registry.
	Registry struct {
		mu sync.RWMutex
		// tools is keyed by "domain.name" (spec's namespaced form).
		tools map[string]*registeredTool
		// bareIndex maps a bare tool name to the first-registered qualified
		// name that claims it (spec §4.2's "deterministic winner" rule).
		bareIndex map[string]string
		compiler  *jsonschema.Compiler
	}
)

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		tools:     make(map[string]*registeredTool),
		bareIndex: make(map[string]string),
		compiler:  jsonschema.NewCompiler(),
	}
}

// Register adds one tool under namespace, rejecting a collision on the
// qualified "namespace.name" key (spec §4.2: "Namespace collisions are
// rejected at registration").
func (r *Registry) Register(namespace string, def ToolDef, fn HandlerFunc) error {
	if namespace == "" || def.Name == "" {
		return fmt.Errorf("toolregistry: namespace and tool name are required")
	}
	if fn == nil {
		return fmt.Errorf("toolregistry: handler is required for %s.%s", namespace, def.Name)
	}
	if err := validatePhases(def.Phases); err != nil {
		return err
	}

	qualified := namespace + "." + def.Name

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[qualified]; exists {
		return fmt.Errorf("toolregistry: %s is already registered", qualified)
	}

	schema, err := compileSchema(r.compiler, qualified, def.ParamsSchema)
	if err != nil {
		return err
	}

	r.tools[qualified] = &registeredTool{qualifiedName: qualified, def: def, handler: fn, schema: schema}
	if _, taken := r.bareIndex[def.Name]; !taken {
		r.bareIndex[def.Name] = qualified
	}
	return nil
}

// RegisterDomain bulk-registers every tool in domainTools under namespace,
// stopping at the first registration failure.
func (r *Registry) RegisterDomain(namespace string, domainTools []DomainTool) error {
	for _, dt := range domainTools {
		if err := r.Register(namespace, dt.Def, dt.Handler); err != nil {
			return err
		}
	}
	return nil
}

func validatePhases(phases []Phase) error {
	if len(phases) == 0 {
		return fmt.Errorf("toolregistry: at least one phase is required")
	}
	for _, p := range phases {
		valid := false
		for _, ap := range AllPhases {
			if p == ap {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("toolregistry: unknown phase %q", p)
		}
	}
	return nil
}

func compileSchema(compiler *jsonschema.Compiler, qualified string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("toolregistry: %s: invalid params schema: %w", qualified, err)
	}
	resourceURL := "mem://" + qualified + "-params.json"
	if err := compiler.AddResource(resourceURL, doc); err != nil {
		return nil, fmt.Errorf("toolregistry: %s: %w", qualified, err)
	}
	schema, err := compiler.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("toolregistry: %s: %w", qualified, err)
	}
	return schema, nil
}

// ToolDefs returns the ToolDef for every tool visible in phase, sorted by
// qualified name for deterministic prompt assembly.
func (r *Registry) ToolDefs(phase Phase) []ToolDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, t := range r.tools {
		if hasPhase(t.def.Phases, phase) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]ToolDef, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name].def)
	}
	return out
}

func hasPhase(phases []Phase, phase Phase) bool {
	for _, p := range phases {
		if p == phase {
			return true
		}
	}
	return false
}

// Executor returns a dual-keyed map of every tool visible in phase: both
// its qualified "domain.name" key and, for the first-registered owner of a
// bare name, that bare name too (spec §4.2).
func (r *Registry) Executor(phase Phase) map[string]HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]HandlerFunc)
	for name, t := range r.tools {
		if !hasPhase(t.def.Phases, phase) {
			continue
		}
		out[name] = t.handler
	}
	for bare, qualified := range r.bareIndex {
		if t, ok := r.tools[qualified]; ok && hasPhase(t.def.Phases, phase) {
			out[bare] = t.handler
		}
	}
	return out
}

// Context renders a short human-readable listing of every tool visible in
// phase, suitable for inclusion in a system prompt.
func (r *Registry) Context(phase Phase) string {
	defs := r.ToolDefs(phase)
	if len(defs) == 0 {
		return "No tools available."
	}
	var b strings.Builder
	for _, d := range defs {
		b.WriteString("- ")
		b.WriteString(d.Name)
		if d.Description != "" {
			b.WriteString(": ")
			b.WriteString(d.Description)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Call resolves toolName (qualified or bare) against the full registry
// (not phase-scoped — phase visibility is a prompting concern enforced by
// ToolDefs/Executor, not an invocation-time restriction), validates args
// against its ParamsSchema if one is configured, invokes its handler, and
// wraps the outcome through envelope.Wrap.
func (r *Registry) Call(ctx context.Context, toolName string, args map[string]any) envelope.ToolResult {
	r.mu.RLock()
	t, ok := r.tools[toolName]
	if !ok {
		if qualified, bareOK := r.bareIndex[toolName]; bareOK {
			t, ok = r.tools[qualified]
		}
	}
	r.mu.RUnlock()

	if !ok {
		return envelope.Wrap(toolName, nil, fmt.Errorf("toolregistry: unknown tool %q", toolName))
	}

	if t.schema != nil {
		if err := t.schema.Validate(toJSONSchemaInput(args)); err != nil {
			return envelope.Wrap(t.qualifiedName, nil, fmt.Errorf("argument validation failed: %w", err))
		}
	}

	raw, err := t.handler(ctx, args)
	return envelope.Wrap(t.qualifiedName, raw, err)
}

// toJSONSchemaInput round-trips args through JSON so jsonschema/v6 sees
// plain any-typed values (map[string]any, []any, float64, ...) regardless
// of what concrete numeric/slice types a caller passed in args.
func toJSONSchemaInput(args map[string]any) any {
	b, err := json.Marshal(args)
	if err != nil {
		return args
	}
	var decoded any
	if err := json.Unmarshal(b, &decoded); err != nil {
		return args
	}
	return decoded
}
