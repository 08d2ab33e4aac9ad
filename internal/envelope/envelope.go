// Package envelope implements the single ToolResult wrapping point (spec
// §4.1): every tool function, LLM-callable or internal, returns a ToolResult
// produced by Wrap so that only a short, bounded summary ever reaches LLM
// context, while the full payload stays in facts/artifacts/debug.
package envelope

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/flowcraft/chatagent/internal/toolerrors"
)

const (
	maxGeneratedSummary = 300
	maxDictSummary      = 200
	maxScalarSummary    = 300
	truncationMarker    = "...[%d chars truncated]"
)

type (
	// ToolResult is the normalized shape every tool invocation returns.
	// Only Summary is ever placed in the LLM-visible message transcript;
	// Facts/Data/Artifacts/Error are routed to their respective state
	// buckets (internal/state).
	ToolResult struct {
		OK        bool           `json:"ok"`
		Summary   string         `json:"summary"`
		Facts     map[string]any `json:"facts,omitempty"`
		Data      any            `json:"data,omitempty"`
		Artifacts map[string]any `json:"artifacts,omitempty"`
		Error     *ErrorInfo     `json:"error,omitempty"`
		// Bounds reports truncation metadata for list-shaped results (priority
		// 5), surfaced so the LLM can ask for refinement instead of guessing.
		Bounds *Bounds `json:"bounds,omitempty"`
	}

	// ErrorInfo carries the normalized {type, message} pair for a failed
	// tool call.
	ErrorInfo struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}

	// Bounds describes how a tool result has been bounded relative to the
	// full underlying data set, mirroring the teacher's agent.Bounds
	// contract. Returned is the number of items in the bounded view, Total
	// the best-effort pre-truncation count, and RefinementHint a short,
	// human-readable suggestion for narrowing the query.
	Bounds struct {
		Returned       int    `json:"returned"`
		Total          *int   `json:"total,omitempty"`
		Truncated      bool   `json:"truncated"`
		RefinementHint string `json:"refinement_hint,omitempty"`
	}

	// BoundedResult is an optional interface implemented by raw tool
	// results that know their own boundedness. Wrap prefers it over
	// heuristic list inspection.
	BoundedResult interface {
		Bounds() Bounds
	}

	// namedEntity is the shape Wrap recognizes for priority rule 3.
	namedEntity interface {
		EntityID() string
		EntityName() string
		EntityKind() string
	}

	// snapshotAck is the shape Wrap recognizes for priority rule 4.
	snapshotAck interface {
		SnapshotLabel() string
		SnapshotTotal() int
	}

	// validationSignal is the shape Wrap recognizes for priority rule 2.
	validationSignal interface {
		Valid() bool
		FailingAnchors() []string
	}
)

// Wrap is the single transformation point every tool result passes through
// (spec §4.1). toolName is the bare or namespaced tool identifier used in
// generated summaries. raw is whatever the tool handler returned before
// normalization; err is any error the handler returned alongside it.
//
// Priority rules are evaluated top-down; the first match wins.
func Wrap(toolName string, raw any, err error) ToolResult {
	if err != nil {
		return wrapError(toolName, err)
	}
	if raw == nil {
		return ToolResult{OK: true, Summary: fmt.Sprintf("%s completed.", toolName)}
	}

	if vs, ok := raw.(validationSignal); ok {
		return wrapValidation(toolName, vs)
	}
	if ne, ok := raw.(namedEntity); ok {
		return wrapNamedEntity(ne)
	}
	if sa, ok := raw.(snapshotAck); ok {
		return wrapSnapshot(sa)
	}

	rv := reflectSlice(raw)
	if rv != nil {
		return wrapList(toolName, raw, rv)
	}

	if m, ok := raw.(map[string]any); ok {
		return wrapDict(toolName, m)
	}

	return wrapScalar(toolName, raw)
}

func wrapError(toolName string, err error) ToolResult {
	te := toolerrors.FromError(err)
	return ToolResult{
		OK:      false,
		Summary: truncate(fmt.Sprintf("%s failed: %s", toolName, te.Error()), maxGeneratedSummary),
		Error:   &ErrorInfo{Type: errorType(err), Message: te.Error()},
	}
}

func errorType(err error) string {
	type typed interface{ ErrorType() string }
	if t, ok := err.(typed); ok {
		return t.ErrorType()
	}
	return "error"
}

func wrapValidation(toolName string, vs validationSignal) ToolResult {
	status := "pass"
	if !vs.Valid() {
		status = "fail"
	}
	summary := fmt.Sprintf("%s validation: %s", toolName, status)
	if failing := vs.FailingAnchors(); len(failing) > 0 {
		summary += fmt.Sprintf(" (failing: %s)", strings.Join(failing, ", "))
	}
	return ToolResult{OK: vs.Valid(), Summary: truncate(summary, 300)}
}

func wrapNamedEntity(ne namedEntity) ToolResult {
	kind := ne.EntityKind()
	if kind == "" {
		kind = "Entity"
	}
	summary := fmt.Sprintf("%s %q (id=%s).", kind, ne.EntityName(), ne.EntityID())
	return ToolResult{
		OK:        true,
		Summary:   truncate(summary, maxGeneratedSummary),
		Artifacts: map[string]any{"ids": []string{ne.EntityID()}},
	}
}

func wrapSnapshot(sa snapshotAck) ToolResult {
	summary := fmt.Sprintf("Snapshot saved as %s (total %d).", sa.SnapshotLabel(), sa.SnapshotTotal())
	return ToolResult{OK: true, Summary: truncate(summary, maxGeneratedSummary)}
}

func wrapList(toolName string, raw any, items []any) ToolResult {
	n := len(items)
	summary := fmt.Sprintf("%s returned %d item(s).", toolName, n)
	var labels []string
	for i, it := range items {
		if i >= 5 {
			break
		}
		if ne, ok := it.(namedEntity); ok {
			labels = append(labels, ne.EntityName())
		}
	}
	if len(labels) > 0 {
		summary += " Top: " + strings.Join(labels, ", ") + "."
	}
	result := ToolResult{OK: true, Summary: truncate(summary, maxGeneratedSummary), Data: raw}
	if br, ok := raw.(BoundedResult); ok {
		b := br.Bounds()
		result.Bounds = &b
	}
	return result
}

func wrapDict(toolName string, m map[string]any) ToolResult {
	canon := canonicalJSON(m)
	return ToolResult{
		OK:      true,
		Summary: truncate(canon, maxDictSummary),
		Data:    m,
	}
}

func wrapScalar(toolName string, raw any) ToolResult {
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	default:
		s = fmt.Sprintf("%v", v)
	}
	return ToolResult{OK: true, Summary: truncate(s, maxScalarSummary), Data: raw}
}

// canonicalJSON produces a deterministic JSON encoding (sorted keys) of a
// map so dict summaries are stable across runs with the same content,
// mirroring the schema-hash canonicalization used in internal/knowledge.
func canonicalJSON(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make(map[string]any, len(m))
	for _, k := range keys {
		ordered[k] = m[k]
	}
	b, err := json.Marshal(ordered)
	if err != nil {
		return fmt.Sprintf("%v", m)
	}
	return string(b)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	n := len(s) - max
	return s[:max] + fmt.Sprintf(truncationMarker, n)
}

// reflectSlice returns raw as a []any if it is any slice type, without
// requiring callers to pre-convert. Returns nil for non-slice values and
// byte slices.
func reflectSlice(raw any) []any {
	switch v := raw.(type) {
	case []any:
		return v
	case []map[string]any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = e
		}
		return out
	case []string:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = e
		}
		return out
	default:
		rv := reflect.ValueOf(raw)
		if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
			return nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
}
