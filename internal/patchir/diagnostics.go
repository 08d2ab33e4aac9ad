package patchir

import "fmt"

// Code classifies a compile diagnostic for downstream routing (spec §4.4):
// repair_schema reacts to CodeSchemaMismatch, preflight_validate_patch
// treats CodeStructural as terminal for the current op list, and
// CodeOther falls through to generic error handling.
type Code string

const (
	CodeSchemaMismatch Code = "schema_mismatch"
	CodeStructural     Code = "structural"
	CodeOther          Code = "other"
)

// Diagnostic is one compile-time failure, indexed to the op that produced
// it so the caller can report precisely which operation in the list failed.
type Diagnostic struct {
	OpIndex int    `json:"op_index"`
	Code    Code   `json:"code"`
	Detail  string `json:"detail"`
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("op[%d] %s: %s", d.OpIndex, d.Code, d.Detail)
}

// DiagnosticList is a non-empty collection of Diagnostics, implementing
// error so Compile's failure path returns a single conventional error value
// while still exposing the full structured list to the caller.
type DiagnosticList []Diagnostic

func (l DiagnosticList) Error() string {
	if len(l) == 0 {
		return "patchir: compile failed"
	}
	return l[0].Error()
}

// DiffSummary describes what a successful compile changed relative to its
// base graph, for artifacts.diff_summary and the HITL_plan/HITL_review
// transcripts.
type DiffSummary struct {
	NodesAdded      []string `json:"nodes_added"`
	ParamsChanged   []string `json:"params_changed"`
	EdgesAdded      []string `json:"edges_added"`
	CredentialsBound []string `json:"credentials_bound"`
}

func (d *DiffSummary) empty() bool {
	return len(d.NodesAdded) == 0 && len(d.ParamsChanged) == 0 &&
		len(d.EdgesAdded) == 0 && len(d.CredentialsBound) == 0
}
