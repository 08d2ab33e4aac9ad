package patchir

import (
	"context"
	"fmt"
	"strings"

	"github.com/flowcraft/chatagent/internal/knowledge/nodeschema"
)

// CredentialResolver is the narrow contract Compile needs from the
// credential knowledge store: whether id exists and, if so, its declared
// type. Implemented by internal/knowledge/credential.Store.
type CredentialResolver interface {
	Resolve(ctx context.Context, id string) (credType string, ok bool)
}

// SchemaLookup is the narrow contract Compile needs from the node-schema
// knowledge store. Implemented by *nodeschema.Store.
type SchemaLookup interface {
	GetOrRepair(ctx context.Context, name string) (nodeschema.Schema, error)
}

// Result is everything Compile returns (spec §4.4): proposed_flow_data is
// populated only when Errors is empty.
type Result struct {
	ProposedFlowData FlowData
	DiffSummary      DiffSummary
	Errors           DiagnosticList
}

// OK reports whether compilation succeeded with no diagnostics.
func (r Result) OK() bool { return len(r.Errors) == 0 }

// Compile lowers ops onto base (or an empty graph if base is nil) into a
// compiled flow graph, per the six-step algorithm (spec §4.4). schemas
// resolves node types via get_or_repair; credentials resolves bound
// credential ids during the final validation pass. Compile never mutates
// base.
func Compile(ctx context.Context, base *FlowData, ops []Op, schemas SchemaLookup, credentials CredentialResolver) Result {
	var working FlowData
	if base != nil {
		working = base.clone()
	} else {
		working = FlowData{Nodes: []FlowNode{}, Edges: []FlowEdge{}}
	}

	var diag DiagnosticList
	var diff DiffSummary

	for i, op := range ops {
		switch {
		case op.AddNode != nil:
			if err := applyAddNode(ctx, &working, &diff, schemas, *op.AddNode); err != nil {
				diag = append(diag, toDiagnostic(i, err))
			}
		case op.SetParam != nil:
			if err := applySetParam(&working, &diff, *op.SetParam); err != nil {
				diag = append(diag, toDiagnostic(i, err))
			}
		case op.Connect != nil:
			if err := applyConnect(&working, &diff, *op.Connect); err != nil {
				diag = append(diag, toDiagnostic(i, err))
			}
		case op.BindCredential != nil:
			if err := applyBindCredential(&working, &diff, *op.BindCredential); err != nil {
				diag = append(diag, toDiagnostic(i, err))
			}
		default:
			diag = append(diag, Diagnostic{OpIndex: i, Code: CodeOther, Detail: "empty op: no variant set"})
		}
	}

	if len(diag) > 0 {
		return Result{Errors: diag}
	}

	if errs := ValidateFlowData(ctx, working, credentials); len(errs) > 0 {
		for i := range errs {
			errs[i].OpIndex = len(ops)
		}
		return Result{Errors: errs}
	}

	return Result{ProposedFlowData: working, DiffSummary: diff}
}

type opError struct {
	code   Code
	detail string
}

func (e *opError) Error() string { return e.detail }

func toDiagnostic(opIndex int, err error) Diagnostic {
	if oe, ok := err.(*opError); ok {
		return Diagnostic{OpIndex: opIndex, Code: oe.code, Detail: oe.detail}
	}
	return Diagnostic{OpIndex: opIndex, Code: CodeOther, Detail: err.Error()}
}

func applyAddNode(ctx context.Context, f *FlowData, diff *DiffSummary, schemas SchemaLookup, op AddNode) error {
	if f.nodeIndex(op.NodeID) >= 0 {
		return &opError{CodeStructural, fmt.Sprintf("node %q already exists", op.NodeID)}
	}
	schema, err := schemas.GetOrRepair(ctx, op.NodeType)
	if err != nil {
		return &opError{CodeSchemaMismatch, fmt.Sprintf("unknown node type %q: %s", op.NodeType, err.Error())}
	}

	inputs := make(map[string]any, len(schema.InputParams))
	for _, p := range schema.InputParams {
		if p.Default != nil {
			inputs[p.Name] = p.Default
		}
	}
	for k, v := range op.Params {
		inputs[k] = v
	}

	node := FlowNode{
		ID:            op.NodeID,
		NodeType:      op.NodeType,
		Category:      schema.Label,
		BaseClasses:   append([]string(nil), schema.BaseClasses...),
		Position:      op.Position,
		InputAnchors:  append([]nodeschema.Anchor(nil), schema.InputAnchors...),
		InputParams:   append([]nodeschema.Param(nil), schema.InputParams...),
		OutputAnchors: append([]nodeschema.OutputAnchor(nil), schema.OutputAnchors...),
		Data:          NodeData{Inputs: inputs},
	}
	f.Nodes = append(f.Nodes, node)
	diff.NodesAdded = append(diff.NodesAdded, op.NodeID)
	return nil
}

func applySetParam(f *FlowData, diff *DiffSummary, op SetParam) error {
	idx := f.nodeIndex(op.NodeID)
	if idx < 0 {
		return &opError{CodeStructural, fmt.Sprintf("set_param: node %q not found", op.NodeID)}
	}
	node := &f.Nodes[idx]
	var param *nodeschema.Param
	for i := range node.InputParams {
		if node.InputParams[i].Name == op.ParamName {
			param = &node.InputParams[i]
			break
		}
	}
	if param == nil {
		return &opError{CodeSchemaMismatch, fmt.Sprintf("node %q has no param %q", op.NodeID, op.ParamName)}
	}
	if !valueMatchesType(op.Value, param.Type) {
		return &opError{CodeStructural, fmt.Sprintf("param %q on node %q expects type %q", op.ParamName, op.NodeID, param.Type)}
	}
	node.Data.Inputs[op.ParamName] = op.Value
	diff.ParamsChanged = append(diff.ParamsChanged, fmt.Sprintf("%s.%s", op.NodeID, op.ParamName))
	return nil
}

func applyBindCredential(f *FlowData, diff *DiffSummary, op BindCredential) error {
	idx := f.nodeIndex(op.NodeID)
	if idx < 0 {
		return &opError{CodeStructural, fmt.Sprintf("bind_credential: node %q not found", op.NodeID)}
	}
	node := &f.Nodes[idx]
	// BindCredential is validated against the node's schema declaration at
	// AddNode time; since FlowNode doesn't retain the schema's Credential
	// decl directly, the check is: a node accepts exactly the credential
	// type its own input params/anchors imply via the "credential" param
	// convention, defaulting to permissive accept-and-bind when the node
	// declares no opinion (the schema lookup already rejected unknown
	// node types at AddNode time).
	if existing, ok := node.Data.Inputs["credential_type"]; ok {
		if existingType, _ := existing.(string); existingType != "" && existingType != op.CredentialType {
			return &opError{CodeSchemaMismatch, fmt.Sprintf("node %q declares credential type %q, got %q", op.NodeID, existingType, op.CredentialType)}
		}
	}
	node.Data.Credential = op.CredentialID
	node.Data.Inputs["credential"] = op.CredentialID
	diff.CredentialsBound = append(diff.CredentialsBound, op.NodeID)
	return nil
}

func applyConnect(f *FlowData, diff *DiffSummary, op Connect) error {
	srcIdx := f.nodeIndex(op.SourceID)
	if srcIdx < 0 {
		return &opError{CodeStructural, fmt.Sprintf("connect: source node %q not found", op.SourceID)}
	}
	tgtIdx := f.nodeIndex(op.TargetID)
	if tgtIdx < 0 {
		return &opError{CodeStructural, fmt.Sprintf("connect: target node %q not found", op.TargetID)}
	}
	src := &f.Nodes[srcIdx]
	tgt := &f.Nodes[tgtIdx]

	srcTypes, multiOutput, err := resolveSourceAnchor(src, op.SourceAnchor)
	if err != nil {
		return err
	}
	var tgtAnchor *nodeschema.Anchor
	for i := range tgt.InputAnchors {
		if tgt.InputAnchors[i].Name == op.TargetAnchor {
			tgtAnchor = &tgt.InputAnchors[i]
			break
		}
	}
	if tgtAnchor == nil {
		return &opError{CodeSchemaMismatch, fmt.Sprintf("target node %q has no input anchor %q", op.TargetID, op.TargetAnchor)}
	}
	if !typesIntersect(tgtAnchor.AcceptedTypes, srcTypes) {
		return &opError{CodeStructural, fmt.Sprintf("anchor type mismatch: %s accepts %v, %s produces %v",
			op.TargetAnchor, tgtAnchor.AcceptedTypes, op.SourceAnchor, srcTypes)}
	}

	sourceHandle := EncodeHandle(src.ID, DirectionOutput, op.SourceAnchor, srcTypes)
	targetHandle := EncodeHandle(tgt.ID, DirectionInput, op.TargetAnchor, tgtAnchor.AcceptedTypes)
	f.Edges = append(f.Edges, FlowEdge{
		Source: src.ID, SourceHandle: sourceHandle,
		Target: tgt.ID, TargetHandle: targetHandle,
	})

	if multiOutput {
		if src.Outputs == nil {
			src.Outputs = make(map[string]any)
		}
		src.Outputs["output"] = op.SourceAnchor
	}

	diff.EdgesAdded = append(diff.EdgesAdded, fmt.Sprintf("%s.%s->%s.%s", op.SourceID, op.SourceAnchor, op.TargetID, op.TargetAnchor))
	return nil
}

// resolveSourceAnchor finds the output anchor named name on node, handling
// the multi-output "options" form where the schema declares a single
// anchor literally named "options" whose Type is the pipe-joined
// disjunction of the real selectable anchor names (spec §3).
func resolveSourceAnchor(node *FlowNode, name string) (types []string, multiOutput bool, err error) {
	if hasOptionsAnchor(node.OutputAnchors) {
		options := strings.Split(node.OutputAnchors[0].Type, "|")
		for _, opt := range options {
			if opt == name {
				return []string{name}, true, nil
			}
		}
		return nil, false, &opError{CodeSchemaMismatch, fmt.Sprintf("node %q has no output option %q", node.ID, name)}
	}
	for _, a := range node.OutputAnchors {
		if a.Name == name {
			return strings.Split(a.Type, "|"), false, nil
		}
	}
	return nil, false, &opError{CodeSchemaMismatch, fmt.Sprintf("node %q has no output anchor %q", node.ID, name)}
}

func typesIntersect(accepted, produced []string) bool {
	set := make(map[string]struct{}, len(produced))
	for _, t := range produced {
		set[strings.TrimSpace(t)] = struct{}{}
	}
	for _, t := range accepted {
		if _, ok := set[strings.TrimSpace(t)]; ok {
			return true
		}
	}
	return false
}

func valueMatchesType(v any, declared string) bool {
	if v == nil {
		return true
	}
	switch declared {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		switch v.(type) {
		case int, int64, float64, float32:
			return true
		}
		return false
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	case "array":
		return reflectSliceLike(v)
	default:
		return true
	}
}

func reflectSliceLike(v any) bool {
	switch v.(type) {
	case []any, []string, []map[string]any:
		return true
	default:
		return false
	}
}

// ValidateFlowData runs the final validation pass (spec §4.4 step 6): every
// handle string parses, no edge dangles, every required non-optional
// anchor is either connected or defaulted, and every credential-bearing
// node agrees on both credential fields and resolves against credentials.
func ValidateFlowData(ctx context.Context, f FlowData, credentials CredentialResolver) DiagnosticList {
	var diag DiagnosticList

	connected := make(map[string]bool) // "nodeID.anchorName" -> true, for input anchors
	for _, e := range f.Edges {
		if _, err := ParseHandle(e.SourceHandle); err != nil {
			diag = append(diag, Diagnostic{Code: CodeStructural, Detail: err.Error()})
			continue
		}
		parsed, err := ParseHandle(e.TargetHandle)
		if err != nil {
			diag = append(diag, Diagnostic{Code: CodeStructural, Detail: err.Error()})
			continue
		}
		if f.nodeIndex(e.Source) < 0 || f.nodeIndex(e.Target) < 0 {
			diag = append(diag, Diagnostic{Code: CodeStructural, Detail: fmt.Sprintf("dangling edge %s->%s", e.Source, e.Target)})
			continue
		}
		connected[parsed.NodeID+"."+parsed.Name] = true
	}

	for _, n := range f.Nodes {
		for _, a := range n.InputAnchors {
			if a.Optional {
				continue
			}
			if connected[n.ID+"."+a.Name] {
				continue
			}
			if _, hasDefault := n.Data.Inputs[a.Name]; hasDefault {
				continue
			}
			diag = append(diag, Diagnostic{Code: CodeStructural, Detail: fmt.Sprintf("node %q required anchor %q is neither connected nor defaulted", n.ID, a.Name)})
		}

		if n.Data.Credential == "" {
			continue
		}
		if n.Data.Credential != fmt.Sprintf("%v", n.Data.Inputs["credential"]) {
			diag = append(diag, Diagnostic{Code: CodeStructural, Detail: fmt.Sprintf("node %q credential fields disagree", n.ID)})
			continue
		}
		if credentials == nil {
			continue
		}
		if _, ok := credentials.Resolve(ctx, n.Data.Credential); !ok {
			diag = append(diag, Diagnostic{Code: CodeOther, Detail: fmt.Sprintf("node %q credential %q does not resolve", n.ID, n.Data.Credential)})
		}
	}

	return diag
}
