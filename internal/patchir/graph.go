package patchir

import (
	"fmt"
	"strings"

	"github.com/flowcraft/chatagent/internal/knowledge/nodeschema"
)

type (
	// FlowData is the compiled flow graph (spec §3). It is the payload
	// stored at artifacts.compiled_flow_data and, once written, becomes the
	// platform's canonical flow representation.
	FlowData struct {
		Nodes []FlowNode `json:"nodes"`
		Edges []FlowEdge `json:"edges"`
	}

	// FlowNode is one instantiated node in a compiled flow. Category and
	// BaseClasses mirror the schema at compile time so the graph is
	// self-describing without a second schema lookup.
	FlowNode struct {
		ID            string                    `json:"id"`
		NodeType      string                    `json:"node_type"`
		Category      string                    `json:"category,omitempty"`
		BaseClasses   []string                  `json:"base_classes,omitempty"`
		Position      Position                  `json:"position"`
		InputAnchors  []nodeschema.Anchor       `json:"input_anchors"`
		InputParams   []nodeschema.Param        `json:"input_params"`
		OutputAnchors []nodeschema.OutputAnchor `json:"output_anchors"`
		Data          NodeData                  `json:"data"`
		Outputs       map[string]any            `json:"outputs,omitempty"`
	}

	// NodeData holds a node's live parameter values and, when applicable,
	// its bound credential — duplicated at both Credential and
	// Inputs["credential"] per the binding invariant (spec §3 invariant 2).
	NodeData struct {
		Inputs     map[string]any `json:"inputs"`
		Credential string         `json:"credential,omitempty"`
	}

	// FlowEdge connects a source anchor to a target anchor via their
	// encoded handle strings.
	FlowEdge struct {
		Source       string `json:"source"`
		SourceHandle string `json:"source_handle"`
		Target       string `json:"target"`
		TargetHandle string `json:"target_handle"`
	}

	// Direction distinguishes a handle's input vs output role in the
	// encoding grammar.
	Direction string
)

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// EncodeHandle composes a handle string per spec §3:
// "{nodeId}-{direction}-{name}-{types joined by |}".
func EncodeHandle(nodeID string, dir Direction, name string, types []string) string {
	return fmt.Sprintf("%s-%s-%s-%s", nodeID, dir, name, strings.Join(types, "|"))
}

// ParsedHandle is a handle string decomposed back into its four fields.
type ParsedHandle struct {
	NodeID    string
	Direction Direction
	Name      string
	Types     []string
}

// ParseHandle decodes a handle string produced by EncodeHandle. It returns
// an error if the string does not split into at least four hyphen-delimited
// segments, tolerating hyphens inside nodeId by taking the final segment as
// the type list and the two before it as direction and name, and joining
// whatever precedes them back into nodeId.
func ParseHandle(handle string) (ParsedHandle, error) {
	parts := strings.Split(handle, "-")
	n := len(parts)
	if n < 4 {
		return ParsedHandle{}, fmt.Errorf("patchir: malformed handle %q", handle)
	}
	dir := Direction(parts[n-3])
	if dir != DirectionInput && dir != DirectionOutput {
		return ParsedHandle{}, fmt.Errorf("patchir: malformed handle %q: unknown direction %q", handle, parts[n-3])
	}
	var types []string
	if parts[n-1] != "" {
		types = strings.Split(parts[n-1], "|")
	}
	return ParsedHandle{
		NodeID:    strings.Join(parts[:n-3], "-"),
		Direction: dir,
		Name:      parts[n-2],
		Types:     types,
	}, nil
}

// clone deep-copies f so Compile never mutates the base graph it was
// handed.
func (f FlowData) clone() FlowData {
	out := FlowData{
		Nodes: make([]FlowNode, len(f.Nodes)),
		Edges: append([]FlowEdge(nil), f.Edges...),
	}
	for i, n := range f.Nodes {
		out.Nodes[i] = n.clone()
	}
	return out
}

func (n FlowNode) clone() FlowNode {
	cp := n
	cp.BaseClasses = append([]string(nil), n.BaseClasses...)
	cp.InputAnchors = append([]nodeschema.Anchor(nil), n.InputAnchors...)
	cp.InputParams = append([]nodeschema.Param(nil), n.InputParams...)
	cp.OutputAnchors = append([]nodeschema.OutputAnchor(nil), n.OutputAnchors...)
	cp.Data.Inputs = make(map[string]any, len(n.Data.Inputs))
	for k, v := range n.Data.Inputs {
		cp.Data.Inputs[k] = v
	}
	if n.Outputs != nil {
		cp.Outputs = make(map[string]any, len(n.Outputs))
		for k, v := range n.Outputs {
			cp.Outputs[k] = v
		}
	}
	return cp
}

func (f *FlowData) nodeIndex(id string) int {
	for i := range f.Nodes {
		if f.Nodes[i].ID == id {
			return i
		}
	}
	return -1
}

// hasOptionsAnchor reports whether a node schema encodes multi-output form:
// a single anchor named "options" whose Type is itself a pipe-joined
// disjunction of the real output names (spec §3's "options-typed anchor").
func hasOptionsAnchor(anchors []nodeschema.OutputAnchor) bool {
	return len(anchors) == 1 && anchors[0].Name == "options"
}
