package platform

import "encoding/json"

// ChatflowSummary is the listing-view shape returned by ListChatflows.
type ChatflowSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Deployed    bool   `json:"deployed"`
	UpdatedAt   string `json:"updatedDate"`
}

// Chatflow is the full flow document: its flowData graph plus metadata. The
// platform stores FlowData as a JSON string; FlowDataRaw preserves it
// verbatim so internal/patchir can unmarshal it into patchir.FlowData
// without this package needing to import patchir.
type Chatflow struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	FlowDataRaw json.RawMessage `json:"flowData"`
	Deployed    bool            `json:"deployed"`
}

// CreateChatflowRequest is the body for CreateChatflow.
type CreateChatflowRequest struct {
	Name        string          `json:"name"`
	Category    string          `json:"category,omitempty"`
	FlowDataRaw json.RawMessage `json:"flowData"`
}

// UpdateChatflowRequest is the body for UpdateChatflow, carrying the
// expected prior content hash for WriteGuard's optimistic-concurrency
// check.
type UpdateChatflowRequest struct {
	FlowDataRaw  json.RawMessage `json:"flowData"`
	ExpectedHash string          `json:"expectedHash,omitempty"`
}

// PredictRequest is the body for Predict.
type PredictRequest struct {
	Question      string `json:"question"`
	OverrideConfig any    `json:"overrideConfig,omitempty"`
}

// PredictResponse is the response from Predict.
type PredictResponse struct {
	Text string `json:"text"`
}

// nodeSchemaDoc is the wire shape for one node type's schema, mapped onto
// nodeschema.Schema by fromNodeSchemaDoc in client.go.
type nodeSchemaDoc struct {
	Name          string           `json:"name"`
	Version       string           `json:"version"`
	Label         string           `json:"label"`
	BaseClasses   []string         `json:"baseClasses"`
	InputAnchors  []anchorDoc      `json:"inputAnchors"`
	InputParams   []paramDoc       `json:"inputParams"`
	OutputAnchors []outputAnchorDoc `json:"outputAnchors"`
	Credential    *credentialDecl  `json:"credential,omitempty"`
}

type anchorDoc struct {
	Name          string   `json:"name"`
	AcceptedTypes []string `json:"acceptedTypes"`
	Optional      bool     `json:"optional"`
}

type outputAnchorDoc struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type paramDoc struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Optional bool   `json:"optional"`
	Default  any    `json:"default,omitempty"`
}

type credentialDecl struct {
	Type string `json:"type"`
}

// credentialDoc is the wire shape for one stored credential.
type credentialDoc struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}
