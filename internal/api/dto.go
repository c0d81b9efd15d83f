package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/herald-mesh/herald/internal/ledger"
	"github.com/herald-mesh/herald/internal/nodes"
	"github.com/herald-mesh/herald/internal/pipeline"
	"github.com/herald-mesh/herald/internal/schema"
	"github.com/herald-mesh/herald/internal/telemetry"
)

// RegisterNodeRequest is the request body for registering a node. PublicKey,
// when set, is a base64-encoded raw Ed25519 public key; the node then keeps
// its private key. When omitted, the custodian generates a pair and returns
// both halves once.
type RegisterNodeRequest struct {
	NodeID       string   `json:"node_id" example:"agent-7" validate:"required"`
	NodeType     string   `json:"node_type" example:"ai" enums:"ai,blockchain,hybrid" validate:"required"`
	Capabilities []string `json:"capabilities" example:"inference,translation"`
	Endpoint     string   `json:"endpoint,omitempty" example:"http://agent-7.mesh:9000"`
	PublicKey    string   `json:"public_key,omitempty"`
}

func (r RegisterNodeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.NodeID, validation.Required, validation.Length(1, 128)),
		validation.Field(&r.NodeType, validation.Required,
			validation.In(nodes.TypeAI, nodes.TypeBlockchain, nodes.TypeHybrid)),
		validation.Field(&r.Capabilities, validation.Each(validation.Required)),
	)
}

// RegisterNodeResponse is returned after a successful registration.
// PrivateKey is present only when the custodian generated the pair; it is
// never obtainable again.
type RegisterNodeResponse struct {
	NodeID     string `json:"node_id" validate:"required"`
	Status     string `json:"status" example:"registered" validate:"required"`
	PublicKey  string `json:"public_key" validate:"required"`
	PrivateKey string `json:"private_key,omitempty"`
}

// SetNodeStatusRequest is the request body for updating node status.
type SetNodeStatusRequest struct {
	Status string `json:"status" example:"inactive" enums:"active,inactive" validate:"required"`
}

func (r SetNodeStatusRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Status, validation.Required,
			validation.In(nodes.StatusActive, nodes.StatusInactive)),
	)
}

// MessageBody is the message element of a send request.
type MessageBody struct {
	FromNode    string         `json:"from_node" example:"agent-7" validate:"required"`
	ToNode      string         `json:"to_node" example:"chain-3" validate:"required"`
	MessageType string         `json:"message_type" example:"inference_request" validate:"required"`
	Data        map[string]any `json:"data" validate:"required"`
	Schema      string         `json:"schema,omitempty" example:"openai.chat"`
}

func (m MessageBody) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.FromNode, validation.Required),
		validation.Field(&m.ToNode, validation.Required),
		validation.Field(&m.MessageType, validation.Required),
		validation.Field(&m.Data, validation.NotNil),
	)
}

// SendMessageRequest is the request body for submitting a message to the
// pipeline.
type SendMessageRequest struct {
	Message         MessageBody `json:"message" validate:"required"`
	TransformSchema string      `json:"transform_schema,omitempty" example:"mesh.inference"`
	CommitToLedger  *bool       `json:"commit_to_ledger,omitempty"`
}

func (r SendMessageRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Message, validation.Required),
	)
}

// Commit reports the effective commit flag; an omitted field means true.
func (r SendMessageRequest) Commit() bool {
	return r.CommitToLedger == nil || *r.CommitToLedger
}

// SignRequest is the request body for signing a payload.
type SignRequest struct {
	Data   string `json:"data" validate:"required"`
	NodeID string `json:"node_id" example:"agent-7" validate:"required"`
}

func (r SignRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Data, validation.Required),
		validation.Field(&r.NodeID, validation.Required),
	)
}

// VerifyRequest is the request body for verifying a signature. Signature is
// base64-encoded.
type VerifyRequest struct {
	Data      string `json:"data" validate:"required"`
	Signature string `json:"signature" validate:"required"`
	NodeID    string `json:"node_id" example:"agent-7" validate:"required"`
}

func (r VerifyRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Data, validation.Required),
		validation.Field(&r.Signature, validation.Required),
		validation.Field(&r.NodeID, validation.Required),
	)
}

// AppendLedgerRequest is the request body for a direct ledger commit.
// Signature, when set, is base64-encoded.
type AppendLedgerRequest struct {
	Data      string `json:"data" validate:"required"`
	NodeID    string `json:"node_id" example:"agent-7" validate:"required"`
	Signature string `json:"signature,omitempty"`
}

func (r AppendLedgerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Data, validation.Required),
		validation.Field(&r.NodeID, validation.Required),
	)
}

// RegisterSchemaRequest is the request body for registering a schema mapping.
type RegisterSchemaRequest struct {
	SourceSchema string            `json:"source_schema" example:"openai.chat" validate:"required"`
	TargetSchema string            `json:"target_schema" example:"mesh.inference" validate:"required"`
	MappingRules map[string]string `json:"mapping_rules" validate:"required"`
}

func (r RegisterSchemaRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SourceSchema, validation.Required),
		validation.Field(&r.TargetSchema, validation.Required),
		validation.Field(&r.MappingRules, validation.Required),
	)
}

// TransformRequest is the request body for a standalone transform.
type TransformRequest struct {
	Data         map[string]any `json:"data" validate:"required"`
	SourceSchema string         `json:"source_schema" example:"openai.chat" validate:"required"`
	TargetSchema string         `json:"target_schema" example:"mesh.inference" validate:"required"`
}

func (r TransformRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Data, validation.NotNil),
		validation.Field(&r.SourceSchema, validation.Required),
		validation.Field(&r.TargetSchema, validation.Required),
	)
}

// TelemetryEventRequest is the request body for posting a custom telemetry
// event.
type TelemetryEventRequest struct {
	EventType string         `json:"event_type" example:"inference_latency" validate:"required"`
	NodeID    string         `json:"node_id" example:"agent-7" validate:"required"`
	Data      map[string]any `json:"data,omitempty"`
}

func (r TelemetryEventRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.EventType, validation.Required),
		validation.Field(&r.NodeID, validation.Required),
	)
}

// NodeDetail is a registered node (aliased from the domain layer).
type NodeDetail = nodes.Node

// MessageSummary is the compact submission result (aliased from the domain layer).
type MessageSummary = pipeline.Summary

// MessageDetail is the full pipeline record (aliased from the domain layer).
type MessageDetail = pipeline.Entry

// LedgerEntry is a committed ledger record (aliased from the domain layer).
type LedgerEntry = ledger.Entry

// ChainReport is the outcome of a chain verification (aliased from the domain layer).
type ChainReport = ledger.ChainReport

// SchemaMapping is a registered mapping (aliased from the domain layer).
type SchemaMapping = schema.Mapping

// TelemetryEvent is a recorded telemetry event (aliased from the domain layer).
type TelemetryEvent = telemetry.Event
