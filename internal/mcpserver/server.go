// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes mesh operations for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/herald-mesh/herald/internal/keys"
	"github.com/herald-mesh/herald/internal/ledger"
	"github.com/herald-mesh/herald/internal/nodes"
	"github.com/herald-mesh/herald/internal/pipeline"
	"github.com/herald-mesh/herald/internal/schema"
)

// Deps bundles the mesh stores the MCP tools operate on. Each stdio session
// gets its own set, so a session is a self-contained mesh sandbox.
type Deps struct {
	Directory *nodes.Directory
	Custodian *keys.Custodian
	Ledger    *ledger.Store
	Schemas   *schema.Registry
	Pipeline  *pipeline.Orchestrator
	History   *pipeline.History
}

// Server wraps the MCP server with herald tools.
type Server struct {
	mcp       *server.MCPServer
	directory *nodes.Directory
	custodian *keys.Custodian
	ledger    *ledger.Store
	schemas   *schema.Registry
	pipeline  *pipeline.Orchestrator
	history   *pipeline.History
}

// New creates a new MCP server with all herald tools registered.
func New(d Deps) *Server {
	s := &Server{
		directory: d.Directory,
		custodian: d.Custodian,
		ledger:    d.Ledger,
		schemas:   d.Schemas,
		pipeline:  d.Pipeline,
		history:   d.History,
	}

	s.mcp = server.NewMCPServer(
		"Herald",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("register_node",
		mcp.WithDescription("Register a node in the mesh directory and provision its Ed25519 key material. "+
			"Without public_key the custodian generates a pair and returns the private key exactly once."),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("Unique node id (e.g. agent-7)")),
		mcp.WithString("node_type", mcp.Required(), mcp.Description("Node type: ai, blockchain, or hybrid")),
		mcp.WithString("capabilities", mcp.Description("Optional comma-separated capabilities (e.g. inference,storage)")),
		mcp.WithString("public_key", mcp.Description("Optional base64 raw Ed25519 public key; the node then keeps its private half")),
	), s.registerNode)

	s.mcp.AddTool(mcp.NewTool("list_nodes",
		mcp.WithDescription("List all registered nodes in registration order."),
	), s.listNodes)

	s.mcp.AddTool(mcp.NewTool("submit_message",
		mcp.WithDescription("Submit a message to the routing pipeline (hash, optional transform, sign, ledger commit). "+
			"The message data MUST follow the canonical message format. Read the contract first via the "+
			"get_message_contract tool or the herald://message-format resource."),
		mcp.WithString("from_node", mcp.Required(), mcp.Description("Sender node id (must be registered)")),
		mcp.WithString("to_node", mcp.Required(), mcp.Description("Receiver node id (must be registered)")),
		mcp.WithString("message_type", mcp.Required(), mcp.Description("Message type (e.g. inference_request)")),
		mcp.WithString("data", mcp.Required(), mcp.Description("Message payload as a JSON object string")),
		mcp.WithString("schema", mcp.Description("Optional schema name of the payload (e.g. openai.chat)")),
		mcp.WithString("transform_schema", mcp.Description("Optional target schema; transforms when a mapping exists")),
		mcp.WithString("commit_to_ledger", mcp.Description("\"true\" or \"false\"; defaults to true")),
	), s.submitMessage)

	s.mcp.AddTool(mcp.NewTool("get_message",
		mcp.WithDescription("Get the full pipeline record of a processed message."),
		mcp.WithString("message_id", mcp.Required(), mcp.Description("Message id returned by submit_message")),
	), s.getMessage)

	s.mcp.AddTool(mcp.NewTool("list_ledger",
		mcp.WithDescription("List committed ledger entries, oldest first."),
		mcp.WithString("limit", mcp.Description("Max entries to return (default 20)")),
	), s.listLedger)

	s.mcp.AddTool(mcp.NewTool("verify_ledger",
		mcp.WithDescription("Walk the full ledger chain and report whether hashes and links are intact."),
	), s.verifyLedger)

	s.mcp.AddTool(mcp.NewTool("register_schema_mapping",
		mcp.WithDescription("Register a flat field-rename mapping between two schemas."),
		mcp.WithString("source_schema", mcp.Required(), mcp.Description("Source schema name")),
		mcp.WithString("target_schema", mcp.Required(), mcp.Description("Target schema name")),
		mcp.WithString("mapping_rules", mcp.Required(), mcp.Description("JSON object of target_field: source_field pairs")),
	), s.registerSchemaMapping)

	s.mcp.AddTool(mcp.NewTool("get_message_contract",
		mcp.WithDescription("Returns the canonical herald message format contract. "+
			"Call this before submitting messages to ensure correct structure."),
	), s.getMessageContract)

	// Resource: message format contract.
	s.mcp.AddResource(
		mcp.NewResource("herald://message-format", "Message Format Contract",
			mcp.WithResourceDescription("Canonical message format that all submitted messages must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readMessageFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) registerNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodeID, err := req.RequireString("node_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	nodeType, err := req.RequireString("node_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	switch nodeType {
	case nodes.TypeAI, nodes.TypeBlockchain, nodes.TypeHybrid:
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown node_type %q (want ai, blockchain, or hybrid)", nodeType)), nil
	}

	var caps []string
	if v, capErr := req.RequireString("capabilities"); capErr == nil {
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				caps = append(caps, c)
			}
		}
	}

	var pub []byte
	if v, keyErr := req.RequireString("public_key"); keyErr == nil && v != "" {
		decoded, decErr := base64.StdEncoding.DecodeString(v)
		if decErr != nil {
			return mcp.NewToolResultError("public_key must be base64"), nil
		}
		pub = decoded
	}

	pair, err := s.custodian.Register(nodeID, pub)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	node, err := s.directory.Register(nodes.Node{
		ID:            nodeID,
		Type:          nodeType,
		Capabilities:  caps,
		PublicKey:     base64.StdEncoding.EncodeToString(pair.PublicKey),
		HasSigningKey: pair.CanSign(),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := map[string]any{
		"node_id":    node.ID,
		"status":     "registered",
		"public_key": node.PublicKey,
	}
	if pair.CanSign() {
		result["private_key"] = base64.StdEncoding.EncodeToString(pair.PrivateKey)
	}
	out, _ := json.MarshalIndent(result, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listNodes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, _ := json.MarshalIndent(s.directory.List(), "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) submitMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, err := req.RequireString("from_node")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	to, err := req.RequireString("to_node")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	msgType, err := req.RequireString("message_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("data")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("data must be a JSON object: %v", err)), nil
	}

	msgSchema := ""
	if v, schemaErr := req.RequireString("schema"); schemaErr == nil {
		msgSchema = v
	}
	targetSchema := ""
	if v, targetErr := req.RequireString("transform_schema"); targetErr == nil {
		targetSchema = v
	}
	commit := true
	if v, commitErr := req.RequireString("commit_to_ledger"); commitErr == nil && v != "" {
		parsed, parseErr := strconv.ParseBool(v)
		if parseErr != nil {
			return mcp.NewToolResultError(`commit_to_ledger must be "true" or "false"`), nil
		}
		commit = parsed
	}

	entry, err := s.pipeline.Submit(ctx, pipeline.Message{
		From:   from,
		To:     to,
		Type:   msgType,
		Data:   data,
		Schema: msgSchema,
	}, targetSchema, commit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, _ := json.MarshalIndent(entry.Summary(), "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("message_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entry, err := s.history.Get(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	out, _ := json.MarshalIndent(entry, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listLedger(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := 20
	if v, limitErr := req.RequireString("limit"); limitErr == nil && v != "" {
		n, parseErr := strconv.Atoi(v)
		if parseErr != nil || n < 1 {
			return mcp.NewToolResultError("limit must be a positive integer"), nil
		}
		limit = n
	}

	entries, total := s.ledger.List(limit, 0)
	out, _ := json.MarshalIndent(map[string]any{
		"entries": entries,
		"total":   total,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) verifyLedger(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, _ := json.MarshalIndent(s.ledger.VerifyChain(), "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) registerSchemaMapping(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source_schema")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	target, err := req.RequireString("target_schema")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("mapping_rules")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var rules map[string]string
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("mapping_rules must be a JSON object of strings: %v", err)), nil
	}

	mapping, err := s.schemas.Register(source, target, rules)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(map[string]any{
		"mapping_id": mapping.ID,
		"status":     "registered",
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getMessageContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(MessageFormatContract), nil
}

func (s *Server) readMessageFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "herald://message-format",
			MIMEType: "text/markdown",
			Text:     MessageFormatContract,
		},
	}, nil
}
