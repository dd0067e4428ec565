package toolset

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"
)

const protocolVersion = "2024-11-05"

// JSON-RPC 2.0 error codes used by the server surface.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

// HandleRequest processes one JSON-RPC request and returns the encoded
// response. Supported methods: initialize, tools/list, tools/call.
func (g *Grimorium) HandleRequest(ctx context.Context, data []byte) []byte {
	var req rpcRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return encodeResponse(rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: codeParseError, Message: "parse error"},
		})
	}

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	switch req.Method {
	case "initialize":
		resp.Result = map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]string{"name": "grimorium", "version": "1.0.0"},
			"instructions":    UsageGuide,
		}

	case "tools/list":
		resp.Result = map[string]any{"tools": g.Tools()}

	case "tools/call":
		result, rerr := g.handleToolCall(ctx, req.Params)
		if rerr != nil {
			resp.Error = rerr
		} else {
			resp.Result = result
		}

	default:
		resp.Error = &rpcError{
			Code:    codeMethodNotFound,
			Message: fmt.Sprintf("method not found: %s", req.Method),
		}
	}
	return encodeResponse(resp)
}

func (g *Grimorium) handleToolCall(ctx context.Context, params json.RawMessage) (any, *rpcError) {
	var call struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal(params, &call); err != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "invalid tools/call params"}
	}

	var (
		result any
		err    error
	)
	switch call.Name {
	case ToolDiscoverGrimoriums:
		query, _ := call.Arguments["query"].(string)
		result, err = g.DiscoverGrimoriums(ctx, query)

	case ToolDiscoverSpells:
		id, _ := call.Arguments["grimorium_id"].(string)
		query, _ := call.Arguments["query"].(string)
		result, err = g.DiscoverSpells(ctx, id, query)

	case ToolExecuteSpell:
		name, _ := call.Arguments["spell_name"].(string)
		args, _ := call.Arguments["arguments"].(map[string]any)
		result, err = g.ExecuteSpell(ctx, name, args)

	default:
		return nil, &rpcError{
			Code:    codeInvalidParams,
			Message: fmt.Sprintf("unknown tool: %s", call.Name),
		}
	}
	if err != nil {
		return nil, &rpcError{Code: codeInternalError, Message: err.Error()}
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return nil, &rpcError{Code: codeInternalError, Message: err.Error()}
	}
	return map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": string(encoded)},
		},
	}, nil
}

// ServeStdio answers line-delimited JSON-RPC requests from r on w until r is
// exhausted or the context is cancelled.
func (g *Grimorium) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := g.HandleRequest(ctx, line)
		if _, err := w.Write(append(resp, '\n')); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	g.logger.Debug("stdio stream closed", zap.String("server", "grimorium"))
	return nil
}

func encodeResponse(resp rpcResponse) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		// Marshal of these fixed shapes cannot fail with user data already
		// encoded as strings; keep a minimal fallback anyway.
		return []byte(`{"jsonrpc":"2.0","error":{"code":-32603,"message":"encode error"}}`)
	}
	return data
}
