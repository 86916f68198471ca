package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/advpropsys/tinymem/internal/apierr"
)

// rpcRequest is one line of the stdio tool protocol: newline-delimited
// JSON-RPC-style framing, one object per line in each direction.
type rpcRequest struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Result any             `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

// StdioServer runs the stdio tool protocol: requests are read and
// answered serially off a single reader, so line interleaving between
// concurrent tool calls is impossible by construction.
type StdioServer struct {
	svc            *Service
	defaultSession string
	in             io.Reader
	out            io.Writer
}

func NewStdioServer(svc *Service, defaultSession string) *StdioServer {
	return &StdioServer{svc: svc, defaultSession: defaultSession, in: os.Stdin, out: os.Stdout}
}

// Run blocks, reading one request per line until stdin closes or ctx
// is cancelled. Each request is handled to completion (including any
// blocking ask) before the next line is read.
func (s *StdioServer) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req rpcRequest
		if err := json.Unmarshal(line, &req); err != nil {
			continue
		}
		resp := s.handle(ctx, req)
		s.write(resp)
	}
	return scanner.Err()
}

func (s *StdioServer) write(resp rpcResponse) {
	encoded, err := json.Marshal(resp)
	if err != nil {
		return
	}
	encoded = append(encoded, '\n')
	_, _ = s.out.Write(encoded)
}

func (s *StdioServer) handle(ctx context.Context, req rpcRequest) rpcResponse {
	result, err := s.dispatch(ctx, req.Method, req.Params)
	if err != nil {
		if e, ok := apierr.As(err); ok {
			return rpcResponse{ID: req.ID, Error: &rpcError{Code: e.Kind.StdioCode(), Message: e.Reason}}
		}
		return rpcResponse{ID: req.ID, Error: &rpcError{Code: -32000, Message: err.Error()}}
	}
	return rpcResponse{ID: req.ID, Result: result}
}

func (s *StdioServer) sessionOf(params map[string]any) string {
	if v, ok := params["session_id"].(string); ok && v != "" {
		return v
	}
	return s.defaultSession
}

func (s *StdioServer) dispatch(ctx context.Context, method string, rawParams json.RawMessage) (any, error) {
	params := map[string]any{}
	if len(rawParams) > 0 {
		if err := json.Unmarshal(rawParams, &params); err != nil {
			return nil, apierr.BadRequestf("invalid params: %v", err)
		}
	}

	switch method {
	case "tinymem_ask":
		question, _ := params["question"].(string)
		outcome, err := s.svc.Ask(ctx, s.sessionOf(params), question)
		if err != nil {
			return nil, err
		}
		if outcome.Expired || outcome.SessDone {
			return map[string]any{"error": "expired"}, nil
		}
		return map[string]any{"answer": outcome.Answer}, nil

	case "tinymem_msg":
		content, _ := params["content"].(string)
		role, _ := params["role"].(string)
		if role == "" {
			role = "agent"
		}
		if err := s.svc.Msg(ctx, s.sessionOf(params), role, content); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true}, nil

	case "tinymem_chain_link":
		chainName, _ := params["chain_name"].(string)
		slug, _ := params["slug"].(string)
		content, _ := params["content"].(string)
		used, err := s.svc.ChainLink(ctx, chainName, slug, content)
		if err != nil {
			return nil, err
		}
		return map[string]any{"slug_used": used}, nil

	case "tinymem_chain_load":
		chainName, _ := params["chain_name"].(string)
		limit := intParam(params, "limit", 5)
		links, total, err := s.svc.ChainLoad(ctx, chainName, limit, 0)
		if err != nil {
			return nil, err
		}
		return map[string]any{"links": links, "total": total}, nil

	case "tinymem_chain_list":
		chains, err := s.svc.ChainList(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"chains": chains}, nil

	case "tinymem_chain_search":
		query, _ := params["query"].(string)
		matches, err := s.svc.ChainSearch(ctx, query)
		if err != nil {
			return nil, err
		}
		return map[string]any{"chains": matches}, nil

	case "tinymem_artifact_save":
		filePath, _ := params["file_path"].(string)
		title, _ := params["title"].(string)
		description, _ := params["description"].(string)
		art, err := s.svc.ArtifactSave(ctx, filePath, title, description)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": art.ID}, nil

	case "tinymem_search":
		query, _ := params["query"].(string)
		results, err := s.svc.SearchText(ctx, query)
		if err != nil {
			return nil, err
		}
		return map[string]any{"results": results}, nil

	case "tinymem_get":
		id, _ := params["id"].(string)
		maxChars := intParam(params, "max_chars", 8000)
		offset := intParam(params, "offset", 0)
		result, err := s.svc.Get(ctx, id, maxChars, offset)
		if err != nil {
			return nil, err
		}
		return result, nil

	case "initialize":
		return map[string]any{"protocolVersion": "2024-11-05"}, nil

	case "notifications/initialized":
		return nil, nil

	default:
		return nil, apierr.BadRequestf("unknown method: %s", method)
	}
}

func intParam(params map[string]any, key string, fallback int) int {
	v, ok := params[key]
	if !ok {
		return fallback
	}
	f, ok := v.(float64)
	if !ok {
		return fallback
	}
	return int(f)
}
