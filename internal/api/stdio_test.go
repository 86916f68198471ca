package api

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntParamFallsBackOnMissingOrWrongType(t *testing.T) {
	params := map[string]any{"limit": float64(7), "name": "chain"}
	assert.Equal(t, 7, intParam(params, "limit", 1))
	assert.Equal(t, 9, intParam(params, "missing", 9))
	assert.Equal(t, 9, intParam(params, "name", 9), "wrong-typed value should fall back to default")
}

func TestSessionOfFallsBackToDefault(t *testing.T) {
	s := &StdioServer{defaultSession: "sess-default"}
	assert.Equal(t, "sess-default", s.sessionOf(map[string]any{}))
	assert.Equal(t, "sess-explicit", s.sessionOf(map[string]any{"session_id": "sess-explicit"}))
}

func TestRunDispatchesOneRequestPerLine(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, "claude-code", "/tmp", "")
	require.NoError(t, err)

	var in bytes.Buffer
	writeLine(t, &in, map[string]any{"id": 1, "method": "tinymem_msg", "params": map[string]any{
		"session_id": sess.ID, "role": "agent", "content": "starting work",
	}})
	writeLine(t, &in, map[string]any{"id": 2, "method": "tinymem_chain_link", "params": map[string]any{
		"chain_name": "onboarding", "slug": "step-1", "content": "cloned the repo",
	}})

	var out bytes.Buffer
	stdio := &StdioServer{svc: svc, defaultSession: sess.ID, in: &in, out: &out}
	require.NoError(t, stdio.Run(ctx))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	var first rpcResponse
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Nil(t, first.Error)

	var second rpcResponse
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.Nil(t, second.Error)

	result, ok := second.Result.(map[string]any)
	require.True(t, ok, "chain_link result should decode as an object")
	_, hasSlugUsed := result["slug_used"]
	assert.True(t, hasSlugUsed, "tinymem_chain_link result must carry slug_used")
}

func TestDispatchUnknownMethodReturnsBadRequest(t *testing.T) {
	svc := newTestService(t)
	stdio := &StdioServer{svc: svc, defaultSession: "sess-1"}
	resp := stdio.handle(context.Background(), rpcRequest{Method: "tinymem_does_not_exist"})
	require.NotNil(t, resp.Error)
}

func writeLine(t *testing.T, buf *bytes.Buffer, v any) {
	t.Helper()
	encoded, err := json.Marshal(v)
	require.NoError(t, err)
	buf.Write(encoded)
	buf.WriteByte('\n')
}
