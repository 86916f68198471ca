package apierr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsSetKindAndReason(t *testing.T) {
	err := NotFoundf("session %s not found", "sess-1")
	require.Equal(t, NotFound, err.Kind)
	assert.Equal(t, "session sess-1 not found", err.Reason)
	assert.Equal(t, "not_found: session sess-1 not found", err.Error())
}

func TestAsExtractsClassifiedError(t *testing.T) {
	wrapped := error(BadRequestf("missing field"))
	got, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, BadRequest, got.Kind)
}

func TestAsRejectsPlainError(t *testing.T) {
	_, ok := As(plainErr{})
	assert.False(t, ok)
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[Kind]int{
		Unauthorized:       401,
		NotFound:           404,
		Conflict:           409,
		BadRequest:         400,
		Timeout:            504,
		BackendUnavailable: 503,
		Internal:           500,
		Kind("unmapped"):   500,
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.HTTPStatus(), "kind %s", kind)
	}
}

func TestStdioCodeMapping(t *testing.T) {
	cases := map[Kind]int{
		Unauthorized:       -32001,
		NotFound:           -32002,
		Conflict:           -32003,
		BadRequest:         -32004,
		Timeout:            -32005,
		BackendUnavailable: -32006,
		Internal:           -32000,
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.StdioCode(), "kind %s", kind)
	}
}

type plainErr struct{}

func (plainErr) Error() string { return "plain" }
