package fault

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr struct {
	status int
	msg    string
}

func (e *statusErr) Error() string         { return fmt.Sprintf("status %d", e.status) }
func (e *statusErr) HTTPStatus() int       { return e.status }
func (e *statusErr) ServerMessage() string { return e.msg }

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   Kind
		status int
	}{
		{"deadline", context.DeadlineExceeded, KindTimeout, 0},
		{"wrapped deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), KindTimeout, 0},
		{"canceled", context.Canceled, KindCanceled, 0},
		{"op error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, KindNetwork, 0},
		{"url error", &url.Error{Op: "Get", URL: "http://x", Err: errors.New("eof")}, KindNetwork, 0},
		{"status carrier", fmt.Errorf("get: %w", &statusErr{status: 404, msg: "Doctor not found"}), KindServer, 404},
		{"plain", errors.New("boom"), KindInternal, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := Classify(tt.err)
			require.NotNil(t, fe)
			assert.Equal(t, tt.kind, fe.Kind)
			assert.Equal(t, tt.status, fe.Status)
			assert.ErrorIs(t, fe, tt.err)
		})
	}
}

func TestClassifyKeepsTypedErrors(t *testing.T) {
	orig := Validation("password must be at least %d characters", 6)
	wrapped := fmt.Errorf("create admin: %w", orig)

	assert.Same(t, orig, Classify(wrapped))
	assert.True(t, IsValidation(wrapped))
	assert.Equal(t, "validation error: password must be at least 6 characters", orig.Error())
	assert.Nil(t, Classify(nil))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestServerMessage(t *testing.T) {
	err := Server(409, "Admin already exists")
	assert.Equal(t, "server error (409): Admin already exists", err.Error())
	assert.True(t, IsServer(err))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(Server(503, "unavailable")))
	assert.False(t, Retryable(Server(404, "missing")))
	assert.True(t, Retryable(context.DeadlineExceeded))
	assert.True(t, Retryable(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.False(t, Retryable(Validation("bad")))
	assert.False(t, Retryable(context.Canceled))
	assert.False(t, Retryable(nil))
}
