package websocket

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConn_Send(t *testing.T) {
	c := NewConn("c1", nil, nil, nil, DefaultOptions())

	for i := 0; i < sendQueueSize; i++ {
		require.NoError(t, c.Send([]byte("x")))
	}
	assert.ErrorIs(t, c.Send([]byte("overflow")), ErrSendQueueFull)
}

func TestConn_SendAfterClose(t *testing.T) {
	c := NewConn("c1", nil, nil, nil, DefaultOptions())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.ErrorIs(t, c.Send([]byte("x")), ErrConnClosed)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestDisconnectReason(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		closing bool
		want    string
	}{
		{name: "server closing", err: errors.New("use of closed connection"), closing: true, want: "server shutting down"},
		{name: "close with text", err: &websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "logout"}, want: "logout"},
		{name: "going away", err: &websocket.CloseError{Code: websocket.CloseGoingAway}, want: "client going away"},
		{name: "custom code", err: &websocket.CloseError{Code: 4000}, want: "client close 4000"},
		{name: "ping timeout", err: timeoutErr{}, want: "ping timeout"},
		{name: "other", err: errors.New("boom"), want: "transport error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, disconnectReason(tt.err, tt.closing))
		})
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{name: "wildcard", allowed: []string{"*"}, origin: "https://evil.example", want: true},
		{name: "listed", allowed: []string{"https://pos.example", "https://admin.example"}, origin: "https://admin.example", want: true},
		{name: "not listed", allowed: []string{"https://pos.example"}, origin: "https://evil.example", want: false},
		{name: "no origin header", allowed: []string{"https://pos.example"}, origin: "", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, OriginChecker(tt.allowed)(r))
		})
	}
}
