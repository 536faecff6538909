package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// NewUpgrader builds an upgrader whose origin check follows the configured
// CORS origins. A single "*" allows any origin.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     OriginChecker(allowedOrigins),
	}
}

// OriginChecker allows requests without an Origin header: terminals running
// outside a browser do not send one.
func OriginChecker(allowedOrigins []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[origin] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return allowed[origin]
	}
}
