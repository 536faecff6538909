package websocket

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pos-relay-server/domain"
)

const (
	writeWait        = 10 * time.Second
	closeGracePeriod = 2 * time.Second
	sendQueueSize    = 256
)

var (
	ErrSendQueueFull = errors.New("websocket: send queue full")
	ErrConnClosed    = errors.New("websocket: connection closed")
)

type Options struct {
	PingInterval   time.Duration
	PingTimeout    time.Duration
	MaxMessageSize int64
}

func DefaultOptions() Options {
	return Options{
		PingInterval:   25 * time.Second,
		PingTimeout:    60 * time.Second,
		MaxMessageSize: 64 * 1024,
	}
}

type Conn struct {
	id          string
	ws          *websocket.Conn
	send        chan []byte
	done        chan struct{}
	readDone    chan struct{}
	closeOnce   sync.Once
	opts        Options
	broadcaster domain.Broadcaster
	handler     domain.MessageHandler
}

func NewConn(id string, ws *websocket.Conn, b domain.Broadcaster, h domain.MessageHandler, opts Options) *Conn {
	return &Conn{
		id:          id,
		ws:          ws,
		send:        make(chan []byte, sendQueueSize),
		done:        make(chan struct{}),
		readDone:    make(chan struct{}),
		opts:        opts,
		broadcaster: b,
		handler:     h,
	}
}

func (c *Conn) ID() string { return c.id }

// Send queues data for the write pump without blocking.
func (c *Conn) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close asks the write pump to send a going-away close frame and shut the
// socket. It is safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// Start registers the connection and runs its pumps. If the hub refuses the
// connection it is closed with a going-away frame.
func (c *Conn) Start() error {
	if err := c.broadcaster.Register(c); err != nil {
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		c.ws.Close()
		return err
	}
	go c.writePump()
	go c.readPump()
	return nil
}

func (c *Conn) readPump() {
	reason := "transport close"
	defer close(c.readDone)
	defer func() {
		c.broadcaster.Unregister(c)
		c.Close()
		c.ws.Close()
		slog.Info("client disconnected", "clientId", c.id, "reason", reason)
	}()

	c.ws.SetReadLimit(c.opts.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.opts.PingTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.opts.PingTimeout))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			reason = disconnectReason(err, c.isClosing())
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Error("read error", "clientId", c.id, "error", err)
			}
			return
		}

		c.handler.Handle(c, data)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			// Wait for the peer to answer the close frame; the read pump
			// exits when it does.
			select {
			case <-c.readDone:
			case <-time.After(closeGracePeriod):
			}
			return
		}
	}
}

func (c *Conn) isClosing() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func disconnectReason(err error, closing bool) string {
	var closeErr *websocket.CloseError
	switch {
	case closing:
		return "server shutting down"
	case errors.As(err, &closeErr):
		if closeErr.Text != "" {
			return closeErr.Text
		}
		return closeCodeName(closeErr.Code)
	case isTimeout(err):
		return "ping timeout"
	default:
		return "transport error"
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func closeCodeName(code int) string {
	switch code {
	case websocket.CloseNormalClosure:
		return "client disconnect"
	case websocket.CloseGoingAway:
		return "client going away"
	case websocket.CloseNoStatusReceived:
		return "client closed without status"
	default:
		return fmt.Sprintf("client close %d", code)
	}
}
