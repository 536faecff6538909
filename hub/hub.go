// Package hub keeps track of connected clients and the outlet rooms they
// joined, and fans broadcasts out to them.
//
// All registry state is owned by a single goroutine. Public methods submit a
// command to that goroutine and wait for it to finish, so callers on any
// goroutine observe a consistent registry without locks.
package hub

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"pos-relay-server/domain"
)

var (
	ErrHubClosed         = errors.New("hub: closed")
	ErrUnknownConnection = errors.New("hub: connection not registered")
)

type client struct {
	conn  domain.Connection
	rooms map[string]struct{}
}

type Hub struct {
	cmds     chan func()
	quit     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	forwarder domain.Forwarder
	metrics   domain.Metrics

	// owned by the loop goroutine
	clients   map[string]*client
	rooms     map[string]map[string]domain.Connection
	closing   bool
	drained   chan struct{}
	isDrained bool
}

type Option func(*Hub)

// WithForwarder sets the sink for locally originated broadcasts.
func WithForwarder(f domain.Forwarder) Option {
	return func(h *Hub) {
		h.forwarder = f
	}
}

func WithMetrics(m domain.Metrics) Option {
	return func(h *Hub) {
		if m != nil {
			h.metrics = m
		}
	}
}

// New creates a hub and starts its loop. Stop it with Shutdown.
func New(opts ...Option) *Hub {
	h := &Hub{
		cmds:    make(chan func()),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		metrics: domain.NoopMetrics{},
		clients: make(map[string]*client),
		rooms:   make(map[string]map[string]domain.Connection),
		drained: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	go h.loop()
	return h
}

func (h *Hub) loop() {
	defer close(h.stopped)
	for {
		select {
		case cmd := <-h.cmds:
			cmd()
		case <-h.quit:
			return
		}
	}
}

// do runs fn on the loop goroutine and waits for it. It reports false when
// the loop has already stopped.
func (h *Hub) do(fn func()) bool {
	done := make(chan struct{})
	select {
	case h.cmds <- func() {
		defer close(done)
		fn()
	}:
	case <-h.stopped:
		return false
	}
	<-done
	return true
}

func (h *Hub) Register(conn domain.Connection) error {
	err := ErrHubClosed
	h.do(func() {
		if h.closing {
			return
		}
		err = nil
		if _, exists := h.clients[conn.ID()]; exists {
			return
		}
		h.clients[conn.ID()] = &client{conn: conn, rooms: make(map[string]struct{})}
		h.metrics.SetConnections(len(h.clients))
		slog.Info("client connected", "clientId", conn.ID(), "clients", len(h.clients))
	})
	return err
}

// Unregister removes the connection from the hub and from every room it
// joined. Rooms left without members are dropped.
func (h *Hub) Unregister(conn domain.Connection) {
	h.do(func() {
		c, exists := h.clients[conn.ID()]
		if !exists {
			return
		}
		delete(h.clients, conn.ID())
		for room := range c.rooms {
			h.leave(conn.ID(), room)
		}
		h.metrics.SetConnections(len(h.clients))
		h.metrics.SetRooms(len(h.rooms))
		slog.Debug("client unregistered", "clientId", conn.ID(), "rooms", len(c.rooms), "clients", len(h.clients))
		h.checkDrained()
	})
}

func (h *Hub) leave(id, room string) {
	members, exists := h.rooms[room]
	if !exists {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(h.rooms, room)
		slog.Debug("room removed", "room", room)
	}
}

// Join adds the connection to room. Joining a room twice is a no-op.
func (h *Hub) Join(conn domain.Connection, room string) error {
	err := ErrHubClosed
	h.do(func() {
		c, exists := h.clients[conn.ID()]
		if !exists {
			err = ErrUnknownConnection
			return
		}
		err = nil
		if _, joined := c.rooms[room]; joined {
			return
		}
		members, ok := h.rooms[room]
		if !ok {
			members = make(map[string]domain.Connection)
			h.rooms[room] = members
		}
		members[conn.ID()] = conn
		c.rooms[room] = struct{}{}
		h.metrics.SetRooms(len(h.rooms))
		slog.Info("client joined room", "clientId", conn.ID(), "room", room, "members", len(members))
	})
	return err
}

// Emit delivers data to every member of room except the connection with id
// except.
func (h *Hub) Emit(room, except string, data []byte) {
	h.publish(domain.Broadcast{Room: room, Except: except, Data: data})
}

// EmitAll delivers data to every member of room.
func (h *Hub) EmitAll(room string, data []byte) {
	h.publish(domain.Broadcast{Room: room, Data: data})
}

// Broadcast delivers data to every registered connection.
func (h *Hub) Broadcast(data []byte) {
	h.publish(domain.Broadcast{All: true, Data: data})
}

func (h *Hub) publish(b domain.Broadcast) {
	if !h.do(func() { h.deliver(b) }) {
		return
	}
	if h.forwarder != nil {
		h.forwarder.Forward(b)
	}
}

// Deliver fans b out to local connections only. It is used for broadcasts
// that originated on another relay instance.
func (h *Hub) Deliver(b domain.Broadcast) {
	h.do(func() { h.deliver(b) })
}

func (h *Hub) deliver(b domain.Broadcast) {
	if b.All {
		for id, c := range h.clients {
			if id != b.Except {
				h.send(c.conn, b.Data)
			}
		}
		return
	}
	for id, conn := range h.rooms[b.Room] {
		if id != b.Except {
			h.send(conn, b.Data)
		}
	}
}

// send never blocks. A connection that cannot take the message is closed so
// that it reconnects and resynchronises; the other recipients are unaffected.
func (h *Hub) send(conn domain.Connection, data []byte) {
	if err := conn.Send(data); err != nil {
		h.metrics.IncDropped()
		slog.Warn("delivery failed, closing client", "clientId", conn.ID(), "error", err)
		_ = conn.Close()
		return
	}
	h.metrics.IncDelivered()
}

func (h *Hub) Stats() (rooms, clients int) {
	h.do(func() {
		rooms = len(h.rooms)
		clients = len(h.clients)
	})
	return rooms, clients
}

// Members returns the sorted ids of the connections in room.
func (h *Hub) Members(room string) []string {
	var ids []string
	h.do(func() {
		for id := range h.rooms[room] {
			ids = append(ids, id)
		}
	})
	sort.Strings(ids)
	return ids
}

func (h *Hub) checkDrained() {
	if h.closing && !h.isDrained && len(h.clients) == 0 {
		h.isDrained = true
		close(h.drained)
	}
}

// Shutdown refuses new registrations, closes every connection and waits for
// all of them to unregister or for ctx to end. The loop is stopped in both
// cases.
func (h *Hub) Shutdown(ctx context.Context) error {
	ok := h.do(func() {
		h.closing = true
		slog.Info("closing clients", "clients", len(h.clients))
		for _, c := range h.clients {
			_ = c.conn.Close()
		}
		h.checkDrained()
	})
	if !ok {
		return ErrHubClosed
	}

	var err error
	select {
	case <-h.drained:
	case <-ctx.Done():
		err = ctx.Err()
	}
	h.stopOnce.Do(func() { close(h.quit) })
	<-h.stopped
	return err
}
