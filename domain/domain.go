package domain

import "encoding/json"

// Envelope is the JSON frame exchanged over the socket in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Broadcast describes one fan-out. Room is ignored when All is set.
// Except, when non-empty, names a connection that must not receive Data.
type Broadcast struct {
	Room   string `json:"room,omitempty"`
	Except string `json:"except,omitempty"`
	All    bool   `json:"all,omitempty"`
	Data   []byte `json:"data"`
}

type Connection interface {
	ID() string
	Send(data []byte) error
	Close() error
}

type Broadcaster interface {
	Register(conn Connection) error
	Unregister(conn Connection)
	Join(conn Connection, room string) error
	Emit(room, except string, data []byte)
	EmitAll(room string, data []byte)
	Broadcast(data []byte)
	Stats() (rooms, clients int)
}

type MessageHandler interface {
	Handle(conn Connection, data []byte)
}

// Forwarder receives every locally originated broadcast so that other relay
// instances can deliver it to their own members.
type Forwarder interface {
	Forward(b Broadcast)
}

type Metrics interface {
	SetConnections(n int)
	SetRooms(n int)
	IncDelivered()
	IncDropped()
	IncEvent(event, outcome string)
	IncPublishErrors()
}

type NoopMetrics struct{}

func (NoopMetrics) SetConnections(int)      {}
func (NoopMetrics) SetRooms(int)            {}
func (NoopMetrics) IncDelivered()           {}
func (NoopMetrics) IncDropped()             {}
func (NoopMetrics) IncEvent(string, string) {}
func (NoopMetrics) IncPublishErrors()       {}
