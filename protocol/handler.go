package protocol

import (
	"encoding/json"
	"log/slog"
	"time"

	"pos-relay-server/domain"
)

const (
	outcomeRelayed  = "relayed"
	outcomeRejected = "rejected"
	outcomeIgnored  = "ignored"
)

type Handler struct {
	broadcaster domain.Broadcaster
	metrics     domain.Metrics
	now         func() time.Time
}

type Option func(*Handler)

// WithClock overrides the source of relay timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

func WithMetrics(m domain.Metrics) Option {
	return func(h *Handler) {
		if m != nil {
			h.metrics = m
		}
	}
}

func NewHandler(b domain.Broadcaster, opts ...Option) *Handler {
	h := &Handler{
		broadcaster: b,
		metrics:     domain.NoopMetrics{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle processes one inbound frame. Nothing is ever sent back to conn on
// failure: bad frames are logged and dropped.
func (h *Handler) Handle(conn domain.Connection, data []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		slog.Warn("invalid message", "clientId", conn.ID(), "error", err)
		h.metrics.IncEvent("invalid", outcomeRejected)
		return
	}

	var err error
	switch env.Event {
	case EventJoinOutlet:
		err = h.joinOutlet(conn, env.Data)
	case EventTableUpdate:
		err = h.tableUpdate(conn, env.Data)
	case EventOrderUpdate:
		err = h.orderUpdate(conn, env.Data)
	case EventTablesRefresh:
		err = h.tablesRefresh(conn, env.Data)
	default:
		slog.Debug("unknown event", "clientId", conn.ID(), "event", env.Event)
		h.metrics.IncEvent("unknown", outcomeIgnored)
		return
	}

	if err != nil {
		slog.Warn("rejected event", "clientId", conn.ID(), "event", env.Event, "error", err)
		h.metrics.IncEvent(env.Event, outcomeRejected)
		return
	}
	h.metrics.IncEvent(env.Event, outcomeRelayed)
}

func (h *Handler) joinOutlet(conn domain.Connection, data json.RawMessage) error {
	ev, err := decodeJoinOutlet(data)
	if err != nil {
		return err
	}
	if err := h.broadcaster.Join(conn, ev.OutletID.Room()); err != nil {
		return err
	}
	slog.Info("joined outlet", "clientId", conn.ID(), "outletId", ev.OutletID)
	return nil
}

// tableUpdate and orderUpdate are optimistic: the sender already applied the
// change locally, so it is excluded from the fan-out.
func (h *Handler) tableUpdate(conn domain.Connection, data json.RawMessage) error {
	ev, err := decodeTableUpdate(data)
	if err != nil {
		return err
	}
	slog.Info("table update", "outletId", ev.OutletID, "tableId", string(ev.TableID), "status", string(ev.Status))

	frame, err := Encode(EventTableUpdated, TableUpdated{
		TableID:   ev.TableID,
		Status:    ev.Status,
		OrderID:   ev.OrderID,
		Timestamp: formatTimestamp(h.now()),
	})
	if err != nil {
		return err
	}
	h.broadcaster.Emit(ev.OutletID.Room(), conn.ID(), frame)
	return nil
}

func (h *Handler) orderUpdate(conn domain.Connection, data json.RawMessage) error {
	ev, err := decodeOrderUpdate(data)
	if err != nil {
		return err
	}
	slog.Info("order update", "outletId", ev.OutletID, "orderId", string(ev.OrderID), "action", ev.Action)

	frame, err := Encode(EventOrderUpdated, OrderUpdated{
		OrderID:   ev.OrderID,
		Action:    ev.Action,
		OrderData: ev.OrderData,
		Timestamp: formatTimestamp(h.now()),
	})
	if err != nil {
		return err
	}
	h.broadcaster.Emit(ev.OutletID.Room(), conn.ID(), frame)
	return nil
}

// tablesRefresh asks every terminal of the outlet, the requester included, to
// reload from the source of truth.
func (h *Handler) tablesRefresh(conn domain.Connection, data json.RawMessage) error {
	ev, err := decodeTablesRefresh(data)
	if err != nil {
		return err
	}
	slog.Info("tables refresh requested", "clientId", conn.ID(), "outletId", ev.OutletID)

	frame, err := Encode(EventTablesRefreshAll, nil)
	if err != nil {
		return err
	}
	h.broadcaster.EmitAll(ev.OutletID.Room(), frame)
	return nil
}
