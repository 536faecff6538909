package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"pos-relay-server/domain"
)

const (
	EventJoinOutlet    = "join:outlet"
	EventTableUpdate   = "table:update"
	EventOrderUpdate   = "order:update"
	EventTablesRefresh = "tables:refresh"

	EventTableUpdated     = "table:updated"
	EventOrderUpdated     = "order:updated"
	EventTablesRefreshAll = "tables:refresh-all"
)

var (
	ErrMissingOutlet = errors.New("protocol: missing outletId")
	ErrUnknownAction = errors.New("protocol: unknown order action")
)

// timestampLayout matches JavaScript's Date.prototype.toISOString.
const timestampLayout = "2006-01-02T15:04:05.000Z"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// OutletID accepts either a JSON string or a JSON number. 7 and "7" name the
// same outlet.
type OutletID string

func (o *OutletID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*o = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*o = OutletID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("outletId must be a string or number: %w", err)
	}
	*o = OutletID(n.String())
	return nil
}

// Room is the partition key for the outlet.
func (o OutletID) Room() string {
	return "outlet:" + string(o)
}

func requireOutlet(o OutletID) error {
	if o == "" {
		return ErrMissingOutlet
	}
	return nil
}

type JoinOutlet struct {
	OutletID OutletID
}

// decodeJoinOutlet accepts the bare outlet id as sent by the terminals, and
// also {"outletId": ...}.
func decodeJoinOutlet(data json.RawMessage) (JoinOutlet, error) {
	var ev JoinOutlet
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var obj struct {
			OutletID OutletID `json:"outletId"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return ev, err
		}
		ev.OutletID = obj.OutletID
	} else if len(trimmed) > 0 {
		if err := json.Unmarshal(trimmed, &ev.OutletID); err != nil {
			return ev, err
		}
	}
	return ev, requireOutlet(ev.OutletID)
}

type TableUpdate struct {
	OutletID OutletID        `json:"outletId"`
	TableID  json.RawMessage `json:"tableId"`
	Status   json.RawMessage `json:"status"`
	OrderID  json.RawMessage `json:"orderId"`
}

func decodeTableUpdate(data json.RawMessage) (TableUpdate, error) {
	var ev TableUpdate
	if err := unmarshalObject(data, &ev); err != nil {
		return ev, err
	}
	return ev, requireOutlet(ev.OutletID)
}

type OrderAction string

const (
	ActionCreated   OrderAction = "created"
	ActionUpdated   OrderAction = "updated"
	ActionPaid      OrderAction = "paid"
	ActionCancelled OrderAction = "cancelled"
)

func (a OrderAction) Valid() bool {
	switch a {
	case ActionCreated, ActionUpdated, ActionPaid, ActionCancelled:
		return true
	}
	return false
}

type OrderUpdate struct {
	OutletID  OutletID        `json:"outletId"`
	OrderID   json.RawMessage `json:"orderId"`
	Action    OrderAction     `json:"action"`
	OrderData json.RawMessage `json:"orderData"`
}

func decodeOrderUpdate(data json.RawMessage) (OrderUpdate, error) {
	var ev OrderUpdate
	if err := unmarshalObject(data, &ev); err != nil {
		return ev, err
	}
	if err := requireOutlet(ev.OutletID); err != nil {
		return ev, err
	}
	if !ev.Action.Valid() {
		return ev, fmt.Errorf("%w: %q", ErrUnknownAction, ev.Action)
	}
	return ev, nil
}

type TablesRefresh struct {
	OutletID OutletID `json:"outletId"`
}

func decodeTablesRefresh(data json.RawMessage) (TablesRefresh, error) {
	var ev TablesRefresh
	if err := unmarshalObject(data, &ev); err != nil {
		return ev, err
	}
	return ev, requireOutlet(ev.OutletID)
}

// unmarshalObject treats a missing payload as an empty object so that the
// outlet check reports the problem.
func unmarshalObject(data json.RawMessage, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

type TableUpdated struct {
	TableID   json.RawMessage `json:"tableId"`
	Status    json.RawMessage `json:"status"`
	OrderID   json.RawMessage `json:"orderId"`
	Timestamp string          `json:"timestamp"`
}

type OrderUpdated struct {
	OrderID   json.RawMessage `json:"orderId"`
	Action    OrderAction     `json:"action"`
	OrderData json.RawMessage `json:"orderData"`
	Timestamp string          `json:"timestamp"`
}

// Encode builds the wire frame for an outbound event. A nil data produces a
// frame without payload.
func Encode(event string, data any) ([]byte, error) {
	env := domain.Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}
