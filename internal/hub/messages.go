package hub

import "time"

// EntityState is one entity's current state as reported by the hub.
type EntityState struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
	LastUpdated time.Time      `json:"last_updated"`
}

// StateChange is delivered on subscription channels when an entity's state
// changes. OldState is nil for entities first seen in this session.
type StateChange struct {
	EntityID string
	OldState *EntityState
	NewState *EntityState
}

// wsFrame is the envelope of every WebSocket message the hub sends.
type wsFrame struct {
	ID      int64    `json:"id,omitempty"`
	Type    string   `json:"type"`
	Success *bool    `json:"success,omitempty"`
	Event   *wsEvent `json:"event,omitempty"`
	Error   *wsError `json:"error,omitempty"`
}

// Frame types in the hub WebSocket protocol.
const (
	frameAuthRequired = "auth_required"
	frameAuthOK       = "auth_ok"
	frameAuthInvalid  = "auth_invalid"
	frameEvent        = "event"
	frameResult       = "result"
)

type wsEvent struct {
	EventType string      `json:"event_type"`
	Data      wsEventData `json:"data"`
	TimeFired time.Time   `json:"time_fired"`
}

type wsEventData struct {
	EntityID string       `json:"entity_id"`
	OldState *EntityState `json:"old_state"`
	NewState *EntityState `json:"new_state"`
}

type wsError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// wsAuth is the client's reply to auth_required.
type wsAuth struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token"`
}

// wsSubscribe requests event delivery for one event type.
type wsSubscribe struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	EventType string `json:"event_type"`
}

// eventTypeStateChanged is the only hub event type the client subscribes
// to; the hub pushes all entity changes on this one subscription.
const eventTypeStateChanged = "state_changed"
