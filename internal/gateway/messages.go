package gateway

import (
	"encoding/json"
	"time"
)

// Browser message types. Server to browser unless noted.
const (
	MsgConnectionStatus      = "connection_status"
	MsgDeviceStateUpdate     = "device_state_update"
	MsgDeviceControlResponse = "device_control_response"
	MsgEmergencyStopComplete = "emergency_stop_complete"
	MsgControlDevice         = "control_device" // browser to server
	MsgEmergencyStop         = "emergency_stop" // browser to server
	MsgPing                  = "ping"
	MsgPong                  = "pong"
)

// Envelope wraps every message on the browser WebSocket.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// marshalEnvelope builds the wire bytes for one message. Marshal failures
// can only come from non-serializable data values, which the gateway never
// produces; they return nil and the send is skipped.
func marshalEnvelope(msgType string, data any) []byte {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil
		}
		raw = b
	}
	out, err := json.Marshal(Envelope{
		Type:      msgType,
		Data:      raw,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil
	}
	return out
}

// ConnectionStatus is the payload of the initial connection_status
// message.
type ConnectionStatus struct {
	TenantID   string `json:"tenant_id"`
	Monitoring bool   `json:"monitoring"`
	Entities   int    `json:"entities"`
}

// StateUpdate is the payload of device_state_update broadcasts.
type StateUpdate struct {
	EntityID   string         `json:"entity_id"`
	OldState   string         `json:"old_state,omitempty"`
	NewState   string         `json:"new_state"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// ControlResult is the structured outcome of a control command. It is
// both returned to the caller and broadcast as device_control_response.
type ControlResult struct {
	Success  bool   `json:"success"`
	EntityID string `json:"entity_id"`
	Action   string `json:"action"`
	Error    string `json:"error,omitempty"`
}

// StopSummary is the payload of emergency_stop_complete broadcasts.
type StopSummary struct {
	Total   int             `json:"total"`
	Stopped int             `json:"stopped"`
	Failed  int             `json:"failed"`
	Results []ControlResult `json:"results"`
}

// controlRequest is the browser's control_device payload.
type controlRequest struct {
	EntityID string       `json:"entity_id"`
	Action   DeviceAction `json:"action"`
}

// stopRequest is the browser's emergency_stop payload.
type stopRequest struct {
	Locations  []string `json:"locations,omitempty"`
	Categories []string `json:"categories,omitempty"`
}
