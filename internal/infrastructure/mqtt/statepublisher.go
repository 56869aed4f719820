package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// StatePublisher relays tenant entity state changes onto the MQTT bus.
// It satisfies the gateway's publisher interface. State messages are
// retained so new subscribers immediately see the last known state.
type StatePublisher struct {
	client *Client
}

// NewStatePublisher wraps a connected client.
func NewStatePublisher(client *Client) *StatePublisher {
	return &StatePublisher{client: client}
}

// statePayload is the JSON body published for each state change.
type statePayload struct {
	TenantID  string `json:"tenant_id"`
	EntityID  string `json:"entity_id"`
	State     string `json:"state"`
	Timestamp string `json:"timestamp"`
}

// PublishState publishes one entity state change to
// growgate/state/{tenant_id}/{entity_id}.
func (p *StatePublisher) PublishState(tenantID, entityID, state string) error {
	payload, err := json.Marshal(statePayload{
		TenantID:  tenantID,
		EntityID:  entityID,
		State:     state,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encoding state payload: %w", err)
	}
	return p.client.PublishRetained(Topics{}.TenantState(tenantID, entityID), payload)
}
