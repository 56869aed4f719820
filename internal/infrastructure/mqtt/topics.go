package mqtt

import "fmt"

// Topic prefixes for the Growgate MQTT namespace.
//
// State topics use the scheme: growgate/state/{tenant_id}/{entity_id}
const (
	// TopicPrefix is the base for all Growgate topics.
	TopicPrefix = "growgate"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "growgate/system"
)

// Topics provides builders for Growgate MQTT topics. Using these
// helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.TenantState("tenant-1", "light.grow_1")
//	// Returns: "growgate/state/tenant-1/light.grow_1"
type Topics struct{}

// TenantState returns the topic for one tenant entity's state updates.
//
// Example: growgate/state/tenant-1/light.grow_1
func (Topics) TenantState(tenantID, entityID string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, tenantID, entityID)
}

// TenantStates returns a pattern matching every entity of one tenant.
//
// Pattern: growgate/state/tenant-1/+
func (Topics) TenantStates(tenantID string) string {
	return fmt.Sprintf("%s/state/%s/+", TopicPrefix, tenantID)
}

// AllTenantStates returns a pattern matching all state updates.
//
// Pattern: growgate/state/+/+
func (Topics) AllTenantStates() string {
	return fmt.Sprintf("%s/state/+/+", TopicPrefix)
}

// SystemStatus returns the gateway status topic, also used for the
// Last Will and Testament message.
//
// Example: growgate/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllTopics returns a pattern matching all Growgate topics.
// Use with caution, this receives ALL traffic.
//
// Pattern: growgate/#
func (Topics) AllTopics() string {
	return "growgate/#"
}
