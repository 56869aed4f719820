package gateway

import (
	"fmt"
	"strings"
)

// ActionType enumerates the supported device actions.
type ActionType string

const (
	ActionTurnOn        ActionType = "turn_on"
	ActionTurnOff       ActionType = "turn_off"
	ActionToggle        ActionType = "toggle"
	ActionSetBrightness ActionType = "set_brightness"
	ActionSetColor      ActionType = "set_color"
	ActionSetSpeed      ActionType = "set_speed"
)

// DeviceAction is a tagged device command, validated once at the boundary.
// Only the field matching the Type is meaningful.
type DeviceAction struct {
	Type ActionType `json:"type"`

	// Level is the brightness for set_brightness, 0-255.
	Level int `json:"level,omitempty"`

	// RGB is the color for set_color, each channel 0-255.
	RGB [3]int `json:"rgb,omitempty"`

	// Percent is the speed for set_speed, 0-100.
	Percent int `json:"percent,omitempty"`
}

// Validate checks the action's tag and parameters.
func (a DeviceAction) Validate() error {
	switch a.Type {
	case ActionTurnOn, ActionTurnOff, ActionToggle:
		return nil
	case ActionSetBrightness:
		if a.Level < 0 || a.Level > 255 {
			return fmt.Errorf("%w: brightness level %d out of range 0-255", ErrInvalidAction, a.Level)
		}
		return nil
	case ActionSetColor:
		for _, ch := range a.RGB {
			if ch < 0 || ch > 255 {
				return fmt.Errorf("%w: rgb channel %d out of range 0-255", ErrInvalidAction, ch)
			}
		}
		return nil
	case ActionSetSpeed:
		if a.Percent < 0 || a.Percent > 100 {
			return fmt.Errorf("%w: speed %d out of range 0-100", ErrInvalidAction, a.Percent)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown action type %q", ErrInvalidAction, a.Type)
	}
}

// serviceCall maps the action to a hub domain, service, and payload for
// the given entity. The domain for on/off/toggle comes from the entity id
// prefix so the hub routes the call to the right integration.
func (a DeviceAction) serviceCall(entityID string) (domain, service string, data map[string]any) {
	entityDomain := "homeassistant"
	if i := strings.IndexByte(entityID, '.'); i > 0 {
		entityDomain = entityID[:i]
	}

	switch a.Type {
	case ActionTurnOn:
		return entityDomain, "turn_on", nil
	case ActionTurnOff:
		return entityDomain, "turn_off", nil
	case ActionToggle:
		return entityDomain, "toggle", nil
	case ActionSetBrightness:
		return "light", "turn_on", map[string]any{"brightness": a.Level}
	case ActionSetColor:
		return "light", "turn_on", map[string]any{"rgb_color": []int{a.RGB[0], a.RGB[1], a.RGB[2]}}
	case ActionSetSpeed:
		return "fan", "set_percentage", map[string]any{"percentage": a.Percent}
	default:
		return entityDomain, string(a.Type), nil
	}
}
