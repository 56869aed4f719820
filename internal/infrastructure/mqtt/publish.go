package mqtt

import "fmt"

// maxPayloadSize caps message bodies at 1MB. Entity state payloads are
// tiny; anything larger indicates a bug upstream, and typical broker
// limits sit around this size.
const maxPayloadSize = 1 << 20

// Publish sends one message and waits for broker acknowledgement (for
// QoS > 0) up to the publish timeout.
//
// Retained messages are the backbone of the state mirror: the broker
// keeps the last payload per topic, so consumers that attach late still
// see current state. Use retained for state topics, not for events.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes",
			ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// PublishRetained publishes a retained message at the configured
// default QoS. This is the path state updates take.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true)
}
