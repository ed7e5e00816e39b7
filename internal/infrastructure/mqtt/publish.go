package mqtt

import (
	"fmt"
	"strings"
)

// maxPayloadSize is the largest payload accepted for publishing.
// Envelopes are a few hundred bytes; anything near this is a bug upstream.
const maxPayloadSize = 64 << 10

// Publish sends a message to the specified topic.
//
// The call blocks until the broker acknowledges (QoS 1/2) or the publish
// timeout elapses. It never queues while disconnected: callers decide
// whether to skip the cycle or report the failure.
//
// Parameters:
//   - topic: Target topic (no wildcards)
//   - payload: Message content
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: If true, broker stores message for new subscribers
//
// Returns:
//   - error: ErrNotConnected when offline, ErrPublishFailed on broker failure
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validatePublishTopic(topic); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
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

// validatePublishTopic rejects empty topics and wildcard characters,
// which brokers refuse on publish.
func validatePublishTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic cannot be empty", ErrInvalidTopic)
	}
	if strings.ContainsAny(topic, "#+") {
		return fmt.Errorf("%w: wildcards not allowed in publish topic %q", ErrInvalidTopic, topic)
	}
	return nil
}
