// Package envelope defines the wire format exchanged between the controller
// and the worker entry point over the message broker.
//
// The original backend this package replaces shuttled a dynamic dict with an
// "action" tag and a base64-encoded opaque payload. Here the tag is a closed
// enum and the payload is a typed struct per action, decoded on demand.
package envelope

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Action identifies what a Message asks the receiver to do.
type Action string

const (
	ActionGetMetadata Action = "get_metadata"
	ActionSendTask    Action = "send_task"
	ActionStop        Action = "stop"
)

// Message is the envelope published on the management or task queue.
type Message struct {
	Action  Action `json:"action"`
	Payload string `json:"payload"` // base64 of a canonical JSON payload
}

// Encode canonically serializes payload to JSON, base64-encodes it, and
// wraps it in a Message envelope ready to publish.
func Encode(action Action, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshal payload: %w", err)
	}
	msg := Message{
		Action:  action,
		Payload: base64.StdEncoding.EncodeToString(raw),
	}
	return json.Marshal(msg)
}

// Decode parses a published message body into its envelope.
func Decode(body []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return Message{}, fmt.Errorf("envelope: unmarshal message: %w", err)
	}
	return msg, nil
}

// DecodePayload base64-decodes and JSON-unmarshals the message's payload
// into dst.
func (m Message) DecodePayload(dst any) error {
	raw, err := base64.StdEncoding.DecodeString(m.Payload)
	if err != nil {
		return fmt.Errorf("envelope: decode payload: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("envelope: unmarshal payload: %w", err)
	}
	return nil
}
