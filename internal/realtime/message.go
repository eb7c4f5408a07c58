package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnparsed = errors.New("message body is not a JSON envelope")

// Message is what handlers receive. When the body is not valid JSON the
// message is still delivered with Parsed false and the bytes in Raw.
type Message struct {
	Destination string
	Headers     map[string]string
	Payload     json.RawMessage
	Raw         []byte
	Parsed      bool
}

func (m Message) Decode(v any) error {
	if !m.Parsed {
		return ErrUnparsed
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode message from %s: %w", m.Destination, err)
	}
	return nil
}

func decodeFrame(destination string, f Frame) Message {
	if f.Destination != "" {
		destination = f.Destination
	}

	msg := Message{
		Destination: destination,
		Headers:     f.Headers,
		Raw:         f.Body,
	}

	body := bytes.TrimSpace(f.Body)
	if len(body) > 0 && json.Valid(body) {
		msg.Payload = json.RawMessage(body)
		msg.Parsed = true
	}

	return msg
}

func encodePayload(payload any) ([]byte, string, error) {
	switch v := payload.(type) {
	case []byte:
		return v, "text/plain", nil
	case string:
		return []byte(v), "text/plain", nil
	case json.RawMessage:
		return v, "application/json", nil
	default:
		body, err := json.Marshal(v)
		if err != nil {
			return nil, "", fmt.Errorf("encode payload: %w", err)
		}
		return body, "application/json", nil
	}
}
