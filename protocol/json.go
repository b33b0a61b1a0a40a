package protocol

import (
	"encoding/json"
	"fmt"
)

// JSON frames envelopes as JSON text messages. It is what browser
// participants speak.
var JSON Codec = jsonCodec{}

type jsonCodec struct{}

type jsonEnvelope struct {
	Event string          `json:"event"`
	From  string          `json:"from,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func (jsonCodec) Subprotocol() string { return "collabtext.json" }

func (jsonCodec) Binary() bool { return false }

func (jsonCodec) Encode(event, from string, payload any) ([]byte, error) {
	env := jsonEnvelope{Event: event, From: from}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("protocol: encoding %s payload: %w", event, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

func (jsonCodec) Decode(frame []byte) (Message, error) {
	var env jsonEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Message{}, fmt.Errorf("protocol: decoding envelope: %w", err)
	}
	return Message{
		Event:     env.Event,
		From:      env.From,
		data:      env.Data,
		unmarshal: json.Unmarshal,
	}, nil
}

func (jsonCodec) Restamp(m Message, from string) ([]byte, error) {
	return json.Marshal(jsonEnvelope{Event: m.Event, From: from, Data: m.data})
}
