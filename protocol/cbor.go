package protocol

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// CBOR frames envelopes as binary messages using core deterministic
// encoding. Used between Go participants and relays.
var CBOR Codec = newCBORCodec()

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

type cborEnvelope struct {
	Event string          `cbor:"event"`
	From  string          `cbor:"from,omitempty"`
	Data  cbor.RawMessage `cbor:"data,omitempty"`
}

func newCBORCodec() cborCodec {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("protocol: CBOR encoder initialization failed: " + err.Error())
	}
	// Count payloads decode into any; keep maps JSON-shaped.
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("protocol: CBOR decoder initialization failed: " + err.Error())
	}
	return cborCodec{enc: enc, dec: dec}
}

func (cborCodec) Subprotocol() string { return "collabtext.cbor" }

func (cborCodec) Binary() bool { return true }

func (c cborCodec) Encode(event, from string, payload any) ([]byte, error) {
	env := cborEnvelope{Event: event, From: from}
	if payload != nil {
		data, err := c.enc.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("protocol: encoding %s payload: %w", event, err)
		}
		env.Data = data
	}
	return c.enc.Marshal(env)
}

func (c cborCodec) Decode(frame []byte) (Message, error) {
	var env cborEnvelope
	if err := c.dec.Unmarshal(frame, &env); err != nil {
		return Message{}, fmt.Errorf("protocol: decoding envelope: %w", err)
	}
	return Message{
		Event:     env.Event,
		From:      env.From,
		data:      env.Data,
		unmarshal: c.dec.Unmarshal,
	}, nil
}

func (c cborCodec) Restamp(m Message, from string) ([]byte, error) {
	return c.enc.Marshal(cborEnvelope{Event: m.Event, From: from, Data: m.data})
}
