// Package protocol defines the named events exchanged between a live
// field and the relay, and the codecs that frame them.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
)

// Event names carried on the wire.
const (
	// EventUpdate carries the full current document text. Sent by a
	// participant after a quiet interval and relayed to the rest of the
	// room.
	EventUpdate = "update"

	// EventUserCount carries the number of participants in the room.
	EventUserCount = "user_count"
)

// UpdatePayload is the body of an update event.
type UpdatePayload struct {
	Code string `json:"code"`
}

// UserCountPayload is the body of a user_count event. Count is kept as
// whatever scalar the sender put on the wire.
type UserCountPayload struct {
	Count any `json:"count"`
}

// ErrUnknownCodec is returned by Lookup for an unrecognized codec name.
var ErrUnknownCodec = errors.New("protocol: unknown codec")

// MissingCount is how FormatCount renders a user_count without a count.
const MissingCount = "unknown"

// Message is one decoded frame. The payload stays encoded until Bind.
type Message struct {
	Event string
	// From is the client id of the participant that produced the event,
	// stamped by the relay. Empty for relay-originated events.
	From string

	data      []byte
	unmarshal func([]byte, any) error
}

// Bind decodes the payload into v. A message without a payload leaves v
// untouched.
func (m Message) Bind(v any) error {
	if len(m.data) == 0 || m.unmarshal == nil {
		return nil
	}
	if err := m.unmarshal(m.data, v); err != nil {
		return fmt.Errorf("protocol: decoding %s payload: %w", m.Event, err)
	}
	return nil
}

// Codec frames envelopes for one websocket subprotocol.
type Codec interface {
	// Subprotocol is the websocket subprotocol name negotiated for
	// this codec.
	Subprotocol() string

	// Binary reports whether frames go out as binary messages.
	Binary() bool

	Encode(event, from string, payload any) ([]byte, error)
	Decode(frame []byte) (Message, error)

	// Restamp re-encodes m with a new sender id without decoding the
	// payload.
	Restamp(m Message, from string) ([]byte, error)
}

// Codecs returns every codec a relay can negotiate, preferred first.
func Codecs(preferred Codec) []Codec {
	all := []Codec{preferred}
	for _, c := range []Codec{JSON, CBOR} {
		if c.Subprotocol() != preferred.Subprotocol() {
			all = append(all, c)
		}
	}
	return all
}

// Subprotocols returns the subprotocol names of codecs, in order.
func Subprotocols(codecs []Codec) []string {
	names := make([]string, len(codecs))
	for i, c := range codecs {
		names[i] = c.Subprotocol()
	}
	return names
}

// Transcode re-encodes m with the codec to, keeping its event and
// sender. The payload passes through a generic value, so numbers may
// change representation but not value.
func Transcode(m Message, to Codec) ([]byte, error) {
	var payload any
	if err := m.Bind(&payload); err != nil {
		return nil, err
	}
	return to.Encode(m.Event, m.From, payload)
}

// Lookup returns the codec registered under name. Both the short name
// ("json", "cbor") and the subprotocol name are accepted.
func Lookup(name string) (Codec, error) {
	switch name {
	case "", "json", JSON.Subprotocol():
		return JSON, nil
	case "cbor", CBOR.Subprotocol():
		return CBOR, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}

// FormatCount renders a count payload as received. A missing count
// renders as MissingCount so a malformed payload stays visible.
func FormatCount(v any) string {
	switch c := v.(type) {
	case nil:
		return MissingCount
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	case string:
		return c
	default:
		return fmt.Sprint(c)
	}
}
