package livesync

import (
	"fmt"

	"collabtext/protocol"
)

// Kind enumerates the event sources a Controller reacts to.
type Kind int

const (
	// KindInput is a local edit that changed the surface's value.
	KindInput Kind = iota
	// KindUpdate is a remote update carrying the full document text.
	KindUpdate
	// KindUserCount is a participant count from the relay.
	KindUserCount
	// KindDisconnect reports that the connection was lost.
	KindDisconnect
	// KindConnectError reports a failed connection attempt.
	KindConnectError

	// kindFlush is posted by the debounce timer.
	kindFlush
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindUpdate:
		return "update"
	case KindUserCount:
		return "user_count"
	case KindDisconnect:
		return "disconnect"
	case KindConnectError:
		return "connect_error"
	case kindFlush:
		return "flush"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Event is one unit of work for a Controller.
type Event struct {
	Kind Kind

	// Text is the remote document text for KindUpdate.
	Text string
	// Count is the participant count for KindUserCount, as received.
	Count any
	// Err describes the failure for KindDisconnect and KindConnectError.
	Err error

	generation uint64
}

// Inbound adapts transport callbacks into Controller events. The
// function it wraps must deliver events to the Controller's owner in
// call order.
type Inbound func(Event)

// HandleMessage translates a wire message. Messages with an unknown
// event name are dropped.
func (post Inbound) HandleMessage(m protocol.Message) {
	ev, ok := Decode(m)
	if !ok {
		return
	}
	post(ev)
}

func (post Inbound) HandleDisconnect(err error) {
	post(Event{Kind: KindDisconnect, Err: err})
}

func (post Inbound) HandleConnectError(err error) {
	post(Event{Kind: KindConnectError, Err: err})
}

// Decode maps a wire message onto an Event. Payload fields that are
// missing are left at their zero value; a payload that does not decode
// drops the message.
func Decode(m protocol.Message) (Event, bool) {
	switch m.Event {
	case protocol.EventUpdate:
		var p protocol.UpdatePayload
		if err := m.Bind(&p); err != nil {
			return Event{}, false
		}
		return Event{Kind: KindUpdate, Text: p.Code}, true
	case protocol.EventUserCount:
		var p protocol.UserCountPayload
		if err := m.Bind(&p); err != nil {
			return Event{}, false
		}
		return Event{Kind: KindUserCount, Count: p.Count}, true
	}
	return Event{}, false
}
