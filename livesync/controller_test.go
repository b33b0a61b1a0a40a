package livesync

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"collabtext/internal/clock"
	"collabtext/protocol"
	"collabtext/textarea"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type emitted struct {
	event   string
	payload any
}

type recordingChannel struct {
	sent []emitted
	err  error
}

func (c *recordingChannel) Emit(event string, payload any) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, emitted{event, payload})
	return nil
}

func (c *recordingChannel) codes() []string {
	var out []string
	for _, e := range c.sent {
		out = append(out, e.payload.(protocol.UpdatePayload).Code)
	}
	return out
}

type statusLine struct{ text string }

func (s *statusLine) SetText(text string) { s.text = text }

// countingSurface wraps a textarea and counts mutations.
type countingSurface struct {
	*textarea.Area
	mutations int
}

func (s *countingSurface) SetValue(text string) {
	s.mutations++
	s.Area.SetValue(text)
}

func (s *countingSurface) SetSelectionRange(start, end int) {
	s.mutations++
	s.Area.SetSelectionRange(start, end)
}

func (s *countingSurface) SetScrollTop(top int) {
	s.mutations++
	s.Area.SetScrollTop(top)
}

type harness struct {
	controller *Controller
	clock      *clock.FakeClock
	surface    *countingSurface
	status     *statusLine
	channel    *recordingChannel
	logs       *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:   clock.Fake(epoch),
		surface: &countingSurface{Area: textarea.New(3)},
		status:  &statusLine{},
		channel: &recordingChannel{},
		logs:    &bytes.Buffer{},
	}
	h.controller = New(Config{
		Surface: h.surface,
		Status:  h.status,
		Channel: h.channel,
		// The fake clock fires timers on the test goroutine, which owns
		// the controller.
		Post:   func(ev Event) { h.controller.Handle(ev) },
		Clock:  h.clock,
		Logger: slog.New(slog.NewTextHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	})
	return h
}

// typeText simulates a keystroke that changes the surface.
func (h *harness) typeText(s string) {
	h.surface.Area.Insert(s)
	h.controller.Handle(Event{Kind: KindInput})
}

func TestBurstOfInputSendsOnce(t *testing.T) {
	h := newHarness(t)
	for _, r := range "hello" {
		h.typeText(string(r))
		h.clock.Advance(DefaultQuietInterval / 2)
	}
	if len(h.channel.sent) != 0 {
		t.Fatalf("sent %d updates mid-burst, want 0", len(h.channel.sent))
	}

	h.clock.Advance(DefaultQuietInterval)
	codes := h.channel.codes()
	if len(codes) != 1 || codes[0] != "hello" {
		t.Fatalf("sent %q, want [hello]", codes)
	}
	if h.channel.sent[0].event != protocol.EventUpdate {
		t.Fatalf("event = %q, want %q", h.channel.sent[0].event, protocol.EventUpdate)
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("%d timers still pending", h.clock.Pending())
	}
}

func TestSeparatedInputSendsTwice(t *testing.T) {
	h := newHarness(t)
	h.typeText("a")
	h.clock.Advance(DefaultQuietInterval + time.Millisecond)
	h.typeText("b")
	h.clock.Advance(DefaultQuietInterval + time.Millisecond)

	codes := h.channel.codes()
	if len(codes) != 2 || codes[0] != "a" || codes[1] != "ab" {
		t.Fatalf("sent %q, want [a ab]", codes)
	}
}

func TestSendCarriesTextAtFireTime(t *testing.T) {
	h := newHarness(t)
	h.typeText("x")
	// A remote update lands while the local send is pending.
	h.controller.Handle(Event{Kind: KindUpdate, Text: "remote"})
	h.clock.Advance(DefaultQuietInterval)

	codes := h.channel.codes()
	if len(codes) != 1 || codes[0] != "remote" {
		t.Fatalf("sent %q, want [remote]", codes)
	}
}

func TestStaleFlushIsIgnored(t *testing.T) {
	h := newHarness(t)
	var queued []Event
	h.controller.post = func(ev Event) { queued = append(queued, ev) }

	h.typeText("a")
	h.clock.Advance(DefaultQuietInterval)
	// The first timer fired but its flush is still queued when more
	// input arrives.
	h.typeText("b")
	h.clock.Advance(DefaultQuietInterval)

	if len(queued) != 2 {
		t.Fatalf("queued %d flushes, want 2", len(queued))
	}
	for _, ev := range queued {
		h.controller.Handle(ev)
	}
	codes := h.channel.codes()
	if len(codes) != 1 || codes[0] != "ab" {
		t.Fatalf("sent %q, want [ab]", codes)
	}
}

func TestCloseCancelsPendingSend(t *testing.T) {
	h := newHarness(t)
	h.typeText("a")
	h.controller.Close()
	h.clock.Advance(time.Second)
	if len(h.channel.sent) != 0 {
		t.Fatalf("sent %q after Close", h.channel.codes())
	}
}

func TestFlushSendsPendingInputOnce(t *testing.T) {
	h := newHarness(t)
	var queued []Event
	h.controller.post = func(ev Event) { queued = append(queued, ev) }

	h.controller.Flush()
	if len(h.channel.sent) != 0 {
		t.Fatalf("Flush with nothing pending sent %q", h.channel.codes())
	}

	h.typeText("ab")
	// The timer fires but its flush is still queued when Flush runs.
	h.clock.Advance(DefaultQuietInterval)
	h.controller.Flush()
	for _, ev := range queued {
		h.controller.Handle(ev)
	}
	h.clock.Advance(time.Second)

	codes := h.channel.codes()
	if len(codes) != 1 || codes[0] != "ab" {
		t.Fatalf("sent %q, want [ab]", codes)
	}
}

func TestEmitFailureIsLoggedAndDropped(t *testing.T) {
	h := newHarness(t)
	h.channel.err = errors.New("not connected")
	h.typeText("a")
	h.clock.Advance(DefaultQuietInterval)
	if !strings.Contains(h.logs.String(), "not connected") {
		t.Fatalf("log %q does not mention the emit failure", h.logs.String())
	}

	h.channel.err = nil
	h.clock.Advance(time.Second)
	if len(h.channel.sent) != 0 {
		t.Fatalf("dropped update was retried: %q", h.channel.codes())
	}
}

func TestEchoIsSuppressed(t *testing.T) {
	h := newHarness(t)
	h.surface.Area.SetValue("same text")
	h.surface.Area.SetSelectionRange(2, 2)

	h.controller.Handle(Event{Kind: KindUpdate, Text: "same text"})
	h.clock.Advance(time.Second)

	if h.surface.mutations != 0 {
		t.Fatalf("surface mutated %d times on echo", h.surface.mutations)
	}
	if h.surface.SelectionStart() != 2 {
		t.Fatalf("cursor moved to %d", h.surface.SelectionStart())
	}
	if len(h.channel.sent) != 0 {
		t.Fatalf("echo triggered a send: %q", h.channel.codes())
	}
}

func TestRemoteUpdateKeepsCursorAndScroll(t *testing.T) {
	h := newHarness(t)
	h.surface.Area.SetValue("abcdef")
	h.surface.Area.SetSelectionRange(3, 3)

	h.controller.Handle(Event{Kind: KindUpdate, Text: "abcXYZdef"})

	if got := h.surface.Value(); got != "abcXYZdef" {
		t.Fatalf("Value() = %q, want abcXYZdef", got)
	}
	if h.surface.SelectionStart() != 3 || h.surface.SelectionEnd() != 3 {
		t.Fatalf("selection = [%d,%d), want collapsed at 3",
			h.surface.SelectionStart(), h.surface.SelectionEnd())
	}
	if h.surface.ScrollTop() != 0 {
		t.Fatalf("ScrollTop() = %d, want 0", h.surface.ScrollTop())
	}
	if len(h.channel.sent) != 0 {
		t.Fatal("remote update triggered a send")
	}
}

func TestRemoteUpdateKeepsScrollOffset(t *testing.T) {
	h := newHarness(t)
	h.surface.Area.SetValue("1\n2\n3\n4\n5\n6\n7")
	h.surface.Area.SetSelectionRange(8, 8)
	h.surface.Area.SetScrollTop(2)

	h.controller.Handle(Event{Kind: KindUpdate, Text: "0\n1\n2\n3\n4\n5\n6\n7"})

	if got := h.surface.ScrollTop(); got != 2 {
		t.Fatalf("ScrollTop() = %d, want 2", got)
	}
	if got := h.surface.SelectionStart(); got != 8 {
		t.Fatalf("SelectionStart() = %d, want 8", got)
	}
}

func TestRemoteUpdateClampsCursor(t *testing.T) {
	h := newHarness(t)
	h.surface.Area.SetValue("a long line of text")
	h.surface.Area.SetSelectionRange(15, 15)

	h.controller.Handle(Event{Kind: KindUpdate, Text: "short"})

	if h.surface.SelectionStart() != 5 || h.surface.SelectionEnd() != 5 {
		t.Fatalf("selection = [%d,%d), want collapsed at 5",
			h.surface.SelectionStart(), h.surface.SelectionEnd())
	}
}

func TestRemoteUpdateCollapsesSelection(t *testing.T) {
	h := newHarness(t)
	h.surface.Area.SetValue("abcdef")
	h.surface.Area.SetSelectionRange(1, 4)

	h.controller.Handle(Event{Kind: KindUpdate, Text: "abcdefg"})

	if h.surface.SelectionStart() != 1 || h.surface.SelectionEnd() != 1 {
		t.Fatalf("selection = [%d,%d), want collapsed at 1",
			h.surface.SelectionStart(), h.surface.SelectionEnd())
	}
}

func TestStatusRendering(t *testing.T) {
	h := newHarness(t)

	h.controller.Handle(Event{Kind: KindUserCount, Count: float64(5)})
	users := h.status.text
	if !strings.Contains(users, "5") {
		t.Fatalf("count status %q does not contain 5", users)
	}

	h.controller.Handle(Event{Kind: KindDisconnect, Err: errors.New("EOF")})
	disconnected := h.status.text
	if disconnected == users || strings.Contains(disconnected, "Connected users") {
		t.Fatalf("disconnect status %q looks like the count status", disconnected)
	}

	h.controller.Handle(Event{Kind: KindConnectError, Err: errors.New("dial tcp: connection refused")})
	connErr := h.status.text
	if connErr == users || connErr == disconnected || strings.Contains(connErr, "Connected users") {
		t.Fatalf("connect error status %q is not distinct", connErr)
	}
	if !strings.Contains(h.logs.String(), "dial tcp: connection refused") {
		t.Fatalf("log %q does not contain the error description", h.logs.String())
	}
}

func TestUserCountRendersUnvalidated(t *testing.T) {
	h := newHarness(t)
	for count, want := range map[any]string{
		float64(-1): "Connected users: -1",
		"lots":      "Connected users: lots",
		uint64(12):  "Connected users: 12",
		nil:         "Connected users: unknown",
	} {
		h.controller.Handle(Event{Kind: KindUserCount, Count: count})
		if h.status.text != want {
			t.Fatalf("status = %q, want %q", h.status.text, want)
		}
	}
}
