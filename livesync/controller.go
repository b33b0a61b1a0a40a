package livesync

import (
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"collabtext/internal/clock"
	"collabtext/protocol"
)

// DefaultQuietInterval is how long local input must pause before the
// document is broadcast.
const DefaultQuietInterval = 100 * time.Millisecond

// Status lines.
const (
	statusUsersFormat  = "Connected users: %s"
	statusDisconnected = "Disconnected from server"
	statusConnectError = "Connection error"
)

// Surface is the editable text the controller keeps in sync. Offsets
// are in runes. The surface is the only store of the document text.
type Surface interface {
	Value() string
	// SetValue replaces the whole text. Implementations may move the
	// caret and scroll position.
	SetValue(text string)
	SelectionStart() int
	SetSelectionRange(start, end int)
	ScrollTop() int
	SetScrollTop(top int)
}

// StatusDisplay shows one line of connection status.
type StatusDisplay interface {
	SetText(text string)
}

// Channel sends named events to the other participants.
type Channel interface {
	Emit(event string, payload any) error
}

// Config wires a Controller to its collaborators.
type Config struct {
	Surface Surface
	Status  StatusDisplay
	Channel Channel

	// Post hands an event back to the goroutine that owns the
	// controller. The debounce timer uses it to fire.
	Post func(Event)

	// QuietInterval defaults to DefaultQuietInterval.
	QuietInterval time.Duration
	// Clock defaults to clock.Real().
	Clock clock.Clock
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Controller mediates between local edits and the shared document.
type Controller struct {
	surface Surface
	status  StatusDisplay
	channel Channel
	post    func(Event)
	quiet   time.Duration
	clock   clock.Clock
	logger  *slog.Logger

	pending    *clock.Timer
	generation uint64
}

// New returns a Controller. Surface, Status, Channel and Post are
// required.
func New(cfg Config) *Controller {
	if cfg.QuietInterval <= 0 {
		cfg.QuietInterval = DefaultQuietInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		surface: cfg.Surface,
		status:  cfg.Status,
		channel: cfg.Channel,
		post:    cfg.Post,
		quiet:   cfg.QuietInterval,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
	}
}

// Handle runs the handler for ev to completion.
func (c *Controller) Handle(ev Event) {
	switch ev.Kind {
	case KindInput:
		c.handleInput()
	case KindUpdate:
		c.handleUpdate(ev.Text)
	case KindUserCount:
		c.status.SetText(fmtUsers(ev.Count))
	case KindDisconnect:
		c.logger.Info("disconnected", "error", ev.Err)
		c.status.SetText(statusDisconnected)
	case KindConnectError:
		c.logger.Error("connection error", "error", ev.Err)
		c.status.SetText(statusConnectError)
	case kindFlush:
		c.flush(ev.generation)
	default:
		c.logger.Warn("ignoring unknown event", "kind", ev.Kind)
	}
}

// Close cancels a pending send. Input still waiting for its quiet
// interval is not broadcast.
func (c *Controller) Close() {
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	c.generation++
}

// Flush sends input still waiting for its quiet interval immediately.
// It does nothing when no send is pending.
func (c *Controller) Flush() {
	if c.pending == nil {
		return
	}
	c.pending.Stop()
	c.flush(c.generation)
	c.generation++
}

func (c *Controller) handleInput() {
	if c.pending != nil {
		c.pending.Stop()
	}
	c.generation++
	generation := c.generation
	c.pending = c.clock.AfterFunc(c.quiet, func() {
		c.post(Event{Kind: kindFlush, generation: generation})
	})
}

// flush ignores timers that were superseded after they had already
// fired but before their event was handled.
func (c *Controller) flush(generation uint64) {
	if generation != c.generation {
		return
	}
	c.pending = nil
	payload := protocol.UpdatePayload{Code: c.surface.Value()}
	if err := c.channel.Emit(protocol.EventUpdate, payload); err != nil {
		c.logger.Warn("dropping update", "error", err)
	}
}

func (c *Controller) handleUpdate(text string) {
	if text == c.surface.Value() {
		return
	}
	cursor := c.surface.SelectionStart()
	scroll := c.surface.ScrollTop()

	c.surface.SetValue(text)

	if n := utf8.RuneCountInString(text); cursor > n {
		cursor = n
	}
	c.surface.SetSelectionRange(cursor, cursor)
	c.surface.SetScrollTop(scroll)
}

func fmtUsers(count any) string {
	return fmt.Sprintf(statusUsersFormat, protocol.FormatCount(count))
}
