package livesync

import (
	"context"
)

// Loop owns a Controller and runs its handlers one at a time, in the
// order events were posted. Use it when there is no host event loop.
type Loop struct {
	controller *Controller
	mailbox    chan Event
	done       chan struct{}
}

// NewLoop builds a Controller from cfg and wraps it in a Loop. cfg.Post
// is overwritten to point at the loop's mailbox.
func NewLoop(cfg Config, mailboxSize int) *Loop {
	l := &Loop{
		mailbox: make(chan Event, mailboxSize),
		done:    make(chan struct{}),
	}
	cfg.Post = func(ev Event) { l.Post(ev) }
	l.controller = New(cfg)
	return l
}

// Post enqueues ev. It blocks while the mailbox is full and returns
// false once the loop has stopped.
func (l *Loop) Post(ev Event) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.mailbox <- ev:
		return true
	case <-l.done:
		return false
	}
}

// Inbound returns a transport handler that posts into this loop.
func (l *Loop) Inbound() Inbound {
	return func(ev Event) { l.Post(ev) }
}

// Run handles events until ctx is done. A pending send is cancelled on
// return. Run must be called at most once.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		close(l.done)
		l.controller.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-l.mailbox:
			l.controller.Handle(ev)
		}
	}
}
