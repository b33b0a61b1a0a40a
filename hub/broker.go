package hub

import (
	"context"
	"sync"
)

// Broker fans frames out to every relay instance serving a room and
// keeps the room's participant count.
type Broker interface {
	Publish(ctx context.Context, room string, frame []byte) error
	Subscribe(ctx context.Context, room string) (Subscription, error)

	// Join and Leave adjust the room's participant count and return
	// the new value.
	Join(ctx context.Context, room string) (int64, error)
	Leave(ctx context.Context, room string) (int64, error)

	Close() error
}

// Subscription delivers frames published to one room.
type Subscription interface {
	Frames() <-chan []byte
	Close() error
}

const subscriptionBuffer = 256

// LocalBroker is an in-process Broker for a single relay instance.
type LocalBroker struct {
	mu     sync.Mutex
	subs   map[string]map[*localSubscription]struct{}
	counts map[string]int64
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{
		subs:   make(map[string]map[*localSubscription]struct{}),
		counts: make(map[string]int64),
	}
}

// Publish never blocks; a subscriber whose buffer is full misses the
// frame.
func (b *LocalBroker) Publish(ctx context.Context, room string, frame []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[room] {
		select {
		case sub.frames <- frame:
		default:
		}
	}
	return nil
}

func (b *LocalBroker) Subscribe(ctx context.Context, room string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &localSubscription{
		broker: b,
		room:   room,
		frames: make(chan []byte, subscriptionBuffer),
	}
	if b.subs[room] == nil {
		b.subs[room] = make(map[*localSubscription]struct{})
	}
	b.subs[room][sub] = struct{}{}
	return sub, nil
}

func (b *LocalBroker) Join(ctx context.Context, room string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counts[room]++
	return b.counts[room], nil
}

func (b *LocalBroker) Leave(ctx context.Context, room string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.counts[room] > 0 {
		b.counts[room]--
	}
	n := b.counts[room]
	if n == 0 {
		delete(b.counts, room)
	}
	return n, nil
}

func (b *LocalBroker) Close() error { return nil }

type localSubscription struct {
	broker *LocalBroker
	room   string
	frames chan []byte
	closed bool
}

func (s *localSubscription) Frames() <-chan []byte { return s.frames }

func (s *localSubscription) Close() error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	delete(s.broker.subs[s.room], s)
	if len(s.broker.subs[s.room]) == 0 {
		delete(s.broker.subs, s.room)
	}
	close(s.frames)
	return nil
}
