package hub

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBroker shares rooms between relay instances through Redis
// pub/sub, with participant counts kept in plain counters.
type RedisBroker struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisBroker returns a broker using rdb. Keys and channels are
// namespaced under prefix.
func NewRedisBroker(rdb *redis.Client, prefix string) *RedisBroker {
	if prefix == "" {
		prefix = "collabtext"
	}
	return &RedisBroker{rdb: rdb, prefix: prefix}
}

func (b *RedisBroker) channel(room string) string { return b.prefix + ":room:" + room }

func (b *RedisBroker) countKey(room string) string { return b.prefix + ":count:" + room }

func (b *RedisBroker) Publish(ctx context.Context, room string, frame []byte) error {
	if err := b.rdb.Publish(ctx, b.channel(room), frame).Err(); err != nil {
		return fmt.Errorf("publishing to room %s: %w", room, err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription, so
// frames published after it returns are not missed.
func (b *RedisBroker) Subscribe(ctx context.Context, room string) (Subscription, error) {
	pubsub := b.rdb.Subscribe(ctx, b.channel(room))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribing to room %s: %w", room, err)
	}
	sub := &redisSubscription{
		pubsub: pubsub,
		frames: make(chan []byte, subscriptionBuffer),
	}
	go sub.relay()
	return sub, nil
}

func (b *RedisBroker) Join(ctx context.Context, room string) (int64, error) {
	n, err := b.rdb.Incr(ctx, b.countKey(room)).Result()
	if err != nil {
		return 0, fmt.Errorf("counting join to room %s: %w", room, err)
	}
	return n, nil
}

func (b *RedisBroker) Leave(ctx context.Context, room string) (int64, error) {
	n, err := b.rdb.Decr(ctx, b.countKey(room)).Result()
	if err != nil {
		return 0, fmt.Errorf("counting leave from room %s: %w", room, err)
	}
	if n <= 0 {
		b.rdb.Del(ctx, b.countKey(room))
		n = 0
	}
	return n, nil
}

func (b *RedisBroker) Close() error { return b.rdb.Close() }

type redisSubscription struct {
	pubsub *redis.PubSub
	frames chan []byte
}

func (s *redisSubscription) relay() {
	defer close(s.frames)
	for msg := range s.pubsub.Channel() {
		s.frames <- []byte(msg.Payload)
	}
}

func (s *redisSubscription) Frames() <-chan []byte { return s.frames }

func (s *redisSubscription) Close() error { return s.pubsub.Close() }
