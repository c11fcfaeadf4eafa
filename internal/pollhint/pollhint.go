// Package pollhint publishes and subscribes to a lightweight Redis
// pub/sub "poll now" nudge. Postgres remains the sole source of truth for
// job/unit state; losing a hint only costs one extra poll interval of
// latency, never correctness, so failures here are logged and swallowed
// rather than propagated.
package pollhint

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is used when callers don't override it via configuration.
const DefaultChannel = "export:poll-hint"

// Notifier publishes poll hints.
type Notifier struct {
	client  *redis.Client
	channel string
}

// NewNotifier builds a Notifier from an already-constructed client and
// the configured channel name (worker.poll.hint channel).
func NewNotifier(client *redis.Client, channel string) *Notifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Notifier{client: client, channel: channel}
}

// Notify publishes a hint that new work may be eligible. Errors are
// logged, never returned: a dropped hint is harmless since the poller's
// own interval is the correctness backstop.
func (n *Notifier) Notify(ctx context.Context) {
	if n == nil || n.client == nil {
		return
	}
	if err := n.client.Publish(ctx, n.channel, "1").Err(); err != nil {
		log.Printf("pollhint: publish: %v", err)
	}
}

// Subscription receives poll hints and exposes them as a channel of
// empty-struct signals, coalesced the way a semaphore would be: a slow
// consumer does not fall behind by more than one pending signal.
type Subscription struct {
	pubsub *redis.PubSub
	signal chan struct{}
}

// Subscribe opens a subscription on the given poll-hint channel. Call
// Close when done.
func Subscribe(ctx context.Context, client *redis.Client, channel string) *Subscription {
	if channel == "" {
		channel = DefaultChannel
	}
	s := &Subscription{
		pubsub: client.Subscribe(ctx, channel),
		signal: make(chan struct{}, 1),
	}
	go s.pump(ctx)
	return s
}

func (s *Subscription) pump(ctx context.Context) {
	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			select {
			case s.signal <- struct{}{}:
			default:
			}
		}
	}
}

// C returns the channel the poller selects on to wake early, ahead of
// its normal backoff interval.
func (s *Subscription) C() <-chan struct{} {
	return s.signal
}

// Close releases the underlying Redis subscription.
func (s *Subscription) Close() error {
	return s.pubsub.Close()
}
