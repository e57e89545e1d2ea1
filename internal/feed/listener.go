package feed

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Listener consumes the raw feed and hands each decoded event to a sink
// (the subscription router). A dropped pub/sub connection triggers automatic
// resubscription with the same channel set; events missed during the gap are
// not backfilled — clients resync via the list endpoints.
type Listener struct {
	redis *redis.Client
	sink  func(Event)
}

func NewListener(redisClient *redis.Client, sink func(Event)) *Listener {
	return &Listener{redis: redisClient, sink: sink}
}

// Run blocks until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) {
	channels := []string{
		channelPrefix + KindRide,
		channelPrefix + KindBid,
		channelPrefix + KindPresence,
	}

	for {
		if err := l.consume(ctx, channels); err != nil {
			log.Printf("feed: listener disconnected: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
			// resubscribe
		}
	}
}

func (l *Listener) consume(ctx context.Context, channels []string) error {
	pubsub := l.redis.Subscribe(ctx, channels...)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return context.Canceled
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("feed: dropping undecodable payload on %s: %v", msg.Channel, err)
				continue
			}
			l.sink(event)
		}
	}
}
