package feed

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "feed:"

// Publisher pushes change notifications onto the feed. Services call it after
// their storage writes commit, never before.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type redisPublisher struct {
	redis   *redis.Client
	archive *KafkaArchive
}

// NewPublisher builds the redis pub/sub publisher. archive may be nil.
func NewPublisher(redisClient *redis.Client, archive *KafkaArchive) Publisher {
	return &redisPublisher{redis: redisClient, archive: archive}
}

func (p *redisPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := p.redis.Publish(ctx, channelPrefix+event.Kind, data).Err(); err != nil {
		return err
	}

	if p.archive != nil {
		if err := p.archive.Write(ctx, event); err != nil {
			// The archive is best-effort; live delivery already happened.
			log.Printf("feed: archive write failed for event %s: %v", event.ID, err)
		}
	}
	return nil
}
