// Package signal fans insert events out to realtime subscribers through
// redis pub/sub, one channel per owner.
package signal

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/fumikura/outfeed"
)

type Service struct {
	rdb *redis.Client
}

func NewService(redisClient *redis.Client) *Service {
	return &Service{
		rdb: redisClient,
	}
}

func channelFor(ownerID string) string {
	return "outputs:" + ownerID
}

// Publish announces an event on the owner's channel.
func (s *Service) Publish(ctx context.Context, ownerID string, event outfeed.Event) error {
	jsonstr, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "signal.Publish: marshal failed")
	}

	err = s.rdb.Publish(ctx, channelFor(ownerID), jsonstr).Err()
	if err != nil {
		return errors.Wrap(err, "signal.Publish: redis publish failed")
	}

	return nil
}

// Listen forwards the owner's events into out until ctx is done. Malformed
// payloads are dropped with a log line; subscribers simply miss them.
func (s *Service) Listen(ctx context.Context, ownerID string, out chan<- outfeed.Event) {
	pubsub := s.rdb.Subscribe(ctx, channelFor(ownerID))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event outfeed.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				slog.ErrorContext(
					ctx, "Dropping malformed signal payload",
					slog.String("error", err.Error()),
					slog.String("module", "signal"),
				)
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}
