package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/attestry/attestry"
)

const eventChannel = "attestry:events"

type SignalService struct {
	rdb *redis.Client
}

func NewSignalService(redisClient *redis.Client) *SignalService {
	return &SignalService{
		rdb: redisClient,
	}
}

func (s *SignalService) Publish(ctx context.Context, event attestry.Event) error {
	jsonstr, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = s.rdb.Publish(ctx, eventChannel, jsonstr).Err()
	if err != nil {
		return err
	}

	return nil
}

// Realtime forwards confirmed-revision events to output. input carries
// stream-id filters; an empty filter set passes everything through.
// Returns once ctx is cancelled; the caller must not close the channels.
func (s *SignalService) Realtime(ctx context.Context, input chan []string, output chan attestry.Event) {
	pubsub := s.rdb.Subscribe(ctx, eventChannel)
	defer pubsub.Close()

	s.fanout(ctx, pubsub.Channel(), input, output)
}

func (s *SignalService) fanout(ctx context.Context, messages <-chan *redis.Message, input chan []string, output chan attestry.Event) {
	filters := map[string]struct{}{}

	for {
		select {
		case <-ctx.Done():
			return
		case streamIDs, ok := <-input:
			if !ok {
				return
			}
			filters = make(map[string]struct{}, len(streamIDs))
			for _, id := range streamIDs {
				filters[id] = struct{}{}
			}
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var event attestry.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				slog.ErrorContext(
					ctx, "Error decoding event",
					slog.String("error", err.Error()),
					slog.String("module", "signal"),
				)
				continue
			}
			if len(filters) > 0 {
				if _, ok := filters[event.StreamID]; !ok {
					continue
				}
			}
			// The receiver may stop listening at any time; the send must
			// stay cancellable or this goroutine wedges here.
			select {
			case output <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}
