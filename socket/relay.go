package socket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"naskahlive/pkg/logger"
)

type relayEnvelope struct {
	Instance string `json:"instance"`
	Event    Event  `json:"event"`
}

// RedisRelay fans document changes out to other instances over Redis pub/sub.
// Nothing is stored in Redis.
type RedisRelay struct {
	client   *redis.Client
	prefix   string
	instance string
}

func NewRedisRelay(client *redis.Client, prefix string) *RedisRelay {
	return &RedisRelay{
		client:   client,
		prefix:   prefix,
		instance: ulid.Make().String(),
	}
}

func (r *RedisRelay) Instance() string {
	return r.instance
}

func (r *RedisRelay) channel(docID string) string {
	return fmt.Sprintf("%s:document:%s", r.prefix, docID)
}

func (r *RedisRelay) Publish(ctx context.Context, evt Event) error {
	payload, err := r.encode(evt)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel(evt.DocumentID), payload).Err()
}

func (r *RedisRelay) Subscribe(ctx context.Context, handle func(Event)) error {
	pubsub := r.client.PSubscribe(ctx, r.channel("*"))
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", r.channel("*"), err)
	}
	logger.Sugar.Infof("Relay %s subscribed to %s", r.instance, r.channel("*"))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			evt, ok := r.decode([]byte(msg.Payload))
			if !ok {
				continue
			}
			handle(evt)
		}
	}
}

func (r *RedisRelay) encode(evt Event) ([]byte, error) {
	return json.Marshal(relayEnvelope{Instance: r.instance, Event: evt})
}

// decode drops garbage and events published by this instance.
func (r *RedisRelay) decode(payload []byte) (Event, bool) {
	var env relayEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		logger.Sugar.Warnf("Dropping malformed relay message: %v", err)
		return Event{}, false
	}
	if env.Instance == r.instance {
		return Event{}, false
	}
	return env.Event, true
}
