package repository

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/GoPolymarket/intentgate/internal/model"
)

// RedisEventSink publishes each event on a channel and keeps a capped list of the latest ones.
type RedisEventSink struct {
	client  *redis.Client
	channel string
	listKey string
	listMax int
}

func NewRedisEventSink(client *redis.Client, channel, listKey string, listMax int) *RedisEventSink {
	if channel == "" {
		channel = "intentgate:events"
	}
	if listKey == "" {
		listKey = "intentgate:events:recent"
	}
	if listMax <= 0 {
		listMax = 10000
	}
	return &RedisEventSink{
		client:  client,
		channel: channel,
		listKey: listKey,
		listMax: listMax,
	}
}

func (s *RedisEventSink) Name() string {
	return "redis"
}

func (s *RedisEventSink) Write(ctx context.Context, evt *model.Event) error {
	if evt == nil {
		return nil
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Publish(ctx, s.channel, payload)
	pipe.LPush(ctx, s.listKey, payload)
	pipe.LTrim(ctx, s.listKey, 0, int64(s.listMax-1))
	_, err = pipe.Exec(ctx)
	return err
}

// List returns up to limit of the most recent events, optionally only those named name.
func (s *RedisEventSink) List(ctx context.Context, name string, limit int) ([]*model.Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	fetch := limit * 5
	if fetch < 100 {
		fetch = 100
	}
	if fetch > s.listMax {
		fetch = s.listMax
	}
	items, err := s.client.LRange(ctx, s.listKey, 0, int64(fetch-1)).Result()
	if err != nil {
		return nil, err
	}
	results := make([]*model.Event, 0, limit)
	for _, item := range items {
		var evt struct {
			model.Event
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal([]byte(item), &evt); err != nil {
			continue
		}
		if name != "" && evt.Name != name {
			continue
		}
		out := evt.Event
		out.Payload = evt.Payload
		results = append(results, &out)
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}
