// Package redis caches the latest frame per chart in Redis and carries
// frames published by producers over Pub/Sub.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"signalchart/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// chartIDsKey is the set of chart ids with a cached frame.
	chartIDsKey = "chart:ids"

	frameTTL = 7 * 24 * time.Hour
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// FrameCache stores the latest frame of each chart under chart:frame:{id}
// and publishes/subscribes frames on pub:frame:{id}.
type FrameCache struct {
	client *goredis.Client
}

// New connects to Redis and pings the server.
func New(cfg Config) (*FrameCache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &FrameCache{client: client}, nil
}

// Client returns the underlying Redis client for health checks.
func (c *FrameCache) Client() *goredis.Client { return c.client }

// Ping checks connectivity.
func (c *FrameCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// SaveFrame implements model.FrameWriter.
func (c *FrameCache) SaveFrame(ctx context.Context, f model.Frame) error {
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, model.CacheKey(f.Chart), f.JSON(), frameTTL)
	pipe.SAdd(ctx, chartIDsKey, f.Chart)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save frame %s: %w", f.Chart, err)
	}
	return nil
}

// DeleteFrame implements model.FrameWriter.
func (c *FrameCache) DeleteFrame(ctx context.Context, chart string) error {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, model.CacheKey(chart))
	pipe.SRem(ctx, chartIDsKey, chart)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete frame %s: %w", chart, err)
	}
	return nil
}

// LoadFrames implements model.FrameReader. Ids whose key expired are
// pruned from the id set; undecodable entries are skipped.
func (c *FrameCache) LoadFrames(ctx context.Context) ([]model.Frame, error) {
	ids, err := c.client.SMembers(ctx, chartIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list charts: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = model.CacheKey(id)
	}
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load frames: %w", err)
	}

	frames := make([]model.Frame, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			c.client.SRem(ctx, chartIDsKey, ids[i])
			continue
		}
		f, err := model.DecodeFrame([]byte(s))
		if err != nil {
			log.Printf("[redis] skipping cached frame %s: %v", ids[i], err)
			continue
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// Publish sends f to the frame channel of its chart.
func (c *FrameCache) Publish(ctx context.Context, f model.Frame) error {
	if f.TS == 0 {
		f.TS = time.Now().UnixMilli()
	}
	if err := c.client.Publish(ctx, model.ChannelKey(f.Chart), f.JSON()).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", f.Chart, err)
	}
	return nil
}

// SubscribeFrames implements model.FrameSubscriber over the pub:frame:*
// pattern. A payload whose chart id is empty takes it from the channel.
func (c *FrameCache) SubscribeFrames(ctx context.Context, fn func(model.Frame)) error {
	pubsub := c.client.PSubscribe(ctx, model.ChannelKey("*"))
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis psubscribe: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			f, err := decodePublished(msg.Channel, msg.Payload)
			if err != nil {
				log.Printf("[redis] dropping frame on %s: %v", msg.Channel, err)
				continue
			}
			fn(f)
		}
	}
}

func decodePublished(channel, payload string) (model.Frame, error) {
	var f model.Frame
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		return model.Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Chart == "" {
		f.Chart = strings.TrimPrefix(channel, model.ChannelKey(""))
	}
	if f.Chart == "" {
		return model.Frame{}, fmt.Errorf("decode frame: chart id is required")
	}
	return f, nil
}

// Close closes the Redis connection.
func (c *FrameCache) Close() error {
	return c.client.Close()
}
