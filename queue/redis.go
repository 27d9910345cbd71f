package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/beingmushfiq/Track-R/parser"
	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	GpsQueue    string
	StatusQueue string
}

// RedisPublisher appends JSON documents to the tail of two Redis lists.
type RedisPublisher struct {
	client      *redis.Client
	gpsQueue    string
	statusQueue string
}

var _ Publisher = &RedisPublisher{}

func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	p := &RedisPublisher{
		client:      client,
		gpsQueue:    cfg.GpsQueue,
		statusQueue: cfg.StatusQueue,
	}
	if p.gpsQueue == "" {
		p.gpsQueue = DefaultGpsQueue
	}
	if p.statusQueue == "" {
		p.statusQueue = DefaultStatusQueue
	}
	return p, nil
}

func (p *RedisPublisher) PushGpsData(ctx context.Context, rec *parser.Record) error {
	return p.rpush(ctx, p.gpsQueue, rec)
}

func (p *RedisPublisher) PushDeviceStatus(ctx context.Context, ev *DeviceStatusEvent) error {
	return p.rpush(ctx, p.statusQueue, ev)
}

func (p *RedisPublisher) rpush(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s item: %w", key, err)
	}
	if err := p.client.RPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("redis rpush %s: %w", key, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
