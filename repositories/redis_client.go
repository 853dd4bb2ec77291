package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Subscription is one live pub/sub subscription. Closing it unblocks any
// pending ReceiveMessage call.
type Subscription interface {
	ReceiveMessage(ctx context.Context) (string, error)
	Close() error
}

type RedisClient interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) Subscription
	RPush(ctx context.Context, key, value string) error
	SAdd(ctx context.Context, key string, member string) (int64, error)
	SRem(ctx context.Context, key string, member string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Ping(ctx context.Context) error
}

type redisClient struct {
	client *redis.Client
}

func NewRedisClient(addr, password string, db int) RedisClient {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &redisClient{client: rdb}
}

// NewRedisClientFrom wraps an existing go-redis client.
func NewRedisClientFrom(rdb *redis.Client) RedisClient {
	return &redisClient{client: rdb}
}

// Get returns the value and whether the key exists. Miss and expiry are
// indistinguishable.
func (r *redisClient) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return val, true, nil
}

// Set stores a value. A zero ttl means no expiry.
func (r *redisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisClient) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.client.Publish(ctx, channel, payload).Err()
}

func (r *redisClient) Subscribe(ctx context.Context, channel string) Subscription {
	return &redisSubscription{pubsub: r.client.Subscribe(ctx, channel)}
}

func (r *redisClient) RPush(ctx context.Context, key, value string) error {
	return r.client.RPush(ctx, key, value).Err()
}

func (r *redisClient) SAdd(ctx context.Context, key string, member string) (int64, error) {
	return r.client.SAdd(ctx, key, member).Result()
}

func (r *redisClient) SRem(ctx context.Context, key string, member string) error {
	return r.client.SRem(ctx, key, member).Err()
}

func (r *redisClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, key, ttl).Err()
}

func (r *redisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

type redisSubscription struct {
	pubsub *redis.PubSub
}

func (s *redisSubscription) ReceiveMessage(ctx context.Context) (string, error) {
	msg, err := s.pubsub.ReceiveMessage(ctx)
	if err != nil {
		return "", err
	}
	return msg.Payload, nil
}

func (s *redisSubscription) Close() error {
	return s.pubsub.Close()
}
