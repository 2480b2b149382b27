// Package redis provides Redis-backed storage and the redis.publish and
// redis.incr actions.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/appsemble/apprunner/runtime/plugin"
)

type Config struct {
	URL       string        `yaml:"url" default:"redis://localhost:6379" validate:"required,url_format"`
	Prefix    string        `yaml:"prefix" default:"apprunner"`
	Namespace string        `yaml:"namespace" default:"default"`
	TTL       time.Duration `yaml:"ttl"`
	Timeout   time.Duration `yaml:"timeout" default:"2s" validate:"gte=100ms"`
}

// RedisPlugin keeps storage.* values as JSON fields of one hash per
// namespace.
type RedisPlugin struct {
	Config Config
	client *redis.Client
}

var _ plugin.Storage = (*RedisPlugin)(nil)

func (p *RedisPlugin) Initialize(ctx context.Context) error {
	opts, err := redis.ParseURL(p.Config.URL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, p.Config.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("connect redis: %w", err)
	}

	p.client = client
	return nil
}

func (p *RedisPlugin) Shutdown(ctx context.Context) error {
	if p.client == nil {
		return nil
	}
	err := p.client.Close()
	p.client = nil
	return err
}

func (p *RedisPlugin) hashKey() string {
	return fmt.Sprintf("%s:storage:%s", p.Config.Prefix, p.Config.Namespace)
}

func (p *RedisPlugin) conn() (*redis.Client, error) {
	if p.client == nil {
		return nil, plugin.NotInitialized("redis")
	}
	return p.client, nil
}

func (p *RedisPlugin) Get(ctx context.Context, key string) (any, bool, error) {
	client, err := p.conn()
	if err != nil {
		return nil, false, err
	}

	raw, err := client.HGet(ctx, p.hashKey(), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapError("storage.read", err)
	}

	v, err := plugin.DecodeJSON(raw)
	if err != nil {
		return nil, false, fmt.Errorf("redis: corrupt value for %q: %w", key, err)
	}
	return v, true, nil
}

func (p *RedisPlugin) Set(ctx context.Context, key string, value any) error {
	client, err := p.conn()
	if err != nil {
		return err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("redis: value for %q is not JSON serializable: %w", key, err)
	}

	pipe := client.TxPipeline()
	pipe.HSet(ctx, p.hashKey(), key, raw)
	if p.Config.TTL > 0 {
		pipe.Expire(ctx, p.hashKey(), p.Config.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return wrapError("storage.write", err)
	}
	return nil
}

func (p *RedisPlugin) Remove(ctx context.Context, key string) error {
	client, err := p.conn()
	if err != nil {
		return err
	}
	if err := client.HDel(ctx, p.hashKey(), key).Err(); err != nil {
		return wrapError("storage.delete", err)
	}
	return nil
}

func (p *RedisPlugin) Clear(ctx context.Context) error {
	client, err := p.conn()
	if err != nil {
		return err
	}
	if err := client.Del(ctx, p.hashKey()).Err(); err != nil {
		return wrapError("storage.clear", err)
	}
	return nil
}

// Publish sends the message arg, or the action input when it is absent, to
// channel as JSON. It resolves with the number of receivers.
//
//	type: redis.publish
//	channel: tickets
//	message: {prop: ticket}
func (p *RedisPlugin) Publish(ctx context.Context, args map[string]any, data any) (any, error) {
	client, err := p.conn()
	if err != nil {
		return nil, err
	}

	channel, _ := args["channel"].(string)
	if channel == "" {
		return nil, plugin.Errorf("channel is required").WithType(plugin.ErrorTypePermanent)
	}
	message, ok := args["message"]
	if !ok {
		message = data
	}
	raw, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("redis.publish: message is not JSON serializable: %w", err)
	}

	receivers, err := client.Publish(ctx, fmt.Sprintf("%s:%s", p.Config.Prefix, channel), raw).Result()
	if err != nil {
		return nil, wrapError("redis.publish", err)
	}
	return float64(receivers), nil
}

// Incr increments the counter key by the by arg (default 1) and resolves
// with the new value.
func (p *RedisPlugin) Incr(ctx context.Context, args map[string]any, data any) (any, error) {
	client, err := p.conn()
	if err != nil {
		return nil, err
	}

	key, _ := args["key"].(string)
	if key == "" {
		return nil, plugin.Errorf("key is required").WithType(plugin.ErrorTypePermanent)
	}
	by := int64(1)
	if v, ok := args["by"].(float64); ok {
		by = int64(v)
	}

	n, err := client.IncrBy(ctx, fmt.Sprintf("%s:counter:%s", p.Config.Prefix, key), by).Result()
	if err != nil {
		return nil, wrapError("redis.incr", err)
	}
	return float64(n), nil
}

func wrapError(action string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return plugin.NewError(fmt.Errorf("%s: %w", action, err)).WithType(plugin.ErrorTypeTransient)
}
