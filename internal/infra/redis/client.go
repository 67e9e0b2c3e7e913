package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options selects the Redis endpoint. URL wins over Addr when both are set.
type Options struct {
	URL      string
	Addr     string
	Password string
	DB       int
	Timeout  time.Duration
}

// Configured reports whether an endpoint was provided at all.
func (o Options) Configured() bool {
	return o.URL != "" || o.Addr != ""
}

// NewClient builds a client without connecting; go-redis dials lazily and
// reconnects on its own, so a cache that is down at startup recovers later.
func NewClient(o Options) (*redis.Client, error) {
	var opts *redis.Options
	if o.URL != "" {
		parsed, err := redis.ParseURL(o.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     o.Addr,
			Password: o.Password,
			DB:       o.DB,
		}
	}
	if o.Timeout > 0 {
		opts.DialTimeout = o.Timeout
		opts.ReadTimeout = o.Timeout
		opts.WriteTimeout = o.Timeout
	}
	opts.MaxRetries = 1
	return redis.NewClient(opts), nil
}

// Ping checks connectivity with a bounded wait.
func Ping(ctx context.Context, client *redis.Client, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return client.Ping(ctx).Err()
}
