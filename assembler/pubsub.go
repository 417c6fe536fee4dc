package assembler

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// pubsubTimeout is the per-publish timeout.
const pubsubTimeout = 5 * time.Second

// pubsubRetries is the number of retry attempts on publish failure.
const pubsubRetries = 3

// PubSub publishes retry and completion signals over Redis. Unlike
// adapter/redis, the channel is chosen per call (retry queue vs
// completion queue), both of which are derived from job configuration
// rather than a single fixed channel.
type PubSub struct {
	client *goredis.Client
}

// NewPubSub connects to the Redis instance at addr (a redis:// URL).
func NewPubSub(addr string) (*PubSub, error) {
	opts, err := goredis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("assembler: invalid redis url: %w", err)
	}
	return &PubSub{client: goredis.NewClient(opts)}, nil
}

// Publish PUBLISHes payload to channel, retrying with exponential backoff
// on failure, and waits for the publish to complete before returning.
func (p *PubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	var lastErr error
	attempts := 1 + pubsubRetries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("assembler: pubsub context canceled: %w", err)
		}
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return fmt.Errorf("assembler: pubsub context canceled during backoff: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		publishCtx, cancel := context.WithTimeout(ctx, pubsubTimeout)
		lastErr = p.client.Publish(publishCtx, channel, payload).Err()
		cancel()

		if lastErr == nil {
			return nil
		}
	}

	return fmt.Errorf("assembler: pubsub publish to %s failed after %d attempts: %w", channel, attempts, lastErr)
}

// Close releases the underlying Redis connection.
func (p *PubSub) Close() error {
	return p.client.Close()
}
