package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultChannel is the Pub/Sub channel used when none is configured
	DefaultChannel = "crm:cache:invalidate"

	defaultCloseTimeout = 5 * time.Second
)

// RedisBroadcaster fans cache invalidations out to every client sharing a Redis instance
type RedisBroadcaster struct {
	client     *redis.Client
	ownsClient bool
	channel    string
	logger     *zap.Logger
	cancelFn   context.CancelFunc
	doneCh     chan struct{}
	doneOnce   sync.Once
	mu         sync.Mutex
	isRunning  bool
}

// BroadcasterOption configures a RedisBroadcaster
type BroadcasterOption func(*RedisBroadcaster)

// WithChannel sets the Pub/Sub channel name
func WithChannel(channel string) BroadcasterOption {
	return func(b *RedisBroadcaster) {
		if channel != "" {
			b.channel = channel
		}
	}
}

// WithBroadcastLogger sets the logger for the broadcaster
func WithBroadcastLogger(logger *zap.Logger) BroadcasterOption {
	return func(b *RedisBroadcaster) {
		b.logger = logger
	}
}

// NewRedisBroadcaster creates a client from opts and verifies the connection
func NewRedisBroadcaster(ctx context.Context, opts *redis.Options, bopts ...BroadcasterOption) (*RedisBroadcaster, error) {
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	b := newBroadcaster(client, bopts)
	b.ownsClient = true
	return b, nil
}

// NewRedisBroadcasterWithClient wraps an existing client. The caller keeps
// ownership of the client.
func NewRedisBroadcasterWithClient(client *redis.Client, opts ...BroadcasterOption) *RedisBroadcaster {
	return newBroadcaster(client, opts)
}

func newBroadcaster(client *redis.Client, opts []BroadcasterOption) *RedisBroadcaster {
	b := &RedisBroadcaster{
		client:  client,
		channel: DefaultChannel,
		logger:  zap.NewNop(),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Channel returns the Pub/Sub channel name
func (b *RedisBroadcaster) Channel() string {
	return b.channel
}

// Publish implements Broadcaster
func (b *RedisBroadcaster) Publish(ctx context.Context, msg InvalidationMessage) error {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixNano()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish cache invalidation",
			zap.String("channel", b.channel),
			zap.Error(err))
		return fmt.Errorf("failed to publish message: %w", err)
	}

	b.logger.Debug("Published cache invalidation",
		zap.Int("keys", len(msg.Keys)),
		zap.String("channel", b.channel))
	return nil
}

// Subscribe blocks delivering every received message to callback until ctx
// is cancelled or Close is called.
func (b *RedisBroadcaster) Subscribe(ctx context.Context, callback func(msg InvalidationMessage)) error {
	b.mu.Lock()
	if b.isRunning {
		b.mu.Unlock()
		return fmt.Errorf("subscription already running")
	}
	b.isRunning = true
	subCtx, cancel := context.WithCancel(ctx)
	b.cancelFn = cancel
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.isRunning = false
		b.mu.Unlock()
		b.markDone()
	}()

	pubsub := b.client.Subscribe(subCtx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}

	b.logger.Info("Subscribed to cache invalidation channel", zap.String("channel", b.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			b.logger.Info("Cache invalidation subscription stopped")
			return subCtx.Err()
		case msg, ok := <-ch:
			if !ok {
				b.logger.Warn("Cache invalidation channel closed")
				return nil
			}

			var inv InvalidationMessage
			if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
				b.logger.Error("Failed to unmarshal cache invalidation",
					zap.String("payload", msg.Payload),
					zap.Error(err))
				continue
			}
			b.deliver(callback, inv)
		}
	}
}

func (b *RedisBroadcaster) deliver(callback func(InvalidationMessage), msg InvalidationMessage) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Panic in cache invalidation callback", zap.Any("panic", r))
		}
	}()
	callback(msg)
}

func (b *RedisBroadcaster) markDone() {
	b.doneOnce.Do(func() {
		close(b.doneCh)
	})
}

// Close stops a running subscription and closes the client if it is owned
func (b *RedisBroadcaster) Close() error {
	b.mu.Lock()
	cancelFn := b.cancelFn
	b.mu.Unlock()

	if cancelFn != nil {
		cancelFn()
		select {
		case <-b.doneCh:
		case <-time.After(defaultCloseTimeout):
			b.logger.Warn("Timeout waiting for subscription to stop")
		}
	}

	if b.ownsClient {
		return b.client.Close()
	}
	return nil
}

var _ Broadcaster = (*RedisBroadcaster)(nil)
