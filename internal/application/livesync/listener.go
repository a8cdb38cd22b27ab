// Package livesync keeps the local query cache in step with invalidations
// published by other clients.
package livesync

import (
	"context"
	"errors"

	"github.com/erp/crm/internal/infrastructure/cache"
	"go.uber.org/zap"
)

// Subscriber delivers invalidation messages until ctx ends
type Subscriber interface {
	Subscribe(ctx context.Context, callback func(msg cache.InvalidationMessage)) error
}

// Applier marks the keys named by another client's message stale
type Applier interface {
	ApplyRemote(msg cache.InvalidationMessage) int
}

// Change is one remote invalidation after it was applied locally
type Change struct {
	Origin string      `json:"origin"`
	Keys   []cache.Key `json:"keys"`
	Stale  int         `json:"stale"`
}

// Touches reports whether the change names any key of resource
func (c Change) Touches(resource string) bool {
	for _, k := range c.Keys {
		if k.Resource == resource {
			return true
		}
	}
	return false
}

// Listener applies remote invalidations to the local cache
type Listener struct {
	sub    Subscriber
	cache  Applier
	logger *zap.Logger
}

// Option configures a Listener
type Option func(*Listener)

// WithLogger sets the listener logger
func WithLogger(l *zap.Logger) Option {
	return func(ln *Listener) {
		if l != nil {
			ln.logger = l
		}
	}
}

// NewListener creates a listener feeding messages from sub into c
func NewListener(sub Subscriber, c Applier, opts ...Option) *Listener {
	l := &Listener{sub: sub, cache: c, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Listen blocks applying every received message to the cache, then passing
// the result to fn when it is not nil. Messages this client published itself
// are still reported, with Stale at zero. Cancelling ctx is a clean stop.
func (l *Listener) Listen(ctx context.Context, fn func(Change)) error {
	err := l.sub.Subscribe(ctx, func(msg cache.InvalidationMessage) {
		n := l.cache.ApplyRemote(msg)
		l.logger.Info("remote invalidation",
			zap.String("origin", msg.Origin),
			zap.Int("keys", len(msg.Keys)),
			zap.Int("stale", n))
		if fn != nil {
			fn(Change{Origin: msg.Origin, Keys: msg.Keys, Stale: n})
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
