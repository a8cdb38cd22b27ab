// Package optimistic runs server mutations against the query cache:
// affected entries are patched immediately, rolled back if the request fails,
// and invalidated once the request settles.
package optimistic

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/erp/crm/internal/domain/shared"
	"github.com/erp/crm/internal/infrastructure/cache"
	"github.com/erp/crm/internal/infrastructure/logger"
	"github.com/erp/crm/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// DefaultFailureMessage is shown when the server gives no detail
const DefaultFailureMessage = "Something went wrong. Please try again."

// Mutation describes one server write and its effect on the cache
type Mutation[Out any] struct {
	// Name labels logs, spans and metrics, e.g. "payments.update"
	Name string

	// Payload is validated before anything else happens; nil skips validation
	Payload any

	// Affected keys or patterns: in-flight fetches are cancelled before the
	// optimistic write and the keys are invalidated on settle.
	Affected []cache.Key

	// Patches are applied optimistically; keys absent from the cache are skipped
	Patches []Patch

	// Request performs the server call
	Request func(ctx context.Context) (Out, error)

	// Detail returns the key that receives the server record on success
	Detail func(out Out) (cache.Key, bool)

	// Removes are dropped from the cache on success
	Removes []cache.Key

	// Dependents returns extra keys to invalidate on settle. out is the zero
	// value when the request failed.
	Dependents func(out Out) []cache.Key

	SuccessMessage string
	FailureMessage string
}

// Runner executes mutations against a cache
type Runner struct {
	cache    cache.Writer
	notifier Notifier
	logger   *zap.Logger
	metrics  *telemetry.Metrics
}

// Option configures a Runner
type Option func(*Runner)

// WithNotifier sets where success and error messages go
func WithNotifier(n Notifier) Option {
	return func(r *Runner) {
		r.notifier = n
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithMetrics records mutation outcomes
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// NewRunner creates a runner writing to w
func NewRunner(w cache.Writer, opts ...Option) *Runner {
	r := &Runner{
		cache:  w,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.notifier == nil {
		r.notifier = NewLogNotifier(r.logger)
	}
	return r
}

// Cache returns the cache the runner writes to
func (r *Runner) Cache() cache.Writer {
	return r.cache
}

// Execute runs m. Failures are rolled back and reported through the notifier
// before being returned.
func Execute[Out any](ctx context.Context, r *Runner, m Mutation[Out]) (out Out, err error) {
	if m.Payload != nil {
		if verr := shared.Validate(m.Payload); verr != nil {
			r.metrics.Mutation(m.Name, telemetry.OutcomeSkipped)
			return out, verr
		}
	}

	ctx, span := telemetry.StartMutation(ctx, m.Name)
	defer span.End()
	log := logger.Enrich(ctx, r.logger).With(zap.String("mutation", m.Name))

	affected := append([]cache.Key(nil), m.Affected...)
	for _, p := range m.Patches {
		affected = append(affected, p.Key)
	}

	// Settle: affected and dependent keys are invalidated exactly once,
	// whatever happens below.
	defer func() {
		keys := affected
		if m.Dependents != nil {
			keys = append(keys, m.Dependents(out)...)
		}
		if len(keys) == 0 {
			return
		}
		n := r.cache.Invalidate(context.WithoutCancel(ctx), keys...)
		log.Debug("invalidated cache after mutation", zap.Int("entries", n))
	}()

	if len(affected) > 0 {
		r.cache.CancelFetches(affected...)
	}

	targets := r.resolve(m.Patches)
	snapshot := r.cache.Snapshot(snapshotKeys(targets)...)
	r.applyPatches(log, targets)
	telemetry.KeysPatched(span, snapshot.Len())

	out, err = callRequest(ctx, r, m)
	if err != nil {
		restored := r.cache.Restore(snapshot)
		telemetry.Finish(span, err)
		r.metrics.Mutation(m.Name, telemetry.OutcomeFailure)
		log.Info("mutation failed, cache rolled back",
			zap.Int("restored", restored),
			zap.Error(err))

		fallback := m.FailureMessage
		if fallback == "" {
			fallback = DefaultFailureMessage
		}
		r.notifier.Error(ctx, shared.ErrorMessage(err, fallback))
		var zero Out
		return zero, err
	}

	if m.Detail != nil {
		if key, ok := m.Detail(out); ok {
			if perr := cache.Put(r.cache, key, out); perr != nil {
				log.Warn("failed to store server record", zap.Error(perr))
			}
		}
	}
	if len(m.Removes) > 0 {
		r.cache.Remove(m.Removes...)
	}

	telemetry.Finish(span, nil)
	r.metrics.Mutation(m.Name, telemetry.OutcomeSuccess)
	if m.SuccessMessage != "" {
		r.notifier.Success(ctx, m.SuccessMessage)
	}
	return out, nil
}

// callRequest runs the request, turning a panic into an error so the mutation
// still rolls back and settles.
func callRequest[Out any](ctx context.Context, r *Runner, m Mutation[Out]) (out Out, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic in mutation request",
				zap.String("mutation", m.Name),
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()))
			err = &shared.APIError{
				Kind: shared.KindServer,
				Err:  fmt.Errorf("mutation %s panicked: %v", m.Name, rec),
			}
		}
	}()
	return m.Request(ctx)
}

type target struct {
	key   cache.Key
	apply PatchFunc
}

// resolve expands pattern keys to the entries currently cached
func (r *Runner) resolve(patches []Patch) []target {
	var targets []target
	for _, p := range patches {
		if !p.Key.IsPattern() {
			targets = append(targets, target{key: p.Key, apply: p.Apply})
			continue
		}
		for _, k := range r.cache.Keys(p.Key) {
			targets = append(targets, target{key: k, apply: p.Apply})
		}
	}
	return targets
}

func (r *Runner) applyPatches(log *zap.Logger, targets []target) {
	for _, t := range targets {
		if _, err := r.cache.Update(t.key, t.apply); err != nil {
			// A patch that cannot be applied leaves the entry as is;
			// the settle invalidation will refetch it.
			log.Warn("optimistic patch skipped", zap.String("key", t.key.String()), zap.Error(err))
		}
	}
}

func snapshotKeys(targets []target) []cache.Key {
	seen := make(map[cache.Key]struct{}, len(targets))
	keys := make([]cache.Key, 0, len(targets))
	for _, t := range targets {
		if _, ok := seen[t.key]; ok {
			continue
		}
		seen[t.key] = struct{}{}
		keys = append(keys, t.key)
	}
	return keys
}
