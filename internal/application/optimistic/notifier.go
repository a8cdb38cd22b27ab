package optimistic

import (
	"context"
	"sync"

	"github.com/erp/crm/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Notifier surfaces the outcome of a mutation to the user
type Notifier interface {
	Success(ctx context.Context, message string)
	Error(ctx context.Context, message string)
}

// LogNotifier writes notifications to the context logger
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier backed by l
func NewLogNotifier(l *zap.Logger) *LogNotifier {
	if l == nil {
		l = zap.NewNop()
	}
	return &LogNotifier{logger: l}
}

// Success implements Notifier
func (n *LogNotifier) Success(ctx context.Context, message string) {
	logger.Enrich(ctx, n.logger).Info(message, zap.String("notification", "success"))
}

// Error implements Notifier
func (n *LogNotifier) Error(ctx context.Context, message string) {
	logger.Enrich(ctx, n.logger).Warn(message, zap.String("notification", "error"))
}

// Notification is one recorded message
type Notification struct {
	Level   string
	Message string
}

// Recorder keeps notifications in memory. Used by the CLI to print a summary
// and by tests.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

// Success implements Notifier
func (r *Recorder) Success(ctx context.Context, message string) {
	r.add("success", message)
}

// Error implements Notifier
func (r *Recorder) Error(ctx context.Context, message string) {
	r.add("error", message)
}

func (r *Recorder) add(level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, Notification{Level: level, Message: message})
}

// All returns a copy of the recorded notifications
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

// Last returns the most recent notification
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return Notification{}, false
	}
	return r.items[len(r.items)-1], true
}

// Multi fans out to several notifiers
type Multi []Notifier

// Success implements Notifier
func (m Multi) Success(ctx context.Context, message string) {
	for _, n := range m {
		n.Success(ctx, message)
	}
}

// Error implements Notifier
func (m Multi) Error(ctx context.Context, message string) {
	for _, n := range m {
		n.Error(ctx, message)
	}
}
