package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSendTimeout bounds a single send to one target.
const DefaultSendTimeout = 5 * time.Second

// Registry is an insertion-ordered set of targets. It is safe for
// concurrent use.
type Registry struct {
	mu      sync.Mutex
	targets []Target
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithSendTimeout sets the per-target send timeout.
func WithSendTimeout(d time.Duration) Option {
	return func(r *Registry) { r.timeout = d }
}

// WithLogger sets the logger used to report failed sends.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{timeout: DefaultSendTimeout}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// SendTimeout returns the per-target send timeout.
func (r *Registry) SendTimeout() time.Duration {
	return r.timeout
}

// Add appends t unless an equal target is already present, and reports
// whether it was added.
func (r *Registry) Add(t Target) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.targets {
		if Equal(existing, t) {
			return false
		}
	}
	r.targets = append(r.targets, t)
	return true
}

// List renders the targets in insertion order.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.targets))
	for i, t := range r.targets {
		out[i] = t.String()
	}
	return out
}

// Targets returns a snapshot of the registered targets.
func (r *Registry) Targets() []Target {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Target(nil), r.targets...)
}

// Len returns the number of targets.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.targets)
}

// Clear removes every target.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.targets = nil
	r.mu.Unlock()
}

// Broadcast sends message to every target concurrently and waits for all
// sends to finish or time out. Failures are logged and otherwise ignored.
func (r *Registry) Broadcast(ctx context.Context, message string) {
	targets := r.Targets()
	if len(targets) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, t := range targets {
		wg.Add(1)
		go func(t Target) {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			if err := t.Send(sendCtx, message); err != nil {
				r.logger.Warn("relay send failed", "target", t.String(), "error", err)
			}
		}(t)
	}
	wg.Wait()
}
