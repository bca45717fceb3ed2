// Package shutdown runs registered cleanup hooks deterministically on
// every termination path. Deregistration and similar cleanup must go
// through here, never through finalizers.
package shutdown

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager collects cleanup hooks and executes them in reverse
// registration order (LIFO) within a bounded context.
type Manager struct {
	mu      sync.Mutex
	hooks   []func(context.Context) error
	timeout time.Duration
	once    sync.Once
	log     *zap.Logger
}

// New creates a manager whose Shutdown completes within timeout.
func New(timeout time.Duration, log *zap.Logger) *Manager {
	return &Manager{timeout: timeout, log: log}
}

// Register adds a hook. Hooks run LIFO so dependents clean up before the
// resources they depend on.
func (m *Manager) Register(hook func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook)
}

// Shutdown runs all hooks exactly once. Hook errors are logged, not
// propagated; one failing hook must not stop the rest of the cleanup.
func (m *Manager) Shutdown() {
	m.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		m.mu.Lock()
		hooks := m.hooks
		m.mu.Unlock()

		for i := len(hooks) - 1; i >= 0; i-- {
			if err := hooks[i](ctx); err != nil {
				m.log.Error("shutdown hook failed", zap.Int("hook", i), zap.Error(err))
			}
		}
		m.log.Info("shutdown complete")
	})
}
