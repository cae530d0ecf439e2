package services

import (
	"sync"
	"time"
)

// ComponentResult is one component's initialization outcome.
type ComponentResult struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// LoaderReport aggregates an InitializeAll pass.
type LoaderReport struct {
	Results    []ComponentResult `json:"results"`
	Healthy    bool              `json:"healthy"`
	FinishedAt time.Time         `json:"finished_at"`
}

// LoaderOption customizes loader construction.
type LoaderOption func(*Loader)

// WithLoaderLogger overrides the loader logger.
func WithLoaderLogger(logger Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithLoaderClock injects a custom clock (useful for tests).
func WithLoaderClock(clock func() time.Time) LoaderOption {
	return func(l *Loader) {
		if clock != nil {
			l.now = clock
		}
	}
}

// Loader is the bootstrap coordinator: components are registered in
// dependency order, initialized in that order, and surfaced as an
// aggregate status report. Component Initialize is idempotent, so running
// the loader again over an already-live system is safe.
type Loader struct {
	mu         sync.Mutex
	components []Component
	logger     Logger
	now        func() time.Time
}

func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		logger: defLogger{},
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}

	return l
}

// Register appends a component. Order of registration is order of
// initialization; register dependencies first.
func (l *Loader) Register(components ...Component) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, c := range components {
		if c != nil {
			l.components = append(l.components, c)
		}
	}
}

// InitializeAll initializes every registered component in order. A failing
// component is recorded and does not stop the rest; the report's Healthy
// flag is true only when every component initialized.
func (l *Loader) InitializeAll() *LoaderReport {
	l.mu.Lock()
	components := make([]Component, len(l.components))
	copy(components, l.components)
	l.mu.Unlock()

	report := &LoaderReport{Healthy: true}
	for _, c := range components {
		result := ComponentResult{Name: c.Name(), OK: true}
		if err := c.Initialize(); err != nil {
			result.OK = false
			result.Error = err.Error()
			report.Healthy = false
			l.logger.Error("component %s failed to initialize: %v", c.Name(), err)
		} else {
			l.logger.Debug("component %s initialized", c.Name())
		}
		report.Results = append(report.Results, result)
	}

	report.FinishedAt = l.now()
	return report
}

// Statuses returns the current status snapshot of every registered
// component, in registration order.
func (l *Loader) Statuses() []Status {
	l.mu.Lock()
	components := make([]Component, len(l.components))
	copy(components, l.components)
	l.mu.Unlock()

	out := make([]Status, 0, len(components))
	for _, c := range components {
		out = append(out, c.Status())
	}
	return out
}
