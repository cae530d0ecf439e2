package services

import "fmt"

// Logger is the minimal logging surface components depend on. Inject a
// real implementation via the WithLogger options; defLogger writes to
// stdout and is only meant for development.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Component is implemented by every service in this package so a Loader
// can initialize them in dependency order and report aggregate health.
type Component interface {
	Name() string
	Initialize() error
	Status() Status
}

// Status is a point-in-time component snapshot used for health reporting.
// It is informational only; nothing branches on it.
type Status struct {
	Name        string         `json:"name"`
	Initialized bool           `json:"initialized"`
	Counts      map[string]int `json:"counts,omitempty"`
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] SERVICES "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] SERVICES "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] SERVICES "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] SERVICES "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
