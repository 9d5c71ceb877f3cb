package serviceinterfaces

import (
	"context"
)

// Lifecycle defines the interface for components that run in the background
type Lifecycle interface {
	// Startup begins background work
	Startup(ctx context.Context) error

	// Shutdown stops background work and flushes pending state
	Shutdown(ctx context.Context) error

	// IsReady reports whether the component is running
	IsReady() bool
}
