package config

import "time"

// Timeout constants
const (
	DefaultHTTPTimeout      = 60 * time.Second
	ServerShutdownTimeout   = 30 * time.Second
	WorkerShutdownTimeout   = 30 * time.Second
	DatabaseConnMaxLifetime = 5 * time.Minute

	// Session cookie lifetime
	SessionMaxAge = 7 * 24 * time.Hour
)

// Engine defaults
const (
	DefaultTickInterval       = 1 * time.Second
	DefaultCheckpointInterval = 30 * time.Second
	DefaultStaleThreshold     = 4 * time.Hour
	DefaultAnswerWindow       = 30 * time.Second

	// Checkpoint keys outlive the stale threshold by this margin
	CheckpointTTLMargin        = 1 * time.Hour
	DefaultCheckpointKeyPrefix = "studyprogress:checkpoint"
)

// Worker defaults
const (
	WorkerRecalibrateInterval  = 15 * time.Minute
	WorkerSessionSweepInterval = 10 * time.Minute
)

// Server defaults
const (
	DefaultServerPort = "8080"
	DefaultWorkerPort = "8081"
)

// Session configuration constants
const (
	SessionPath     = "/"
	SessionHTTPOnly = true
	SessionSecure   = false // Set to true in production with HTTPS

	SessionName = "studyprogress-session"
)

// Security configuration constants
const (
	DefaultCSP = "default-src 'self'"
)
