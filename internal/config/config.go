// Package config handles application configuration loading from a YAML file and environment variables.
package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	contextutils "studyprogress/internal/utils"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server" yaml:"server"`

	// Database configuration
	Database DatabaseConfig `json:"database" yaml:"database"`

	// Redis holds the checkpoint store connection
	Redis RedisConfig `json:"redis" yaml:"redis"`

	// OpenTelemetry Configuration
	OpenTelemetry OpenTelemetryConfig `json:"open_telemetry" yaml:"open_telemetry"`

	// Engine tunables for sessions, quizzes, difficulty and goals
	Engine EngineConfig `json:"engine" yaml:"engine"`

	// Worker schedule
	Worker WorkerConfig `json:"worker" yaml:"worker"`

	// Internal fields
	IsTest bool `json:"is_test" yaml:"is_test"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port          string   `json:"port" yaml:"port"`
	WorkerPort    string   `json:"worker_port" yaml:"worker_port"`
	SessionSecret string   `json:"session_secret" yaml:"session_secret"`
	Debug         bool     `json:"debug" yaml:"debug"`
	LogLevel      string   `json:"log_level" yaml:"log_level"`
	CORSOrigins   []string `json:"cors_origins" yaml:"cors_origins"`
}

// OpenTelemetryConfig holds all OpenTelemetry-related configuration
type OpenTelemetryConfig struct {
	Endpoint       string            `json:"endpoint" yaml:"endpoint"`               // Default: "localhost:4317"
	Protocol       string            `json:"protocol" yaml:"protocol"`               // "grpc" or "http", default: "grpc"
	Insecure       bool              `json:"insecure" yaml:"insecure"`               // Default: true (for localhost)
	Headers        map[string]string `json:"headers" yaml:"headers"`                 // For authenticated endpoints
	ServiceName    string            `json:"service_name" yaml:"service_name"`       // Default: "studyprogress-server" or "studyprogress-worker"
	ServiceVersion string            `json:"service_version" yaml:"service_version"` // From version package
	EnableTracing  bool              `json:"enable_tracing" yaml:"enable_tracing"`
	EnableMetrics  bool              `json:"enable_metrics" yaml:"enable_metrics"`
	EnableLogging  bool              `json:"enable_logging" yaml:"enable_logging"`
	SamplingRate   float64           `json:"sampling_rate" yaml:"sampling_rate"` // Default: 1.0 (100%)
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	URL             string        `json:"url" yaml:"url"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	// RunMigrations applies the embedded schema on startup
	RunMigrations bool `json:"run_migrations" yaml:"run_migrations"`
}

// RedisConfig represents the checkpoint store connection
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	// KeyPrefix namespaces checkpoint keys
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// EngineConfig groups the tunables of the progress engine
type EngineConfig struct {
	Session    SessionConfig    `json:"session" yaml:"session"`
	Quiz       QuizConfig       `json:"quiz" yaml:"quiz"`
	Difficulty DifficultyConfig `json:"difficulty" yaml:"difficulty"`
	Goals      GoalsConfig      `json:"goals" yaml:"goals"`
}

// SessionConfig controls study session timing and checkpointing
type SessionConfig struct {
	// TickInterval drives the per-session ticker. Zero selects the default; a negative
	// value disables the ticker goroutine and leaves ticking to the caller.
	TickInterval time.Duration `json:"tick_interval" yaml:"tick_interval"`
	// CheckpointInterval is measured in elapsed (unpaused) session time
	CheckpointInterval time.Duration `json:"checkpoint_interval" yaml:"checkpoint_interval" validate:"gt=0"`
	StaleThreshold     time.Duration `json:"stale_threshold" yaml:"stale_threshold" validate:"gt=0"`
	CheckpointQueue    int           `json:"checkpoint_queue" yaml:"checkpoint_queue" validate:"gte=1"`
	CheckpointAttempts uint          `json:"checkpoint_attempts" yaml:"checkpoint_attempts" validate:"gte=1"`
}

// QuizConfig controls timed quiz runs
type QuizConfig struct {
	AnswerWindow time.Duration `json:"answer_window" yaml:"answer_window" validate:"gt=0"`
}

// DifficultyConfig controls difficulty recalibration
type DifficultyConfig struct {
	Aggressiveness       string  `json:"aggressiveness" yaml:"aggressiveness" validate:"oneof=conservative moderate aggressive"`
	AdaptationSpeed      float64 `json:"adaptation_speed" yaml:"adaptation_speed" validate:"gte=0,lte=1"`
	MinimumDataPoints    int     `json:"minimum_data_points" yaml:"minimum_data_points" validate:"gte=1"`
	WindowSize           int     `json:"window_size" yaml:"window_size" validate:"gte=1"`
	MaterialityThreshold float64 `json:"materiality_threshold" yaml:"materiality_threshold" validate:"gte=0"`
	Concurrency          int     `json:"concurrency" yaml:"concurrency" validate:"gte=1"`
}

// GoalsConfig controls goal deadline classification
type GoalsConfig struct {
	DueSoonDays     int    `json:"due_soon_days" yaml:"due_soon_days" validate:"gte=1"`
	AutoArchiveDays int    `json:"auto_archive_days" yaml:"auto_archive_days" validate:"gte=0"`
	Timezone        string `json:"timezone" yaml:"timezone"`
}

// WorkerConfig controls the background scheduler
type WorkerConfig struct {
	RecalibrateInterval  time.Duration `json:"recalibrate_interval" yaml:"recalibrate_interval"`
	SessionSweepInterval time.Duration `json:"session_sweep_interval" yaml:"session_sweep_interval"`
	// RecalibrateLookback bounds the first run when no previous run time is known
	RecalibrateLookback time.Duration `json:"recalibrate_lookback" yaml:"recalibrate_lookback"`
}

// Location resolves the configured goal timezone, falling back to UTC
func (g GoalsConfig) Location() *time.Location {
	if g.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NewConfig loads configuration from YAML file first, then overrides with environment variables
func NewConfig() (result0 *Config, err error) {
	config, err := loadConfigWithOverrides()
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load config: %w", err)
	}

	config.overrideFromEnv()
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Defaults returns a configuration populated with the built-in defaults
func Defaults() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills zero values with the built-in defaults
func (c *Config) ApplyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.WorkerPort == "" {
		c.Server.WorkerPort = DefaultWorkerPort
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = DatabaseConnMaxLifetime
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = DefaultCheckpointKeyPrefix
	}
	if c.OpenTelemetry.Endpoint == "" {
		c.OpenTelemetry.Endpoint = "localhost:4317"
	}
	if c.OpenTelemetry.Protocol == "" {
		c.OpenTelemetry.Protocol = "grpc"
	}
	if c.OpenTelemetry.SamplingRate == 0 {
		c.OpenTelemetry.SamplingRate = 1.0
	}

	s := &c.Engine.Session
	if s.CheckpointInterval == 0 {
		s.CheckpointInterval = DefaultCheckpointInterval
	}
	if s.StaleThreshold == 0 {
		s.StaleThreshold = DefaultStaleThreshold
	}
	if s.CheckpointQueue == 0 {
		s.CheckpointQueue = 256
	}
	if s.CheckpointAttempts == 0 {
		s.CheckpointAttempts = 5
	}
	if s.TickInterval == 0 {
		s.TickInterval = DefaultTickInterval
	}

	if c.Engine.Quiz.AnswerWindow == 0 {
		c.Engine.Quiz.AnswerWindow = DefaultAnswerWindow
	}

	d := &c.Engine.Difficulty
	if d.Aggressiveness == "" {
		d.Aggressiveness = "moderate"
	}
	if d.AdaptationSpeed == 0 {
		d.AdaptationSpeed = 1.0
	}
	if d.MinimumDataPoints == 0 {
		d.MinimumDataPoints = 3
	}
	if d.WindowSize == 0 {
		d.WindowSize = 20
	}
	if d.MaterialityThreshold == 0 {
		d.MaterialityThreshold = 0.1
	}
	if d.Concurrency == 0 {
		d.Concurrency = 4
	}

	g := &c.Engine.Goals
	if g.DueSoonDays == 0 {
		g.DueSoonDays = 3
	}
	if g.AutoArchiveDays == 0 {
		g.AutoArchiveDays = 10
	}

	if c.Worker.RecalibrateInterval == 0 {
		c.Worker.RecalibrateInterval = WorkerRecalibrateInterval
	}
	if c.Worker.SessionSweepInterval == 0 {
		c.Worker.SessionSweepInterval = WorkerSessionSweepInterval
	}
	if c.Worker.RecalibrateLookback == 0 {
		c.Worker.RecalibrateLookback = 24 * time.Hour
	}
}

var configValidator = validator.New()

// Validate checks the engine tunables
func (c *Config) Validate() error {
	if err := configValidator.Struct(c.Engine); err != nil {
		return contextutils.WrapErrorf(contextutils.ErrInvalidInput, "invalid engine configuration: %v", err)
	}
	if c.Engine.Goals.Timezone != "" {
		if _, err := time.LoadLocation(c.Engine.Goals.Timezone); err != nil {
			return contextutils.InvalidInputf("unknown goals timezone %q", c.Engine.Goals.Timezone)
		}
	}
	return nil
}

// overrideFromEnv overrides config values with environment variables using reflection
func (c *Config) overrideFromEnv() {
	overrideStructFromEnvWithPrefix(c, "")
}

var durationType = reflect.TypeOf(time.Duration(0))

// overrideStructFromEnvWithPrefix walks the struct and applies env vars named after yaml tags.
// Nested structs contribute their tag as a prefix, e.g. ENGINE_SESSION_TICK_INTERVAL.
func overrideStructFromEnvWithPrefix(v interface{}, prefix string) {
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	if val.Kind() != reflect.Struct {
		return
	}

	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		if !field.CanSet() {
			continue
		}

		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}

		envKey := strings.ToUpper(strings.ReplaceAll(yamlTag, "-", "_"))
		if prefix != "" {
			envKey = prefix + "_" + envKey
		}

		// Durations are int64 underneath; accept "30s" style values first.
		if field.Type() == durationType {
			if envVal := os.Getenv(envKey); envVal != "" {
				if d, err := time.ParseDuration(envVal); err == nil {
					field.SetInt(int64(d))
				}
			}
			continue
		}

		switch field.Kind() {
		case reflect.String:
			if envVal := os.Getenv(envKey); envVal != "" {
				field.SetString(envVal)
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if intVal, err := strconv.ParseInt(envVal, 10, 64); err == nil {
					field.SetInt(intVal)
				}
			}
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if uintVal, err := strconv.ParseUint(envVal, 10, 64); err == nil {
					field.SetUint(uintVal)
				}
			}
		case reflect.Float32, reflect.Float64:
			if envVal := os.Getenv(envKey); envVal != "" {
				if floatVal, err := strconv.ParseFloat(envVal, 64); err == nil {
					field.SetFloat(floatVal)
				}
			}
		case reflect.Bool:
			if envVal := os.Getenv(envKey); envVal != "" {
				if boolVal, err := strconv.ParseBool(envVal); err == nil {
					field.SetBool(boolVal)
				}
			}
		case reflect.Slice:
			if envVal := os.Getenv(envKey); envVal != "" {
				if field.Type().Elem().Kind() == reflect.String {
					field.Set(reflect.ValueOf(strings.Split(envVal, ",")))
				}
			}
		case reflect.Struct:
			if field.CanAddr() {
				overrideStructFromEnvWithPrefix(field.Addr().Interface(), envKey)
			}
		}
	}
}

// loadConfigWithOverrides loads the file named by STUDY_CONFIG_FILE, or config.yaml.
// A missing default file yields an empty config so env vars and defaults still apply.
func loadConfigWithOverrides() (result0 *Config, err error) {
	if envPath := os.Getenv("STUDY_CONFIG_FILE"); envPath != "" {
		config, err := loadConfigFromFile(envPath)
		if err != nil {
			return nil, contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to load config from %s: %w", envPath, err)
		}
		return config, nil
	}

	config, err := loadConfigFromFile("config.yaml")
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	return config, err
}

// loadConfigFromFile loads configuration from a specific file
func loadConfigFromFile(path string) (result0 *Config, err error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(yamlFile, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
