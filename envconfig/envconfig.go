// Package envconfig implements the two-tier configuration convention used
// throughout this module: a Shared block of settings common to every
// environment, and an Environment block whose values — when set — override
// the shared ones. This mirrors the teacher's EnvConfig/per-environment
// override layering, adapted from a single flat struct to the shared+
// override split SPEC_FULL.md calls for (multiple business properties can
// run against the same binary with different record-store bases).
package envconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Shared holds settings that apply across every environment this process
// might run against.
type Shared struct {
	LogLevel  string // debug|info|warn|error
	LogFormat string // text|json

	RecordStoreAPIKey string
	FieldServiceToken string

	WebhookSharedSecret string
	WebhookHMACSecret   string

	BusinessTimezone string

	FieldServiceRateLimitPerMin int

	// AssignedEmployeeID is the single employee every downstream job is
	// assigned to on creation (spec §4.7 "one assigned employee (from
	// config)").
	AssignedEmployeeID string

	// RootDir is the base directory under which the per-environment
	// CSV_process_<env>/CSV_done_<env> directories, the shared
	// webhook_overflow/ directory, and logs/ live (spec §6.4).
	RootDir string

	// WebhookQueueCapacity bounds the in-process webhook event queue
	// (spec §6.5 webhook_queue_capacity, default 1000).
	WebhookQueueCapacity int
	// WebhookWorkers is the size of the pool draining that queue (spec
	// §6.5 webhook_workers, default 4).
	WebhookWorkers int

	HTTPTimeout time.Duration
}

// Environment holds settings specific to one business/property-set, loaded
// with an env-var prefix so several can coexist (e.g. ACME_RECORD_STORE_BASE,
// CONTOSO_RECORD_STORE_BASE).
type Environment struct {
	Name             string
	RecordStoreBase  string
	FieldServiceBase string

	// Overrides, applied over Shared when non-zero.
	LogLevel    string
	LogFormat   string
	HTTPTimeout time.Duration
}

// Config is the merged view a component actually reads from.
type Config struct {
	LogLevel  string
	LogFormat string

	RecordStoreAPIKey string
	RecordStoreBase   string

	FieldServiceToken          string
	FieldServiceBase           string
	FieldServiceRateLimitPerMin int
	AssignedEmployeeID          string

	WebhookSharedSecret  string
	WebhookHMACSecret    string
	WebhookQueueCapacity int
	WebhookWorkers       int

	BusinessTimezone string
	HTTPTimeout      time.Duration

	RootDir         string
	EnvironmentName string
}

// CSVProcessDir is the environment's drop zone (spec §6.4
// CSV_process_<env>/).
func (c Config) CSVProcessDir() string {
	return filepath.Join(c.RootDir, "CSV_process_"+c.EnvironmentName)
}

// CSVDoneDir is the environment's processed-file archive (spec §6.4
// CSV_done_<env>/).
func (c Config) CSVDoneDir() string {
	return filepath.Join(c.RootDir, "CSV_done_"+c.EnvironmentName)
}

// WebhookOverflowDir is the shared overflow directory every environment's
// webhook queue spills to when saturated (spec §6.4 webhook_overflow/).
func (c Config) WebhookOverflowDir() string {
	return filepath.Join(c.RootDir, "webhook_overflow")
}

// LoadShared reads Shared settings from the process environment.
func LoadShared() (Shared, error) {
	s := Shared{
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "text"),
		RecordStoreAPIKey:   os.Getenv("RECORD_STORE_API_KEY"),
		FieldServiceToken:   os.Getenv("FIELD_SERVICE_TOKEN"),
		WebhookSharedSecret: os.Getenv("WEBHOOK_SHARED_SECRET"),
		WebhookHMACSecret:   os.Getenv("WEBHOOK_HMAC_SECRET"),
		BusinessTimezone:    getEnv("BUSINESS_TIMEZONE", "America/New_York"),
		AssignedEmployeeID:  os.Getenv("ASSIGNED_EMPLOYEE_ID"),
		RootDir:             getEnv("ROOT_DIR", "."),
	}

	rate, err := getEnvInt("FIELD_SERVICE_RATE_LIMIT_PER_MIN", 300)
	if err != nil {
		return Shared{}, err
	}
	s.FieldServiceRateLimitPerMin = rate

	queueCapacity, err := getEnvInt("WEBHOOK_QUEUE_CAPACITY", 1000)
	if err != nil {
		return Shared{}, err
	}
	s.WebhookQueueCapacity = queueCapacity

	workers, err := getEnvInt("WEBHOOK_WORKERS", 4)
	if err != nil {
		return Shared{}, err
	}
	s.WebhookWorkers = workers

	timeout, err := getEnvDuration("HTTP_TIMEOUT", 30*time.Second)
	if err != nil {
		return Shared{}, err
	}
	s.HTTPTimeout = timeout

	if s.RecordStoreAPIKey == "" {
		return Shared{}, fmt.Errorf("envconfig: RECORD_STORE_API_KEY is required")
	}
	if s.WebhookSharedSecret == "" && s.WebhookHMACSecret == "" {
		return Shared{}, fmt.Errorf("envconfig: one of WEBHOOK_SHARED_SECRET or WEBHOOK_HMAC_SECRET is required")
	}

	return s, nil
}

// LoadEnvironment reads Environment settings prefixed with prefix (e.g.
// "ACME" reads ACME_RECORD_STORE_BASE).
func LoadEnvironment(name, prefix string) (Environment, error) {
	e := Environment{Name: name}

	e.RecordStoreBase = os.Getenv(prefix + "_RECORD_STORE_BASE")
	if e.RecordStoreBase == "" {
		return Environment{}, fmt.Errorf("envconfig: %s_RECORD_STORE_BASE is required", prefix)
	}
	e.FieldServiceBase = os.Getenv(prefix + "_FIELD_SERVICE_BASE")
	if e.FieldServiceBase == "" {
		return Environment{}, fmt.Errorf("envconfig: %s_FIELD_SERVICE_BASE is required", prefix)
	}

	e.LogLevel = os.Getenv(prefix + "_LOG_LEVEL")
	e.LogFormat = os.Getenv(prefix + "_LOG_FORMAT")

	if raw := os.Getenv(prefix + "_HTTP_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Environment{}, fmt.Errorf("envconfig: %s_HTTP_TIMEOUT: %w", prefix, err)
		}
		e.HTTPTimeout = d
	}

	return e, nil
}

// Merge produces the effective Config: env values win over shared ones
// wherever the environment set them.
func Merge(s Shared, e Environment) Config {
	c := Config{
		LogLevel:                    s.LogLevel,
		LogFormat:                   s.LogFormat,
		RecordStoreAPIKey:           s.RecordStoreAPIKey,
		RecordStoreBase:             e.RecordStoreBase,
		FieldServiceToken:           s.FieldServiceToken,
		FieldServiceBase:            e.FieldServiceBase,
		FieldServiceRateLimitPerMin: s.FieldServiceRateLimitPerMin,
		AssignedEmployeeID:          s.AssignedEmployeeID,
		WebhookSharedSecret:         s.WebhookSharedSecret,
		WebhookHMACSecret:           s.WebhookHMACSecret,
		WebhookQueueCapacity:        s.WebhookQueueCapacity,
		WebhookWorkers:              s.WebhookWorkers,
		BusinessTimezone:            s.BusinessTimezone,
		HTTPTimeout:                 s.HTTPTimeout,
		RootDir:                     s.RootDir,
		EnvironmentName:             e.Name,
	}
	if e.LogLevel != "" {
		c.LogLevel = e.LogLevel
	}
	if e.LogFormat != "" {
		c.LogFormat = e.LogFormat
	}
	if e.HTTPTimeout != 0 {
		c.HTTPTimeout = e.HTTPTimeout
	}
	return c
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("envconfig: %s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("envconfig: %s must be a duration: %w", key, err)
	}
	return d, nil
}
