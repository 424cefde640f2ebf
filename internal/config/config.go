package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidConfig marks a configuration value that makes startup impossible.
var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Loops
	PollInterval        time.Duration // ip/clock publish loops (default: 60s)
	WatchInterval       time.Duration // ip change watcher (default: 1h)
	EscalationThreshold int           // consecutive failures before the long cooldown (default: 10)
	EscalationCooldown  time.Duration // long cooldown (default: 300s)
	MaxBackoff          time.Duration // cap for min(2^f, cap) backoff (default: 60s)
	IPChangeOnly        bool          // publish the public ip only when it changes
	ClockChangeOnly     bool          // publish the clock table only when it changes
	EnableIPLoop        bool
	EnableClockLoop     bool
	EnableWatcher       bool
	ResumeFromStore     bool // seed change-only loops from the stored record on startup

	// Probes
	ProbeAttempts int           // attempts per lookup endpoint (default: 3)
	ProbeTimeout  time.Duration // per-attempt timeout (default: 10s)
	SourcesFile   string        // optional yaml with endpoints/zones overrides
	NTPServer     string        // optional, enables clock offset reporting

	// Redis
	RedisHost        string        // empty => publishing disabled
	RedisPort        int           // default 6379
	RedisUser        string        // optional
	RedisPassword    string        // optional
	RedisDB          int           // Redis DB number
	RedisDT          time.Duration // Redis dial timeout (ex: 10s)
	RedisRT          time.Duration // Redis read timeout (ex: 10s)
	RedisWT          time.Duration // Redis write timeout (ex: 10s)
	RedisPingTimeout time.Duration // timeout for each liveness check (ex: 5s)
	PublishRetries   int           // write attempts per publish (default: 3)

	// Ops HTTP surface
	ListenAddr   string   // ex: ":9090", empty disables it
	AllowedCIDRS []string // optional, restrict access to specific IPs/CIDRs
	TrustProxy   bool     // true => trust X-Forwarded-For headers
}

// RedisAddr returns host:port, or "" when no host is configured.
func (c *Config) RedisAddr() string {
	if c.RedisHost == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// Load reads the configuration from the environment. Lenient fields fall back to
// their defaults on bad input; strict fields return an error wrapping ErrInvalidConfig.
func Load() (*Config, error) {
	var errs []error
	strict := func(v int, err error) int {
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	strictDuration := func(d time.Duration, err error) time.Duration {
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	cfg := &Config{
		ShutdownTimeout: strictDuration(durationVar("FACTSYNC_SHUTDOWN_TIMEOUT", 5*time.Second)),

		// Logging
		LogLevel:  getenv("FACTSYNC_LOG_LEVEL", "info"),
		PrettyLog: mustBool("FACTSYNC_PRETTY_LOG", false),

		// Loops
		PollInterval:        strictDuration(durationVar("FACTSYNC_POLL_INTERVAL", 60*time.Second)),
		WatchInterval:       strictDuration(durationVar("FACTSYNC_WATCH_INTERVAL", time.Hour)),
		EscalationThreshold: strict(intInRange("FACTSYNC_ESCALATION_THRESHOLD", 10, 1, 1<<20)),
		EscalationCooldown:  strictDuration(durationVar("FACTSYNC_ESCALATION_COOLDOWN", 300*time.Second)),
		MaxBackoff:          strictDuration(durationVar("FACTSYNC_MAX_BACKOFF", 60*time.Second)),
		IPChangeOnly:        mustBool("FACTSYNC_IP_CHANGE_ONLY", true),
		ClockChangeOnly:     mustBool("FACTSYNC_CLOCK_CHANGE_ONLY", false),
		EnableIPLoop:        mustBool("FACTSYNC_ENABLE_IP_LOOP", true),
		EnableClockLoop:     mustBool("FACTSYNC_ENABLE_CLOCK_LOOP", true),
		EnableWatcher:       mustBool("FACTSYNC_ENABLE_WATCHER", true),
		ResumeFromStore:     mustBool("FACTSYNC_RESUME_FROM_STORE", false),

		// Probes
		ProbeAttempts: strict(intInRange("FACTSYNC_PROBE_ATTEMPTS", 3, 1, 10)),
		ProbeTimeout:  strictDuration(durationVar("FACTSYNC_PROBE_TIMEOUT", 10*time.Second)),
		SourcesFile:   getenv("FACTSYNC_SOURCES_FILE", ""),
		NTPServer:     getenv("FACTSYNC_NTP_SERVER", ""),

		// Redis settings
		RedisHost:        getenv("REDIS_HOST", ""),
		RedisPort:        strict(intInRange("REDIS_PORT", 6379, 1, 65535)),
		RedisUser:        getenv("REDIS_USERNAME", ""),
		RedisPassword:    getenv("REDIS_PASSWORD", ""),
		RedisDB:          strict(intInRange("REDIS_DB", 0, 0, 1<<16)),
		RedisDT:          strictDuration(durationVar("REDIS_DIAL_TIMEOUT", 10*time.Second)),
		RedisRT:          strictDuration(durationVar("REDIS_READ_TIMEOUT", 10*time.Second)),
		RedisWT:          strictDuration(durationVar("REDIS_WRITE_TIMEOUT", 10*time.Second)),
		RedisPingTimeout: strictDuration(durationVar("REDIS_PING_TIMEOUT", 5*time.Second)),
		PublishRetries:   strict(intInRange("FACTSYNC_PUBLISH_RETRIES", 3, 1, 10)),

		// Ops HTTP surface
		ListenAddr:   getenv("FACTSYNC_LISTEN_ADDR", ""),
		AllowedCIDRS: parseAllowedIPs(getenv("FACTSYNC_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("FACTSYNC_TRUST_PROXY", false),
	}

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	// Log config only in debug mode with redacted sensitive values
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		if cfg.RedisPassword != "" {
			cfgCopy.RedisPassword = "***REDACTED***"
		}
		if cfg.RedisUser != "" {
			cfgCopy.RedisUser = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg, nil
}

// Validate checks cross-field and positivity constraints.
func (c *Config) Validate() error {
	positive := map[string]time.Duration{
		"FACTSYNC_POLL_INTERVAL":       c.PollInterval,
		"FACTSYNC_WATCH_INTERVAL":      c.WatchInterval,
		"FACTSYNC_ESCALATION_COOLDOWN": c.EscalationCooldown,
		"FACTSYNC_MAX_BACKOFF":         c.MaxBackoff,
		"FACTSYNC_PROBE_TIMEOUT":       c.ProbeTimeout,
		"FACTSYNC_SHUTDOWN_TIMEOUT":    c.ShutdownTimeout,
		"REDIS_DIAL_TIMEOUT":           c.RedisDT,
		"REDIS_READ_TIMEOUT":           c.RedisRT,
		"REDIS_WRITE_TIMEOUT":          c.RedisWT,
		"REDIS_PING_TIMEOUT":           c.RedisPingTimeout,
	}
	var errs []error
	for key, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%w: %s must be > 0, got %v", ErrInvalidConfig, key, d))
		}
	}
	if c.EscalationThreshold < 1 {
		errs = append(errs, fmt.Errorf("%w: FACTSYNC_ESCALATION_THRESHOLD must be >= 1, got %d", ErrInvalidConfig, c.EscalationThreshold))
	}
	if c.LogLevel != "" && !validLogLevel(c.LogLevel) {
		errs = append(errs, fmt.Errorf("%w: FACTSYNC_LOG_LEVEL %q is not one of debug|info|warn|error", ErrInvalidConfig, c.LogLevel))
	}
	if !c.EnableIPLoop && !c.EnableClockLoop && !c.EnableWatcher {
		errs = append(errs, fmt.Errorf("%w: every loop is disabled, nothing to run", ErrInvalidConfig))
	}
	return errors.Join(errs...)
}

func validLogLevel(l string) bool {
	switch l {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// intInRange parses an optional integer that must be valid when present.
func intInRange(key string, def, lo, hi int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("%w: invalid integer value for %s: %s", ErrInvalidConfig, key, v)
	}
	if i < lo || i > hi {
		return def, fmt.Errorf("%w: %s must be within [%d, %d], got %d", ErrInvalidConfig, key, lo, hi, i)
	}
	return i, nil
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

// durationVar accepts Go durations ("90s", "5m") and bare seconds ("60").
// Anything else is an error wrapping ErrInvalidConfig.
func durationVar(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return def, fmt.Errorf("%w: invalid duration value for %s: %s", ErrInvalidConfig, key, v)
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
