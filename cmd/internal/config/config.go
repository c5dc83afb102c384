package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
)

// devSessionSecret is only accepted outside production.
const devSessionSecret = "dev-only-insecure-session-secret"

type Config struct {
	Production bool
	Port       int
	DBPath     string

	SessionSecret string
	SessionTTL    time.Duration

	HeartbeatInterval time.Duration
	InactivityTimeout time.Duration
	WriteTimeout      time.Duration

	JoinRateLimit float64
	JoinRateBurst int
	ClaimWindow   time.Duration

	MachineID      int64
	PublicURL      string
	AllowedOrigins []string
	LogLevel       log.Lvl
	HTTPAccessLog  bool
	ReportInterval time.Duration
}

func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// Load reads the configuration from the environment. Every malformed value
// is reported, not just the first one.
func Load() (*Config, error) {
	r := &reader{}
	cfg := &Config{
		Production:        os.Getenv("GO_ENV") == "production",
		Port:              r.getInt("PORT", 7070),
		DBPath:            r.getString("DB_PATH", "database.db"),
		SessionSecret:     os.Getenv("SESSION_SECRET"),
		SessionTTL:        r.getDuration("SESSION_TTL", 720*time.Hour),
		HeartbeatInterval: r.getDuration("SSE_HEARTBEAT_INTERVAL", 30*time.Second),
		InactivityTimeout: r.getDuration("SSE_INACTIVITY_TIMEOUT", 5*time.Minute),
		WriteTimeout:      r.getDuration("SSE_WRITE_TIMEOUT", 10*time.Second),
		JoinRateLimit:     r.getFloat("JOIN_RATE_LIMIT", 1),
		JoinRateBurst:     r.getInt("JOIN_RATE_BURST", 5),
		ClaimWindow:       r.getDuration("CLAIM_WINDOW", 168*time.Hour),
		MachineID:         int64(r.getInt("MACHINE_ID", 1)),
		PublicURL:         r.getString("PUBLIC_URL", "http://localhost:3000"),
		AllowedOrigins:    r.getList("CORS_ORIGINS", []string{"*"}),
		LogLevel:          r.getLogLevel("LOG_LEVEL", log.INFO),
		HTTPAccessLog:     r.getBool("HTTP_ACCESS_LOG", false),
		ReportInterval:    r.getDuration("REPORT_INTERVAL", 5*time.Minute),
	}

	if cfg.SessionSecret == "" && !cfg.Production {
		cfg.SessionSecret = devSessionSecret
	}

	if len(r.errs) > 0 {
		return nil, errors.Join(r.errs...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}

	if len(c.SessionSecret) < 16 {
		return errors.New("SESSION_SECRET must be at least 16 characters")
	}

	if c.Production && c.SessionSecret == devSessionSecret {
		return errors.New("SESSION_SECRET must be set in production")
	}

	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}

	if c.HeartbeatInterval <= 0 || c.InactivityTimeout <= 0 {
		return errors.New("stream heartbeat interval and inactivity timeout must be positive")
	}

	if c.HeartbeatInterval >= c.InactivityTimeout {
		return errors.New("heartbeat interval should be less than inactivity timeout")
	}

	if c.ClaimWindow < 0 {
		return errors.New("CLAIM_WINDOW cannot be negative")
	}

	if c.JoinRateLimit <= 0 || c.JoinRateBurst < 1 {
		return errors.New("join rate limit and burst must be positive")
	}

	// snowflake reserves 10 bits for the node
	if c.MachineID < 0 || c.MachineID > 1023 {
		return fmt.Errorf("MACHINE_ID must be between 0 and 1023, got %d", c.MachineID)
	}
	return nil
}

// reader collects parse errors while falling back to defaults.
type reader struct {
	errs []error
}

func (r *reader) getString(key, def string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return def
}

func (r *reader) getInt(key string, def int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}

	parsed, err := strconv.Atoi(val)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not an integer", key, val))
		return def
	}
	return parsed
}

func (r *reader) getFloat(key string, def float64) float64 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}

	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not a number", key, val))
		return def
	}
	return parsed
}

func (r *reader) getBool(key string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}

	parsed, err := strconv.ParseBool(val)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not a boolean", key, val))
		return def
	}
	return parsed
}

func (r *reader) getDuration(key string, def time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}

	parsed, err := time.ParseDuration(val)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %q is not a duration", key, val))
		return def
	}
	return parsed
}

func (r *reader) getList(key string, def []string) []string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}

	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	if len(out) == 0 {
		return def
	}
	return out
}

func (r *reader) getLogLevel(key string, def log.Lvl) log.Lvl {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "":
		return def
	case "debug":
		return log.DEBUG
	case "info":
		return log.INFO
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		r.errs = append(r.errs, fmt.Errorf("%s: unknown log level %q", key, val))
		return def
	}
}
