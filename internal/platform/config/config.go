// Package config reads service configuration from the environment, after
// loading an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	strs "mutuelle/pkg/platform/strings"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr               string
	CORSAllowedOrigins []string
}

type Log struct {
	Level  string
	Format string
}

// Database is empty when the service runs on in-memory stores.
type Database struct {
	URL            string
	MaxConns       int32
	LedgerLockWait time.Duration
	MigrateOnStart bool
}

// RedisConfig is empty when placements are cached in process.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CacheTTL     time.Duration
}

// Kafka is empty when audit events stay in memory.
type Kafka struct {
	Brokers    []string
	AuditTopic string
}

type Auth struct {
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	JWTTTL        time.Duration
	MaxAttempts   int
	LockoutWindow time.Duration
}

// Plan configures the forfait every member subscribes to.
type Plan struct {
	HospitalizationCap int
	AmbulatoryCap      int
	Timezone           string
}

type Sweep struct {
	Interval    time.Duration
	Concurrency int
}

// RateLimit sets per-minute request budgets. Zero disables a budget.
type RateLimit struct {
	SignInPerMinute int
	APIPerMinute    int
}

type Config struct {
	Server    Server
	Log       Log
	Database  Database
	Redis     RedisConfig
	Kafka     Kafka
	Auth      Auth
	Plan      Plan
	Sweep     Sweep
	RateLimit RateLimit
}

// DevSigningKey is used when JWT_SIGNING_KEY is unset. Never use it in production.
const DevSigningKey = "dev-secret-key-change-in-production"

// FromEnv builds a Config from environment variables so main stays lean.
// A .env file in the working directory is loaded first when present;
// variables already set in the environment win.
func FromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return fromLookup(os.LookupEnv)
}

func fromLookup(lookup func(string) (string, bool)) (Config, error) {
	r := reader{lookup: lookup}
	cfg := Config{
		Server: Server{
			Addr:               r.str("MUTUELLE_ADDR", ":8080"),
			CORSAllowedOrigins: strs.SplitList(r.str("CORS_ALLOWED_ORIGINS", "")),
		},
		Log: Log{
			Level:  r.str("LOG_LEVEL", "info"),
			Format: r.str("LOG_FORMAT", "json"),
		},
		Database: Database{
			URL:            r.str("DATABASE_URL", ""),
			MaxConns:       int32(r.int("DATABASE_MAX_CONNS", 10)),
			LedgerLockWait: r.duration("LEDGER_LOCK_TIMEOUT", 2*time.Second),
			MigrateOnStart: r.bool("DATABASE_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL:          r.str("REDIS_URL", ""),
			PoolSize:     r.int("REDIS_POOL_SIZE", 10),
			MinIdleConns: r.int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  r.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  r.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: r.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			CacheTTL:     r.duration("PLACEMENT_CACHE_TTL", 5*time.Minute),
		},
		Kafka: Kafka{
			Brokers:    strs.SplitList(r.str("KAFKA_BROKERS", "")),
			AuditTopic: r.str("KAFKA_AUDIT_TOPIC", "mutuelle.audit"),
		},
		Auth: Auth{
			JWTSigningKey: r.str("JWT_SIGNING_KEY", DevSigningKey),
			JWTIssuer:     r.str("JWT_ISSUER", "mutuelle"),
			JWTAudience:   r.str("JWT_AUDIENCE", "mutuelle-dashboard"),
			JWTTTL:        r.duration("JWT_TTL", 12*time.Hour),
			MaxAttempts:   r.int("SIGNIN_MAX_ATTEMPTS", 5),
			LockoutWindow: r.duration("SIGNIN_LOCKOUT_WINDOW", 15*time.Minute),
		},
		Plan: Plan{
			HospitalizationCap: r.int("PLAN_HOSPITALIZATION_CAP", 3),
			AmbulatoryCap:      r.int("PLAN_AMBULATORY_CAP", 5),
			Timezone:           r.str("PLAN_TIMEZONE", "UTC"),
		},
		Sweep: Sweep{
			Interval:    r.duration("EXPIRY_SWEEP_INTERVAL", time.Hour),
			Concurrency: r.int("EXPIRY_SWEEP_CONCURRENCY", 8),
		},
		RateLimit: RateLimit{
			SignInPerMinute: r.int("RATE_LIMIT_SIGNIN_PER_MINUTE", 20),
			APIPerMinute:    r.int("RATE_LIMIT_API_PER_MINUTE", 300),
		},
	}
	if len(r.errs) > 0 {
		return Config{}, errors.Join(r.errs...)
	}
	return cfg, cfg.Validate()
}

// Validate rejects values the service cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Plan.HospitalizationCap < 0 || c.Plan.AmbulatoryCap < 0 {
		errs = append(errs, errors.New("plan caps must be non-negative"))
	}
	if _, err := time.LoadLocation(c.Plan.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("PLAN_TIMEZONE: %w", err))
	}
	if c.Auth.JWTTTL <= 0 {
		errs = append(errs, errors.New("JWT_TTL must be positive"))
	}
	if c.RateLimit.SignInPerMinute < 0 || c.RateLimit.APIPerMinute < 0 {
		errs = append(errs, errors.New("rate limits must be non-negative"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.AuditTopic == "" {
		errs = append(errs, errors.New("KAFKA_AUDIT_TOPIC is required with KAFKA_BROKERS"))
	}
	return errors.Join(errs...)
}

// Location resolves the plan time zone. Validate has already checked it.
func (p Plan) Location() *time.Location {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) str(key, def string) string {
	if v, ok := r.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *reader) int(key string, def int) int {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (r *reader) bool(key string, def bool) bool {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
