package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := fromLookup(lookupFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, 2*time.Second, cfg.Database.LedgerLockWait)
	assert.Equal(t, 3, cfg.Plan.HospitalizationCap)
	assert.Equal(t, 5, cfg.Plan.AmbulatoryCap)
	assert.Equal(t, time.UTC, cfg.Plan.Location())
	assert.Equal(t, time.Hour, cfg.Sweep.Interval)
	assert.Equal(t, DevSigningKey, cfg.Auth.JWTSigningKey)
	assert.Nil(t, cfg.Kafka.Brokers)
	assert.Equal(t, 20, cfg.RateLimit.SignInPerMinute)
	assert.Equal(t, 300, cfg.RateLimit.APIPerMinute)
}

func TestOverrides(t *testing.T) {
	cfg, err := fromLookup(lookupFrom(map[string]string{
		"MUTUELLE_ADDR":             ":9000",
		"LEDGER_LOCK_TIMEOUT":       "500ms",
		"PLAN_HOSPITALIZATION_CAP":  "4",
		"PLAN_TIMEZONE":             "Africa/Dakar",
		"KAFKA_BROKERS":             "kafka-1:9092, kafka-2:9092,",
		"CORS_ALLOWED_ORIGINS":      "https://dashboard.example.org",
		"RATE_LIMIT_API_PER_MINUTE": "0",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 500*time.Millisecond, cfg.Database.LedgerLockWait)
	assert.Equal(t, 4, cfg.Plan.HospitalizationCap)
	assert.Equal(t, "Africa/Dakar", cfg.Plan.Location().String())
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"https://dashboard.example.org"}, cfg.Server.CORSAllowedOrigins)
	assert.Zero(t, cfg.RateLimit.APIPerMinute)
}

func TestInvalidValues(t *testing.T) {
	_, err := fromLookup(lookupFrom(map[string]string{
		"LEDGER_LOCK_TIMEOUT": "soon",
		"PLAN_AMBULATORY_CAP": "five",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LEDGER_LOCK_TIMEOUT")
	assert.Contains(t, err.Error(), "PLAN_AMBULATORY_CAP")

	_, err = fromLookup(lookupFrom(map[string]string{"PLAN_TIMEZONE": "Mars/Olympus"}))
	assert.ErrorContains(t, err, "PLAN_TIMEZONE")

	_, err = fromLookup(lookupFrom(map[string]string{"PLAN_HOSPITALIZATION_CAP": "-1"}))
	assert.ErrorContains(t, err, "non-negative")

	_, err = fromLookup(lookupFrom(map[string]string{"RATE_LIMIT_SIGNIN_PER_MINUTE": "-5"}))
	assert.ErrorContains(t, err, "rate limits")
}
