package ratelimit

import (
	"os"
	"strconv"
	"time"

	"github.com/mathewevviai/diala-sub005/internal/jobs"
)

// KindLimit is the quota for one job kind.
type KindLimit struct {
	Limit  int           // Maximum jobs per window
	Window time.Duration // Sliding window length
}

// Config holds the per-kind quota table.
type Config struct {
	Enabled bool
	Limits  map[jobs.Kind]KindLimit
}

// DefaultConfig returns the default quota table. Kinds absent from the table
// are unlimited.
func DefaultConfig() *Config {
	return &Config{
		Enabled: true,
		Limits: map[jobs.Kind]KindLimit{
			// Expensive worker-side operations get the strictest limits.
			jobs.KindVoiceClone:   {Limit: 5, Window: time.Hour},
			jobs.KindDownload:     {Limit: 20, Window: time.Hour},
			jobs.KindChannelFetch: {Limit: 30, Window: time.Hour},
			jobs.KindVideoFetch:   {Limit: 60, Window: time.Hour},
			jobs.KindExport:       {Limit: 10, Window: time.Hour},
		},
	}
}

// LoadConfig builds the quota table from environment variables, falling back
// to defaults. Overrides use RATE_LIMIT_<KIND>_LIMIT and
// RATE_LIMIT_<KIND>_WINDOW, e.g. RATE_LIMIT_VOICE_CLONE_LIMIT=10.
func LoadConfig() *Config {
	cfg := DefaultConfig()
	cfg.Enabled = getEnvBool("RATE_LIMIT_ENABLED", true)

	overrides := map[jobs.Kind]string{
		jobs.KindChannelFetch: "CHANNEL_FETCH",
		jobs.KindVideoFetch:   "VIDEO_FETCH",
		jobs.KindDownload:     "DOWNLOAD",
		jobs.KindVoiceClone:   "VOICE_CLONE",
		jobs.KindExport:       "EXPORT",
	}
	for kind, name := range overrides {
		limit := cfg.Limits[kind]
		limit.Limit = getEnvInt("RATE_LIMIT_"+name+"_LIMIT", limit.Limit)
		limit.Window = getEnvDuration("RATE_LIMIT_"+name+"_WINDOW", limit.Window)
		cfg.Limits[kind] = limit
	}

	return cfg
}

// getEnvInt gets an environment variable as an integer with a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as a boolean with a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration gets an environment variable as a duration with a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
