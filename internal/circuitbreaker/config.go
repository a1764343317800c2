package circuitbreaker

import (
	"os"
	"strconv"
	"time"
)

// Settings is the env-tunable part of a breaker Config
type Settings struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	SuccessThreshold uint32
}

// SynthesisSettings configures the breaker in front of the speech synthesis endpoint.
func SynthesisSettings() Settings {
	return fromEnv("CB_SYNTHESIS", Settings{
		MaxRequests:      2,
		Interval:         30 * time.Second,
		Timeout:          20 * time.Second,
		FailureThreshold: 3,
		SuccessThreshold: 1,
	})
}

// RedisSettings configures the breaker in front of the shared feedback table.
func RedisSettings() Settings {
	return fromEnv("CB_REDIS", Settings{
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          15 * time.Second,
		FailureThreshold: 3,
		SuccessThreshold: 2,
	})
}

// ToConfig converts Settings to a breaker Config
func (s Settings) ToConfig() Config {
	return Config{
		MaxRequests:      s.MaxRequests,
		Interval:         s.Interval,
		Timeout:          s.Timeout,
		FailureThreshold: s.FailureThreshold,
		SuccessThreshold: s.SuccessThreshold,
	}
}

// fromEnv overrides defaults with <prefix>_MAX_REQUESTS, <prefix>_INTERVAL,
// <prefix>_TIMEOUT, <prefix>_FAILURE_THRESHOLD and <prefix>_SUCCESS_THRESHOLD.
func fromEnv(prefix string, def Settings) Settings {
	return Settings{
		MaxRequests:      envUint32(prefix+"_MAX_REQUESTS", def.MaxRequests),
		Interval:         envDuration(prefix+"_INTERVAL", def.Interval),
		Timeout:          envDuration(prefix+"_TIMEOUT", def.Timeout),
		FailureThreshold: envUint32(prefix+"_FAILURE_THRESHOLD", def.FailureThreshold),
		SuccessThreshold: envUint32(prefix+"_SUCCESS_THRESHOLD", def.SuccessThreshold),
	}
}

func envUint32(key string, def uint32) uint32 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseUint(val, 10, 32); err == nil {
			return uint32(parsed)
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return def
}
