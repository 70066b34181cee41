package module

import (
	"time"

	"recallwatch/internal/platform/config"
)

// Options holds configuration options for the connector service
type Options struct {
	UserAgent     string
	OverridesPath string

	Workers        int
	MaxRetries     int
	RetryBase      time.Duration
	RequestTimeout time.Duration
	MaxPages       int
}

// FromConfig reads the connector options from config with CORE_SOURCES_ prefix
func FromConfig(cfg config.Conf) Options {
	sc := cfg.Prefix("CORE_SOURCES_")
	return Options{
		UserAgent:      sc.MayString("USER_AGENT", "recallwatch-ingest"),
		OverridesPath:  sc.MayString("OVERRIDES", ""),
		Workers:        sc.MayInt("WORKERS", 0), // 0 means one per agency
		MaxRetries:     sc.MayInt("RETRIES", 3),
		RetryBase:      sc.MayDuration("RETRY_BASE", 2*time.Second),
		RequestTimeout: sc.MayDuration("TIMEOUT", 30*time.Second),
		MaxPages:       sc.MayInt("MAX_PAGES", 0),
	}
}
