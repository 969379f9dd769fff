package sessionguard

import (
	"time"

	"github.com/tempusguard/sessionguard/resilience"
)

// presetOptions maps a preset name to the Options that patch the baseline
// Config, the way paulround2tele-studio/backend's session_config.go ladders
// GetDefaultSessionSettings -> GetProductionSessionSettings /
// GetDevelopmentSessionSettings. Each preset here is a pure function from
// name to patch, applied before any caller-supplied Options, so callers
// always have the final word.
func presetOptions(name string) []Option {
	switch name {
	case "production":
		return productionPreset()
	case "high_security":
		return highSecurityPreset()
	case "testing":
		return testingPreset()
	case "clustered":
		return clusteredPreset()
	default: // "development" and anything unrecognized
		return developmentPreset()
	}
}

// developmentPreset favors convenience: long sessions, no encryption, no
// retry tuning surprises.
func developmentPreset() []Option {
	return []Option{
		WithTimeout(24 * time.Hour),
		WithSlidingExpiration(true),
		WithEncryptAtRest(false),
		WithCompression(true, 1024),
	}
}

// productionPreset turns on at-rest encryption, KDF, and tighter
// resilience defaults.
func productionPreset() []Option {
	return []Option{
		WithTimeout(2 * time.Hour),
		WithSlidingExpiration(true),
		WithEncryptAtRest(true),
		WithKDF(100_000, nil),
		WithCompression(true, 1024),
		WithRetry(true, resilience.DefaultRetryPolicy()),
		WithCircuitBreaker(true, resilience.DefaultBreakerConfig()),
	}
}

// highSecurityPreset adds fingerprint binding and shorter sessions on top
// of production.
func highSecurityPreset() []Option {
	opts := productionPreset()
	return append(opts,
		WithTimeout(15*time.Minute),
		WithFingerprintBinding(true, true),
		func(c *Config) { c.RequireSecureSecret = true },
	)
}

// testingPreset disables retry/backoff delays and encryption so unit tests
// run fast and deterministically.
func testingPreset() []Option {
	return []Option{
		WithTimeout(5 * time.Minute),
		WithEncryptAtRest(false),
		WithCompression(false, 0),
		WithRetry(false, resilience.RetryPolicy{}),
		WithCircuitBreaker(false, resilience.BreakerConfig{}),
	}
}

// clusteredPreset layers production defaults with clustering enabled.
func clusteredPreset() []Option {
	opts := productionPreset()
	return append(opts, WithCluster(ClusterConfig{
		Channel:           "sessionguard:invalidate",
		LocalCacheTTL:     30 * time.Second,
		LocalCacheMaxSize: 10_000,
	}))
}
