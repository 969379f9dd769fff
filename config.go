package sessionguard

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tempusguard/sessionguard/crypto"
	"github.com/tempusguard/sessionguard/resilience"
)

// Config gathers every recognized configuration option in spec §6. It is
// built with functional Options, the same pattern as the teacher's
// options.go (Option func(*Cache)), generalized to the whole surface here.
// A Config is frozen (deep-copied) the instant a store is constructed —
// re-configuring requires building a new store, per spec §5.
type Config struct {
	// Secret / crypto
	Secret               []byte
	RequireSecureSecret  bool
	UseKDF               bool
	KDFIterations        int
	KDFSalt              []byte
	DigestAlgorithm      string // current MAC scheme id, e.g. "hmac-sha256"
	DigestFallback       bool   // accept one legacy scheme id on read
	EncryptAtRest        bool
	CompressData         bool
	CompressionThreshold int

	// Session lifecycle
	Timeout            time.Duration
	SlidingExpiration  bool
	IdleTimeout        time.Duration // 0 disables idle-based sliding cap
	MaxSessionsPerUser int           // 0 disables the limit

	// Cookie
	SessionKey     string
	CookieSameSite string // "Lax" (default), "Strict", "None"
	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieHTTPOnly bool

	// Fingerprint binding
	BindToIP        bool
	BindToUserAgent bool

	// Resilience
	EnableRetry         bool
	RetryConfig         resilience.RetryPolicy
	CircuitBreakerOn    bool
	CircuitBreakerConfig resilience.BreakerConfig

	// Clustering
	Cluster ClusterConfig

	// Observability
	Metrics Metrics
	Logger  zerolog.Logger
}

// ClusterConfig configures the ClusteredStore decorator (§4.3, §6).
type ClusterConfig struct {
	Enabled            bool
	NodeID             string
	Channel            string
	LocalCacheTTL      time.Duration
	LocalCacheMaxSize  int
}

// Option mutates a Config being built. Mirrors the teacher's
// Option func(*Cache) pattern, generalized to the full Config surface.
type Option func(*Config)

// defaultConfig returns the baseline every preset patches from.
func defaultConfig() *Config {
	return &Config{
		RequireSecureSecret:  false,
		UseKDF:               false,
		KDFIterations:        100_000,
		DigestAlgorithm:      "hmac-sha256",
		DigestFallback:       false,
		EncryptAtRest:        false,
		CompressData:         true,
		CompressionThreshold: 1024,

		Timeout:            30 * time.Minute,
		SlidingExpiration:  false,
		MaxSessionsPerUser: 0,

		SessionKey:     "_session",
		CookieSameSite: "Lax",
		CookiePath:     "/",
		CookieDomain:   "",
		CookieSecure:   true,
		CookieHTTPOnly: true,

		BindToIP:        false,
		BindToUserAgent: false,

		EnableRetry: true,
		RetryConfig: resilience.DefaultRetryPolicy(),

		CircuitBreakerOn:     true,
		CircuitBreakerConfig: resilience.DefaultBreakerConfig(),

		Cluster: ClusterConfig{
			Enabled:           false,
			Channel:           "sessionguard:invalidate",
			LocalCacheTTL:     30 * time.Second,
			LocalCacheMaxSize: 10_000,
		},

		Metrics: NoOpMetrics{},
		Logger:  zerolog.Nop(),
	}
}

// NewConfig builds a Config from a preset name (see presets.go) and
// any additional Options layered on top. An unknown preset name falls back
// to "development".
func NewConfig(preset string, opts ...Option) *Config {
	cfg := defaultConfig()
	for _, o := range presetOptions(preset) {
		o(cfg)
	}
	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// WithSecret sets the master key material.
func WithSecret(secret []byte) Option {
	return func(c *Config) { c.Secret = secret }
}

// WithTimeout sets the default session lifetime.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithSessionKey sets the cookie name.
func WithSessionKey(name string) Option {
	return func(c *Config) { c.SessionKey = name }
}

// WithSlidingExpiration enables touch-on-every-load.
func WithSlidingExpiration(enabled bool) Option {
	return func(c *Config) { c.SlidingExpiration = enabled }
}

// WithMaxSessionsPerUser caps the number of live sessions CreateForOwner
// keeps per owner key, evicting the oldest once exceeded. Zero (the
// default) disables the limit.
func WithMaxSessionsPerUser(n int) Option {
	return func(c *Config) { c.MaxSessionsPerUser = n }
}

// WithKDF enables PBKDF2-HMAC-SHA256 key derivation with the given
// iteration count and salt.
func WithKDF(iterations int, salt []byte) Option {
	return func(c *Config) {
		c.UseKDF = true
		c.KDFIterations = iterations
		c.KDFSalt = salt
	}
}

// WithDigestFallback allows readers to accept one legacy MAC scheme id
// during a rolling key/algorithm change.
func WithDigestFallback(enabled bool) Option {
	return func(c *Config) { c.DigestFallback = enabled }
}

// WithEncryptAtRest toggles envelope encryption before writes to the
// remote store.
func WithEncryptAtRest(enabled bool) Option {
	return func(c *Config) { c.EncryptAtRest = enabled }
}

// WithCompression toggles deflate compression above threshold bytes.
func WithCompression(enabled bool, threshold int) Option {
	return func(c *Config) {
		c.CompressData = enabled
		c.CompressionThreshold = threshold
	}
}

// WithCookieAttributes sets the cookie's Path, Domain, Secure, and
// HttpOnly attributes in one call.
func WithCookieAttributes(path, domain string, secure, httpOnly bool) Option {
	return func(c *Config) {
		c.CookiePath = path
		c.CookieDomain = domain
		c.CookieSecure = secure
		c.CookieHTTPOnly = httpOnly
	}
}

// WithCookieSameSite sets the cookie's SameSite attribute.
func WithCookieSameSite(mode string) Option {
	return func(c *Config) { c.CookieSameSite = mode }
}

// WithFingerprintBinding includes the selected request attributes in the
// client fingerprint.
func WithFingerprintBinding(bindIP, bindUA bool) Option {
	return func(c *Config) {
		c.BindToIP = bindIP
		c.BindToUserAgent = bindUA
	}
}

// WithRetry configures the resilience retry policy.
func WithRetry(enabled bool, policy resilience.RetryPolicy) Option {
	return func(c *Config) {
		c.EnableRetry = enabled
		c.RetryConfig = policy
	}
}

// WithCircuitBreaker configures the resilience circuit breaker.
func WithCircuitBreaker(enabled bool, cfg resilience.BreakerConfig) Option {
	return func(c *Config) {
		c.CircuitBreakerOn = enabled
		c.CircuitBreakerConfig = cfg
	}
}

// WithCluster enables the clustered decorator.
func WithCluster(cluster ClusterConfig) Option {
	return func(c *Config) {
		cluster.Enabled = true
		c.Cluster = cluster
	}
}

// WithMetrics wires a metrics sink (see metrics.go).
func WithMetrics(m Metrics) Option {
	return func(c *Config) { c.Metrics = m }
}

// WithLogger wires a structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// BuildEnvelope constructs the crypto.Envelope a RemoteStore uses to seal
// records at rest, per §4.4. A digest is always built (the outer MAC is
// mandatory even with EncryptAtRest off, per spec's corruption-detection
// guarantee); the AEAD layer is only wired in when EncryptAtRest is set.
func (c *Config) BuildEnvelope() (*crypto.Envelope, error) {
	if len(c.Secret) == 0 {
		return nil, fmt.Errorf("sessionguard: a Secret is required to build the crypto envelope")
	}
	if c.RequireSecureSecret && len(c.Secret) < 32 {
		return nil, fmt.Errorf("sessionguard: RequireSecureSecret requires a secret of at least 32 bytes, got %d", len(c.Secret))
	}

	var key []byte
	if c.UseKDF {
		key = crypto.DeriveKey(c.Secret, c.KDFSalt, c.KDFIterations)
	} else {
		key = crypto.NormalizeKey(c.Secret)
	}

	var aead *crypto.AEAD
	if c.EncryptAtRest {
		aead = crypto.NewAEAD(key)
	}
	digest := crypto.NewDigest(key, c.DigestAlgorithm, c.DigestFallback)
	return crypto.NewEnvelope(aead, digest, c.CompressData, c.CompressionThreshold), nil
}

// clone returns a value copy safe to freeze into a store; slices/maps
// that could be mutated by the caller afterward are defensively copied.
func (c *Config) clone() *Config {
	cp := *c
	if c.Secret != nil {
		cp.Secret = append([]byte(nil), c.Secret...)
	}
	if c.KDFSalt != nil {
		cp.KDFSalt = append([]byte(nil), c.KDFSalt...)
	}
	return &cp
}
