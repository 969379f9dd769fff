package sessionguard

import (
	"testing"
	"time"
)

func TestNewConfigDevelopmentDefaults(t *testing.T) {
	cfg := NewConfig("development")
	if cfg.EncryptAtRest {
		t.Error("expected development preset to leave encryption off")
	}
	if cfg.Timeout != 24*time.Hour {
		t.Errorf("expected 24h timeout, got %v", cfg.Timeout)
	}
}

func TestNewConfigProductionEnablesEncryptionAndResilience(t *testing.T) {
	cfg := NewConfig("production")
	if !cfg.EncryptAtRest {
		t.Error("expected production preset to enable encryption")
	}
	if !cfg.UseKDF {
		t.Error("expected production preset to enable KDF")
	}
	if !cfg.EnableRetry || !cfg.CircuitBreakerOn {
		t.Error("expected production preset to enable resilience")
	}
}

func TestNewConfigHighSecurityTightensBindingAndTimeout(t *testing.T) {
	cfg := NewConfig("high_security")
	if cfg.Timeout != 15*time.Minute {
		t.Errorf("expected 15m timeout, got %v", cfg.Timeout)
	}
	if !cfg.BindToIP || !cfg.BindToUserAgent {
		t.Error("expected high_security preset to bind both IP and user agent")
	}
	if !cfg.RequireSecureSecret {
		t.Error("expected high_security preset to require a secure secret")
	}
}

func TestNewConfigCallerOptionsOverridePreset(t *testing.T) {
	cfg := NewConfig("production", WithTimeout(time.Hour))
	if cfg.Timeout != time.Hour {
		t.Errorf("expected caller option to win, got %v", cfg.Timeout)
	}
}

func TestNewConfigUnknownPresetFallsBackToDevelopment(t *testing.T) {
	cfg := NewConfig("does-not-exist")
	devCfg := NewConfig("development")
	if cfg.Timeout != devCfg.Timeout || cfg.EncryptAtRest != devCfg.EncryptAtRest {
		t.Error("expected unknown preset to behave like development")
	}
}

func TestConfigCloneCopiesSliceFields(t *testing.T) {
	cfg := NewConfig("development", WithSecret([]byte("super-secret-value")))
	clone := cfg.clone()
	clone.Secret[0] = 'X'
	if cfg.Secret[0] == 'X' {
		t.Error("expected clone's Secret to be an independent copy")
	}
}

func TestBuildEnvelopeRequiresSecret(t *testing.T) {
	cfg := NewConfig("development")
	if _, err := cfg.BuildEnvelope(); err == nil {
		t.Fatal("expected an error building an envelope without a secret")
	}
}

func TestBuildEnvelopeRejectsShortSecretWhenRequireSecureSecretSet(t *testing.T) {
	cfg := NewConfig("high_security", WithSecret([]byte("too-short")))
	if _, err := cfg.BuildEnvelope(); err == nil {
		t.Fatal("expected high_security preset to reject a secret under 32 bytes")
	}
}

func TestBuildEnvelopeAcceptsShortSecretWithoutRequireSecureSecret(t *testing.T) {
	cfg := NewConfig("development", WithSecret([]byte("short")))
	if _, err := cfg.BuildEnvelope(); err != nil {
		t.Fatalf("expected a short secret to be accepted when RequireSecureSecret is unset, got %v", err)
	}
}

func TestBuildEnvelopeRoundTrip(t *testing.T) {
	cfg := NewConfig("production", WithSecret([]byte("super-secret-value-for-testing")))
	env, err := cfg.BuildEnvelope()
	if err != nil {
		t.Fatalf("BuildEnvelope: %v", err)
	}

	type payload struct {
		Msg string `json:"msg"`
	}
	encoded, err := env.Encode("abcdefghijklmnopqrst", payload{Msg: "hello"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var out payload
	if err := env.Decode("abcdefghijklmnopqrst", encoded, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Msg != "hello" {
		t.Errorf("expected round-tripped message, got %q", out.Msg)
	}
}
