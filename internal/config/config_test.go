package config

import "testing"

func TestValidate_ProductionRequiresJWTSecret(t *testing.T) {
	cfg := &Config{Env: "production", DatabaseURL: "postgres://x"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing JWT_SECRET in production")
	}

	cfg.JWTSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_DevAllowsMissingSecret(t *testing.T) {
	cfg := &Config{Env: "development", DatabaseURL: "postgres://x"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_ConnBounds(t *testing.T) {
	cfg := &Config{Env: "development", DBMinConns: 10, DBMaxConns: 5}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when min conns exceed max conns")
	}
}

func TestIsDev(t *testing.T) {
	if !(&Config{Env: "development"}).IsDev() {
		t.Error("expected development env to be dev")
	}
	if (&Config{Env: "production"}).IsDev() {
		t.Error("expected production env not to be dev")
	}
	if !(&Config{Env: "production"}).IsProduction() {
		t.Error("expected production env to be production")
	}
}
