package auth

import "testing"

func TestConfigFromEnv_DevMode(t *testing.T) {
	t.Setenv("AUTH_MODE", "dev")
	t.Setenv("DEV_AUTH_ROLES", "Approver, approver,requester")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if cfg.Mode != ModeDev {
		t.Fatalf("Mode=%q, want dev", cfg.Mode)
	}
	if len(cfg.DevRoles) != 2 {
		t.Fatalf("DevRoles=%v, want deduplicated pair", cfg.DevRoles)
	}
	if cfg.SessionCookieName != "stackport_session" {
		t.Fatalf("SessionCookieName=%q", cfg.SessionCookieName)
	}
}

func TestConfigFromEnv_RejectsUnknownMode(t *testing.T) {
	t.Setenv("AUTH_MODE", "basic")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatal("unknown AUTH_MODE should be rejected")
	}
}

func TestConfigValidate_OIDCRequiresIssuer(t *testing.T) {
	t.Setenv("AUTH_MODE", "oidc")
	t.Setenv("OIDC_ISSUER_URL", "")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatal("oidc mode without issuer should be rejected")
	}
}
