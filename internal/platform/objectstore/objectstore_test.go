package objectstore

import "testing"

func TestConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if cfg.BucketDiagnostics != "deployment-diagnostics" {
		t.Fatalf("BucketDiagnostics=%q", cfg.BucketDiagnostics)
	}
	if cfg.UseSSL {
		t.Fatal("UseSSL should default to false")
	}
}

func TestConfigValidate_RejectsScheme(t *testing.T) {
	t.Setenv("STACKPORT_MINIO_ENDPOINT", "http://localhost:9000")
	if _, err := ConfigFromEnv(); err == nil {
		t.Fatal("endpoint with scheme should be rejected")
	}
}
