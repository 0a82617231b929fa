package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"HTTP_PORT", "STORE", "SUBSCRIBER_BUFFER", "TABLE_RESET_DELAY", "CORS_ORIGINS"} {
		t.Setenv(key, "")
	}
	cfg := LoadConfig()
	if cfg.HTTPPort != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.HTTPPort)
	}
	if cfg.Store != "mysql" {
		t.Fatalf("expected default store mysql, got %s", cfg.Store)
	}
	if cfg.SubscriberBuffer != 64 {
		t.Fatalf("expected default subscriber buffer 64, got %d", cfg.SubscriberBuffer)
	}
	if cfg.TableResetDelay != 30*time.Second {
		t.Fatalf("expected default reset delay 30s, got %s", cfg.TableResetDelay)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Fatalf("expected wildcard CORS origin, got %v", cfg.CORSOrigins)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("STORE", "memory")
	t.Setenv("SUBSCRIBER_BUFFER", "not-a-number")
	t.Setenv("TABLE_RESET_DELAY", "2m")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example ,")

	cfg := LoadConfig()
	if cfg.Store != "memory" {
		t.Fatalf("expected store memory, got %s", cfg.Store)
	}
	if cfg.SubscriberBuffer != 64 {
		t.Fatalf("invalid buffer should fall back to default, got %d", cfg.SubscriberBuffer)
	}
	if cfg.TableResetDelay != 2*time.Minute {
		t.Fatalf("expected 2m reset delay, got %s", cfg.TableResetDelay)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected CORS origins %v", cfg.CORSOrigins)
	}
}

func TestLoadConfig_SecretFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jwt")
	if err := os.WriteFile(path, []byte("  file-secret\n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	t.Setenv("JWT_SECRET_FILE", path)
	t.Setenv("JWT_SECRET", "env-secret")

	if got := LoadConfig().JWTSecret; got != "file-secret" {
		t.Fatalf("expected secret from file, got %q", got)
	}
}

func TestDSN(t *testing.T) {
	cfg := &Config{DBUser: "u", DBPassword: "p", DBHost: "db", DBPort: "3306", DBName: "x"}
	want := "u:p@tcp(db:3306)/x?parseTime=true&multiStatements=true"
	if got := cfg.DSN(); got != want {
		t.Fatalf("DSN() = %s, want %s", got, want)
	}
}
