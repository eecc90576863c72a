package app

import (
	"testing"
	"time"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("T_STR", "  value  ")
	if got := EnvString("T_STR", "def"); got != "value" {
		t.Fatalf("EnvString = %q, want value", got)
	}
	if got := EnvString("T_MISSING", "def"); got != "def" {
		t.Fatalf("EnvString default = %q, want def", got)
	}

	t.Setenv("T_BOOL", "true")
	if !EnvBool("T_BOOL", false) {
		t.Fatal("EnvBool true not parsed")
	}
	t.Setenv("T_BOOL_BAD", "maybe")
	if EnvBool("T_BOOL_BAD", false) {
		t.Fatal("EnvBool invalid should fall back to default")
	}

	t.Setenv("T_INT", "42")
	if got := EnvInt("T_INT", 1); got != 42 {
		t.Fatalf("EnvInt = %d, want 42", got)
	}
	t.Setenv("T_INT_NEG", "-3")
	if got := EnvInt("T_INT_NEG", 7); got != 7 {
		t.Fatalf("EnvInt negative = %d, want default 7", got)
	}

	t.Setenv("T_DUR", "250ms")
	if got := EnvDuration("T_DUR", time.Second); got != 250*time.Millisecond {
		t.Fatalf("EnvDuration = %v, want 250ms", got)
	}

	t.Setenv("T_CSV", "a, b , ,c")
	got := EnvCSV("T_CSV", "")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("EnvCSV = %v, want [a b c]", got)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.HTTPAddr != "0.0.0.0:8080" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.DBSchema != "ripple" {
		t.Fatalf("DBSchema = %q, want ripple", cfg.DBSchema)
	}
	if cfg.BlacklistSweep != time.Hour {
		t.Fatalf("BlacklistSweep = %v, want 1h", cfg.BlacklistSweep)
	}
	if cfg.WSStrictMembership {
		t.Fatal("WSStrictMembership should default off")
	}
	if !cfg.WSOriginRequired {
		t.Fatal("WSOriginRequired should default on")
	}
	if len(cfg.WSAllowedOrigins) == 0 {
		t.Fatal("WSAllowedOrigins default empty")
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("RIPPLE_HTTP_ADDR", "127.0.0.1:9090")
	t.Setenv("RIPPLE_DB_SCHEMA", "chat_test")
	t.Setenv("RIPPLE_WS_STRICT_MEMBERSHIP", "true")
	t.Setenv("RIPPLE_RATE_LIMIT", "10")

	cfg := LoadConfig()
	if cfg.HTTPAddr != "127.0.0.1:9090" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.DBSchema != "chat_test" {
		t.Fatalf("DBSchema = %q", cfg.DBSchema)
	}
	if !cfg.WSStrictMembership {
		t.Fatal("WSStrictMembership override lost")
	}
	if cfg.RateLimit != 10 {
		t.Fatalf("RateLimit = %d, want 10", cfg.RateLimit)
	}
}
