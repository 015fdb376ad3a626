package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CK6170/gravtie-go/tie"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"GRAVTIE_ADDR", "GRAVTIE_DB_DIR", "GRAVTIE_TIE_DIR", "GRAVTIE_LOG_LEVEL",
		"GRAVTIE_LOG_FORMAT", "GRAVTIE_LOG_FILE", "GRAVTIE_FILTER_MODE", "GRAVTIE_FAA_FACTOR",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != "127.0.0.1:8080" || cfg.DBDir != "database" || cfg.FilterMode != tie.ZeroPhase || cfg.FAAFactor != tie.FAAFactor {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	// godotenv does not override variables that are set, even to "".
	os.Unsetenv("GRAVTIE_FILTER_MODE")
	os.Unsetenv("GRAVTIE_DB_DIR")
	env := filepath.Join(t.TempDir(), ".env")
	body := "GRAVTIE_FILTER_MODE=legacy\nGRAVTIE_DB_DIR=/srv/gravtie/db\n"
	if err := os.WriteFile(env, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		os.Unsetenv("GRAVTIE_FILTER_MODE")
		os.Unsetenv("GRAVTIE_DB_DIR")
	})
	t.Setenv("GRAVTIE_FAA_FACTOR", "0.3")
	cfg, err := Load(env)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.FilterMode != tie.LegacyDoublePass || cfg.DBDir != "/srv/gravtie/db" || cfg.FAAFactor != 0.3 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"GRAVTIE_FILTER_MODE": "fancy",
		"GRAVTIE_FAA_FACTOR":  "-1",
		"GRAVTIE_LOG_FORMAT":  "xml",
		"GRAVTIE_LOG_LEVEL":   "loud",
	}
	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(k, v)
			if _, err := Load(""); err == nil {
				t.Fatalf("expected error for %s=%s", k, v)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn", "json")
	logger.Info("hidden")
	logger.Warn("shown", "bias", 1.5)
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"bias":1.5`) {
		t.Fatalf("unexpected log output %q", out)
	}
}
