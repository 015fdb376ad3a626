package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/CK6170/gravtie-go/tie"
)

type Config struct {
	Addr       string
	DBDir      string
	TieDir     string
	LogLevel   string
	LogFormat  string
	LogFile    string
	FilterMode tie.FilterMode
	FAAFactor  float64
}

// Load reads settings from the environment after merging envFile (usually
// ".env"); a missing envFile is not an error. Variables already set in the
// environment win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	cfg := Config{
		Addr:      getEnv("GRAVTIE_ADDR", "127.0.0.1:8080"),
		DBDir:     getEnv("GRAVTIE_DB_DIR", "database"),
		TieDir:    getEnv("GRAVTIE_TIE_DIR", "."),
		LogLevel:  getEnv("GRAVTIE_LOG_LEVEL", "info"),
		LogFormat: getEnv("GRAVTIE_LOG_FORMAT", "text"),
		LogFile:   os.Getenv("GRAVTIE_LOG_FILE"),
		FAAFactor: tie.FAAFactor,
	}

	mode, err := tie.ParseFilterMode(getEnv("GRAVTIE_FILTER_MODE", tie.ZeroPhase.String()))
	if err != nil {
		return Config{}, fmt.Errorf("GRAVTIE_FILTER_MODE: %w", err)
	}
	cfg.FilterMode = mode

	if v := os.Getenv("GRAVTIE_FAA_FACTOR"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return Config{}, fmt.Errorf("GRAVTIE_FAA_FACTOR: invalid value %q", v)
		}
		cfg.FAAFactor = f
	}

	switch strings.ToLower(cfg.LogFormat) {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("GRAVTIE_LOG_FORMAT: expected text or json, got %q", cfg.LogFormat)
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
