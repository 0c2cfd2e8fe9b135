package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Port           int
	DatabaseURL    string
	Store          string
	AppEnv         string
	LogLevel       string
	LogFormat      string
	DBMaxConns     int32
	DBMinConns     int32
	DefaultCenters []CenterSeed
}

// CenterSeed is a sales center created at startup when missing.
type CenterSeed struct {
	Name              string
	CommissionPercent decimal.Decimal
}

// Load reads settings from the environment, falling back to ./.env.
// Environment variables always win over the file.
func Load() (Config, error) {
	return LoadFrom(filepath.Join(".", ".env"))
}

func LoadFrom(envPath string) (Config, error) {
	values := map[string]string{}
	if _, err := os.Stat(envPath); err == nil {
		fileValues, err := godotenv.Read(envPath)
		if err != nil {
			return Config{}, fmt.Errorf("read %s: %w", envPath, err)
		}
		values = fileValues
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("stat %s: %w", envPath, err)
	}
	get := func(key string) string {
		return firstNonEmpty(os.Getenv(key), values[key])
	}

	cfg := Config{
		Port:      8080,
		Store:     StorePostgres,
		AppEnv:    "development",
		LogLevel:  "info",
		LogFormat: "",
	}

	if portRaw := get("PORT"); portRaw != "" {
		port, err := strconv.Atoi(portRaw)
		if err != nil || port <= 0 {
			return Config{}, fmt.Errorf("invalid PORT: %q", portRaw)
		}
		cfg.Port = port
	}

	if store := strings.ToLower(get("STORE")); store != "" {
		if store != StorePostgres && store != StoreMemory {
			return Config{}, fmt.Errorf("invalid STORE: %q (want postgres or memory)", store)
		}
		cfg.Store = store
	}

	cfg.DatabaseURL = get("DATABASE_URL")
	if cfg.Store == StorePostgres && cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required (environment variable or .env) unless STORE=memory")
	}

	if env := get("APP_ENV"); env != "" {
		cfg.AppEnv = env
	}
	if level := get("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	cfg.LogFormat = get("LOG_FORMAT")
	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
		if cfg.AppEnv == "production" {
			cfg.LogFormat = "json"
		}
	}
	if cfg.LogFormat != "console" && cfg.LogFormat != "json" {
		return Config{}, fmt.Errorf("invalid LOG_FORMAT: %q", cfg.LogFormat)
	}

	if raw := get("DB_MAX_CONNS"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid DB_MAX_CONNS: %q", raw)
		}
		cfg.DBMaxConns = int32(n)
	}
	if raw := get("DB_MIN_CONNS"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid DB_MIN_CONNS: %q", raw)
		}
		cfg.DBMinConns = int32(n)
	}
	if cfg.DBMaxConns > 0 && cfg.DBMinConns > cfg.DBMaxConns {
		return Config{}, fmt.Errorf("DB_MIN_CONNS %d exceeds DB_MAX_CONNS %d", cfg.DBMinConns, cfg.DBMaxConns)
	}

	seeds, err := parseCenterSeeds(get("DEFAULT_CENTERS"))
	if err != nil {
		return Config{}, err
	}
	cfg.DefaultCenters = seeds

	return cfg, nil
}

// parseCenterSeeds reads "name:percent,name:percent". A missing percent
// means 0.
func parseCenterSeeds(raw string) ([]CenterSeed, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var seeds []CenterSeed
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, pctRaw, _ := strings.Cut(part, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("invalid DEFAULT_CENTERS entry %q: empty name", part)
		}
		pct := decimal.Zero
		if pctRaw = strings.TrimSpace(pctRaw); pctRaw != "" {
			parsed, err := decimal.NewFromString(pctRaw)
			if err != nil || parsed.IsNegative() {
				return nil, fmt.Errorf("invalid DEFAULT_CENTERS percent %q", pctRaw)
			}
			pct = parsed
		}
		seeds = append(seeds, CenterSeed{Name: name, CommissionPercent: pct})
	}
	return seeds, nil
}

func firstNonEmpty(candidates ...string) string {
	for _, candidate := range candidates {
		if value := strings.TrimSpace(candidate); value != "" {
			return value
		}
	}
	return ""
}
