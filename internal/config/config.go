package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-yaml/yaml"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr   string `yaml:"addr"`
	DBPath string `yaml:"db"`

	TokenTTL         time.Duration `yaml:"tokenTTL"`
	IdentityCacheTTL time.Duration `yaml:"identityCacheTTL"`
	BcryptCost       int           `yaml:"bcryptCost"`

	FlagThreshold      float64 `yaml:"flagThreshold"`
	MaxConflictRetries int     `yaml:"maxConflictRetries"`

	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`

	RateLimits RateLimits `yaml:"rateLimits"`
}

type RateLimits struct {
	WritePerMinute int `yaml:"writePerMinute"`
	VotePerMinute  int `yaml:"votePerMinute"`
	AuthPerMinute  int `yaml:"authPerMinute"`
}

func Default() Config {
	return Config{
		Addr:               ":8080",
		DBPath:             "truthtally.db",
		TokenTTL:           24 * time.Hour,
		IdentityCacheTTL:   30 * time.Second,
		BcryptCost:         10,
		FlagThreshold:      0.30,
		MaxConflictRetries: 3,
		LogLevel:           "info",
		LogFormat:          "text",
		RateLimits: RateLimits{
			WritePerMinute: 30,
			VotePerMinute:  120,
			AuthPerMinute:  20,
		},
	}
}

// Load layers configuration: defaults, then the YAML file at path (optional),
// then environment variables. A .env file in the working directory is read
// into the environment first; variables already set win.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("read .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, err
		}
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	addr := envString("TRUTHTALLY_ADDR", "")
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		}
	}
	if addr != "" {
		cfg.Addr = addr
	}
	cfg.DBPath = envString("TRUTHTALLY_DB", cfg.DBPath)
	cfg.TokenTTL = envDuration("TRUTHTALLY_TOKEN_TTL", cfg.TokenTTL)
	cfg.IdentityCacheTTL = envDuration("TRUTHTALLY_IDENTITY_CACHE_TTL", cfg.IdentityCacheTTL)
	cfg.BcryptCost = envInt("TRUTHTALLY_BCRYPT_COST", cfg.BcryptCost)
	cfg.FlagThreshold = envFloat("TRUTHTALLY_FLAG_THRESHOLD", cfg.FlagThreshold)
	cfg.MaxConflictRetries = envInt("TRUTHTALLY_MAX_CONFLICT_RETRIES", cfg.MaxConflictRetries)
	cfg.LogLevel = envString("TRUTHTALLY_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envString("TRUTHTALLY_LOG_FORMAT", cfg.LogFormat)
	cfg.RateLimits.WritePerMinute = envInt("TRUTHTALLY_RL_WRITE_PER_MIN", cfg.RateLimits.WritePerMinute)
	cfg.RateLimits.VotePerMinute = envInt("TRUTHTALLY_RL_VOTE_PER_MIN", cfg.RateLimits.VotePerMinute)
	cfg.RateLimits.AuthPerMinute = envInt("TRUTHTALLY_RL_AUTH_PER_MIN", cfg.RateLimits.AuthPerMinute)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.FlagThreshold <= 0 || c.FlagThreshold > 1 {
		return fmt.Errorf("flag threshold %v must be in (0, 1]", c.FlagThreshold)
	}
	if c.MaxConflictRetries < 0 {
		return fmt.Errorf("max conflict retries %d must not be negative", c.MaxConflictRetries)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token ttl %s must be positive", c.TokenTTL)
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
