// Package config loads tinymem's configuration, layering .env values
// (via godotenv) under process environment variables and CLI flags.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is tinymem's fully resolved runtime configuration.
type Config struct {
	Redis      RedisConfig
	HTTP       HTTPConfig
	Stdio      StdioConfig
	Rendezvous RendezvousConfig
	Artifact   ArtifactConfig
	LogFile    string
	Env        string
}

type RedisConfig struct {
	URL string
}

type HTTPConfig struct {
	Port     int
	Token    string
	Headless bool
}

type StdioConfig struct {
	MCP     bool
	Host    string
	Session string
}

type RendezvousConfig struct {
	Deadline    time.Duration
	MappingTTL  time.Duration
	SweepPeriod time.Duration
}

type ArtifactConfig struct {
	MaxBytes int64
}

const (
	defaultAskDeadline   = 300 * time.Second
	defaultMappingTTL    = 24 * time.Hour
	defaultSweepPeriod   = 1 * time.Second
	defaultArtifactCapMB = 50
)

// Load builds a Config from (in increasing priority) an optional .env
// file, the process environment, and the already-parsed CLI flag values
// passed in via opts. Flags always win when explicitly set by the caller.
func Load(opts Overrides) *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("tinymem: no .env file found, using process environment")
	}

	cfg := &Config{
		Redis: RedisConfig{
			URL: firstNonEmpty(opts.RedisURL, getEnv("TINYMEM_REDIS_URL", "redis://127.0.0.1:6379")),
		},
		HTTP: HTTPConfig{
			Port:     firstPositive(opts.Port, getEnvAsInt("TINYMEM_PORT", 3000)),
			Token:    firstNonEmpty(opts.Token, getEnv("TINYMEM_TOKEN", "")),
			Headless: opts.Headless,
		},
		Stdio: StdioConfig{
			MCP:     opts.MCP,
			Host:    firstNonEmpty(opts.Host, getEnv("TINYMEM_HOST", "localhost")),
			Session: getEnv("TINYMEM_SESSION", ""),
		},
		Rendezvous: RendezvousConfig{
			Deadline:    defaultAskDeadline,
			MappingTTL:  defaultMappingTTL,
			SweepPeriod: defaultSweepPeriod,
		},
		Artifact: ArtifactConfig{
			MaxBytes: getEnvAsInt64("TINYMEM_ARTIFACT_MAX_MB", defaultArtifactCapMB) * 1024 * 1024,
		},
		LogFile: getEnv("TINYMEM_LOG_FILE", "tinymem.log"),
		Env:     getEnv("TINYMEM_ENV", "development"),
	}
	return cfg
}

// Overrides carries values already parsed from CLI flags, which take
// precedence over everything else when non-zero.
type Overrides struct {
	RedisURL string
	Port     int
	Token    string
	Host     string
	Headless bool
	MCP      bool
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
