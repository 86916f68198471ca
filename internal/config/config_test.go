package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load(Overrides{})
	assert.Equal(t, "redis://127.0.0.1:6379", cfg.Redis.URL)
	assert.Equal(t, 3000, cfg.HTTP.Port)
	assert.Equal(t, defaultAskDeadline, cfg.Rendezvous.Deadline)
	assert.Equal(t, int64(defaultArtifactCapMB*1024*1024), cfg.Artifact.MaxBytes)
}

func TestLoadOverridesWinOverDefaults(t *testing.T) {
	cfg := Load(Overrides{RedisURL: "redis://example:6380", Port: 9090, Headless: true, MCP: true})
	assert.Equal(t, "redis://example:6380", cfg.Redis.URL)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.True(t, cfg.HTTP.Headless)
	assert.True(t, cfg.Stdio.MCP)
}

func TestLoadEnvironmentOverridesDefaultButNotExplicitFlag(t *testing.T) {
	t.Setenv("TINYMEM_PORT", "4321")
	cfg := Load(Overrides{})
	assert.Equal(t, 4321, cfg.HTTP.Port)

	cfg = Load(Overrides{Port: 8080})
	assert.Equal(t, 8080, cfg.HTTP.Port)
}

func TestFirstNonEmptyAndFirstPositive(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "", "b"))
	assert.Equal(t, "", firstNonEmpty())
	assert.Equal(t, 5, firstPositive(0, -1, 5, 9))
}
