package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mindtrap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	t.Setenv("ADMIN_PASSWORD", "")
	path := writeFile(t, `
server:
  addr: ":8080"
  allowed_origins: ["https://maze.example"]
database:
  path: /var/lib/mindtrap/maze.db
game:
  question_count: 12
scoring:
  formula: "depth * 100"
admin:
  password: hunter2
  token_ttl: 2h
limits:
  answer:
    requests: 3
    window: 5s
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"https://maze.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "/var/lib/mindtrap/maze.db", cfg.Database.Path)
	assert.Equal(t, 12, cfg.Game.QuestionCount)
	assert.Equal(t, "depth * 100", cfg.Scoring.Formula)
	assert.Equal(t, 2*time.Hour, cfg.Admin.TokenTTL)
	assert.Equal(t, Limit{Requests: 3, Window: 5 * time.Second}, cfg.Limits.Answer)

	// Untouched keys keep their defaults.
	assert.Equal(t, 1500, cfg.Game.SuspiciousAnswerMs)
	assert.Equal(t, "admin", cfg.Admin.Username)
	assert.Equal(t, Default().Limits.General, cfg.Limits.General)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeFile(t, "admin:\n  password: from-file\n")
	t.Setenv("PORT", "4000")
	t.Setenv("MINDTRAP_DB", ":memory:")
	t.Setenv("ADMIN_USERNAME", "root")
	t.Setenv("ADMIN_PASSWORD", "from-env")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("MINDTRAP_QUESTION_COUNT", "7")
	t.Setenv("MINDTRAP_SCORE_FORMULA", "depth")
	t.Setenv("MINDTRAP_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("MINDTRAP_TRUSTED_PROXIES", "10.0.0.0/8, 127.0.0.1")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":4000", cfg.Server.Addr)
	assert.Equal(t, ":memory:", cfg.Database.Path)
	assert.Equal(t, "root", cfg.Admin.Username)
	assert.Equal(t, "from-env", cfg.Admin.Password)
	assert.Equal(t, "s3cret", cfg.Admin.JWTSecret)
	assert.Equal(t, 7, cfg.Game.QuestionCount)
	assert.Equal(t, "depth", cfg.Scoring.Formula)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.Server.TrustedProxies)
}

func TestLoadErrors(t *testing.T) {
	t.Setenv("ADMIN_PASSWORD", "x")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "server:\n  adress: typo\n"))
	assert.Error(t, err, "unknown keys are rejected")

	t.Setenv("MINDTRAP_QUESTION_COUNT", "many")
	_, err = Load("")
	assert.Error(t, err)
}

func TestLoadEmptyFile(t *testing.T) {
	t.Setenv("ADMIN_PASSWORD", "x")
	cfg, err := Load(writeFile(t, ""))
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Game.QuestionCount)
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.Admin.Password = "pw"
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no password", func(c *Config) { c.Admin.Password = "" }},
		{"no addr", func(c *Config) { c.Server.Addr = "" }},
		{"no db", func(c *Config) { c.Database.Path = "" }},
		{"zero questions", func(c *Config) { c.Game.QuestionCount = 0 }},
		{"too many questions", func(c *Config) { c.Game.QuestionCount = 201 }},
		{"negative cache", func(c *Config) { c.Game.MazeCacheSize = -1 }},
		{"negative threshold", func(c *Config) { c.Game.MaxTabSwitches = -1 }},
		{"zero ttl", func(c *Config) { c.Admin.TokenTTL = 0 }},
		{"bad limit", func(c *Config) { c.Limits.Auth.Window = 0 }},
		{"bad proxy", func(c *Config) { c.Server.TrustedProxies = []string{"10.0.0.0/33"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParsePrefixes(t *testing.T) {
	got, err := ParsePrefixes([]string{"10.1.2.3/8", "127.0.0.1", "::1"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "10.0.0.0/8", got[0].String())
	assert.Equal(t, "127.0.0.1/32", got[1].String())
	assert.Equal(t, "::1/128", got[2].String())

	_, err = ParsePrefixes([]string{"proxy.internal"})
	assert.Error(t, err)
}
