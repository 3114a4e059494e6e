package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "critique-backend", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "0.0.0.0:8000", cfg.App.Addr())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, int64(50<<20), cfg.HTTP.MaxBodySize)
	assert.Equal(t, 180*time.Second, cfg.HTTP.WriteTimeout)
	assert.Equal(t, []string{"*"}, cfg.HTTP.CORSAllowOrigins)
	assert.Equal(t, "memory", cfg.HTTP.RateLimitBackend)
	assert.False(t, cfg.Auth.Enabled())
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 1500, cfg.LLM.MaxImageDimension)
	assert.Equal(t, 85, cfg.LLM.JPEGQuality)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, "critique-backend", cfg.Telemetry.ServiceName)
	assert.Equal(t, 1.0, cfg.Telemetry.SamplingRatio)
	assert.False(t, cfg.Profiling.Enabled)
	assert.Equal(t, "http://localhost:4040", cfg.Profiling.ServerAddress)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	toml := `
[app]
port = "9000"

[llm]
provider = "stub"
model = "gpt-4o-mini"
timeout = "45s"

[personas]
file = "/etc/critique/personas.yaml"

[http]
cors_allow_origins = ["https://www.figma.com"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(toml), 0o600))

	t.Setenv("CRITIQUE_APP_PORT", "9100")
	t.Setenv("CRITIQUE_AUTH_API_KEY", "secret-key")
	t.Setenv("CRITIQUE_LOG_LEVEL", "warn")
	t.Setenv("CRITIQUE_PROFILING_ENABLED", "true")

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.App.Port, "env overrides file")
	assert.Equal(t, "stub", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "/etc/critique/personas.yaml", cfg.Personas.File)
	assert.Equal(t, []string{"https://www.figma.com"}, cfg.HTTP.CORSAllowOrigins)
	assert.True(t, cfg.Auth.Enabled())
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.True(t, cfg.Profiling.Enabled)
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[app\nname="), 0o600))

	_, err := LoadFrom(dir)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults valid", func(*Config) {}, ""},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "bard" }, "llm.provider"},
		{"jpeg quality", func(c *Config) { c.LLM.JPEGQuality = 101 }, "llm.jpeg_quality"},
		{"tiny image dimension", func(c *Config) { c.LLM.MaxImageDimension = 10 }, "llm.max_image_dimension"},
		{"rate limit backend", func(c *Config) { c.HTTP.RateLimitBackend = "memcached" }, "rate_limit_backend"},
		{"short jwt secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "auth.jwt_secret"},
		{"sampling ratio", func(c *Config) { c.Telemetry.SamplingRatio = 1.5 }, "sampling_ratio"},
		{"production needs api key", func(c *Config) {
			c.App.Env = "production"
			c.HTTP.CORSAllowOrigins = []string{"https://www.figma.com"}
			c.LLM.APIKey = "sk-test"
		}, "auth.api_key"},
		{"production needs llm key", func(c *Config) {
			c.App.Env = "production"
			c.Auth.APIKey = "k"
			c.HTTP.CORSAllowOrigins = []string{"https://www.figma.com"}
		}, "llm.api_key"},
		{"production rejects wildcard cors", func(c *Config) {
			c.App.Env = "production"
			c.Auth.APIKey = "k"
			c.LLM.Provider = "stub"
		}, "cors_allow_origins"},
		{"production stub ok", func(c *Config) {
			c.App.Env = "production"
			c.Auth.APIKey = "k"
			c.LLM.Provider = "stub"
			c.HTTP.CORSAllowOrigins = []string{"https://www.figma.com"}
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
