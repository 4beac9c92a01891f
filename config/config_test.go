package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stay-engine/config"
	"github.com/warp/stay-engine/engine"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.Defaults(), cfg)
	assert.Equal(t, "uploads", cfg.Blob.Bucket())

	policy, err := cfg.EnginePolicy()
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultPolicy(), policy)
}

func TestLoad_FileThenEnvironment(t *testing.T) {
	// GIVEN: A YAML file setting port, store, audit interval and policy
	//        and environment variables overriding some of them
	// WHEN: Load is called
	// THEN: The environment wins over the file, the file over defaults

	path := writeFile(t, `
port: 9000
store: memory
audit:
  interval: 30s
cache:
  memcached_host: cache:11211
policy:
  commission_rate: 0.12
  cancellation_mode: refund
`)
	t.Setenv("PORT", "9100")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("CURRENCY", "usd")
	t.Setenv("BLOB_BUCKET_URL", "mem://")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, 30*time.Second, cfg.Audit.Interval)
	assert.Equal(t, "cache:11211", cfg.Cache.MemcachedHost)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.Origins)
	assert.Equal(t, "stay.db", cfg.DBPath, "untouched keys keep their default")
	assert.Equal(t, "mem://", cfg.Blob.Bucket(), "a bucket URL wins over the directory")

	policy, err := cfg.EnginePolicy()
	require.NoError(t, err)
	assert.Equal(t, "0.12", policy.CommissionRate.String())
	assert.Equal(t, engine.CurrencyUSD, policy.Currency)
	assert.Equal(t, engine.CancelRefund, policy.CancellationMode)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
	}{
		{name: "bad port env", env: map[string]string{"PORT": "eighty"}},
		{name: "port out of range", file: "port: 70000\n"},
		{name: "unknown store", file: "store: mongo\n"},
		{name: "unknown auth mode", env: map[string]string{"AUTH_MODE": "basic"}},
		{name: "jwt without secret", file: "auth:\n  mode: jwt\n  jwt_secret: \"\"\n"},
		{name: "bad policy", env: map[string]string{"CANCELLATION_MODE": "forfeit"}},
		{name: "bad duration", env: map[string]string{"AUDIT_INTERVAL": "soon"}},
		{name: "malformed yaml", file: "port: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeFile(t, tt.file)
			}
			_, err := config.Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
