package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate запускает Load в пустой временной директории с APP_ENV=production (без .env).
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("APP_ENV", "production")
	for _, k := range []string{
		"CONFIG_PATH", "DATABASE_CONFIG_PATH", "SERVER_ADDR", "SESSION_BACKEND", "SESSION_IDLE_TIMEOUT",
		"SESSION_SWEEP_INTERVAL", "SESSION_TIMEZONE", "SESSION_COOKIE", "DATABASE_URL", "REDIS_URL",
		"LOGIN_RATE_PER_SECOND", "LOGIN_RATE_BURST", "CORS_ALLOWED_ORIGINS", "LOG_FILE",
	} {
		t.Setenv(k, "")
	}
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	cfg := Load()

	assert.Equal(t, ":3500", cfg.ServerAddr)
	assert.Equal(t, BackendMemory, cfg.Session.Backend)
	assert.Equal(t, 2*time.Minute, cfg.Session.IdleTimeout)
	assert.Equal(t, time.Minute, cfg.Session.SweepInterval)
	assert.Equal(t, "America/Mexico_City", cfg.Session.TimeZone)
	assert.Equal(t, 5.0, cfg.RateLimit.PerSecond)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.Equal(t, 10, cfg.Database.MaxConnections)
	assert.Equal(t, "redis://localhost:6379", cfg.Redis.URL)
	require.NoError(t, cfg.Validate())
}

func TestLoad_YAMLThenEnvOverride(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "sessiond.yaml"), []byte(`
server_addr: ":9000"
session_backend: redis
session_idle_timeout: 300
session_sweep_interval: 30
session_cookie: true
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "database.yaml"), []byte(`
database_url: postgres://u:p@db:5432/s
db_max_connections: 3
`), 0o644))
	t.Setenv("SESSION_IDLE_TIMEOUT", "600")

	cfg := Load()

	assert.Equal(t, ":9000", cfg.ServerAddr)
	assert.Equal(t, BackendRedis, cfg.Session.Backend)
	assert.Equal(t, 10*time.Minute, cfg.Session.IdleTimeout)
	assert.Equal(t, 30*time.Second, cfg.Session.SweepInterval)
	assert.True(t, cfg.Session.Cookie)
	assert.Equal(t, "postgres://u:p@db:5432/s", cfg.Database.URL)
	assert.Equal(t, 3, cfg.Database.MaxConnections)
}

func TestLoad_NonPositiveLoginRateFallsBack(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "sessiond.yaml"), []byte(`
login_rate_per_second: 0
login_rate_burst: -1
`), 0o644))

	cfg := Load()

	assert.Equal(t, 5.0, cfg.RateLimit.PerSecond)
	assert.Equal(t, 10, cfg.RateLimit.Burst)

	t.Setenv("LOGIN_RATE_BURST", "0")
	assert.Equal(t, 10, Load().RateLimit.Burst)
}

func TestLoad_SweepIntervalClampedToIdleTimeout(t *testing.T) {
	isolate(t)
	t.Setenv("SESSION_IDLE_TIMEOUT", "30")
	t.Setenv("SESSION_SWEEP_INTERVAL", "90")

	cfg := Load()
	assert.Equal(t, 30*time.Second, cfg.Session.SweepInterval)
}

func TestLoad_InvalidEnvFallsBack(t *testing.T) {
	isolate(t)
	t.Setenv("SESSION_IDLE_TIMEOUT", "abc")
	t.Setenv("LOGIN_RATE_PER_SECOND", "-1")
	t.Setenv("SESSION_COOKIE", "maybe")

	cfg := Load()
	assert.Equal(t, 2*time.Minute, cfg.Session.IdleTimeout)
	assert.Equal(t, 5.0, cfg.RateLimit.PerSecond)
	assert.False(t, cfg.Session.Cookie)
}

func TestValidate(t *testing.T) {
	isolate(t)
	cfg := Load()
	cfg.Session.Backend = "mongo"
	require.Error(t, cfg.Validate())

	cfg.Session.Backend = BackendPostgres
	cfg.Session.TimeZone = "Nowhere/Nothing"
	require.Error(t, cfg.Validate())
}

func TestAllowedOrigins(t *testing.T) {
	c := &Config{CORSAllowedOrigins: " https://a.example , https://b.example,"}
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.AllowedOrigins())
	assert.Equal(t, []string{"*"}, (&Config{}).AllowedOrigins())
}

func TestLoadEnvFrom(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nSESSIOND_TEST_A=\"quoted\"\nSESSIOND_TEST_B='single'\nbroken\n"), 0o644))
	t.Setenv("SESSIOND_TEST_A", "")
	t.Setenv("SESSIOND_TEST_B", "preset")
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	loadEnvFrom(f)

	assert.Equal(t, "quoted", os.Getenv("SESSIOND_TEST_A"))
	assert.Equal(t, "preset", os.Getenv("SESSIOND_TEST_B"))
}
