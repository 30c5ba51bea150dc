package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnv(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.env"), []byte(body), 0o600))
	return dir
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := writeEnv(t, `
STORAGE_BACKEND=memory
ACCESS_SECRET=file-secret
ALLOWED_ORIGINS=https://a.example, https://b.example
PROOF_RATE_WINDOW=30m
DAILY_RUN_AT=01:30
TIMEZONE=UTC
`)
	t.Setenv("ACCESS_SECRET", "env-secret")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.StorageBackend)
	assert.Equal(t, "env-secret", cfg.AccessSecret, "environment wins over the file")
	assert.Equal(t, ":8080", cfg.HTTPPort)
	assert.Equal(t, 3, cfg.MaxProofAttempts)
	assert.Equal(t, 30*time.Minute, cfg.ProofRateWindow)
	assert.Equal(t, 3*time.Second, cfg.DBLockTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Origins())

	off, err := cfg.DailyRunOffset()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, off)
}

func TestLoadConfigWithoutFile(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("ACCESS_SECRET", "s")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.ResetPenalty)
	assert.Equal(t, 0.8, cfg.ChallengePenalty)
	assert.True(t, cfg.SchedulerEnabled)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	dir := writeEnv(t, "STORAGE_BACKEND=postgres\nDAILY_RUN_AT=25:99\n")
	t.Setenv("ACCESS_SECRET", "")
	_, err := LoadConfig(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_HOST")
	assert.Contains(t, err.Error(), "ACCESS_SECRET")
	assert.Contains(t, err.Error(), "DAILY_RUN_AT")
}

func TestValidate(t *testing.T) {
	valid := Config{
		StorageBackend:   "memory",
		AccessSecret:     "s",
		MaxProofAttempts: 3,
		ResetPenalty:     0.5,
		ChallengePenalty: 0.8,
		DailyRunAt:       "00:05",
		Timezone:         "UTC",
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.StorageBackend = "sqlite" }},
		{"no attempts", func(c *Config) { c.MaxProofAttempts = 0 }},
		{"penalty above one", func(c *Config) { c.ResetPenalty = 1.5 }},
		{"zero penalty", func(c *Config) { c.ChallengePenalty = 0 }},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestDSN(t *testing.T) {
	c := Config{DBHost: "db", DBUser: "u", DBPassword: "p", DBName: "habits", DBPort: "5432"}
	assert.Equal(t, "host=db user=u password=p dbname=habits port=5432 sslmode=disable", c.DSN())
}
