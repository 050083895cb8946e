package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3001", cfg.App.Port)
	assert.Equal(t, 3, cfg.Loans.RetryAttempts)
	assert.Equal(t, 30*24*time.Hour, cfg.Overdue.BlockFor)
	assert.Equal(t, 15*time.Minute, cfg.Overdue.SweepInterval)
	assert.True(t, cfg.Overdue.InProcess)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RP_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("OVERDUE_BLOCK_FOR", "48h")
	t.Setenv("LOAN_RETRY_ATTEMPTS", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Web.RPOrigins)
	assert.Equal(t, 48*time.Hour, cfg.Overdue.BlockFor)
	assert.Equal(t, 5, cfg.Loans.RetryAttempts)
}

func TestLoadRejectsNonPositiveRetryAttempts(t *testing.T) {
	t.Setenv("LOAN_RETRY_ATTEMPTS", "0")
	_, err := Load()
	require.Error(t, err)
}

func TestDSN(t *testing.T) {
	c := DBConfig{Host: "db", Port: "5433", User: "u", Password: "p", Name: "lending", SSLMode: "disable"}
	assert.Equal(t, "host=db user=u password=p dbname=lending port=5433 sslmode=disable", c.DSN())

	c.URL = "postgres://u:p@db:5433/lending"
	assert.Equal(t, "postgres://u:p@db:5433/lending", c.DSN())
}
