package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"INVOICE_PREFIX", "DEFAULT_DUE_DAYS", "REPORT_CACHE_TTL_SECONDS", "DB_BREAKER_FAILURES", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "INV", cfg.InvoicePrefix)
	assert.Equal(t, 7, cfg.DefaultDueDays)
	assert.Equal(t, 60*time.Second, cfg.ReportCacheTTL)
	assert.Equal(t, uint32(5), cfg.DBBreakerFailures)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadRejectsInvalidNumbers(t *testing.T) {
	t.Setenv("DEFAULT_DUE_DAYS", "-3")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "abc")
	t.Setenv("INVOICE_PREFIX", " bill ")

	cfg := Load()
	require.Equal(t, 7, cfg.DefaultDueDays)
	require.Equal(t, 480, cfg.AccessTokenTTLMinutes)
	require.Equal(t, "BILL", cfg.InvoicePrefix)
	require.Equal(t, ":8080", Config{Port: "8080"}.Address())
}
