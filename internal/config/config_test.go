package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := FromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.AppPort)
	assert.Equal(t, 90, cfg.SearchHorizonDays)
	assert.Equal(t, int32(2), cfg.CurrencyMinorUnits)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.False(t, cfg.IsProduction())
	assert.False(t, cfg.AuditEnabled())
	assert.False(t, cfg.CacheEnabled())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("CACHE_TTL", "30s")
	t.Setenv("CURRENCY_MINOR_UNITS", "0")

	cfg, err := FromViper(viper.New())
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 9090, cfg.AppPort)
	assert.True(t, cfg.CacheEnabled())
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, int32(0), cfg.CurrencyMinorUnits)
}

func TestInvalidValuesAreRejected(t *testing.T) {
	v := viper.New()
	v.Set("APP_PORT", 70000)
	v.Set("TIMEZONE", "Mars/Olympus_Mons")
	v.Set("RATE_LIMIT_PER_MIN", 0)

	_, err := FromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APP_PORT 70000 out of range")
	assert.Contains(t, err.Error(), "TIMEZONE")
	assert.Contains(t, err.Error(), "RATE_LIMIT_PER_MIN")
}
