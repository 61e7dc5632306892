package clickhouse

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "localhost:9000", cfg.Addr())
	assert.Equal(t, "template_rules", cfg.Database)
}

func TestRetentionCutoff(t *testing.T) {
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	cutoff, err := RetentionCutoff(now, 30)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 4, 12, 0, 0, 0, time.UTC), cutoff)

	_, err = RetentionCutoff(now, 0)
	assert.Error(t, err)
}

func TestPrepareRecord(t *testing.T) {
	now := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	rec := &EvaluationRecord{Kind: KindQuote, Total: decimal.RequireFromString("12.345678")}
	prepareRecord(rec, now)

	assert.NotEqual(t, uuid.Nil, rec.ID)
	assert.Equal(t, now, rec.EvaluatedAt)
	assert.Equal(t, "12.3457", rec.Total.String())

	id := rec.ID
	earlier := now.Add(-time.Hour)
	rec.EvaluatedAt = earlier
	prepareRecord(rec, now)
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, earlier, rec.EvaluatedAt)
}

func TestBoolToUInt8(t *testing.T) {
	assert.Equal(t, uint8(1), boolToUInt8(true))
	assert.Equal(t, uint8(0), boolToUInt8(false))
}
