package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPruner struct {
	calls int
	days  int
	now   time.Time
	err   error
}

func (p *countingPruner) Prune(_ context.Context, retentionDays int, now time.Time) error {
	p.calls++
	p.days = retentionDays
	p.now = now
	return p.err
}

func TestRunOncePassesRetention(t *testing.T) {
	pruner := &countingPruner{}
	job := NewRetention(pruner, 30, nil)
	fixed := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	job.now = func() time.Time { return fixed }

	require.NoError(t, job.RunOnce(context.Background()))
	assert.Equal(t, 1, pruner.calls)
	assert.Equal(t, 30, pruner.days)
	assert.Equal(t, fixed, pruner.now)
}

func TestRunLogsFailures(t *testing.T) {
	pruner := &countingPruner{err: errors.New("clickhouse down")}
	job := NewRetention(pruner, 30, nil)

	job.run()
	assert.Equal(t, 1, pruner.calls)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	job := NewRetention(&countingPruner{}, 30, nil)
	assert.Error(t, job.Start("every tuesday-ish"))

	require.NoError(t, job.Start("@daily"))
	job.Stop()
}
