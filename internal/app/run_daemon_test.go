package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dev-tams/deployprune/internal/config"
)

// every fires at a fixed interval; cron's own schedules cannot go below one second.
type every time.Duration

func (d every) Next(t time.Time) time.Time { return t.Add(time.Duration(d)) }

func TestRunScheduleRunsUntilCanceled(t *testing.T) {
	st := scenarioStore()
	logger, logs := observedLogger()
	r := &Runner{Store: st, Policy: RetentionPolicy{RetainCount: 1}, Bucket: "deployments", Logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	require.NoError(t, runSchedule(ctx, r, every(10*time.Millisecond), time.Second))

	assert.GreaterOrEqual(t, logs.FilterMessage("scheduled cleanup finished").Len(), 2)
	assert.Equal(t, []string{"B/index.html"}, st.Keys())
	// later passes found nothing left to delete
	assert.Equal(t, []string{"C/", "A/"}, st.DeleteCalls)
}

func TestRunScheduleSurvivesFailedRuns(t *testing.T) {
	st := scenarioStore()
	st.ListPrefixesErr = errors.New("throttled")
	logger, logs := observedLogger()
	r := &Runner{Store: st, Policy: RetentionPolicy{RetainCount: 1}, Bucket: "deployments", Logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	require.NoError(t, runSchedule(ctx, r, every(10*time.Millisecond), 0))
	assert.GreaterOrEqual(t, logs.FilterMessage("scheduled cleanup failed").Len(), 2)
	assert.Empty(t, st.DeleteCalls)
}

func TestRunDaemonRejectsBadSchedule(t *testing.T) {
	r := &Runner{Store: scenarioStore()}

	for _, spec := range []string{"", "61 * * * *", "every day"} {
		err := RunDaemon(context.Background(), r, spec, 0)
		assert.True(t, errors.Is(err, config.ErrConfiguration), "spec %q: %v", spec, err)
	}
}

func TestSleepUntil(t *testing.T) {
	assert.True(t, sleepUntil(context.Background(), time.Now().Add(5*time.Millisecond)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleepUntil(ctx, time.Now().Add(time.Hour)))
}
