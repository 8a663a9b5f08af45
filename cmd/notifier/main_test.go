// cmd/notifier/main_test.go
package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"rating-notifier/internal/common/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRetryWithBackoff_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	}, 5, time.Millisecond, zap.NewNop(), "test op")

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_GivesUp(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), func() error {
		calls++
		return errors.New("down")
	}, 3, time.Millisecond, zap.NewNop(), "test op")

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "test op failed after 3 attempts")
	assert.Contains(t, err.Error(), "down")
}

func TestRetryWithBackoff_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := retryWithBackoff(ctx, func() error {
		calls++
		return errors.New("down")
	}, 10, time.Hour, zap.NewNop(), "test op")

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPrintJobs(t *testing.T) {
	cfg := &config.Config{Jobs: map[string]config.JobConfig{
		config.JobPollRatings:        {Enabled: true, Interval: 60000, BatchSize: 50, LockTTL: 300000},
		config.JobReapInvalidHandles: {Enabled: false, Interval: 120000, BatchSize: 10, LockTTL: 600000},
	}}

	var buf bytes.Buffer
	require.NoError(t, printJobs(&buf, cfg))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1+len(config.JobNames))
	assert.Contains(t, lines[0], "JOB")

	out := buf.String()
	assert.Regexp(t, `poll-ratings\s+true\s+1m0s\s+50\s+5m0s`, out)
	assert.Regexp(t, `reap-invalid-handles\s+false\s+2m0s\s+10\s+10m0s`, out)
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCmd()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "run", "migrate", "jobs"} {
		assert.True(t, names[want], want)
	}

	root.SetArgs([]string{"run"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	assert.Error(t, root.Execute())
}
