package di

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/newsbell/internal/clock"
	"github.com/aristath/newsbell/internal/scheduler"
)

func jobsByName(jobs []scheduler.JobStatus) map[string]scheduler.JobStatus {
	out := make(map[string]scheduler.JobStatus, len(jobs))
	for _, j := range jobs {
		out[j.Name] = j
	}
	return out
}

func TestWire(t *testing.T) {
	cfg := testConfig(t)
	start := time.Date(2025, 10, 14, 8, 0, 0, 0, cfg.Location)

	container, err := WireWithClock(cfg, clock.NewFake(start), zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	assert.NotNil(t, container.EventBus)
	assert.NotNil(t, container.Notifier)
	assert.NotNil(t, container.Monitor)
	assert.Same(t, container.Monitor.Alerts(), container.Alerts)
	assert.NotNil(t, container.Maintenance)
	assert.Nil(t, container.Backup)
	assert.Equal(t, []string{"111"}, container.Notifier.Recipients())
	assert.Len(t, container.Sources, 1)

	jobs := jobsByName(container.Scheduler.Jobs())
	assert.Len(t, jobs, 5)

	assert.True(t, time.Date(2025, 10, 14, 9, 0, 0, 0, cfg.Location).Equal(jobs[JobDailySummary].NextRun), jobs[JobDailySummary].NextRun)
	assert.True(t, start.Add(20*time.Minute).Equal(jobs[JobRealtimeCheck].NextRun), jobs[JobRealtimeCheck].NextRun)
	assert.True(t, time.Date(2025, 10, 14, 9, 15, 0, 0, cfg.Location).Equal(jobs["quote_refresh_0915"].NextRun), jobs["quote_refresh_0915"].NextRun)
	assert.True(t, time.Date(2025, 10, 14, 14, 45, 0, 0, cfg.Location).Equal(jobs["quote_refresh_1445"].NextRun), jobs["quote_refresh_1445"].NextRun)
	assert.True(t, time.Date(2025, 10, 15, 4, 0, 0, 0, cfg.Location).Equal(jobs[JobMaintenance].NextRun), jobs[JobMaintenance].NextRun)
}

func TestWire_BackupJobWhenBucketConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backup.Bucket = "newsbell"
	cfg.Backup.Endpoint = "http://127.0.0.1:9000"
	cfg.Backup.AccessKey = "access"
	cfg.Backup.SecretKey = "secret"
	cfg.Backup.Region = "auto"
	cfg.Backup.At = "03:00"

	container, err := WireWithClock(cfg, clock.NewFake(time.Now()), zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	require.NotNil(t, container.Backup)
	assert.True(t, container.Scheduler.Has(JobLedgerBackup))
}

func TestWire_InvalidQuotePattern(t *testing.T) {
	cfg := testConfig(t)
	cfg.Quote.PatternURL = "https://example.com"
	cfg.Quote.PatternValue = "("

	_, err := WireWithClock(cfg, clock.NewFake(time.Now()), zerolog.Nop())
	assert.Error(t, err)
}

func TestRegisterJobs_MaintenanceRunsOnDemand(t *testing.T) {
	cfg := testConfig(t)

	container, err := WireWithClock(cfg, clock.NewFake(time.Now()), zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	require.NoError(t, container.Scheduler.RunNow(context.Background(), JobMaintenance))
	assert.Equal(t, 1, jobsByName(container.Scheduler.Jobs())[JobMaintenance].Runs)
}

func TestRegisterJobs_NilContainer(t *testing.T) {
	assert.Error(t, RegisterJobs(nil, testConfig(t), zerolog.Nop()))
}
