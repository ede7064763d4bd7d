package cron

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lazydrop/lazydrop-billing/pkg/logger"
	"github.com/lazydrop/lazydrop-billing/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type fakeLock struct {
	mu       sync.Mutex
	held     bool
	acquires int
	releases int
	err      error
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	f.acquires++
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.held = false
	f.releases++
	return nil
}

type testJob struct {
	name string
	err  error
	runs atomic.Int32
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs.Add(1)
	return t.err
}

func newTestService(t *testing.T, reg prometheus.Registerer, schedules ...Schedule) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: NewRegistry(schedules...),
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)
	return service
}

func TestRunOnceRunsAllSchedulesEvenOnFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	ok := &testJob{name: "success"}
	bad := &testJob{name: "fail", err: errors.New("boom")}
	service := newTestService(t, reg,
		Schedule{Job: ok, Interval: time.Minute},
		Schedule{Job: bad, Interval: time.Minute},
	)

	service.RunOnce(context.Background())

	require.EqualValues(t, 1, ok.runs.Load())
	require.EqualValues(t, 1, bad.runs.Load())

	mfs, err := reg.Gather()
	require.NoError(t, err)
	results := map[string]bool{}
	for _, mf := range mfs {
		if mf.GetName() != "lazydrop_cron_job_runs_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "result" {
					results[l.GetValue()] = true
				}
			}
		}
	}
	require.True(t, results["success"])
	require.True(t, results["failure"])
}

func TestRunOnceSkipsJobWhenLockHeld(t *testing.T) {
	lock := &fakeLock{held: true}
	job := &testJob{name: "locked"}
	service := newTestService(t, nil, Schedule{Job: job, Lock: lock})

	service.RunOnce(context.Background())

	require.EqualValues(t, 0, job.runs.Load())
	require.Equal(t, 1, lock.acquires)
	require.Equal(t, 0, lock.releases)
}

func TestRunOnceReleasesLockAfterRun(t *testing.T) {
	lock := &fakeLock{}
	job := &testJob{name: "locked", err: errors.New("boom")}
	service := newTestService(t, nil, Schedule{Job: job, Lock: lock})

	service.RunOnce(context.Background())

	require.EqualValues(t, 1, job.runs.Load())
	require.Equal(t, 1, lock.releases)
	require.False(t, lock.held)
}

func TestRunOnceCountsLockErrors(t *testing.T) {
	reg := prometheus.NewRegistry()
	lock := &fakeLock{err: errors.New("redis down")}
	job := &testJob{name: "locked"}
	service := newTestService(t, reg, Schedule{Job: job, Lock: lock})

	service.RunOnce(context.Background())

	require.EqualValues(t, 0, job.runs.Load())
	expected := `
# HELP lazydrop_cron_job_runs_total Scheduled job runs by result.
# TYPE lazydrop_cron_job_runs_total counter
lazydrop_cron_job_runs_total{job="locked",result="lock_error"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "lazydrop_cron_job_runs_total"))
}

func TestRunLoopsUntilCanceled(t *testing.T) {
	fast := &testJob{name: "fast"}
	slow := &testJob{name: "slow"}
	service := newTestService(t, nil,
		Schedule{Job: fast, Interval: 5 * time.Millisecond},
		Schedule{Job: slow, Interval: time.Hour},
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.Run(ctx) }()

	require.Eventually(t, func() bool { return fast.runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("service did not stop after cancel")
	}
	require.EqualValues(t, 1, slow.runs.Load())
}
