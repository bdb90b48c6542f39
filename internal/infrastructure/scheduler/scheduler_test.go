package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name string
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "counts runs" }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

func TestScheduler_RegisterValidation(t *testing.T) {
	s := New(DefaultConfig(), nil)

	assert.ErrorIs(t, s.Register(nil, time.Minute), ErrNilJob)
	assert.ErrorIs(t, s.Register(&countingJob{name: "a"}, 0), ErrInvalidInterval)

	require.NoError(t, s.Register(&countingJob{name: "a"}, time.Minute))
	assert.ErrorIs(t, s.Register(&countingJob{name: "a"}, time.Minute), ErrJobAlreadyExists)

	require.NoError(t, s.Unregister("a"))
	assert.ErrorIs(t, s.Unregister("a"), ErrJobNotFound)
}

func TestScheduler_RunsOnStart(t *testing.T) {
	s := New(DefaultConfig(), nil)
	job := &countingJob{name: "tick"}
	require.NoError(t, s.Register(job, time.Hour))

	var completed atomic.Int32
	s.OnJobComplete(func(JobResult) { completed.Add(1) })

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)
	assert.True(t, s.IsRunning())

	require.Eventually(t, func() bool { return completed.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
	assert.False(t, s.IsRunning())
	assert.EqualValues(t, 1, job.runs.Load())

	info, err := s.GetJobInfo("tick")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, info.Interval)
	assert.EqualValues(t, 1, info.RunCount)
	require.NotNil(t, info.LastResult)
	assert.True(t, info.LastResult.Success)
}

func TestScheduler_RunNowRecordsFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RunOnStart = false
	cfg.MaxHistorySize = 2
	s := New(cfg, nil)

	boom := errors.New("remote down")
	job := &countingJob{name: "sync", err: boom}
	require.NoError(t, s.Register(job, time.Hour))

	for i := 0; i < 3; i++ {
		res, err := s.RunNow(context.Background(), "sync")
		assert.ErrorIs(t, err, boom)
		require.NotNil(t, res)
		assert.False(t, res.Success)
		assert.True(t, res.Manual)
	}

	info, err := s.GetJobInfo("sync")
	require.NoError(t, err)
	assert.EqualValues(t, 3, info.FailCount)
	assert.Len(t, s.GetHistory(0), 2)
	assert.Len(t, s.GetHistory(1), 1)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}
