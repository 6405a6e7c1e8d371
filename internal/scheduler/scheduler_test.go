package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name  string
	err   error
	calls atomic.Int32
}

func (j *countingJob) Run() error {
	j.calls.Add(1)
	return j.err
}

func (j *countingJob) Name() string {
	return j.name
}

func TestScheduler_AddJobInvalidSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	err := s.AddJob("every monday", &countingJob{name: "bad"})
	assert.Error(t, err)

	_, ok := s.Next("bad", time.Now())
	assert.False(t, ok)
}

func TestScheduler_Next(t *testing.T) {
	s := New(zerolog.Nop())
	require.NoError(t, s.AddJob("0 0 1 * * MON", &countingJob{name: "weekly"}))

	tests := []struct {
		name     string
		from     time.Time
		expected time.Time
	}{
		{
			name:     "midweek",
			from:     time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC),
			expected: time.Date(2024, 1, 15, 1, 0, 0, 0, time.UTC),
		},
		{
			name:     "monday before the tick",
			from:     time.Date(2024, 1, 15, 0, 30, 0, 0, time.UTC),
			expected: time.Date(2024, 1, 15, 1, 0, 0, 0, time.UTC),
		},
		{
			name:     "monday after the tick",
			from:     time.Date(2024, 1, 15, 1, 0, 0, 0, time.UTC),
			expected: time.Date(2024, 1, 22, 1, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, ok := s.Next("weekly", tt.from)
			require.True(t, ok)
			assert.True(t, tt.expected.Equal(next), "got %s", next)
		})
	}
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "now", err: errors.New("boom")}

	err := s.RunNow(job)
	assert.EqualError(t, err, "boom")
	assert.Equal(t, int32(1), job.calls.Load())
}

func TestScheduler_FiresJobs(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "tick"}
	require.NoError(t, s.AddJob("* * * * * *", job))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return job.calls.Load() > 0
	}, 3*time.Second, 50*time.Millisecond)
}
