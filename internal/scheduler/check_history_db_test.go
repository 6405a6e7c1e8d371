package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testingpkg "github.com/aristath/rebalancer/internal/testing"
)

func TestCheckHistoryDBJob_Name(t *testing.T) {
	job := NewCheckHistoryDBJob(nil, 0, zerolog.Nop())
	assert.Equal(t, "check_history_db", job.Name())
}

func TestCheckHistoryDBJob_NoDatabase(t *testing.T) {
	job := NewCheckHistoryDBJob(nil, 0, zerolog.Nop())
	assert.NoError(t, job.Run())
}

func TestCheckHistoryDBJob_Run(t *testing.T) {
	db, _, cleanup := testingpkg.NewHistoryDB(t)
	defer cleanup()

	job := NewCheckHistoryDBJob(db, 72*time.Hour, zerolog.Nop())

	// Empty history is not an error
	require.NoError(t, job.Run())

	testingpkg.InsertSeries(t, db, testingpkg.LinearSeries("BTC", monday.AddDate(0, 0, -9), 10, 100, 1))

	tests := []struct {
		name  string
		now   time.Time
		stale bool
	}{
		{name: "fresh", now: monday.Add(12 * time.Hour)},
		{name: "stale", now: monday.AddDate(0, 0, 7), stale: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job.now = func() time.Time { return tt.now }
			err := job.Run()
			if tt.stale {
				assert.True(t, errors.Is(err, ErrStaleHistory))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
