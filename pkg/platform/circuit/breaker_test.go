package circuit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// outcome is one recorded delivery result: true for a 2xx.
type outcome bool

const (
	ok   outcome = true
	fail outcome = false
)

func record(b *Breaker, results ...outcome) Change {
	var last Change
	for _, r := range results {
		if r {
			_, last = b.RecordSuccess()
		} else {
			_, last = b.RecordFailure()
		}
	}
	return last
}

func TestNewBreakerIsClosed(t *testing.T) {
	b := New("https://hooks.studio.example.com")

	assert.Equal(t, "https://hooks.studio.example.com", b.Name())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "closed", b.State().String())
	assert.True(t, b.Allow())
}

func TestBreakerTransitions(t *testing.T) {
	tests := []struct {
		name     string
		opts     []Option
		results  []outcome
		wantOpen bool
		want     Change
	}{
		{
			name:    "stays closed below the failure threshold",
			opts:    []Option{WithFailureThreshold(3)},
			results: []outcome{fail, fail},
		},
		{
			name:     "opens on the threshold failure",
			opts:     []Option{WithFailureThreshold(3)},
			results:  []outcome{fail, fail, fail},
			wantOpen: true,
			want:     Change{Opened: true},
		},
		{
			name:    "a success in between restarts the failure run",
			opts:    []Option{WithFailureThreshold(3)},
			results: []outcome{fail, fail, ok, fail, fail},
		},
		{
			name:     "further failures while open report no transition",
			opts:     []Option{WithFailureThreshold(1)},
			results:  []outcome{fail, fail, fail},
			wantOpen: true,
		},
		{
			name:     "one success is not enough to close with a higher threshold",
			opts:     []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			results:  []outcome{fail, ok},
			wantOpen: true,
		},
		{
			name:    "closes after consecutive successes",
			opts:    []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			results: []outcome{fail, ok, ok},
			want:    Change{Closed: true},
		},
		{
			name:     "a failure while recovering restarts the success run",
			opts:     []Option{WithFailureThreshold(1), WithSuccessThreshold(3)},
			results:  []outcome{fail, ok, ok, fail, ok, ok},
			wantOpen: true,
		},
		{
			name:     "non-positive thresholds fall back to defaults",
			opts:     []Option{WithFailureThreshold(0), WithSuccessThreshold(-1)},
			results:  []outcome{fail, fail, fail, fail, fail},
			wantOpen: true,
			want:     Change{Opened: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("subscriber", tt.opts...)
			got := record(b, tt.results...)

			assert.Equal(t, tt.wantOpen, b.IsOpen())
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecordReportsWhichPathToUse(t *testing.T) {
	b := New("subscriber", WithFailureThreshold(2))

	fallback, _ := b.RecordFailure()
	assert.False(t, fallback, "still closed after the first failure")

	fallback, _ = b.RecordFailure()
	assert.True(t, fallback)

	primary, _ := b.RecordSuccess()
	assert.True(t, primary, "single success closes with the default threshold")
}

func TestAllowWaitsForCooldown(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	b := New("subscriber", WithFailureThreshold(1), WithCooldown(time.Minute), WithClock(clock))

	record(b, fail)
	require.True(t, b.IsOpen())
	assert.False(t, b.Allow())

	now = now.Add(59 * time.Second)
	assert.False(t, b.Allow())

	now = now.Add(time.Second)
	assert.True(t, b.Allow(), "a trial delivery is admitted once the cooldown elapses")

	// a failed trial pushes the next one out by another cooldown
	record(b, fail)
	assert.False(t, b.Allow())

	now = now.Add(time.Minute)
	change := record(b, ok)
	assert.True(t, change.Closed)
	assert.True(t, b.Allow())
}

func TestResetClosesAndClearsCounters(t *testing.T) {
	b := New("subscriber", WithFailureThreshold(2))
	record(b, fail, fail)
	require.True(t, b.IsOpen())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())

	// the failure run starts over
	record(b, fail)
	assert.False(t, b.IsOpen())
}

func TestBreakerConcurrentUse(t *testing.T) {
	b := New("subscriber", WithFailureThreshold(1000))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				b.Allow()
				b.RecordFailure()
			}
		}()
	}
	wg.Wait()

	assert.False(t, b.IsOpen(), "500 failures stay under a threshold of 1000")
	record(b, make([]outcome, 500)...)
	assert.True(t, b.IsOpen())
}
