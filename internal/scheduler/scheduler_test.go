package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestAfterRunsOnce(t *testing.T) {
	s := New()
	defer s.Stop()

	var runs atomic.Int32
	_, err := s.After(20*time.Millisecond, "once", func() { runs.Inc() })
	require.NoError(t, err)

	require.Eventually(t, func() bool { return runs.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, runs.Load())
}

func TestEveryRepeatsUntilCancelled(t *testing.T) {
	s := New()
	defer s.Stop()

	var runs atomic.Int32
	cancel, err := s.Every(20*time.Millisecond, "tick", func() { runs.Inc() })
	require.NoError(t, err)

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	time.Sleep(50 * time.Millisecond)
	after := runs.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func TestRejectsNonPositiveDurations(t *testing.T) {
	s := New()
	defer s.Stop()

	_, err := s.Every(0, "bad", func() {})
	assert.Error(t, err)
	_, err = s.After(-time.Second, "bad", func() {})
	assert.Error(t, err)
}
