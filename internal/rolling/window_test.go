package rolling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func TestWindowCountsOutcomes(t *testing.T) {
	clock := newClock()
	w := New(10*time.Second, 10, clock.now)

	w.Success()
	w.Success()
	w.Failure()
	w.Timeout()
	w.Reject()

	c := w.Counts()
	assert.Equal(t, int64(2), c.Successes)
	assert.Equal(t, int64(2), c.Failures)
	assert.Equal(t, int64(1), c.Timeouts)
	assert.Equal(t, int64(1), c.Rejects)
	assert.Equal(t, int64(4), c.Total())
	assert.InDelta(t, 50.0, c.ErrorPercentage(), 0.001)
}

func TestWindowExpiresOldBuckets(t *testing.T) {
	clock := newClock()
	w := New(10*time.Second, 10, clock.now)

	w.Failure()
	clock.advance(5 * time.Second)
	w.Success()

	c := w.Counts()
	require.Equal(t, int64(1), c.Failures)
	require.Equal(t, int64(1), c.Successes)

	clock.advance(6 * time.Second)
	c = w.Counts()
	assert.Equal(t, int64(0), c.Failures, "first bucket should have rolled out")
	assert.Equal(t, int64(1), c.Successes)

	clock.advance(10 * time.Second)
	assert.Equal(t, Counts{}, w.Counts())
}

func TestWindowReusesSlotAfterFullRotation(t *testing.T) {
	clock := newClock()
	w := New(time.Second, 4, clock.now)

	w.Failure()
	clock.advance(time.Second)
	w.Success()

	c := w.Counts()
	assert.Equal(t, int64(0), c.Failures)
	assert.Equal(t, int64(1), c.Successes)
}

func TestWindowReset(t *testing.T) {
	clock := newClock()
	w := New(time.Second, 2, clock.now)
	w.Failure()
	w.Reject()

	w.Reset()

	assert.Equal(t, Counts{}, w.Counts())
}

func TestWindowDefaults(t *testing.T) {
	w := New(0, 0, nil)
	assert.Equal(t, 10*time.Second, w.Duration())
	assert.Equal(t, 10, w.BucketCount())
}

func TestErrorPercentageEmpty(t *testing.T) {
	assert.Zero(t, Counts{Rejects: 3}.ErrorPercentage())
}
