// Package rolling implements a bucketed sliding window of call outcome
// counters. A Window is not safe for concurrent use; callers serialize access.
package rolling

import "time"

// Counts is an aggregate of outcomes observed in a window.
type Counts struct {
	Successes int64
	Failures  int64
	Timeouts  int64
	Rejects   int64
}

// Total returns the number of completed calls (successes + failures).
// Timeouts are a subset of failures and rejects never ran.
func (c Counts) Total() int64 {
	return c.Successes + c.Failures
}

// ErrorPercentage returns failures as a percentage of completed calls.
func (c Counts) ErrorPercentage() float64 {
	total := c.Total()
	if total == 0 {
		return 0
	}
	return float64(c.Failures) * 100 / float64(total)
}

type bucket struct {
	start time.Time
	Counts
}

// Window keeps Counts over a fixed duration split into equal buckets.
type Window struct {
	buckets  []bucket
	width    time.Duration
	duration time.Duration
	now      func() time.Time
}

// New creates a window covering duration with bucketCount buckets.
// Non-positive arguments fall back to 10s and 10 buckets.
func New(duration time.Duration, bucketCount int, now func() time.Time) *Window {
	if duration <= 0 {
		duration = 10 * time.Second
	}
	if bucketCount <= 0 {
		bucketCount = 10
	}
	if now == nil {
		now = time.Now
	}
	width := duration / time.Duration(bucketCount)
	if width <= 0 {
		width = time.Nanosecond
	}
	return &Window{
		buckets:  make([]bucket, bucketCount),
		width:    width,
		duration: duration,
		now:      now,
	}
}

// current returns the bucket for the present instant, clearing it when the
// slot last held data from an older rotation.
func (w *Window) current() *bucket {
	now := w.now()
	slot := now.Truncate(w.width)
	idx := int((slot.UnixNano() / int64(w.width)) % int64(len(w.buckets)))
	if idx < 0 {
		idx += len(w.buckets)
	}
	b := &w.buckets[idx]
	if !b.start.Equal(slot) {
		*b = bucket{start: slot}
	}
	return b
}

// Success records a successful call.
func (w *Window) Success() { w.current().Successes++ }

// Failure records a failed call.
func (w *Window) Failure() { w.current().Failures++ }

// Timeout records a call that failed by exceeding its deadline. It counts as
// a failure as well.
func (w *Window) Timeout() {
	b := w.current()
	b.Timeouts++
	b.Failures++
}

// Reject records a call that was refused without running.
func (w *Window) Reject() { w.current().Rejects++ }

// Counts sums every bucket still inside the window.
func (w *Window) Counts() Counts {
	now := w.now()
	oldest := now.Truncate(w.width).Add(-w.duration + w.width)
	var total Counts
	for i := range w.buckets {
		b := &w.buckets[i]
		if b.start.IsZero() || b.start.Before(oldest) || b.start.After(now) {
			continue
		}
		total.Successes += b.Successes
		total.Failures += b.Failures
		total.Timeouts += b.Timeouts
		total.Rejects += b.Rejects
	}
	return total
}

// Reset discards all buckets.
func (w *Window) Reset() {
	for i := range w.buckets {
		w.buckets[i] = bucket{}
	}
}

// Duration returns the span the window covers.
func (w *Window) Duration() time.Duration { return w.duration }

// BucketCount returns the number of buckets.
func (w *Window) BucketCount() int { return len(w.buckets) }
