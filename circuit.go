package supra

import (
	"context"
	"sync"
	"time"

	"github.com/Trendyol/supra/internal/rolling"
)

// StateChangeFunc observes circuit transitions.
type StateChangeFunc func(name string, from, to CircuitState)

// Circuit guards calls to one logical endpoint. It tracks outcomes in a
// rolling window, opens when the error percentage crosses the threshold,
// rejects calls while open and lets a single probe through once the reset
// timeout has elapsed. It is safe for concurrent use.
type Circuit struct {
	name     string
	config   CircuitConfig
	now      func() time.Time
	onChange StateChangeFunc

	mu       sync.Mutex
	state    CircuitState
	openedAt time.Time
	probing  bool
	window   *rolling.Window
}

type permit struct {
	probe bool
}

type transition struct {
	from, to CircuitState
}

func newCircuit(name string, config CircuitConfig, now func() time.Time, onChange StateChangeFunc) *Circuit {
	if now == nil {
		now = time.Now
	}
	return &Circuit{
		name:     name,
		config:   config,
		now:      now,
		onChange: onChange,
		state:    StateClosed,
		window:   rolling.New(config.RollingWindowDuration, config.BucketCount, now),
	}
}

// Name returns the key the circuit was registered under.
func (cb *Circuit) Name() string { return cb.name }

// Config returns the configuration captured when the circuit was created.
func (cb *Circuit) Config() CircuitConfig { return cb.config }

// State returns the current state.
func (cb *Circuit) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns a snapshot of the state and window counters.
func (cb *Circuit) Stats() CircuitStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	counts := cb.window.Counts()
	return CircuitStats{
		Name:            cb.name,
		State:           cb.state,
		OpenedAt:        cb.openedAt,
		Successes:       counts.Successes,
		Failures:        counts.Failures,
		Timeouts:        counts.Timeouts,
		Rejects:         counts.Rejects,
		ErrorPercentage: counts.ErrorPercentage(),
		WindowDuration:  cb.window.Duration(),
		BucketCount:     cb.window.BucketCount(),
	}
}

// Reset forces the circuit closed and clears its window.
func (cb *Circuit) Reset() {
	cb.mu.Lock()
	t, changed := cb.moveTo(StateClosed)
	cb.probing = false
	cb.window.Reset()
	cb.mu.Unlock()

	if changed {
		cb.notify(t)
	}
}

// Execute runs fn if the circuit admits the call. A rejected call returns
// ErrCircuitOpen without invoking fn. When the circuit timeout elapses first,
// fn's context is canceled, the call counts as a timeout and
// ErrCircuitTimeout is returned; fn's late result is discarded.
func (cb *Circuit) Execute(ctx context.Context, fn func(context.Context) error) error {
	p, ok := cb.allow()
	if !ok {
		return ErrCircuitOpen
	}

	if cb.config.Timeout < 0 {
		err := fn(ctx)
		cb.settle(ctx, p, err, false)
		return err
	}

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(callCtx)
	}()

	timer := time.NewTimer(cb.config.Timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		cb.settle(ctx, p, err, false)
		return err
	case <-timer.C:
		cancel()
		cb.settle(ctx, p, ErrCircuitTimeout, true)
		return ErrCircuitTimeout
	case <-ctx.Done():
		cancel()
		cb.release(p)
		return ctx.Err()
	}
}

func (cb *Circuit) allow() (permit, bool) {
	cb.mu.Lock()

	switch cb.state {
	case StateClosed:
		cb.mu.Unlock()
		return permit{}, true
	case StateOpen:
		if cb.now().Sub(cb.openedAt) >= cb.config.ResetTimeout {
			t, changed := cb.moveTo(StateHalfOpen)
			cb.probing = true
			cb.mu.Unlock()
			if changed {
				cb.notify(t)
			}
			return permit{probe: true}, true
		}
	case StateHalfOpen:
		if !cb.probing {
			cb.probing = true
			cb.mu.Unlock()
			return permit{probe: true}, true
		}
	}

	cb.window.Reject()
	cb.mu.Unlock()
	return permit{}, false
}

// settle records a finished call. Calls that end because the caller gave up
// are not held against the endpoint.
func (cb *Circuit) settle(ctx context.Context, p permit, err error, timedOut bool) {
	if err != nil && !timedOut && ctx.Err() != nil {
		cb.release(p)
		return
	}
	cb.record(p, err, timedOut)
}

func (cb *Circuit) release(p permit) {
	if !p.probe {
		return
	}
	cb.mu.Lock()
	cb.probing = false
	cb.mu.Unlock()
}

func (cb *Circuit) record(p permit, err error, timedOut bool) {
	cb.mu.Lock()

	switch {
	case timedOut:
		cb.window.Timeout()
	case err != nil:
		cb.window.Failure()
	default:
		cb.window.Success()
	}

	var (
		t       transition
		changed bool
	)
	if p.probe {
		cb.probing = false
		if cb.state == StateHalfOpen {
			if err == nil {
				cb.window.Reset()
				t, changed = cb.moveTo(StateClosed)
			} else {
				cb.openedAt = cb.now()
				t, changed = cb.moveTo(StateOpen)
			}
		}
	} else if err != nil && cb.state == StateClosed && cb.tripped() {
		cb.openedAt = cb.now()
		t, changed = cb.moveTo(StateOpen)
	}
	cb.mu.Unlock()

	if changed {
		cb.notify(t)
	}
}

func (cb *Circuit) tripped() bool {
	counts := cb.window.Counts()
	total := counts.Total()
	if total == 0 || total < int64(cb.config.VolumeThreshold) {
		return false
	}
	return counts.ErrorPercentage() >= float64(cb.config.ErrorThresholdPercentage)
}

// moveTo must be called with mu held.
func (cb *Circuit) moveTo(to CircuitState) (transition, bool) {
	from := cb.state
	if from == to {
		return transition{}, false
	}
	cb.state = to
	return transition{from: from, to: to}, true
}

func (cb *Circuit) notify(t transition) {
	if cb.onChange != nil {
		cb.onChange(cb.name, t.from, t.to)
	}
}
