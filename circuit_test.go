package supra

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type transitionLog struct {
	mu    sync.Mutex
	moves []string
}

func (l *transitionLog) record(name string, from, to CircuitState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.moves = append(l.moves, from.String()+"->"+to.String())
}

func (l *transitionLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.moves...)
}

func newTestCircuit(clock *testClock, log *transitionLog, cfg CircuitConfig) *Circuit {
	var onChange StateChangeFunc
	if log != nil {
		onChange = log.record
	}
	return newCircuit("test", cfg.withDefaults(DefaultCircuitConfig()), clock.now, onChange)
}

var errBoom = errors.New("boom")

func succeed(context.Context) error { return nil }
func fail(context.Context) error    { return errBoom }

func TestCircuitStateString(t *testing.T) {
	testCases := map[CircuitState]string{
		StateClosed:      "closed",
		StateOpen:        "open",
		StateHalfOpen:    "half-open",
		CircuitState(42): "unknown",
	}
	for state, want := range testCases {
		if state.String() != want {
			t.Errorf("Expected %s, got %s", want, state.String())
		}
	}
}

func TestCircuitClosedPassesResults(t *testing.T) {
	cb := newTestCircuit(newTestClock(), nil, CircuitConfig{})

	if err := cb.Execute(context.Background(), succeed); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := cb.Execute(context.Background(), fail); !errors.Is(err, errBoom) {
		t.Fatalf("Expected errBoom, got %v", err)
	}

	stats := cb.Stats()
	if stats.Successes != 1 || stats.Failures != 1 {
		t.Errorf("Expected 1 success and 1 failure, got %+v", stats)
	}
}

func TestCircuitOpensAtThreshold(t *testing.T) {
	clock := newTestClock()
	log := &transitionLog{}
	cb := newTestCircuit(clock, log, CircuitConfig{ErrorThresholdPercentage: 50})

	_ = cb.Execute(context.Background(), succeed)
	_ = cb.Execute(context.Background(), succeed)
	_ = cb.Execute(context.Background(), fail)
	if cb.State() != StateClosed {
		t.Fatalf("Expected closed at 33%% errors, got %s", cb.State())
	}

	_ = cb.Execute(context.Background(), fail)
	if cb.State() != StateOpen {
		t.Fatalf("Expected open at 50%% errors, got %s", cb.State())
	}

	moves := log.list()
	if len(moves) != 1 || moves[0] != "closed->open" {
		t.Errorf("Expected [closed->open], got %v", moves)
	}
}

func TestCircuitVolumeThreshold(t *testing.T) {
	cb := newTestCircuit(newTestClock(), nil, CircuitConfig{VolumeThreshold: 3})

	_ = cb.Execute(context.Background(), fail)
	_ = cb.Execute(context.Background(), fail)
	if cb.State() != StateClosed {
		t.Fatalf("Expected closed below volume threshold, got %s", cb.State())
	}

	_ = cb.Execute(context.Background(), fail)
	if cb.State() != StateOpen {
		t.Fatalf("Expected open at volume threshold, got %s", cb.State())
	}
}

func TestCircuitOpenNeverInvokes(t *testing.T) {
	cb := newTestCircuit(newTestClock(), nil, CircuitConfig{})
	_ = cb.Execute(context.Background(), fail)

	calls := 0
	for i := 0; i < 5; i++ {
		err := cb.Execute(context.Background(), func(context.Context) error {
			calls++
			return nil
		})
		if !errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("Expected ErrCircuitOpen, got %v", err)
		}
	}

	if calls != 0 {
		t.Errorf("Expected 0 invocations while open, got %d", calls)
	}
	if stats := cb.Stats(); stats.Rejects != 5 {
		t.Errorf("Expected 5 rejects, got %d", stats.Rejects)
	}
}

func TestCircuitProbeSuccessCloses(t *testing.T) {
	clock := newTestClock()
	log := &transitionLog{}
	cb := newTestCircuit(clock, log, CircuitConfig{ResetTimeout: 5 * time.Second})

	_ = cb.Execute(context.Background(), fail)
	clock.advance(4 * time.Second)
	if err := cb.Execute(context.Background(), succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Expected rejection before reset timeout, got %v", err)
	}

	clock.advance(time.Second)
	if err := cb.Execute(context.Background(), succeed); err != nil {
		t.Fatalf("Expected probe to pass, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("Expected closed after successful probe, got %s", cb.State())
	}

	stats := cb.Stats()
	if stats.Failures != 0 || stats.Successes != 0 {
		t.Errorf("Expected counters reset on close, got %+v", stats)
	}

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	moves := log.list()
	if len(moves) != len(want) {
		t.Fatalf("Expected %v, got %v", want, moves)
	}
	for i := range want {
		if moves[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, moves)
		}
	}
}

func TestCircuitProbeFailureReopens(t *testing.T) {
	clock := newTestClock()
	cb := newTestCircuit(clock, nil, CircuitConfig{ResetTimeout: time.Second})

	_ = cb.Execute(context.Background(), fail)
	firstOpen := cb.Stats().OpenedAt

	clock.advance(time.Second)
	if err := cb.Execute(context.Background(), fail); !errors.Is(err, errBoom) {
		t.Fatalf("Expected probe failure, got %v", err)
	}
	if cb.State() != StateOpen {
		t.Fatalf("Expected open after failed probe, got %s", cb.State())
	}
	if !cb.Stats().OpenedAt.After(firstOpen) {
		t.Error("Expected reset timer to restart after failed probe")
	}
}

func TestCircuitSingleProbe(t *testing.T) {
	clock := newTestClock()
	cb := newTestCircuit(clock, nil, CircuitConfig{ResetTimeout: time.Second, Timeout: -1})

	_ = cb.Execute(context.Background(), fail)
	clock.advance(time.Second)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(context.Background(), func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	if cb.State() != StateHalfOpen {
		t.Fatalf("Expected half-open during probe, got %s", cb.State())
	}
	if err := cb.Execute(context.Background(), succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected concurrent call to be rejected, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Expected probe success, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected closed, got %s", cb.State())
	}
}

func TestCircuitTimeout(t *testing.T) {
	cb := newTestCircuit(newTestClock(), nil, CircuitConfig{Timeout: 10 * time.Millisecond})

	canceled := make(chan struct{})
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		close(canceled)
		return ctx.Err()
	})
	if !errors.Is(err, ErrCircuitTimeout) {
		t.Fatalf("Expected ErrCircuitTimeout, got %v", err)
	}

	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("Expected the call context to be canceled")
	}

	stats := cb.Stats()
	if stats.Timeouts != 1 || stats.Failures != 1 {
		t.Errorf("Expected the timeout to count as a failure, got %+v", stats)
	}
	if cb.State() != StateOpen {
		t.Errorf("Expected timeouts to open the circuit, got %s", cb.State())
	}
}

func TestCircuitCallerCancellationNotCounted(t *testing.T) {
	cb := newTestCircuit(newTestClock(), nil, CircuitConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Execute(ctx, func(ctx context.Context) error {
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}

	stats := cb.Stats()
	if stats.Failures != 0 {
		t.Errorf("Expected caller cancellation not to count, got %+v", stats)
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected closed, got %s", cb.State())
	}
}

func TestCircuitRollingWindowForgets(t *testing.T) {
	clock := newTestClock()
	cb := newTestCircuit(clock, nil, CircuitConfig{
		ErrorThresholdPercentage: 50,
		RollingWindowDuration:    10 * time.Second,
		BucketCount:              10,
	})

	_ = cb.Execute(context.Background(), succeed)
	_ = cb.Execute(context.Background(), succeed)
	_ = cb.Execute(context.Background(), succeed)
	clock.advance(11 * time.Second)

	// Earlier successes have aged out, so one failure is 100%.
	_ = cb.Execute(context.Background(), fail)
	if cb.State() != StateOpen {
		t.Errorf("Expected open once old successes expired, got %s", cb.State())
	}
}

func TestCircuitReset(t *testing.T) {
	log := &transitionLog{}
	cb := newTestCircuit(newTestClock(), log, CircuitConfig{})
	_ = cb.Execute(context.Background(), fail)

	cb.Reset()
	if cb.State() != StateClosed {
		t.Fatalf("Expected closed after reset, got %s", cb.State())
	}
	if stats := cb.Stats(); stats.Failures != 0 {
		t.Errorf("Expected counters cleared, got %+v", stats)
	}
	if moves := log.list(); moves[len(moves)-1] != "open->closed" {
		t.Errorf("Expected open->closed, got %v", moves)
	}
}

func TestCircuitConfigDefaults(t *testing.T) {
	cfg := CircuitConfig{ErrorThresholdPercentage: 150}.withDefaults(DefaultCircuitConfig())

	if cfg.ErrorThresholdPercentage != 100 {
		t.Errorf("Expected threshold clamped to 100, got %d", cfg.ErrorThresholdPercentage)
	}
	if cfg.ResetTimeout != 30*time.Second {
		t.Errorf("Expected 30s reset timeout, got %v", cfg.ResetTimeout)
	}
	if cfg.RollingWindowDuration != 10*time.Second || cfg.BucketCount != 10 {
		t.Errorf("Expected 10s/10 window, got %v/%d", cfg.RollingWindowDuration, cfg.BucketCount)
	}
	if cfg.Timeout != 10*time.Second {
		t.Errorf("Expected 10s timeout, got %v", cfg.Timeout)
	}

	unset := CircuitConfig{}.withDefaults(DefaultCircuitConfig())
	if unset.ErrorThresholdPercentage != 50 {
		t.Errorf("Expected zero threshold to take the default, got %d", unset.ErrorThresholdPercentage)
	}
	strict := CircuitConfig{ErrorThresholdPercentage: 1}.withDefaults(DefaultCircuitConfig())
	if strict.ErrorThresholdPercentage != 1 {
		t.Errorf("Expected threshold 1 to be kept, got %d", strict.ErrorThresholdPercentage)
	}

	disabled := CircuitConfig{Timeout: -1}.withDefaults(DefaultCircuitConfig())
	if disabled.Timeout != -1 {
		t.Errorf("Expected negative timeout to be kept, got %v", disabled.Timeout)
	}
}
