package faulttolerance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/navid-fn/tanix/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBroker = errors.New("broker unreachable")

func fail(context.Context) error { return errBroker }
func ok(context.Context) error   { return nil }

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2, Timeout: time.Minute, Name: "test"}, logger.Discard())
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, fail), errBroker)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, fail), errBroker)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
	assert.False(t, called)

	now = now.Add(time.Minute)
	require.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1, Timeout: time.Second, SuccessThreshold: 2}, logger.Discard())
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.Equal(t, StateOpen, cb.State())

	now = now.Add(2 * time.Second)
	require.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateHalfOpen, cb.State())

	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, "OPEN", cb.Stats()["state"])
}

func TestCircuitBreakerIgnoresCancellation(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1}, logger.Discard())
	_ = cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	assert.Equal(t, StateClosed, cb.State())
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestRetryerRetriesUntilSuccess(t *testing.T) {
	r := NewRetryer(RetryConfig{MaxAttempts: 4}, logger.Discard())
	r.sleep = noSleep

	calls := 0
	err := r.Execute(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errBroker
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryerGivesUp(t *testing.T) {
	r := NewRetryer(RetryConfig{MaxAttempts: 3}, logger.Discard())
	r.sleep = noSleep

	calls := 0
	err := r.Execute(context.Background(), func(context.Context) error { calls++; return errBroker })
	assert.ErrorIs(t, err, errBroker)
	assert.Equal(t, 3, calls)
}

func TestRetryerStopsOnNonRetryable(t *testing.T) {
	r := NewRetryer(RetryConfig{
		MaxAttempts: 5,
		Retryable:   func(err error) bool { return !errors.Is(err, errBroker) },
	}, logger.Discard())
	r.sleep = noSleep

	calls := 0
	err := r.Execute(context.Background(), func(context.Context) error { calls++; return errBroker })
	assert.ErrorIs(t, err, errBroker)
	assert.Equal(t, 1, calls)

	calls = 0
	err = r.Execute(context.Background(), func(context.Context) error { calls++; return ErrCircuitBreakerOpen })
	assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
	assert.Equal(t, 1, calls)
}

func TestRetryerHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRetryer(DefaultRetryConfig("ctx"), logger.Discard())
	err := r.Execute(ctx, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryerDelayBounds(t *testing.T) {
	r := NewRetryer(RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, JitterRange: 0.1}, logger.Discard())
	for attempt := 1; attempt <= 8; attempt++ {
		d := r.delay(attempt)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 1100*time.Millisecond)
	}
}

func TestHealthMonitorAggregates(t *testing.T) {
	hm := NewHealthMonitor(logger.Discard(), time.Hour)
	ctx := context.Background()

	var dbErr, kafkaErr error
	hm.AddCheck("database", true, func(context.Context) error { return dbErr })
	hm.AddCheck("kafka", false, func(context.Context) error { return kafkaErr })

	hm.RunChecks(ctx)
	assert.Equal(t, HealthStatusHealthy, hm.OverallHealth())

	kafkaErr = errBroker
	hm.RunChecks(ctx)
	assert.Equal(t, HealthStatusDegraded, hm.OverallHealth())

	dbErr = errors.New("disk I/O error")
	hm.RunChecks(ctx)
	assert.Equal(t, HealthStatusUnhealthy, hm.OverallHealth())

	checks := hm.Checks()
	require.Len(t, checks, 2)
	assert.Equal(t, "database", checks[0].Name)
	assert.Equal(t, "disk I/O error", checks[0].Error)
	assert.Equal(t, HealthStatusDegraded, checks[1].Status)
}

func TestHealthMonitorStartStop(t *testing.T) {
	hm := NewHealthMonitor(logger.Discard(), 10*time.Millisecond)
	ran := make(chan struct{}, 1)
	hm.AddCheck("dep", true, func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})

	hm.Start(context.Background())
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("check never ran")
	}
	hm.Stop()
}
