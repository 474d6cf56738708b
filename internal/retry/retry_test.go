package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(retries int) *Config {
	return &Config{MaxRetries: retries, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	t.Parallel()

	calls := 0
	var retried []int
	err := Do(context.Background(), fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, &Options{
		Operation: "test.success",
		OnRetry:   func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) },
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
	assert.Equal(t, 1.0, testutil.ToFloat64(GetMetrics().successTotal.WithLabelValues("test.success")))
}

func TestDo_Exhausted(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	calls := 0
	err := Do(context.Background(), fastConfig(2), func() error {
		calls++
		return boom
	}, &Options{Operation: "test.exhausted"})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(GetMetrics().failureTotal.WithLabelValues("test.exhausted")))
}

func TestDo_NonRetryable(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastConfig(5), func() error {
		calls++
		return io.ErrShortWrite
	}, &Options{ShouldRetry: func(error) bool { return false }})

	assert.ErrorIs(t, err, io.ErrShortWrite)
	assert.Equal(t, 1, calls)
}

func TestDo_DisabledWithNegativeRetries(t *testing.T) {
	t.Parallel()

	calls := 0
	_ = Do(context.Background(), &Config{MaxRetries: -1}, func() error {
		calls++
		return errors.New("x")
	}, nil)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, nil, func() error { return nil }, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateBackoff(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 100*time.Millisecond, CalculateBackoff(0, 100*time.Millisecond, time.Second, 0))
	assert.Equal(t, 400*time.Millisecond, CalculateBackoff(2, 100*time.Millisecond, time.Second, 0))
	assert.Equal(t, time.Second, CalculateBackoff(10, 100*time.Millisecond, time.Second, 0))

	b := CalculateBackoff(0, 100*time.Millisecond, time.Second, 0.5)
	assert.GreaterOrEqual(t, b, 100*time.Millisecond)
	assert.LessOrEqual(t, b, 150*time.Millisecond)
}

func TestIsRetryableNetError(t *testing.T) {
	t.Parallel()

	assert.False(t, IsRetryableNetError(nil))
	assert.False(t, IsRetryableNetError(context.Canceled))
	assert.False(t, IsRetryableNetError(errors.New("logic")))
	assert.True(t, IsRetryableNetError(syscall.ECONNREFUSED))
	assert.True(t, IsRetryableNetError(io.ErrUnexpectedEOF))
	assert.True(t, IsRetryableNetError(&net.OpError{Op: "dial", Err: errors.New("refused")}))
}

func TestIsRetryableStatus(t *testing.T) {
	t.Parallel()

	assert.True(t, IsRetryableStatus(503))
	assert.False(t, IsRetryableStatus(500))
	assert.False(t, IsRetryableStatus(200))
}
