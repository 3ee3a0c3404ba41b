package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatCurrency(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "$0.00"},
		{999.5, "$999.50"},
		{1234.5, "$1,234.50"},
		{-1234567.891, "-$1,234,567.89"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatCurrency(tt.in))
	}
}

func TestFormatPnLAndPercent(t *testing.T) {
	assert.Equal(t, "+$50.00", FormatPnL(50))
	assert.Equal(t, "-$20.00", FormatPnL(-20))
	assert.Equal(t, "+2.50%", FormatPercent(2.5))
	assert.Equal(t, "-1.00%", FormatPercent(-1))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", FormatDuration(45*time.Second))
	assert.Equal(t, "2m05s", FormatDuration(125*time.Second))
	assert.Equal(t, "1h30m", FormatDuration(90*time.Minute))
	assert.Equal(t, "-10s", FormatDuration(-10*time.Second))
}

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2}
	err := Retry(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryNonRetryable(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	cfg := RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		Retryable:    func(err error) bool { return !errors.Is(err, permanent) },
	}
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: time.Second, BackoffFactor: 1}
	err := Retry(ctx, cfg, func() error { return errors.New("x") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateBackoffCapped(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, CalculateBackoff(0, 100*time.Millisecond, time.Second, 2))
	assert.Equal(t, 400*time.Millisecond, CalculateBackoff(2, 100*time.Millisecond, time.Second, 2))
	assert.Equal(t, time.Second, CalculateBackoff(10, 100*time.Millisecond, time.Second, 2))
}
