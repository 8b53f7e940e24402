package retry

import (
	"context"
	stderr "errors"
	"testing"
	"time"

	"github.com/caskstore/caskstore/pkg/errors"
)

func TestRetryer_Success(t *testing.T) {
	config := DefaultConfig()
	config.MaxAttempts = 3
	retryer := New(config)

	attempts := 0
	err := retryer.Do(func() error {
		attempts++
		return nil
	})

	if err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetryer_RetryableError(t *testing.T) {
	config := DefaultConfig()
	config.MaxAttempts = 3
	config.BaseDelay = 5 * time.Millisecond
	config.Jitter = false
	retryer := New(config)

	attempts := 0
	err := retryer.Do(func() error {
		attempts++
		if attempts < 3 {
			return errors.FromHTTPStatus(500, "WriteBytes", "k")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetryer_FatalError(t *testing.T) {
	config := DefaultConfig()
	config.MaxAttempts = 5
	retryer := New(config)

	attempts := 0
	err := retryer.Do(func() error {
		attempts++
		return errors.FromHTTPStatus(400, "WriteBytes", "k")
	})

	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt (no retry on 4xx), got %d", attempts)
	}
}

func TestRetryer_Exhausted(t *testing.T) {
	config := DefaultConfig()
	config.MaxAttempts = 3
	config.BaseDelay = 5 * time.Millisecond
	config.Jitter = false
	retryer := New(config)

	attempts := 0
	underlying := errors.FromHTTPStatus(503, "ReadBytes", "k")
	err := retryer.Do(func() error {
		attempts++
		return underlying
	})

	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}

	var se *errors.StoreError
	if !stderr.As(err, &se) {
		t.Fatalf("Expected StoreError, got %T", err)
	}
	if se.Code != errors.ErrCodeRetryExhausted {
		t.Errorf("Expected RETRY_EXHAUSTED, got %s", se.Code)
	}
	// Exhausted retries surface the last underlying error.
	if !stderr.Is(err, underlying) {
		t.Error("Expected exhausted error to wrap the last underlying error")
	}
}

func TestRetryer_ContextCancellation(t *testing.T) {
	config := DefaultConfig()
	config.MaxAttempts = 10
	config.BaseDelay = 50 * time.Millisecond
	config.Jitter = false
	retryer := New(config)

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	errCh := make(chan error, 1)

	go func() {
		errCh <- retryer.DoWithContext(ctx, func(context.Context) error {
			attempts++
			return errors.FromHTTPStatus(500, "ReadBytes", "k")
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	err := <-errCh
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	var se *errors.StoreError
	if !stderr.As(err, &se) || se.Code != errors.ErrCodeOperationCanceled {
		t.Errorf("Expected OPERATION_CANCELED, got %v", err)
	}
	if attempts >= 10 {
		t.Errorf("Expected cancellation to stop retries, got %d attempts", attempts)
	}
}

func TestRetryer_UnclassifiedErrorIsFatal(t *testing.T) {
	retryer := New(DefaultConfig())

	attempts := 0
	err := retryer.Do(func() error {
		attempts++
		return stderr.New("plain error")
	})

	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestCalculateDelay_ExponentialWithCap(t *testing.T) {
	config := Config{
		MaxAttempts: 10,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    500 * time.Millisecond,
		Jitter:      false,
	}
	retryer := New(config)

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 500 * time.Millisecond}, // capped
		{8, 500 * time.Millisecond}, // capped
	}

	for _, tt := range tests {
		got := retryer.calculateDelay(tt.attempt)
		if got != tt.expected {
			t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.expected, got)
		}
	}
}

func TestCalculateDelay_JitterBounds(t *testing.T) {
	config := Config{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Jitter:      true,
	}
	retryer := New(config)

	for i := 0; i < 50; i++ {
		got := retryer.calculateDelay(1)
		// base*2^1 = 200ms, jitter adds [0, 200ms]
		if got < 200*time.Millisecond || got > 400*time.Millisecond {
			t.Fatalf("jittered delay %v outside [200ms, 400ms]", got)
		}
	}
}

func TestRetryer_OnRetryCallback(t *testing.T) {
	config := DefaultConfig()
	config.MaxAttempts = 3
	config.BaseDelay = 5 * time.Millisecond
	config.Jitter = false

	var callbacks int
	config.OnRetry = func(attempt int, err error, delay time.Duration) {
		callbacks++
	}
	retryer := New(config)

	attempts := 0
	_ = retryer.Do(func() error {
		attempts++
		return errors.FromHTTPStatus(500, "ReadBytes", "k")
	})

	if callbacks != 2 {
		t.Errorf("Expected 2 retry callbacks, got %d", callbacks)
	}
}
