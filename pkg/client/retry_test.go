package client

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fastRetry keeps tests quick while exercising the same code paths.
func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:        maxRetries,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        4 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Jitter:            0.2,
	}
}

var errRateLimited = &APIError{StatusCode: 429, ErrorClass: ErrorClassRateLimit, Message: "429 Too Many Requests"}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", config.MaxRetries)
	}
	if config.InitialBackoff != 1*time.Second {
		t.Errorf("InitialBackoff = %v, want 1s", config.InitialBackoff)
	}
	if config.MaxBackoff != 16*time.Second {
		t.Errorf("MaxBackoff = %v, want 16s", config.MaxBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
}

func TestRetryConfig_BackoffFor(t *testing.T) {
	config := RetryConfig{
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}

	tests := []struct {
		retry    int
		expected time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
		{10, 5 * time.Second},
	}

	for _, tt := range tests {
		if got := config.backoffFor(tt.retry); got != tt.expected {
			t.Errorf("backoffFor(%d) = %v, want %v", tt.retry, got, tt.expected)
		}
	}
}

func TestRetryConfig_WithJitter(t *testing.T) {
	config := RetryConfig{Jitter: 0.2}
	base := 100 * time.Millisecond

	for i := 0; i < 50; i++ {
		got := config.withJitter(base)
		if got < 80*time.Millisecond || got > 120*time.Millisecond {
			t.Fatalf("withJitter(%v) = %v, outside ±20%%", base, got)
		}
	}
}

func TestRetryConfig_Normalize(t *testing.T) {
	config := RetryConfig{MaxRetries: -1, Jitter: 2}.normalize()

	if config.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want 0", config.MaxRetries)
	}
	if config.InitialBackoff != time.Second {
		t.Errorf("InitialBackoff = %v, want default", config.InitialBackoff)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want default", config.BackoffMultiplier)
	}
	if config.Jitter != 0.2 {
		t.Errorf("Jitter = %v, want default", config.Jitter)
	}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), fastRetry(5), func() error {
		callCount++
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}

func TestRetryWithBackoff_SuccessAfterRetry(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), fastRetry(5), func() error {
		callCount++
		if callCount < 3 {
			return errRateLimited
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls, got %d", callCount)
	}
}

func TestRetryWithBackoff_Exhausted(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), fastRetry(5), func() error {
		callCount++
		return errRateLimited
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if !IsRateLimited(err) {
		t.Error("Exhausted error should still be recognised as rate limited")
	}
	// initial request plus 5 retries
	if callCount != 6 {
		t.Errorf("Expected 6 calls, got %d", callCount)
	}
}

func TestRetryWithBackoff_NonRetriableNoRetry(t *testing.T) {
	serverErr := &APIError{StatusCode: 500, ErrorClass: ErrorClassServer}

	callCount := 0
	err := retryWithBackoff(context.Background(), fastRetry(5), func() error {
		callCount++
		return serverErr
	})

	if callCount != 1 {
		t.Errorf("Expected 1 call (no retry for server errors), got %d", callCount)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("Should not return ErrRetryExhausted when no retry was attempted")
	}
	if !errors.Is(err, serverErr) {
		t.Errorf("Expected original error, got %v", err)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	config := fastRetry(5)
	config.InitialBackoff = time.Minute
	config.MaxBackoff = time.Minute

	callCount := 0
	err := retryWithBackoff(ctx, config, func() error {
		callCount++
		cancel()
		return errRateLimited
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}
