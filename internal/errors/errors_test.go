package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// ErrorType Tests
// =============================================================================

func TestErrorType_String(t *testing.T) {
	tests := []struct {
		errType ErrorType
		want    string
	}{
		{Unknown, "unknown"},
		{Network, "network"},
		{Timeout, "timeout"},
		{RateLimit, "rate_limit"},
		{ServerError, "server_error"},
		{ClientError, "client_error"},
		{Navigation, "navigation"},
		{Selector, "selector"},
		{Extraction, "extraction"},
		{Discovery, "discovery"},
		{Validation, "validation"},
		{Cancelled, "cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.errType.String(); got != tt.want {
				t.Errorf("String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorType_IsRetryable(t *testing.T) {
	tests := []struct {
		errType   ErrorType
		retryable bool
	}{
		{Network, true},
		{Timeout, true},
		{RateLimit, true},
		{ServerError, true},
		{Navigation, true},
		{ClientError, false},
		{Selector, false},
		{Extraction, false},
		{Discovery, false},
		{Validation, false},
		{Cancelled, false},
		{Unknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.errType.String(), func(t *testing.T) {
			if got := tt.errType.IsRetryable(); got != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

// =============================================================================
// CrawlError Tests
// =============================================================================

func TestCrawlError_Error(t *testing.T) {
	err := NewCrawlError(Network, "https://example.com", "fetch", "connection failed", nil)

	errStr := err.Error()
	for _, want := range []string{"network", "fetch", "https://example.com", "connection failed"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("Error() = %s, missing %q", errStr, want)
		}
	}
}

func TestCrawlError_Error_WithCause(t *testing.T) {
	cause := errors.New("underlying error")
	err := NewCrawlError(Network, "https://example.com", "fetch", "connection failed", cause)

	if !strings.Contains(err.Error(), "underlying error") {
		t.Errorf("Error() = %s, should contain cause", err.Error())
	}
}

func TestCrawlError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewCrawlError(Network, "https://example.com", "fetch", "failed", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
}

func TestCrawlError_Is(t *testing.T) {
	err1 := NewSelectorError("https://example.com/a", "#main", nil)
	err2 := NewSelectorError("https://example.com/b", ".content", nil)
	err3 := NewTimeoutError("https://example.com", "fetch", nil)

	if !errors.Is(err1, err2) {
		t.Error("Errors with same type should match")
	}
	if errors.Is(err1, err3) {
		t.Error("Errors with different types should not match")
	}
}

func TestCrawlError_WrappedStillCategorized(t *testing.T) {
	inner := NewDiscoveryError("https://example.com/robots.txt", "fetch_robots", errors.New("boom"))
	wrapped := fmt.Errorf("discover: %w", inner)

	if got := GetErrorType(wrapped); got != Discovery {
		t.Errorf("GetErrorType() = %v, want Discovery", got)
	}
}

// =============================================================================
// Constructor Tests
// =============================================================================

func TestConstructors(t *testing.T) {
	tests := []struct {
		name      string
		err       *CrawlError
		wantType  ErrorType
		retryable bool
	}{
		{"network", NewNetworkError("u", "connect", nil), Network, true},
		{"timeout", NewTimeoutError("u", "navigate", nil), Timeout, true},
		{"rate limit", NewRateLimitError("u"), RateLimit, true},
		{"server", NewServerError("u", 503), ServerError, true},
		{"client", NewClientError("u", 404), ClientError, false},
		{"navigation", NewNavigationError("u", nil), Navigation, true},
		{"selector", NewSelectorError("u", "#x", nil), Selector, false},
		{"extraction", NewExtractionError("u", nil), Extraction, false},
		{"discovery", NewDiscoveryError("u", "parse_sitemap", nil), Discovery, false},
		{"cancelled", NewCancelledError("u", "crawl"), Cancelled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", tt.err.Type, tt.wantType)
			}
			if tt.err.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", tt.err.Retryable, tt.retryable)
			}
		})
	}
}

func TestNewCancelledError_IsContextCanceled(t *testing.T) {
	err := NewCancelledError("u", "crawl")
	if !errors.Is(err, context.Canceled) {
		t.Error("cancelled error should wrap context.Canceled")
	}
}

// =============================================================================
// Categorize Tests
// =============================================================================

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"crawl error passthrough", NewSelectorError("u", "#x", nil), Selector},
		{"context canceled", fmt.Errorf("navigate: %w", context.Canceled), Cancelled},
		{"deadline", context.DeadlineExceeded, Timeout},
		{"net timeout", &mockNetError{timeout: true}, Timeout},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, Network},
		{"chrome net error", errors.New("navigation failed: net::ERR_NAME_NOT_RESOLVED"), Network},
		{"unknown", errors.New("something odd"), Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Categorize(tt.err, "https://example.com")
			if got.Type != tt.want {
				t.Errorf("Categorize() type = %v, want %v", got.Type, tt.want)
			}
		})
	}
}

func TestCategorize_Nil(t *testing.T) {
	if Categorize(nil, "u") != nil {
		t.Error("Categorize(nil) should return nil")
	}
}

func TestCategorizeHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorType
		isNil  bool
	}{
		{200, Unknown, true},
		{301, Unknown, true},
		{404, ClientError, false},
		{403, ClientError, false},
		{429, RateLimit, false},
		{500, ServerError, false},
		{503, ServerError, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := CategorizeHTTPStatus(tt.status, "u")
			if tt.isNil {
				if err != nil {
					t.Errorf("CategorizeHTTPStatus(%d) = %v, want nil", tt.status, err)
				}
				return
			}
			if err.Type != tt.want {
				t.Errorf("Type = %v, want %v", err.Type, tt.want)
			}
			if err.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", err.StatusCode, tt.status)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil should not be retryable")
	}
	if !IsRetryable(NewServerError("u", 502)) {
		t.Error("server error should be retryable")
	}
	if IsRetryable(NewClientError("u", 404)) {
		t.Error("client error should not be retryable")
	}
	if !IsRetryable(&mockNetError{timeout: true}) {
		t.Error("net timeout should be retryable")
	}
}

func TestGetStatusCode(t *testing.T) {
	if got := GetStatusCode(NewServerError("u", 502)); got != 502 {
		t.Errorf("GetStatusCode() = %d, want 502", got)
	}
	if got := GetStatusCode(errors.New("plain")); got != 0 {
		t.Errorf("GetStatusCode() = %d, want 0", got)
	}
}

// =============================================================================
// ValidationError Tests
// =============================================================================

func TestValidationError(t *testing.T) {
	err := &ValidationError{Field: "progress", Expected: "number", Got: "ten"}

	if !strings.Contains(err.Error(), "progress") || !strings.Contains(err.Error(), "number") {
		t.Errorf("Error() = %s, should name field and expected type", err.Error())
	}
	if !IsValidationError(fmt.Errorf("get progress: %w", err)) {
		t.Error("IsValidationError should see through wrapping")
	}
	if IsValidationError(errors.New("plain")) {
		t.Error("plain error is not a validation error")
	}
}

// =============================================================================
// Retry Tests
// =============================================================================

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	if cfg.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want 0", cfg.MaxRetries)
	}
	if cfg.InitialDelay != 500*time.Millisecond {
		t.Errorf("InitialDelay = %v, want 500ms", cfg.InitialDelay)
	}
	if len(cfg.RetryableTypes) == 0 {
		t.Error("RetryableTypes should not be empty")
	}
}

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:     maxRetries,
		InitialDelay:   time.Millisecond,
		MaxDelay:       10 * time.Millisecond,
		Multiplier:     2.0,
		RetryableTypes: []ErrorType{Network},
	}
}

func TestRetrier_Do_Success(t *testing.T) {
	r := NewRetrier(DefaultRetryConfig())
	calls := 0

	result := r.Do(context.Background(), "test", "url", func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})

	if !result.Success {
		t.Error("Should succeed")
	}
	if result.Attempts != 1 || calls != 1 {
		t.Errorf("Attempts = %d, calls = %d, want 1", result.Attempts, calls)
	}
}

func TestRetrier_Do_NoRetriesByDefault(t *testing.T) {
	r := NewRetrier(DefaultRetryConfig())
	calls := 0

	result := r.Do(context.Background(), "test", "url", func(ctx context.Context, attempt int) error {
		calls++
		return NewNetworkError("url", "op", nil)
	})

	if result.Success {
		t.Error("Should fail")
	}
	if calls != 1 {
		t.Errorf("Function called %d times, want 1", calls)
	}
}

func TestRetrier_Do_RetryOnError(t *testing.T) {
	var seen []int
	retried := 0
	r := NewRetrier(fastRetryConfig(2)).OnRetry(func(attempt int, err error) error {
		retried++
		return nil
	})

	result := r.Do(context.Background(), "test", "url", func(ctx context.Context, attempt int) error {
		seen = append(seen, attempt)
		if attempt < 3 {
			return NewNetworkError("url", "op", nil)
		}
		return nil
	})

	if !result.Success {
		t.Error("Should succeed after retries")
	}
	if result.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", result.Attempts)
	}
	if fmt.Sprint(seen) != "[1 2 3]" {
		t.Errorf("attempt numbers = %v, want [1 2 3]", seen)
	}
	if retried != 2 {
		t.Errorf("OnRetry called %d times, want 2", retried)
	}
}

func TestRetrier_Do_MaxRetriesExceeded(t *testing.T) {
	r := NewRetrier(fastRetryConfig(2))

	result := r.Do(context.Background(), "test", "url", func(ctx context.Context, attempt int) error {
		return NewNetworkError("url", "op", nil)
	})

	if result.Success {
		t.Error("Should fail after max retries")
	}
	if result.Attempts != 3 { // 1 initial + 2 retries
		t.Errorf("Attempts = %d, want 3", result.Attempts)
	}
	if result.LastError == nil {
		t.Error("LastError should be set")
	}
}

func TestRetrier_Do_NoRetryForNonRetryable(t *testing.T) {
	r := NewRetrier(fastRetryConfig(3))
	calls := 0

	result := r.Do(context.Background(), "test", "url", func(ctx context.Context, attempt int) error {
		calls++
		return NewSelectorError("url", "#main", nil)
	})

	if result.Success {
		t.Error("Should fail")
	}
	if calls != 1 {
		t.Errorf("Function called %d times, want 1 (no retry)", calls)
	}
}

func TestRetrier_Do_ContextCancellation(t *testing.T) {
	cfg := fastRetryConfig(5)
	cfg.InitialDelay = 100 * time.Millisecond
	r := NewRetrier(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result := r.Do(ctx, "test", "url", func(ctx context.Context, attempt int) error {
		return NewNetworkError("url", "op", nil)
	})

	if result.Success {
		t.Error("Should fail on cancellation")
	}
	if GetErrorType(result.LastError) != Cancelled {
		t.Errorf("LastError = %v, want cancelled", result.LastError)
	}
}

func TestRetrier_Do_OnRetryStops(t *testing.T) {
	calls := 0
	stop := errors.New("no budget")
	r := NewRetrier(fastRetryConfig(5)).OnRetry(func(attempt int, err error) error {
		if attempt == 2 {
			return stop
		}
		return nil
	})

	result := r.Do(context.Background(), "test", "url", func(ctx context.Context, attempt int) error {
		calls++
		return NewNetworkError("url", "op", nil)
	})

	if result.Success {
		t.Error("Should fail")
	}
	if calls != 2 || result.Attempts != 2 {
		t.Errorf("calls = %d, Attempts = %d, want 2 and 2", calls, result.Attempts)
	}
	if GetErrorType(result.LastError) != Network {
		t.Errorf("LastError = %v, want the failed attempt's error", result.LastError)
	}
}

func TestRetrier_NextDelay(t *testing.T) {
	r := NewRetrier(RetryConfig{InitialDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2.0})

	delay := time.Second
	var got []time.Duration
	for i := 0; i < 5; i++ {
		delay = r.nextDelay(delay)
		got = append(got, delay)
	}

	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("delays = %v, want %v", got, want)
	}
}

// Mock net.Error for testing
type mockNetError struct {
	timeout bool
}

func (e *mockNetError) Error() string   { return "mock net error" }
func (e *mockNetError) Timeout() bool   { return e.timeout }
func (e *mockNetError) Temporary() bool { return false }

var _ net.Error = (*mockNetError)(nil)
