package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without underlying error",
			appErr:   NotFound("Booking"),
			expected: "NOT_FOUND: Booking not found",
		},
		{
			name:     "with underlying error",
			appErr:   Internal("internal error", errors.New("redis: connection refused")),
			expected: "INTERNAL_ERROR: internal error (caused by: redis: connection refused)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.appErr.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("cause")
	appErr := Wrap(cause, CodeInternal, "wrapped", http.StatusInternalServerError)

	if !errors.Is(appErr, cause) {
		t.Errorf("errors.Is should find the wrapped cause")
	}
}

func TestConstructors_StatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		err    *AppError
		code   string
		status int
	}{
		{"not found", NotFoundWithID("Booking", "b-1"), CodeNotFound, http.StatusNotFound},
		{"validation", Validation("bad", nil), CodeValidation, http.StatusUnprocessableEntity},
		{"invalid input", InvalidInput("bad"), CodeInvalidInput, http.StatusBadRequest},
		{"forbidden", Forbidden("no"), CodeForbidden, http.StatusForbidden},
		{"conflict", Conflict("taken"), CodeConflict, http.StatusConflict},
		{"contention", Contention("busy", time.Second), CodeContention, http.StatusConflict},
		{"rate limited", RateLimited("slow down"), CodeRateLimited, http.StatusTooManyRequests},
		{"timeout", Timeout("slow"), CodeTimeout, http.StatusGatewayTimeout},
		{"unavailable", Unavailable("Lock store"), CodeUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("code = %s, want %s", tt.err.Code, tt.code)
			}
			if tt.err.StatusCode() != tt.status {
				t.Errorf("status = %d, want %d", tt.err.StatusCode(), tt.status)
			}
		})
	}
}

func TestContention_RetryAfterRounding(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{0, time.Second},
		{150 * time.Millisecond, time.Second},
		{4200 * time.Millisecond, 5 * time.Second},
		{300 * time.Second, 300 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.in.String(), func(t *testing.T) {
			got, ok := Contention("busy", tt.in).RetryAfter()
			if !ok {
				t.Fatalf("RetryAfter() missing")
			}
			if got != tt.want {
				t.Errorf("RetryAfter() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestWithDetails_Merges(t *testing.T) {
	err := Contention("busy", 3*time.Second).WithDetails(map[string]any{"key": "booking_lock:1"})

	if err.Details["key"] != "booking_lock:1" {
		t.Errorf("expected key detail to be set")
	}
	if _, ok := err.RetryAfter(); !ok {
		t.Errorf("WithDetails should keep the retry hint")
	}
}

func TestAsAppError(t *testing.T) {
	wrapped := fmt.Errorf("service: %w", Conflict("taken"))
	if got := AsAppError(wrapped); got.Code != CodeConflict {
		t.Errorf("AsAppError should unwrap to the conflict, got %s", got.Code)
	}

	plain := errors.New("boom")
	if got := AsAppError(plain); got.Code != CodeInternal || !errors.Is(got, plain) {
		t.Errorf("AsAppError should wrap unknown errors as internal")
	}
	if IsAppError(plain) {
		t.Errorf("IsAppError(plain) = true")
	}
}

func TestWriteError_ContentionSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := WriteError(rec, Contention("Room is being booked", 2*time.Second)); err != nil {
		t.Fatalf("WriteError: %v", err)
	}

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After = %q, want %q", got, "2")
	}

	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != CodeContention {
		t.Errorf("code = %s, want %s", body.Code, CodeContention)
	}
	if body.Details[DetailRetryAfter] != float64(2) {
		t.Errorf("retryAfter detail = %v, want 2", body.Details[DetailRetryAfter])
	}
}
