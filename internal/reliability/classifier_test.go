package reliability

import (
	"testing"
	"time"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		if !IsRetryableHTTPStatus(code) {
			t.Fatalf("IsRetryableHTTPStatus(%d) = false, want true", code)
		}
	}
	for _, code := range []int{200, 201, 400, 401, 403, 404, 422} {
		if IsRetryableHTTPStatus(code) {
			t.Fatalf("IsRetryableHTTPStatus(%d) = true, want false", code)
		}
	}
}

func TestExponentialBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	cap := 2 * time.Second

	if got := ExponentialBackoff(0, base, cap); got != base {
		t.Fatalf("ExponentialBackoff(0) = %v, want %v", got, base)
	}
	if got := ExponentialBackoff(1, base, cap); got != 200*time.Millisecond {
		t.Fatalf("ExponentialBackoff(1) = %v", got)
	}
	if got := ExponentialBackoff(3, base, cap); got != 800*time.Millisecond {
		t.Fatalf("ExponentialBackoff(3) = %v", got)
	}
	if got := ExponentialBackoff(20, base, cap); got != cap {
		t.Fatalf("ExponentialBackoff(20) = %v, want cap %v", got, cap)
	}
}
