package providers

import (
	"errors"
	"testing"
)

func TestClassifyError(t *testing.T) {
	cases := map[string]ErrorType{
		"insufficient_quota":        ErrorQuota,
		"429 rate":                  ErrorRate,
		"timeout":                   ErrorTransient,
		"context deadline exceeded": ErrorTransient,
		"bad request":               ErrorPermanent,
	}
	for msg, want := range cases {
		if got := ClassifyError(errors.New(msg)); got != want {
			t.Fatalf("classify %q: got %s want %s", msg, got, want)
		}
	}
	if ClassifyError(nil) != "" {
		t.Fatal("nil error should classify to empty type")
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(ErrorRate) || !Retryable(ErrorTransient) {
		t.Fatal("rate and transient failures should be retryable")
	}
	if Retryable(ErrorQuota) || Retryable(ErrorPermanent) {
		t.Fatal("quota and permanent failures should not be retryable")
	}
}
