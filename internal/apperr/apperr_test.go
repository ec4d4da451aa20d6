package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestInvalidTransitionDetails(t *testing.T) {
	err := InvalidTransition("pending", "paid")

	if err.Status != http.StatusConflict {
		t.Errorf("status = %d, want %d", err.Status, http.StatusConflict)
	}
	if err.Details["current"] != "pending" || err.Details["attempted"] != "paid" {
		t.Errorf("details = %v", err.Details)
	}
}

func TestIsThroughWrapping(t *testing.T) {
	base := NotFound("milestone", errors.New("record not found"))
	wrapped := fmt.Errorf("load: %w", base)

	if !Is(wrapped, CodeNotFound) {
		t.Fatalf("Is(wrapped, not_found) = false")
	}
	if Is(wrapped, CodeConflict) {
		t.Fatalf("Is(wrapped, conflict) = true")
	}
	if Is(errors.New("plain"), CodeNotFound) {
		t.Fatalf("plain error matched an app error code")
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want bool
	}{
		{"gateway timeout", GatewayTimeout("gateway slow", nil), true},
		{"conflict", Conflict("lost race"), true},
		{"forbidden", Forbidden("nope"), false},
		{"validation", Validation("empty"), false},
		{"auth", Auth("bad token", nil), false},
		{"payment failed", PaymentFailed("bad signature"), true},
		{"gateway error", BadGateway("rejected", nil), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Retryable(); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
