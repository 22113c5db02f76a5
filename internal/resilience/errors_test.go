package resilience

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsTransient_ExplicitWrappers(t *testing.T) {
	if !IsTransient(NewTransientError(errors.New("429"), 429)) {
		t.Error("TransientError should be transient")
	}
	if IsTransient(NewPermanentError(errors.New("401"), 401)) {
		t.Error("PermanentError should not be transient")
	}
	if IsTransient(nil) {
		t.Error("nil should not be transient")
	}
}

func TestIsTransient_WrappedChain(t *testing.T) {
	err := fmt.Errorf("query executor: %w", NewTransientError(errors.New("overloaded"), 529))
	if !IsTransient(err) {
		t.Error("wrapped TransientError should be transient")
	}
}

func TestIsTransient_NetworkPatterns(t *testing.T) {
	if !IsTransient(errors.New("read tcp: connection reset by peer")) {
		t.Error("connection reset should be transient")
	}
	if IsTransient(errors.New("model not found")) {
		t.Error("arbitrary error should not be transient")
	}
}

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{408, true},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
		{400, false},
		{401, false},
		{403, false},
		{404, false},
		{422, false},
	}
	for _, tt := range tests {
		err := ClassifyHTTPStatus(errors.New("boom"), tt.status)
		if got := IsTransient(err); got != tt.transient {
			t.Errorf("status %d: transient=%v, want %v", tt.status, got, tt.transient)
		}
		if got := IsPermanent(err); got == tt.transient {
			t.Errorf("status %d: permanent=%v inconsistent", tt.status, got)
		}
	}
	if ClassifyHTTPStatus(nil, 500) != nil {
		t.Error("nil error should classify to nil")
	}
}
