package simerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf_WrappedSentinels(t *testing.T) {
	specific := fmt.Errorf("%w: amount must be positive", ErrValidation)
	wrapped := fmt.Errorf("quoting buy: %w", specific)

	if got := KindOf(wrapped); got != "validation" {
		t.Errorf("expected validation, got %s", got)
	}
	if !errors.Is(wrapped, specific) {
		t.Error("expected wrapped error to match the specific sentinel")
	}
	if got := KindOf(errors.New("boom")); got != "unknown" {
		t.Errorf("expected unknown, got %s", got)
	}
	if got := KindOf(nil); got != "" {
		t.Errorf("expected empty kind for nil, got %s", got)
	}
}

func TestRecoverable(t *testing.T) {
	if Recoverable(fmt.Errorf("x: %w", ErrValidation)) {
		t.Error("validation errors must surface to the caller")
	}
	for _, kind := range []error{ErrCapacity, ErrCollaborator, ErrInvariant} {
		if !Recoverable(fmt.Errorf("x: %w", kind)) {
			t.Errorf("expected %v to be recoverable", kind)
		}
	}
}
