package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorsIsByKind(t *testing.T) {
	err := fmt.Errorf("accepting: %w", Conflict("booking_conflict", "dates overlap"))

	if !errors.Is(err, ErrConflict) {
		t.Error("expected wrapped conflict to match ErrConflict")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("conflict must not match ErrNotFound")
	}
	if !errors.Is(err, &Error{Kind: KindConflict, Code: "booking_conflict"}) {
		t.Error("expected match on kind and code")
	}
	if errors.Is(err, &Error{Kind: KindConflict, Code: "duplicate_review"}) {
		t.Error("different code must not match")
	}
}

func TestKindStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{Unauthenticated("missing_token", "no token"), http.StatusUnauthorized},
		{Forbidden("not_owner", "nope"), http.StatusForbidden},
		{NotFound("item"), http.StatusNotFound},
		{Conflict("booking_conflict", "overlap"), http.StatusConflict},
		{InvalidState("already accepted"), http.StatusConflict},
		{InvariantViolation("last manager"), http.StatusConflict},
		{Unavailable(errors.New("busy")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := KindOf(tt.err).Status(); got != tt.want {
			t.Errorf("%v: status = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestNotFoundCode(t *testing.T) {
	e := NotFound("item")
	if e.Code != "item_not_found" {
		t.Errorf("expected code item_not_found, got %q", e.Code)
	}
	if e.Message != "item not found" {
		t.Errorf("unexpected message %q", e.Message)
	}
}

func TestStore(t *testing.T) {
	if Store(nil) != nil {
		t.Error("nil must stay nil")
	}

	busy := fmt.Errorf("listing items: %w", context.DeadlineExceeded)
	if KindOf(Store(busy)) != KindUnavailable {
		t.Errorf("deadline should map to unavailable, got %v", KindOf(Store(busy)))
	}

	plain := errors.New("boom")
	if KindOf(Store(plain)) != KindInternal {
		t.Error("unknown errors stay internal")
	}

	nf := NotFound("item")
	if Store(nf) != error(nf) {
		t.Error("typed errors pass through")
	}
}
