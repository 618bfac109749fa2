package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"Plain error is internal", errors.New("boom"), Internal},
		{"Direct validation", Invalid("bad"), Validation},
		{"Wrapped not found", fmt.Errorf("loading: %w", Missing("Channel not found")), NotFound},
		{"Wrapped internal", Wrap(errors.New("db down")), Internal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Errorf("KindOf() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMessageOfHidesInternalDetail(t *testing.T) {
	err := Wrap(errors.New("dial tcp 10.0.0.1:3306: connection refused"))
	if got := MessageOf(err); got != "Internal server error" {
		t.Errorf("MessageOf() = %q", got)
	}
	if got := MessageOf(Forbidden("Only the author can edit this message")); got != "Only the author can edit this message" {
		t.Errorf("MessageOf() = %q", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	want := map[Kind]int{
		Validation:     http.StatusBadRequest,
		Authentication: http.StatusUnauthorized,
		Authorization:  http.StatusForbidden,
		NotFound:       http.StatusNotFound,
		Conflict:       http.StatusConflict,
		Internal:       http.StatusInternalServerError,
	}
	for kind, status := range want {
		if got := HTTPStatus(kind); got != status {
			t.Errorf("HTTPStatus(%v) = %d, want %d", kind, got, status)
		}
	}
}
