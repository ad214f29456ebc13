package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestFromUnwrapsChain(t *testing.T) {
	base := New(http.StatusNotFound, "ACTION_NOT_FOUND", errors.New("no such row"))
	wrapped := fmt.Errorf("load action: %w", base)

	ae, ok := From(wrapped)
	if !ok {
		t.Fatalf("expected to find the api error in the chain")
	}
	if ae.Status != http.StatusNotFound || ae.Code != "ACTION_NOT_FOUND" {
		t.Fatalf("got status=%d code=%q", ae.Status, ae.Code)
	}

	if _, ok := From(errors.New("plain")); ok {
		t.Fatalf("plain errors carry no api error")
	}
}

func TestErrorMessageFallbacks(t *testing.T) {
	cases := []struct {
		name string
		err  *Error
		want string
	}{
		{"wrapped error wins", New(400, "INVALID_MATERIAL", errors.New("unknown material")), "unknown material"},
		{"code when no cause", &Error{Status: 409, Code: "EMAIL_TAKEN"}, "EMAIL_TAKEN"},
		{"status when nothing else", &Error{Status: 500}, "api error (500)"},
		{"bare", &Error{}, "api error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.err.Error(); got != tc.want {
				t.Fatalf("Error() = %q, want %q", got, tc.want)
			}
		})
	}
}
