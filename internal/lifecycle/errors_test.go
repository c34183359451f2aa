package lifecycle

import (
	"fmt"
	"net/http"
	"testing"
)

func TestCodeOf(t *testing.T) {
	err := InvalidTransition("Booking", "CANCELLED", "CONFIRMED")
	if CodeOf(err) != CodeInvalidTransition {
		t.Errorf("expected %s, got %s", CodeInvalidTransition, CodeOf(err))
	}

	wrapped := fmt.Errorf("apply transition: %w", err)
	if CodeOf(wrapped) != CodeInvalidTransition {
		t.Error("expected CodeOf to unwrap")
	}

	if CodeOf(fmt.Errorf("plain")) != "" {
		t.Error("expected empty code for non-domain error")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{InvalidTransition("A", "X", "Y"), http.StatusConflict},
		{Unauthorized("nurse", "A", "Y"), http.StatusForbidden},
		{MissingField("reason"), http.StatusUnprocessableEntity},
		{VersionConflict(1, 2), http.StatusConflict},
		{OpenDependency("open orders"), http.StatusConflict},
		{DuplicateInvoice("abc"), http.StatusConflict},
		{NotFound("Booking", "abc"), http.StatusNotFound},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := HTTPStatus(c.err); got != c.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}
