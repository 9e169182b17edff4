package apierr

import (
	"errors"
	"net/http"
	"testing"
)

func TestErrorUnwrapAndMessage(t *testing.T) {
	base := errors.New("boom")
	e := Unprocessable("transcribing_failed", base)
	if e.Status != http.StatusUnprocessableEntity {
		t.Fatalf("status: want=%d got=%d", http.StatusUnprocessableEntity, e.Status)
	}
	if !errors.Is(e, base) {
		t.Fatalf("errors.Is: want wrapped error reachable")
	}
	if e.Error() != "boom" {
		t.Fatalf("message: want=boom got=%q", e.Error())
	}
	if got := New(http.StatusTeapot, "", nil).Error(); got != "api error (418)" {
		t.Fatalf("status-only message: got=%q", got)
	}
	if got := NotFound("review_not_found", nil).Error(); got != "review_not_found" {
		t.Fatalf("code-only message: got=%q", got)
	}
}
