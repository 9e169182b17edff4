package promptstyle

import (
	"strings"
	"testing"
)

func TestApplySystem(t *testing.T) {
	if got := ApplySystem("   ", ModeJSON); got != "" {
		t.Fatalf("blank: want empty got=%q", got)
	}
	out := ApplySystem("Find harmful passages.", ModeJSON)
	if !strings.HasPrefix(out, Header) {
		t.Fatalf("missing header: %q", out)
	}
	if !strings.Contains(out, "matching the schema") {
		t.Fatalf("json mode guidance missing")
	}
	if !strings.HasSuffix(out, "\n\nFind harmful passages.") {
		t.Fatalf("original prompt must come last: %q", out)
	}
	if again := ApplySystem(out, ModeJSON); again != out {
		t.Fatalf("ApplySystem must be idempotent")
	}
	if strings.Contains(ApplySystem("x", ModeText), "schema") {
		t.Fatalf("text mode must not mention schema")
	}
}
