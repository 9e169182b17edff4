package envutil

import (
	"testing"
	"time"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("CR_INT", "42")
	t.Setenv("CR_BAD_INT", "x")
	t.Setenv("CR_BOOL", "yes")
	t.Setenv("CR_DUR", "90")
	t.Setenv("CR_DUR2", "1m")
	t.Setenv("CR_STR", "  hello ")

	if got := Int("CR_INT", 1); got != 42 {
		t.Fatalf("Int: want=42 got=%d", got)
	}
	if got := Int("CR_BAD_INT", 7); got != 7 {
		t.Fatalf("Int fallback: want=7 got=%d", got)
	}
	if !Bool("CR_BOOL", false) {
		t.Fatalf("Bool: want=true")
	}
	if got := Duration("CR_DUR", 0); got != 90*time.Second {
		t.Fatalf("Duration secs: want=90s got=%s", got)
	}
	if got := Duration("CR_DUR2", 0); got != time.Minute {
		t.Fatalf("Duration string: want=1m got=%s", got)
	}
	if got := String("CR_STR", "def"); got != "hello" {
		t.Fatalf("String: want=hello got=%q", got)
	}
	if got := String("CR_MISSING", "def"); got != "def" {
		t.Fatalf("String default: want=def got=%q", got)
	}
}
