package logger

import "testing"

func TestRedactorSecrets(t *testing.T) {
	r := redactor{enabled: true}
	out := r.kvs([]interface{}{"openai_api_key", "sk-123", "stage", "downloading", "dangling"})
	if len(out) != 5 {
		t.Fatalf("len: want=5 got=%d", len(out))
	}
	if out[1] != "[REDACTED]" {
		t.Fatalf("api key: want=[REDACTED] got=%v", out[1])
	}
	if out[3] != "downloading" {
		t.Fatalf("stage: want=downloading got=%v", out[3])
	}
	if out[4] != "dangling" {
		t.Fatalf("dangling key dropped: got=%v", out[4])
	}
}

func TestRedactorDisabled(t *testing.T) {
	r := redactor{}
	out := r.kvs([]interface{}{"token", "abc"})
	if out[1] != "abc" {
		t.Fatalf("disabled redaction: want=abc got=%v", out[1])
	}
}

func TestRedactorStripsURLQuery(t *testing.T) {
	r := redactor{enabled: true}
	out := r.kvs([]interface{}{"source_url", "https://cdn.example.com/a.mp4?sig=abc#t=1", "url", "https://example.com/v"})
	if out[1] != "https://cdn.example.com/a.mp4?[REDACTED]" {
		t.Fatalf("signed url: got=%v", out[1])
	}
	if out[3] != "https://example.com/v" {
		t.Fatalf("plain url: want unchanged got=%v", out[3])
	}
}

func TestHashIsStableAndSalted(t *testing.T) {
	a := redactor{enabled: true}.hash("10.0.0.1")
	b := redactor{enabled: true}.hash("10.0.0.1")
	if a != b {
		t.Fatalf("hash not stable: %q vs %q", a, b)
	}
	if c := (redactor{enabled: true, salt: "pepper"}).hash("10.0.0.1"); c == a {
		t.Fatalf("salt should change the hash")
	}
	if (redactor{}).hash("") != "" {
		t.Fatalf("empty value should hash to empty string")
	}
}

func TestNewWithOptionsRejectsBadLevel(t *testing.T) {
	if _, err := NewWithOptions(Options{Mode: "test", Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
