package ctxutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestDefaultNil(t *testing.T) {
	var ctx context.Context
	if Default(ctx) == nil {
		t.Fatalf("Default(nil) returned nil")
	}
}

func TestLogFields(t *testing.T) {
	ctx := context.Background()
	if got := LogFields(ctx); len(got) != 0 {
		t.Fatalf("empty ctx fields: want=0 got=%v", got)
	}

	id := uuid.New()
	ctx = WithTraceData(ctx, &TraceData{TraceID: "t1", RequestID: "r1"})
	ctx = WithRunID(ctx, id)
	got := LogFields(ctx)
	want := []interface{}{"trace_id", "t1", "request_id", "r1", "run_id", id.String()}
	if len(got) != len(want) {
		t.Fatalf("fields: want=%v got=%v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("field %d: want=%v got=%v", i, want[i], got[i])
		}
	}
	if RequestID(ctx) != "r1" {
		t.Fatalf("request id: want=r1 got=%q", RequestID(ctx))
	}
}

func TestRunIDNilIsAbsent(t *testing.T) {
	ctx := WithRunID(context.Background(), uuid.Nil)
	if _, ok := RunID(ctx); ok {
		t.Fatalf("nil run id should be reported absent")
	}
}
