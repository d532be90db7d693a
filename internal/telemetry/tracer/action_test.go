package tracer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/yndnr/converge/internal/core/domain"
	"github.com/yndnr/converge/internal/telemetry/logger"
)

// syncBuffer lets concurrent actions write to one log buffer.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) entries(t *testing.T) []map[string]any {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(b.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func newTestLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

// recordSpans installs a provider that records ended spans and restores
// the previous one when the test ends.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	providerMu.RLock()
	prev := provider
	providerMu.RUnlock()
	prevGlobal := otel.GetTracerProvider()

	rec := tracetest.NewSpanRecorder()
	p := New("converge-test", sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() {
		p.Shutdown(context.Background())
		providerMu.Lock()
		provider = prev
		providerMu.Unlock()
		otel.SetTracerProvider(prevGlobal)
	})
	return rec
}

func TestStartAction_LogsLifecycle(t *testing.T) {
	l, buf := newTestLogger()

	a := StartAction(context.Background(), l, "control:broadcast")
	a.Finish(nil)
	a.Finish(errors.New("ignored"))

	entries := buf.entries(t)
	if len(entries) != 2 {
		t.Fatalf("got %d log entries, want 2", len(entries))
	}
	if entries[0]["action_status"] != StatusStarted || entries[1]["action_status"] != StatusSucceeded {
		t.Errorf("statuses = %v, %v", entries[0]["action_status"], entries[1]["action_status"])
	}
	sc := a.SpanContext()
	for _, e := range entries {
		if e["trace_id"] != sc.TraceID().String() || e["span_id"] != sc.SpanID().String() || e["action_type"] != "control:broadcast" {
			t.Errorf("unexpected attributes: %v", e)
		}
		if _, ok := e["parent_span_id"]; ok {
			t.Errorf("root action logged a parent: %v", e)
		}
	}
	if a.Parent().IsValid() {
		t.Error("root action should have no parent")
	}
}

func TestFinish_Failure(t *testing.T) {
	rec := recordSpans(t)
	l, buf := newTestLogger()

	a := StartAction(context.Background(), l, "op")
	a.Finish(errors.New("boom"))

	entries := buf.entries(t)
	last := entries[len(entries)-1]
	if last["action_status"] != StatusFailed || last["error"] != "boom" {
		t.Errorf("last entry = %v", last)
	}

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("got %d ended spans, want 1", len(ended))
	}
	if ended[0].Status().Code != codes.Error || ended[0].Status().Description != "boom" {
		t.Errorf("span status = %+v", ended[0].Status())
	}
}

func TestChild_Parents(t *testing.T) {
	l, _ := newTestLogger()

	root := StartAction(context.Background(), l, "root")
	c1 := root.Child("first")
	c2 := root.Child("second")
	gc := c2.Child("grandchild")

	if c1.Parent().SpanID() != root.SpanContext().SpanID() {
		t.Error("c1 should be a child of root")
	}
	if c2.Parent().SpanID() != root.SpanContext().SpanID() {
		t.Error("c2 should be a child of root")
	}
	if gc.Parent().SpanID() != c2.SpanContext().SpanID() {
		t.Error("grandchild should be a child of c2")
	}
	if c1.SpanContext().SpanID() == c2.SpanContext().SpanID() {
		t.Error("siblings must have distinct span ids")
	}
	for _, a := range []*Action{c1, c2, gc} {
		if a.TraceID() != root.TraceID() {
			t.Errorf("child trace %s, want %s", a.TraceID(), root.TraceID())
		}
	}
}

// ============================================================================
// Cross-process continuation
// ============================================================================

func TestSerializeAndContinue(t *testing.T) {
	rec := recordSpans(t)
	senderLog, _ := newTestLogger()
	receiverLog, receiverBuf := newTestLogger()

	sender := StartAction(context.Background(), senderLog, "agent:send")
	serialized := sender.Serialize()

	sc := sender.SpanContext()
	want := "00-" + sc.TraceID().String() + "-" + sc.SpanID().String() + "-01"
	if serialized != want {
		t.Fatalf("Serialize() = %q, want %q", serialized, want)
	}

	resumed, err := Continue(receiverLog, serialized, "control:remote")
	if err != nil {
		t.Fatalf("Continue: %v", err)
	}
	work := resumed.Child("handler-work")
	work.Finish(nil)
	resumed.Finish(nil)
	sender.Finish(nil)

	if resumed.TraceID() != sender.TraceID() {
		t.Fatalf("resumed trace = %q, want %q", resumed.TraceID(), sender.TraceID())
	}
	if !resumed.Parent().IsRemote() || resumed.Parent().SpanID() != sc.SpanID() {
		t.Errorf("resumed parent = %v, want remote %v", resumed.Parent().SpanID(), sc.SpanID())
	}

	// The SDK sees the same tree: handler work below the resumed span,
	// the resumed span below the sender's span.
	parents := make(map[string]string)
	for _, s := range rec.Ended() {
		parents[s.Name()] = s.Parent().SpanID().String()
	}
	if parents["control:remote"] != sc.SpanID().String() {
		t.Errorf("control:remote parent = %s, want %s", parents["control:remote"], sc.SpanID())
	}
	if parents["handler-work"] != resumed.SpanContext().SpanID().String() {
		t.Errorf("handler-work parent = %s, want %s", parents["handler-work"], resumed.SpanContext().SpanID())
	}

	for _, e := range receiverBuf.entries(t) {
		if e["trace_id"] != sender.TraceID() {
			t.Errorf("receiver entry logged under trace %v", e["trace_id"])
		}
	}
}

func TestContinue_Invalid(t *testing.T) {
	for _, in := range []string{
		"",
		"garbage",
		"00-00000000000000000000000000000000-0000000000000000-01",
		"00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7",
		"zz-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
	} {
		t.Run(in, func(t *testing.T) {
			if _, err := Continue(nil, in, "op"); !errors.Is(err, domain.ErrTraceContextInvalid) {
				t.Errorf("Continue(%q) error = %v, want ErrTraceContextInvalid", in, err)
			}
		})
	}
}

func TestContext(t *testing.T) {
	l, _ := newTestLogger()
	ctx := context.Background()

	if FromContext(ctx) != nil {
		t.Fatal("empty context should carry no action")
	}

	root := StartAction(ctx, l, "root")
	ctx = WithAction(ctx, root)
	if FromContext(ctx) != root {
		t.Fatal("FromContext should return the stored action")
	}
	if logger.TraceIDFromContext(ctx) != root.TraceID() {
		t.Error("logger trace id should be the otel trace id")
	}

	child := StartAction(ctx, l, "child")
	if child.TraceID() != root.TraceID() || child.Parent().SpanID() != root.SpanContext().SpanID() {
		t.Errorf("StartAction should create a child of root")
	}
}
