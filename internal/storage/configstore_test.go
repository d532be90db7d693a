package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yndnr/converge/internal/core/domain"
)

func revisionFor(seq uint64, hostname string) *domain.Revision {
	d := domain.NewDeployment()
	d.Nodes[hostname] = &domain.Node{Hostname: hostname}
	return &domain.Revision{Seq: seq, SavedAt: time.Unix(1700000000, int64(seq)), Deployment: d}
}

func TestConfigStore_Empty(t *testing.T) {
	store := NewConfigStore(newMemoryEngine(t))

	rev, err := store.LoadCurrent(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rev != nil {
		t.Errorf("expected no revision, got %+v", rev)
	}

	history, err := store.History(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 0 {
		t.Errorf("expected empty history, got %d entries", len(history))
	}
}

func TestConfigStore_AppendAndLoad(t *testing.T) {
	store := NewConfigStore(newMemoryEngine(t))
	ctx := context.Background()

	// More than nine revisions checks the history keeps numeric order.
	for seq := uint64(1); seq <= 12; seq++ {
		if err := store.Append(ctx, revisionFor(seq, "node-a")); err != nil {
			t.Fatalf("Append(%d): %v", seq, err)
		}
	}
	if err := store.Append(ctx, revisionFor(13, "node-b")); err != nil {
		t.Fatal(err)
	}

	current, err := store.LoadCurrent(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if current.Seq != 13 {
		t.Errorf("current seq = %d, want 13", current.Seq)
	}
	if _, ok := current.Deployment.Nodes["node-b"]; !ok {
		t.Errorf("current deployment = %+v", current.Deployment)
	}
	if !current.SavedAt.Equal(time.Unix(1700000000, 13)) {
		t.Errorf("SavedAt = %v", current.SavedAt)
	}

	history, err := store.History(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 13 {
		t.Fatalf("history has %d entries, want 13", len(history))
	}
	for i, rev := range history {
		if rev.Seq != uint64(i+1) {
			t.Errorf("history[%d].Seq = %d", i, rev.Seq)
		}
	}
}

func TestConfigStore_CorruptRecord(t *testing.T) {
	engine := newMemoryEngine(t)
	store := NewConfigStore(engine)
	ctx := context.Background()

	put(t, engine, keyCurrent, "short")
	if _, err := store.LoadCurrent(ctx); !errors.Is(err, domain.ErrStorage) {
		t.Errorf("short record: expected ErrStorage, got %v", err)
	}

	put(t, engine, keyCurrent, string(make([]byte, revisionHeaderSize+4)))
	if _, err := store.LoadCurrent(ctx); !errors.Is(err, domain.ErrDecode) {
		t.Errorf("bad payload: expected ErrDecode, got %v", err)
	}
}
