package task

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nmxmxh/dof-engine/engine/store"
)

type velX float64
type posXT float64

func TestWriterWaitsForReaders(t *testing.T) {
	db := store.NewDatabase()
	table := db.CreateTable(store.StableIDRow(), store.PerElementRow[posXT](), store.PerElementRow[velX]())
	db.Modifier(table).Append(1)

	g := NewGraph()
	var order []string
	var mu sync.Mutex
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	reader := g.NewTask("read-pos")
	ReadColumn[posXT](reader, table)
	reader.SetCallback(func(Args) { record("read") })
	g.Submit(reader)

	writer := g.NewTask("write-pos")
	WriteColumn[posXT](writer, table)
	writer.SetCallback(func(Args) { record("write") })
	g.Submit(writer)

	if err := g.Execute(context.Background(), 2); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if len(order) != 2 || order[0] != "read" || order[1] != "write" {
		t.Fatalf("expected [read write], got %v", order)
	}
}

func TestIndependentReadersRunConcurrently(t *testing.T) {
	db := store.NewDatabase()
	table := db.CreateTable(store.StableIDRow(), store.PerElementRow[posXT]())
	db.Modifier(table).Append(1)

	g := NewGraph()
	var count int32
	var mu sync.Mutex
	for i := 0; i < 4; i++ {
		tb := g.NewTask("reader")
		ReadColumn[posXT](tb, table)
		tb.SetCallback(func(Args) {
			mu.Lock()
			count++
			mu.Unlock()
		})
		g.Submit(tb)
	}

	if err := g.Execute(context.Background(), 4); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if count != 4 {
		t.Fatalf("expected all 4 readers to run, got %d", count)
	}
	for _, n := range g.nodes {
		if len(n.parents) != 0 {
			t.Fatalf("expected independent readers to have no ordering edges, %q has %d parents", n.name, len(n.parents))
		}
	}
}

func TestModifierWaitsForPriorWriteAndBlocksNextRead(t *testing.T) {
	db := store.NewDatabase()
	table := db.CreateTable(store.StableIDRow(), store.PerElementRow[posXT]())
	db.Modifier(table).Append(1)

	g := NewGraph()
	var order []string

	writer := g.NewTask("writer")
	WriteColumn[posXT](writer, table)
	writer.SetCallback(func(Args) { order = append(order, "write") })
	g.Submit(writer)

	modifier := g.NewTask("modifier")
	TableModifier(modifier, table, db)
	modifier.SetCallback(func(Args) { order = append(order, "modify") })
	g.Submit(modifier)

	reader := g.NewTask("reader")
	ReadColumn[posXT](reader, table)
	reader.SetCallback(func(Args) { order = append(order, "read") })
	g.Submit(reader)

	if err := g.Execute(context.Background(), 1); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if len(order) != 3 || order[0] != "write" || order[1] != "modify" || order[2] != "read" {
		t.Fatalf("expected [write modify read], got %v", order)
	}
}

func TestModifierThenWriterOrdering(t *testing.T) {
	db := store.NewDatabase()
	table := db.CreateTable(store.StableIDRow(), store.PerElementRow[posXT]())
	db.Modifier(table).Append(1)

	g := NewGraph()
	var order []string

	modifier := g.NewTask("modifier")
	TableModifier(modifier, table, db)
	modifier.SetCallback(func(Args) { order = append(order, "modify") })
	g.Submit(modifier)

	writer := g.NewTask("writer")
	WriteColumn[posXT](writer, table)
	writer.SetCallback(func(Args) { order = append(order, "write") })
	g.Submit(writer)

	if err := g.Execute(context.Background(), 1); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if len(order) != 2 || order[0] != "modify" || order[1] != "write" {
		t.Fatalf("expected a write after a modifier to wait for it (§5), got %v", order)
	}
}

func TestSynchronousTaskIsAFullBarrier(t *testing.T) {
	db := store.NewDatabase()
	tableA := db.CreateTable(store.StableIDRow(), store.PerElementRow[posXT]())
	tableB := db.CreateTable(store.StableIDRow(), store.PerElementRow[velX]())
	db.Modifier(tableA).Append(1)
	db.Modifier(tableB).Append(1)

	g := NewGraph()
	var order []string
	var mu sync.Mutex
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}

	a := g.NewTask("a")
	ReadColumn[posXT](a, tableA)
	a.SetCallback(func(Args) { record("a") })
	g.Submit(a)

	b := g.NewTask("b")
	ReadColumn[velX](b, tableB)
	b.SetCallback(func(Args) { record("b") })
	g.Submit(b)

	barrier := g.NewTask("barrier")
	barrier.Pin(Synchronous)
	barrier.SetCallback(func(Args) { record("barrier") })
	g.Submit(barrier)

	after := g.NewTask("after")
	after.SetCallback(func(Args) { record("after") })
	g.Submit(after)

	if err := g.Execute(context.Background(), 4); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if len(order) != 4 {
		t.Fatalf("expected 4 entries, got %v", order)
	}
	if order[2] != "barrier" || order[3] != "after" {
		t.Fatalf("expected barrier before after, got %v", order)
	}
}

func TestZeroWorkItemCountSkipsTask(t *testing.T) {
	g := NewGraph()
	ran := false
	tb := g.NewTask("skipped")
	tb.Config(AppTaskConfig{WorkItemCount: 0, BatchSize: 1})
	tb.SetCallback(func(Args) { ran = true })
	g.Submit(tb)

	if err := g.Execute(context.Background(), 1); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if ran {
		t.Fatal("expected zero-work-item task to be skipped")
	}
}

func TestBatchedTaskCoversEntireRange(t *testing.T) {
	g := NewGraph()
	var mu sync.Mutex
	seen := make([]bool, 10)

	tb := g.NewTask("batched")
	tb.Config(AppTaskConfig{WorkItemCount: 10, BatchSize: 3})
	tb.SetCallback(func(a Args) {
		mu.Lock()
		defer mu.Unlock()
		for i := a.Begin; i < a.End; i++ {
			seen[i] = true
		}
	})
	g.Submit(tb)

	if err := g.Execute(context.Background(), 4); err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	for i, ok := range seen {
		if !ok {
			t.Fatalf("index %d never covered by any batch", i)
		}
	}
}

func TestPanicInCallbackIsFatal(t *testing.T) {
	g := NewGraph()
	tb := g.NewTask("boom")
	tb.SetCallback(func(Args) { panic("kaboom") })
	g.Submit(tb)

	if err := g.Execute(context.Background(), 1); err == nil {
		t.Fatal("expected panic to surface as an error")
	}
}

type recordedDurations struct {
	mu   sync.Mutex
	vals []float64
}

func (r *recordedDurations) Observe(v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vals = append(r.vals, v)
}

func TestExecuteReportsTaskDuration(t *testing.T) {
	g := NewGraph()
	mock := clock.NewMock()
	g.Clock = mock
	reporter := &recordedDurations{}
	g.Duration = reporter

	tb := g.NewTask("slow")
	tb.SetCallback(func(Args) { mock.Add(5 * time.Millisecond) })
	g.Submit(tb)

	if err := g.Execute(context.Background(), 1); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	reporter.mu.Lock()
	defer reporter.mu.Unlock()
	if len(reporter.vals) != 1 {
		t.Fatalf("expected exactly one duration report, got %d", len(reporter.vals))
	}
	if reporter.vals[0] != 0.005 {
		t.Fatalf("expected a 5ms duration, got %v seconds", reporter.vals[0])
	}
}
