// Package task builds, per frame, a directed acyclic graph of work
// from each task's declared row reads/writes/table modifications, and
// executes it across a worker pool while preserving the data-
// dependency ordering those declarations imply.
package task

import (
	"github.com/benbjohnson/clock"

	"github.com/nmxmxh/dof-engine/engine/store"
)

// Pinning constrains which worker a task may run on.
type Pinning uint8

const (
	// Default lets the task run on any worker.
	Default Pinning = iota
	// MainThread forces the task onto the goroutine that calls
	// Graph.Execute.
	MainThread
	// Synchronous serializes the task against every other task: it
	// happens after everything submitted before it and before
	// everything submitted after it.
	Synchronous
)

// AppTaskConfig describes how a task's callback is replayed over a
// work range. The executor invokes the callback once per batch with
// [begin, end) indices into [0, WorkItemCount). A zero WorkItemCount
// skips the task entirely.
type AppTaskConfig struct {
	WorkItemCount int
	BatchSize     int
}

// Args is what a task callback receives for one invocation.
type Args struct {
	Begin       int
	End         int
	ThreadIndex int
	ThreadLocal any
}

type access struct {
	table uint32
	row   store.TypeID
}

type node struct {
	name     string
	pinning  Pinning
	config   *AppTaskConfig
	callback func(Args)

	parents  []*node
	children []*node

	indegree int // recomputed at execution time
}

// TaskBuilder accumulates one task's declared dependencies between
// NewTask and Submit. Obtain row handles with the package-level
// ReadColumn/WriteColumn/ReadShared/TableModifier functions, which
// both declare the access and return the handle in one call — this is
// the "Declare" phase of the three-phase construction protocol.
type TaskBuilder struct {
	graph   *Graph
	n       *node
	reads   map[access]struct{}
	writes  map[access]struct{}
	modify  map[uint32]struct{}
}

// NewTask begins the three-phase construction of a task named name.
func (g *Graph) NewTask(name string) *TaskBuilder {
	return &TaskBuilder{
		graph:  g,
		n:      &node{name: name},
		reads:  make(map[access]struct{}),
		writes: make(map[access]struct{}),
		modify: make(map[uint32]struct{}),
	}
}

// Pin sets the task's pinning mode. Default if never called.
func (t *TaskBuilder) Pin(p Pinning) *TaskBuilder {
	t.n.pinning = p
	return t
}

// Config attaches batching configuration to the task.
func (t *TaskBuilder) Config(c AppTaskConfig) *TaskBuilder {
	t.n.config = &c
	return t
}

// SetCallback is phase two: the task provides the function that will
// run once the DAG schedules it. The callback should only touch
// handles obtained from this same TaskBuilder during phase one.
func (t *TaskBuilder) SetCallback(fn func(Args)) *TaskBuilder {
	t.n.callback = fn
	return t
}

func (t *TaskBuilder) declareRead(tbl *store.Table, id store.TypeID) {
	t.reads[access{table: tbl.Index, row: id}] = struct{}{}
}

func (t *TaskBuilder) declareWrite(tbl *store.Table, id store.TypeID) {
	t.writes[access{table: tbl.Index, row: id}] = struct{}{}
}

func (t *TaskBuilder) declareModify(tbl *store.Table) {
	t.modify[tbl.Index] = struct{}{}
}

// ReadColumn declares a read of row T on table and returns its typed
// column, if the table carries that row.
func ReadColumn[T any](t *TaskBuilder, table *store.Table) (*store.Column[T], bool) {
	t.declareRead(table, store.TypeIDOf[T]())
	return store.GetColumn[T](table)
}

// WriteColumn declares a write of row T on table and returns its
// typed column, if the table carries that row.
func WriteColumn[T any](t *TaskBuilder, table *store.Table) (*store.Column[T], bool) {
	t.declareWrite(table, store.TypeIDOf[T]())
	return store.GetColumn[T](table)
}

// ReadShared declares a read of table's shared singleton of type T.
func ReadShared[T any](t *TaskBuilder, table *store.Table) (*T, bool) {
	t.declareRead(table, store.TypeIDOf[T]())
	return store.GetShared[T](table)
}

// TableModifier declares a structural modification of table and
// returns the modifier handle.
func TableModifier(t *TaskBuilder, table *store.Table, db *store.Database) *store.Modifier {
	t.declareModify(table)
	return db.Modifier(table)
}

// DurationReporter receives each task callback's wall-clock duration
// in seconds, typically backed by engine/metrics's TaskDuration
// histogram.
type DurationReporter interface {
	Observe(v float64)
}

// Graph is the per-frame DAG under construction. Build one fresh each
// frame; its internal bookkeeping (who last wrote/read/modified which
// table) only makes sense for tasks submitted within the same Graph.
type Graph struct {
	nodes []*node

	rowWriter    map[access]*node
	rowReaders   map[access][]*node
	tableReaders map[uint32]map[*node]struct{}
	tableWriters map[uint32]map[*node]struct{}
	tableModifier map[uint32]*node

	sinceLastSync   []*node
	lastSynchronous *node

	// Clock is the time source Execute uses to measure each task
	// callback's duration; real wall-clock time in production,
	// clock.NewMock() in tests that need deterministic durations.
	Clock clock.Clock
	// Duration, if set, observes each task callback's wall-clock
	// duration in seconds as it completes.
	Duration DurationReporter
}

// NewGraph returns an empty task graph with a real wall-clock time
// source; swap Clock for a clock.NewMock() in a test that wants
// deterministic durations.
func NewGraph() *Graph {
	return &Graph{
		rowWriter:     make(map[access]*node),
		rowReaders:    make(map[access][]*node),
		tableReaders:  make(map[uint32]map[*node]struct{}),
		tableWriters:  make(map[uint32]map[*node]struct{}),
		tableModifier: make(map[uint32]*node),
		Clock:         clock.New(),
	}
}

func addEdge(parent, child *node) {
	if parent == nil || parent == child {
		return
	}
	for _, c := range parent.children {
		if c == child {
			return // edge already present
		}
	}
	parent.children = append(parent.children, child)
	child.parents = append(child.parents, parent)
}

// Submit is phase three: reduce the declared access sets (a modify
// subsumes write+read on that table; a write subsumes read on that
// (table,row)) and wire the node into the DAG per the happens-before
// rules in §4.2/§5.
func (g *Graph) Submit(t *TaskBuilder) {
	n := t.n

	// Reduction: writes/reads on a modified table are dropped.
	for tbl := range t.modify {
		for a := range t.writes {
			if a.table == tbl {
				delete(t.writes, a)
			}
		}
		for a := range t.reads {
			if a.table == tbl {
				delete(t.reads, a)
			}
		}
	}
	// Reduction: reads already covered by a write on the same row are
	// dropped.
	for a := range t.writes {
		delete(t.reads, a)
	}

	g.nodes = append(g.nodes, n)

	// Synchronous barrier ordering, independent of declared access.
	if g.lastSynchronous != nil {
		addEdge(g.lastSynchronous, n)
	}
	if n.pinning == Synchronous {
		for _, prior := range g.sinceLastSync {
			addEdge(prior, n)
		}
		g.lastSynchronous = n
		g.sinceLastSync = g.sinceLastSync[:0]
	} else {
		g.sinceLastSync = append(g.sinceLastSync, n)
	}

	// Modifiers: wait for all outstanding readers, writers and the
	// prior modifier of each modified table; then become the new
	// prior modifier and clear outstanding access on that table.
	for tbl := range t.modify {
		for r := range g.tableReaders[tbl] {
			addEdge(r, n)
		}
		for w := range g.tableWriters[tbl] {
			addEdge(w, n)
		}
		addEdge(g.tableModifier[tbl], n)

		g.tableModifier[tbl] = n
		delete(g.tableReaders, tbl)
		delete(g.tableWriters, tbl)
		for a := range g.rowWriter {
			if a.table == tbl {
				delete(g.rowWriter, a)
			}
		}
		for a := range g.rowReaders {
			if a.table == tbl {
				delete(g.rowReaders, a)
			}
		}
	}

	// Writers: wait for the prior writer and all outstanding readers of
	// the same (table,row), and the prior modifier of the table (§5:
	// "A writer ... happens-after ... the prior table modifier of T").
	for a := range t.writes {
		addEdge(g.rowWriter[a], n)
		for _, r := range g.rowReaders[a] {
			addEdge(r, n)
		}
		addEdge(g.tableModifier[a.table], n)
		g.rowWriter[a] = n
		g.rowReaders[a] = nil

		if g.tableWriters[a.table] == nil {
			g.tableWriters[a.table] = make(map[*node]struct{})
		}
		g.tableWriters[a.table][n] = struct{}{}
	}

	// Readers: wait for the prior writer of the same row and the
	// prior modifier of the table.
	for a := range t.reads {
		addEdge(g.rowWriter[a], n)
		addEdge(g.tableModifier[a.table], n)
		g.rowReaders[a] = append(g.rowReaders[a], n)

		if g.tableReaders[a.table] == nil {
			g.tableReaders[a.table] = make(map[*node]struct{})
		}
		g.tableReaders[a.table][n] = struct{}{}
	}
}
