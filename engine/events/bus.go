// Package events implements the deferred create/destroy/move command
// bus: tasks push commands during a frame instead of mutating tables
// directly, and a single synchronous barrier drains and applies them,
// so structural changes never race with the frame's parallel reads
// and writes. The queue shape (push under a mutex, drain the whole
// backlog, count what got dropped) is the same one the mesh event
// stream uses for its ring buffer, simplified here to a capacity-
// bounded slice since the bus has no cross-process wire format to
// honor.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/nmxmxh/dof-engine/engine/ids"
	"github.com/nmxmxh/dof-engine/engine/store"
)

// Kind is the command taxonomy from §4.7.
type Kind uint8

const (
	Create Kind = iota
	Destroy
	Move
)

// Command is one deferred structural change. For Create, Ref is the
// pre-reserved key from Database.CreateKey (the "sentinel monostate in
// source" is represented by the caller simply not having resolved Ref
// to anywhere yet); for Destroy, Dest is unused; for Move, both Ref
// and Dest are meaningful.
type Command struct {
	Kind Kind
	Ref  ids.StableRef
	Dest uint32 // destination table index, for Create and Move
}

// NewCreate builds a command that attaches ref (from
// Database.CreateKey) to table dest once the bus drains.
func NewCreate(ref ids.StableRef, dest uint32) Command {
	return Command{Kind: Create, Ref: ref, Dest: dest}
}

// NewDestroy builds a command that removes ref's element once the bus
// drains.
func NewDestroy(ref ids.StableRef) Command {
	return Command{Kind: Destroy, Ref: ref}
}

// NewMove builds a command that migrates ref's element into table
// dest once the bus drains.
func NewMove(ref ids.StableRef, dest uint32) Command {
	return Command{Kind: Move, Ref: ref, Dest: dest}
}

// Bus collects commands pushed from any number of concurrent tasks
// during a frame. Capacity 0 means unbounded.
type Bus struct {
	mu       sync.Mutex
	commands []Command
	capacity int
	dropped  uint64
}

// NewBus returns an empty bus. capacity <= 0 means unbounded.
func NewBus(capacity int) *Bus {
	return &Bus{capacity: capacity}
}

// Push enqueues cmd. If the bus is at capacity the command is dropped
// and the drop counter is incremented rather than blocking — a full
// event bus should never stall the frame it was meant to decouple.
func (b *Bus) Push(cmd Command) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.capacity > 0 && len(b.commands) >= b.capacity {
		atomic.AddUint64(&b.dropped, 1)
		return
	}
	b.commands = append(b.commands, cmd)
}

// Dropped reports how many pushes were dropped due to capacity.
func (b *Bus) Dropped() uint64 {
	return atomic.LoadUint64(&b.dropped)
}

// Drain removes and returns every currently queued command.
func (b *Bus) Drain() []Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	cmds := b.commands
	b.commands = nil
	return cmds
}

// Apply drains b and applies every command against db. Creates,
// destroys and moves are not ordered relative to one another; instead
// each command re-resolves its reference immediately before acting,
// so a command whose source has already gone stale (because an
// earlier command in the same drain destroyed or moved it out from
// under it) is silently dropped — per §4.7, "the resolver re-fetches
// each step and drops commands whose source refs have become
// invalid."
func Apply(db *store.Database, b *Bus) {
	for _, cmd := range b.Drain() {
		switch cmd.Kind {
		case Create:
			dest := db.Table(cmd.Dest)
			if dest == nil {
				continue
			}
			db.Modifier(dest).AppendWithRef(cmd.Ref)

		case Destroy:
			tbl, row, ok := db.Resolve(cmd.Ref)
			if !ok {
				continue
			}
			db.Modifier(tbl).SwapRemove(row)

		case Move:
			tbl, row, ok := db.Resolve(cmd.Ref)
			if !ok {
				continue
			}
			dest := db.Table(cmd.Dest)
			if dest == nil || dest == tbl {
				continue
			}
			db.Modifier(tbl).MigrateOne(row, dest)
		}
	}
}
