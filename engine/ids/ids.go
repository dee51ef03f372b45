// Package ids implements the stable-reference arena described in the
// table store: a slot key plus generation that survives swap-remove
// and cross-table migration, resolved through a single central
// mapping table to the element's current (table, row) location.
package ids

import "sync"

// Unpacked is the transient (table, row) location of an element. It is
// only valid until the next structural change to that table; callers
// must re-resolve a StableRef after any append/swap-remove/migrate on
// the tables involved.
type Unpacked struct {
	Table uint32
	Row   uint32
}

// NoTable is the sentinel table index used for a stable reference that
// has been reserved (via Mapping.Create with this location) but not
// yet attached to any element — e.g. Database.CreateKey, before a
// resize_with_ids-style append attaches it. Resolving such a reference
// succeeds at the Mapping level but any caller that turns the result
// into a real table lookup will find nothing at this index.
const NoTable uint32 = ^uint32(0)

// StableRef identifies an element across arbitrary reordering or
// migration between tables. Two references are equal only when both
// fields match; Generation is bumped on destruction so a reused Key
// does not collide with a still-held dangling reference.
type StableRef struct {
	Key        uint32
	Generation uint32
}

// IsValid reports whether r was ever allocated (the zero value is not
// a valid reference; Mapping never hands out key 0 with generation 0
// together — see NewMapping).
func (r StableRef) IsValid() bool {
	return r != StableRef{}
}

type slot struct {
	location   Unpacked
	generation uint32
	occupied   bool
}

// Mapping is the process-wide arena backing stable references. It is
// the single source of truth for "where does this element currently
// live" — the table store calls Update whenever a structural
// operation moves an element, and physics/task code calls Resolve to
// re-fetch a location it no longer trusts.
type Mapping struct {
	mu       sync.RWMutex
	slots    []slot
	freeList []uint32
}

// NewMapping returns an empty arena. Slot 0 is reserved so the zero
// StableRef never resolves, matching StableRef's zero-value sentinel.
func NewMapping() *Mapping {
	m := &Mapping{slots: make([]slot, 1)}
	return m
}

// Create reserves a fresh stable reference pointing at loc. The
// reference's generation starts at 1 so a freed-and-reused slot's
// reference never numerically matches a previously valid one at
// generation 0.
func (m *Mapping) Create(loc Unpacked) StableRef {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n := len(m.freeList); n > 0 {
		key := m.freeList[n-1]
		m.freeList = m.freeList[:n-1]
		s := &m.slots[key]
		s.location = loc
		s.occupied = true
		return StableRef{Key: key, Generation: s.generation}
	}

	key := uint32(len(m.slots))
	m.slots = append(m.slots, slot{location: loc, generation: 1, occupied: true})
	return StableRef{Key: key, Generation: 1}
}

// Resolve returns the element's current location if r is still live.
// A stale reference (destroyed, or generation mismatch) resolves to
// (zero, false) — silently, per the StaleReference error kind; there
// is nothing to log, the caller simply drops whatever it was doing.
func (m *Mapping) Resolve(r StableRef) (Unpacked, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if r.Key == 0 || int(r.Key) >= len(m.slots) {
		return Unpacked{}, false
	}
	s := &m.slots[r.Key]
	if !s.occupied || s.generation != r.Generation {
		return Unpacked{}, false
	}
	return s.location, true
}

// Update repoints an already-live reference at a new location, used
// after a swap-remove moves the last element into a vacated slot, or
// after a migration lands an element in its destination table.
func (m *Mapping) Update(r StableRef, loc Unpacked) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.Key == 0 || int(r.Key) >= len(m.slots) {
		return
	}
	s := &m.slots[r.Key]
	if s.occupied && s.generation == r.Generation {
		s.location = loc
	}
}

// Destroy invalidates r: the slot is freed for reuse and its
// generation is bumped so any other outstanding copy of r becomes
// stale immediately.
func (m *Mapping) Destroy(r StableRef) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.Key == 0 || int(r.Key) >= len(m.slots) {
		return
	}
	s := &m.slots[r.Key]
	if !s.occupied || s.generation != r.Generation {
		return
	}
	s.occupied = false
	s.generation++
	s.location = Unpacked{}
	m.freeList = append(m.freeList, r.Key)
}

// Len reports the number of live references, for metrics/tests.
func (m *Mapping) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.slots) - 1 - len(m.freeList)
}
