package audiomixer

// Slot describes one occupied mixer slot.
type Slot struct {
	Index int
	ID    string
	Kind  Kind
}

type slotEntry struct {
	id   string
	kind Kind
	used bool
}

// SlotTable is a fixed-size mapping from slot index to occupant. An occupant
// is identified by its kind and id together, so a participant and a
// screen-share may share an id without sharing a slot. Scanning is always
// lowest-index-first, so assignment is deterministic.
//
// SlotTable is not safe for concurrent use; the Mixer guards it.
type SlotTable struct {
	entries []slotEntry
}

// NewSlotTable creates a table with n empty slots.
func NewSlotTable(n int) *SlotTable {
	return &SlotTable{entries: make([]slotEntry, n)}
}

// Len returns the number of slots.
func (t *SlotTable) Len() int {
	return len(t.entries)
}

// Acquire returns the slot already bound to (kind, id), or binds the first
// empty slot to it. It returns false when every slot is taken.
func (t *SlotTable) Acquire(id string, kind Kind) (int, bool) {
	if slot, ok := t.Lookup(id, kind); ok {
		return slot, true
	}
	for i := range t.entries {
		if !t.entries[i].used {
			t.entries[i] = slotEntry{id: id, kind: kind, used: true}
			return i, true
		}
	}
	return -1, false
}

// Lookup returns the slot bound to (kind, id).
func (t *SlotTable) Lookup(id string, kind Kind) (int, bool) {
	for i, e := range t.entries {
		if e.used && e.id == id && e.kind == kind {
			return i, true
		}
	}
	return -1, false
}

// Release marks slot empty. Out-of-range indices are ignored.
func (t *SlotTable) Release(slot int) {
	if slot < 0 || slot >= len(t.entries) {
		return
	}
	t.entries[slot] = slotEntry{}
}

// SlotsOfKind lists the occupied slots bound with kind, in index order.
func (t *SlotTable) SlotsOfKind(kind Kind) []Slot {
	var out []Slot
	for i, e := range t.entries {
		if e.used && e.kind == kind {
			out = append(out, Slot{Index: i, ID: e.id, Kind: e.kind})
		}
	}
	return out
}

// Snapshot lists every occupied slot in index order.
func (t *SlotTable) Snapshot() []Slot {
	var out []Slot
	for i, e := range t.entries {
		if e.used {
			out = append(out, Slot{Index: i, ID: e.id, Kind: e.kind})
		}
	}
	return out
}

// Occupied returns how many slots are bound.
func (t *SlotTable) Occupied() int {
	n := 0
	for _, e := range t.entries {
		if e.used {
			n++
		}
	}
	return n
}

// Reset empties every slot.
func (t *SlotTable) Reset() {
	clear(t.entries)
}
