// Package tables implements the node-local indices that track
// in-progress circuits: destination-port to circuit-id, and
// circuit-id to channel.
package tables

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
)

// allocateRetryBudget bounds how many times AllocateID retries a
// colliding random circuit id before giving up.
const allocateRetryBudget = 16

// CircuitIDCollisionError reports that AllocateID could not find an
// unused circuit id within its retry budget.
type CircuitIDCollisionError struct{}

func (e *CircuitIDCollisionError) Error() string {
	return "tables: circuit id allocation exhausted its retry budget"
}

// CircuitTable maps a destination port to the circuit-id built to
// reach it, and tracks the set of circuit-ids already in use so
// AllocateID can avoid collisions.
type CircuitTable struct {
	mu        sync.Mutex
	byDestPort map[uint16]uint32
	used       map[uint32]bool
}

// NewCircuitTable constructs an empty CircuitTable.
func NewCircuitTable() *CircuitTable {
	return &CircuitTable{
		byDestPort: make(map[uint16]uint32),
		used:       make(map[uint32]bool),
	}
}

// AllocateID draws a uniformly random 32-bit circuit id from
// crypto/rand and reserves it, retrying on collision up to
// allocateRetryBudget times.
func (t *CircuitTable) AllocateID() (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for attempt := 0; attempt < allocateRetryBudget; attempt++ {
		var buf [4]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("tables: allocate circuit id: %w", err)
		}
		id := binary.BigEndian.Uint32(buf[:])
		if id == 0 || t.used[id] {
			continue
		}
		t.used[id] = true
		return id, nil
	}
	return 0, &CircuitIDCollisionError{}
}

// Insert records that destPort is reached via circuitID.
func (t *CircuitTable) Insert(destPort uint16, circuitID uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byDestPort[destPort] = circuitID
}

// Lookup returns the circuit-id registered for destPort, if any.
func (t *CircuitTable) Lookup(destPort uint16) (uint32, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.byDestPort[destPort]
	return id, ok
}

// Remove retires circuitID: it is dropped from the used set so a
// future AllocateID call may reuse it, and any destination-port
// mapping pointing to it is removed.
func (t *CircuitTable) Remove(circuitID uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.used, circuitID)
	for port, id := range t.byDestPort {
		if id == circuitID {
			delete(t.byDestPort, port)
		}
	}
}
