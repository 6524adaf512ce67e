// Package directory implements the trusted test-bench membership
// service: relay registration, lookup, and random selection with
// exclusion. It performs no consensus, voting, or authentication — the
// spec treats it as an external collaborator present only to make the
// relay-selection interface concrete and testable.
package directory

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"

	"github.com/starboi-63/poqr/ntru"
)

// Record is one relay's membership entry: a process-wide unique id,
// its listen port, and its long-term lattice public key.
type Record struct {
	RelayID     uuid.UUID
	ListenPort  uint16
	IdentityPub *ntru.PublicKey
}

// NoRelaysAvailableError reports that RandomRelay found no candidate
// left after exclusion.
type NoRelaysAvailableError struct{}

func (e *NoRelaysAvailableError) Error() string {
	return "directory: no relay available after exclusion"
}

// Directory is a read-mostly registry: many concurrent lookups, one
// writer at a time during registration.
type Directory struct {
	mu      sync.RWMutex
	records map[uuid.UUID]Record
	order   []uuid.UUID // insertion order, for deterministic iteration
}

// New constructs an empty Directory.
func New() *Directory {
	return &Directory{records: make(map[uuid.UUID]Record)}
}

// Register assigns a fresh relay-id to a relay listening on
// listenPort with the given identity public key, and returns its
// record.
func (d *Directory) Register(listenPort uint16, identityPub *ntru.PublicKey) Record {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec := Record{
		RelayID:     uuid.New(),
		ListenPort:  listenPort,
		IdentityPub: identityPub,
	}
	d.records[rec.RelayID] = rec
	d.order = append(d.order, rec.RelayID)
	return rec
}

// Lookup returns the record for relayID, if registered.
func (d *Directory) Lookup(relayID uuid.UUID) (Record, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.records[relayID]
	return rec, ok
}

// RandomRelay returns a uniformly random record whose id is not in
// exclude, using a cryptographically secure source of randomness.
func (d *Directory) RandomRelay(exclude map[uuid.UUID]bool) (Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	candidates := make([]uuid.UUID, 0, len(d.order))
	for _, id := range d.order {
		if exclude == nil || !exclude[id] {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return Record{}, &NoRelaysAvailableError{}
	}

	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(candidates))))
	if err != nil {
		return Record{}, fmt.Errorf("directory: random relay: %w", err)
	}
	return d.records[candidates[n.Int64()]], nil
}
