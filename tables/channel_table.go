package tables

import (
	"sync"

	"github.com/starboi-63/poqr/channel"
)

// ChannelTable maps a circuit-id to the channel carrying it.
// Circuit-ids are process-wide unique among outstanding circuits at a
// given node.
type ChannelTable struct {
	mu          sync.Mutex
	byCircuitID map[uint32]*channel.Channel
}

// NewChannelTable constructs an empty ChannelTable.
func NewChannelTable() *ChannelTable {
	return &ChannelTable{byCircuitID: make(map[uint32]*channel.Channel)}
}

// Insert registers ch under circuitID.
func (t *ChannelTable) Insert(circuitID uint32, ch *channel.Channel) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byCircuitID[circuitID] = ch
}

// Lookup returns the channel registered for circuitID, if any.
func (t *ChannelTable) Lookup(circuitID uint32) (*channel.Channel, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.byCircuitID[circuitID]
	return ch, ok
}

// Remove retires circuitID's channel entry.
func (t *ChannelTable) Remove(circuitID uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byCircuitID, circuitID)
}
