package item

import (
	"errors"
	"sort"
)

// ErrPoolFull is returned when every dropped-item slot is taken.
var ErrPoolFull = errors.New("item: dropped item pool full")

// Handle names a pool slot at a given generation. A handle taken before the
// slot was released no longer resolves.
type Handle struct {
	Slot int
	Gen  uint32
}

// DroppedPool is a fixed-size arena of singleton clusters for dropped
// items, indexed by entity. Acquire and Release are O(1).
type DroppedPool struct {
	slots []Cluster
	used  []bool
	free  []int
	index map[EntityID]int
}

// NewDroppedPool allocates capacity slots.
func NewDroppedPool(capacity int) *DroppedPool {
	p := &DroppedPool{
		slots: make([]Cluster, capacity),
		used:  make([]bool, capacity),
		free:  make([]int, 0, capacity),
		index: make(map[EntityID]int, capacity),
	}
	// Lowest slots are handed out first.
	for i := capacity - 1; i >= 0; i-- {
		p.slots[i] = Cluster{Kind: KindDropped, Index: i, Region: -1}
		p.free = append(p.free, i)
	}
	return p
}

// Cap is the number of slots.
func (p *DroppedPool) Cap() int { return len(p.slots) }

// Len is the number of tracked items.
func (p *DroppedPool) Len() int { return len(p.index) }

// Acquire tracks it in a free slot. Tracking an already tracked entity
// returns its existing cluster.
func (p *DroppedPool) Acquire(it *Instance) (*Cluster, error) {
	if slot, ok := p.index[it.ID]; ok {
		return &p.slots[slot], nil
	}
	if len(p.free) == 0 {
		return nil, ErrPoolFull
	}
	slot := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]

	c := &p.slots[slot]
	c.Items = []*Instance{it}
	c.Center = it
	c.Value = 0
	c.RespawnDelay = 0
	c.Region = -1
	it.Contribution = 0
	p.used[slot] = true
	p.index[it.ID] = slot
	return c, nil
}

// Release frees the slot tracking id. It reports whether id was tracked.
func (p *DroppedPool) Release(id EntityID) bool {
	slot, ok := p.index[id]
	if !ok {
		return false
	}
	delete(p.index, id)
	c := &p.slots[slot]
	c.Items = nil
	c.Center = nil
	c.gen++
	p.used[slot] = false
	p.free = append(p.free, slot)
	return true
}

// Lookup returns the cluster tracking id.
func (p *DroppedPool) Lookup(id EntityID) (*Cluster, bool) {
	slot, ok := p.index[id]
	if !ok {
		return nil, false
	}
	return &p.slots[slot], true
}

// Resolve returns the cluster for h if the slot has not been released since.
func (p *DroppedPool) Resolve(h Handle) (*Cluster, bool) {
	if h.Slot < 0 || h.Slot >= len(p.slots) || !p.used[h.Slot] {
		return nil, false
	}
	c := &p.slots[h.Slot]
	if c.gen != h.Gen {
		return nil, false
	}
	return c, true
}

// IDs returns the tracked entities in ascending order.
func (p *DroppedPool) IDs() []EntityID {
	ids := make([]EntityID, 0, len(p.index))
	for id := range p.index {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Each calls fn for every tracked cluster in slot order.
func (p *DroppedPool) Each(fn func(c *Cluster)) {
	for i := range p.slots {
		if p.used[i] {
			fn(&p.slots[i])
		}
	}
}

// Reset releases every slot.
func (p *DroppedPool) Reset() {
	for _, id := range p.IDs() {
		p.Release(id)
	}
}
