package world

import (
	"github.com/kasuganosora/arenabot/game/economy"
	"github.com/kasuganosora/arenabot/game/geom"
	"github.com/kasuganosora/arenabot/game/item"
	"github.com/kasuganosora/arenabot/game/nav"
	"github.com/kasuganosora/arenabot/resource"
)

// Snapshot is the host's view of a level at one tick.
type Snapshot struct {
	Time    float64          `json:"time"`
	Items   []ItemState      `json:"items,omitempty"`
	Dropped []DroppedItem    `json:"dropped,omitempty"`
	Players []economy.Player `json:"players,omitempty"`
}

// ItemState is the live state of one placed item.
type ItemState struct {
	ID item.EntityID `json:"id"`
	// Origin is set for items riding movers.
	Origin  *geom.Vec3 `json:"origin,omitempty"`
	InUse   bool       `json:"in_use"`
	Spawned bool       `json:"spawned"`
	// RespawnAt is when an absent item returns, 0 when unknown.
	RespawnAt float64 `json:"respawn_at,omitempty"`
}

func (st ItemState) apply(it *item.Instance) {
	if st.Origin != nil {
		it.Origin = *st.Origin
	}
	it.InUse = st.InUse
	it.Spawned = st.Spawned
	it.RespawnAt = st.RespawnAt
	if st.Spawned {
		it.RespawnAt = 0
	}
}

// DroppedItem is an item lying where a combatant dropped it.
type DroppedItem struct {
	ID     item.EntityID `json:"id"`
	Class  string        `json:"class"`
	Origin geom.Vec3     `json:"origin"`
	Count  int           `json:"count,omitempty"`
}

func (d DroppedItem) instance(o nav.Oracle) *item.Instance {
	def := resource.ItemByClass(d.Class)
	if def == nil {
		return nil
	}
	return &item.Instance{
		ID:      d.ID,
		Def:     def,
		Origin:  d.Origin,
		Area:    o.AreaOf(d.Origin),
		Count:   d.Count,
		Dropped: true,
		InUse:   true,
		Spawned: true,
	}
}
