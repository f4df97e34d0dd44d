// Package item tracks the collectible items of a level and groups them
// into clusters that share one representative point.
package item

import (
	"github.com/kasuganosora/arenabot/game/geom"
	"github.com/kasuganosora/arenabot/resource"
)

// EntityID is the host's identifier for a world entity.
type EntityID int

// Instance is one item entity in the level.
type Instance struct {
	ID     EntityID
	Def    *resource.ItemDef
	Origin geom.Vec3
	Area   int
	// Mover is the entity carrying the item, 0 when it rests on static ground.
	Mover   EntityID
	Wait    float64
	Random  float64
	Count   int
	Team    resource.Team
	Dropped bool

	// Live state, refreshed every tick.
	InUse   bool
	Spawned bool
	// RespawnAt is the absolute time an absent item reappears, 0 when it
	// is not scheduled to respawn.
	RespawnAt float64

	// Contribution is the share of the owning cluster's value this item provides.
	Contribution float64
}

// NewInstance builds an Instance from a level spawn entry. It returns nil
// for classes missing from the catalog.
func NewInstance(s resource.ItemSpawn) *Instance {
	def := resource.ItemByClass(s.Class)
	if def == nil {
		return nil
	}
	team := resource.ParseTeam(s.Team)
	if def.Type == resource.ItemTeam && team == resource.TeamFree {
		team = resource.FlagTeam(resource.Powerup(def.Tag))
	}
	return &Instance{
		ID:      EntityID(s.ID),
		Def:     def,
		Origin:  geom.Vec3(s.Origin),
		Mover:   EntityID(s.Mover),
		Wait:    s.Wait,
		Random:  s.Random,
		Count:   s.Count,
		Team:    team,
		InUse:   true,
		Spawned: true,
	}
}

// Quantity is the amount the item gives, honoring a level override.
func (it *Instance) Quantity() int {
	if it.Count > 0 {
		return it.Count
	}
	return it.Def.Quantity
}

// Respawn is the longest delay between a pickup of this item and its
// reappearance. Dropped items and items with a negative wait never return.
func (it *Instance) Respawn(r resource.Rules) float64 {
	if it.Dropped || it.Wait < 0 {
		return 0
	}
	respawn := it.Wait
	if respawn == 0 {
		respawn = r.BaseRespawn(it.Def)
	}
	if it.Random > 0 {
		respawn += it.Random
	}
	return respawn
}

// Available reports whether the item can be collected at time at, given
// the current time now.
func (it *Instance) Available(now, at float64) bool {
	if !it.InUse {
		return false
	}
	if it.Spawned {
		return true
	}
	return it.RespawnAt > 0 && at >= it.RespawnAt
}

// Until returns the seconds from now until the item is present, 0 when it
// already is, and false when it is not scheduled to return.
func (it *Instance) Until(now float64) (float64, bool) {
	if !it.InUse {
		return 0, false
	}
	if it.Spawned {
		return 0, true
	}
	if it.RespawnAt <= 0 {
		return 0, false
	}
	d := it.RespawnAt - now
	if d < 0 {
		d = 0
	}
	return d, true
}
