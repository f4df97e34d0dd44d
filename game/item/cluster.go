package item

import (
	"fmt"
	"math"

	"github.com/kasuganosora/arenabot/game/geom"
	"github.com/kasuganosora/arenabot/resource"
)

// Kind says how a cluster's membership and position evolve.
type Kind int

const (
	// KindStatic clusters never move and never change members.
	KindStatic Kind = iota
	// KindMobile clusters ride movers; members are fixed, positions are not.
	KindMobile
	// KindDropped clusters hold exactly one dropped item and live in a DroppedPool.
	KindDropped
)

func (k Kind) String() string {
	switch k {
	case KindStatic:
		return "static"
	case KindMobile:
		return "mobile"
	case KindDropped:
		return "dropped"
	}
	return "unknown"
}

// ValueFunc returns the base value of an item type, negative when the
// type is not present on the level.
type ValueFunc func(def *resource.ItemDef) float64

// Cluster is a group of nearby items sharing one representative point.
type Cluster struct {
	Kind  Kind
	Index int
	// Items are stored in pickup order.
	Items []*Instance
	// Center is the member nearest the value-weighted centroid.
	Center       *Instance
	Value        float64
	RespawnDelay float64
	// Region is the index of the nearest region, -1 before regions are
	// built.
	Region int

	gen uint32
}

// Name describes the cluster for logs and API output.
func (c *Cluster) Name() string {
	if c.Center == nil {
		return fmt.Sprintf("%s#%d(empty)", c.Kind, c.Index)
	}
	if len(c.Items) == 1 {
		return fmt.Sprintf("%s#%d(%s)", c.Kind, c.Index, c.Center.Def.Name)
	}
	return fmt.Sprintf("%s#%d(%s+%d)", c.Kind, c.Index, c.Center.Def.Name, len(c.Items)-1)
}

// Handle identifies the cluster's pool slot and generation. Only dropped
// clusters carry a meaningful generation.
func (c *Cluster) Handle() Handle {
	return Handle{Slot: c.Index, Gen: c.gen}
}

// SpawnedCount is the number of members present right now.
func (c *Cluster) SpawnedCount() int {
	n := 0
	for _, it := range c.Items {
		if it.InUse && it.Spawned {
			n++
		}
	}
	return n
}

// Origin is the representative point, or the zero vector for empty clusters.
func (c *Cluster) Origin() geom.Vec3 {
	if c.Center == nil {
		return geom.Vec3{}
	}
	return c.Center.Origin
}

// Area is the representative's area, 0 for empty clusters.
func (c *Cluster) Area() int {
	if c.Center == nil {
		return 0
	}
	return c.Center.Area
}

func (c *Cluster) touches(it *Instance, rangeSq float64) bool {
	for _, m := range c.Items {
		if m.Origin.DistSq(it.Origin) > rangeSq {
			continue
		}
		if m.Mover != it.Mover {
			continue
		}
		return true
	}
	return false
}

// AddToClusters places it into the cluster list. An item within radius of
// members of several clusters (on the same mover) joins them into one.
// Returns false when a new cluster is needed but max clusters exist.
func AddToClusters(clusters []*Cluster, max int, it *Instance, radius float64) ([]*Cluster, bool) {
	rangeSq := radius * radius
	var target *Cluster
	i := 0
	for i < len(clusters) {
		c := clusters[i]
		if !c.touches(it, rangeSq) {
			i++
			continue
		}
		if target == nil {
			c.Items = append([]*Instance{it}, c.Items...)
			target = c
			i++
			continue
		}
		// Merge; the last cluster moves into slot i, which is examined again.
		target.Items = append(target.Items, c.Items...)
		last := len(clusters) - 1
		clusters[i] = clusters[last]
		clusters[last] = nil
		clusters = clusters[:last]
	}
	if target != nil {
		return clusters, true
	}
	if len(clusters) >= max {
		return clusters, false
	}
	return append(clusters, &Cluster{Items: []*Instance{it}, Region: -1}), true
}

// Setup orders members for pickup, totals the cluster value and respawn
// delay, splits the value into member contributions and picks the center.
func (c *Cluster) Setup(value ValueFunc, rules resource.Rules) {
	if len(c.Items) == 0 {
		c.Center = nil
		return
	}

	// Weapons after the first member move to the front.
	if len(c.Items) > 1 {
		var weapons []*Instance
		rest := []*Instance{c.Items[0]}
		for _, it := range c.Items[1:] {
			if it.Def.Type == resource.ItemWeapon {
				weapons = append([]*Instance{it}, weapons...)
			} else {
				rest = append(rest, it)
			}
		}
		c.Items = append(weapons, rest...)
	}

	c.RespawnDelay = 0
	c.Value = 0
	maxValue := -1.0
	for _, it := range c.Items {
		if it.Dropped {
			continue
		}
		v := value(it.Def)
		if v < 0 {
			continue
		}
		maxValue = math.Max(maxValue, v)
		c.RespawnDelay = math.Max(c.RespawnDelay, it.Respawn(rules))
		c.Value += v
	}

	for _, it := range c.Items {
		it.Contribution = 0
	}
	for _, it := range c.Items {
		if c.Value <= 0 || it.Dropped {
			break
		}
		it.Contribution = value(it.Def) / c.Value
	}

	if maxValue <= 0 {
		maxValue = 1
	}
	minValue := maxValue * .1

	var centroid geom.Vec3
	total := 0.0
	for _, it := range c.Items {
		v := value(it.Def)
		if v < 0 {
			continue
		}
		v = math.Max(v, minValue)
		centroid = centroid.Add(it.Origin.Scale(v))
		total += v
	}
	if total > 0 {
		centroid = centroid.Scale(1 / total)
	} else {
		box := geom.EmptyBounds()
		for _, it := range c.Items {
			box.Add(it.Origin)
		}
		centroid = box.Center()
	}
	c.Center = Nearest(c.Items, centroid)
}

// Nearest returns the instance closest to p, nil for an empty list.
func Nearest(items []*Instance, p geom.Vec3) *Instance {
	var best *Instance
	bestDist := -1.0
	for _, it := range items {
		d := it.Origin.DistSq(p)
		if bestDist < 0 || d < bestDist {
			best, bestDist = it, d
		}
	}
	return best
}
