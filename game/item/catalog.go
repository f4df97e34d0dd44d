package item

import (
	"sort"
	"strings"

	"github.com/kasuganosora/arenabot/game/geom"
	"github.com/kasuganosora/arenabot/game/nav"
	"github.com/kasuganosora/arenabot/resource"
	"go.uber.org/zap"
)

// Limits bounds the tables of a Catalog.
type Limits struct {
	MaxItems     int
	MaxStatic    int
	MaxMobile    int
	MaxDropped   int
	ClusterRange float64
	// SuspendDepth is how far below an item the floor may be before the
	// item counts as suspended and is left out of clusters.
	SuspendDepth float64
}

// DefaultLimits returns the stock table sizes.
func DefaultLimits() Limits {
	return Limits{
		MaxItems:     256,
		MaxStatic:    128,
		MaxMobile:    32,
		MaxDropped:   48,
		ClusterRange: 160,
		SuspendDepth: 64,
	}
}

// Catalog owns every tracked item of a level and its clusters.
type Catalog struct {
	limits Limits
	logger *zap.Logger

	items  []*Instance
	byID   map[EntityID]*Instance
	byName map[string][]*Instance

	Static  []*Cluster
	Mobile  []*Cluster
	Dropped *DroppedPool

	droppedFullWarned bool
}

// NewCatalog creates an empty Catalog.
func NewCatalog(limits Limits, logger *zap.Logger) *Catalog {
	return &Catalog{
		limits:  limits,
		logger:  logger,
		byID:    make(map[EntityID]*Instance),
		byName:  make(map[string][]*Instance),
		Dropped: NewDroppedPool(limits.MaxDropped),
	}
}

// Limits returns the catalog's table sizes.
func (c *Catalog) Limits() Limits { return c.limits }

// Items returns every tracked non-dropped item, including suspended ones.
func (c *Catalog) Items() []*Instance { return c.items }

// Lookup finds a tracked non-dropped item by entity.
func (c *Catalog) Lookup(id EntityID) *Instance { return c.byID[id] }

// Build tracks the level's non-dropped items and groups the routable ones
// into static and mobile clusters. Clusters still need Setup once item
// values are known.
func (c *Catalog) Build(items []*Instance, o nav.Oracle) {
	c.Reset()
	for _, it := range items {
		if it == nil || it.Dropped {
			continue
		}
		if len(c.items) >= c.limits.MaxItems {
			c.logger.Warn("level exceeds maximum number of items; some items are ignored",
				zap.Int("max_items", c.limits.MaxItems))
			break
		}
		it.Area = o.AreaOf(it.Origin)
		c.items = append(c.items, it)
		c.byID[it.ID] = it
	}

	for _, it := range c.items {
		if it.Area == 0 {
			continue
		}
		if !o.Grounded(it.Origin, c.limits.SuspendDepth) {
			continue
		}
		name := strings.ToLower(it.Def.Name)
		c.byName[name] = append(c.byName[name], it)

		var ok bool
		if it.Mover == 0 {
			c.Static, ok = AddToClusters(c.Static, c.limits.MaxStatic, it, c.limits.ClusterRange)
			if !ok {
				c.logger.Warn("item exceeds maximum number of static item clusters",
					zap.String("item", it.Def.Name), zap.Int("max_clusters", c.limits.MaxStatic))
			}
		} else {
			c.Mobile, ok = AddToClusters(c.Mobile, c.limits.MaxMobile, it, c.limits.ClusterRange)
			if !ok {
				c.logger.Warn("item exceeds maximum number of mobile item clusters",
					zap.String("item", it.Def.Name), zap.Int("max_clusters", c.limits.MaxMobile))
			}
		}
	}
	for i, cl := range c.Static {
		cl.Kind, cl.Index = KindStatic, i
	}
	for i, cl := range c.Mobile {
		cl.Kind, cl.Index = KindMobile, i
	}
}

// SetupClusters runs Cluster.Setup on every static and mobile cluster.
func (c *Catalog) SetupClusters(value ValueFunc, rules resource.Rules) {
	for _, cl := range c.Static {
		cl.Setup(value, rules)
	}
	for _, cl := range c.Mobile {
		cl.Setup(value, rules)
	}
	c.logger.Info("item clusters ready",
		zap.Int("items", len(c.items)),
		zap.Int("static_clusters", len(c.Static)),
		zap.Int("mobile_clusters", len(c.Mobile)))
}

// Reset forgets every item and cluster.
func (c *Catalog) Reset() {
	c.items = nil
	c.byID = make(map[EntityID]*Instance)
	c.byName = make(map[string][]*Instance)
	c.Static = nil
	c.Mobile = nil
	c.Dropped = NewDroppedPool(c.limits.MaxDropped)
	c.droppedFullWarned = false
}

// NearestNamed returns the clustered item with the given pickup name
// closest to p, or nil.
func (c *Catalog) NearestNamed(name string, p geom.Vec3) *Instance {
	return Nearest(c.byName[strings.ToLower(name)], p)
}

// RefreshMobile recomputes the areas of items riding movers. Items whose
// new position has no area keep their previous area.
func (c *Catalog) RefreshMobile(o nav.Oracle) {
	for _, cl := range c.Mobile {
		for _, it := range cl.Items {
			if area := o.AreaOf(it.Origin); area != 0 {
				it.Area = area
			}
		}
	}
}

// SyncDropped reconciles the dropped pool with the dropped items present
// this tick. Tracked items that vanished or lost their area are released;
// new routable items are acquired until the pool is full. Instances in
// present must already carry their area.
func (c *Catalog) SyncDropped(present map[EntityID]*Instance) (added, removed int) {
	for _, id := range c.Dropped.IDs() {
		cur, ok := present[id]
		if !ok || !cur.InUse || cur.Area == 0 {
			c.Dropped.Release(id)
			removed++
			continue
		}
		cl, _ := c.Dropped.Lookup(id)
		tracked := cl.Center
		tracked.Origin = cur.Origin
		tracked.Area = cur.Area
		tracked.Spawned = cur.Spawned
		tracked.InUse = cur.InUse
	}

	ids := make([]EntityID, 0, len(present))
	for id := range present {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		it := present[id]
		if !it.InUse || it.Area == 0 {
			continue
		}
		if _, ok := c.Dropped.Lookup(id); ok {
			continue
		}
		it.Dropped = true
		if _, err := c.Dropped.Acquire(it); err != nil {
			if !c.droppedFullWarned {
				c.logger.Warn("dropped item pool full; new dropped items are ignored",
					zap.Int("capacity", c.Dropped.Cap()))
				c.droppedFullWarned = true
			}
			break
		}
		added++
	}
	return added, removed
}
