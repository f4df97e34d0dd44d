package item

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/kasuganosora/arenabot/game/geom"
	"github.com/kasuganosora/arenabot/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// flatOracle treats every point with x >= 0 as routable floor at z = 0.
type flatOracle struct{}

func (flatOracle) AreaOf(p geom.Vec3) int {
	if p[0] < 0 {
		return 0
	}
	return int(p[0]/64) + 1
}

func (flatOracle) TravelTime(_ int, a geom.Vec3, _ int, b geom.Vec3) float64 {
	return a.Dist(b) / 320
}

func (flatOracle) LineOfSight(a, b geom.Vec3) bool { return true }

func (flatOracle) Grounded(p geom.Vec3, depth float64) bool { return p[2] <= depth }

func inst(id int, class string, x, y float64) *Instance {
	it := NewInstance(resource.ItemSpawn{ID: id, Class: class, Origin: [3]float64{x, y, 0}})
	return it
}

func flatValues(def *resource.ItemDef) float64 {
	switch def.Type {
	case resource.ItemWeapon:
		return 2
	case resource.ItemArmor:
		return float64(def.Quantity) / 10
	case resource.ItemTeam:
		return 0
	}
	return 1
}

// partition returns the clusters as sorted lists of entity ids.
func partition(clusters []*Cluster) [][]EntityID {
	var out [][]EntityID
	for _, c := range clusters {
		var ids []EntityID
		for _, it := range c.Items {
			ids = append(ids, it.ID)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		out = append(out, ids)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

func sampleItems() []*Instance {
	items := []*Instance{
		inst(1, "item_armor_shard", 0, 0),
		inst(2, "item_armor_shard", 100, 0),
		inst(3, "item_armor_shard", 200, 0), // chains 1-2-3
		inst(4, "weapon_rocketlauncher", 1000, 0),
		inst(5, "ammo_rockets", 1100, 0),
		inst(6, "item_health", 2000, 2000),
		inst(7, "item_health", 2000, 2100),
		inst(8, "item_health", 2100, 2050),
		inst(9, "item_quad", 5000, 5000),
	}
	// On a platform: near 9 but must not join it.
	rider := inst(10, "item_health_small", 5050, 5000)
	rider.Mover = 77
	items = append(items, rider)
	return items
}

func TestAddToClusters_PermutationInvariant(t *testing.T) {
	base := sampleItems()
	var want [][]EntityID
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		items := make([]*Instance, len(base))
		for i, j := range rng.Perm(len(base)) {
			cp := *base[j]
			items[i] = &cp
		}
		var clusters []*Cluster
		for _, it := range items {
			var ok bool
			clusters, ok = AddToClusters(clusters, 64, it, 160)
			require.True(t, ok)
		}
		got := partition(clusters)
		if want == nil {
			want = got
			continue
		}
		assert.Equal(t, want, got, "round %d", round)
	}
	assert.Equal(t, [][]EntityID{{1, 2, 3}, {4, 5}, {6, 7, 8}, {9}, {10}}, want)
}

func TestAddToClusters_DistanceBound(t *testing.T) {
	items := sampleItems()
	var clusters []*Cluster
	for _, it := range items {
		clusters, _ = AddToClusters(clusters, 64, it, 160)
	}
	owner := map[EntityID]*Cluster{}
	for _, c := range clusters {
		for _, it := range c.Items {
			owner[it.ID] = c
		}
	}
	// Items in different clusters are never within range on the same mover.
	for _, a := range items {
		for _, b := range items {
			if owner[a.ID] == owner[b.ID] || a.Mover != b.Mover {
				continue
			}
			assert.Greater(t, a.Origin.Dist(b.Origin), 160.0, "%d and %d", a.ID, b.ID)
		}
	}
	// Every member of a multi-item cluster has a neighbor within range.
	for _, c := range clusters {
		if len(c.Items) < 2 {
			continue
		}
		for _, a := range c.Items {
			near := false
			for _, b := range c.Items {
				if a != b && a.Origin.Dist(b.Origin) <= 160 {
					near = true
				}
			}
			assert.True(t, near, "item %d is isolated in its cluster", a.ID)
		}
	}
}

func TestAddToClusters_BridgeMerges(t *testing.T) {
	var clusters []*Cluster
	clusters, _ = AddToClusters(clusters, 8, inst(1, "item_health", 0, 0), 160)
	clusters, _ = AddToClusters(clusters, 8, inst(2, "item_health", 300, 0), 160)
	require.Len(t, clusters, 2)
	clusters, _ = AddToClusters(clusters, 8, inst(3, "item_health", 150, 0), 160)
	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0].Items, 3)
}

func TestAddToClusters_Capacity(t *testing.T) {
	var clusters []*Cluster
	var ok bool
	clusters, ok = AddToClusters(clusters, 1, inst(1, "item_health", 0, 0), 160)
	require.True(t, ok)
	clusters, ok = AddToClusters(clusters, 1, inst(2, "item_health", 1000, 0), 160)
	assert.False(t, ok)
	assert.Len(t, clusters, 1)
	// joining an existing cluster still works when full
	clusters, ok = AddToClusters(clusters, 1, inst(3, "item_health", 50, 0), 160)
	assert.True(t, ok)
	assert.Len(t, clusters[0].Items, 2)
}

func TestClusterSetup(t *testing.T) {
	rules := resource.DefaultRules(resource.GameFFA)
	c := &Cluster{Items: []*Instance{
		inst(1, "ammo_rockets", 0, 0),
		inst(2, "item_armor_body", 100, 0),
		inst(3, "weapon_rocketlauncher", 50, 0),
	}}
	c.Setup(flatValues, rules)

	assert.Equal(t, resource.ItemWeapon, c.Items[0].Def.Type, "weapons first")
	assert.Equal(t, 1+10+2.0, c.Value)
	assert.Equal(t, 40.0, c.RespawnDelay, "longest member respawn")
	sum := 0.0
	for _, it := range c.Items {
		sum += it.Contribution
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	// Weighted centroid sits near the heavy armor.
	assert.Equal(t, EntityID(2), c.Center.ID)
}

func TestClusterSetup_NoValueFallsBackToBounds(t *testing.T) {
	rules := resource.DefaultRules(resource.GameFFA)
	c := &Cluster{Items: []*Instance{
		inst(1, "item_health", 0, 0),
		inst(2, "item_health", 100, 0),
		inst(3, "item_health", 210, 0),
	}}
	c.Setup(func(*resource.ItemDef) float64 { return -1 }, rules)
	require.NotNil(t, c.Center)
	assert.Equal(t, EntityID(2), c.Center.ID)
	assert.Zero(t, c.Value)
}

func TestInstanceRespawn(t *testing.T) {
	rules := resource.DefaultRules(resource.GameFFA)
	it := inst(1, "item_armor_body", 0, 0)
	assert.Equal(t, 25.0, it.Respawn(rules))
	it.Wait = 10
	it.Random = 2
	assert.Equal(t, 12.0, it.Respawn(rules))
	it.Wait = -1
	assert.Zero(t, it.Respawn(rules))
	it.Wait = 0
	it.Dropped = true
	assert.Zero(t, it.Respawn(rules))
}

func TestInstanceUntil(t *testing.T) {
	it := inst(1, "item_armor_body", 0, 0)
	d, ok := it.Until(10)
	assert.True(t, ok)
	assert.Zero(t, d)

	it.Spawned = false
	_, ok = it.Until(10)
	assert.False(t, ok)

	it.RespawnAt = 14
	d, ok = it.Until(10)
	assert.True(t, ok)
	assert.Equal(t, 4.0, d)
	assert.False(t, it.Available(10, 13))
	assert.True(t, it.Available(10, 14))
}

// ---- Dropped pool ----

func TestDroppedPool_DistinctSlotsAndReuse(t *testing.T) {
	p := NewDroppedPool(2)
	a := inst(100, "weapon_railgun", 0, 0)
	b := inst(101, "weapon_shotgun", 500, 0)
	ca, err := p.Acquire(a)
	require.NoError(t, err)
	cb, err := p.Acquire(b)
	require.NoError(t, err)
	assert.NotSame(t, ca, cb)
	assert.Equal(t, 2, p.Len())

	_, err = p.Acquire(inst(102, "weapon_bfg", 0, 0))
	assert.ErrorIs(t, err, ErrPoolFull)

	stale := ca.Handle()
	require.True(t, p.Release(100))
	assert.False(t, p.Release(100))
	_, ok := p.Resolve(stale)
	assert.False(t, ok, "handle from before release is stale")

	cc, err := p.Acquire(inst(102, "weapon_bfg", 0, 0))
	require.NoError(t, err)
	assert.Same(t, ca, cc, "freed slot is reused")
	got, ok := p.Resolve(cc.Handle())
	assert.True(t, ok)
	assert.Same(t, cc, got)
	assert.Equal(t, EntityID(102), got.Center.ID)
}

func TestDroppedPool_AcquireTwice(t *testing.T) {
	p := NewDroppedPool(4)
	a := inst(100, "weapon_railgun", 0, 0)
	c1, _ := p.Acquire(a)
	c2, _ := p.Acquire(a)
	assert.Same(t, c1, c2)
	assert.Equal(t, 1, p.Len())
}

// ---- Catalog ----

func TestCatalog_Build(t *testing.T) {
	cat := NewCatalog(DefaultLimits(), zap.NewNop())
	items := sampleItems()
	suspended := inst(11, "item_health_mega", 3000, 0)
	suspended.Origin[2] = 300
	unroutable := inst(12, "item_health_mega", -500, 0)
	items = append(items, suspended, unroutable)

	cat.Build(items, flatOracle{})
	cat.SetupClusters(flatValues, resource.DefaultRules(resource.GameFFA))

	assert.Len(t, cat.Items(), 12)
	assert.Len(t, cat.Static, 4)
	assert.Len(t, cat.Mobile, 1)
	for i, c := range cat.Static {
		assert.Equal(t, KindStatic, c.Kind)
		assert.Equal(t, i, c.Index)
		assert.NotNil(t, c.Center)
	}
	assert.Nil(t, cat.NearestNamed("Mega Health", geom.Vec3{3000, 0, 0}), "suspended items are not indexed")

	h := cat.NearestNamed("25 health", geom.Vec3{2100, 2100, 0})
	require.NotNil(t, h)
	assert.Contains(t, []EntityID{7, 8}, h.ID)
	assert.Same(t, items[0], cat.Lookup(1))
}

func TestCatalog_BuildLimits(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxItems = 3
	limits.MaxStatic = 1
	cat := NewCatalog(limits, zap.NewNop())
	cat.Build(sampleItems(), flatOracle{})
	assert.Len(t, cat.Items(), 3)
	assert.Len(t, cat.Static, 1)
}

func TestCatalog_SyncDropped(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxDropped = 2
	cat := NewCatalog(limits, zap.NewNop())
	cat.Build(nil, flatOracle{})

	mk := func(id int, x float64) *Instance {
		it := inst(id, "weapon_railgun", x, 0)
		it.Dropped = true
		it.Area = flatOracle{}.AreaOf(it.Origin)
		return it
	}
	a, b := mk(200, 0), mk(201, 640)
	added, removed := cat.SyncDropped(map[EntityID]*Instance{200: a, 201: b})
	assert.Equal(t, 2, added)
	assert.Zero(t, removed)
	ca, ok := cat.Dropped.Lookup(200)
	require.True(t, ok)
	cb, _ := cat.Dropped.Lookup(201)
	assert.NotSame(t, ca, cb)

	// 200 is collected; a third drop appears and takes its slot.
	c := mk(202, 1280)
	added, removed = cat.SyncDropped(map[EntityID]*Instance{201: b, 202: c})
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, removed)
	cc, ok := cat.Dropped.Lookup(202)
	require.True(t, ok)
	assert.Same(t, ca, cc)

	// Unroutable items are released.
	moved := mk(201, 0)
	moved.Area = 0
	_, removed = cat.SyncDropped(map[EntityID]*Instance{201: moved, 202: c})
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, cat.Dropped.Len())
}

func TestCatalog_SyncDroppedFull(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxDropped = 1
	cat := NewCatalog(limits, zap.NewNop())
	a := inst(1, "weapon_railgun", 0, 0)
	a.Area = 1
	b := inst(2, "weapon_railgun", 0, 0)
	b.Area = 1
	added, _ := cat.SyncDropped(map[EntityID]*Instance{1: a, 2: b})
	assert.Equal(t, 1, added)
	_, ok := cat.Dropped.Lookup(1)
	assert.True(t, ok)
}

func TestCatalog_RefreshMobile(t *testing.T) {
	cat := NewCatalog(DefaultLimits(), zap.NewNop())
	items := sampleItems()
	cat.Build(items, flatOracle{})
	rider := cat.Lookup(10)
	before := rider.Area
	rider.Origin = geom.Vec3{-100, 0, 0} // no area there
	cat.RefreshMobile(flatOracle{})
	assert.Equal(t, before, rider.Area)
	rider.Origin = geom.Vec3{640, 0, 0}
	cat.RefreshMobile(flatOracle{})
	assert.Equal(t, 11, rider.Area)
}
