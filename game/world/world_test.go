package world

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kasuganosora/arenabot/game/economy"
	"github.com/kasuganosora/arenabot/game/geom"
	"github.com/kasuganosora/arenabot/game/item"
	"github.com/kasuganosora/arenabot/game/pickup"
	"github.com/kasuganosora/arenabot/model"
	"github.com/kasuganosora/arenabot/resource"
	"github.com/kasuganosora/arenabot/testutil"
)

const testLevel = `{
  "name": "corridor",
  "gametype": "ffa",
  "grid": {"cell_size": 64, "rows": [
    "........................",
    "........................",
    "........................"
  ]},
  "items": [
    {"id": 1, "class": "item_armor_body", "origin": [96, 96, 0]},
    {"id": 2, "class": "item_health", "origin": [800, 96, 0]},
    {"id": 3, "class": "weapon_rocketlauncher", "origin": [1400, 96, 0]}
  ]
}`

func parseLevel(t *testing.T) *resource.LevelData {
	t.Helper()
	ld, err := resource.ParseLevel([]byte(testLevel), "json")
	require.NoError(t, err)
	return ld
}

func newTestManager(t *testing.T, withStores bool) *Manager {
	t.Helper()
	if !withStores {
		return NewManager(DefaultConfig(), nil, nil, nil, zap.NewNop())
	}
	c, bus := testutil.SetupTestCache(t)
	return NewManager(DefaultConfig(), c, bus, testutil.SetupTestDB(t), zap.NewNop())
}

func fighter(id int, x float64) economy.Player {
	return economy.Player{
		ID:     item.EntityID(id),
		Team:   resource.TeamFree,
		Origin: geom.Vec3{x, 96, 0},
		Health: 100,
	}
}

func baseSnapshot(now float64) Snapshot {
	return Snapshot{
		Time: now,
		Items: []ItemState{
			{ID: 1, InUse: true, Spawned: true},
			{ID: 2, InUse: true, Spawned: true},
			{ID: 3, InUse: true, Spawned: true},
		},
		Players: []economy.Player{fighter(1, 288), fighter(2, 1300)},
	}
}

func planFor(id int) PlanRequest {
	return PlanRequest{
		Combatant: item.EntityID(id),
		Objective: &pickup.Goal{Origin: geom.Vec3{1400, 96, 0}},
	}
}

type captureJournal struct {
	mu     sync.Mutex
	events []DecisionEvent
}

func (c *captureJournal) Record(ev DecisionEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureJournal) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestSetupLevelValues(t *testing.T) {
	m := newTestManager(t, false)
	lvl, err := m.Setup(context.Background(), parseLevel(t))
	require.NoError(t, err)

	v, err := lvl.ResourceValue("item_armor_body")
	require.NoError(t, err)
	assert.Greater(t, v, 0.0)

	absent, err := lvl.ResourceValue("item_quad")
	require.NoError(t, err)
	assert.Less(t, absent, 0.0)

	_, err = lvl.ResourceValue("item_pony")
	assert.ErrorIs(t, err, ErrUnknownItem)

	values, err := lvl.ResourceValues()
	require.NoError(t, err)
	assert.Len(t, values, 3)

	s := lvl.Summary()
	assert.Equal(t, 3, s.Items)
	assert.Equal(t, 3, s.StaticClusters)
	assert.Equal(t, 3, s.Regions)
	assert.False(t, s.Ready)

	clusters, err := lvl.Clusters()
	require.NoError(t, err)
	require.Len(t, clusters, 3)
	for i := 1; i < len(clusters); i++ {
		assert.GreaterOrEqual(t, clusters[i-1].Value, clusters[i].Value)
	}

	regions, err := lvl.Regions()
	require.NoError(t, err)
	assert.Len(t, regions, 3)
}

func TestClusterValueNeverNegative(t *testing.T) {
	assert.Zero(t, ClusterValue(nil))
}

func TestPlanPickupWaitsForFirstTick(t *testing.T) {
	m := newTestManager(t, false)
	ctx := context.Background()
	lvl, err := m.Setup(ctx, parseLevel(t))
	require.NoError(t, err)

	_, err = m.PlanPickup(ctx, "corridor", planFor(1))
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = lvl.HeardPickup(1, geom.Vec3{96, 96, 0})
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = lvl.UpdateDynamicResources(baseSnapshot(10))
	require.NoError(t, err)
	assert.True(t, lvl.Ready())

	_, err = m.PlanPickup(ctx, "corridor", planFor(1))
	require.NoError(t, err)

	// No update for the next tick: planning runs on the previous tick's data.
	_, err = m.PlanPickup(ctx, "corridor", planFor(1))
	require.NoError(t, err)
	_, err = m.PlanPickup(ctx, "corridor", planFor(2))
	require.NoError(t, err)
	assert.Equal(t, 2, lvl.Summary().Combatants)

	_, err = m.PlanPickup(ctx, "corridor", planFor(9))
	assert.ErrorIs(t, err, ErrUnknownCombatant)
	_, err = m.PlanPickup(ctx, "nowhere", planFor(1))
	assert.ErrorIs(t, err, ErrLevelNotFound)
}

func TestUpdateBeforeSetup(t *testing.T) {
	lvl := NewLevelIndex("empty", DefaultConfig(), nil)
	_, err := lvl.UpdateDynamicResources(baseSnapshot(1))
	assert.ErrorIs(t, err, ErrNotReady)
	_, _, err = lvl.PlanPickup(planFor(1))
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, lvl.RecordCombat(1, economy.CombatStats{}), ErrNotReady)
}

func droppedNames(t *testing.T, lvl *LevelIndex) []string {
	t.Helper()
	clusters, err := lvl.Clusters()
	require.NoError(t, err)
	var names []string
	for _, c := range clusters {
		if c.Kind == "dropped" {
			names = append(names, c.Name)
		}
	}
	return names
}

func TestDroppedItemsReuseSlots(t *testing.T) {
	m := newTestManager(t, false)
	lvl, err := m.Setup(context.Background(), parseLevel(t))
	require.NoError(t, err)

	snap := baseSnapshot(10)
	snap.Dropped = []DroppedItem{
		{ID: 100, Class: "item_health", Origin: geom.Vec3{400, 96, 0}},
		{ID: 101, Class: "item_armor_shard", Origin: geom.Vec3{1000, 96, 0}},
	}
	st, err := lvl.UpdateDynamicResources(snap)
	require.NoError(t, err)
	assert.Equal(t, 2, st.DroppedAdded)
	assert.ElementsMatch(t, []string{"dropped#0(Health)", "dropped#1(Armor Shard)"}, droppedNames(t, lvl))

	// The health was collected.
	snap = baseSnapshot(10.1)
	snap.Dropped = []DroppedItem{{ID: 101, Class: "item_armor_shard", Origin: geom.Vec3{1000, 96, 0}}}
	st, err = lvl.UpdateDynamicResources(snap)
	require.NoError(t, err)
	assert.Equal(t, 1, st.DroppedRemoved)
	assert.Equal(t, 1, lvl.Summary().Dropped)

	snap = baseSnapshot(10.2)
	snap.Dropped = []DroppedItem{
		{ID: 101, Class: "item_armor_shard", Origin: geom.Vec3{1000, 96, 0}},
		{ID: 102, Class: "weapon_rocketlauncher", Origin: geom.Vec3{500, 96, 0}},
	}
	st, err = lvl.UpdateDynamicResources(snap)
	require.NoError(t, err)
	assert.Equal(t, 1, st.DroppedAdded)
	rl := resource.ItemByClass("weapon_rocketlauncher").Name
	assert.ElementsMatch(t, []string{"dropped#0(" + rl + ")", "dropped#1(Armor Shard)"}, droppedNames(t, lvl))

	regions, err := lvl.Regions()
	require.NoError(t, err)
	dynamic := 0
	for _, r := range regions {
		dynamic += len(r.Dynamic)
	}
	assert.Equal(t, 2, dynamic)
}

func TestItemStateUpdates(t *testing.T) {
	m := newTestManager(t, false)
	lvl, err := m.Setup(context.Background(), parseLevel(t))
	require.NoError(t, err)

	snap := baseSnapshot(10)
	snap.Items[0] = ItemState{ID: 1, InUse: true, Spawned: false, RespawnAt: 30}
	_, err = lvl.UpdateDynamicResources(snap)
	require.NoError(t, err)

	clusters, err := lvl.Clusters()
	require.NoError(t, err)
	spawned := 0
	for _, c := range clusters {
		spawned += c.Spawned
	}
	assert.Equal(t, 2, spawned)
}

func TestHeardPickupTimesCluster(t *testing.T) {
	m := newTestManager(t, false)
	lvl, err := m.Setup(context.Background(), parseLevel(t))
	require.NoError(t, err)
	_, err = lvl.UpdateDynamicResources(baseSnapshot(10))
	require.NoError(t, err)

	skill := 5.0
	_, _, err = lvl.PlanPickup(PlanRequest{Combatant: 1, Skill: &skill})
	require.NoError(t, err)
	ok, err := lvl.HeardPickup(1, geom.Vec3{100, 96, 0})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTravelRoundTrip(t *testing.T) {
	times := [][]float64{{0, 1.5, -1}, {1.5, 0, 2}, {-1, 2, 0}}
	blob, err := EncodeTravel(times)
	require.NoError(t, err)
	got, err := DecodeTravel(blob)
	require.NoError(t, err)
	assert.Equal(t, times, got)

	_, err = DecodeTravel([]byte("garbage"))
	assert.Error(t, err)
}

func TestManagerCachesTravelAndRecordsLevel(t *testing.T) {
	m := newTestManager(t, true)
	ctx := context.Background()
	ld := parseLevel(t)

	lvl, err := m.Setup(ctx, ld)
	require.NoError(t, err)

	sum, err := Checksum(ld)
	require.NoError(t, err)
	blob, err := m.cache.Get(ctx, travelKey(ld.Name, sum))
	require.NoError(t, err)
	cached, err := DecodeTravel([]byte(blob))
	require.NoError(t, err)
	assert.Equal(t, lvl.Travel(), cached)

	// A second setup reuses the cached matrix.
	lvl, err = m.Setup(ctx, ld)
	require.NoError(t, err)
	assert.Equal(t, cached, lvl.Travel())

	var rec model.LevelRecord
	require.NoError(t, m.db.Where("name = ?", "corridor").First(&rec).Error)
	assert.Equal(t, sum, rec.Checksum)
	assert.Equal(t, 3, rec.Regions)
	var values map[string]float64
	require.NoError(t, json.Unmarshal(rec.Values, &values))
	assert.Contains(t, values, "item_armor_body")

	var count int64
	m.db.Model(&model.LevelRecord{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestManagerPublishesDecisions(t *testing.T) {
	m := newTestManager(t, true)
	journal := &captureJournal{}
	m.SetJournal(journal)
	ctx := context.Background()

	lvl, err := m.Setup(ctx, parseLevel(t))
	require.NoError(t, err)
	msgs, cancel, err := m.Subscribe(ctx, "corridor")
	require.NoError(t, err)
	defer cancel()

	_, err = lvl.UpdateDynamicResources(baseSnapshot(10))
	require.NoError(t, err)
	_, err = m.PlanPickup(ctx, "corridor", planFor(1))
	require.NoError(t, err)

	select {
	case msg := <-msgs:
		assert.Equal(t, DecisionChannel("corridor"), msg.Channel)
		var ev DecisionEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
		assert.Equal(t, "corridor", ev.Level)
		require.NotNil(t, ev.Decision)
		assert.Equal(t, item.EntityID(1), ev.Combatant)
		assert.Len(t, ev.ID, 36)
	case <-time.After(time.Second):
		t.Fatal("no decision published")
	}
	assert.Equal(t, 1, journal.len())

	recent, err := m.RecentDecisions(ctx, "corridor", 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, 10.0, recent[0].Time)

	require.NoError(t, m.Remove(ctx, "corridor"))
	recent, err = m.RecentDecisions(ctx, "corridor", 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
	assert.ErrorIs(t, m.Remove(ctx, "corridor"), ErrLevelNotFound)
}

func TestManagerFlushesAndRestoresStats(t *testing.T) {
	c, bus := testutil.SetupTestCache(t)
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	m := NewManager(DefaultConfig(), c, bus, db, zap.NewNop())
	lvl, err := m.Setup(ctx, parseLevel(t))
	require.NoError(t, err)
	require.NoError(t, lvl.RecordCombat(4, economy.CombatStats{Deaths: 3, Kills: 5}))
	require.NoError(t, m.FlushStats(ctx))
	require.NoError(t, m.FlushStats(ctx))

	var rows []model.CombatantStats
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, 5.0, rows[0].Deaths)
	assert.Equal(t, 7.0, rows[0].Kills)

	restarted := NewManager(DefaultConfig(), c, bus, db, zap.NewNop())
	lvl, err = restarted.Setup(ctx, parseLevel(t))
	require.NoError(t, err)
	stats := lvl.CombatStats()
	require.Contains(t, stats, item.EntityID(4))
	assert.Equal(t, 5.0, stats[item.EntityID(4)].Deaths)
}

func TestManagerNames(t *testing.T) {
	m := newTestManager(t, false)
	ctx := context.Background()
	ld := parseLevel(t)
	_, err := m.Setup(ctx, ld)
	require.NoError(t, err)

	other := *ld
	other.Name = "arena"
	_, err = m.Setup(ctx, &other)
	require.NoError(t, err)

	assert.Equal(t, []string{"arena", "corridor"}, m.Names())
	assert.Equal(t, 2, m.Count())
	m.StopAll()
	assert.Zero(t, m.Count())
	assert.True(t, strings.HasPrefix(DecisionChannel("x"), "arenabot:"))
}
