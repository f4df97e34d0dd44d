package pickup

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kasuganosora/arenabot/game/economy"
	"github.com/kasuganosora/arenabot/game/geom"
	"github.com/kasuganosora/arenabot/game/item"
	"github.com/kasuganosora/arenabot/game/region"
	"github.com/kasuganosora/arenabot/resource"
)

// lineOracle puts the level on the x axis; travel runs at 200 units/s.
type lineOracle struct {
	blind bool
}

func (lineOracle) AreaOf(p geom.Vec3) int { return int(p[0]/100) + 1 }

func (lineOracle) TravelTime(_ int, from geom.Vec3, _ int, to geom.Vec3) float64 {
	return from.Dist(to) / 200
}

func (o lineOracle) LineOfSight(a, b geom.Vec3) bool { return !o.blind }

func (lineOracle) Grounded(geom.Vec3, float64) bool { return true }

func spawn(id int, class string, x float64) *item.Instance {
	return &item.Instance{
		ID:      item.EntityID(id),
		Def:     resource.ItemByClass(class),
		Origin:  geom.Vec3{x, 0, 0},
		InUse:   true,
		Spawned: true,
	}
}

const testNow = 100.0

func newLevel(o lineOracle, items ...*item.Instance) *Env {
	rules := resource.DefaultRules(resource.GameFFA)
	model := economy.NewModel(rules, resource.NewWeaponTable(resource.GameFFA), zap.NewNop())
	model.Compute(items, 1)

	cat := item.NewCatalog(item.DefaultLimits(), zap.NewNop())
	cat.Build(items, o)
	cat.SetupClusters(model.Value, rules)
	model.Finalize(cat.Static, cat.Mobile)

	idx := region.NewIndex(region.DefaultConfig(), zap.NewNop())
	idx.Setup(cat.Static, o, nil)
	return &Env{Now: testNow, Oracle: o, Items: cat, Regions: idx, Model: model}
}

// place records the players and then makes every region quiet.
func place(env *Env, players ...*economy.Player) {
	samples := make([]region.PlayerSample, len(players))
	for i, p := range players {
		samples[i] = region.PlayerSample{ID: p.ID, Team: p.Team, Origin: p.Origin}
	}
	env.Regions.UpdatePlayers(samples)
	for _, r := range env.Regions.Regions() {
		for team := range r.Traffic {
			r.Traffic[team] = region.Traffic{Actual: 1, Potential: 100}
		}
	}
}

func newPlayer(env *Env, x float64) *economy.Player {
	p := economy.NewSpawnedPlayer(1, resource.TeamFree, env.Model.Weapons)
	p.Health = 100
	p.Origin = geom.Vec3{x, 0, 0}
	return p
}

func objective(x float64) *Goal {
	origin := geom.Vec3{x, 0, 0}
	return &Goal{Area: lineOracle{}.AreaOf(origin), Origin: origin}
}

func newTestPlanner() *Planner {
	return NewPlanner(1, 5, DefaultConfig(), zap.NewNop())
}

func TestSubsetIterOrder(t *testing.T) {
	it := NewSubsetIter(2, 3)
	var got []string
	for it.Next() {
		got = append(got, fmt.Sprint(it.Indices()))
	}
	assert.Equal(t, []string{
		"[0]", "[0 1]", "[0 2]",
		"[1]", "[1 0]", "[1 2]",
		"[2]", "[2 0]", "[2 1]",
	}, got)
	assert.False(t, it.Valid())
}

func TestSubsetIterCount(t *testing.T) {
	it := NewSubsetIter(3, 4)
	n := 0
	for it.Next() {
		n++
		seen := map[int]bool{}
		for _, i := range it.Indices() {
			require.False(t, seen[i])
			seen[i] = true
		}
	}
	// 4 + 4*3 + 4*3*2
	assert.Equal(t, 40, n)
}

func TestSubsetIterSkip(t *testing.T) {
	it := NewSubsetIter(3, 3)
	require.True(t, it.Next())
	assert.Equal(t, []int{0}, it.Indices())
	require.True(t, it.Skip())
	assert.Equal(t, []int{1}, it.Indices())

	require.True(t, it.Next())
	assert.Equal(t, []int{1, 0}, it.Indices())
	require.True(t, it.Skip())
	assert.Equal(t, []int{1, 2}, it.Indices())
	require.True(t, it.Skip())
	assert.Equal(t, []int{2}, it.Indices())
	assert.False(t, it.Skip())
}

func TestSubsetIterEmpty(t *testing.T) {
	assert.False(t, NewSubsetIter(3, 0).Next())
	assert.False(t, NewSubsetIter(0, 3).Next())
}

func TestTimedList(t *testing.T) {
	l := NewTimedList[string](2)
	assert.Equal(t, 0, l.Add("a", 10, 1))
	assert.Equal(t, 1, l.Add("b", 12, 2))

	// Full: worth less than everything tracked.
	assert.Equal(t, -1, l.Add("c", 10, .5))
	// Displaces the least valuable entry.
	assert.Equal(t, 0, l.Add("c", 9, 3))
	assert.Equal(t, []string{"c", "b"}, l.Keys())
	assert.Equal(t, -1, l.Index("a"))

	assert.Equal(t, 1, l.Add("b", 20, 5))
	timeout, ok := l.Timeout("b")
	require.True(t, ok)
	assert.Equal(t, 20.0, timeout)

	// A known key is refreshed even when worth less than every entry.
	assert.Equal(t, 1, l.Add("b", 30, 1))
	timeout, ok = l.Timeout("b")
	require.True(t, ok)
	assert.Equal(t, 30.0, timeout)
	assert.Equal(t, []string{"c", "b"}, l.Keys())

	assert.Equal(t, []string{"c"}, l.Expire(10))
	assert.Equal(t, 1, l.Len())
	assert.Empty(t, l.Expire(20))

	l.SetCap(0)
	assert.Zero(t, l.Len())
	assert.Equal(t, -1, l.Add("d", 1, 100))
}

func TestMaxTimed(t *testing.T) {
	assert.Equal(t, 0, MaxTimed(1))
	assert.Equal(t, 0, MaxTimed(2.9))
	assert.Equal(t, 1, MaxTimed(3.5))
	assert.Equal(t, 3, MaxTimed(5))
	assert.Equal(t, 3, MaxTimed(10))
}

func armorLevel(o lineOracle) (*Env, *item.Instance) {
	armor := spawn(10, "item_armor_combat", 800)
	armor.Count = 25
	return newLevel(o, armor), armor
}

func TestPlanTakesArmorWhenNeeded(t *testing.T) {
	env, armor := armorLevel(lineOracle{})
	pl := newPlayer(env, 0)
	place(env, pl)

	p := newTestPlanner()
	goal, d := p.Plan(env, Request{Player: pl, Objective: objective(2800), Enemies: 1, Players: 2})
	require.NotNil(t, d)
	require.NotNil(t, goal)
	assert.False(t, d.FastPath)
	assert.Equal(t, armor.ID, goal.Entity)
	assert.Equal(t, armor.Origin, goal.Origin)
	assert.Len(t, d.Chain, 1)
	assert.Greater(t, d.ScoreRate, d.Baseline)
	assert.Equal(t, armor.ID, d.Target)
	require.NotEmpty(t, d.Options)
	assert.True(t, d.Options[0].Selected)
}

func TestPlanSkipsArmorAtCap(t *testing.T) {
	env, _ := armorLevel(lineOracle{})
	pl := newPlayer(env, 0)
	pl.Armor = 200
	place(env, pl)

	p := newTestPlanner()
	goal, d := p.Plan(env, Request{Player: pl, Objective: objective(2800), Enemies: 1, Players: 2})
	assert.Nil(t, goal)
	require.NotNil(t, d)
	assert.Empty(t, d.Chain)
	assert.Zero(t, d.Candidates)
	assert.Equal(t, d.Baseline, d.ScoreRate)
}

func TestPlanRespectsRespawnTime(t *testing.T) {
	for _, tc := range []struct {
		name    string
		respawn float64
		taken   bool
	}{
		{"back after arrival", 30, false},
		{"back before arrival", 3, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env, armor := armorLevel(lineOracle{})
			armor.Spawned = false
			armor.RespawnAt = testNow + tc.respawn
			pl := newPlayer(env, 0)
			place(env, pl)

			p := newTestPlanner()
			require.True(t, p.TimeCluster(env.Items.Static[0], testNow))

			goal, d := p.Plan(env, Request{Player: pl, Objective: objective(2800), Enemies: 1, Players: 2})
			require.NotNil(t, d)
			assert.Equal(t, 1, d.Candidates)
			if !tc.taken {
				assert.Empty(t, d.Chain)
				assert.Empty(t, d.Options)
				assert.Nil(t, goal)
				return
			}
			assert.Len(t, d.Chain, 1)
			require.NotNil(t, goal)
			assert.Equal(t, armor.ID, goal.Entity)
		})
	}
}

func TestPlanArrivalUnderHaste(t *testing.T) {
	// The armor is four seconds away plus the change penalty and returns
	// in 4.5 seconds. Haste gets the combatant there before it does.
	for _, tc := range []struct {
		name  string
		haste float64
		taken bool
	}{
		{"on foot", 0, true},
		{"hasted", 30, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env, armor := armorLevel(lineOracle{})
			armor.Spawned = false
			armor.RespawnAt = testNow + 4.5
			pl := newPlayer(env, 0)
			pl.Powerups[resource.PowerupHaste] = tc.haste
			place(env, pl)

			p := newTestPlanner()
			require.True(t, p.TimeCluster(env.Items.Static[0], testNow))

			_, d := p.Plan(env, Request{Player: pl, Objective: objective(2800), Enemies: 1, Players: 2})
			require.NotNil(t, d)
			assert.Equal(t, 1, d.Candidates)
			if !tc.taken {
				assert.Empty(t, d.Chain)
				assert.Empty(t, d.Options)
				return
			}
			require.Len(t, d.Chain, 1)
			require.NotEmpty(t, d.Options)
			assert.InDelta(t, 5, d.Options[0].Arrivals[0], 1e-9)
			assert.InDelta(t, 4.5, d.Options[0].Ready[0], 1e-9)
		})
	}
}

func TestKeepBonus(t *testing.T) {
	for _, tc := range []struct {
		rate, want float64
	}{
		{.5, .6},
		{0, 0},
		{-.5, -.4},
	} {
		got := keepBonus(tc.rate, 1.2)
		assert.InDelta(t, tc.want, got, 1e-9, "rate %v", tc.rate)
		assert.GreaterOrEqual(t, got, tc.rate)
	}
}

func TestPlanIgnoresUntimedRespawns(t *testing.T) {
	env, armor := armorLevel(lineOracle{})
	armor.Spawned = false
	armor.RespawnAt = testNow + 1
	pl := newPlayer(env, 0)
	place(env, pl)

	_, d := newTestPlanner().Plan(env, Request{Player: pl, Objective: objective(2800), Enemies: 1, Players: 2})
	require.NotNil(t, d)
	assert.Zero(t, d.Candidates)
}

func TestPlanFastPath(t *testing.T) {
	env := newLevel(lineOracle{}, spawn(10, "item_health", 100), spawn(11, "item_armor_body", 2000))
	pl := newPlayer(env, 0)
	pl.Health = 50
	place(env, pl)

	goal, d := newTestPlanner().Plan(env, Request{Player: pl, Objective: objective(2800), Enemies: 1, Players: 2})
	require.NotNil(t, d)
	assert.True(t, d.FastPath)
	require.NotNil(t, goal)
	assert.Equal(t, item.EntityID(10), goal.Entity)

	pl.Health = 100
	_, d = newTestPlanner().Plan(env, Request{Player: pl, Objective: objective(2800), Enemies: 1, Players: 2})
	require.NotNil(t, d)
	assert.False(t, d.FastPath)
}

func TestPlanWithoutRegion(t *testing.T) {
	env, _ := armorLevel(lineOracle{})
	pl := newPlayer(env, 0)

	goal, d := newTestPlanner().Plan(env, Request{Player: pl, Objective: objective(2800)})
	assert.Nil(t, goal)
	assert.Nil(t, d)

	place(env, pl)
	pl.Health = 0
	goal, d = newTestPlanner().Plan(env, Request{Player: pl, Objective: objective(2800)})
	assert.Nil(t, goal)
	assert.Nil(t, d)
}

func TestPlanRecomputeTriggers(t *testing.T) {
	env, _ := armorLevel(lineOracle{blind: true})
	pl := newPlayer(env, 0)
	place(env, pl)
	p := newTestPlanner()
	req := Request{Player: pl, Objective: objective(2800), Enemies: 1, Players: 2}

	goal, d := p.Plan(env, req)
	require.NotNil(t, d)
	require.NotNil(t, goal)

	env.Now = testNow + .1
	cached, d := p.Plan(env, req)
	assert.Nil(t, d)
	assert.Equal(t, goal, cached)

	req.Objective = objective(1500)
	_, d = p.Plan(env, req)
	assert.NotNil(t, d)

	env.Now = testNow + .15
	_, d = p.Plan(env, req)
	assert.Nil(t, d)
	pl.Health = 70
	_, d = p.Plan(env, req)
	assert.NotNil(t, d)

	env.Now = testNow + 1
	_, d = p.Plan(env, req)
	assert.NotNil(t, d)
}

func TestPlanRecomputesWhenFirstClusterShrinks(t *testing.T) {
	env, armor := armorLevel(lineOracle{blind: true})
	pl := newPlayer(env, 0)
	place(env, pl)
	p := newTestPlanner()
	req := Request{Player: pl, Objective: objective(2800), Enemies: 1, Players: 2}

	_, d := p.Plan(env, req)
	require.NotNil(t, d)
	require.Len(t, p.Chain(), 1)

	armor.Spawned = false
	armor.RespawnAt = testNow + 25
	env.Now = testNow + .05
	goal, d := p.Plan(env, req)
	assert.NotNil(t, d)
	assert.Nil(t, goal)
}

func TestTimeClusterAt(t *testing.T) {
	env := newLevel(lineOracle{}, spawn(10, "item_armor_combat", 800), spawn(11, "item_health", 2000))
	p := newTestPlanner()

	require.True(t, p.TimeClusterAt(env, geom.Vec3{790, 0, 0}))
	require.Equal(t, 1, p.Timed().Len())
	c := p.Timed().Key(0)
	assert.Equal(t, item.EntityID(10), c.Center.ID)
	timeout, _ := p.Timed().Timeout(c)
	assert.Equal(t, testNow+c.RespawnDelay+timedGrace, timeout)

	unskilled := NewPlanner(2, 1, DefaultConfig(), zap.NewNop())
	assert.False(t, unskilled.TimeClusterAt(env, geom.Vec3{790, 0, 0}))
	assert.False(t, p.TimeCluster(nil, testNow))
}

func TestValidateChainDropsStaleDroppedClusters(t *testing.T) {
	env, _ := armorLevel(lineOracle{})
	pool := env.Items.Dropped
	dropped := func(id int, x float64) *item.Instance {
		it := spawn(id, "item_health", x)
		it.Dropped = true
		it.Area = lineOracle{}.AreaOf(it.Origin)
		return it
	}

	a, err := pool.Acquire(dropped(50, 400))
	require.NoError(t, err)
	b, err := pool.Acquire(dropped(51, 600))
	require.NoError(t, err)

	p := newTestPlanner()
	p.commit([]*item.Cluster{a, b})
	p.validateChain(pool)
	assert.Equal(t, []*item.Cluster{a, b}, p.Chain())

	// The item now lives in another slot.
	p.commit([]*item.Cluster{a})
	p.centers[0] = b.Center
	p.validateChain(pool)
	assert.Equal(t, []*item.Cluster{b}, p.Chain())

	// The slot was reused by a different item.
	p.commit([]*item.Cluster{a})
	require.True(t, pool.Release(50))
	reused, err := pool.Acquire(dropped(52, 700))
	require.NoError(t, err)
	require.Same(t, a, reused)
	p.validateChain(pool)
	assert.Empty(t, p.Chain())
}

func TestSelectItemPrefersPresentItems(t *testing.T) {
	near := spawn(1, "item_health", 10)
	near.Spawned = false
	near.RespawnAt = 120
	far := spawn(2, "item_health", 100)
	farther := spawn(3, "item_health", 150)

	p := newTestPlanner()
	p.commit([]*item.Cluster{{Items: []*item.Instance{near, farther, far}, Center: far}})
	pl := &economy.Player{Health: 50, MaxHealth: 100}

	assert.Same(t, far, p.selectItem(pl, resource.GameFFA))
	far.InUse, farther.InUse = false, false
	assert.Same(t, near, p.selectItem(pl, resource.GameFFA))
	pl.Health = 100
	assert.Nil(t, p.selectItem(pl, resource.GameFFA))
}

func TestPlanNeverWorseThanBaseline(t *testing.T) {
	classes := []string{"item_armor_shard", "item_armor_combat", "item_health", "item_health_mega",
		"weapon_rocketlauncher", "ammo_rockets", "item_quad", "weapon_railgun"}
	rng := rand.New(rand.NewSource(11))

	for round := 0; round < 40; round++ {
		var items []*item.Instance
		for i := 0; i < 8; i++ {
			it := spawn(10+i, classes[rng.Intn(len(classes))], float64(rng.Intn(30))*200)
			if rng.Intn(4) == 0 {
				it.Spawned = false
				it.RespawnAt = testNow + rng.Float64()*20
			}
			items = append(items, it)
		}
		env := newLevel(lineOracle{}, items...)
		pl := newPlayer(env, float64(rng.Intn(3000)))
		pl.Health = 1 + rng.Intn(150)
		pl.Armor = rng.Intn(150)
		switch rng.Intn(3) {
		case 0:
			pl.Powerups[resource.PowerupHaste] = 1 + rng.Float64()*30
		case 1:
			pl.Powerups[resource.PowerupHaste] = -1
		}
		place(env, pl)

		p := newTestPlanner()
		for _, c := range env.Items.Static {
			p.TimeCluster(c, testNow)
		}
		_, d := p.Plan(env, Request{Player: pl, Objective: objective(float64(rng.Intn(6000))), Enemies: 3, Players: 4})
		require.NotNil(t, d)
		if d.FastPath {
			continue
		}
		assert.GreaterOrEqual(t, d.ScoreRate, d.Baseline)
		assert.LessOrEqual(t, len(d.Chain), DefaultConfig().MaxChain)
		for i := 1; i < len(d.Options); i++ {
			assert.GreaterOrEqual(t, d.Options[i-1].ScoreRate, d.Options[i].ScoreRate)
		}
		// No chain reaches a cluster before anything in it is back.
		for _, o := range d.Options {
			require.Len(t, o.Arrivals, len(o.Chain))
			for i := range o.Chain {
				assert.GreaterOrEqual(t, o.Arrivals[i], o.Ready[i], "%v step %d", o.Chain, i)
			}
		}
	}
}
