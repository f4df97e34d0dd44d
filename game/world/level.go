// Package world owns the per-level pickup engine state: the item catalog,
// the region index and the valuation model of each level, plus the
// planners of the combatants playing on it.
package world

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/kasuganosora/arenabot/game/economy"
	"github.com/kasuganosora/arenabot/game/geom"
	"github.com/kasuganosora/arenabot/game/item"
	"github.com/kasuganosora/arenabot/game/nav"
	"github.com/kasuganosora/arenabot/game/pickup"
	"github.com/kasuganosora/arenabot/game/region"
	"github.com/kasuganosora/arenabot/resource"
)

var (
	ErrLevelNotFound    = errors.New("world: level not found")
	ErrNotReady         = errors.New("world: level not ready")
	ErrUnknownCombatant = errors.New("world: unknown combatant")
	ErrUnknownItem      = errors.New("world: unknown item class")
)

// Config holds the engine tuning shared by every level.
type Config struct {
	Items   item.Limits
	Regions region.Config
	Pickup  pickup.Config
	// Rules supplies the respawn and quad settings; its game type is
	// replaced by each level's own.
	Rules resource.Rules
	// Horizon is the valuation prediction length, 0 for the model default.
	Horizon      float64
	RunSpeed     float64
	DefaultSkill float64
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		Items:        item.DefaultLimits(),
		Regions:      region.DefaultConfig(),
		Pickup:       pickup.DefaultConfig(),
		Rules:        resource.DefaultRules(resource.GameFFA),
		RunSpeed:     nav.DefaultRunSpeed,
		DefaultSkill: 3,
	}
}

// PlanRequest asks for the next pickup of one combatant.
type PlanRequest struct {
	Combatant item.EntityID `json:"combatant_id"`
	// Objective is where the combatant is heading; nil to roam. A zero
	// area is resolved from the origin.
	Objective *pickup.Goal `json:"objective,omitempty"`
	// Skill replaces the combatant's skill when set.
	Skill           *float64 `json:"skill,omitempty"`
	EnemyScore      float64  `json:"enemy_score,omitempty"`
	NearbyTeammates int      `json:"nearby_teammates,omitempty"`
	NearbyEnemies   int      `json:"nearby_enemies,omitempty"`
}

// UpdateStats reports what one tick update changed.
type UpdateStats struct {
	Time           float64 `json:"time"`
	DroppedAdded   int     `json:"dropped_added"`
	DroppedRemoved int     `json:"dropped_removed"`
	Players        int     `json:"players"`
}

// LevelIndex is the engine state of one level. Setup and Reset bracket its
// life; UpdateDynamicResources runs once per tick before any planning.
// All methods are safe for concurrent use; calls are serialized.
type LevelIndex struct {
	mu     sync.Mutex
	name   string
	cfg    Config
	logger *zap.Logger

	gameType string
	rules    resource.Rules
	oracle   nav.Oracle
	items    *item.Catalog
	regions  *region.Index
	model    *economy.Model

	planners map[item.EntityID]*pickup.Planner
	players  map[item.EntityID]*economy.Player

	now   float64
	setup bool
	// ready is set once a tick update has completed since setup.
	ready bool
}

// NewLevelIndex creates an empty level.
func NewLevelIndex(name string, cfg Config, logger *zap.Logger) *LevelIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("level", name))
	return &LevelIndex{
		name:     name,
		cfg:      cfg,
		logger:   logger,
		items:    item.NewCatalog(cfg.Items, logger),
		regions:  region.NewIndex(cfg.Regions, logger),
		planners: make(map[item.EntityID]*pickup.Planner),
		players:  make(map[item.EntityID]*economy.Player),
	}
}

// Name returns the level name.
func (l *LevelIndex) Name() string { return l.name }

// SetupLevel builds clusters, valuation and regions for ld. A travel
// matrix from a previous setup of the same level may be passed as cached.
// Any previous state is discarded first.
func (l *LevelIndex) SetupLevel(ld *resource.LevelData, oracle nav.Oracle, cached [][]float64) error {
	if ld == nil || oracle == nil {
		return fmt.Errorf("world: setup %s: missing level data or oracle", l.name)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetLocked()

	rules := l.cfg.Rules
	rules.GameType = ld.Mode()

	items := make([]*item.Instance, 0, len(ld.Items))
	for _, s := range ld.Items {
		it := item.NewInstance(s)
		if it == nil {
			l.logger.Warn("unknown item class ignored", zap.String("class", s.Class), zap.Int("id", s.ID))
			continue
		}
		items = append(items, it)
	}

	model := economy.NewModel(rules, resource.NewWeaponTable(rules.GameType), l.logger)
	if l.cfg.Horizon > 0 {
		model.Horizon = l.cfg.Horizon
	}
	model.Compute(items, economy.Opponents(rules.GameType, 2))

	l.items.Build(items, oracle)
	l.items.SetupClusters(model.Value, rules)
	model.Finalize(l.items.Static, l.items.Mobile)
	l.regions.Setup(l.items.Static, oracle, cached)

	l.gameType = ld.GameType
	l.rules = rules
	l.oracle = oracle
	l.model = model
	l.setup = true
	l.logger.Info("level set up",
		zap.Int("items", len(items)),
		zap.Int("regions", l.regions.Len()))
	return nil
}

// ResetLevel drops every level structure and every combatant plan.
func (l *LevelIndex) ResetLevel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetLocked()
}

func (l *LevelIndex) resetLocked() {
	l.regions.Reset()
	l.items.Reset()
	l.model = nil
	l.oracle = nil
	l.planners = make(map[item.EntityID]*pickup.Planner)
	l.players = make(map[item.EntityID]*economy.Player)
	l.now = 0
	l.setup = false
	l.ready = false
}

// Ready reports whether the level is set up and has seen a tick update.
func (l *LevelIndex) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ready
}

// Travel returns the region travel matrix for caching.
func (l *LevelIndex) Travel() [][]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.regions.Times()
}

// UpdateDynamicResources applies one tick snapshot: item states, mobile
// cluster areas, the dropped item pool, dynamic region members and
// region traffic.
func (l *LevelIndex) UpdateDynamicResources(snap Snapshot) (UpdateStats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.setup {
		return UpdateStats{}, ErrNotReady
	}
	l.ready = false
	l.now = snap.Time

	for _, st := range snap.Items {
		it := l.items.Lookup(st.ID)
		if it == nil {
			continue
		}
		st.apply(it)
	}
	l.items.RefreshMobile(l.oracle)

	present := make(map[item.EntityID]*item.Instance, len(snap.Dropped))
	for _, d := range snap.Dropped {
		if it := d.instance(l.oracle); it != nil {
			present[d.ID] = it
		}
	}
	added, removed := l.items.SyncDropped(present)

	l.regions.ResetDynamic()
	for _, c := range l.items.Mobile {
		l.regions.AddCluster(c)
	}
	l.items.Dropped.Each(l.regions.AddCluster)

	samples := make([]region.PlayerSample, len(snap.Players))
	players := make(map[item.EntityID]*economy.Player, len(snap.Players))
	for i := range snap.Players {
		p := snap.Players[i]
		samples[i] = region.PlayerSample{ID: p.ID, Team: p.Team, Origin: p.Origin}
		players[p.ID] = &p
	}
	l.regions.UpdatePlayers(samples)
	l.players = players

	l.ready = true
	return UpdateStats{Time: snap.Time, DroppedAdded: added, DroppedRemoved: removed, Players: len(players)}, nil
}

// planner returns the planner of id, creating it on first use.
func (l *LevelIndex) planner(id item.EntityID, skill *float64) *pickup.Planner {
	p, ok := l.planners[id]
	if !ok {
		s := l.cfg.DefaultSkill
		if skill != nil {
			s = *skill
		}
		p = pickup.NewPlanner(id, s, l.cfg.Pickup, l.logger)
		l.planners[id] = p
		return p
	}
	if skill != nil {
		p.SetSkill(*skill)
	}
	return p
}

// PlanPickup runs the pickup planner for one combatant against the most
// recent tick. The goal is nil when no pickup is worth making; the
// decision is nil when the previous plan was kept.
func (l *LevelIndex) PlanPickup(req PlanRequest) (*pickup.Goal, *pickup.Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.ready {
		return nil, nil, ErrNotReady
	}
	pl, ok := l.players[req.Combatant]
	if !ok {
		return nil, nil, ErrUnknownCombatant
	}

	preq := pickup.Request{
		Player:          pl,
		EnemyScore:      req.EnemyScore,
		NearbyTeammates: req.NearbyTeammates,
		NearbyEnemies:   req.NearbyEnemies,
	}
	if req.Objective != nil {
		obj := *req.Objective
		if obj.Area == 0 {
			obj.Area = l.oracle.AreaOf(obj.Origin)
		}
		preq.Objective = &obj
	}
	team := l.rules.GameType.IsTeam()
	for _, o := range l.players {
		if o.Team == resource.TeamSpectator {
			continue
		}
		preq.Players++
		if o.ID == pl.ID {
			continue
		}
		if team && o.Team == pl.Team {
			preq.Teammates++
		} else {
			preq.Enemies++
		}
	}

	goal, d := l.planner(req.Combatant, req.Skill).Plan(l.env(), preq)
	return goal, d, nil
}

func (l *LevelIndex) env() *pickup.Env {
	return &pickup.Env{
		Now:     l.now,
		Oracle:  l.oracle,
		Items:   l.items,
		Regions: l.regions,
		Model:   l.model,
	}
}

// HeardPickup times the cluster nearest a pickup the combatant heard at at.
func (l *LevelIndex) HeardPickup(combatant item.EntityID, at geom.Vec3) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.ready {
		return false, ErrNotReady
	}
	return l.planner(combatant, nil).TimeClusterAt(l.env(), at), nil
}

// RecordCombat adds a combat statistics delta to a combatant's profile.
func (l *LevelIndex) RecordCombat(combatant item.EntityID, delta economy.CombatStats) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.setup {
		return ErrNotReady
	}
	l.planner(combatant, nil).RecordCombat(delta)
	return nil
}

// RestoreStats replaces a combatant's statistics with persisted ones.
func (l *LevelIndex) RestoreStats(combatant item.EntityID, stats economy.CombatStats) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.planner(combatant, nil).Stats = stats
}

// CombatStats returns a copy of every combatant's statistics.
func (l *LevelIndex) CombatStats() map[item.EntityID]economy.CombatStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[item.EntityID]economy.CombatStats, len(l.planners))
	for id, p := range l.planners {
		out[id] = p.Stats
	}
	return out
}

// ResourceValue returns the value of one pickup of the given item class.
// Classes absent from the level have a negative value.
func (l *LevelIndex) ResourceValue(class string) (float64, error) {
	def := resource.ItemByClass(class)
	if def == nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownItem, class)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.setup {
		return 0, ErrNotReady
	}
	return l.model.Value(def), nil
}

// ResourceValues returns the value of every item class present on the level.
func (l *LevelIndex) ResourceValues() (map[string]float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.setup {
		return nil, ErrNotReady
	}
	return l.model.Values(), nil
}

// ClusterValue is how much more than an average pickup c is worth, 0 for
// clusters that are not worth a detour.
func ClusterValue(c *item.Cluster) float64 {
	if c == nil {
		return 0
	}
	return max(c.Value, 0)
}

// ClusterInfo describes a cluster for the read API.
type ClusterInfo struct {
	Name         string    `json:"name"`
	Kind         string    `json:"kind"`
	Value        float64   `json:"value"`
	RespawnDelay float64   `json:"respawn_delay"`
	Origin       geom.Vec3 `json:"origin"`
	Region       int       `json:"region"`
	Items        []string  `json:"items"`
	Spawned      int       `json:"spawned"`
}

func clusterInfo(c *item.Cluster) ClusterInfo {
	info := ClusterInfo{
		Name:         c.Name(),
		Kind:         c.Kind.String(),
		Value:        ClusterValue(c),
		RespawnDelay: c.RespawnDelay,
		Origin:       c.Origin(),
		Region:       c.Region,
		Spawned:      c.SpawnedCount(),
	}
	for _, it := range c.Items {
		info.Items = append(info.Items, it.Def.ClassName)
	}
	return info
}

// Clusters lists static, mobile and dropped clusters, most valuable first.
func (l *LevelIndex) Clusters() ([]ClusterInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.setup {
		return nil, ErrNotReady
	}
	var out []ClusterInfo
	for _, c := range l.items.Static {
		out = append(out, clusterInfo(c))
	}
	for _, c := range l.items.Mobile {
		out = append(out, clusterInfo(c))
	}
	l.items.Dropped.Each(func(c *item.Cluster) {
		out = append(out, clusterInfo(c))
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	return out, nil
}

// RegionInfo describes a region for the read API.
type RegionInfo struct {
	Index   int      `json:"index"`
	Cluster string   `json:"cluster"`
	Local   []int    `json:"local"`
	Dynamic []string `json:"dynamic,omitempty"`
}

// Regions lists the level's regions.
func (l *LevelIndex) Regions() ([]RegionInfo, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.setup {
		return nil, ErrNotReady
	}
	out := make([]RegionInfo, 0, l.regions.Len())
	for _, r := range l.regions.Regions() {
		info := RegionInfo{Index: r.Index, Cluster: r.Cluster.Name(), Local: r.Local}
		for _, c := range r.Dynamic {
			info.Dynamic = append(info.Dynamic, c.Name())
		}
		out = append(out, info)
	}
	return out, nil
}

// Summary is the level overview for the read and admin APIs.
type Summary struct {
	Name           string  `json:"name"`
	GameType       string  `json:"game_type"`
	Ready          bool    `json:"ready"`
	Time           float64 `json:"time"`
	Items          int     `json:"items"`
	StaticClusters int     `json:"static_clusters"`
	MobileClusters int     `json:"mobile_clusters"`
	Dropped        int     `json:"dropped"`
	Regions        int     `json:"regions"`
	Combatants     int     `json:"combatants"`
	PickupAverage  float64 `json:"pickup_average"`
}

// Summary returns the level overview.
func (l *LevelIndex) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := Summary{
		Name:           l.name,
		GameType:       l.gameType,
		Ready:          l.ready,
		Time:           l.now,
		Items:          len(l.items.Items()),
		StaticClusters: len(l.items.Static),
		MobileClusters: len(l.items.Mobile),
		Dropped:        l.items.Dropped.Len(),
		Regions:        l.regions.Len(),
		Combatants:     len(l.planners),
	}
	if l.model != nil {
		s.PickupAverage = l.model.PickupAverage()
	}
	return s
}
