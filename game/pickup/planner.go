package pickup

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/kasuganosora/arenabot/game/economy"
	"github.com/kasuganosora/arenabot/game/geom"
	"github.com/kasuganosora/arenabot/game/item"
	"github.com/kasuganosora/arenabot/game/nav"
	"github.com/kasuganosora/arenabot/game/region"
	"github.com/kasuganosora/arenabot/resource"
)

const (
	maxTimedClusters = 3
	// timedGrace keeps a timed cluster known a little past its respawn.
	timedGrace = 5.0
)

// Config tunes the planner.
type Config struct {
	// MaxChain is the most clusters visited before the objective.
	MaxChain int
	// MaxOptions caps the candidate clusters per evaluation.
	MaxOptions int
	// AutopickupTime and AutopickupUtility select the fast path: a cluster
	// closer than AutopickupTime seconds holding an item at least this
	// useful is taken without searching.
	AutopickupTime    float64
	AutopickupUtility float64
	// PredictTimeMin is the shortest horizon a chain is scored over.
	PredictTimeMin float64
	// ChangePenaltyTime is charged to every change of travel plans and
	// ChangePenaltyFactor rewards keeping the current first cluster.
	ChangePenaltyTime   float64
	ChangePenaltyFactor float64
	// RecomputeDelay is how long a chain is kept without a reason to
	// replace it; RecomputeDamageDrop is the loss of health and armor that
	// forces a new evaluation.
	RecomputeDelay      float64
	RecomputeDamageDrop float64
	ViewHeight          float64
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		MaxChain:            3,
		MaxOptions:          1 + maxTimedClusters + 12*2,
		AutopickupTime:      1.0,
		AutopickupUtility:   .25,
		PredictTimeMin:      20,
		ChangePenaltyTime:   1.0,
		ChangePenaltyFactor: 1.2,
		RecomputeDelay:      .2,
		RecomputeDamageDrop: 25,
		ViewHeight:          26,
	}
}

// MaxTimed is how many clusters a combatant of the given skill can time.
func MaxTimed(skill float64) int {
	return min(max(int(math.Floor(skill))-2, 0), maxTimedClusters)
}

// Goal is a point to move toward. The zero Entity means a plain location.
type Goal struct {
	Entity item.EntityID `json:"entity,omitempty"`
	Area   int           `json:"area"`
	Origin geom.Vec3     `json:"origin"`
}

// Env is the level data a plan reads. None of it may change while a plan
// runs.
type Env struct {
	Now     float64
	Oracle  nav.Oracle
	Items   *item.Catalog
	Regions *region.Index
	Model   *economy.Model
}

// Request describes the combatant this tick.
type Request struct {
	Player *economy.Player
	// Objective is where the combatant is headed, nil when it has nowhere
	// to go.
	Objective *Goal
	// EnemyScore is the value of killing the enemies near the combatant
	// relative to an ordinary kill. Zero means 1.
	EnemyScore      float64
	Teammates       int
	Enemies         int
	NearbyTeammates int
	NearbyEnemies   int
	// Players is the number of combatants in the match.
	Players int
}

// Option is one evaluated chain.
type Option struct {
	Chain []string `json:"chain"`
	// Arrivals is the predicted seconds from now each cluster is reached,
	// Ready when its first member will be present.
	Arrivals  []float64 `json:"arrivals"`
	Ready     []float64 `json:"ready"`
	ScoreRate float64   `json:"score_rate"`
	Selected  bool      `json:"selected"`
}

// Decision describes one full evaluation.
type Decision struct {
	Combatant  item.EntityID `json:"combatant"`
	Time       float64       `json:"time"`
	FastPath   bool          `json:"fast_path"`
	Candidates int           `json:"candidates"`
	Baseline   float64       `json:"baseline"`
	ScoreRate  float64       `json:"score_rate"`
	Chain      []string      `json:"chain"`
	Target     item.EntityID `json:"target,omitempty"`
	// Options holds the best evaluated chains, best first.
	Options []Option `json:"options,omitempty"`
}

// option is a candidate cluster prepared for the search.
type option struct {
	cluster *item.Cluster
	// fromStart and toGoal are travel times from the combatant and to the
	// objective, toGoal negative without an objective.
	fromStart float64
	toGoal    float64
	// soonest is when the first member will be present; maxRespawn how
	// far ahead respawns are known.
	soonest    float64
	maxRespawn float64
	rates      region.Rates
	neighbors  []int
	selected   bool
}

// search holds what one evaluation knows about the combatant.
type search struct {
	now        float64
	player     *economy.Player
	gt         resource.GameType
	state      economy.State
	area       int
	exposure   region.Exposure
	nearby     bool
	enemyScore float64

	objective   *Goal
	time        float64
	startRates  region.Rates
	endRates    region.Rates
	startRegion int
	endRegion   int
}

func (s *search) exposed(nearby bool) region.Exposure {
	e := s.exposure
	e.Nearby = nearby
	return e
}

// Planner holds one combatant's pickup plan between ticks. It is owned by
// that combatant and must not be shared.
type Planner struct {
	id     item.EntityID
	cfg    Config
	logger *zap.Logger

	// Stats feeds the combatant's play profile.
	Stats economy.CombatStats
	timed *TimedList[*item.Cluster]

	chain   []*item.Cluster
	centers []*item.Instance
	target  *item.Instance

	recomputeAt   float64
	damage        float64
	objectiveArea int
	spawnedCount  int
	last          *Decision
}

// NewPlanner creates the planner for combatant id.
func NewPlanner(id item.EntityID, skill float64, cfg Config, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		id:            id,
		cfg:           cfg,
		logger:        logger.With(zap.Int("combatant", int(id))),
		Stats:         economy.NewCombatStats(),
		timed:         NewTimedList[*item.Cluster](MaxTimed(skill)),
		objectiveArea: -1,
	}
}

// ID is the combatant.
func (p *Planner) ID() item.EntityID { return p.id }

// Chain returns the committed clusters in visiting order.
func (p *Planner) Chain() []*item.Cluster { return p.chain }

// Target is the item currently walked toward, nil for none.
func (p *Planner) Target() *item.Instance { return p.target }

// Timed returns the clusters whose respawn the combatant knows.
func (p *Planner) Timed() *TimedList[*item.Cluster] { return p.timed }

// LastDecision returns the latest full evaluation.
func (p *Planner) LastDecision() *Decision { return p.last }

// SetSkill changes how many clusters can be timed.
func (p *Planner) SetSkill(skill float64) { p.timed.SetCap(MaxTimed(skill)) }

// RecordCombat adds a statistics delta reported by the host.
func (p *Planner) RecordCombat(d economy.CombatStats) { p.Stats.Merge(d) }

// Reset forgets everything tied to the current level.
func (p *Planner) Reset() {
	p.timed.Reset()
	p.commit(nil)
	p.target = nil
	p.recomputeAt = 0
	p.damage = 0
	p.objectiveArea = -1
	p.last = nil
}

// Plan returns the item to move toward before the objective, or nil to
// keep heading for the objective. The decision is non-nil when a full
// evaluation ran this call.
func (p *Planner) Plan(env *Env, req Request) (*Goal, *Decision) {
	pl := req.Player
	if pl == nil || !pl.Alive() || env.Regions.PlayerRegion(p.id) < 0 {
		p.commit(nil)
		p.target = nil
		return nil, nil
	}
	p.timed.Expire(env.Now)

	damage := economy.HealthArmorToDamage(float64(pl.Health), float64(pl.Armor))
	objectiveArea := -1
	if req.Objective != nil {
		objectiveArea = req.Objective.Area
	}

	var d *Decision
	if p.shouldRecompute(damage, objectiveArea, env.Now) {
		p.objectiveArea = objectiveArea
		p.recomputeAt = env.Now + p.cfg.RecomputeDelay
		p.damage = damage
		d = p.evaluate(env, req)
		p.last = d
	}

	p.target = p.selectItem(pl, env.Model.Rules.GameType)
	if p.target == nil {
		return nil, d
	}
	if d != nil {
		d.Target = p.target.ID
	}
	return &Goal{Entity: p.target.ID, Area: p.target.Area, Origin: p.target.Origin}, d
}

func (p *Planner) shouldRecompute(damage float64, objectiveArea int, now float64) bool {
	if p.recomputeAt <= now {
		return true
	}
	if damage < p.damage-p.cfg.RecomputeDamageDrop {
		return true
	}
	if len(p.chain) > 0 {
		if p.centers[0] != p.chain[0].Center {
			return true
		}
		n := p.chain[0].SpawnedCount()
		if n < p.spawnedCount {
			return true
		}
		p.spawnedCount = n
	}
	return objectiveArea != p.objectiveArea
}

// TimeCluster starts tracking the respawn of c, picked up or seen present
// at now. It reports whether c is tracked.
func (p *Planner) TimeCluster(c *item.Cluster, now float64) bool {
	if c == nil || c.RespawnDelay <= 0 {
		return false
	}
	if p.timed.Add(c, now+c.RespawnDelay+timedGrace, c.Value) < 0 {
		return false
	}
	p.recomputeAt = now
	return true
}

// TimeClusterAt times the respawning cluster nearest a pickup heard at at.
func (p *Planner) TimeClusterAt(env *Env, at geom.Vec3) bool {
	r := env.Regions.Region(env.Regions.Nearest(at))
	if r == nil {
		return false
	}
	nearest := r.Cluster
	best := at.DistSq(nearest.Origin())
	for _, c := range r.Dynamic {
		if c.RespawnDelay <= 0 {
			continue
		}
		if d := at.DistSq(c.Origin()); d <= best {
			nearest, best = c, d
		}
	}
	return p.TimeCluster(nearest, env.Now)
}

func (p *Planner) visible(env *Env, from, to geom.Vec3) bool {
	eye := from.Add(geom.Vec3{0, 0, p.cfg.ViewHeight})
	return env.Oracle.LineOfSight(eye, to)
}

func (p *Planner) maxRespawn(c *item.Cluster, now float64) float64 {
	timeout, ok := p.timed.Timeout(c)
	if !ok {
		return 0
	}
	return math.Max(timeout-now, 0)
}

func (p *Planner) newSearch(env *Env, req Request) *search {
	pl := req.Player
	gt := env.Model.Rules.GameType
	info := env.Model.PlayInfo(&p.Stats, pl, economy.Opponents(gt, req.Players))

	s := &search{
		now:        env.Now,
		player:     pl,
		gt:         gt,
		state:      economy.FromPlayer(pl, info),
		area:       env.Oracle.AreaOf(pl.Origin),
		enemyScore: req.EnemyScore,
		objective:  req.Objective,
		time:       nav.Unreachable,
		endRegion:  -1,
	}
	if s.enemyScore <= 0 {
		s.enemyScore = 1
	}
	s.nearby = s.enemyScore <= 1
	// Play as if an enemy could join at any time.
	s.exposure = region.Exposure{
		Team:           pl.Team,
		TeamGame:       gt.IsTeam(),
		Carrier:        pl.Carrier(),
		Teammates:      req.Teammates,
		Enemies:        max(req.Enemies, 1),
		KnownTeammates: req.NearbyTeammates,
		KnownEnemies:   req.NearbyEnemies,
	}
	// Enemies around the start have had no time to leave.
	s.startRates, s.startRegion = env.Regions.EncounterRates(pl.Origin, s.exposed(true))

	if obj := req.Objective; obj != nil {
		s.time = env.Oracle.TravelTime(s.area, pl.Origin, obj.Area, obj.Origin)
	}
	if s.time >= 0 {
		seen := s.nearby && p.visible(env, pl.Origin, s.objective.Origin)
		s.endRates, s.endRegion = env.Regions.EncounterRates(s.objective.Origin, s.exposed(seen))
	} else {
		s.endRates = s.startRates
	}
	return s
}

// validateChain re-resolves chain members whose dropped item moved to
// another pool slot and drops those no longer tracked.
func (p *Planner) validateChain(pool *item.DroppedPool) {
	chain, centers := p.chain[:0], p.centers[:0]
	for i, c := range p.chain {
		center := p.centers[i]
		if c.Center != center {
			if center == nil {
				continue
			}
			moved, ok := pool.Lookup(center.ID)
			if !ok {
				continue
			}
			c = moved
		}
		chain = append(chain, c)
		centers = append(centers, center)
	}
	p.chain, p.centers = chain, centers
}

// gather lists candidate clusters: the previous chain, timed clusters and
// clusters of the regions between the combatant and its objective.
func (p *Planner) gather(env *Env, s *search) []option {
	p.validateChain(env.Items.Dropped)

	var consider []*item.Cluster
	seen := make(map[*item.Cluster]bool)
	add := func(c *item.Cluster) {
		if c == nil || seen[c] || len(consider) >= p.cfg.MaxOptions {
			return
		}
		seen[c] = true
		consider = append(consider, c)
	}
	for _, c := range p.chain {
		add(c)
	}
	for _, c := range p.timed.Keys() {
		add(c)
	}
	for _, ri := range env.Regions.NeighborList(s.startRegion, s.endRegion) {
		r := env.Regions.Region(ri)
		if r == nil {
			continue
		}
		add(r.Cluster)
		for _, c := range r.Dynamic {
			add(c)
		}
	}

	opts := make([]option, 0, len(consider))
	for _, c := range consider {
		if o, ok := p.setupOption(env, s, c); ok {
			opts = append(opts, o)
		}
	}
	return opts
}

// setupOption prepares c for the search. It fails for clusters that
// cannot matter this evaluation.
func (p *Planner) setupOption(env *Env, s *search, c *item.Cluster) (option, bool) {
	o := option{cluster: c, soonest: -1}

	grabbable := false
	for _, it := range c.Items {
		if it.InUse && economy.CanGrab(s.player, it, s.gt) {
			grabbable = true
			break
		}
	}
	if !grabbable {
		return o, false
	}

	for _, it := range c.Items {
		until, ok := it.Until(s.now)
		if !ok {
			continue
		}
		if o.soonest < 0 || until < o.soonest {
			o.soonest = until
		}
	}
	if o.soonest < 0 {
		return o, false
	}
	// Only respawns the combatant knows about count.
	o.maxRespawn = p.maxRespawn(c, s.now)
	if o.maxRespawn < o.soonest {
		return o, false
	}

	seen := p.visible(env, s.player.Origin, c.Origin())
	if seen && o.soonest == 0 {
		p.TimeCluster(c, s.now)
	}

	o.fromStart = env.Oracle.TravelTime(s.area, s.player.Origin, c.Area(), c.Origin())
	if o.fromStart < 0 {
		return o, false
	}
	o.toGoal = nav.Unreachable
	if s.time >= 0 {
		o.toGoal = env.Oracle.TravelTime(c.Area(), c.Origin(), s.objective.Area, s.objective.Origin)
		if o.toGoal < 0 {
			return o, false
		}
	}

	var ri int
	o.rates, ri = env.Regions.EncounterRates(c.Origin(), s.exposed(s.nearby && seen))
	if ri < 0 {
		return o, false
	}
	o.neighbors = env.Regions.NeighborList(c.Region, s.endRegion)
	o.selected = len(p.chain) > 0 && c == p.chain[0] && c.Center == p.centers[0]
	return o, true
}

// fastPath returns the nearest option within autopickup range holding a
// useful present item, -1 for none.
func (p *Planner) fastPath(s *search, opts []option) int {
	nearest := -1
	limit := p.cfg.AutopickupTime
	for i := range opts {
		o := &opts[i]
		if o.fromStart >= limit {
			continue
		}
		useful := false
		for _, it := range o.cluster.Items {
			if !it.InUse || !it.Spawned {
				continue
			}
			if economy.ItemUtility(s.player, it, s.gt) < p.cfg.AutopickupUtility {
				continue
			}
			useful = true
			break
		}
		if useful {
			nearest, limit = i, o.fromStart
		}
	}
	return nearest
}

// baseline scores heading straight for the objective.
func (p *Planner) baseline(s *search) float64 {
	rs := s.state
	if s.time < 0 {
		rs.PredictEncounter(p.cfg.PredictTimeMin, s.enemyScore, s.startRates.SeeEnemy, s.startRates.EnemyAttack)
		return rs.ScoreRate()
	}

	t := s.time
	if len(p.chain) > 0 {
		t += p.cfg.ChangePenaltyTime
	}
	first, second := t*.5, t*.5
	if t < p.cfg.PredictTimeMin {
		second += p.cfg.PredictTimeMin - t
	}
	rs.PredictEncounter(first, s.enemyScore, s.startRates.SeeEnemy, s.startRates.EnemyAttack)
	rs.PredictEncounter(second, 1, s.endRates.SeeEnemy, s.endRates.SeeEnemy)
	return rs.ScoreRate()
}

func (p *Planner) evaluate(env *Env, req Request) *Decision {
	s := p.newSearch(env, req)
	opts := p.gather(env, s)
	d := &Decision{Combatant: p.id, Time: env.Now, Candidates: len(opts)}

	if i := p.fastPath(s, opts); i >= 0 {
		p.commit([]*item.Cluster{opts[i].cluster})
		d.FastPath = true
		d.Chain = clusterNames(p.chain)
		p.logger.Debug("fast pickup", zap.String("cluster", opts[i].cluster.Name()))
		return d
	}

	d.Baseline = p.baseline(s)
	best := d.Baseline
	var bestChain []int

	states := make([]economy.State, p.cfg.MaxChain+1)
	states[0] = s.state
	iter := NewSubsetIter(p.cfg.MaxChain, len(opts))
	iter.Next()
	for iter.Valid() {
		n := iter.Len()
		this := &opts[iter.Last()]

		var last *option
		travel, initial, lastRates := this.fromStart+p.cfg.ChangePenaltyTime, s.enemyScore, s.startRates
		if n > 1 {
			last = &opts[iter.At(n-2)]
			travel = env.Regions.TravelTime(last.cluster.Region, this.cluster.Region)
			initial, lastRates = 1, last.rates
		}
		if travel < 0 {
			iter.Skip()
			continue
		}
		if last != nil && !region.IsNeighbor(this.cluster.Region, last.neighbors) {
			iter.Skip()
			continue
		}

		rs := &states[n]
		*rs = states[n-1]
		rs.PredictEncounter(travel*.5, initial, lastRates.SeeEnemy, lastRates.EnemyAttack)
		rs.PredictEncounter(travel*.5, 1, this.rates.SeeEnemy, this.rates.EnemyAttack)
		// Arrival is the simulated clock, which speed powerups shorten.
		// Nothing in the cluster will be back by then.
		if rs.Time < this.soonest {
			iter.Skip()
			continue
		}
		window := math.Min(rs.Time, this.maxRespawn)
		if !rs.AddCluster(this.cluster, s.now, window, this.rates.SeeTeammate, this.rates.SeeEnemy) {
			iter.Skip()
			continue
		}

		end := *rs
		if this.toGoal < 0 {
			end.PredictEncounter(p.cfg.PredictTimeMin, 1, this.rates.SeeEnemy, this.rates.EnemyAttack)
		} else {
			t := this.toGoal * .5
			end.PredictEncounter(t, 1, this.rates.SeeEnemy, this.rates.EnemyAttack)
			end.PredictEncounter(math.Max(t, p.cfg.PredictTimeMin), 1, s.endRates.SeeEnemy, s.endRates.EnemyAttack)
		}

		rate := end.ScoreRate()
		if opts[iter.At(0)].selected {
			rate = keepBonus(rate, p.cfg.ChangePenaltyFactor)
		}
		chosen := best < rate
		if chosen {
			best = rate
			bestChain = append(bestChain[:0], iter.Indices()...)
		}
		d.Options = p.recordOption(d.Options, opts, iter.Indices(), states[1:n+1], rate, chosen)
		iter.Next()
	}

	chain := make([]*item.Cluster, len(bestChain))
	for i, idx := range bestChain {
		chain[i] = opts[idx].cluster
	}
	p.commit(chain)
	d.ScoreRate = best
	d.Chain = clusterNames(p.chain)
	p.logger.Debug("pickup chain selected",
		zap.Strings("chain", d.Chain),
		zap.Float64("score_rate", best),
		zap.Float64("baseline", d.Baseline),
		zap.Int("candidates", len(opts)))
	return d
}

// keepBonus raises rate for staying on the current chain. Negative rates
// move toward zero instead of growing more negative.
func keepBonus(rate, factor float64) float64 {
	return rate + math.Abs(rate)*(factor-1)
}

// recordOption keeps the MaxOptions best evaluated chains, best first.
// steps holds the state on reaching each cluster of the chain.
func (p *Planner) recordOption(list []Option, opts []option, indices []int, steps []economy.State, rate float64, chosen bool) []Option {
	if p.cfg.MaxOptions <= 0 || len(list) >= p.cfg.MaxOptions && rate <= list[len(list)-1].ScoreRate {
		return list
	}
	names := make([]string, len(indices))
	arrivals := make([]float64, len(indices))
	ready := make([]float64, len(indices))
	for i, idx := range indices {
		names[i] = opts[idx].cluster.Name()
		arrivals[i] = steps[i].Time
		ready[i] = opts[idx].soonest
	}
	o := Option{Chain: names, Arrivals: arrivals, Ready: ready, ScoreRate: rate, Selected: chosen}
	at := sort.Search(len(list), func(i int) bool { return list[i].ScoreRate < rate })
	if len(list) < p.cfg.MaxOptions {
		list = append(list, Option{})
	}
	copy(list[at+1:], list[at:])
	list[at] = o
	return list
}

func (p *Planner) commit(chain []*item.Cluster) {
	p.chain = chain
	p.centers = make([]*item.Instance, len(chain))
	for i, c := range chain {
		p.centers[i] = c.Center
	}
	p.spawnedCount = 0
	if len(chain) > 0 {
		p.spawnedCount = chain[0].SpawnedCount()
	}
}

// selectItem picks the member of the first chain cluster to walk toward:
// the nearest present one, else the nearest one still to respawn.
func (p *Planner) selectItem(pl *economy.Player, gt resource.GameType) *item.Instance {
	if len(p.chain) == 0 {
		return nil
	}
	var best *item.Instance
	bestDist := 0.0
	bestSpawned := false
	for _, it := range p.chain[0].Items {
		if !it.InUse || !economy.CanGrab(pl, it, gt) {
			continue
		}
		d := it.Origin.DistSq(pl.Origin)
		if best != nil {
			if bestSpawned && !it.Spawned {
				continue
			}
			if bestSpawned == it.Spawned && bestDist <= d {
				continue
			}
		}
		best, bestDist, bestSpawned = it, d, it.Spawned
	}
	return best
}

func clusterNames(chain []*item.Cluster) []string {
	names := make([]string, len(chain))
	for i, c := range chain {
		names[i] = c.Name()
	}
	return names
}
