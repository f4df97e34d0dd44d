package region

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/kasuganosora/arenabot/game/geom"
	"github.com/kasuganosora/arenabot/game/item"
	"github.com/kasuganosora/arenabot/game/nav"
	"github.com/kasuganosora/arenabot/resource"
)

// maxVisibleBits is the width of the Region.Visible mask.
const maxVisibleBits = 32

// Config bounds the region tables.
type Config struct {
	MaxRegions         int
	MaxNeighbors       int
	MaxDynamic         int
	TrafficNeighbors   int
	PathNeighborWeight float64
	ViewHeight         float64
	SeedSeconds        float64
}

// DefaultConfig returns the stock region limits.
func DefaultConfig() Config {
	return Config{
		MaxRegions:         128,
		MaxNeighbors:       12,
		MaxDynamic:         3,
		TrafficNeighbors:   4,
		PathNeighborWeight: .35,
		ViewHeight:         26,
		SeedSeconds:        5,
	}
}

// Traffic counts sightings of one team near a region.
type Traffic struct {
	Actual    float64 `json:"actual"`
	Potential float64 `json:"potential"`
}

// Rate is Actual/Potential, 0 with no data.
func (t Traffic) Rate() float64 {
	if t.Potential <= 0 {
		return 0
	}
	return t.Actual / t.Potential
}

// Region is the area of the level around one static cluster.
type Region struct {
	Index   int
	Cluster *item.Cluster
	// Local holds the regions nearest by travel time, sorted by index.
	// The region itself is always included when reachable.
	Local []int
	// Visible has bit i set when Local[i] can be seen from this region.
	Visible uint32
	// Path[to] holds the regions closest to the route toward region to,
	// sorted by index.
	Path    [][]int
	Dynamic []*item.Cluster
	Traffic [resource.NumTeams]Traffic
}

// IsVisible reports whether neighbor is a visible local neighbor.
func (r *Region) IsVisible(neighbor int) bool {
	i := sort.SearchInts(r.Local, neighbor)
	if i >= len(r.Local) || r.Local[i] != neighbor {
		return false
	}
	return r.Visible&(1<<uint(i)) != 0
}

// Index holds every region of one level.
type Index struct {
	cfg     Config
	logger  *zap.Logger
	regions []*Region
	times   [][]float64
	tree    *kdTree

	players map[item.EntityID]int
}

// NewIndex creates an empty index.
func NewIndex(cfg Config, logger *zap.Logger) *Index {
	if cfg.MaxNeighbors > maxVisibleBits {
		cfg.MaxNeighbors = maxVisibleBits
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Index{cfg: cfg, logger: logger, players: make(map[item.EntityID]int)}
}

// Config returns the limits the index was built with.
func (x *Index) Config() Config { return x.cfg }

// Len is the number of regions.
func (x *Index) Len() int { return len(x.regions) }

// Ready reports whether regions exist.
func (x *Index) Ready() bool { return len(x.regions) > 0 }

// Region returns region i or nil.
func (x *Index) Region(i int) *Region {
	if i < 0 || i >= len(x.regions) {
		return nil
	}
	return x.regions[i]
}

// Regions returns all regions in index order.
func (x *Index) Regions() []*Region { return x.regions }

// Times returns the travel matrix. Callers must not modify it.
func (x *Index) Times() [][]float64 { return x.times }

// Reset drops every region.
func (x *Index) Reset() {
	for _, r := range x.regions {
		r.Cluster.Region = -1
	}
	x.regions = nil
	x.times = nil
	x.tree = nil
	x.players = make(map[item.EntityID]int)
}

// Setup builds one region per static cluster. When cached is a square
// matrix of the right size it is used instead of querying the oracle.
func (x *Index) Setup(static []*item.Cluster, oracle nav.Oracle, cached [][]float64) {
	x.Reset()

	n := len(static)
	if n > x.cfg.MaxRegions {
		x.logger.Warn("region limit reached, ignoring remaining clusters",
			zap.Int("clusters", n), zap.Int("max", x.cfg.MaxRegions))
		n = x.cfg.MaxRegions
	}
	x.regions = make([]*Region, n)
	anchors := make([]geom.Vec3, n)
	for i := 0; i < n; i++ {
		c := static[i]
		c.Region = i
		x.regions[i] = &Region{Index: i, Cluster: c}
		anchors[i] = c.Origin()
	}

	if validMatrix(cached, n) {
		x.times = cached
	} else {
		x.times = computeTimes(x.regions, oracle)
	}
	x.tree = buildKDTree(anchors)

	for _, r := range x.regions {
		x.setupLocal(r, oracle)
		x.setupPath(r)
	}
	x.seedTraffic()

	x.logger.Info("divided the level into regions", zap.Int("regions", n))
}

func validMatrix(m [][]float64, n int) bool {
	if len(m) != n {
		return false
	}
	for _, row := range m {
		if len(row) != n {
			return false
		}
	}
	return true
}

func computeTimes(regions []*Region, oracle nav.Oracle) [][]float64 {
	times := make([][]float64, len(regions))
	for from, start := range regions {
		times[from] = make([]float64, len(regions))
		for to, end := range regions {
			if from == to {
				continue
			}
			times[from][to] = oracle.TravelTime(start.Cluster.Area(), start.Cluster.Origin(),
				end.Cluster.Area(), end.Cluster.Origin())
		}
	}
	return times
}

type timedRegion struct {
	time  float64
	index int
}

// closest keeps the max entries with the lowest time and returns their
// indexes in ascending index order.
func closest(list []timedRegion, max int) []int {
	sort.SliceStable(list, func(i, j int) bool { return list[i].time < list[j].time })
	if len(list) > max {
		list = list[:max]
	}
	out := make([]int, len(list))
	for i, e := range list {
		out[i] = e.index
	}
	sort.Ints(out)
	return out
}

func (x *Index) setupLocal(r *Region, oracle nav.Oracle) {
	list := make([]timedRegion, 0, len(x.regions))
	for i := range x.regions {
		t := x.times[r.Index][i]
		if t < 0 {
			continue
		}
		list = append(list, timedRegion{time: t, index: i})
	}
	r.Local = closest(list, x.cfg.MaxNeighbors)

	eye := r.Cluster.Origin()
	eye[2] += x.cfg.ViewHeight
	r.Visible = 0
	for i, n := range r.Local {
		if n == r.Index {
			r.Visible |= 1 << uint(i)
			continue
		}
		target := x.regions[n].Cluster.Origin()
		target[2] += x.cfg.ViewHeight
		if oracle.LineOfSight(eye, target) {
			r.Visible |= 1 << uint(i)
		}
	}
}

func (x *Index) setupPath(start *Region) {
	w := x.cfg.PathNeighborWeight
	start.Path = make([][]int, len(x.regions))
	list := make([]timedRegion, 0, len(x.regions))
	for to := range x.regions {
		list = list[:0]
		for i := range x.regions {
			fromTime := x.times[start.Index][i]
			toTime := x.times[i][to]
			if fromTime < 0 || toTime < 0 {
				continue
			}
			list = append(list, timedRegion{time: fromTime*(1-w) + toTime*w, index: i})
		}
		start.Path[to] = closest(list, x.cfg.MaxNeighbors)
	}
}

func (x *Index) seedTraffic() {
	potential := 20 * x.cfg.SeedSeconds
	actual := potential
	if len(x.regions) >= 5 {
		actual = potential * 5 / float64(len(x.regions))
	}
	for _, r := range x.regions {
		for team := range r.Traffic {
			r.Traffic[team] = Traffic{Actual: actual, Potential: potential}
		}
	}
}

// TravelTime is the cached time between two regions, nav.Unreachable for
// unknown regions or impossible routes.
func (x *Index) TravelTime(from, to int) float64 {
	if from < 0 || to < 0 || from >= len(x.regions) || to >= len(x.regions) {
		return nav.Unreachable
	}
	return x.times[from][to]
}

// Nearest returns the region closest to p, -1 when there are none.
func (x *Index) Nearest(p geom.Vec3) int {
	best := x.tree.nearestN(p, 1)
	if len(best) == 0 {
		return -1
	}
	return best[0].id
}

// NearestN returns up to n regions closest to p with their distances,
// closest first.
func (x *Index) NearestN(p geom.Vec3, n int) ([]int, []float64) {
	best := x.tree.nearestN(p, n)
	ids := make([]int, len(best))
	dists := make([]float64, len(best))
	for i, b := range best {
		ids[i] = b.id
		dists[i] = math.Sqrt(b.distSq)
	}
	return ids, dists
}

// NeighborList returns the path neighbors from region from toward region
// to, or the local neighbors of from when to is not a region.
func (x *Index) NeighborList(from, to int) []int {
	r := x.Region(from)
	if r == nil {
		return nil
	}
	if to < 0 || to >= len(x.regions) {
		return r.Local
	}
	return r.Path[to]
}

// IsNeighbor reports whether region is in the sorted neighbor list.
func IsNeighbor(region int, neighbors []int) bool {
	i := sort.SearchInts(neighbors, region)
	return i < len(neighbors) && neighbors[i] == region
}

// ResetDynamic empties every region's dynamic cluster list.
func (x *Index) ResetDynamic() {
	for _, r := range x.regions {
		r.Dynamic = r.Dynamic[:0]
	}
}

// AddCluster assigns a mobile or dropped cluster to its nearest region and
// lists it there while the region has room.
func (x *Index) AddCluster(c *item.Cluster) {
	if c.Center == nil {
		return
	}
	c.Region = x.Nearest(c.Origin())
	r := x.Region(c.Region)
	if r != nil && len(r.Dynamic) < x.cfg.MaxDynamic {
		r.Dynamic = append(r.Dynamic, c)
	}
}
