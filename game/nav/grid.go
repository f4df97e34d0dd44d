package nav

import (
	"math"

	"github.com/kasuganosora/arenabot/game/geom"
	"github.com/kasuganosora/arenabot/resource"
)

// DefaultRunSpeed is the ground speed of a combatant in units per second.
const DefaultRunSpeed = 320.0

const maxCachedRoutes = 1 << 16

// GridOracle implements Oracle over a resource.Grid. Every walkable cell is
// one area. Not safe for concurrent use.
type GridOracle struct {
	grid   *resource.Grid
	speed  float64
	routes map[[2]int]float64
}

// NewGridOracle creates a GridOracle moving at speed units per second.
func NewGridOracle(g *resource.Grid, speed float64) *GridOracle {
	if speed <= 0 {
		speed = DefaultRunSpeed
	}
	return &GridOracle{grid: g, speed: speed, routes: make(map[[2]int]float64)}
}

// Grid returns the underlying grid.
func (o *GridOracle) Grid() *resource.Grid { return o.grid }

func (o *GridOracle) cell(p geom.Vec3) Point {
	x, y := o.grid.CellOf(p[0], p[1])
	return Point{x, y}
}

// AreaOf implements Oracle.
func (o *GridOracle) AreaOf(p geom.Vec3) int {
	c := o.cell(p)
	if !o.grid.Walkable(c.X, c.Y) {
		return 0
	}
	return c.Y*o.grid.Width + c.X + 1
}

func (o *GridOracle) areaCell(area int) Point {
	i := area - 1
	return Point{i % o.grid.Width, i / o.grid.Width}
}

// TravelTime implements Oracle. Times are computed between area cells and
// memoized per area pair.
func (o *GridOracle) TravelTime(fromArea int, _ geom.Vec3, toArea int, _ geom.Vec3) float64 {
	if fromArea <= 0 || toArea <= 0 {
		return Unreachable
	}
	if fromArea == toArea {
		return 0
	}
	key := [2]int{fromArea, toArea}
	if t, ok := o.routes[key]; ok {
		return t
	}
	t := Unreachable
	if path := AStar(o.grid, o.areaCell(fromArea), o.areaCell(toArea)); path != nil {
		t = float64(len(path)) * o.grid.CellSize / o.speed
	}
	if len(o.routes) >= maxCachedRoutes {
		o.routes = make(map[[2]int]float64)
	}
	o.routes[key] = t
	return t
}

// LineOfSight implements Oracle by walking the cells the segment crosses.
func (o *GridOracle) LineOfSight(a, b geom.Vec3) bool {
	from, to := o.cell(a), o.cell(b)
	dx := int(math.Abs(float64(to.X - from.X)))
	dy := -int(math.Abs(float64(to.Y - from.Y)))
	sx, sy := 1, 1
	if from.X > to.X {
		sx = -1
	}
	if from.Y > to.Y {
		sy = -1
	}
	err := dx + dy
	x, y := from.X, from.Y
	for {
		if o.grid.BlocksSight(x, y) {
			return false
		}
		if x == to.X && y == to.Y {
			return true
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

// Grounded implements Oracle.
func (o *GridOracle) Grounded(p geom.Vec3, depth float64) bool {
	c := o.cell(p)
	if !o.grid.Walkable(c.X, c.Y) {
		return false
	}
	h := p[2] - o.grid.FloorZ
	return h >= 0 && h <= depth
}
