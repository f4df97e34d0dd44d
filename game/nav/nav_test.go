package nav

import (
	"testing"

	"github.com/kasuganosora/arenabot/game/geom"
	"github.com/kasuganosora/arenabot/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustGrid(t *testing.T, rows ...string) *resource.Grid {
	t.Helper()
	g, err := resource.ParseGrid(rows, 64, 0)
	require.NoError(t, err)
	return g
}

// at returns the world point at the center of cell (x, y).
func at(g *resource.Grid, x, y int) geom.Vec3 {
	cx, cy := g.CellCenter(x, y)
	return geom.Vec3{cx, cy, 0}
}

func TestAStar_Straight(t *testing.T) {
	g := mustGrid(t, ".....")
	path := AStar(g, Point{0, 0}, Point{4, 0})
	require.Len(t, path, 4)
	assert.Equal(t, Point{4, 0}, path[3])
}

func TestAStar_AroundWall(t *testing.T) {
	g := mustGrid(t,
		".#.",
		".#.",
		"...",
	)
	path := AStar(g, Point{0, 0}, Point{2, 0})
	require.NotNil(t, path)
	assert.Len(t, path, 6)
	for _, p := range path {
		assert.True(t, g.Walkable(p.X, p.Y))
	}
}

func TestAStar_NoPath(t *testing.T) {
	g := mustGrid(t, ".#.")
	assert.Nil(t, AStar(g, Point{0, 0}, Point{2, 0}))
	assert.Nil(t, AStar(g, Point{0, 0}, Point{1, 0}), "blocked goal")
	assert.Nil(t, AStar(nil, Point{0, 0}, Point{1, 0}))
	assert.Empty(t, AStar(g, Point{0, 0}, Point{0, 0}))
}

func TestGridOracle_AreaOf(t *testing.T) {
	g := mustGrid(t, "..#", "...")
	o := NewGridOracle(g, 0)
	assert.Equal(t, 1, o.AreaOf(at(g, 0, 0)))
	assert.Equal(t, 5, o.AreaOf(at(g, 1, 1)))
	assert.Zero(t, o.AreaOf(at(g, 2, 0)), "wall")
	assert.Zero(t, o.AreaOf(geom.Vec3{-10, 0, 0}), "outside")
}

func TestGridOracle_TravelTime(t *testing.T) {
	g := mustGrid(t, ".....", "###..", ".....")
	o := NewGridOracle(g, 320)
	a, b := at(g, 0, 0), at(g, 4, 0)
	tt := o.TravelTime(o.AreaOf(a), a, o.AreaOf(b), b)
	assert.InDelta(t, 4*64/320.0, tt, 1e-9)

	c := at(g, 0, 2)
	tt = o.TravelTime(o.AreaOf(a), a, o.AreaOf(c), c)
	assert.InDelta(t, 8*64/320.0, tt, 1e-9)

	assert.Zero(t, o.TravelTime(1, a, 1, a))
	assert.Equal(t, Unreachable, o.TravelTime(0, a, 1, a))
}

func TestGridOracle_Unreachable(t *testing.T) {
	g := mustGrid(t, "..#..")
	o := NewGridOracle(g, 320)
	a, b := at(g, 0, 0), at(g, 4, 0)
	assert.Less(t, o.TravelTime(o.AreaOf(a), a, o.AreaOf(b), b), 0.0)
	// memoized result is stable
	assert.Less(t, o.TravelTime(o.AreaOf(a), a, o.AreaOf(b), b), 0.0)
}

func TestGridOracle_LineOfSight(t *testing.T) {
	g := mustGrid(t,
		".....",
		"..#..",
		".....",
	)
	o := NewGridOracle(g, 320)
	assert.True(t, o.LineOfSight(at(g, 0, 0), at(g, 4, 0)))
	assert.False(t, o.LineOfSight(at(g, 0, 1), at(g, 4, 1)))
	assert.True(t, o.LineOfSight(at(g, 3, 2), at(g, 3, 2)))
}

func TestGridOracle_LineOfSightOverVoid(t *testing.T) {
	g := mustGrid(t, ".  .")
	o := NewGridOracle(g, 320)
	assert.True(t, o.LineOfSight(at(g, 0, 0), at(g, 3, 0)))
}

func TestGridOracle_Grounded(t *testing.T) {
	g := mustGrid(t, ". ")
	o := NewGridOracle(g, 320)
	p := at(g, 0, 0)
	assert.True(t, o.Grounded(p, 64))
	p[2] = 100
	assert.False(t, o.Grounded(p, 64))
	assert.False(t, o.Grounded(at(g, 1, 0), 64), "void has no floor")
}
