package resource

import (
	"fmt"
	"math"
)

// Cell is one square of a level's walk grid.
type Cell byte

const (
	CellFloor Cell = '.'
	CellWall  Cell = '#'
	CellVoid  Cell = ' '
)

// Grid stores a level's walkable floor as square cells. Row y covers world
// Y in [y*CellSize, (y+1)*CellSize); column x likewise covers world X.
type Grid struct {
	Width    int
	Height   int
	CellSize float64
	FloorZ   float64
	// cells[y][x]
	cells [][]Cell
}

// NewGrid creates a Grid with every cell walkable.
func NewGrid(w, h int, cellSize, floorZ float64) *Grid {
	g := &Grid{Width: w, Height: h, CellSize: cellSize, FloorZ: floorZ}
	g.cells = make([][]Cell, h)
	for y := range g.cells {
		g.cells[y] = make([]Cell, w)
		for x := range g.cells[y] {
			g.cells[y][x] = CellFloor
		}
	}
	return g
}

// ParseGrid builds a Grid from text rows. Short rows are padded with walls.
func ParseGrid(rows []string, cellSize, floorZ float64) (*Grid, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("resource: grid has no rows")
	}
	if cellSize <= 0 {
		return nil, fmt.Errorf("resource: grid cell size must be positive, got %v", cellSize)
	}
	w := 0
	for _, r := range rows {
		if len(r) > w {
			w = len(r)
		}
	}
	g := NewGrid(w, len(rows), cellSize, floorZ)
	for y, r := range rows {
		for x := 0; x < w; x++ {
			c := CellWall
			if x < len(r) {
				c = Cell(r[x])
			}
			switch c {
			case CellFloor, CellWall, CellVoid:
			default:
				return nil, fmt.Errorf("resource: grid cell %q at (%d,%d) is not one of '.', '#', ' '", r[x], x, y)
			}
			g.cells[y][x] = c
		}
	}
	return g, nil
}

// Set changes the cell at (x, y). Out-of-bounds writes are ignored.
func (g *Grid) Set(x, y int, c Cell) {
	if !g.InBounds(x, y) {
		return
	}
	g.cells[y][x] = c
}

// InBounds reports whether (x, y) is a cell of the grid.
func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && x < g.Width && y >= 0 && y < g.Height
}

// At returns the cell at (x, y); everything outside the grid is wall.
func (g *Grid) At(x, y int) Cell {
	if !g.InBounds(x, y) {
		return CellWall
	}
	return g.cells[y][x]
}

// Walkable reports whether a combatant can stand on (x, y).
func (g *Grid) Walkable(x, y int) bool {
	return g.At(x, y) == CellFloor
}

// BlocksSight reports whether (x, y) stops a line of sight.
func (g *Grid) BlocksSight(x, y int) bool {
	return g.At(x, y) == CellWall
}

// CellOf converts world X/Y into cell coordinates.
func (g *Grid) CellOf(px, py float64) (int, int) {
	return int(math.Floor(px / g.CellSize)), int(math.Floor(py / g.CellSize))
}

// CellCenter returns the world X/Y of the middle of cell (x, y).
func (g *Grid) CellCenter(x, y int) (float64, float64) {
	return (float64(x) + .5) * g.CellSize, (float64(y) + .5) * g.CellSize
}
