package nav

import "github.com/kasuganosora/arenabot/resource"

// Point is a 2D grid coordinate.
type Point struct {
	X, Y int
}

// AStar finds the shortest walkable path from `from` to `to` on the grid.
// Returns the path as a slice of Points (excluding the start, including the end).
// Returns nil if no path exists.
func AStar(g *resource.Grid, from, to Point) []Point {
	if g == nil || !g.Walkable(from.X, from.Y) || !g.Walkable(to.X, to.Y) {
		return nil
	}
	if from == to {
		return []Point{}
	}

	type node struct {
		pt     Point
		g, f   int
		parent *node
	}

	heuristic := func(a, b Point) int {
		dx := a.X - b.X
		if dx < 0 {
			dx = -dx
		}
		dy := a.Y - b.Y
		if dy < 0 {
			dy = -dy
		}
		return dx + dy
	}

	// Binary min-heap keyed on f.
	var pq []*node
	push := func(n *node) {
		pq = append(pq, n)
		i := len(pq) - 1
		for i > 0 {
			parent := (i - 1) / 2
			if pq[parent].f <= pq[i].f {
				break
			}
			pq[parent], pq[i] = pq[i], pq[parent]
			i = parent
		}
	}
	pop := func() *node {
		n := pq[0]
		last := len(pq) - 1
		pq[0] = pq[last]
		pq = pq[:last]
		i := 0
		for {
			left, right := 2*i+1, 2*i+2
			smallest := i
			if left < len(pq) && pq[left].f < pq[smallest].f {
				smallest = left
			}
			if right < len(pq) && pq[right].f < pq[smallest].f {
				smallest = right
			}
			if smallest == i {
				break
			}
			pq[i], pq[smallest] = pq[smallest], pq[i]
			i = smallest
		}
		return n
	}

	closed := make(map[Point]bool)
	gScore := make(map[Point]int)

	gScore[from] = 0
	push(&node{pt: from, f: heuristic(from, to)})

	dirs := []Point{{0, 1}, {0, -1}, {1, 0}, {-1, 0}}

	for len(pq) > 0 {
		cur := pop()
		if closed[cur.pt] {
			continue
		}
		closed[cur.pt] = true

		if cur.pt == to {
			var path []Point
			for n := cur; n.parent != nil; n = n.parent {
				path = append(path, n.pt)
			}
			for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
				path[i], path[j] = path[j], path[i]
			}
			return path
		}

		for _, d := range dirs {
			np := Point{cur.pt.X + d.X, cur.pt.Y + d.Y}
			if closed[np] || !g.Walkable(np.X, np.Y) {
				continue
			}
			ng := cur.g + 1
			if prev, ok := gScore[np]; !ok || ng < prev {
				gScore[np] = ng
				push(&node{pt: np, g: ng, f: ng + heuristic(np, to), parent: cur})
			}
		}
	}

	return nil
}
