package region

import (
	"sort"

	"github.com/kasuganosora/arenabot/game/geom"
)

// kdTree is a static 3-d tree over region anchor points.
type kdTree struct {
	nodes []kdNode
	root  int
}

type kdNode struct {
	point       geom.Vec3
	id          int
	axis        int
	left, right int
}

type neighbor struct {
	id     int
	distSq float64
}

func buildKDTree(points []geom.Vec3) *kdTree {
	t := &kdTree{nodes: make([]kdNode, 0, len(points)), root: -1}
	ids := make([]int, len(points))
	for i := range ids {
		ids[i] = i
	}
	t.root = t.build(points, ids, 0)
	return t
}

func (t *kdTree) build(points []geom.Vec3, ids []int, depth int) int {
	if len(ids) == 0 {
		return -1
	}
	axis := depth % 3
	sort.Slice(ids, func(i, j int) bool {
		a, b := points[ids[i]][axis], points[ids[j]][axis]
		if a != b {
			return a < b
		}
		return ids[i] < ids[j]
	})
	mid := len(ids) / 2
	n := len(t.nodes)
	t.nodes = append(t.nodes, kdNode{point: points[ids[mid]], id: ids[mid], axis: axis})
	left := t.build(points, ids[:mid], depth+1)
	right := t.build(points, ids[mid+1:], depth+1)
	t.nodes[n].left, t.nodes[n].right = left, right
	return n
}

// nearestN returns up to n nearest points to p, closest first. Ties go to
// the lower id.
func (t *kdTree) nearestN(p geom.Vec3, n int) []neighbor {
	if t == nil || t.root < 0 || n <= 0 {
		return nil
	}
	best := make([]neighbor, 0, n)
	t.search(t.root, p, n, &best)
	return best
}

func worse(a, b neighbor) bool {
	if a.distSq != b.distSq {
		return a.distSq > b.distSq
	}
	return a.id > b.id
}

func (t *kdTree) search(idx int, p geom.Vec3, n int, best *[]neighbor) {
	if idx < 0 {
		return
	}
	node := &t.nodes[idx]
	cand := neighbor{id: node.id, distSq: node.point.DistSq(p)}
	if len(*best) < n || worse((*best)[len(*best)-1], cand) {
		// insert keeping ascending order
		i := sort.Search(len(*best), func(i int) bool { return worse((*best)[i], cand) })
		*best = append(*best, neighbor{})
		copy((*best)[i+1:], (*best)[i:])
		(*best)[i] = cand
		if len(*best) > n {
			*best = (*best)[:n]
		}
	}

	diff := p[node.axis] - node.point[node.axis]
	near, far := node.left, node.right
	if diff > 0 {
		near, far = far, near
	}
	t.search(near, p, n, best)
	if len(*best) < n || diff*diff <= (*best)[len(*best)-1].distSq {
		t.search(far, p, n, best)
	}
}
