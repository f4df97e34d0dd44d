// Package geom holds the small amount of 3D vector math the engine needs.
package geom

import "math"

// Vec3 is a point or direction in world units.
type Vec3 [3]float64

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]} }

func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]} }

func (v Vec3) Scale(s float64) Vec3 { return Vec3{v[0] * s, v[1] * s, v[2] * s} }

// DistSq is the squared distance between two points.
func (v Vec3) DistSq(o Vec3) float64 {
	d := v.Sub(o)
	return d[0]*d[0] + d[1]*d[1] + d[2]*d[2]
}

func (v Vec3) Dist(o Vec3) float64 { return math.Sqrt(v.DistSq(o)) }

// Bounds is an axis-aligned box.
type Bounds struct {
	Min, Max Vec3
}

// EmptyBounds returns a box that any added point replaces.
func EmptyBounds() Bounds {
	inf := math.Inf(1)
	return Bounds{Min: Vec3{inf, inf, inf}, Max: Vec3{-inf, -inf, -inf}}
}

// Add grows the box to contain p.
func (b *Bounds) Add(p Vec3) {
	for i := 0; i < 3; i++ {
		b.Min[i] = math.Min(b.Min[i], p[i])
		b.Max[i] = math.Max(b.Max[i], p[i])
	}
}

// Center of the box.
func (b Bounds) Center() Vec3 {
	return b.Min.Add(b.Max).Scale(.5)
}
