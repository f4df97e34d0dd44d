// Package nav provides the terrain queries the pickup engine consumes:
// area containment, travel time and line of sight.
package nav

import "github.com/kasuganosora/arenabot/game/geom"

// Unreachable is returned by TravelTime when no route exists.
const Unreachable = -1.0

// Oracle answers terrain queries. Implementations must return quickly;
// they are called synchronously from the decision tick.
type Oracle interface {
	// AreaOf returns the area containing p, or 0 when p is outside every area.
	AreaOf(p geom.Vec3) int
	// TravelTime estimates the seconds needed to move between two points,
	// or a negative value when there is no route.
	TravelTime(fromArea int, from geom.Vec3, toArea int, to geom.Vec3) float64
	// LineOfSight reports whether nothing solid lies between a and b.
	LineOfSight(a, b geom.Vec3) bool
	// Grounded reports whether solid floor lies within depth units below p.
	Grounded(p geom.Vec3, depth float64) bool
}
