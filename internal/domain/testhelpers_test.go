package domain

import "github.com/paulmach/orb/geo"

// offsetPoint moves p by meters along bearing (degrees clockwise from north).
func offsetPoint(p Point, meters, bearing float64) Point {
	return PointFromOrb(geo.PointAtBearingAndDistance(p.Orb(), bearing, meters))
}
