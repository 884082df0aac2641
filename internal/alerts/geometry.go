package alerts

import (
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/kjstillabower/snowday-predictor/internal/models"
)

// Covers reports whether the alert's coverage area contains the point.
// Containment is tested against the exact polygon and, to tolerate
// imprecise administrative boundaries, against the polygon expanded by
// buffer degrees: a point within buffer of the ring also counts. One
// matching polygon is enough.
func Covers(alert models.Alert, lat, lon, buffer float64) bool {
	pt := orb.Point{lon, lat}
	for _, poly := range alert.Polygons {
		if planar.PolygonContains(poly, pt) {
			return true
		}
		if buffer > 0 && len(poly) > 0 && distanceToRing(poly[0], pt) <= buffer {
			return true
		}
	}
	return false
}

// distanceToRing returns the planar distance from pt to the nearest point
// on the ring's boundary.
func distanceToRing(ring orb.Ring, pt orb.Point) float64 {
	best := math.Inf(1)
	for i := 1; i < len(ring); i++ {
		if d := distanceToSegment(ring[i-1], ring[i], pt); d < best {
			best = d
		}
	}
	return best
}

// distanceToSegment returns the planar distance from pt to segment ab.
func distanceToSegment(a, b, pt orb.Point) float64 {
	dx := b[0] - a[0]
	dy := b[1] - a[1]

	lengthSq := dx*dx + dy*dy
	if lengthSq == 0 {
		return planar.Distance(a, pt)
	}

	t := ((pt[0]-a[0])*dx + (pt[1]-a[1])*dy) / lengthSq
	switch {
	case t <= 0:
		return planar.Distance(a, pt)
	case t >= 1:
		return planar.Distance(b, pt)
	}
	proj := orb.Point{a[0] + t*dx, a[1] + t*dy}
	return planar.Distance(proj, pt)
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
