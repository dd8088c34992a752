package diagram

import (
	"github.com/Kotoad/APP-PyQt-sub000/internal/blockspec"
	"github.com/Kotoad/APP-PyQt-sub000/internal/models"
)

// Route builds an L-shaped orthogonal polyline from p1 to p2. The longer
// axis is split at its (snapped) midpoint.
func Route(p1, p2 models.Point, grid int) []models.Point {
	dx := p2.X - p1.X
	dy := p2.Y - p1.Y
	var pts []models.Point
	if abs(dx) >= abs(dy) {
		mx := blockspec.Snap(p1.X+dx/2, grid)
		pts = []models.Point{p1, {X: mx, Y: p1.Y}, {X: mx, Y: p2.Y}, p2}
	} else {
		my := blockspec.Snap(p1.Y+dy/2, grid)
		pts = []models.Point{p1, {X: p1.X, Y: my}, {X: p2.X, Y: my}, p2}
	}
	return Simplify(pts)
}

// Simplify drops repeated points and the middle point of straight runs.
func Simplify(pts []models.Point) []models.Point {
	out := make([]models.Point, 0, len(pts))
	for _, p := range pts {
		if n := len(out); n > 0 && out[n-1] == p {
			continue
		}
		if n := len(out); n >= 2 && collinear(out[n-2], out[n-1], p) {
			out[n-1] = p
			if out[n-2] == p {
				out = out[:n-1]
			}
			continue
		}
		out = append(out, p)
	}
	return out
}

func collinear(a, b, c models.Point) bool {
	return (a.X == b.X && b.X == c.X) || (a.Y == b.Y && b.Y == c.Y)
}

// ValidPolyline reports whether every point lies on the grid and every
// consecutive pair shares exactly one coordinate.
func ValidPolyline(pts []models.Point, grid int) bool {
	if len(pts) == 0 {
		return false
	}
	for i, p := range pts {
		if p.X%grid != 0 || p.Y%grid != 0 {
			return false
		}
		if i == 0 {
			continue
		}
		q := pts[i-1]
		if (q.X == p.X) == (q.Y == p.Y) {
			return false
		}
	}
	return true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
