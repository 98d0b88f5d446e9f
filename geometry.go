package main

import "math"

// Rect is an axis-aligned rectangle.
type Rect struct {
	X, Y, W, H float64
}

// Normalize scales (dx, dy) to unit length. A zero vector is returned
// unchanged so callers never divide by zero.
func Normalize(dx, dy float64) (float64, float64) {
	if dx == 0 && dy == 0 {
		return 0, 0
	}
	mag := math.Sqrt(dx*dx + dy*dy)
	return dx / mag, dy / mag
}

// CircleRectOverlap checks if a circle expanded by r on all sides
// intersects the rectangle. Touching edges do not count as overlap.
func CircleRectOverlap(cx, cy, r float64, rect Rect) bool {
	return cx+r > rect.X && cx-r < rect.X+rect.W &&
		cy+r > rect.Y && cy-r < rect.Y+rect.H
}

// Distance returns the Euclidean distance between two points
func Distance(x1, y1, x2, y2 float64) float64 {
	dx := x2 - x1
	dy := y2 - y1
	return math.Sqrt(dx*dx + dy*dy)
}

// AngleTo returns the angle in radians from one point toward another
func AngleTo(fromX, fromY, toX, toY float64) float64 {
	return math.Atan2(toY-fromY, toX-fromX)
}
