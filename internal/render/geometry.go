package render

import "math"

// bowOffset lifts the curve's control point above the chord midpoint so
// parallel flows separate visually from a straight line.
const bowOffset = 40.0

// Point is a 2D coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// QuadCurve is a quadratic Bezier from P0 to P1 through control point C.
type QuadCurve struct {
	P0 Point `json:"p0"`
	C  Point `json:"c"`
	P1 Point `json:"p1"`
}

// CurveBetween builds the bowed edge curve between two endpoints.
func CurveBetween(x0, y0, x1, y1 float64) QuadCurve {
	return QuadCurve{
		P0: Point{X: x0, Y: y0},
		C:  Point{X: (x0 + x1) / 2, Y: (y0+y1)/2 - bowOffset},
		P1: Point{X: x1, Y: y1},
	}
}

// PointAt evaluates the curve at parameter t in [0, 1].
func (q QuadCurve) PointAt(t float64) Point {
	u := 1 - t
	return Point{
		X: u*u*q.P0.X + 2*u*t*q.C.X + t*t*q.P1.X,
		Y: u*u*q.P0.Y + 2*u*t*q.C.Y + t*t*q.P1.Y,
	}
}

// TangentAt returns the curve's direction angle (radians) at parameter t.
func (q QuadCurve) TangentAt(t float64) float64 {
	u := 1 - t
	dx := 2*u*(q.C.X-q.P0.X) + 2*t*(q.P1.X-q.C.X)
	dy := 2*u*(q.C.Y-q.P0.Y) + 2*t*(q.P1.Y-q.C.Y)
	return math.Atan2(dy, dx)
}

// ArrowheadAt returns the three vertices of an outlined triangle centered at
// the given curve parameter, pointing along the travel direction. reverse
// flips the orientation for reverse-flow edges.
func ArrowheadAt(q QuadCurve, t, size float64, reverse bool) [3]Point {
	tip := q.PointAt(t)
	angle := q.TangentAt(t)
	if reverse {
		angle += math.Pi
	}
	back := angle + math.Pi
	spread := 0.45 // half-angle of the triangle's base fan
	return [3]Point{
		{X: tip.X + size*math.Cos(angle), Y: tip.Y + size*math.Sin(angle)},
		{X: tip.X + size*math.Cos(back-spread), Y: tip.Y + size*math.Sin(back-spread)},
		{X: tip.X + size*math.Cos(back+spread), Y: tip.Y + size*math.Sin(back+spread)},
	}
}

// RadialGeom is the memoizable part of a radial gradient: center and radius.
// Color stops change every frame and are never cached with it.
type RadialGeom struct {
	CX float64 `json:"cx"`
	CY float64 `json:"cy"`
	R  float64 `json:"r"`
}
