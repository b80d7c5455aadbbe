package reel

import "math"

// Affine is a 2D placement: the six coefficients of
//
//	x' = XX*x + XY*y + TX
//	y' = YX*x + YY*y + TY
//
// the top two rows of a 3x3 homogeneous matrix. Node rendering only
// ever builds one through ComposeTRS; the general form exists so
// placements compose (Mul) and invert for destination-to-source pixel
// mapping.
type Affine struct {
	XX, XY, TX float64
	YX, YY, TY float64
}

// Point is a 2D coordinate.
type Point struct {
	X, Y float64
}

// Identity returns the do-nothing placement.
func Identity() Affine {
	return Affine{XX: 1, YY: 1}
}

// ComposeTRS builds the base-transform placement used by node rendering
// (§4.8): scale and rotate about the anchor point, then translate into
// position. Expanding T(x,y)·T(ax,ay)·R(θ)·S(sx,sy)·T(-ax,-ay) and
// collapsing the translations leaves the linear part R·S and a
// translation chosen so the anchor lands at (anchor + offset).
func ComposeTRS(x, y, anchorX, anchorY, rotation, scaleX, scaleY float64) Affine {
	sin, cos := math.Sincos(rotation)
	m := Affine{
		XX: cos * scaleX, XY: -sin * scaleY,
		YX: sin * scaleX, YY: cos * scaleY,
	}
	m.TX = x + anchorX - (m.XX*anchorX + m.XY*anchorY)
	m.TY = y + anchorY - (m.YX*anchorX + m.YY*anchorY)
	return m
}

// Mul returns the placement that applies other first, then m.
func (m Affine) Mul(other Affine) Affine {
	return Affine{
		XX: m.XX*other.XX + m.XY*other.YX,
		XY: m.XX*other.XY + m.XY*other.YY,
		TX: m.XX*other.TX + m.XY*other.TY + m.TX,
		YX: m.YX*other.XX + m.YY*other.YX,
		YY: m.YX*other.XY + m.YY*other.YY,
		TY: m.YX*other.TX + m.YY*other.TY + m.TY,
	}
}

// Apply maps p through the placement.
func (m Affine) Apply(p Point) Point {
	return Point{
		X: m.XX*p.X + m.XY*p.Y + m.TX,
		Y: m.YX*p.X + m.YY*p.Y + m.TY,
	}
}

// Invert returns the inverse placement: the linear part's 2x2 inverse,
// with the translation mapped back through it. ok is false when the
// placement is degenerate (a zero scale collapses the image onto a
// line); callers treat that as nothing to sample rather than silently
// substituting some other transform.
func (m Affine) Invert() (Affine, bool) {
	det := m.XX*m.YY - m.XY*m.YX
	if det == 0 {
		return Affine{}, false
	}
	inv := Affine{
		XX: m.YY / det, XY: -m.XY / det,
		YX: -m.YX / det, YY: m.XX / det,
	}
	inv.TX = -(inv.XX*m.TX + inv.XY*m.TY)
	inv.TY = -(inv.YX*m.TX + inv.YY*m.TY)
	return inv, true
}

// IsIdentity reports whether applying m would change nothing.
func (m Affine) IsIdentity() bool {
	return m == Identity()
}
