/*
Copyright © 2024 the seaduck authors.
This file is part of seaduck.

seaduck is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

seaduck is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with seaduck.  If not, see <http://www.gnu.org/licenses/>.
*/

package seaduck

import (
	"math"

	"github.com/ctessum/geom"
	"gonum.org/v1/gonum/mat"
)

// EarthRadius is the radius of the Earth in meters.
const EarthRadius = 6371000.

const deg2rad = math.Pi / 180

// vec3 is a point in three-dimensional Cartesian space.
type vec3 [3]float64

// toVec converts longitude and latitude in degrees to a point on the
// unit sphere.
func toVec(lon, lat float64) vec3 {
	lo, la := lon*deg2rad, lat*deg2rad
	return vec3{math.Cos(la) * math.Cos(lo), math.Cos(la) * math.Sin(lo), math.Sin(la)}
}

// lonLat converts a point on the unit sphere to longitude and latitude
// in degrees.
func (v vec3) lonLat() (lon, lat float64) {
	lon = math.Atan2(v[1], v[0]) / deg2rad
	lat = math.Asin(math.Max(-1, math.Min(1, v[2]))) / deg2rad
	return
}

func (v vec3) add(o vec3) vec3      { return vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]} }
func (v vec3) sub(o vec3) vec3      { return vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]} }
func (v vec3) scale(s float64) vec3 { return vec3{v[0] * s, v[1] * s, v[2] * s} }
func (v vec3) dot(o vec3) float64   { return v[0]*o[0] + v[1]*o[1] + v[2]*o[2] }
func (v vec3) norm() float64        { return math.Sqrt(v.dot(v)) }
func (v vec3) unit() vec3           { return v.scale(1 / v.norm()) }
func (v vec3) cross(o vec3) vec3 {
	return vec3{v[1]*o[2] - v[2]*o[1], v[2]*o[0] - v[0]*o[2], v[0]*o[1] - v[1]*o[0]}
}

// arc returns the great-circle angle between two unit vectors in radians.
func arc(a, b vec3) float64 {
	return math.Atan2(a.cross(b).norm(), a.dot(b))
}

// tangentPlane is a gnomonic projection centered on a point on the
// unit sphere. Great circles project to straight lines.
type tangentPlane struct {
	c, e1, e2 vec3
}

func newTangentPlane(c vec3) tangentPlane {
	// e1 points east, e2 points north, except at the poles.
	e1 := vec3{-c[1], c[0], 0}
	if e1.norm() < 1e-12 {
		e1 = vec3{0, 1, 0}
	}
	e1 = e1.unit()
	e2 := c.cross(e1).unit()
	return tangentPlane{c: c, e1: e1, e2: e2}
}

// project returns the tangent plane coordinates of p. ok is false if
// p is on the far hemisphere.
func (t tangentPlane) project(p vec3) (pt geom.Point, ok bool) {
	d := p.dot(t.c)
	if d <= 1e-12 {
		return geom.Point{}, false
	}
	q := p.scale(1 / d)
	return geom.Point{X: q.dot(t.e1), Y: q.dot(t.e2)}, true
}

// lift returns the point on the unit sphere corresponding to tangent
// plane coordinates pt.
func (t tangentPlane) lift(pt geom.Point) vec3 {
	return t.c.add(t.e1.scale(pt.X)).add(t.e2.scale(pt.Y)).unit()
}

// quad holds the four corners of a cell in counter-clockwise order
// starting at the south-west corner.
type quad [4]geom.Point

// at returns the bilinear interpolation of the corners at
// s, t ∈ [0, 1].
func (q quad) at(s, t float64) geom.Point {
	w := [4]float64{(1 - s) * (1 - t), s * (1 - t), s * t, (1 - s) * t}
	var p geom.Point
	for i, c := range q {
		p.X += w[i] * c.X
		p.Y += w[i] * c.Y
	}
	return p
}

// polygon returns q as a polygon for containment testing.
func (q quad) polygon() geom.Polygon {
	return geom.Polygon{{q[0], q[1], q[2], q[3]}}
}

// newtonIterations bounds the iterations used to invert a quad.
var newtonIterations = 20

// invert finds the bilinear coordinates s, t of point p using
// Newton iterations. ok is false if the iterations do not converge.
func (q quad) invert(p geom.Point) (s, t float64, ok bool) {
	s, t = 0.5, 0.5
	jac := mat.NewDense(2, 2, nil)
	rhs := mat.NewVecDense(2, nil)
	var step mat.VecDense
	scale := math.Abs(q[2].X-q[0].X) + math.Abs(q[2].Y-q[0].Y)
	residual := func() (float64, float64) {
		x := q.at(s, t)
		return x.X - p.X, x.Y - p.Y
	}
	for iter := 0; iter < newtonIterations; iter++ {
		fx, fy := residual()
		if math.Abs(fx)+math.Abs(fy) <= 1e-13*scale {
			return s, t, true
		}
		dsx := (q[1].X-q[0].X)*(1-t) + (q[2].X-q[3].X)*t
		dsy := (q[1].Y-q[0].Y)*(1-t) + (q[2].Y-q[3].Y)*t
		dtx := (q[3].X-q[0].X)*(1-s) + (q[2].X-q[1].X)*s
		dty := (q[3].Y-q[0].Y)*(1-s) + (q[2].Y-q[1].Y)*s
		jac.Set(0, 0, dsx)
		jac.Set(0, 1, dtx)
		jac.Set(1, 0, dsy)
		jac.Set(1, 1, dty)
		rhs.SetVec(0, -fx)
		rhs.SetVec(1, -fy)
		if err := step.SolveVec(jac, rhs); err != nil {
			return s, t, false
		}
		s += step.AtVec(0)
		t += step.AtVec(1)
		if math.IsNaN(s) || math.IsNaN(t) || math.Abs(s) > 1e6 || math.Abs(t) > 1e6 {
			return s, t, false
		}
	}
	// Rounding can keep the residual just above the tolerance above.
	fx, fy := residual()
	return s, t, math.Abs(fx)+math.Abs(fy) <= 1e-9*scale
}
