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
	"errors"
	"fmt"
)

// Edge is one of the four edges of a face.
type Edge int

// The edges of a face. West and East are the i = 0 and i = Nx-1 sides;
// South and North are the j = 0 and j = Ny-1 sides.
const (
	West Edge = iota
	East
	South
	North
)

var edgeNames = [4]string{"west", "east", "south", "north"}

func (e Edge) String() string {
	if e < West || e > North {
		return fmt.Sprintf("Edge(%d)", int(e))
	}
	return edgeNames[e]
}

// ParseEdge converts an edge name to an Edge.
func ParseEdge(s string) (Edge, error) {
	for i, n := range edgeNames {
		if n == s {
			return Edge(i), nil
		}
	}
	return West, fmt.Errorf("seaduck: unknown edge %q", s)
}

// outward returns the index-space direction pointing out of the face
// through e.
func (e Edge) outward() [2]int {
	switch e {
	case West:
		return [2]int{-1, 0}
	case East:
		return [2]int{1, 0}
	case South:
		return [2]int{0, -1}
	default:
		return [2]int{0, 1}
	}
}

// along returns the index-space direction of increasing position
// along e.
func (e Edge) along() [2]int {
	if e == West || e == East {
		return [2]int{0, 1}
	}
	return [2]int{1, 0}
}

// FaceEdge identifies one edge of one face.
type FaceEdge struct {
	Face int
	Edge Edge
}

// Link describes what lies across a face edge. Reversed specifies that
// the position along the edge runs in the opposite direction on the
// neighboring edge.
type Link struct {
	Face     int
	Edge     Edge
	Reversed bool
}

// Boundary marks a face edge that is the edge of the domain.
var Boundary = Link{Face: -1}

// IsBoundary returns whether l is a domain boundary marker.
func (l Link) IsBoundary() bool { return l.Face < 0 }

// Adjacency is a face connection table. Every edge of every face must
// have exactly one entry.
type Adjacency map[FaceEdge]Link

// Transform maps index-space directions from one face frame to another.
// It is always a rotation by a multiple of 90 degrees.
type Transform [2][2]int

// Identity is the Transform between cells on the same face.
var Identity = Transform{{1, 0}, {0, 1}}

// Apply returns t applied to vector (x, y).
func (t Transform) Apply(x, y float64) (float64, float64) {
	return float64(t[0][0])*x + float64(t[0][1])*y, float64(t[1][0])*x + float64(t[1][1])*y
}

func (t Transform) applyInt(d [2]int) [2]int {
	return [2]int{t[0][0]*d[0] + t[0][1]*d[1], t[1][0]*d[0] + t[1][1]*d[1]}
}

// Then returns the transform that applies t and then o.
func (t Transform) Then(o Transform) Transform {
	var r Transform
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			r[i][j] = o[i][0]*t[0][j] + o[i][1]*t[1][j]
		}
	}
	return r
}

// Inverse returns the inverse of t.
func (t Transform) Inverse() Transform {
	return Transform{{t[0][0], t[1][0]}, {t[0][1], t[1][1]}}
}

// IsIdentity returns whether t is the identity transform.
func (t Transform) IsIdentity() bool { return t == Identity }

func (t Transform) det() int { return t[0][0]*t[1][1] - t[0][1]*t[1][0] }

// crossing returns the transform for moving out of a face through edge
// e into a neighbor through edge l.Edge.
func crossing(e Edge, l Link) Transform {
	o1, a1 := e.outward(), e.along()
	o2, a2 := l.Edge.outward(), l.Edge.along()
	s := 1
	if l.Reversed {
		s = -1
	}
	var t Transform
	for r := 0; r < 2; r++ {
		for c := 0; c < 2; c++ {
			t[r][c] = -o2[r]*o1[c] + s*a2[r]*a1[c]
		}
	}
	return t
}

func edgeLength(s Shape, e Edge) int {
	if e == West || e == East {
		return s.Ny
	}
	return s.Nx
}

// validateAdjacency checks that adj describes a consistent topology
// for faces with the given shapes.
func validateAdjacency(adj Adjacency, shapes []Shape) error {
	for fe := range adj {
		if fe.Face < 0 || fe.Face >= len(shapes) || fe.Edge < West || fe.Edge > North {
			return GridTopologyError{Face: fe.Face, Edge: fe.Edge, Reason: "entry refers to a nonexistent face edge"}
		}
	}
	for f := range shapes {
		for e := West; e <= North; e++ {
			l, ok := adj[FaceEdge{f, e}]
			if !ok {
				return GridTopologyError{Face: f, Edge: e, Reason: "edge is not matched to a neighbor or boundary marker"}
			}
			if l.IsBoundary() {
				continue
			}
			if l.Face >= len(shapes) || l.Edge < West || l.Edge > North {
				return GridTopologyError{Face: f, Edge: e, Reason: fmt.Sprintf("neighbor face %d %s edge does not exist", l.Face, l.Edge)}
			}
			back, ok := adj[FaceEdge{l.Face, l.Edge}]
			if !ok || back != (Link{Face: f, Edge: e, Reversed: l.Reversed}) {
				return GridTopologyError{Face: f, Edge: e, Reason: fmt.Sprintf("link to face %d %s edge is not reciprocated", l.Face, l.Edge)}
			}
			if n1, n2 := edgeLength(shapes[f], e), edgeLength(shapes[l.Face], l.Edge); n1 != n2 {
				return GridTopologyError{Face: f, Edge: e, Reason: fmt.Sprintf("edge has %d cells but neighbor edge has %d", n1, n2)}
			}
			if crossing(e, l).det() != 1 {
				return GridTopologyError{Face: f, Edge: e, Reason: "link reverses grid orientation"}
			}
		}
	}
	return nil
}

// errBoundary is returned when a step leaves the domain.
var errBoundary = errors.New("seaduck: step crosses domain boundary")

// step moves one cell in index-space direction d, which must be a unit
// vector along one axis, crossing to a neighboring face if necessary.
// It returns the new cell and the transform from the old cell's frame to
// the new cell's frame.
func (g *Grid) step(c Cell, d [2]int) (Cell, Transform, error) {
	s := g.shapes[c.Face]
	i, j := c.I+d[0], c.J+d[1]
	if i >= 0 && i < s.Nx && j >= 0 && j < s.Ny {
		return Cell{Face: c.Face, I: i, J: j, K: c.K}, Identity, nil
	}
	var e Edge
	var pos int
	switch {
	case i < 0:
		e, pos = West, j
	case i >= s.Nx:
		e, pos = East, j
	case j < 0:
		e, pos = South, i
	default:
		e, pos = North, i
	}
	l := g.adj[FaceEdge{c.Face, e}]
	if l.IsBoundary() {
		return c, Identity, errBoundary
	}
	s2 := g.shapes[l.Face]
	if l.Reversed {
		pos = edgeLength(s2, l.Edge) - 1 - pos
	}
	out := Cell{Face: l.Face, K: c.K}
	switch l.Edge {
	case West:
		out.I, out.J = 0, pos
	case East:
		out.I, out.J = s2.Nx-1, pos
	case South:
		out.I, out.J = pos, 0
	case North:
		out.I, out.J = pos, s2.Ny-1
	}
	return out, crossing(e, l), nil
}

// Walk moves di cells along the i axis and then dj cells along the j
// axis, with directions given in the frame of the starting cell. It returns
// the destination cell and the transform from the starting cell's frame to
// the destination cell's frame.
func (g *Grid) Walk(c Cell, di, dj int) (Cell, Transform, error) {
	t := Identity
	var err error
	move := func(n int, unit [2]int) {
		if n < 0 {
			n, unit = -n, [2]int{-unit[0], -unit[1]}
		}
		for k := 0; k < n && err == nil; k++ {
			var st Transform
			c, st, err = g.step(c, t.applyInt(unit))
			t = t.Then(st)
		}
	}
	move(di, [2]int{1, 0})
	move(dj, [2]int{0, 1})
	return c, t, err
}
