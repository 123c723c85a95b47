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
	"context"
	"errors"
	"testing"
)

func TestCrossing(t *testing.T) {
	tests := []struct {
		e    Edge
		l    Link
		want Transform
	}{
		{e: East, l: Link{Face: 1, Edge: West}, want: Identity},
		{e: North, l: Link{Face: 1, Edge: South}, want: Identity},
		{e: North, l: Link{Face: 1, Edge: North, Reversed: true}, want: Transform{{-1, 0}, {0, -1}}},
		{e: North, l: Link{Face: 1, Edge: West, Reversed: true}, want: Transform{{0, 1}, {-1, 0}}},
		{e: North, l: Link{Face: 1, Edge: East}, want: Transform{{0, -1}, {1, 0}}},
	}
	for _, test := range tests {
		got := crossing(test.e, test.l)
		if got != test.want {
			t.Errorf("%v -> %+v: got %v, want %v", test.e, test.l, got, test.want)
		}
		if got.det() != 1 {
			t.Errorf("%v -> %+v: determinant %d", test.e, test.l, got.det())
		}
		back := crossing(test.l.Edge, Link{Face: 0, Edge: test.e, Reversed: test.l.Reversed})
		if !got.Then(back).IsIdentity() {
			t.Errorf("%v -> %+v: crossing back gives %v", test.e, test.l, got.Then(back))
		}
		if got.Inverse() != back {
			t.Errorf("%v -> %+v: inverse %v != %v", test.e, test.l, got.Inverse(), back)
		}
	}
	if d := crossing(North, Link{Face: 1, Edge: West}).det(); d != -1 {
		t.Errorf("unreversed north-west link determinant %d; want -1", d)
	}
}

func TestTransformApply(t *testing.T) {
	r := Transform{{0, -1}, {1, 0}} // 90 degrees counter-clockwise
	x, y := r.Apply(1, 0)
	if x != 0 || y != 1 {
		t.Errorf("got (%g, %g)", x, y)
	}
	if got := r.Then(r); got != (Transform{{-1, 0}, {0, -1}}) {
		t.Errorf("two rotations give %v", got)
	}
	if d := r.applyInt([2]int{0, 1}); d != [2]int{-1, 0} {
		t.Errorf("applyInt gives %v", d)
	}
}

func TestValidateAdjacency(t *testing.T) {
	boundaries := func(adj Adjacency, faces ...int) Adjacency {
		for _, f := range faces {
			for e := West; e <= North; e++ {
				if _, ok := adj[FaceEdge{f, e}]; !ok {
					adj[FaceEdge{f, e}] = Boundary
				}
			}
		}
		return adj
	}
	square := []Shape{{Nx: 2, Ny: 2}, {Nx: 2, Ny: 2}}
	tests := []struct {
		name   string
		adj    Adjacency
		shapes []Shape
		ok     bool
	}{
		{name: "valid", adj: boundaries(Adjacency{
			{0, East}: {Face: 1, Edge: West},
			{1, West}: {Face: 0, Edge: East},
		}, 0, 1), shapes: square, ok: true},
		{name: "missing", adj: Adjacency{{0, West}: Boundary}, shapes: square[:1]},
		{name: "unknown face", adj: boundaries(Adjacency{{3, West}: Boundary}, 0), shapes: square[:1]},
		{name: "nonexistent neighbor", adj: boundaries(Adjacency{
			{0, East}: {Face: 5, Edge: West},
		}, 0), shapes: square[:1]},
		{name: "not reciprocal", adj: boundaries(Adjacency{
			{0, East}: {Face: 1, Edge: West},
		}, 0, 1), shapes: square},
		{name: "length mismatch", adj: boundaries(Adjacency{
			{0, East}: {Face: 1, Edge: West},
			{1, West}: {Face: 0, Edge: East},
		}, 0, 1), shapes: []Shape{{Nx: 2, Ny: 2}, {Nx: 3, Ny: 3}}},
		{name: "orientation", adj: boundaries(Adjacency{
			{0, East}: {Face: 1, Edge: West, Reversed: true},
			{1, West}: {Face: 0, Edge: East, Reversed: true},
		}, 0, 1), shapes: square},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := validateAdjacency(test.adj, test.shapes)
			if test.ok {
				if err != nil {
					t.Fatal(err)
				}
				return
			}
			var te GridTopologyError
			if !errors.As(err, &te) {
				t.Errorf("got %v; want GridTopologyError", err)
			}
		})
	}
}

func TestBuildIndexTopologyError(t *testing.T) {
	ds := regularDataset(t, 3, 3, 1, nil, nil)
	ds.Link(0, North, 0, West, false)
	_, err := BuildIndex(context.Background(), ds)
	var te GridTopologyError
	if !errors.As(err, &te) {
		t.Errorf("got %v; want GridTopologyError", err)
	}
}

func TestWalk(t *testing.T) {
	ds := regularDataset(t, 4, 3, 1, nil, nil)
	g := buildGrid(t, ds)
	c, tr, err := g.Walk(Cell{I: 1, J: 1}, 2, -1)
	if err != nil {
		t.Fatal(err)
	}
	if c != (Cell{I: 3, J: 0}) || !tr.IsIdentity() {
		t.Errorf("got %+v, %v", c, tr)
	}
	if _, _, err := g.Walk(Cell{I: 3, J: 0}, 1, 0); err != errBoundary {
		t.Errorf("got %v; want boundary error", err)
	}

	ds.Link(0, West, 0, East, false)
	g = buildGrid(t, ds)
	c, tr, err = g.Walk(Cell{I: 0, J: 2}, -1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if c != (Cell{I: 3, J: 2}) || !tr.IsIdentity() {
		t.Errorf("periodic walk got %+v, %v", c, tr)
	}
}
