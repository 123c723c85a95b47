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
	"math"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
)

func TestResolve(t *testing.T) {
	ds := regularDataset(t, 4, 3, 1, nil, nil)
	g := buildGrid(t, ds)

	loc, err := g.Resolve(0.25, 0.25, 0)
	if err != nil {
		t.Fatal(err)
	}
	if loc.Cell != (Cell{I: 2, J: 1}) {
		t.Errorf("cell %+v", loc.Cell)
	}
	if !scalar.EqualWithinAbs(loc.Rx, -0.25, 1e-3) || !scalar.EqualWithinAbs(loc.Ry, 0.25, 1e-3) {
		t.Errorf("local coordinates (%g, %g)", loc.Rx, loc.Ry)
	}
	lon, lat, _ := g.Point(loc)
	if !scalar.EqualWithinAbs(lon, 0.25, 1e-9) || !scalar.EqualWithinAbs(lat, 0.25, 1e-9) {
		t.Errorf("point round trip gives (%g, %g)", lon, lat)
	}

	for _, p := range [][2]float64{{10, 0}, {0, 40}, {math.NaN(), 0}, {0, 91}} {
		_, err := g.Resolve(p[0], p[1], 0)
		var re GridResolutionError
		if !errors.As(err, &re) {
			t.Errorf("%v: got %v; want GridResolutionError", p, err)
		}
	}
}

func TestResolveSharedEdge(t *testing.T) {
	ds := regularDataset(t, 4, 3, 1, nil, nil)
	g := buildGrid(t, ds)
	// Equidistant from the centers of cells 1 and 2.
	loc, err := g.Resolve(0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if loc.Cell != (Cell{I: 1, J: 1}) || !scalar.EqualWithinAbs(loc.Rx, 0.5, 1e-9) {
		t.Errorf("got %+v", loc)
	}
	// Repeated resolution gives the same answer.
	for i := 0; i < 10; i++ {
		loc2, _ := g.Resolve(0, 0, 0)
		if loc2 != loc {
			t.Fatalf("got %+v then %+v", loc, loc2)
		}
	}
}

func TestResolveVertical(t *testing.T) {
	ds := regularDataset(t, 2, 2, 1, []float64{0, 10, 30}, nil)
	g := buildGrid(t, ds)
	tests := []struct {
		depth float64
		k     int
		rz    float64
	}{
		{depth: 0, k: 0, rz: -0.5},
		{depth: 5, k: 0, rz: 0},
		{depth: 10, k: 0, rz: 0.5},
		{depth: 25, k: 1, rz: 0.25},
		{depth: 30, k: 1, rz: 0.5},
	}
	for _, test := range tests {
		loc, err := g.Resolve(0.1, 0.1, test.depth)
		if err != nil {
			t.Fatal(err)
		}
		if loc.K != test.k || !scalar.EqualWithinAbs(loc.Rz, test.rz, 1e-12) {
			t.Errorf("depth %g: got k=%d rz=%g; want k=%d rz=%g", test.depth, loc.K, loc.Rz, test.k, test.rz)
		}
		_, _, depth := g.Point(loc)
		if !scalar.EqualWithinAbs(depth, test.depth, 1e-9) {
			t.Errorf("depth %g round trip gives %g", test.depth, depth)
		}
	}
	for _, depth := range []float64{-1, 31, math.NaN()} {
		if _, err := g.Resolve(0.1, 0.1, depth); err == nil {
			t.Errorf("depth %g: want error", depth)
		}
	}
}

func TestResolveLand(t *testing.T) {
	ds := regularDataset(t, 4, 3, 1, nil, nil)
	addField(t, ds, "mask", FieldInfo{Kind: Center}, func(_, j, i, _ int) float64 {
		if i == 3 {
			return 0
		}
		return 1
	})
	g := buildGrid(t, ds, WithMask("mask"))
	if _, err := g.Resolve(1.5, 0, 0); err == nil {
		t.Error("want error for point on land")
	}
	if _, err := g.Resolve(0.5, 0, 0); err != nil {
		t.Error(err)
	}
	// A point on the coastline belongs to the wet cell.
	loc, err := g.Resolve(1, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if loc.I != 2 {
		t.Errorf("coastline point in cell %d", loc.I)
	}
}

func TestMaskMustBeCentered(t *testing.T) {
	ds := regularDataset(t, 2, 2, 1, nil, nil)
	addField(t, ds, "mask", FieldInfo{Kind: UPoint}, func(_, _, _, _ int) float64 { return 1 })
	_, err := BuildIndex(context.Background(), ds, WithMask("mask"))
	var ce ConfigurationError
	if !errors.As(err, &ce) {
		t.Errorf("got %v; want ConfigurationError", err)
	}
}

func TestBuildIndexLevels(t *testing.T) {
	for _, levels := range [][]float64{{0}, {0, 10, 10}} {
		ds := regularDataset(t, 2, 2, 1, nil, nil)
		ds.levels = levels
		_, err := BuildIndex(context.Background(), ds)
		var ce ConfigurationError
		if !errors.As(err, &ce) {
			t.Errorf("levels %v: got %v; want ConfigurationError", levels, err)
		}
	}
}

func TestExtents(t *testing.T) {
	ds := regularDataset(t, 2, 2, 1, []float64{0, 10, 30}, nil)
	g := buildGrid(t, ds)
	dx, dy, dz := g.Extents(Cell{I: 1, J: 1, K: 1})
	want := EarthRadius * math.Pi / 180
	if !scalar.EqualWithinRel(dx, want, 1e-3) || !scalar.EqualWithinRel(dy, want, 1e-3) {
		t.Errorf("dx=%g dy=%g; want %g", dx, dy, want)
	}
	if dz != 20 {
		t.Errorf("dz=%g", dz)
	}
}

func TestGridField(t *testing.T) {
	ds := regularDataset(t, 3, 2, 1, nil, []float64{0, 10})
	addField(t, ds, "f", FieldInfo{Kind: Center, TimeVarying: true}, func(_, j, i, n int) float64 {
		return float64(100*n + 10*j + i)
	})
	g := buildGrid(t, ds)
	v, err := g.Field(context.Background(), "f", CellLocation{Cell: Cell{I: 2, J: 1}}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if v != 112 {
		t.Errorf("got %g", v)
	}
}

func TestPositionCache(t *testing.T) {
	ds := regularDataset(t, 4, 3, 1, nil, nil)
	g := buildGrid(t, ds)
	p := NewPosition(0.25, 0.25, 0, 0)
	loc, err := p.Location(g)
	if err != nil {
		t.Fatal(err)
	}
	if loc.Cell != (Cell{I: 2, J: 1}) {
		t.Fatalf("cell %+v", loc.Cell)
	}

	p.Set(-1.5, 0.25, 0)
	loc, err = p.Location(g)
	if err != nil {
		t.Fatal(err)
	}
	if loc.Cell != (Cell{I: 0, J: 1}) {
		t.Errorf("after Set: cell %+v", loc.Cell)
	}

	p.Set(10, 0, 0)
	if _, err = p.Location(g); err == nil {
		t.Error("outside point resolved")
	}
	p.SetTime(5)
	if _, err = p.Location(g); err == nil {
		t.Error("outside point resolved after SetTime")
	}

	// A second grid over the same dataset resolves independently.
	g2 := buildGrid(t, ds)
	p.Set(0.25, 0.25, 0)
	if _, err := p.Location(g); err != nil {
		t.Fatal(err)
	}
	loc2, err := p.Location(g2)
	if err != nil {
		t.Fatal(err)
	}
	if loc2.Cell != (Cell{I: 2, J: 1}) {
		t.Errorf("second grid: cell %+v", loc2.Cell)
	}
}
