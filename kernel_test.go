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

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

func TestDefaultWeightsSumToOne(t *testing.T) {
	for _, threeD := range []bool{false, true} {
		for k := DefaultKernel(threeD); k != nil; k = k.Fallback() {
			for _, rx := range []float64{-0.5, -0.1, 0, 0.37, 0.5} {
				for _, ry := range []float64{-0.5, -0.2, 0, 0.45, 0.5} {
					for _, rz := range []float64{-0.5, 0, 0.25} {
						w, err := k.Weights(rx, ry, rz)
						if err != nil {
							t.Fatal(err)
						}
						if len(w) != k.Size() {
							t.Fatalf("%d weights for %d offsets", len(w), k.Size())
						}
						if sum := floats.Sum(w); !scalar.EqualWithinAbsOrRel(sum, 1, 1e-12, 1e-12) {
							t.Errorf("3d=%v size=%d (%g, %g, %g): weights sum to %g", threeD, k.Size(), rx, ry, rz, sum)
						}
					}
				}
			}
		}
	}
}

func TestKernelSizes(t *testing.T) {
	k2 := DefaultKernel(false)
	if k2.Size() != 9 || k2.Fallback().Size() != 1 {
		t.Errorf("2d sizes %d, %d", k2.Size(), k2.Fallback().Size())
	}
	k3 := DefaultKernel(true)
	if k3.Size() != 27 || k3.Fallback().Size() != 9 {
		t.Errorf("3d sizes %d, %d", k3.Size(), k3.Fallback().Size())
	}
	// The first stage varies fastest.
	o := k3.Offsets()
	if o[0] != (Offset{-1, -1, -1}) || o[1] != (Offset{0, -1, -1}) || o[9] != (Offset{-1, -1, 0}) {
		t.Errorf("offset order %v", o[:10])
	}
}

func TestNewKernelErrors(t *testing.T) {
	bad := Stencil{
		Name:    "bad",
		Offsets: []Offset{{DI: -1}, {DI: 1}},
		Weights: func(_, _, _ float64) []float64 { return []float64{0.5, 0.6} },
	}
	short := Stencil{
		Name:    "short",
		Offsets: []Offset{{DI: -1}, {DI: 1}},
		Weights: func(_, _, _ float64) []float64 { return []float64{1} },
	}
	nan := Stencil{
		Name:    "nan",
		Offsets: []Offset{{}},
		Weights: func(_, _, _ float64) []float64 { return []float64{math.NaN()} },
	}
	tests := []struct {
		name   string
		c      Contract
		stages []Stencil
	}{
		{name: "no stages", c: PartitionOfUnity},
		{name: "no offsets", c: PartitionOfUnity, stages: []Stencil{{Name: "empty", Weights: ones(0)}}},
		{name: "no weights", c: PartitionOfUnity, stages: []Stencil{{Name: "nil", Offsets: []Offset{{}}}}},
		{name: "sum", c: PartitionOfUnity, stages: []Stencil{bad}},
		{name: "length", c: Unconstrained, stages: []Stencil{short}},
		{name: "nan", c: Unconstrained, stages: []Stencil{nan}},
		{name: "overlapping axes", c: PartitionOfUnity, stages: []Stencil{LinearI, Bilinear}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewKernel(test.c, test.stages...)
			var ce ConfigurationError
			if !errors.As(err, &ce) {
				t.Errorf("got %v; want ConfigurationError", err)
			}
		})
	}
	if _, err := NewKernel(Unconstrained, bad); err != nil {
		t.Errorf("unconstrained kernel: %v", err)
	}
}

func TestWithWeightsDoesNotModify(t *testing.T) {
	k := DefaultKernel(false)
	k2, err := k.WithWeights(0, ones(9), Unconstrained)
	if err != nil {
		t.Fatal(err)
	}
	w, _ := k.Weights(0.25, 0, 0)
	if sum := floats.Sum(w); !scalar.EqualWithinAbsOrRel(sum, 1, 1e-12, 1e-12) {
		t.Errorf("original kernel changed: sum %g", sum)
	}
	w2, _ := k2.Weights(0.25, 0, 0)
	if floats.Sum(w2) != 9 {
		t.Errorf("new kernel sum %g", floats.Sum(w2))
	}
	if _, err := k.WithWeights(0, ones(9), PartitionOfUnity); err == nil {
		t.Error("want error for weights that do not sum to one")
	}
	if _, err := k.WithFallback(DefaultKernel(true)); err == nil {
		t.Error("want error for larger fallback")
	}
}

func TestAllOnesField(t *testing.T) {
	ctx := context.Background()
	for _, levels := range [][]float64{nil, {0, 10, 30, 60}} {
		ds := regularDataset(t, 8, 6, 1, levels, nil)
		addField(t, ds, "one", FieldInfo{Kind: Center}, func(_, _, _, _ int) float64 { return 1 })
		g := buildGrid(t, ds)
		in, err := NewInterpolator(g)
		if err != nil {
			t.Fatal(err)
		}
		var pts []*Position
		for _, lon := range []float64{-3.99, -1.3, 0, 0.5, 2.71, 3.99} {
			for _, lat := range []float64{-2.99, -0.2, 1, 2.5} {
				for _, depth := range []float64{0, 7, 30, 59} {
					pts = append(pts, NewPosition(lon, lat, depth, 0))
				}
			}
		}
		r, err := in.Interpolate(ctx, pts, "one", DefaultKernelFor(g))
		if err != nil {
			t.Fatal(err)
		}
		for i, v := range r.Values {
			if r.Errs[i] != nil {
				t.Fatalf("point %d: %v", i, r.Errs[i])
			}
			if !scalar.EqualWithinAbsOrRel(v, 1, 1e-12, 1e-12) {
				t.Errorf("point %d = %g; want 1", i, v)
			}
		}
	}
}

func TestCountNeighbors(t *testing.T) {
	ctx := context.Background()
	ds := regularDataset(t, 8, 6, 1, nil, nil)
	addField(t, ds, "f", FieldInfo{Kind: Center}, func(_, j, i, _ int) float64 { return float64(i + j) })
	g := buildGrid(t, ds)
	in, err := NewInterpolator(g)
	if err != nil {
		t.Fatal(err)
	}
	k, err := CountNeighbors(DefaultKernel(false))
	if err != nil {
		t.Fatal(err)
	}
	if k.Contract() != Unconstrained {
		t.Errorf("contract %v", k.Contract())
	}
	r, err := in.Interpolate(ctx, []*Position{
		NewPosition(0.2, 0.3, 0, 0),   // interior
		NewPosition(-3.9, -2.9, 0, 0), // corner cell: fallback
	}, "f", k)
	if err != nil {
		t.Fatal(err)
	}
	if r.Values[0] != float64(k.Size()) {
		t.Errorf("interior count %g; want %d", r.Values[0], k.Size())
	}
	if r.Values[1] != float64(k.Fallback().Size()) {
		t.Errorf("boundary count %g; want %d", r.Values[1], k.Fallback().Size())
	}
}

func TestBilinearReproducesLinear(t *testing.T) {
	ctx := context.Background()
	ds := regularDataset(t, 10, 10, 0.1, nil, nil)
	addField(t, ds, "f", FieldInfo{Kind: Center}, func(_, j, i, _ int) float64 { return 2*float64(i) - 3*float64(j) })
	g := buildGrid(t, ds)
	in, _ := NewInterpolator(g)
	for _, p := range [][2]float64{{0.01, 0.02}, {-0.13, 0.21}, {0.05, -0.05}} {
		pos := NewPosition(p[0], p[1], 0, 0)
		loc, err := pos.Location(g)
		if err != nil {
			t.Fatal(err)
		}
		r, err := in.Interpolate(ctx, []*Position{pos}, "f", DefaultKernel(false))
		if err != nil {
			t.Fatal(err)
		}
		want := 2*(float64(loc.I)+loc.Rx) - 3*(float64(loc.J)+loc.Ry)
		if !scalar.EqualWithinAbsOrRel(r.Values[0], want, 1e-9, 1e-9) {
			t.Errorf("%v: got %g, want %g", p, r.Values[0], want)
		}
	}
}
