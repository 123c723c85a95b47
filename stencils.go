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

import "math"

// hat returns linear interpolation weights for offsets -1, 0, and 1
// at local coordinate r. Weights are continuous across cell edges.
func hat(r float64) [3]float64 {
	return [3]float64{math.Max(0, -r), 1 - math.Abs(r), math.Max(0, r)}
}

func ones(n int) WeightFunc {
	return func(_, _, _ float64) []float64 {
		w := make([]float64, n)
		for i := range w {
			w[i] = 1
		}
		return w
	}
}

// Nearest is a one-point stencil that takes the value of the
// containing cell.
var Nearest = Stencil{
	Name:    "nearest",
	Offsets: []Offset{{}},
	Weights: ones(1),
}

// LinearI linearly interpolates along the i axis.
var LinearI = Stencil{
	Name:    "linear-i",
	Offsets: []Offset{{DI: -1}, {}, {DI: 1}},
	Weights: func(rx, _, _ float64) []float64 {
		w := hat(rx)
		return w[:]
	},
}

// LinearJ linearly interpolates along the j axis.
var LinearJ = Stencil{
	Name:    "linear-j",
	Offsets: []Offset{{DJ: -1}, {}, {DJ: 1}},
	Weights: func(_, ry, _ float64) []float64 {
		w := hat(ry)
		return w[:]
	},
}

// LinearK linearly interpolates between layers.
var LinearK = Stencil{
	Name:    "linear-k",
	Offsets: []Offset{{DK: -1}, {}, {DK: 1}},
	Weights: func(_, _, rz float64) []float64 {
		w := hat(rz)
		return w[:]
	},
}

// Bilinear interpolates horizontally between the four nearest cell
// centers using a nine-point stencil.
var Bilinear = Stencil{
	Name:    "bilinear",
	Offsets: bilinearOffsets(),
	Weights: func(rx, ry, _ float64) []float64 {
		wx, wy := hat(rx), hat(ry)
		w := make([]float64, 0, 9)
		for _, b := range wy {
			for _, a := range wx {
				w = append(w, a*b)
			}
		}
		return w
	},
}

func bilinearOffsets() []Offset {
	o := make([]Offset, 0, 9)
	for dj := -1; dj <= 1; dj++ {
		for di := -1; di <= 1; di++ {
			o = append(o, Offset{DI: di, DJ: dj})
		}
	}
	return o
}

// NearestKernel returns a kernel that takes the value of the
// containing cell.
func NearestKernel() *Kernel {
	k, err := NewKernel(PartitionOfUnity, Nearest)
	if err != nil {
		panic(err)
	}
	return k
}

// DefaultKernel returns the default interpolation kernel: bilinear in
// the horizontal, cascaded with linear in the vertical for
// three-dimensional grids. Where the full stencil is unavailable it falls
// back to bilinear within the layer and then to the nearest cell.
func DefaultKernel(threeD bool) *Kernel {
	nearest := NearestKernel()
	h, err := NewKernel(PartitionOfUnity, Bilinear)
	if err != nil {
		panic(err)
	}
	h, err = h.WithFallback(nearest)
	if err != nil {
		panic(err)
	}
	if !threeD {
		return h
	}
	k, err := NewKernel(PartitionOfUnity, Bilinear, LinearK)
	if err != nil {
		panic(err)
	}
	k, err = k.WithFallback(h)
	if err != nil {
		panic(err)
	}
	return k
}

// DefaultKernelFor returns DefaultKernel for the dimensionality of g.
func DefaultKernelFor(g *Grid) *Kernel {
	return DefaultKernel(g.Nz() > 0)
}
