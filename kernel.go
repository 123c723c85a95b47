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
	"math"
)

// Offset is a position relative to a base cell.
type Offset struct {
	DI, DJ, DK int
}

// WeightFunc calculates stencil weights from local coordinates within
// the base cell. The returned slice must have one weight per stencil
// offset.
type WeightFunc func(rx, ry, rz float64) []float64

// Stencil is a fixed, ordered set of offsets and the function that
// weights them.
type Stencil struct {
	Name    string
	Offsets []Offset
	Weights WeightFunc
}

// axes returns a bit mask of the axes that s has non-zero offsets along.
func (s Stencil) axes() int {
	m := 0
	for _, o := range s.Offsets {
		if o.DI != 0 {
			m |= 1
		}
		if o.DJ != 0 {
			m |= 2
		}
		if o.DK != 0 {
			m |= 4
		}
	}
	return m
}

// Contract declares what a kernel's weights are guaranteed to satisfy.
type Contract int

const (
	// PartitionOfUnity weights sum to one for every position in a cell.
	PartitionOfUnity Contract = iota

	// Unconstrained weights may have any values.
	Unconstrained
)

func (c Contract) String() string {
	if c == PartitionOfUnity {
		return "partition of unity"
	}
	return "unconstrained"
}

// Combine reduces the gathered field values and their weights to a
// single value.
type Combine func(values, weights []float64) float64

// WeightedSum returns the sum of values multiplied by weights.
func WeightedSum(values, weights []float64) float64 {
	var s float64
	for i, v := range values {
		s += v * weights[i]
	}
	return s
}

// Count returns the number of values.
func Count(values, weights []float64) float64 {
	return float64(len(values))
}

// Kernel combines one or more stencils into an interpolation scheme.
// Stages are combined as a tensor product in the order given, so applying
// the kernel is equivalent to applying the first stage and using its
// results as the input to the second. A Kernel is immutable; methods that
// change its behavior return a new Kernel.
type Kernel struct {
	contract Contract
	stages   []Stencil
	offsets  []Offset
	combine  Combine
	fallback *Kernel
}

// checkPoints are the local coordinates that weight functions are checked at.
var checkPoints = []float64{-0.5, -0.25, 0, 0.3, 0.5}

// NewKernel creates a kernel from the given stages. Stages must act on
// disjoint axes. Weight functions are checked at a set of sample positions
// and must return vectors of the right length, summing to one if the
// contract is PartitionOfUnity.
func NewKernel(c Contract, stages ...Stencil) (*Kernel, error) {
	if len(stages) == 0 {
		return nil, ConfigurationError{Component: "kernel", Reason: "kernel has no stencils"}
	}
	used := 0
	for _, s := range stages {
		if len(s.Offsets) == 0 {
			return nil, ConfigurationError{Component: "kernel", Reason: fmt.Sprintf("stencil %q has no offsets", s.Name)}
		}
		if s.Weights == nil {
			return nil, ConfigurationError{Component: "kernel", Reason: fmt.Sprintf("stencil %q has no weight function", s.Name)}
		}
		a := s.axes()
		if a&used != 0 {
			return nil, ConfigurationError{Component: "kernel", Reason: fmt.Sprintf("stencil %q acts on an axis that an earlier stencil already uses", s.Name)}
		}
		used |= a
		if err := checkWeights(c, s); err != nil {
			return nil, err
		}
	}
	k := &Kernel{
		contract: c,
		stages:   append([]Stencil(nil), stages...),
		combine:  WeightedSum,
	}
	k.offsets = tensorOffsets(k.stages)
	return k, nil
}

func checkWeights(c Contract, s Stencil) error {
	for _, rx := range checkPoints {
		for _, ry := range checkPoints {
			for _, rz := range checkPoints {
				w := s.Weights(rx, ry, rz)
				if len(w) != len(s.Offsets) {
					return ConfigurationError{Component: "kernel", Reason: fmt.Sprintf(
						"stencil %q weight function returned %d weights for %d offsets", s.Name, len(w), len(s.Offsets))}
				}
				var sum float64
				for _, v := range w {
					if math.IsNaN(v) || math.IsInf(v, 0) {
						return ConfigurationError{Component: "kernel", Reason: fmt.Sprintf(
							"stencil %q weight function returned a non-finite weight", s.Name)}
					}
					sum += v
				}
				if c == PartitionOfUnity && math.Abs(sum-1) > 1e-9 {
					return ConfigurationError{Component: "kernel", Reason: fmt.Sprintf(
						"stencil %q weights sum to %g at (%g, %g, %g) but the kernel requires a partition of unity",
						s.Name, sum, rx, ry, rz)}
				}
			}
		}
	}
	return nil
}

// tensorOffsets returns every combination of stage offsets, with the
// first stage varying fastest.
func tensorOffsets(stages []Stencil) []Offset {
	out := []Offset{{}}
	for _, s := range stages {
		next := make([]Offset, 0, len(out)*len(s.Offsets))
		for _, o2 := range s.Offsets {
			for _, o1 := range out {
				next = append(next, Offset{DI: o1.DI + o2.DI, DJ: o1.DJ + o2.DJ, DK: o1.DK + o2.DK})
			}
		}
		out = next
	}
	return out
}

// Size returns the number of offsets in the kernel.
func (k *Kernel) Size() int { return len(k.offsets) }

// Offsets returns the combined offsets of the kernel.
func (k *Kernel) Offsets() []Offset { return append([]Offset(nil), k.offsets...) }

// Contract returns the weight contract of the kernel.
func (k *Kernel) Contract() Contract { return k.contract }

// Fallback returns the kernel used where k is unavailable, or nil.
func (k *Kernel) Fallback() *Kernel { return k.fallback }

// Weights returns the combined weights for local coordinates rx, ry, rz,
// in the same order as Offsets.
func (k *Kernel) Weights(rx, ry, rz float64) ([]float64, error) {
	out := []float64{1}
	for _, s := range k.stages {
		w := s.Weights(rx, ry, rz)
		if len(w) != len(s.Offsets) {
			return nil, ConfigurationError{Component: "kernel", Reason: fmt.Sprintf(
				"stencil %q weight function returned %d weights for %d offsets", s.Name, len(w), len(s.Offsets))}
		}
		next := make([]float64, 0, len(out)*len(w))
		for _, w2 := range w {
			for _, w1 := range out {
				next = append(next, w1*w2)
			}
		}
		out = next
	}
	return out, nil
}

func (k *Kernel) clone() *Kernel {
	k2 := *k
	k2.stages = append([]Stencil(nil), k.stages...)
	return &k2
}

// WithFallback returns a copy of k that uses f wherever one of k's
// contributing stencil points is unavailable because it is on land,
// outside of the domain, or across a seam that a staggered variable
// cannot cross. f must be smaller than k.
func (k *Kernel) WithFallback(f *Kernel) (*Kernel, error) {
	if f != nil && f.Size() >= k.Size() {
		return nil, ConfigurationError{Component: "kernel", Reason: fmt.Sprintf(
			"fallback kernel size %d is not smaller than kernel size %d", f.Size(), k.Size())}
	}
	k2 := k.clone()
	k2.fallback = f
	return k2, nil
}

// WithWeights returns a copy of k with the weight function of the given
// stage replaced by w and the given contract. k itself is not changed.
func (k *Kernel) WithWeights(stage int, w WeightFunc, c Contract) (*Kernel, error) {
	if stage < 0 || stage >= len(k.stages) {
		return nil, ConfigurationError{Component: "kernel", Reason: fmt.Sprintf("stage %d does not exist", stage)}
	}
	k2 := k.clone()
	k2.stages[stage].Weights = w
	k2.contract = c
	for _, s := range k2.stages {
		if err := checkWeights(c, s); err != nil {
			return nil, err
		}
	}
	return k2, nil
}

// WithCombine returns a copy of k that reduces gathered values with c.
func (k *Kernel) WithCombine(c Combine) *Kernel {
	k2 := k.clone()
	k2.combine = c
	return k2
}

// CountNeighbors returns a copy of k, and of its fallbacks, that gives
// every offset a weight of one and returns the number of contributing
// stencil points instead of an interpolated value.
func CountNeighbors(k *Kernel) (*Kernel, error) {
	k2 := k
	var err error
	for i, s := range k.stages {
		k2, err = k2.WithWeights(i, ones(len(s.Offsets)), Unconstrained)
		if err != nil {
			return nil, err
		}
	}
	k2 = k2.WithCombine(Count)
	if k.fallback != nil {
		f, err := CountNeighbors(k.fallback)
		if err != nil {
			return nil, err
		}
		k2.fallback = f
	}
	return k2, nil
}

// Contribution is one resolved stencil point.
type Contribution struct {
	Cell   Cell
	Weight float64

	// Transform maps directions from the frame of the query point's
	// cell to the frame of Cell.
	Transform Transform
}

// errUnavailable is returned when a stencil point cannot be used and
// there is no fallback kernel.
var errUnavailable = errors.New("stencil reaches land, the domain boundary, or a seam that the variable cannot cross")

// ResolveOffsets expands the kernel's offsets against loc for a variable
// located at the given kind of point, walking face adjacency where offsets
// cross face edges. Points with zero weight are omitted. Vertical offsets
// are clamped to the top and bottom layers. If any contributing point is
// unavailable, the fallback kernel is used instead.
func (k *Kernel) ResolveOffsets(g *Grid, loc CellLocation, kind PointKind) ([]Contribution, error) {
	base, ok := g.staggered(loc, kind)
	var out []Contribution
	var err error
	if ok {
		out, err = k.resolve(g, base, kind)
	} else {
		err = errUnavailable
	}
	if err == errUnavailable && k.fallback != nil {
		return k.fallback.ResolveOffsets(g, loc, kind)
	}
	return out, err
}

func (k *Kernel) resolve(g *Grid, base CellLocation, kind PointKind) ([]Contribution, error) {
	w, err := k.Weights(base.Rx, base.Ry, base.Rz)
	if err != nil {
		return nil, err
	}
	maxK := g.Nz() - 1
	if maxK < 0 {
		maxK = 0
	}
	out := make([]Contribution, 0, len(w))
	for n, o := range k.offsets {
		if w[n] == 0 {
			continue
		}
		c, t, err := g.Walk(base.Cell, o.DI, o.DJ)
		if err != nil {
			return nil, errUnavailable
		}
		if kind != Center && kind != WPoint && !t.IsIdentity() {
			return nil, errUnavailable
		}
		c.K = base.K + o.DK
		if c.K < 0 {
			c.K = 0
		} else if c.K > maxK {
			c.K = maxK
		}
		if !g.available(c, kind) {
			return nil, errUnavailable
		}
		out = append(out, Contribution{Cell: c, Weight: w[n], Transform: t})
	}
	return out, nil
}

// staggered returns the base location for a variable at the given kind
// of point, in that variable's own index space. ok is false if the base
// point lies across a seam that reorients the grid.
func (g *Grid) staggered(loc CellLocation, kind PointKind) (CellLocation, bool) {
	shiftX := kind == UPoint || kind == Corner
	shiftY := kind == VPoint || kind == Corner
	out := loc
	if shiftX {
		if loc.Rx >= 0 {
			c, t, err := g.Walk(out.Cell, 1, 0)
			if err != nil || !t.IsIdentity() {
				return loc, false
			}
			out.Cell, out.Rx = c, loc.Rx-0.5
		} else {
			out.Rx = loc.Rx + 0.5
		}
	}
	if shiftY {
		if loc.Ry >= 0 {
			c, t, err := g.Walk(out.Cell, 0, 1)
			if err != nil || !t.IsIdentity() {
				return loc, false
			}
			out.Cell, out.Ry = c, loc.Ry-0.5
		} else {
			out.Ry = loc.Ry + 0.5
		}
	}
	if kind == WPoint && g.Nz() > 0 {
		if loc.Rz < 0 {
			out.Rz = loc.Rz + 0.5
		} else if loc.K+1 < g.Nz() {
			out.K, out.Rz = loc.K+1, loc.Rz-0.5
		} else {
			// Below the top interface of the bottom layer.
			out.Rz = 0
		}
	}
	return out, true
}
