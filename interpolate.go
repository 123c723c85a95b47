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
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Interpolator evaluates fields at arbitrary points on a Grid.
type Interpolator struct {
	g          *Grid
	timeInterp TimeInterpolation
	workers    int

	// Log receives messages about batch operations.
	Log     logrus.FieldLogger
	metrics *Metrics
}

// InterpolatorOption configures an Interpolator.
type InterpolatorOption func(in *Interpolator) error

// WithTimeInterpolation sets the method used between time snapshots.
func WithTimeInterpolation(ti TimeInterpolation) InterpolatorOption {
	return func(in *Interpolator) error {
		if ti != LinearTime && ti != NearestTime {
			return ConfigurationError{Component: "interpolator", Reason: fmt.Sprintf("invalid time interpolation %d", ti)}
		}
		in.timeInterp = ti
		return nil
	}
}

// WithWorkers sets the number of goroutines used for batch operations.
func WithWorkers(n int) InterpolatorOption {
	return func(in *Interpolator) error {
		if n < 1 {
			return ConfigurationError{Component: "interpolator", Reason: fmt.Sprintf("workers must be positive, got %d", n)}
		}
		in.workers = n
		return nil
	}
}

// NewInterpolator returns an Interpolator for g. It shares g's logger
// and metrics.
func NewInterpolator(g *Grid, opts ...InterpolatorOption) (*Interpolator, error) {
	in := &Interpolator{
		g:       g,
		workers: runtime.GOMAXPROCS(0),
		Log:     g.Log,
		metrics: g.metrics,
	}
	for _, o := range opts {
		if err := o(in); err != nil {
			return nil, err
		}
	}
	return in, nil
}

// Grid returns the grid that in interpolates on.
func (in *Interpolator) Grid() *Grid { return in.g }

// Result holds the outcome of a batch interpolation. Values[i] is NaN
// when Errs[i] is not nil.
type Result struct {
	Values []float64
	Errs   []error
}

// Failed returns the number of points that could not be interpolated.
func (r *Result) Failed() int {
	n := 0
	for _, e := range r.Errs {
		if e != nil {
			n++
		}
	}
	return n
}

// VectorResult holds the outcome of a batch vector interpolation.
// Components are in the index-space frame of each point's cell.
type VectorResult struct {
	U, V []float64
	Errs []error
}

// parallel calls f for every index in [0, n) using the configured
// number of workers.
func (in *Interpolator) parallel(n int, f func(i int)) {
	nprocs := in.workers
	if nprocs > n {
		nprocs = n
	}
	var wg sync.WaitGroup
	wg.Add(nprocs)
	for pp := 0; pp < nprocs; pp++ {
		go func(pp int) {
			for ii := pp; ii < n; ii += nprocs {
				f(ii)
			}
			wg.Done()
		}(pp)
	}
	wg.Wait()
}

// Interpolate evaluates the named field at each point using kernel k.
// Errors for individual points are recorded in the result and do not stop
// the batch; an error is only returned if the field does not exist or ctx
// is cancelled. Each point must appear only once in points.
func (in *Interpolator) Interpolate(ctx context.Context, points []*Position, field string, k *Kernel) (*Result, error) {
	ctx, span := tracer.Start(ctx, "seaduck.Interpolate", trace.WithAttributes(
		attribute.String("field", field), attribute.Int("points", len(points))))
	defer span.End()
	defer in.metrics.observe("interpolate", time.Now())

	info, err := in.g.ds.FieldInfo(field)
	if err != nil {
		return nil, fmt.Errorf("seaduck: interpolating %s: %v", field, err)
	}
	r := &Result{Values: make([]float64, len(points)), Errs: make([]error, len(points))}
	in.parallel(len(points), func(i int) {
		if ctx.Err() != nil {
			return
		}
		p := points[i]
		loc, err := p.Location(in.g)
		if err == nil {
			r.Values[i], err = in.valueAt(ctx, loc, p.t, field, info, k)
		}
		if err != nil {
			r.Values[i], r.Errs[i] = math.NaN(), err
		}
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n := r.Failed(); n > 0 {
		in.Log.WithFields(logrus.Fields{
			"field":  field,
			"points": len(points),
			"failed": n,
		}).Debug("seaduck: some points could not be interpolated")
	}
	return r, nil
}

// InterpolateVector evaluates the vector field with components u and v
// at each point. Contributions from neighboring faces are rotated into the
// frame of each point's cell.
func (in *Interpolator) InterpolateVector(ctx context.Context, points []*Position, u, v string, k *Kernel) (*VectorResult, error) {
	ctx, span := tracer.Start(ctx, "seaduck.InterpolateVector", trace.WithAttributes(
		attribute.String("u", u), attribute.String("v", v), attribute.Int("points", len(points))))
	defer span.End()
	defer in.metrics.observe("interpolate_vector", time.Now())

	ui, err := in.g.ds.FieldInfo(u)
	if err != nil {
		return nil, fmt.Errorf("seaduck: interpolating %s: %v", u, err)
	}
	vi, err := in.g.ds.FieldInfo(v)
	if err != nil {
		return nil, fmt.Errorf("seaduck: interpolating %s: %v", v, err)
	}
	r := &VectorResult{U: make([]float64, len(points)), V: make([]float64, len(points)), Errs: make([]error, len(points))}
	in.parallel(len(points), func(i int) {
		if ctx.Err() != nil {
			return
		}
		p := points[i]
		loc, err := p.Location(in.g)
		if err == nil {
			r.U[i], r.V[i], err = in.vectorAt(ctx, loc, p.t, u, v, ui, vi, k)
		}
		if err != nil {
			r.U[i], r.V[i], r.Errs[i] = math.NaN(), math.NaN(), err
		}
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r, nil
}

// sample returns the time-interpolated value of a field at one cell.
func (in *Interpolator) sample(ctx context.Context, field string, c Cell, ts []int, tw []float64) (float64, error) {
	var v float64
	for n, ti := range ts {
		a, err := in.g.fields.get(ctx, field, c.Face, ti)
		if err != nil {
			return math.NaN(), err
		}
		v += tw[n] * valueAt(a, c)
	}
	if math.IsNaN(v) {
		return v, InvalidFieldError{Field: field, Reason: fmt.Sprintf("missing value at face %d cell (%d, %d, %d)", c.Face, c.I, c.J, c.K)}
	}
	return v, nil
}

// valueAt evaluates a scalar field at a resolved location.
func (in *Interpolator) valueAt(ctx context.Context, loc CellLocation, t float64, field string, info FieldInfo, k *Kernel) (float64, error) {
	ts, tw, err := timeWeights(in.g.times, t, info, in.timeInterp)
	if err != nil {
		return math.NaN(), err
	}
	cs, err := k.ResolveOffsets(in.g, loc, info.Kind)
	if err != nil {
		return math.NaN(), InvalidFieldError{Field: field, Reason: err.Error()}
	}
	vals := make([]float64, len(cs))
	ws := make([]float64, len(cs))
	for n, c := range cs {
		vals[n], err = in.sample(ctx, field, c.Cell, ts, tw)
		if err != nil {
			return math.NaN(), err
		}
		ws[n] = c.Weight
	}
	return k.combine(vals, ws), nil
}

// vectorAt evaluates a vector field at a resolved location. Staggered
// components are interpolated separately because their stencils never
// cross reorienting seams.
func (in *Interpolator) vectorAt(ctx context.Context, loc CellLocation, t float64, u, v string, ui, vi FieldInfo, k *Kernel) (float64, float64, error) {
	if ui.Kind != vi.Kind || (ui.Kind != Center && ui.Kind != WPoint) {
		uu, err := in.valueAt(ctx, loc, t, u, ui, k)
		if err != nil {
			return math.NaN(), math.NaN(), err
		}
		vv, err := in.valueAt(ctx, loc, t, v, vi, k)
		if err != nil {
			return math.NaN(), math.NaN(), err
		}
		return uu, vv, nil
	}
	ts, tw, err := timeWeights(in.g.times, t, ui, in.timeInterp)
	if err != nil {
		return math.NaN(), math.NaN(), err
	}
	cs, err := k.ResolveOffsets(in.g, loc, ui.Kind)
	if err != nil {
		return math.NaN(), math.NaN(), InvalidFieldError{Field: u, Reason: err.Error()}
	}
	us := make([]float64, len(cs))
	vs := make([]float64, len(cs))
	ws := make([]float64, len(cs))
	for n, c := range cs {
		un, err := in.sample(ctx, u, c.Cell, ts, tw)
		if err != nil {
			return math.NaN(), math.NaN(), err
		}
		vn, err := in.sample(ctx, v, c.Cell, ts, tw)
		if err != nil {
			return math.NaN(), math.NaN(), err
		}
		us[n], vs[n] = c.Transform.Inverse().Apply(un, vn)
		ws[n] = c.Weight
	}
	return k.combine(us, ws), k.combine(vs, ws), nil
}
