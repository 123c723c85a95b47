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
	"strings"
	"sync"
	"time"

	"github.com/ctessum/unit"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Scheme is a time integration method.
type Scheme int

const (
	// Euler is the explicit first-order Euler method.
	Euler Scheme = iota

	// RK2 is the second-order midpoint Runge-Kutta method.
	RK2
)

func (s Scheme) String() string {
	if s == RK2 {
		return "rk2"
	}
	return "euler"
}

// ParseScheme converts "euler" or "rk2" to a Scheme.
func ParseScheme(s string) (Scheme, error) {
	switch strings.ToLower(s) {
	case "euler":
		return Euler, nil
	case "rk2":
		return RK2, nil
	default:
		return Euler, ConfigurationError{Component: "integration scheme", Reason: fmt.Sprintf("unknown scheme %q", s)}
	}
}

// DefaultMaxSubsteps is the default limit on the number of sub-steps
// taken while advancing a particle to one target time.
const DefaultMaxSubsteps = 100000

// velocityDims are the required dimensions of velocity fields.
var velocityDims = unit.Dimensions{unit.LengthDim: 1, unit.TimeDim: -1}

// Integrator advances particles through a velocity field. Each sub-step
// is clipped so that a particle never moves past the edge of the cell
// whose velocity it is using.
type Integrator struct {
	in          *Interpolator
	scheme      Scheme
	maxStep     float64
	maxSubsteps int
	kernel      *Kernel
	diagnostics []string

	// Log receives messages about particle terminations.
	Log     logrus.FieldLogger
	metrics *Metrics
}

// IntegratorOption configures an Integrator.
type IntegratorOption func(it *Integrator) error

// WithScheme sets the integration scheme.
func WithScheme(s Scheme) IntegratorOption {
	return func(it *Integrator) error {
		if s != Euler && s != RK2 {
			return ConfigurationError{Component: "integrator", Reason: fmt.Sprintf("invalid scheme %d", s)}
		}
		it.scheme = s
		return nil
	}
}

// WithMaxStep bounds the length of each sub-step in seconds. Zero means
// sub-steps are only bounded by cell crossings and target times.
func WithMaxStep(seconds float64) IntegratorOption {
	return func(it *Integrator) error {
		if seconds < 0 || math.IsNaN(seconds) {
			return ConfigurationError{Component: "integrator", Reason: fmt.Sprintf("invalid max step %g", seconds)}
		}
		it.maxStep = seconds
		return nil
	}
}

// WithMaxSubsteps sets the number of sub-steps after which a particle
// that has not reached its target time is marked InvalidField.
func WithMaxSubsteps(n int) IntegratorOption {
	return func(it *Integrator) error {
		if n < 1 {
			return ConfigurationError{Component: "integrator", Reason: fmt.Sprintf("max sub-steps must be positive, got %d", n)}
		}
		it.maxSubsteps = n
		return nil
	}
}

// WithVelocityKernel sets the kernel used to interpolate velocity.
func WithVelocityKernel(k *Kernel) IntegratorOption {
	return func(it *Integrator) error {
		if k == nil || k.Contract() != PartitionOfUnity {
			return ConfigurationError{Component: "integrator", Reason: "velocity kernel must be a partition of unity"}
		}
		it.kernel = k
		return nil
	}
}

// WithDiagnostics sets fields that are interpolated at each particle
// position and recorded in its snapshots.
func WithDiagnostics(fields ...string) IntegratorOption {
	return func(it *Integrator) error {
		it.diagnostics = append([]string(nil), fields...)
		return nil
	}
}

// NewIntegrator returns an Integrator that interpolates velocity
// with in.
func NewIntegrator(in *Interpolator, opts ...IntegratorOption) (*Integrator, error) {
	it := &Integrator{
		in:          in,
		scheme:      Euler,
		maxSubsteps: DefaultMaxSubsteps,
		kernel:      DefaultKernelFor(in.g),
		Log:         in.Log,
		metrics:     in.metrics,
	}
	for _, o := range opts {
		if err := o(it); err != nil {
			return nil, err
		}
	}
	return it, nil
}

// velocityInfo holds the metadata of the velocity components.
type velocityInfo struct {
	u, v, w FieldInfo
	hasW    bool
}

func checkVelocity(ds Dataset, vel Velocity) (velocityInfo, error) {
	var vi velocityInfo
	check := func(name string) (FieldInfo, error) {
		info, err := ds.FieldInfo(name)
		if err != nil {
			return info, ConfigurationError{Component: "velocity", Reason: err.Error()}
		}
		if info.Units != nil && !info.Units.Matches(velocityDims) {
			return info, ConfigurationError{Component: "velocity", Reason: fmt.Sprintf(
				"field %s has units of %s; want %s", name, info.Units, velocityDims)}
		}
		return info, nil
	}
	var err error
	if vi.u, err = check(vel.U); err != nil {
		return vi, err
	}
	if vi.v, err = check(vel.V); err != nil {
		return vi, err
	}
	if vel.W != "" {
		if vi.w, err = check(vel.W); err != nil {
			return vi, err
		}
		vi.hasW = true
	}
	return vi, nil
}

// Advance moves p forward to time target. Terminal particles and
// particles already at or past target are not moved. An error is returned
// only if ctx is cancelled or the velocity configuration is invalid;
// other problems are recorded in the status of p.
func (it *Integrator) Advance(ctx context.Context, p *Particle, target float64) error {
	vi, err := checkVelocity(it.in.g.ds, p.Velocity)
	if err != nil {
		return err
	}
	return it.advance(ctx, it.in, p, p.Velocity, vi, target)
}

func (it *Integrator) advance(ctx context.Context, in *Interpolator, p *Particle, vel Velocity, vi velocityInfo, target float64) error {
	if p.status.Terminal() {
		return nil
	}
	g := in.g
	t := p.Position.t
	if !(target > t) {
		p.status = Reached
		return nil
	}
	loc, err := p.Position.Location(g)
	if err != nil {
		it.terminate(p, ExitedDomain, err)
		return nil
	}
	threeD := g.Nz() > 0 && vi.hasW
	var entry [3]int
	moved := false
	for n := 0; t < target; n++ {
		if err := ctx.Err(); err != nil {
			it.commit(p, g, loc, t, moved)
			return err
		}
		if n >= it.maxSubsteps {
			it.commit(p, g, loc, t, moved)
			it.terminate(p, InvalidField, InvalidFieldError{Field: vel.U, Reason: fmt.Sprintf(
				"particle did not reach time %g within %d sub-steps", target, it.maxSubsteps)})
			return nil
		}
		rate, err := it.rates(ctx, in, loc, t, vel, vi, threeD)
		if err == nil && it.scheme == RK2 {
			it.slip(&rate, loc, entry, g.Nz())
			dt, _, _ := exitTime(loc, rate, target-t, it.maxStep, threeD)
			rate, err = it.rates(ctx, in, displace(loc, rate, dt/2), t+dt/2, vel, vi, threeD)
		}
		if err != nil {
			it.commit(p, g, loc, t, moved)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			it.terminate(p, InvalidField, err)
			return nil
		}
		it.slip(&rate, loc, entry, g.Nz())
		dt, axis, dir := exitTime(loc, rate, target-t, it.maxStep, threeD)
		next := displace(loc, rate, dt)
		if axis < 0 && dt >= target-t {
			t = target
		} else {
			t += dt
		}
		it.metrics.substep()
		if next != loc {
			moved = true
		}
		loc = next
		for a, r := range [3]float64{loc.Rx, loc.Ry, loc.Rz} {
			if math.Abs(r) < 0.5 {
				entry[a] = 0
			}
		}
		if axis < 0 {
			continue
		}
		if err := it.cross(g, &loc, &entry, axis, dir); err != nil {
			it.commit(p, g, loc, t, true)
			it.terminate(p, ExitedDomain, err)
			return nil
		}
		moved = true
	}
	it.commit(p, g, loc, t, moved)
	p.status = Reached
	return nil
}

func (it *Integrator) terminate(p *Particle, s Status, err error) {
	p.terminate(s, err)
	it.metrics.terminated(s)
	it.Log.WithFields(logrus.Fields{
		"lon":    p.Position.lon,
		"lat":    p.Position.lat,
		"depth":  p.Position.depth,
		"time":   p.Position.t,
		"status": s,
	}).Debugf("seaduck: particle stopped: %v", err)
}

// commit stores the particle's new location and time.
func (it *Integrator) commit(p *Particle, g *Grid, loc CellLocation, t float64, moved bool) {
	if moved {
		p.Position.moveTo(g, loc, t)
	} else {
		p.Position.t = t
	}
}

// rates returns the rates of change of the local coordinates at loc.
func (it *Integrator) rates(ctx context.Context, in *Interpolator, loc CellLocation, t float64, vel Velocity, vi velocityInfo, threeD bool) ([3]float64, error) {
	var r [3]float64
	u, v, err := in.vectorAt(ctx, loc, t, vel.U, vel.V, vi.u, vi.v, it.kernel)
	if err != nil {
		return r, err
	}
	dx, dy, dz := in.g.Extents(loc.Cell)
	r[0], r[1] = u/dx, v/dy
	if threeD {
		w, err := in.valueAt(ctx, loc, t, vel.W, vi.w, it.kernel)
		if err != nil {
			return r, err
		}
		r[2] = -w / dz
	}
	return r, nil
}

// slip removes velocity components that would immediately carry the
// particle back out through the face it just entered, or through the
// sea surface or the bottom of the grid.
func (it *Integrator) slip(rate *[3]float64, loc CellLocation, entry [3]int, nz int) {
	r := [3]float64{loc.Rx, loc.Ry, loc.Rz}
	for a := 0; a < 3; a++ {
		e := float64(entry[a])
		if entry[a] != 0 && r[a] == 0.5*e && rate[a]*e > 0 {
			rate[a] = 0
		}
	}
	if nz == 0 {
		rate[2] = 0
		return
	}
	if loc.K == 0 && loc.Rz <= -0.5 && rate[2] < 0 {
		rate[2] = 0
	}
	if loc.K == nz-1 && loc.Rz >= 0.5 && rate[2] > 0 {
		rate[2] = 0
	}
}

// exitTime returns the length of the next sub-step and, if the step ends
// on a cell face, the axis and direction of that face. axis is -1 if the
// step ends inside the cell.
func exitTime(loc CellLocation, rate [3]float64, remaining, maxStep float64, threeD bool) (dt float64, axis, dir int) {
	dt, axis = remaining, -1
	if maxStep > 0 && maxStep < dt {
		dt = maxStep
	}
	r := [3]float64{loc.Rx, loc.Ry, loc.Rz}
	n := 2
	if threeD {
		n = 3
	}
	for a := 0; a < n; a++ {
		v := rate[a]
		var te float64
		switch {
		case v > 0:
			te = (0.5 - r[a]) / v
		case v < 0:
			te = (-0.5 - r[a]) / v
		default:
			continue
		}
		if te < 0 {
			te = 0
		}
		if te < dt {
			dt, axis, dir = te, a, sign(v)
		}
	}
	return dt, axis, dir
}

// displace moves loc at the given rates for time dt, without leaving
// the cell.
func displace(loc CellLocation, rate [3]float64, dt float64) CellLocation {
	loc.Rx = clampLocal(loc.Rx + rate[0]*dt)
	loc.Ry = clampLocal(loc.Ry + rate[1]*dt)
	loc.Rz = clampLocal(loc.Rz + rate[2]*dt)
	return loc
}

// cross moves loc, which is on the face of its cell given by axis and
// dir, into the neighboring cell. It returns an error if the neighbor is
// outside of the domain or on land.
func (it *Integrator) cross(g *Grid, loc *CellLocation, entry *[3]int, axis, dir int) error {
	leave := func(reason string) error {
		lon, lat, depth := g.Point(*loc)
		return GridResolutionError{Lon: lon, Lat: lat, Depth: depth, Reason: reason}
	}
	if axis == 2 {
		loc.Rz = 0.5 * float64(dir)
		k := loc.K + dir
		if k < 0 || k >= g.Nz() {
			// Rigid surface and bottom.
			return nil
		}
		c := loc.Cell
		c.K = k
		if !g.wet(c) {
			return leave("particle moved below the topography")
		}
		loc.Cell, loc.Rz = c, -0.5*float64(dir)
		entry[2] = -dir
		return nil
	}
	var d [2]int
	d[axis] = dir
	if axis == 0 {
		loc.Rx = 0.5 * float64(dir)
	} else {
		loc.Ry = 0.5 * float64(dir)
	}
	c, tr, err := g.step(loc.Cell, d)
	if err != nil {
		return leave("particle left the domain")
	}
	if !g.wet(c) {
		return leave("particle moved onto land")
	}
	rx, ry := tr.Apply(loc.Rx-float64(d[0]), loc.Ry-float64(d[1]))
	loc.Cell, loc.Rx, loc.Ry = c, clampLocal(rx), clampLocal(ry)
	e := tr.applyInt(d)
	entry[0], entry[1] = -e[0], -e[1]
	return nil
}

// Stage is the state that update hooks can change between checkpoints.
type Stage struct {
	// Checkpoint is the index of the checkpoint about to be integrated to.
	Checkpoint int

	// Time is the time of that checkpoint.
	Time float64

	// Interpolator is used to evaluate velocity and diagnostics. Replacing
	// it with one for a different grid causes particle locations to be
	// resolved again.
	Interpolator *Interpolator

	// Velocity, if not nil, overrides the velocity fields of every particle.
	Velocity *Velocity
}

// UpdateHook is called between checkpoints. It receives the current
// stage and returns the stage to use for the next checkpoint.
type UpdateHook func(Stage) (Stage, error)

// ToListOfTime advances every particle to each of the given ascending
// times in turn and records a snapshot at each. Hooks are called in order
// before each checkpoint after the first. A particle that stops early does
// not affect the others; its later snapshots repeat its last valid state.
// Checkpoints before a particle's start time record its initial state.
// Trajectories are returned in the same order as particles.
func (it *Integrator) ToListOfTime(ctx context.Context, particles []*Particle, times []float64, hooks ...UpdateHook) ([]Trajectory, error) {
	ctx, span := tracer.Start(ctx, "seaduck.ToListOfTime", trace.WithAttributes(
		attribute.Int("particles", len(particles)), attribute.Int("checkpoints", len(times))))
	defer span.End()
	defer it.metrics.observe("to_list_of_time", time.Now())

	for i, t := range times {
		if math.IsNaN(t) || (i > 0 && t < times[i-1]) {
			return nil, ConfigurationError{Component: "integrator", Reason: "checkpoint times must be ascending"}
		}
	}
	for _, d := range it.diagnostics {
		if _, err := it.in.g.ds.FieldInfo(d); err != nil {
			return nil, ConfigurationError{Component: "integrator", Reason: fmt.Sprintf("diagnostic %s: %v", d, err)}
		}
	}

	stage := Stage{Interpolator: it.in}
	trajs := make([]Trajectory, len(particles))
	for c, tc := range times {
		stage.Checkpoint, stage.Time = c, tc
		if c > 0 {
			for _, h := range hooks {
				var err error
				if stage, err = h(stage); err != nil {
					return nil, fmt.Errorf("seaduck: update hook before checkpoint %d: %w", c, err)
				}
			}
			if stage.Interpolator == nil {
				return nil, ConfigurationError{Component: "update hook", Reason: "stage has no interpolator"}
			}
		}
		in := stage.Interpolator
		infos := make(map[Velocity]velocityInfo)
		vels := make([]Velocity, len(particles))
		for i, p := range particles {
			v := p.Velocity
			if stage.Velocity != nil {
				v = *stage.Velocity
			}
			vels[i] = v
			if _, ok := infos[v]; ok {
				continue
			}
			vi, err := checkVelocity(in.g.ds, v)
			if err != nil {
				return nil, err
			}
			infos[v] = vi
		}

		var once sync.Once
		var batchErr error
		in.parallel(len(particles), func(i int) {
			p := particles[i]
			if err := it.advance(ctx, in, p, vels[i], infos[vels[i]], tc); err != nil {
				once.Do(func() { batchErr = err })
				return
			}
			var s Snapshot
			if n := len(p.history); n > 0 && p.history[n-1].Status.Terminal() {
				s = p.history[n-1]
			} else {
				s = newSnapshot(p, it.diagnose(ctx, in, p))
			}
			p.history = append(p.history, s)
			trajs[i].Snapshots = append(trajs[i].Snapshots, s)
		})
		if batchErr != nil {
			return nil, batchErr
		}
	}
	for i, p := range particles {
		trajs[i].Status, trajs[i].Err = p.status, p.err
	}
	return trajs, nil
}

// diagnose interpolates the diagnostic fields at p. Values that cannot
// be calculated are NaN.
func (it *Integrator) diagnose(ctx context.Context, in *Interpolator, p *Particle) map[string]float64 {
	if len(it.diagnostics) == 0 {
		return nil
	}
	out := make(map[string]float64, len(it.diagnostics))
	loc, locErr := p.Position.Location(in.g)
	for _, d := range it.diagnostics {
		out[d] = math.NaN()
		if locErr != nil {
			continue
		}
		info, err := in.g.ds.FieldInfo(d)
		if err != nil {
			continue
		}
		if v, err := in.valueAt(ctx, loc, p.Position.t, d, info, DefaultKernelFor(in.g)); err == nil {
			out[d] = v
		}
	}
	return out
}
