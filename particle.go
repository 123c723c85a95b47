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

import "fmt"

// Status is the state of a particle.
type Status int

const (
	// Alive particles have not yet been advanced to a checkpoint.
	Alive Status = iota

	// Reached particles have been advanced to their most recent target
	// time and can be advanced further.
	Reached

	// ExitedDomain particles have left the grid or moved onto land.
	ExitedDomain

	// InvalidField particles encountered a missing or NaN velocity.
	InvalidField
)

func (s Status) String() string {
	switch s {
	case Alive:
		return "alive"
	case Reached:
		return "reached"
	case ExitedDomain:
		return "exited_domain"
	case InvalidField:
		return "invalid_field"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Terminal returns whether a particle with status s can no longer
// be advanced.
func (s Status) Terminal() bool { return s == ExitedDomain || s == InvalidField }

// Velocity holds the names of velocity component fields in meters per
// second. U and V are in the index-space directions of each face (i and j)
// and W is positive upward. W may be empty for horizontal-only tracking.
type Velocity struct {
	U, V, W string
}

// Particle is a point advected by a velocity field.
type Particle struct {
	Position *Position
	Velocity Velocity

	status  Status
	err     error
	history []Snapshot
}

// NewParticle returns a particle at the given position that is advected
// by vel.
func NewParticle(lon, lat, depth, t float64, vel Velocity) *Particle {
	return &Particle{Position: NewPosition(lon, lat, depth, t), Velocity: vel}
}

// Status returns the status of the particle.
func (p *Particle) Status() Status { return p.status }

// Err returns the error that terminated the particle, if any.
func (p *Particle) Err() error { return p.err }

// History returns the snapshots recorded for the particle so far.
func (p *Particle) History() []Snapshot { return append([]Snapshot(nil), p.history...) }

func (p *Particle) terminate(s Status, err error) {
	p.status, p.err = s, err
}

// Snapshot is an immutable record of a particle's state at a checkpoint.
type Snapshot struct {
	Time, Lon, Lat, Depth float64
	Status                Status
	values                map[string]float64
}

func newSnapshot(p *Particle, values map[string]float64) Snapshot {
	v := make(map[string]float64, len(values))
	for k, x := range values {
		v[k] = x
	}
	pos := p.Position
	return Snapshot{Time: pos.t, Lon: pos.lon, Lat: pos.lat, Depth: pos.depth, Status: p.status, values: v}
}

// Values returns a copy of the diagnostic values recorded with the
// snapshot.
func (s Snapshot) Values() map[string]float64 {
	v := make(map[string]float64, len(s.values))
	for k, x := range s.values {
		v[k] = x
	}
	return v
}

// Value returns one diagnostic value.
func (s Snapshot) Value(name string) (float64, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Trajectory holds one snapshot per requested checkpoint. Snapshots
// after a particle stops repeat its last valid position and time.
type Trajectory struct {
	Snapshots []Snapshot
	Status    Status
	Err       error
}
