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
	"sort"

	"github.com/ctessum/sparse"
)

// MemDataset is a Dataset that holds all of its data in memory.
// It is not safe to modify a MemDataset while it is being read.
type MemDataset struct {
	faces  []memFace
	levels []float64
	times  []float64
	adj    Adjacency
	fields map[string]*memField
}

type memFace struct {
	lonC, latC, lonG, latG *sparse.DenseArray
}

type memField struct {
	info FieldInfo
	data [][]*sparse.DenseArray // [face][time]
}

// NewMemDataset returns an empty in-memory dataset.
func NewMemDataset() *MemDataset {
	return &MemDataset{
		adj:    make(Adjacency),
		fields: make(map[string]*memField),
	}
}

// AddFace adds a face with the given center (shape [Ny, Nx]) and corner
// (shape [Ny+1, Nx+1]) coordinates and returns its id.
func (d *MemDataset) AddFace(lonC, latC, lonG, latG *sparse.DenseArray) (int, error) {
	if len(lonC.Shape) != 2 || !sameShape(lonC, latC) {
		return -1, fmt.Errorf("seaduck: center coordinates must be two-dimensional and of equal shape")
	}
	ny, nx := lonC.Shape[0], lonC.Shape[1]
	if len(lonG.Shape) != 2 || !sameShape(lonG, latG) || lonG.Shape[0] != ny+1 || lonG.Shape[1] != nx+1 {
		return -1, fmt.Errorf("seaduck: corner coordinates must have shape [%d, %d]", ny+1, nx+1)
	}
	d.faces = append(d.faces, memFace{lonC: lonC, latC: latC, lonG: lonG, latG: latG})
	return len(d.faces) - 1, nil
}

// SetLevels sets the layer interface depths.
func (d *MemDataset) SetLevels(levels []float64) error {
	if !sort.Float64sAreSorted(levels) {
		return fmt.Errorf("seaduck: levels must be in ascending order")
	}
	d.levels = levels
	return nil
}

// SetTimes sets the snapshot times.
func (d *MemDataset) SetTimes(times []float64) error {
	if !sort.Float64sAreSorted(times) {
		return fmt.Errorf("seaduck: times must be in ascending order")
	}
	d.times = times
	return nil
}

// Link connects edge e1 of face f1 to edge e2 of face f2 in both
// directions.
func (d *MemDataset) Link(f1 int, e1 Edge, f2 int, e2 Edge, reversed bool) {
	d.adj[FaceEdge{f1, e1}] = Link{Face: f2, Edge: e2, Reversed: reversed}
	d.adj[FaceEdge{f2, e2}] = Link{Face: f1, Edge: e1, Reversed: reversed}
}

// SetBoundary marks edge e of face f as a domain boundary.
func (d *MemDataset) SetBoundary(f int, e Edge) {
	d.adj[FaceEdge{f, e}] = Boundary
}

// AddField adds a field. data is indexed by [face][time]; fields
// that are not time varying have one array per face.
func (d *MemDataset) AddField(name string, info FieldInfo, data [][]*sparse.DenseArray) error {
	if len(data) != len(d.faces) {
		return fmt.Errorf("seaduck: field %s has %d faces but dataset has %d", name, len(data), len(d.faces))
	}
	nt := 1
	if info.TimeVarying {
		nt = len(d.times)
	}
	for f, fd := range data {
		if len(fd) != nt {
			return fmt.Errorf("seaduck: field %s face %d has %d snapshots; want %d", name, f, len(fd), nt)
		}
		s := d.faces[f].lonC.Shape
		for _, a := range fd {
			n := len(a.Shape)
			if n < 2 || a.Shape[n-2] != s[0] || a.Shape[n-1] != s[1] {
				return fmt.Errorf("seaduck: field %s face %d has shape %v; want [..., %d, %d]",
					name, f, a.Shape, s[0], s[1])
			}
			if n == 3 && a.Shape[0] != len(d.levels)-1 {
				return fmt.Errorf("seaduck: field %s face %d has %d levels; want %d",
					name, f, a.Shape[0], len(d.levels)-1)
			}
		}
	}
	d.fields[name] = &memField{info: info, data: data}
	return nil
}

// Faces implements Dataset.
func (d *MemDataset) Faces() []int {
	o := make([]int, len(d.faces))
	for i := range o {
		o[i] = i
	}
	return o
}

// FaceShape implements Dataset.
func (d *MemDataset) FaceShape(face int) (Shape, error) {
	if face < 0 || face >= len(d.faces) {
		return Shape{}, fmt.Errorf("seaduck: face %d does not exist", face)
	}
	s := d.faces[face].lonC.Shape
	return Shape{Nx: s[1], Ny: s[0]}, nil
}

// Coordinates implements Dataset. Staggered velocity point coordinates
// are calculated as the midpoints of the corresponding cell edges.
func (d *MemDataset) Coordinates(face int, kind PointKind) (lon, lat *sparse.DenseArray, err error) {
	if face < 0 || face >= len(d.faces) {
		return nil, nil, fmt.Errorf("seaduck: face %d does not exist", face)
	}
	f := d.faces[face]
	switch kind {
	case Center, WPoint:
		return f.lonC, f.latC, nil
	case Corner:
		return f.lonG, f.latG, nil
	case UPoint:
		lon, lat := edgeMidpoints(f.lonG, f.latG, 0, 1)
		return lon, lat, nil
	case VPoint:
		lon, lat := edgeMidpoints(f.lonG, f.latG, 1, 0)
		return lon, lat, nil
	default:
		return nil, nil, fmt.Errorf("seaduck: invalid point kind %v", kind)
	}
}

// edgeMidpoints returns the midpoints between corner (j, i) and
// corner (j+dj, i+di) for every cell.
func edgeMidpoints(lonG, latG *sparse.DenseArray, di, dj int) (*sparse.DenseArray, *sparse.DenseArray) {
	ny, nx := lonG.Shape[0]-1, lonG.Shape[1]-1
	lon, lat := sparse.ZerosDense(ny, nx), sparse.ZerosDense(ny, nx)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			a := toVec(lonG.Get(j, i), latG.Get(j, i))
			b := toVec(lonG.Get(j+dj, i+di), latG.Get(j+dj, i+di))
			lo, la := a.add(b).unit().lonLat()
			lon.Set(lo, j, i)
			lat.Set(la, j, i)
		}
	}
	return lon, lat
}

// Levels implements Dataset.
func (d *MemDataset) Levels() []float64 { return d.levels }

// Times implements Dataset.
func (d *MemDataset) Times() []float64 { return d.times }

// Adjacency implements Dataset.
func (d *MemDataset) Adjacency() Adjacency { return d.adj }

// FieldInfo implements Dataset.
func (d *MemDataset) FieldInfo(name string) (FieldInfo, error) {
	f, ok := d.fields[name]
	if !ok {
		return FieldInfo{}, fmt.Errorf("seaduck: field %q does not exist", name)
	}
	return f.info, nil
}

// FieldNames returns the names of the fields in the dataset in
// alphabetical order.
func (d *MemDataset) FieldNames() []string {
	var o []string
	for n := range d.fields {
		o = append(o, n)
	}
	sort.Strings(o)
	return o
}

// Field implements Dataset.
func (d *MemDataset) Field(ctx context.Context, name string, face, timeIndex int) (*sparse.DenseArray, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, ok := d.fields[name]
	if !ok {
		return nil, fmt.Errorf("seaduck: field %q does not exist", name)
	}
	if face < 0 || face >= len(f.data) {
		return nil, fmt.Errorf("seaduck: face %d does not exist", face)
	}
	if !f.info.TimeVarying {
		timeIndex = 0
	}
	if timeIndex < 0 || timeIndex >= len(f.data[face]) {
		return nil, fmt.Errorf("seaduck: time index %d out of range for field %q", timeIndex, name)
	}
	return f.data[face][timeIndex], nil
}

func sameShape(a, b *sparse.DenseArray) bool {
	if len(a.Shape) != len(b.Shape) {
		return false
	}
	for i, s := range a.Shape {
		if b.Shape[i] != s {
			return false
		}
	}
	return true
}
