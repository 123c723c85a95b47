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

// Package cdfdata reads and writes seaduck datasets as NetCDF classic
// files. Each face is stored in its own set of variables, and the face
// connection table is stored in a TOML file next to the NetCDF file.
package cdfdata

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/ThomasHaine/seaduck"
	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"github.com/ctessum/unit"
)

// Variable and attribute names.
const (
	facesAttr       = "faces"
	kindAttr        = "seaduck_kind"
	timeVaryingAttr = "seaduck_time_varying"
	dimensionsAttr  = "seaduck_dimensions"
	levelsVar       = "Zl"
	timeVar         = "time"
)

func faceVar(name string, face int) string { return fmt.Sprintf("%s_f%d", name, face) }

// Dataset is a seaduck.Dataset backed by a NetCDF file. Coordinates are
// read when the file is opened and field data is read on request.
// It is safe for concurrent use.
type Dataset struct {
	f    *os.File
	cf   *cdf.File
	mu   sync.Mutex
	path string

	shapes        []seaduck.Shape
	lonC, latC    []*sparse.DenseArray
	lonG, latG    []*sparse.DenseArray
	levels, times []float64
	adj           seaduck.Adjacency
	fields        map[string]seaduck.FieldInfo
	stagger       map[[2]int][2]*sparse.DenseArray
}

// Open opens the NetCDF file at path and the topology file next to it.
func Open(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cdfdata: %v", err)
	}
	cf, err := cdf.Open(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("cdfdata: reading %s: %v", path, err)
	}
	d := &Dataset{
		f: f, cf: cf, path: path,
		fields:  make(map[string]seaduck.FieldInfo),
		stagger: make(map[[2]int][2]*sparse.DenseArray),
	}
	if err := d.load(); err != nil {
		f.Close()
		return nil, fmt.Errorf("cdfdata: reading %s: %v", path, err)
	}
	adj, err := ReadTopology(TopologyPath(path))
	if err != nil {
		f.Close()
		return nil, err
	}
	d.adj = adj
	return d, nil
}

// Close closes the underlying file.
func (d *Dataset) Close() error { return d.f.Close() }

func (d *Dataset) load() error {
	h := d.cf.Header
	nf, ok := h.GetAttribute("", facesAttr).([]int32)
	if !ok || len(nf) != 1 || nf[0] < 1 {
		return fmt.Errorf("missing or invalid %q global attribute", facesAttr)
	}
	for face := 0; face < int(nf[0]); face++ {
		xc, err := d.read2D(faceVar("XC", face))
		if err != nil {
			return err
		}
		yc, err := d.read2D(faceVar("YC", face))
		if err != nil {
			return err
		}
		xg, err := d.read2D(faceVar("XG", face))
		if err != nil {
			return err
		}
		yg, err := d.read2D(faceVar("YG", face))
		if err != nil {
			return err
		}
		d.lonC, d.latC = append(d.lonC, xc), append(d.latC, yc)
		d.lonG, d.latG = append(d.lonG, xg), append(d.latG, yg)
		d.shapes = append(d.shapes, seaduck.Shape{Nx: xc.Shape[1], Ny: xc.Shape[0]})
	}
	var err error
	if d.levels, err = d.read1D(levelsVar); err != nil {
		return err
	}
	if d.times, err = d.read1D(timeVar); err != nil {
		return err
	}
	for _, v := range h.Variables() {
		k, ok := h.GetAttribute(v, kindAttr).(string)
		if !ok || !strings.HasSuffix(v, "_f0") {
			continue
		}
		kind, err := seaduck.ParsePointKind(k)
		if err != nil {
			return fmt.Errorf("variable %s: %v", v, err)
		}
		info := seaduck.FieldInfo{Kind: kind}
		if tv, ok := h.GetAttribute(v, timeVaryingAttr).([]int32); ok && len(tv) == 1 {
			info.TimeVarying = tv[0] != 0
		}
		if dims, ok := h.GetAttribute(v, dimensionsAttr).([]int32); ok {
			info.Units = decodeDimensions(dims)
		}
		d.fields[strings.TrimSuffix(v, "_f0")] = info
	}
	return nil
}

// read1D reads a one-dimensional variable, returning nil if it
// does not exist.
func (d *Dataset) read1D(v string) ([]float64, error) {
	l := d.cf.Header.Lengths(v)
	if len(l) == 0 {
		return nil, nil
	}
	buf := make([]float64, l[0])
	if _, err := d.cf.Reader(v, nil, nil).Read(buf); err != nil {
		return nil, fmt.Errorf("reading %s: %v", v, err)
	}
	return buf, nil
}

func (d *Dataset) read2D(v string) (*sparse.DenseArray, error) {
	l := d.cf.Header.Lengths(v)
	if len(l) != 2 {
		return nil, fmt.Errorf("variable %s is missing or not two-dimensional", v)
	}
	a := sparse.ZerosDense(l...)
	if _, err := d.cf.Reader(v, nil, nil).Read(a.Elements); err != nil {
		return nil, fmt.Errorf("reading %s: %v", v, err)
	}
	return a, nil
}

// Faces implements seaduck.Dataset.
func (d *Dataset) Faces() []int {
	o := make([]int, len(d.shapes))
	for i := range o {
		o[i] = i
	}
	return o
}

// FaceShape implements seaduck.Dataset.
func (d *Dataset) FaceShape(face int) (seaduck.Shape, error) {
	if face < 0 || face >= len(d.shapes) {
		return seaduck.Shape{}, fmt.Errorf("cdfdata: face %d does not exist", face)
	}
	return d.shapes[face], nil
}

// Coordinates implements seaduck.Dataset. Staggered point coordinates
// are calculated from a temporary in-memory copy of the face geometry.
func (d *Dataset) Coordinates(face int, kind seaduck.PointKind) (lon, lat *sparse.DenseArray, err error) {
	if face < 0 || face >= len(d.shapes) {
		return nil, nil, fmt.Errorf("cdfdata: face %d does not exist", face)
	}
	switch kind {
	case seaduck.Center, seaduck.WPoint:
		return d.lonC[face], d.latC[face], nil
	case seaduck.Corner:
		return d.lonG[face], d.latG[face], nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	key := [2]int{face, int(kind)}
	if c, ok := d.stagger[key]; ok {
		return c[0], c[1], nil
	}
	m := seaduck.NewMemDataset()
	if _, err := m.AddFace(d.lonC[face], d.latC[face], d.lonG[face], d.latG[face]); err != nil {
		return nil, nil, err
	}
	lon, lat, err = m.Coordinates(0, kind)
	if err != nil {
		return nil, nil, err
	}
	d.stagger[key] = [2]*sparse.DenseArray{lon, lat}
	return lon, lat, nil
}

// Levels implements seaduck.Dataset.
func (d *Dataset) Levels() []float64 { return d.levels }

// Times implements seaduck.Dataset.
func (d *Dataset) Times() []float64 { return d.times }

// Adjacency implements seaduck.Dataset.
func (d *Dataset) Adjacency() seaduck.Adjacency { return d.adj }

// FieldInfo implements seaduck.Dataset.
func (d *Dataset) FieldInfo(name string) (seaduck.FieldInfo, error) {
	info, ok := d.fields[name]
	if !ok {
		return info, fmt.Errorf("cdfdata: field %q does not exist in %s", name, d.path)
	}
	return info, nil
}

// FieldNames returns the names of the fields in the file in
// alphabetical order.
func (d *Dataset) FieldNames() []string {
	var o []string
	for n := range d.fields {
		o = append(o, n)
	}
	sort.Strings(o)
	return o
}

// Field implements seaduck.Dataset.
func (d *Dataset) Field(ctx context.Context, name string, face, timeIndex int) (*sparse.DenseArray, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := d.FieldInfo(name)
	if err != nil {
		return nil, err
	}
	if face < 0 || face >= len(d.shapes) {
		return nil, fmt.Errorf("cdfdata: face %d does not exist", face)
	}
	v := faceVar(name, face)
	l := d.cf.Header.Lengths(v)
	if len(l) == 0 {
		return nil, fmt.Errorf("cdfdata: variable %s does not exist", v)
	}
	var begin, end []int
	shape := l
	if info.TimeVarying {
		if timeIndex < 0 || timeIndex >= l[0] {
			return nil, fmt.Errorf("cdfdata: time index %d out of range for field %s", timeIndex, name)
		}
		begin = make([]int, len(l))
		end = make([]int, len(l))
		begin[0], end[0] = timeIndex, timeIndex
		for i := 1; i < len(l); i++ {
			end[i] = l[i] - 1
		}
		shape = l[1:]
	}
	a := sparse.ZerosDense(shape...)
	if _, err := d.cf.Reader(v, begin, end).Read(a.Elements); err != nil {
		return nil, fmt.Errorf("cdfdata: reading %s: %v", v, err)
	}
	return a, nil
}

func encodeDimensions(u unit.Dimensions) []int32 {
	var keys []int
	for k := range u {
		keys = append(keys, int(k))
	}
	sort.Ints(keys)
	o := make([]int32, 0, 2*len(keys))
	for _, k := range keys {
		o = append(o, int32(k), int32(u[unit.Dimension(k)]))
	}
	return o
}

func decodeDimensions(v []int32) unit.Dimensions {
	u := make(unit.Dimensions)
	for i := 0; i+1 < len(v); i += 2 {
		u[unit.Dimension(v[i])] = int(v[i+1])
	}
	return u
}
