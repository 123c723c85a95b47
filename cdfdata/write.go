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

package cdfdata

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/ThomasHaine/seaduck"
	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// FieldLister is implemented by datasets that can list their fields.
type FieldLister interface {
	FieldNames() []string
}

// Write saves the grid and the named fields of ds to a NetCDF file at
// path, and saves the face connection table to TopologyPath(path). If
// fields is nil and ds implements FieldLister, all fields are written.
func Write(ctx context.Context, path string, ds seaduck.Dataset, fields []string) error {
	if fields == nil {
		if fl, ok := ds.(FieldLister); ok {
			fields = fl.FieldNames()
		}
	}
	faces := ds.Faces()
	var dims []string
	var lengths []int
	for _, f := range faces {
		s, err := ds.FaceShape(f)
		if err != nil {
			return fmt.Errorf("cdfdata: %v", err)
		}
		dims = append(dims, faceVar("y", f), faceVar("x", f), faceVar("yg", f), faceVar("xg", f))
		lengths = append(lengths, s.Ny, s.Nx, s.Ny+1, s.Nx+1)
	}
	levels, times := ds.Levels(), ds.Times()
	if len(levels) > 1 {
		dims = append(dims, "zl", "z")
		lengths = append(lengths, len(levels), len(levels)-1)
	}
	if len(times) > 0 {
		dims = append(dims, timeVar)
		lengths = append(lengths, len(times))
	}

	h := cdf.NewHeader(dims, lengths)
	h.AddAttribute("", facesAttr, []int32{int32(len(faces))})
	h.AddAttribute("", "title", "seaduck dataset")
	for _, f := range faces {
		for _, v := range []string{"XC", "YC"} {
			h.AddVariable(faceVar(v, f), []string{faceVar("y", f), faceVar("x", f)}, []float64{0})
		}
		for _, v := range []string{"XG", "YG"} {
			h.AddVariable(faceVar(v, f), []string{faceVar("yg", f), faceVar("xg", f)}, []float64{0})
		}
		h.AddAttribute(faceVar("XC", f), "units", "degrees_east")
		h.AddAttribute(faceVar("YC", f), "units", "degrees_north")
		h.AddAttribute(faceVar("XG", f), "units", "degrees_east")
		h.AddAttribute(faceVar("YG", f), "units", "degrees_north")
	}
	if len(levels) > 1 {
		h.AddVariable(levelsVar, []string{"zl"}, []float64{0})
		h.AddAttribute(levelsVar, "units", "m")
		h.AddAttribute(levelsVar, "positive", "down")
	}
	if len(times) > 0 {
		h.AddVariable(timeVar, []string{timeVar}, []float64{0})
		h.AddAttribute(timeVar, "units", "s")
	}

	// Field arrays are read up front so the header knows whether each
	// field is two or three dimensional.
	type fieldData struct {
		name string
		info seaduck.FieldInfo
		data [][]*sparse.DenseArray // [face][time]
	}
	fds := make([]fieldData, len(fields))
	for n, name := range fields {
		info, err := ds.FieldInfo(name)
		if err != nil {
			return fmt.Errorf("cdfdata: %v", err)
		}
		fd := fieldData{name: name, info: info, data: make([][]*sparse.DenseArray, len(faces))}
		nt := 1
		if info.TimeVarying {
			nt = len(times)
		}
		if nt == 0 {
			return fmt.Errorf("cdfdata: field %s is time varying but the dataset has no times", name)
		}
		for _, f := range faces {
			for ti := 0; ti < nt; ti++ {
				a, err := ds.Field(ctx, name, f, ti)
				if err != nil {
					return fmt.Errorf("cdfdata: reading field %s: %v", name, err)
				}
				fd.data[f] = append(fd.data[f], a)
			}
			var vdims []string
			if info.TimeVarying {
				vdims = append(vdims, timeVar)
			}
			if len(fd.data[f][0].Shape) == 3 {
				vdims = append(vdims, "z")
			}
			vdims = append(vdims, faceVar("y", f), faceVar("x", f))
			v := faceVar(name, f)
			h.AddVariable(v, vdims, []float64{0})
			h.AddAttribute(v, kindAttr, info.Kind.String())
			tv := int32(0)
			if info.TimeVarying {
				tv = 1
			}
			h.AddAttribute(v, timeVaryingAttr, []int32{tv})
			if info.Units != nil {
				h.AddAttribute(v, dimensionsAttr, encodeDimensions(info.Units))
				h.AddAttribute(v, "units", info.Units.String())
			}
		}
		fds[n] = fd
	}
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		return fmt.Errorf("cdfdata: invalid header: %v", errs[0])
	}

	w, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cdfdata: %v", err)
	}
	cf, err := cdf.Create(w, h)
	if err != nil {
		w.Close()
		return fmt.Errorf("cdfdata: creating %s: %v", path, err)
	}
	write := func(v string, vals []float64) error {
		if err := WriteVariable(cf, v, vals); err != nil {
			return fmt.Errorf("cdfdata: %v", err)
		}
		return nil
	}
	for _, f := range faces {
		for _, kind := range []seaduck.PointKind{seaduck.Center, seaduck.Corner} {
			lon, lat, err := ds.Coordinates(f, kind)
			if err != nil {
				w.Close()
				return fmt.Errorf("cdfdata: %v", err)
			}
			x, y := "XC", "YC"
			if kind == seaduck.Corner {
				x, y = "XG", "YG"
			}
			if err := write(faceVar(x, f), lon.Elements); err != nil {
				w.Close()
				return err
			}
			if err := write(faceVar(y, f), lat.Elements); err != nil {
				w.Close()
				return err
			}
		}
	}
	if len(levels) > 1 {
		if err := write(levelsVar, levels); err != nil {
			w.Close()
			return err
		}
	}
	if len(times) > 0 {
		if err := write(timeVar, times); err != nil {
			w.Close()
			return err
		}
	}
	for _, fd := range fds {
		for f, snaps := range fd.data {
			var vals []float64
			for _, a := range snaps {
				vals = append(vals, a.Elements...)
			}
			if err := write(faceVar(fd.name, f), vals); err != nil {
				w.Close()
				return err
			}
		}
	}
	if err := cdf.UpdateNumRecs(w); err != nil {
		w.Close()
		return fmt.Errorf("cdfdata: %v", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("cdfdata: %v", err)
	}
	return WriteTopology(TopologyPath(path), ds.Adjacency())
}

// WriteVariable writes vals, which must be a []float64 or []int32, to
// variable v of f starting at its origin. Writing the last element of a
// fixed-size variable makes the underlying writer report io.EOF, which is
// not an error when all of vals was written.
func WriteVariable(f *cdf.File, v string, vals interface{}) error {
	var want int
	switch x := vals.(type) {
	case []float64:
		want = len(x)
	case []int32:
		want = len(x)
	default:
		return fmt.Errorf("writing %s: unsupported type %T", v, vals)
	}
	w := f.Writer(v, nil, nil)
	if w == nil {
		return fmt.Errorf("writing %s: no such variable", v)
	}
	n, err := w.Write(vals)
	if err == io.EOF && n == want {
		return nil
	}
	if err != nil {
		return fmt.Errorf("writing %s: %v", v, err)
	}
	if n != want {
		return fmt.Errorf("writing %s: wrote %d of %d values", v, n, want)
	}
	return nil
}

// TopologyPath returns the path of the topology file that accompanies
// the NetCDF file at path.
func TopologyPath(path string) string { return path + ".topology.toml" }

type topologyFile struct {
	Edges []topologyEdge `toml:"edge"`
}

// topologyEdge is one row of the face connection table. Neighbor is -1
// for domain boundaries.
type topologyEdge struct {
	Face         int
	Edge         string
	Neighbor     int
	NeighborEdge string
	Reversed     bool
}

// WriteTopology saves adj as TOML.
func WriteTopology(path string, adj seaduck.Adjacency) error {
	var t topologyFile
	for fe, l := range adj {
		e := topologyEdge{Face: fe.Face, Edge: fe.Edge.String(), Neighbor: -1}
		if !l.IsBoundary() {
			e.Neighbor, e.NeighborEdge, e.Reversed = l.Face, l.Edge.String(), l.Reversed
		}
		t.Edges = append(t.Edges, e)
	}
	sort.Slice(t.Edges, func(i, j int) bool {
		a, b := t.Edges[i], t.Edges[j]
		if a.Face != b.Face {
			return a.Face < b.Face
		}
		return a.Edge < b.Edge
	})
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cdfdata: %v", err)
	}
	if err := toml.NewEncoder(f).Encode(t); err != nil {
		f.Close()
		return fmt.Errorf("cdfdata: writing topology: %v", err)
	}
	return f.Close()
}

// ReadTopology reads a face connection table written by WriteTopology.
func ReadTopology(path string) (seaduck.Adjacency, error) {
	var t topologyFile
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return nil, fmt.Errorf("cdfdata: reading topology: %v", err)
	}
	adj := make(seaduck.Adjacency)
	for _, e := range t.Edges {
		edge, err := seaduck.ParseEdge(e.Edge)
		if err != nil {
			return nil, fmt.Errorf("cdfdata: reading topology: %v", err)
		}
		fe := seaduck.FaceEdge{Face: e.Face, Edge: edge}
		if _, ok := adj[fe]; ok {
			return nil, fmt.Errorf("cdfdata: reading topology: duplicate entry for face %d %v edge", e.Face, edge)
		}
		if e.Neighbor < 0 {
			adj[fe] = seaduck.Boundary
			continue
		}
		ne, err := seaduck.ParseEdge(e.NeighborEdge)
		if err != nil {
			return nil, fmt.Errorf("cdfdata: reading topology: %v", err)
		}
		adj[fe] = seaduck.Link{Face: e.Neighbor, Edge: ne, Reversed: e.Reversed}
	}
	return adj, nil
}
