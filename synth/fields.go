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

package synth

import (
	"math"

	"github.com/ThomasHaine/seaduck"
	"github.com/ctessum/sparse"
	"github.com/ctessum/unit"
)

// AnalyticFunc returns the value of a field at a point in space and time.
// Depth is in meters and time is in seconds.
type AnalyticFunc func(lon, lat, depth, t float64) float64

// Func evaluates f at every point of the given kind in ds and returns the
// arrays in the [face][time] layout used by MemDataset.AddField. Fields
// that are time varying are evaluated at every dataset time; others are
// evaluated once at time zero. Depth is the layer middle, or the top
// interface of each layer for WPoint fields.
func Func(ds seaduck.Dataset, kind seaduck.PointKind, timeVarying bool, f AnalyticFunc) ([][]*sparse.DenseArray, error) {
	times := []float64{0}
	if timeVarying {
		times = ds.Times()
	}
	levels := ds.Levels()
	nz := 0
	if len(levels) > 0 {
		nz = len(levels) - 1
	}
	faces := ds.Faces()
	out := make([][]*sparse.DenseArray, len(faces))
	for _, face := range faces {
		s, err := ds.FaceShape(face)
		if err != nil {
			return nil, err
		}
		lon, lat, err := ds.Coordinates(face, kind)
		if err != nil {
			return nil, err
		}
		for _, t := range times {
			var a *sparse.DenseArray
			if nz > 0 {
				a = sparse.ZerosDense(nz, s.Ny, s.Nx)
			} else {
				a = sparse.ZerosDense(s.Ny, s.Nx)
			}
			for k := 0; k < max(nz, 1); k++ {
				var depth float64
				if nz > 0 {
					depth = (levels[k] + levels[k+1]) / 2
					if kind == seaduck.WPoint {
						depth = levels[k]
					}
				}
				for j := 0; j < s.Ny; j++ {
					for i := 0; i < s.Nx; i++ {
						v := f(lon.Get(j, i), lat.Get(j, i), depth, t)
						if nz > 0 {
							a.Set(v, k, j, i)
						} else {
							a.Set(v, j, i)
						}
					}
				}
			}
			out[face] = append(out[face], a)
		}
	}
	return out, nil
}

// Constant returns an AnalyticFunc that is v everywhere.
func Constant(v float64) AnalyticFunc {
	return func(_, _, _, _ float64) float64 { return v }
}

// AddFunc evaluates f with Func and adds the result to ds as a field
// with the given name.
func AddFunc(ds *seaduck.MemDataset, name string, info seaduck.FieldInfo, f AnalyticFunc) error {
	data, err := Func(ds, info.Kind, info.TimeVarying, f)
	if err != nil {
		return err
	}
	return ds.AddField(name, info, data)
}

// Velocity is the physical dimension of velocity fields.
var Velocity = unit.Dimensions{unit.LengthDim: 1, unit.TimeDim: -1}

// AddZonal adds cell-centered static velocity fields u and v to ds
// that describe a uniform eastward flow of the given speed in meters per
// second. The components are projected onto the index directions of each
// cell, which are estimated from the cell corners.
func AddZonal(ds *seaduck.MemDataset, u, v string, speed float64) error {
	faces := ds.Faces()
	levels := ds.Levels()
	nz := 0
	if len(levels) > 0 {
		nz = len(levels) - 1
	}
	ud := make([][]*sparse.DenseArray, len(faces))
	vd := make([][]*sparse.DenseArray, len(faces))
	for _, face := range faces {
		s, err := ds.FaceShape(face)
		if err != nil {
			return err
		}
		lonC, _, err := ds.Coordinates(face, seaduck.Center)
		if err != nil {
			return err
		}
		lonG, latG, err := ds.Coordinates(face, seaduck.Corner)
		if err != nil {
			return err
		}
		corner := func(j, i int) vec { return toVec(lonG.Get(j, i), latG.Get(j, i)) }
		var ua, va *sparse.DenseArray
		if nz > 0 {
			ua, va = sparse.ZerosDense(nz, s.Ny, s.Nx), sparse.ZerosDense(nz, s.Ny, s.Nx)
		} else {
			ua, va = sparse.ZerosDense(s.Ny, s.Nx), sparse.ZerosDense(s.Ny, s.Nx)
		}
		for j := 0; j < s.Ny; j++ {
			for i := 0; i < s.Nx; i++ {
				lon := lonC.Get(j, i) * deg2rad
				east := vec{-math.Sin(lon), math.Cos(lon), 0}
				// Index directions from the midpoints of opposite edges.
				w := corner(j, i).add(corner(j+1, i))
				e := corner(j, i+1).add(corner(j+1, i+1))
				so := corner(j, i).add(corner(j, i+1))
				no := corner(j+1, i).add(corner(j+1, i+1))
				ei, ej := e.sub(w).unit(), no.sub(so).unit()
				// Solve east = x*ei + y*ej in the plane of ei and ej.
				a11, a12, a22 := ei.dot(ei), ei.dot(ej), ej.dot(ej)
				b1, b2 := east.dot(ei), east.dot(ej)
				det := a11*a22 - a12*a12
				x, y := (b1*a22-b2*a12)/det, (a11*b2-a12*b1)/det
				for k := 0; k < max(nz, 1); k++ {
					if nz > 0 {
						ua.Set(speed*x, k, j, i)
						va.Set(speed*y, k, j, i)
					} else {
						ua.Set(speed*x, j, i)
						va.Set(speed*y, j, i)
					}
				}
			}
		}
		ud[face] = []*sparse.DenseArray{ua}
		vd[face] = []*sparse.DenseArray{va}
	}
	info := seaduck.FieldInfo{Kind: seaduck.Center, Units: Velocity}
	if err := ds.AddField(u, info, ud); err != nil {
		return err
	}
	return ds.AddField(v, info, vd)
}

// AddLandBox adds a static cell-centered mask field to ds that is zero
// (land) for cells with centers inside the given longitude and latitude
// range and one (ocean) elsewhere.
func AddLandBox(ds *seaduck.MemDataset, name string, lon0, lon1, lat0, lat1 float64) error {
	return AddFunc(ds, name, seaduck.FieldInfo{Kind: seaduck.Center}, func(lon, lat, _, _ float64) float64 {
		if lon >= lon0 && lon <= lon1 && lat >= lat0 && lat <= lat1 {
			return 0
		}
		return 1
	})
}
