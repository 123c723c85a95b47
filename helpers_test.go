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
	"testing"

	"github.com/ctessum/sparse"
)

// regularDataset returns a single-face longitude-latitude grid of nx by
// ny cells of size d degrees, centered on (0, 0), with boundary edges.
func regularDataset(t testing.TB, nx, ny int, d float64, levels, times []float64) *MemDataset {
	lon0, lat0 := -float64(nx)*d/2, -float64(ny)*d/2
	lonC, latC := sparse.ZerosDense(ny, nx), sparse.ZerosDense(ny, nx)
	lonG, latG := sparse.ZerosDense(ny+1, nx+1), sparse.ZerosDense(ny+1, nx+1)
	for j := 0; j <= ny; j++ {
		for i := 0; i <= nx; i++ {
			lonG.Set(lon0+float64(i)*d, j, i)
			latG.Set(lat0+float64(j)*d, j, i)
			if i < nx && j < ny {
				lonC.Set(lon0+(float64(i)+0.5)*d, j, i)
				latC.Set(lat0+(float64(j)+0.5)*d, j, i)
			}
		}
	}
	ds := NewMemDataset()
	f, err := ds.AddFace(lonC, latC, lonG, latG)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range []Edge{West, East, South, North} {
		ds.SetBoundary(f, e)
	}
	if err := ds.SetLevels(levels); err != nil {
		t.Fatal(err)
	}
	if err := ds.SetTimes(times); err != nil {
		t.Fatal(err)
	}
	return ds
}

// addField adds a field whose value at cell (k, j, i) and time index n
// is f(k, j, i, n).
func addField(t testing.TB, ds *MemDataset, name string, info FieldInfo, f func(k, j, i, n int) float64) {
	nz := 0
	if l := ds.Levels(); len(l) > 0 {
		nz = len(l) - 1
	}
	nt := 1
	if info.TimeVarying {
		nt = len(ds.Times())
	}
	data := make([][]*sparse.DenseArray, len(ds.Faces()))
	for face := range data {
		s, err := ds.FaceShape(face)
		if err != nil {
			t.Fatal(err)
		}
		for n := 0; n < nt; n++ {
			var a *sparse.DenseArray
			if nz > 0 {
				a = sparse.ZerosDense(nz, s.Ny, s.Nx)
			} else {
				a = sparse.ZerosDense(s.Ny, s.Nx)
			}
			for k := 0; k < max(nz, 1); k++ {
				for j := 0; j < s.Ny; j++ {
					for i := 0; i < s.Nx; i++ {
						if nz > 0 {
							a.Set(f(k, j, i, n), k, j, i)
						} else {
							a.Set(f(k, j, i, n), j, i)
						}
					}
				}
			}
			data[face] = append(data[face], a)
		}
	}
	if err := ds.AddField(name, info, data); err != nil {
		t.Fatal(err)
	}
}

func buildGrid(t testing.TB, ds Dataset, opts ...Option) *Grid {
	g, err := BuildIndex(context.Background(), ds, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return g
}
