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

// Package synth creates synthetic grids and analytic fields for testing
// and demonstrating seaduck.
package synth

import (
	"fmt"
	"math"

	"github.com/ThomasHaine/seaduck"
	"github.com/ctessum/sparse"
)

const deg2rad = math.Pi / 180

// LatLonConfig specifies a regular longitude-latitude grid.
type LatLonConfig struct {
	// Lon0 and Lat0 are the coordinates of the south-west corner of the
	// grid in degrees.
	Lon0, Lat0 float64

	// DLon and DLat are the cell sizes in degrees.
	DLon, DLat float64

	Nx, Ny int

	// Levels are the layer interface depths in meters. Empty
	// for a two-dimensional grid.
	Levels []float64

	// Times are the snapshot times in seconds.
	Times []float64

	// Periodic connects the west and east edges of the grid.
	Periodic bool
}

// LatLon returns a single-face dataset holding the grid described by cfg.
// Edges are domain boundaries unless cfg.Periodic is set.
func LatLon(cfg LatLonConfig) (*seaduck.MemDataset, error) {
	if cfg.Nx < 1 || cfg.Ny < 1 || cfg.DLon <= 0 || cfg.DLat <= 0 {
		return nil, fmt.Errorf("synth: invalid grid dimensions %+v", cfg)
	}
	if cfg.Lat0 < -90 || cfg.Lat0+float64(cfg.Ny)*cfg.DLat > 90 {
		return nil, fmt.Errorf("synth: grid latitudes out of range")
	}
	lonC, latC := sparse.ZerosDense(cfg.Ny, cfg.Nx), sparse.ZerosDense(cfg.Ny, cfg.Nx)
	lonG, latG := sparse.ZerosDense(cfg.Ny+1, cfg.Nx+1), sparse.ZerosDense(cfg.Ny+1, cfg.Nx+1)
	for j := 0; j <= cfg.Ny; j++ {
		for i := 0; i <= cfg.Nx; i++ {
			lonG.Set(cfg.Lon0+float64(i)*cfg.DLon, j, i)
			latG.Set(cfg.Lat0+float64(j)*cfg.DLat, j, i)
			if i < cfg.Nx && j < cfg.Ny {
				lonC.Set(cfg.Lon0+(float64(i)+0.5)*cfg.DLon, j, i)
				latC.Set(cfg.Lat0+(float64(j)+0.5)*cfg.DLat, j, i)
			}
		}
	}
	ds := seaduck.NewMemDataset()
	f, err := ds.AddFace(lonC, latC, lonG, latG)
	if err != nil {
		return nil, err
	}
	if cfg.Periodic {
		ds.Link(f, seaduck.West, f, seaduck.East, false)
	} else {
		ds.SetBoundary(f, seaduck.West)
		ds.SetBoundary(f, seaduck.East)
	}
	ds.SetBoundary(f, seaduck.South)
	ds.SetBoundary(f, seaduck.North)
	if err := ds.SetLevels(cfg.Levels); err != nil {
		return nil, err
	}
	if err := ds.SetTimes(cfg.Times); err != nil {
		return nil, err
	}
	return ds, nil
}

type vec [3]float64

func (a vec) add(b vec) vec                { return vec{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }
func (a vec) scale(s float64) vec          { return vec{a[0] * s, a[1] * s, a[2] * s} }
func (a vec) dot(b vec) float64            { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }
func (a vec) sub(b vec) vec                { return vec{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }
func (a vec) unit() vec                    { return a.scale(1 / math.Sqrt(a.dot(a))) }
func (a vec) near(b vec, tol float64) bool { return a.sub(b).dot(a.sub(b)) < tol*tol }

func (a vec) lonLat() (lon, lat float64) {
	return math.Atan2(a[1], a[0]) / deg2rad, math.Asin(math.Max(-1, math.Min(1, a[2]))) / deg2rad
}

func toVec(lon, lat float64) vec {
	lo, la := lon*deg2rad, lat*deg2rad
	return vec{math.Cos(la) * math.Cos(lo), math.Cos(la) * math.Sin(lo), math.Sin(la)}
}

// cubeFace holds the center direction of a cube face and the directions
// of its i and j axes. For every face, i cross j is the center direction.
type cubeFace struct {
	c, a, b vec
}

var cubeFaces = [6]cubeFace{
	{c: vec{1, 0, 0}, a: vec{0, 1, 0}, b: vec{0, 0, 1}},
	{c: vec{0, 1, 0}, a: vec{-1, 0, 0}, b: vec{0, 0, 1}},
	{c: vec{-1, 0, 0}, a: vec{0, -1, 0}, b: vec{0, 0, 1}},
	{c: vec{0, -1, 0}, a: vec{1, 0, 0}, b: vec{0, 0, 1}},
	{c: vec{0, 0, 1}, a: vec{0, 1, 0}, b: vec{-1, 0, 0}},
	{c: vec{0, 0, -1}, a: vec{0, 1, 0}, b: vec{1, 0, 0}},
}

func (f cubeFace) point(alpha, beta float64) vec {
	return f.c.add(f.a.scale(math.Tan(alpha))).add(f.b.scale(math.Tan(beta))).unit()
}

// CubeSphere returns a six-face equiangular cube-sphere dataset with n by
// n cells per face. Faces 0 through 3 circle the equator eastward starting
// at longitude 0, face 4 covers the north pole, and face 5 the south pole.
// Face adjacency is derived from the shared corner points of the faces.
func CubeSphere(n int, levels, times []float64) (*seaduck.MemDataset, error) {
	if n < 1 {
		return nil, fmt.Errorf("synth: cube-sphere needs at least one cell per face, got %d", n)
	}
	ds := seaduck.NewMemDataset()
	ang := func(i float64) float64 { return -math.Pi/4 + i*math.Pi/2/float64(n) }
	corners := make([][]vec, 6)
	for fn, cf := range cubeFaces {
		lonC, latC := sparse.ZerosDense(n, n), sparse.ZerosDense(n, n)
		lonG, latG := sparse.ZerosDense(n+1, n+1), sparse.ZerosDense(n+1, n+1)
		corners[fn] = make([]vec, (n+1)*(n+1))
		for j := 0; j <= n; j++ {
			for i := 0; i <= n; i++ {
				v := cf.point(ang(float64(i)), ang(float64(j)))
				corners[fn][j*(n+1)+i] = v
				lo, la := v.lonLat()
				lonG.Set(lo, j, i)
				latG.Set(la, j, i)
				if i < n && j < n {
					lo, la = cf.point(ang(float64(i)+0.5), ang(float64(j)+0.5)).lonLat()
					lonC.Set(lo, j, i)
					latC.Set(la, j, i)
				}
			}
		}
		if _, err := ds.AddFace(lonC, latC, lonG, latG); err != nil {
			return nil, err
		}
	}
	// Endpoints of each edge, in the direction of increasing index
	// along the edge.
	ends := func(f int, e seaduck.Edge) (vec, vec) {
		c := corners[f]
		at := func(i, j int) vec { return c[j*(n+1)+i] }
		switch e {
		case seaduck.West:
			return at(0, 0), at(0, n)
		case seaduck.East:
			return at(n, 0), at(n, n)
		case seaduck.South:
			return at(0, 0), at(n, 0)
		default:
			return at(0, n), at(n, n)
		}
	}
	edges := []seaduck.Edge{seaduck.West, seaduck.East, seaduck.South, seaduck.North}
	const tol = 1e-9
	for f1 := 0; f1 < 6; f1++ {
		for _, e1 := range edges {
			a1, b1 := ends(f1, e1)
			found := false
			for f2 := 0; f2 < 6 && !found; f2++ {
				if f2 == f1 {
					continue
				}
				for _, e2 := range edges {
					a2, b2 := ends(f2, e2)
					switch {
					case a1.near(a2, tol) && b1.near(b2, tol):
						ds.Link(f1, e1, f2, e2, false)
						found = true
					case a1.near(b2, tol) && b1.near(a2, tol):
						ds.Link(f1, e1, f2, e2, true)
						found = true
					}
					if found {
						break
					}
				}
			}
			if !found {
				return nil, fmt.Errorf("synth: no neighbor for face %d %v edge", f1, e1)
			}
		}
	}
	if err := ds.SetLevels(levels); err != nil {
		return nil, err
	}
	if err := ds.SetTimes(times); err != nil {
		return nil, err
	}
	return ds, nil
}
