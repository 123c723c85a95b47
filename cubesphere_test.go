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

package seaduck_test

import (
	"context"
	"math"
	"testing"

	"github.com/ThomasHaine/seaduck"
	"github.com/ThomasHaine/seaduck/synth"
	"gonum.org/v1/gonum/floats/scalar"
)

func cubeSphere(t *testing.T, n int) *seaduck.MemDataset {
	ds, err := synth.CubeSphere(n, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return ds
}

func TestCubeSphereResolveCenters(t *testing.T) {
	ds := cubeSphere(t, 8)
	g, err := seaduck.BuildIndex(context.Background(), ds)
	if err != nil {
		t.Fatal(err)
	}
	for _, face := range ds.Faces() {
		lon, lat, err := ds.Coordinates(face, seaduck.Center)
		if err != nil {
			t.Fatal(err)
		}
		for j := 0; j < 8; j++ {
			for i := 0; i < 8; i++ {
				loc, err := g.Resolve(lon.Get(j, i), lat.Get(j, i), 0)
				if err != nil {
					t.Fatalf("face %d (%d, %d): %v", face, i, j, err)
				}
				if loc.Cell != (seaduck.Cell{Face: face, I: i, J: j}) {
					t.Errorf("face %d (%d, %d) resolved to %+v", face, i, j, loc.Cell)
				}
				if math.Abs(loc.Rx) > 0.02 || math.Abs(loc.Ry) > 0.02 {
					t.Errorf("face %d (%d, %d) local coordinates (%g, %g)", face, i, j, loc.Rx, loc.Ry)
				}
			}
		}
	}
}

func TestCubeSphereEverywhere(t *testing.T) {
	ds := cubeSphere(t, 6)
	if err := synth.AddFunc(ds, "one", seaduck.FieldInfo{Kind: seaduck.Center}, synth.Constant(1)); err != nil {
		t.Fatal(err)
	}
	g, err := seaduck.BuildIndex(context.Background(), ds)
	if err != nil {
		t.Fatal(err)
	}
	in, err := seaduck.NewInterpolator(g)
	if err != nil {
		t.Fatal(err)
	}
	var pts []*seaduck.Position
	for lat := -90.; lat <= 90; lat += 7.5 {
		for lon := -180.; lon < 180; lon += 7.5 {
			pts = append(pts, seaduck.NewPosition(lon, lat, 0, 0))
		}
	}
	r, err := in.Interpolate(context.Background(), pts, "one", seaduck.DefaultKernelFor(g))
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range r.Values {
		if r.Errs[i] != nil {
			t.Errorf("(%g, %g): %v", pts[i].Lon(), pts[i].Lat(), r.Errs[i])
			continue
		}
		if !scalar.EqualWithinAbsOrRel(v, 1, 1e-12, 1e-12) {
			t.Errorf("(%g, %g) = %g", pts[i].Lon(), pts[i].Lat(), v)
		}
	}
}

func TestSeamContinuity(t *testing.T) {
	ds := cubeSphere(t, 8)
	f := func(lon, lat, _, _ float64) float64 {
		return math.Sin(lat*math.Pi/180) + 0.5*math.Cos(lat*math.Pi/180)*math.Cos(lon*math.Pi/180)
	}
	if err := synth.AddFunc(ds, "f", seaduck.FieldInfo{Kind: seaduck.Center}, f); err != nil {
		t.Fatal(err)
	}
	g, err := seaduck.BuildIndex(context.Background(), ds)
	if err != nil {
		t.Fatal(err)
	}
	in, err := seaduck.NewInterpolator(g)
	if err != nil {
		t.Fatal(err)
	}
	const eps = 1e-7
	pairs := [][2]*seaduck.Position{
		// Equatorial seam between faces 0 and 1.
		{seaduck.NewPosition(45-eps, 10, 0, 0), seaduck.NewPosition(45+eps, 10, 0, 0)},
		// Face 0 and the north polar face.
		{seaduck.NewPosition(5, atanCos(5)-eps, 0, 0), seaduck.NewPosition(5, atanCos(5)+eps, 0, 0)},
		// Face 1 and the north polar face, which are joined with a rotation.
		{seaduck.NewPosition(100, atanCos(10)-eps, 0, 0), seaduck.NewPosition(100, atanCos(10)+eps, 0, 0)},
		// Face 2 and the south polar face.
		{seaduck.NewPosition(170, -atanCos(10)+eps, 0, 0), seaduck.NewPosition(170, -atanCos(10)-eps, 0, 0)},
	}
	for n, p := range pairs {
		la, err := p[0].Location(g)
		if err != nil {
			t.Fatal(err)
		}
		lb, err := p[1].Location(g)
		if err != nil {
			t.Fatal(err)
		}
		if la.Face == lb.Face {
			t.Fatalf("pair %d: both points on face %d", n, la.Face)
		}
		r, err := in.Interpolate(context.Background(), p[:], "f", seaduck.DefaultKernel(false))
		if err != nil {
			t.Fatal(err)
		}
		if r.Failed() > 0 {
			t.Fatalf("pair %d: %v", n, r.Errs)
		}
		if d := math.Abs(r.Values[0] - r.Values[1]); d > 5e-3 {
			t.Errorf("pair %d: values %g and %g differ by %g across the seam", n, r.Values[0], r.Values[1], d)
		}
		want := f(p[0].Lon(), p[0].Lat(), 0, 0)
		if d := math.Abs(r.Values[0] - want); d > 0.05 {
			t.Errorf("pair %d: value %g far from analytic %g", n, r.Values[0], want)
		}
	}
}

// atanCos returns the latitude of the cube edge at longitude offset
// dlon from the center of an equatorial face.
func atanCos(dlon float64) float64 {
	return math.Atan(math.Cos(dlon*math.Pi/180)) * 180 / math.Pi
}

func TestCubeSphereZonalTrack(t *testing.T) {
	ds := cubeSphere(t, 24)
	if err := synth.AddZonal(ds, "u", "v", 10); err != nil {
		t.Fatal(err)
	}
	g, err := seaduck.BuildIndex(context.Background(), ds)
	if err != nil {
		t.Fatal(err)
	}
	in, err := seaduck.NewInterpolator(g)
	if err != nil {
		t.Fatal(err)
	}
	it, err := seaduck.NewIntegrator(in, seaduck.WithScheme(seaduck.RK2), seaduck.WithMaxStep(3600))
	if err != nil {
		t.Fatal(err)
	}
	const T = 10 * 86400.
	for _, lat := range []float64{5, 40} {
		p := seaduck.NewParticle(10, lat, 0, 0, seaduck.Velocity{U: "u", V: "v"})
		start, err := p.Position.Location(g)
		if err != nil {
			t.Fatal(err)
		}
		trajs, err := it.ToListOfTime(context.Background(), []*seaduck.Particle{p}, []float64{0, T / 2, T})
		if err != nil {
			t.Fatal(err)
		}
		if trajs[0].Status != seaduck.Reached {
			t.Fatalf("lat %g: status %v: %v", lat, trajs[0].Status, trajs[0].Err)
		}
		end := trajs[0].Snapshots[2]
		want := T * 10 / (seaduck.EarthRadius * math.Cos(lat*math.Pi/180)) * 180 / math.Pi
		if got := end.Lon - 10; !scalar.EqualWithinRel(got, want, 0.05) {
			t.Errorf("lat %g: moved %g degrees east; want %g", lat, got, want)
		}
		if math.Abs(end.Lat-lat) > 1 {
			t.Errorf("lat %g: ended at latitude %g", lat, end.Lat)
		}
		loc, err := p.Position.Location(g)
		if err != nil {
			t.Fatal(err)
		}
		if loc.Face == start.Face {
			t.Errorf("lat %g: particle did not leave face %d", lat, start.Face)
		}
	}
}

func TestCubeSphereVectorAtSeams(t *testing.T) {
	const n, speed = 24, 1.0
	ds := cubeSphere(t, n)
	if err := synth.AddZonal(ds, "u", "v", speed); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	g, err := seaduck.BuildIndex(ctx, ds)
	if err != nil {
		t.Fatal(err)
	}
	in, err := seaduck.NewInterpolator(g)
	if err != nil {
		t.Fatal(err)
	}
	mid := n / 2
	// Cells in the middle of each edge, with local coordinates pointing
	// toward the edge so that the stencil reaches across the seam.
	edges := []seaduck.CellLocation{
		{Cell: seaduck.Cell{I: 0, J: mid}, Rx: -0.45},
		{Cell: seaduck.Cell{I: n - 1, J: mid}, Rx: 0.45},
		{Cell: seaduck.Cell{I: mid, J: 0}, Ry: -0.45},
		{Cell: seaduck.Cell{I: mid, J: n - 1}, Ry: 0.45},
	}
	for _, face := range ds.Faces() {
		u, err := ds.Field(ctx, "u", face, 0)
		if err != nil {
			t.Fatal(err)
		}
		v, err := ds.Field(ctx, "v", face, 0)
		if err != nil {
			t.Fatal(err)
		}
		for _, e := range edges {
			e.Face = face
			lon, lat, _ := g.Point(e)
			r, err := in.InterpolateVector(ctx, []*seaduck.Position{seaduck.NewPosition(lon, lat, 0, 0)}, "u", "v", seaduck.DefaultKernel(false))
			if err != nil {
				t.Fatal(err)
			}
			if r.Errs[0] != nil {
				t.Errorf("face %d cell (%d, %d): %v", face, e.I, e.J, r.Errs[0])
				continue
			}
			wantU, wantV := u.Get(e.J, e.I), v.Get(e.J, e.I)
			if math.Hypot(r.U[0]-wantU, r.V[0]-wantV) > 0.15*speed {
				t.Errorf("face %d cell (%d, %d): got (%g, %g); want about (%g, %g)",
					face, e.I, e.J, r.U[0], r.V[0], wantU, wantV)
			}
		}
	}
}
