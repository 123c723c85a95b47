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
	"os"
	"path/filepath"
	"testing"

	"github.com/ThomasHaine/seaduck"
	"github.com/ThomasHaine/seaduck/synth"
	"github.com/ctessum/cdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, ds *seaduck.MemDataset) *Dataset {
	path := filepath.Join(t.TempDir(), "grid.nc")
	require.NoError(t, Write(context.Background(), path, ds, nil))
	d, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestRoundTripLatLon(t *testing.T) {
	ds, err := synth.LatLon(synth.LatLonConfig{Lon0: -10, Lat0: -5, DLon: 1, DLat: 1, Nx: 6, Ny: 4,
		Levels: []float64{0, 10, 30}, Times: []float64{0, 3600, 7200}})
	require.NoError(t, err)
	require.NoError(t, synth.AddZonal(ds, "U", "V", 0.3))
	require.NoError(t, synth.AddFunc(ds, "T", seaduck.FieldInfo{Kind: seaduck.Center, TimeVarying: true},
		func(lon, lat, depth, t float64) float64 { return lon + lat - depth + t/3600 }))
	require.NoError(t, synth.AddFunc(ds, "eta", seaduck.FieldInfo{Kind: seaduck.Corner},
		func(lon, lat, _, _ float64) float64 { return lon * lat }))

	d := roundTrip(t, ds)
	assert.Equal(t, ds.Faces(), d.Faces())
	assert.Equal(t, ds.Levels(), d.Levels())
	assert.Equal(t, ds.Times(), d.Times())
	assert.Equal(t, ds.Adjacency(), d.Adjacency())
	assert.Equal(t, []string{"T", "U", "V", "eta"}, d.FieldNames())

	s, err := d.FaceShape(0)
	require.NoError(t, err)
	assert.Equal(t, seaduck.Shape{Nx: 6, Ny: 4}, s)

	for _, kind := range []seaduck.PointKind{seaduck.Center, seaduck.Corner, seaduck.UPoint, seaduck.VPoint} {
		wantLon, wantLat, err := ds.Coordinates(0, kind)
		require.NoError(t, err)
		lon, lat, err := d.Coordinates(0, kind)
		require.NoError(t, err)
		assert.InDeltaSlice(t, wantLon.Elements, lon.Elements, 1e-12, kind.String())
		assert.InDeltaSlice(t, wantLat.Elements, lat.Elements, 1e-12, kind.String())
	}

	info, err := d.FieldInfo("U")
	require.NoError(t, err)
	assert.Equal(t, seaduck.Center, info.Kind)
	assert.False(t, info.TimeVarying)
	assert.True(t, info.Units.Matches(synth.Velocity))

	info, err = d.FieldInfo("T")
	require.NoError(t, err)
	assert.True(t, info.TimeVarying)
	assert.Nil(t, info.Units)

	info, err = d.FieldInfo("eta")
	require.NoError(t, err)
	assert.Equal(t, seaduck.Corner, info.Kind)

	ctx := context.Background()
	for ti := range ds.Times() {
		want, err := ds.Field(ctx, "T", 0, ti)
		require.NoError(t, err)
		have, err := d.Field(ctx, "T", 0, ti)
		require.NoError(t, err)
		assert.Equal(t, want.Shape, have.Shape)
		assert.Equal(t, want.Elements, have.Elements, "time index %d", ti)
	}
	want, err := ds.Field(ctx, "eta", 0, 0)
	require.NoError(t, err)
	have, err := d.Field(ctx, "eta", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4, 6}, have.Shape)
	assert.Equal(t, want.Elements, have.Elements)
}

func TestRoundTripCubeSphere(t *testing.T) {
	ds, err := synth.CubeSphere(4, nil, nil)
	require.NoError(t, err)
	require.NoError(t, synth.AddZonal(ds, "U", "V", 1))

	d := roundTrip(t, ds)
	assert.Len(t, d.Faces(), 6)
	assert.Nil(t, d.Levels())
	assert.Nil(t, d.Times())
	assert.Equal(t, ds.Adjacency(), d.Adjacency())

	ctx := context.Background()
	for _, f := range ds.Faces() {
		want, err := ds.Field(ctx, "V", f, 0)
		require.NoError(t, err)
		have, err := d.Field(ctx, "V", f, 0)
		require.NoError(t, err)
		assert.Equal(t, want.Elements, have.Elements, "face %d", f)
	}

	// A grid built from the file resolves points the same way as one
	// built from memory.
	g1, err := seaduck.BuildIndex(ctx, ds)
	require.NoError(t, err)
	g2, err := seaduck.BuildIndex(ctx, d)
	require.NoError(t, err)
	for _, p := range [][2]float64{{0, 0}, {100, 30}, {-170, -60}, {45, 89}} {
		l1, err := g1.Resolve(p[0], p[1], 0)
		require.NoError(t, err)
		l2, err := g2.Resolve(p[0], p[1], 0)
		require.NoError(t, err)
		assert.Equal(t, l1.Cell, l2.Cell)
	}
}

func TestFieldErrors(t *testing.T) {
	ds, err := synth.LatLon(synth.LatLonConfig{DLon: 1, DLat: 1, Nx: 2, Ny: 2, Times: []float64{0, 1}})
	require.NoError(t, err)
	require.NoError(t, synth.AddFunc(ds, "T", seaduck.FieldInfo{Kind: seaduck.Center, TimeVarying: true}, synth.Constant(1)))
	d := roundTrip(t, ds)

	ctx := context.Background()
	_, err = d.Field(ctx, "S", 0, 0)
	assert.Error(t, err)
	_, err = d.Field(ctx, "T", 1, 0)
	assert.Error(t, err)
	_, err = d.Field(ctx, "T", 0, 2)
	assert.Error(t, err)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = d.Field(cctx, "T", 0, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenMissingTopology(t *testing.T) {
	ds, err := synth.LatLon(synth.LatLonConfig{DLon: 1, DLat: 1, Nx: 2, Ny: 2})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "grid.nc")
	require.NoError(t, Write(context.Background(), path, ds, nil))
	require.NoError(t, os.Remove(TopologyPath(path)))
	_, err = Open(path)
	assert.Error(t, err)
}

func TestWriteVariable(t *testing.T) {
	h := cdf.NewHeader([]string{"rec", "x"}, []int{0, 3})
	h.AddVariable("a", []string{"x"}, []float64{0})
	h.AddVariable("s", []string{"x"}, []int32{0})
	h.AddVariable("r", []string{"rec", "x"}, []float64{0})
	h.Define()
	require.Empty(t, h.Check())

	path := filepath.Join(t.TempDir(), "vars.nc")
	w, err := os.Create(path)
	require.NoError(t, err)
	f, err := cdf.Create(w, h)
	require.NoError(t, err)
	// Fixed-size variables end exactly at the last element written.
	require.NoError(t, WriteVariable(f, "a", []float64{1, 2, 3}))
	require.NoError(t, WriteVariable(f, "s", []int32{4, 5, 6}))
	require.NoError(t, WriteVariable(f, "r", []float64{7, 8, 9, 10, 11, 12}))
	assert.Error(t, WriteVariable(f, "missing", []float64{1}))
	assert.Error(t, WriteVariable(f, "a", []string{"x"}))
	require.NoError(t, cdf.UpdateNumRecs(w))
	require.NoError(t, w.Close())

	r, err := os.Open(path)
	require.NoError(t, err)
	defer r.Close()
	f, err = cdf.Open(r)
	require.NoError(t, err)
	a := make([]float64, 3)
	_, err = f.Reader("a", nil, nil).Read(a)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, a)
	s := make([]int32, 3)
	_, err = f.Reader("s", nil, nil).Read(s)
	require.NoError(t, err)
	assert.Equal(t, []int32{4, 5, 6}, s)
	assert.Equal(t, []int{2, 3}, f.Header.Lengths("r"))
	rec := make([]float64, 3)
	_, err = f.Reader("r", []int{1, 0}, []int{1, 2}).Read(rec)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 11, 12}, rec)
}
