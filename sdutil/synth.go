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

package sdutil

import (
	"context"
	"math"

	"github.com/ThomasHaine/seaduck"
	"github.com/ThomasHaine/seaduck/cdfdata"
	"github.com/ThomasHaine/seaduck/synth"
	"github.com/sirupsen/logrus"
)

// tracer is the analytic tracer field written by Synth. It decreases
// toward the poles and with depth and increases by one per day.
func tracer(_, lat, depth, t float64) float64 {
	return 20*math.Cos(lat*math.Pi/180) - depth/100 + t/86400
}

// Synth creates the synthetic dataset described by cfg and saves it to
// outputFile. The dataset holds a uniform eastward flow in fields U and
// V, a zero vertical velocity W if the grid has levels, the tracer field
// T, and a land mask named mask if cfg.LandBox is set.
func Synth(ctx context.Context, outputFile string, cfg *SynthConfig) error {
	var ds *seaduck.MemDataset
	var err error
	if cfg.Grid == "cubesphere" {
		ds, err = synth.CubeSphere(cfg.N, cfg.LatLon.Levels, cfg.LatLon.Times)
	} else {
		ds, err = synth.LatLon(cfg.LatLon)
	}
	if err != nil {
		return err
	}
	if err := synth.AddZonal(ds, "U", "V", cfg.Speed); err != nil {
		return err
	}
	if len(ds.Levels()) > 1 {
		info := seaduck.FieldInfo{Kind: seaduck.WPoint, Units: synth.Velocity}
		if err := synth.AddFunc(ds, "W", info, synth.Constant(0)); err != nil {
			return err
		}
	}
	info := seaduck.FieldInfo{Kind: seaduck.Center, TimeVarying: len(ds.Times()) > 0}
	if err := synth.AddFunc(ds, "T", info, tracer); err != nil {
		return err
	}
	if b := cfg.LandBox; len(b) == 4 {
		if err := synth.AddLandBox(ds, "mask", b[0], b[1], b[2], b[3]); err != nil {
			return err
		}
	}
	logrus.WithFields(logrus.Fields{
		"grid":   cfg.Grid,
		"faces":  len(ds.Faces()),
		"fields": ds.FieldNames(),
		"file":   outputFile,
	}).Info("seaduck: writing synthetic dataset")
	return cdfdata.Write(ctx, outputFile, ds, nil)
}
