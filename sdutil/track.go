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
	"fmt"
	"os"
	"time"

	"github.com/ThomasHaine/seaduck"
	"github.com/ThomasHaine/seaduck/cdfdata"
	"github.com/ctessum/cdf"
	"github.com/sirupsen/logrus"
)

// Track advects particles released at the points in pointsFile through
// the dataset in dataFile and saves their trajectories to outputFile.
func Track(ctx context.Context, dataFile, pointsFile, outputFile string, cfg *TrackConfig) error {
	startTime := time.Now()
	d, err := newDerived(cfg.DerivedVariables)
	if err != nil {
		return err
	}
	diags := removeDuplicates(append(append([]string(nil), cfg.Diagnostics...), d.Inputs()...))
	p, err := readPoints(pointsFile)
	if err != nil {
		return err
	}
	ds, err := cdfdata.Open(dataFile)
	if err != nil {
		return err
	}
	defer ds.Close()

	m, err := seaduck.NewMetrics(nil)
	if err != nil {
		return err
	}
	log := logrus.StandardLogger()
	opts := append(cfg.gridOptions(), seaduck.WithLogger(log), seaduck.WithMetrics(m))
	g, err := seaduck.BuildIndex(ctx, ds, opts...)
	if err != nil {
		return err
	}
	in, err := seaduck.NewInterpolator(g,
		seaduck.WithTimeInterpolation(cfg.TimeInterpolation),
		seaduck.WithWorkers(cfg.Workers))
	if err != nil {
		return err
	}
	it, err := seaduck.NewIntegrator(in,
		seaduck.WithScheme(cfg.Scheme),
		seaduck.WithMaxStep(cfg.MaxStep),
		seaduck.WithDiagnostics(diags...))
	if err != nil {
		return err
	}

	particles := make([]*seaduck.Particle, len(p.Lons))
	for i := range particles {
		depth, t := 0.0, cfg.Times[0]
		if p.Depths != nil {
			depth = p.Depths[i]
		}
		if p.Times != nil {
			t = p.Times[i]
		}
		particles[i] = seaduck.NewParticle(p.Lons[i], p.Lats[i], depth, t, cfg.Velocity)
	}
	log.WithFields(logrus.Fields{
		"particles":   len(particles),
		"checkpoints": len(cfg.Times),
		"scheme":      cfg.Scheme,
	}).Info("seaduck: tracking particles")

	trajs, err := it.ToListOfTime(ctx, particles, cfg.Times)
	if err != nil {
		return err
	}

	counts := make(map[seaduck.Status]int)
	for _, tr := range trajs {
		counts[tr.Status]++
		if tr.Err != nil {
			log.WithError(tr.Err).WithField("status", tr.Status).Debug("seaduck: particle stopped")
		}
	}
	log.WithFields(logrus.Fields{
		"reached":       counts[seaduck.Reached],
		"exited_domain": counts[seaduck.ExitedDomain],
		"invalid_field": counts[seaduck.InvalidField],
		"elapsed":       time.Since(startTime).String(),
	}).Info("seaduck: tracking finished")

	vars := append(append([]string(nil), diags...), d.Names()...)
	return writeTrajectories(outputFile, trajs, cfg, vars, d)
}

// writeTrajectories saves trajectories to a NetCDF file with dimensions
// particle and checkpoint.
func writeTrajectories(path string, trajs []seaduck.Trajectory, cfg *TrackConfig, vars []string, d *derived) error {
	np, nt := len(trajs), len(cfg.Times)
	if np == 0 {
		return fmt.Errorf("seaduck: there are no particles to write")
	}
	for _, v := range vars {
		switch v {
		case "checkpoint", "time", "lon", "lat", "depth", "status":
			return fmt.Errorf("seaduck: output variable name %q is reserved", v)
		}
	}
	dims := []string{"particle", "checkpoint"}
	h := cdf.NewHeader(dims, []int{np, nt})
	h.AddAttribute("", "comment", "seaduck particle trajectories")
	h.AddAttribute("", "scheme", cfg.Scheme.String())
	h.AddAttribute("", "seaduck_version", seaduck.Version)
	h.AddVariable("checkpoint", []string{"checkpoint"}, []float64{0})
	h.AddAttribute("checkpoint", "units", "s")
	for _, v := range []struct{ name, units string }{
		{"time", "s"},
		{"lon", "degrees_east"},
		{"lat", "degrees_north"},
		{"depth", "m"},
	} {
		h.AddVariable(v.name, dims, []float64{0})
		h.AddAttribute(v.name, "units", v.units)
	}
	h.AddVariable("status", dims, []int32{0})
	h.AddAttribute("status", "flag_values", []int32{
		int32(seaduck.Alive), int32(seaduck.Reached), int32(seaduck.ExitedDomain), int32(seaduck.InvalidField)})
	h.AddAttribute("status", "flag_meanings", fmt.Sprintf("%v %v %v %v",
		seaduck.Alive, seaduck.Reached, seaduck.ExitedDomain, seaduck.InvalidField))
	for _, v := range vars {
		h.AddVariable(v, dims, []float64{0})
	}
	h.Define()
	if errs := h.Check(); len(errs) > 0 {
		return fmt.Errorf("seaduck: invalid trajectory file header: %v", errs[0])
	}

	n := np * nt
	data := map[string][]float64{
		"time":  make([]float64, n),
		"lon":   make([]float64, n),
		"lat":   make([]float64, n),
		"depth": make([]float64, n),
	}
	for _, v := range vars {
		data[v] = make([]float64, n)
	}
	status := make([]int32, n)
	for i, tr := range trajs {
		for c, s := range tr.Snapshots {
			k := i*nt + c
			data["time"][k] = s.Time
			data["lon"][k] = s.Lon
			data["lat"][k] = s.Lat
			data["depth"][k] = s.Depth
			status[k] = int32(s.Status)
			vals := s.Values()
			if err := d.eval(vals); err != nil {
				return err
			}
			for _, v := range vars {
				data[v][k] = vals[v]
			}
		}
	}

	w, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("seaduck: %v", err)
	}
	f, err := cdf.Create(w, h)
	if err != nil {
		w.Close()
		return fmt.Errorf("seaduck: creating trajectory file: %v", err)
	}
	if err := cdfdata.WriteVariable(f, "checkpoint", cfg.Times); err != nil {
		w.Close()
		return fmt.Errorf("seaduck: writing checkpoint times: %v", err)
	}
	if err := cdfdata.WriteVariable(f, "status", status); err != nil {
		w.Close()
		return fmt.Errorf("seaduck: writing status: %v", err)
	}
	for name, vals := range data {
		if err := cdfdata.WriteVariable(f, name, vals); err != nil {
			w.Close()
			return fmt.Errorf("seaduck: writing variable %s to netcdf file: %v", name, err)
		}
	}
	if err := cdf.UpdateNumRecs(w); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
