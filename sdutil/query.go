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
	"encoding/csv"
	"fmt"
	"io"
	"math"

	"github.com/ThomasHaine/seaduck"
	"github.com/ThomasHaine/seaduck/cdfdata"
	"github.com/sirupsen/logrus"
)

// Query interpolates variables at the points in pointsFile using the
// dataset in dataFile, calculates the derived variables, and writes the
// results to w as CSV with one row per point.
func Query(ctx context.Context, w io.Writer, dataFile, pointsFile string, variables []string, derivedVars map[string]string) error {
	d, err := newDerived(derivedVars)
	if err != nil {
		return err
	}
	names := removeDuplicates(append(append([]string(nil), variables...), d.Inputs()...))
	if len(names) == 0 {
		return fmt.Errorf("seaduck: there are no variables specified for output. Please fill in " +
			"the Variables or DerivedVariables configuration and try again")
	}
	p, err := readPoints(pointsFile)
	if err != nil {
		return err
	}
	ds, err := cdfdata.Open(dataFile)
	if err != nil {
		return err
	}
	defer ds.Close()

	res, err := seaduck.Query(ctx, ds, names, p.Lons, p.Lats, p.Depths, p.Times)
	if err != nil {
		return err
	}
	for _, n := range names {
		if f := res[n].Failed(); f > 0 {
			logrus.WithFields(logrus.Fields{
				"variable": n,
				"failed":   f,
				"points":   len(p.Lons),
			}).Warn("seaduck: some points could not be interpolated")
		}
	}

	cw := csv.NewWriter(w)
	header := append([]string{"lon", "lat", "depth", "time"}, variables...)
	header = append(header, d.Names()...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i := range p.Lons {
		vals := make(map[string]float64, len(names))
		for _, n := range names {
			vals[n] = res[n].Values[i]
		}
		if err := d.eval(vals); err != nil {
			return err
		}
		depth, t := 0.0, math.NaN()
		if p.Depths != nil {
			depth = p.Depths[i]
		}
		if p.Times != nil {
			t = p.Times[i]
		}
		row := []string{formatFloat(p.Lons[i]), formatFloat(p.Lats[i]), formatFloat(depth), formatFloat(t)}
		for _, n := range variables {
			row = append(row, formatFloat(vals[n]))
		}
		for _, n := range d.Names() {
			row = append(row, formatFloat(vals[n]))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
