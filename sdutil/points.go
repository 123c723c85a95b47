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
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// points holds the contents of a points file. Depths and Times are nil
// if the file has no depth or time column.
type points struct {
	Lons, Lats, Depths, Times []float64
}

// readPoints reads a CSV file with a header row naming the columns lon,
// lat, and optionally depth and time, in any order and case.
func readPoints(path string) (*points, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("seaduck: opening points file: %v", err)
	}
	defer f.Close()
	return parsePoints(f)
}

func parsePoints(r io.Reader) (*points, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("seaduck: reading points header: %v", err)
	}
	col := map[string]int{"lon": -1, "lat": -1, "depth": -1, "time": -1}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		if _, ok := col[h]; ok {
			col[h] = i
		}
	}
	if col["lon"] < 0 || col["lat"] < 0 {
		return nil, fmt.Errorf("seaduck: points file must have lon and lat columns, has %v", header)
	}
	p := new(points)
	var depths, times []float64
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("seaduck: reading points line %d: %v", line, err)
		}
		get := func(name string) (float64, error) {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[col[name]]), 64)
			if err != nil {
				return 0, fmt.Errorf("seaduck: points line %d column %s: %v", line, name, err)
			}
			return v, nil
		}
		lon, err := get("lon")
		if err != nil {
			return nil, err
		}
		lat, err := get("lat")
		if err != nil {
			return nil, err
		}
		p.Lons, p.Lats = append(p.Lons, lon), append(p.Lats, lat)
		if col["depth"] >= 0 {
			d, err := get("depth")
			if err != nil {
				return nil, err
			}
			depths = append(depths, d)
		}
		if col["time"] >= 0 {
			t, err := get("time")
			if err != nil {
				return nil, err
			}
			times = append(times, t)
		}
	}
	if col["depth"] >= 0 {
		p.Depths = depths
	}
	if col["time"] >= 0 {
		p.Times = times
	}
	return p, nil
}

// formatFloat formats v for CSV output. NaN values are left empty.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
