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
	"fmt"
	"math"
	"sort"
	"strings"
)

// TimeInterpolation specifies how values are calculated between
// time snapshots.
type TimeInterpolation int

const (
	// LinearTime interpolates linearly between the two bracketing
	// snapshots.
	LinearTime TimeInterpolation = iota

	// NearestTime uses the nearest snapshot. A time exactly halfway
	// between two snapshots uses the earlier one.
	NearestTime
)

func (ti TimeInterpolation) String() string {
	if ti == NearestTime {
		return "nearest"
	}
	return "linear"
}

// ParseTimeInterpolation converts "linear" or "nearest" to a
// TimeInterpolation.
func ParseTimeInterpolation(s string) (TimeInterpolation, error) {
	switch strings.ToLower(s) {
	case "linear":
		return LinearTime, nil
	case "nearest":
		return NearestTime, nil
	default:
		return LinearTime, ConfigurationError{Component: "time interpolation", Reason: fmt.Sprintf("unknown method %q", s)}
	}
}

// timeWeights returns the snapshot indices and weights used to evaluate
// a field at time t. Zero weights are omitted.
func timeWeights(times []float64, t float64, info FieldInfo, method TimeInterpolation) ([]int, []float64, error) {
	if !info.TimeVarying {
		return []int{0}, []float64{1}, nil
	}
	n := len(times)
	if n == 0 {
		return nil, nil, ConfigurationError{Component: "dataset", Reason: "time-varying field in a dataset without time snapshots"}
	}
	if math.IsNaN(t) || t < times[0] || t > times[n-1] {
		return nil, nil, TemporalRangeError{Time: t, Start: times[0], End: times[n-1]}
	}
	i := sort.SearchFloat64s(times, t)
	if times[i] == t {
		return []int{i}, []float64{1}, nil
	}
	f := (t - times[i-1]) / (times[i] - times[i-1])
	if method == NearestTime {
		if f <= 0.5 {
			return []int{i - 1}, []float64{1}, nil
		}
		return []int{i}, []float64{1}, nil
	}
	return []int{i - 1, i}, []float64{1 - f, f}, nil
}
