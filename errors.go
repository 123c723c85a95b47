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

import "fmt"

// GridTopologyError is returned when a face adjacency table is malformed.
// It is always fatal and is only returned while building a Grid.
type GridTopologyError struct {
	Face   int
	Edge   Edge
	Reason string
}

func (e GridTopologyError) Error() string {
	return fmt.Sprintf("seaduck: invalid topology at face %d %s edge: %s", e.Face, e.Edge, e.Reason)
}

// GridResolutionError is returned when a point cannot be matched to a
// wet grid cell within the adjacency hop bound.
type GridResolutionError struct {
	Lon, Lat, Depth float64
	Reason          string
}

func (e GridResolutionError) Error() string {
	return fmt.Sprintf("seaduck: cannot resolve point (lon=%g, lat=%g, depth=%g): %s",
		e.Lon, e.Lat, e.Depth, e.Reason)
}

// TemporalRangeError is returned when a query time is outside of the
// available time snapshots.
type TemporalRangeError struct {
	Time       float64
	Start, End float64
}

func (e TemporalRangeError) Error() string {
	return fmt.Sprintf("seaduck: time %g is outside of the available range [%g, %g]",
		e.Time, e.Start, e.End)
}

// InvalidFieldError is returned when a NaN or missing field value is
// encountered during interpolation or integration.
type InvalidFieldError struct {
	Field  string
	Reason string
}

func (e InvalidFieldError) Error() string {
	return fmt.Sprintf("seaduck: invalid value for field %q: %s", e.Field, e.Reason)
}

// ConfigurationError is returned when a kernel or other component is
// constructed with an inconsistent configuration.
type ConfigurationError struct {
	Component string
	Reason    string
}

func (e ConfigurationError) Error() string {
	return fmt.Sprintf("seaduck: invalid %s configuration: %s", e.Component, e.Reason)
}
