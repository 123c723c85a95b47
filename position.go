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

// Position is a point in space and time with a cached grid cell
// location. A Position is owned by one goroutine at a time.
type Position struct {
	lon, lat, depth, t float64

	grid   *Grid
	loc    CellLocation
	locErr error
}

// NewPosition returns a new Position. Longitude and latitude are in
// degrees, depth is in meters (positive downward), and time is in seconds.
func NewPosition(lon, lat, depth, t float64) *Position {
	return &Position{lon: lon, lat: lat, depth: depth, t: t}
}

// Lon returns the longitude.
func (p *Position) Lon() float64 { return p.lon }

// Lat returns the latitude.
func (p *Position) Lat() float64 { return p.lat }

// Depth returns the depth.
func (p *Position) Depth() float64 { return p.depth }

// Time returns the time.
func (p *Position) Time() float64 { return p.t }

// Set changes the spatial coordinates and invalidates the cached
// location.
func (p *Position) Set(lon, lat, depth float64) {
	p.lon, p.lat, p.depth = lon, lat, depth
	p.grid = nil
}

// SetTime changes the time and invalidates the cached location.
func (p *Position) SetTime(t float64) {
	p.t = t
	p.grid = nil
}

// Location returns the location of p on g, resolving it if it has not
// already been resolved on g since the last change to p.
func (p *Position) Location(g *Grid) (CellLocation, error) {
	if p.grid != g {
		p.loc, p.locErr = g.Resolve(p.lon, p.lat, p.depth)
		p.grid = g
	}
	return p.loc, p.locErr
}

// moveTo sets the coordinates and the already-known location on g.
func (p *Position) moveTo(g *Grid, loc CellLocation, t float64) {
	p.lon, p.lat, p.depth = g.Point(loc)
	p.t = t
	p.grid, p.loc, p.locErr = g, loc, nil
}
