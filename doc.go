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

// Package seaduck interpolates gridded ocean model output at arbitrary
// points and advects particles through it.
//
// Grids may be made of several structured faces joined along their
// edges, as in cube-sphere and lat-lon-cap ocean models. A Grid indexes
// the faces of a Dataset so that points can be located, an Interpolator
// evaluates fields at located points using a Kernel, and an Integrator
// moves Particles through a velocity field and records their state at
// requested times.
package seaduck

// Version gives the version number.
const Version = "0.1.0"
