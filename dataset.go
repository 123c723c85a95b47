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
	"context"
	"fmt"

	"github.com/ctessum/sparse"
	"github.com/ctessum/unit"
)

// PointKind specifies where on a grid cell a variable is located.
type PointKind int

const (
	// Center variables are located at cell centers.
	Center PointKind = iota
	// UPoint variables are located at the center of the west face of a cell.
	UPoint
	// VPoint variables are located at the center of the south face of a cell.
	VPoint
	// Corner variables are located at the south-west corner of a cell.
	Corner
	// WPoint variables are located at the center of the top face of a cell.
	WPoint
)

func (k PointKind) String() string {
	switch k {
	case Center:
		return "center"
	case UPoint:
		return "u"
	case VPoint:
		return "v"
	case Corner:
		return "corner"
	case WPoint:
		return "w"
	default:
		return fmt.Sprintf("PointKind(%d)", int(k))
	}
}

// ParsePointKind converts a name returned by PointKind.String back into
// a PointKind.
func ParsePointKind(s string) (PointKind, error) {
	for _, k := range []PointKind{Center, UPoint, VPoint, Corner, WPoint} {
		if k.String() == s {
			return k, nil
		}
	}
	return Center, fmt.Errorf("seaduck: unknown point kind %q", s)
}

// Shape holds the number of horizontal cells in a face.
type Shape struct {
	Nx, Ny int
}

// FieldInfo holds metadata about a named field.
type FieldInfo struct {
	Kind PointKind

	// TimeVarying specifies whether the field has one snapshot per dataset
	// time. Fields that are not time varying have a single snapshot
	// at time index 0.
	TimeVarying bool

	// Units holds the physical dimensions of the field, or nil if they
	// are unknown.
	Units unit.Dimensions
}

// Dataset is a structured-grid data provider.
//
// Face ids must be the contiguous integers 0 through len(Faces())-1.
// Field arrays have shape [Nz, Ny, Nx] for three-dimensional fields and
// [Ny, Nx] for two-dimensional fields regardless of their PointKind.
// Center coordinates have shape [Ny, Nx] and Corner coordinates have
// shape [Ny+1, Nx+1]. Coordinates are in degrees.
type Dataset interface {
	// Faces returns the ids of the faces in the dataset.
	Faces() []int

	// FaceShape returns the dimensions of the given face.
	FaceShape(face int) (Shape, error)

	// Coordinates returns the longitudes and latitudes of the
	// given kind of point on the given face.
	Coordinates(face int, kind PointKind) (lon, lat *sparse.DenseArray, err error)

	// Levels returns the depths of the vertical layer interfaces in meters,
	// positive downward and increasing. It returns nil for
	// two-dimensional datasets.
	Levels() []float64

	// Field returns the values of the named field on the given
	// face at the given time index.
	Field(ctx context.Context, name string, face, timeIndex int) (*sparse.DenseArray, error)

	// FieldInfo returns metadata about the named field.
	FieldInfo(name string) (FieldInfo, error)

	// Times returns the times of the available snapshots in seconds,
	// in ascending order.
	Times() []float64

	// Adjacency returns the face connection table.
	Adjacency() Adjacency
}
