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
	"math"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// DefaultMaxAdjacencyHops is the default bound on the number of cells
// visited while walking toward a query point.
const DefaultMaxAdjacencyHops = 8

// edgeTolerance is how far outside of [-0.5, 0.5] local coordinates may
// fall and still be considered to be within a cell.
const edgeTolerance = 1e-9

// Cell identifies a grid cell.
type Cell struct {
	Face, I, J, K int
}

// CellLocation is a resolved grid cell plus the local coordinates of
// a point within it. Local coordinates are in [-0.5, 0.5] with the cell
// center at zero; Rz increases downward.
type CellLocation struct {
	Cell
	Rx, Ry, Rz float64
}

// Grid is an index over the cells of a Dataset. It is immutable after
// construction and safe for concurrent use.
type Grid struct {
	ds      Dataset
	shapes  []Shape
	levels  []float64
	times   []float64
	adj     Adjacency
	centers [][]vec3 // [face][j*nx+i]
	corners [][]vec3 // [face][j*(nx+1)+i]
	dx, dy  []*sparse.DenseArray
	tree    *kdtree.Tree

	fields   *fieldStore
	maskName string
	mask     []*sparse.DenseArray

	maxHops    int
	candidates int

	// Log receives messages about grid construction and data loading.
	Log     logrus.FieldLogger
	metrics *Metrics

	defaultLoading LoadingPolicy
	loading        map[string]LoadingPolicy
	cacheSize      int
	fetchRetries   uint64
}

// Option configures a Grid.
type Option func(g *Grid) error

// WithMaxAdjacencyHops sets the maximum number of cells visited while
// walking toward a query point that is not contained by any of the
// nearest cells.
func WithMaxAdjacencyHops(n int) Option {
	return func(g *Grid) error {
		if n < 0 {
			return ConfigurationError{Component: "grid", Reason: fmt.Sprintf("max adjacency hops must not be negative, got %d", n)}
		}
		g.maxHops = n
		return nil
	}
}

// WithLoading sets the loading policy for the named field. Fields
// loaded eagerly are read when the grid is built.
func WithLoading(field string, p LoadingPolicy) Option {
	return func(g *Grid) error {
		g.loading[field] = p
		return nil
	}
}

// WithDefaultLoading sets the loading policy for fields that are not
// configured with WithLoading.
func WithDefaultLoading(p LoadingPolicy) Option {
	return func(g *Grid) error {
		g.defaultLoading = p
		return nil
	}
}

// WithCacheSize sets the number of (field, face, time) arrays kept in
// memory for lazily loaded fields.
func WithCacheSize(n int) Option {
	return func(g *Grid) error {
		if n < 1 {
			return ConfigurationError{Component: "grid", Reason: fmt.Sprintf("cache size must be positive, got %d", n)}
		}
		g.cacheSize = n
		return nil
	}
}

// WithFetchRetries sets the number of times a failed lazy field fetch
// is retried.
func WithFetchRetries(n uint64) Option {
	return func(g *Grid) error {
		g.fetchRetries = n
		return nil
	}
}

// WithMask specifies a static Center field where zero or NaN values mark
// land cells. The mask is always loaded eagerly.
func WithMask(field string) Option {
	return func(g *Grid) error {
		g.maskName = field
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(g *Grid) error {
		g.Log = l
		return nil
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(g *Grid) error {
		g.metrics = m
		return nil
	}
}

// BuildIndex creates a Grid from the coordinates and topology in ds.
func BuildIndex(ctx context.Context, ds Dataset, opts ...Option) (*Grid, error) {
	ctx, span := tracer.Start(ctx, "seaduck.BuildIndex")
	defer span.End()

	g := &Grid{
		ds:             ds,
		maxHops:        DefaultMaxAdjacencyHops,
		candidates:     4,
		Log:            logrus.StandardLogger(),
		defaultLoading: Lazy,
		loading:        make(map[string]LoadingPolicy),
		cacheSize:      64,
		fetchRetries:   3,
	}
	for _, o := range opts {
		if err := o(g); err != nil {
			return nil, err
		}
	}

	faces := ds.Faces()
	if len(faces) == 0 {
		return nil, GridTopologyError{Face: -1, Reason: "dataset has no faces"}
	}
	for i, f := range faces {
		if f != i {
			return nil, GridTopologyError{Face: f, Reason: "face ids must be contiguous starting at 0"}
		}
	}
	g.shapes = make([]Shape, len(faces))
	for f := range faces {
		s, err := ds.FaceShape(f)
		if err != nil {
			return nil, fmt.Errorf("seaduck: building index: %v", err)
		}
		if s.Nx < 1 || s.Ny < 1 {
			return nil, GridTopologyError{Face: f, Reason: fmt.Sprintf("invalid face shape %+v", s)}
		}
		g.shapes[f] = s
	}
	g.adj = ds.Adjacency()
	if err := validateAdjacency(g.adj, g.shapes); err != nil {
		return nil, err
	}

	g.levels = ds.Levels()
	if len(g.levels) == 1 {
		return nil, ConfigurationError{Component: "grid", Reason: "a three-dimensional grid needs at least two level interfaces"}
	}
	for k := 1; k < len(g.levels); k++ {
		if !(g.levels[k] > g.levels[k-1]) {
			return nil, ConfigurationError{Component: "grid", Reason: "level interfaces must be strictly increasing"}
		}
	}
	g.times = ds.Times()

	if err := g.loadCoordinates(); err != nil {
		return nil, err
	}
	g.buildTree()
	g.calcExtents()

	g.fields = newFieldStore(g)
	if g.maskName != "" {
		if err := g.loadMask(ctx); err != nil {
			return nil, err
		}
	}
	for name, p := range g.loading {
		if p != Eager {
			continue
		}
		if err := g.fields.materialize(ctx, name); err != nil {
			return nil, err
		}
	}

	g.Log.WithFields(logrus.Fields{
		"faces":  len(faces),
		"cells":  g.NumCells(),
		"levels": g.Nz(),
		"times":  len(g.times),
	}).Info("seaduck: built grid index")
	return g, nil
}

func (g *Grid) loadCoordinates() error {
	g.centers = make([][]vec3, len(g.shapes))
	g.corners = make([][]vec3, len(g.shapes))
	for f, s := range g.shapes {
		lon, lat, err := g.ds.Coordinates(f, Center)
		if err != nil {
			return fmt.Errorf("seaduck: reading face %d center coordinates: %v", f, err)
		}
		if !shapeIs(lon, s.Ny, s.Nx) || !shapeIs(lat, s.Ny, s.Nx) {
			return GridTopologyError{Face: f, Reason: "center coordinates do not match face shape"}
		}
		g.centers[f] = make([]vec3, s.Nx*s.Ny)
		for n := range g.centers[f] {
			g.centers[f][n] = toVec(lon.Elements[n], lat.Elements[n])
		}
		lonG, latG, err := g.ds.Coordinates(f, Corner)
		if err != nil {
			return fmt.Errorf("seaduck: reading face %d corner coordinates: %v", f, err)
		}
		if !shapeIs(lonG, s.Ny+1, s.Nx+1) || !shapeIs(latG, s.Ny+1, s.Nx+1) {
			return GridTopologyError{Face: f, Reason: "corner coordinates do not match face shape"}
		}
		g.corners[f] = make([]vec3, (s.Nx+1)*(s.Ny+1))
		for n := range g.corners[f] {
			g.corners[f][n] = toVec(lonG.Elements[n], latG.Elements[n])
		}
	}
	return nil
}

func shapeIs(a *sparse.DenseArray, ny, nx int) bool {
	return a != nil && len(a.Shape) == 2 && a.Shape[0] == ny && a.Shape[1] == nx
}

// calcExtents calculates the physical width and height of each cell as
// the great-circle distances between the midpoints of opposite edges.
func (g *Grid) calcExtents() {
	g.dx = make([]*sparse.DenseArray, len(g.shapes))
	g.dy = make([]*sparse.DenseArray, len(g.shapes))
	for f, s := range g.shapes {
		g.dx[f] = sparse.ZerosDense(s.Ny, s.Nx)
		g.dy[f] = sparse.ZerosDense(s.Ny, s.Nx)
		for j := 0; j < s.Ny; j++ {
			for i := 0; i < s.Nx; i++ {
				c := g.cornerVecs(Cell{Face: f, I: i, J: j})
				w := c[0].add(c[3]).unit()
				e := c[1].add(c[2]).unit()
				so := c[0].add(c[1]).unit()
				n := c[3].add(c[2]).unit()
				g.dx[f].Set(arc(w, e)*EarthRadius, j, i)
				g.dy[f].Set(arc(so, n)*EarthRadius, j, i)
			}
		}
	}
}

// NumCells returns the number of horizontal cells in the grid.
func (g *Grid) NumCells() int {
	n := 0
	for _, s := range g.shapes {
		n += s.Nx * s.Ny
	}
	return n
}

// Nz returns the number of vertical layers, which is zero for
// two-dimensional grids.
func (g *Grid) Nz() int {
	if len(g.levels) == 0 {
		return 0
	}
	return len(g.levels) - 1
}

// Shape returns the shape of the given face.
func (g *Grid) Shape(face int) Shape { return g.shapes[face] }

// Times returns the dataset snapshot times.
func (g *Grid) Times() []float64 { return g.times }

// Dataset returns the dataset the grid was built from.
func (g *Grid) Dataset() Dataset { return g.ds }

func (g *Grid) center(c Cell) vec3 {
	return g.centers[c.Face][c.J*g.shapes[c.Face].Nx+c.I]
}

// cornerVecs returns the corners of c counter-clockwise from south-west.
func (g *Grid) cornerVecs(c Cell) [4]vec3 {
	nx1 := g.shapes[c.Face].Nx + 1
	cs := g.corners[c.Face]
	return [4]vec3{
		cs[c.J*nx1+c.I],
		cs[c.J*nx1+c.I+1],
		cs[(c.J+1)*nx1+c.I+1],
		cs[(c.J+1)*nx1+c.I],
	}
}

// cellQuad returns the corners of c projected onto the tangent plane at
// its center.
func (g *Grid) cellQuad(c Cell) (tangentPlane, quad, bool) {
	tp := newTangentPlane(g.center(c))
	var q quad
	for n, v := range g.cornerVecs(c) {
		p, ok := tp.project(v)
		if !ok {
			return tp, q, false
		}
		q[n] = p
	}
	return tp, q, true
}

// locate returns the local coordinates of point v relative to horizontal
// cell c and whether v is contained by c.
func (g *Grid) locate(c Cell, v vec3) (rx, ry float64, inside, ok bool) {
	tp, q, ok := g.cellQuad(c)
	if !ok {
		return 0, 0, false, false
	}
	p, ok := tp.project(v)
	if !ok {
		return 0, 0, false, false
	}
	s, t, ok := q.invert(p)
	rx, ry = s-0.5, t-0.5
	inside = p.Within(q.polygon()) != geom.Outside
	if ok && math.Abs(rx) <= 0.5+edgeTolerance && math.Abs(ry) <= 0.5+edgeTolerance {
		inside = true
	}
	return rx, ry, inside, ok
}

// Resolve finds the cell containing the given point. Longitude and
// latitude are in degrees and depth is in meters, positive downward;
// depth is ignored for two-dimensional grids.
//
// A point on a shared cell edge or face seam belongs to the containing
// cell whose center is nearest, with ties broken by the lowest face,
// then j, then i index. A point on a layer interface belongs to the layer
// above it, except at the bottom of the grid.
func (g *Grid) Resolve(lon, lat, depth float64) (CellLocation, error) {
	fail := func(reason string) (CellLocation, error) {
		g.metrics.resolutionFailure()
		return CellLocation{}, GridResolutionError{Lon: lon, Lat: lat, Depth: depth, Reason: reason}
	}
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return fail("coordinates are not finite")
	}
	if lat < -90 || lat > 90 {
		return fail("latitude out of range")
	}
	k, rz, err := g.resolveVertical(depth)
	if err != nil {
		return fail(err.Error())
	}
	v := toVec(lon, lat)

	cands := g.nearest(v)
	onLand := false
	for _, c := range cands {
		rx, ry, inside, _ := g.locate(c, v)
		if !inside {
			continue
		}
		c.K = k
		if !g.wet(c) {
			onLand = true
			continue
		}
		return g.location(c, rx, ry, rz), nil
	}
	if onLand {
		return fail("point is on land")
	}

	// Walk from the nearest cell toward the point.
	c := cands[0]
	visited := map[Cell]bool{c: true}
	for hop := 0; hop < g.maxHops; hop++ {
		rx, ry, _, ok := g.locate(c, v)
		if !ok {
			break
		}
		var d [2]int
		if math.Abs(rx) >= math.Abs(ry) {
			d[0] = sign(rx)
		} else {
			d[1] = sign(ry)
		}
		next, _, err := g.step(c, d)
		if err != nil {
			return fail("point is outside of the domain")
		}
		if visited[next] {
			break
		}
		visited[next] = true
		c = next
		rx, ry, inside, _ := g.locate(c, v)
		if inside {
			c.K = k
			if !g.wet(c) {
				return fail("point is on land")
			}
			return g.location(c, rx, ry, rz), nil
		}
	}
	return fail(fmt.Sprintf("no containing cell found within %d hops", g.maxHops))
}

func sign(x float64) int {
	if x < 0 {
		return -1
	}
	return 1
}

func (g *Grid) location(c Cell, rx, ry, rz float64) CellLocation {
	return CellLocation{Cell: c, Rx: clampLocal(rx), Ry: clampLocal(ry), Rz: rz}
}

func clampLocal(r float64) float64 {
	return math.Max(-0.5, math.Min(0.5, r))
}

// resolveVertical returns the layer index and local vertical coordinate
// for depth.
func (g *Grid) resolveVertical(depth float64) (int, float64, error) {
	if len(g.levels) == 0 {
		return 0, 0, nil
	}
	nz := len(g.levels) - 1
	if math.IsNaN(depth) || depth < g.levels[0] || depth > g.levels[nz] {
		return 0, 0, fmt.Errorf("depth %g is outside of the vertical range [%g, %g]", depth, g.levels[0], g.levels[nz])
	}
	k := sort.Search(nz, func(k int) bool { return g.levels[k+1] >= depth })
	if k == nz {
		k = nz - 1
	}
	rz := (depth-g.levels[k])/(g.levels[k+1]-g.levels[k]) - 0.5
	return k, clampLocal(rz), nil
}

// nearest returns the cells with the nearest centers to v, ordered by
// distance, face, j, and i.
func (g *Grid) nearest(v vec3) []Cell {
	keep := kdtree.NewNKeeper(g.candidates)
	g.tree.NearestSet(keep, centerPoint{v: v})
	type cand struct {
		Cell
		d float64
	}
	var cs []cand
	for _, cd := range keep.Heap {
		if cd.Comparable == nil {
			continue
		}
		p := cd.Comparable.(centerPoint)
		cs = append(cs, cand{Cell: Cell{Face: p.face, I: p.i, J: p.j}, d: cd.Dist})
	}
	sort.Slice(cs, func(a, b int) bool {
		ca, cb := cs[a], cs[b]
		if ca.d != cb.d {
			return ca.d < cb.d
		}
		if ca.Face != cb.Face {
			return ca.Face < cb.Face
		}
		if ca.J != cb.J {
			return ca.J < cb.J
		}
		return ca.I < cb.I
	})
	out := make([]Cell, len(cs))
	for n, c := range cs {
		out[n] = c.Cell
	}
	return out
}

// Point returns the longitude, latitude, and depth of loc.
func (g *Grid) Point(loc CellLocation) (lon, lat, depth float64) {
	tp, q, ok := g.cellQuad(loc.Cell)
	var v vec3
	if ok {
		v = tp.lift(q.at(loc.Rx+0.5, loc.Ry+0.5))
	} else {
		v = g.center(loc.Cell)
	}
	lon, lat = v.lonLat()
	if len(g.levels) > 0 {
		depth = g.levels[loc.K] + (loc.Rz+0.5)*(g.levels[loc.K+1]-g.levels[loc.K])
	}
	return lon, lat, depth
}

// Extents returns the physical width, height, and thickness of cell c
// in meters. Thickness is zero for two-dimensional grids.
func (g *Grid) Extents(c Cell) (dx, dy, dz float64) {
	dx = g.dx[c.Face].Get(c.J, c.I)
	dy = g.dy[c.Face].Get(c.J, c.I)
	if len(g.levels) > 0 {
		dz = g.levels[c.K+1] - g.levels[c.K]
	}
	return
}

func (g *Grid) loadMask(ctx context.Context) error {
	info, err := g.ds.FieldInfo(g.maskName)
	if err != nil {
		return fmt.Errorf("seaduck: loading mask: %v", err)
	}
	if info.Kind != Center {
		return ConfigurationError{Component: "grid", Reason: fmt.Sprintf("mask %s must be located at cell centers", g.maskName)}
	}
	g.mask = make([]*sparse.DenseArray, len(g.shapes))
	for f := range g.shapes {
		a, err := g.ds.Field(ctx, g.maskName, f, 0)
		if err != nil {
			return fmt.Errorf("seaduck: loading mask: %v", err)
		}
		g.mask[f] = a
	}
	return nil
}

// wet returns whether c is an ocean cell.
func (g *Grid) wet(c Cell) bool {
	if g.mask == nil {
		return true
	}
	v := valueAt(g.mask[c.Face], c)
	return v != 0 && !math.IsNaN(v)
}

// available returns whether a variable of the given kind stored at the
// index of c lies on a wet cell or on a face, edge, or interface of one.
// A coastline U point carries the index of the land cell to its east,
// and the bottom interface of a wet layer carries the index of the
// layer below it.
func (g *Grid) available(c Cell, kind PointKind) bool {
	if g.wet(c) {
		return true
	}
	var ds [][2]int
	switch kind {
	case UPoint:
		ds = [][2]int{{-1, 0}}
	case VPoint:
		ds = [][2]int{{0, -1}}
	case Corner:
		ds = [][2]int{{-1, 0}, {0, -1}, {-1, -1}}
	case WPoint:
		above := c
		above.K--
		return above.K >= 0 && g.wet(above)
	}
	for _, d := range ds {
		n, _, err := g.Walk(c, d[0], d[1])
		if err != nil {
			continue
		}
		n.K = c.K
		if g.wet(n) {
			return true
		}
	}
	return false
}

// valueAt returns the value of a two- or three-dimensional face array
// at cell c.
func valueAt(a *sparse.DenseArray, c Cell) float64 {
	if len(a.Shape) == 3 {
		return a.Get(c.K, c.J, c.I)
	}
	return a.Get(c.J, c.I)
}

// Field returns the value of the named field at the cell of loc at the
// given time index.
func (g *Grid) Field(ctx context.Context, name string, loc CellLocation, timeIndex int) (float64, error) {
	a, err := g.fields.get(ctx, name, loc.Face, timeIndex)
	if err != nil {
		return math.NaN(), err
	}
	return valueAt(a, loc.Cell), nil
}

// centerPoint is a cell center for the k-d tree.
type centerPoint struct {
	v          vec3
	face, i, j int
}

func (p centerPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.v[d] - c.(centerPoint).v[d]
}

func (p centerPoint) Dims() int { return 3 }

// Distance returns the squared chord distance, which orders points the
// same way as great-circle distance.
func (p centerPoint) Distance(c kdtree.Comparable) float64 {
	d := p.v.sub(c.(centerPoint).v)
	return d.dot(d)
}

type centerPoints []centerPoint

func (p centerPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p centerPoints) Len() int                              { return len(p) }
func (p centerPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }
func (p centerPoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(centerPlane{centerPoints: p, Dim: d}, kdtree.MedianOfRandoms(centerPlane{centerPoints: p, Dim: d}, 100))
}

// centerPlane sorts centerPoints along one dimension.
type centerPlane struct {
	centerPoints
	kdtree.Dim
}

func (p centerPlane) Less(i, j int) bool {
	return p.centerPoints[i].v[p.Dim] < p.centerPoints[j].v[p.Dim]
}

func (p centerPlane) Slice(start, end int) kdtree.SortSlicer {
	return centerPlane{centerPoints: p.centerPoints[start:end], Dim: p.Dim}
}

func (p centerPlane) Swap(i, j int) {
	p.centerPoints[i], p.centerPoints[j] = p.centerPoints[j], p.centerPoints[i]
}

func (g *Grid) buildTree() {
	pts := make(centerPoints, 0, g.NumCells())
	for f, s := range g.shapes {
		for j := 0; j < s.Ny; j++ {
			for i := 0; i < s.Nx; i++ {
				pts = append(pts, centerPoint{v: g.centers[f][j*s.Nx+i], face: f, i: i, j: j})
			}
		}
	}
	g.tree = kdtree.New(pts, false)
}
