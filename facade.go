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
	"reflect"
	"sync"

	"github.com/golang/groupcache/lru"
)

// indexCacheSize is the number of grids kept by Query.
const indexCacheSize = 8

var (
	indexCacheMx sync.Mutex
	indexCache   = lru.New(indexCacheSize)
)

// ClearIndexCache discards the grids saved by Query.
func ClearIndexCache() {
	indexCacheMx.Lock()
	indexCache = lru.New(indexCacheSize)
	indexCacheMx.Unlock()
}

// cachedGrid returns a grid for ds, building one if ds has not been
// queried recently. Datasets of types that cannot be used as map keys are
// indexed on every call.
func cachedGrid(ctx context.Context, ds Dataset) (*Grid, error) {
	cacheable := reflect.TypeOf(ds).Comparable()
	if cacheable {
		indexCacheMx.Lock()
		g, ok := indexCache.Get(ds)
		indexCacheMx.Unlock()
		if ok {
			return g.(*Grid), nil
		}
	}
	g, err := BuildIndex(ctx, ds)
	if err != nil {
		return nil, err
	}
	if cacheable {
		indexCacheMx.Lock()
		indexCache.Add(ds, g)
		indexCacheMx.Unlock()
	}
	return g, nil
}

// Query interpolates each of the named fields at the given points using
// the default kernel and linear time interpolation. depths and times may be
// nil, in which case all depths are zero and all times are the first
// snapshot time of ds. Otherwise they must be the same length as lons.
// The grid built for ds is saved and reused by later calls with the same
// dataset.
func Query(ctx context.Context, ds Dataset, names []string, lons, lats, depths, times []float64) (map[string]*Result, error) {
	n := len(lons)
	if len(lats) != n || (depths != nil && len(depths) != n) || (times != nil && len(times) != n) {
		return nil, ConfigurationError{Component: "query", Reason: "coordinate arrays have different lengths"}
	}
	g, err := cachedGrid(ctx, ds)
	if err != nil {
		return nil, err
	}
	in, err := NewInterpolator(g)
	if err != nil {
		return nil, err
	}
	var t0 float64
	if ts := g.Times(); len(ts) > 0 {
		t0 = ts[0]
	}
	points := make([]*Position, n)
	for i := range points {
		var d, t float64 = 0, t0
		if depths != nil {
			d = depths[i]
		}
		if times != nil {
			t = times[i]
		}
		points[i] = NewPosition(lons[i], lats[i], d, t)
	}
	k := DefaultKernelFor(g)
	out := make(map[string]*Result, len(names))
	for _, name := range names {
		r, err := in.Interpolate(ctx, points, name, k)
		if err != nil {
			return nil, fmt.Errorf("seaduck: query: %w", err)
		}
		out[name] = r
	}
	return out, nil
}
