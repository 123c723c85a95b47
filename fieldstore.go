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
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/ctessum/requestcache"
	"github.com/ctessum/sparse"
	"github.com/golang/groupcache/lru"
	"github.com/sirupsen/logrus"
)

// LoadingPolicy specifies how field data is read from a Dataset.
type LoadingPolicy int

const (
	// Lazy fields are read one (face, time) array at a time as they are
	// needed and kept in a bounded least-recently-used cache.
	Lazy LoadingPolicy = iota

	// Eager fields are read in full and kept in memory.
	Eager
)

func (p LoadingPolicy) String() string {
	if p == Eager {
		return "eager"
	}
	return "lazy"
}

// ParseLoadingPolicy converts "eager" or "lazy" to a LoadingPolicy.
func ParseLoadingPolicy(s string) (LoadingPolicy, error) {
	switch strings.ToLower(s) {
	case "eager":
		return Eager, nil
	case "lazy":
		return Lazy, nil
	default:
		return Lazy, ConfigurationError{Component: "loading policy", Reason: fmt.Sprintf("unknown policy %q", s)}
	}
}

// fieldSource returns one (face, time) array of a field.
type fieldSource interface {
	get(ctx context.Context, name string, face, t int) (*sparse.DenseArray, error)
}

// fieldStore dispatches field requests to the eager or lazy
// source depending on each field's loading policy.
type fieldStore struct {
	g     *Grid
	eager *eagerSource
	lazy  *lazySource
}

func newFieldStore(g *Grid) *fieldStore {
	return &fieldStore{
		g:     g,
		eager: &eagerSource{ds: g.ds, nfaces: len(g.shapes), ntimes: len(g.times), fields: make(map[string]*eagerField), log: g.Log, metrics: g.metrics},
		lazy:  newLazySource(g.ds, g.cacheSize, g.fetchRetries, g.Log, g.metrics),
	}
}

func (s *fieldStore) policy(name string) LoadingPolicy {
	if p, ok := s.g.loading[name]; ok {
		return p
	}
	return s.g.defaultLoading
}

func (s *fieldStore) source(name string) fieldSource {
	if s.policy(name) == Eager {
		return s.eager
	}
	return s.lazy
}

func (s *fieldStore) get(ctx context.Context, name string, face, t int) (*sparse.DenseArray, error) {
	return s.source(name).get(ctx, name, face, t)
}

func (s *fieldStore) materialize(ctx context.Context, name string) error {
	return s.eager.load(ctx, name)
}

// eagerSource holds complete fields in memory.
type eagerSource struct {
	ds             Dataset
	nfaces, ntimes int
	log            logrus.FieldLogger
	metrics        *Metrics

	mu     sync.Mutex
	fields map[string]*eagerField
}

type eagerField struct {
	once sync.Once
	data [][]*sparse.DenseArray // [face][time]
	err  error
}

func (s *eagerSource) field(name string) *eagerField {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.fields[name]
	if !ok {
		f = new(eagerField)
		s.fields[name] = f
	}
	return f
}

// load reads every face and time snapshot of the named field.
func (s *eagerSource) load(ctx context.Context, name string) error {
	f := s.field(name)
	f.once.Do(func() {
		info, err := s.ds.FieldInfo(name)
		if err != nil {
			f.err = fmt.Errorf("seaduck: loading field %s: %v", name, err)
			return
		}
		nt := 1
		if info.TimeVarying {
			nt = s.ntimes
		}
		f.data = make([][]*sparse.DenseArray, s.nfaces)
		for face := range f.data {
			f.data[face] = make([]*sparse.DenseArray, nt)
			for t := 0; t < nt; t++ {
				a, err := s.ds.Field(ctx, name, face, t)
				if err != nil {
					f.err = fmt.Errorf("seaduck: loading field %s face %d time %d: %v", name, face, t, err)
					return
				}
				f.data[face][t] = a
				s.metrics.fetch(name)
			}
		}
		s.log.WithFields(logrus.Fields{
			"field":     name,
			"faces":     s.nfaces,
			"snapshots": nt,
		}).Debug("seaduck: materialized field")
	})
	return f.err
}

func (s *eagerSource) get(ctx context.Context, name string, face, t int) (*sparse.DenseArray, error) {
	if err := s.load(ctx, name); err != nil {
		return nil, err
	}
	d := s.field(name).data
	if face < 0 || face >= len(d) {
		return nil, fmt.Errorf("seaduck: face %d out of range for field %s", face, name)
	}
	if len(d[face]) == 1 {
		t = 0
	}
	if t < 0 || t >= len(d[face]) {
		return nil, fmt.Errorf("seaduck: time index %d out of range for field %s", t, name)
	}
	return d[face][t], nil
}

// lazySource fetches field arrays on demand. Concurrent requests for the
// same array are deduplicated and recent results are kept in a bounded
// least-recently-used cache.
type lazySource struct {
	ds      Dataset
	id      uint64
	retries uint64
	log     logrus.FieldLogger
	metrics *Metrics

	mx  sync.Mutex
	lru *lru.Cache
}

type slabRequest struct {
	src     *lazySource
	name    string
	face, t int
}

var (
	lazySourceIDs uint64

	fetchPipelineOnce sync.Once
	fetchPipeline     *requestcache.Cache
)

// sharedFetchPipeline returns the process-wide pipeline that deduplicates
// and runs lazy fetches for all grids. Its goroutines live as long as the
// process, so discarding a Grid leaves nothing running.
func sharedFetchPipeline() *requestcache.Cache {
	fetchPipelineOnce.Do(func() {
		fetchPipeline = requestcache.NewCache(func(ctx context.Context, payload interface{}) (interface{}, error) {
			r := payload.(slabRequest)
			return r.src.fetch(ctx, r)
		}, runtime.GOMAXPROCS(-1), requestcache.Deduplicate())
	})
	return fetchPipeline
}

func newLazySource(ds Dataset, cacheSize int, retries uint64, log logrus.FieldLogger, m *Metrics) *lazySource {
	return &lazySource{
		ds:      ds,
		id:      atomic.AddUint64(&lazySourceIDs, 1),
		retries: retries,
		log:     log,
		metrics: m,
		lru:     lru.New(cacheSize),
	}
}

func (s *lazySource) get(ctx context.Context, name string, face, t int) (*sparse.DenseArray, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%d_%s_%d_%d", s.id, name, face, t)
	s.mx.Lock()
	v, ok := s.lru.Get(key)
	s.mx.Unlock()
	if ok {
		return v.(*sparse.DenseArray), nil
	}
	req := sharedFetchPipeline().NewRequest(ctx, slabRequest{src: s, name: name, face: face, t: t}, key)
	result, err := req.Result()
	if err != nil {
		return nil, err
	}
	a := result.(*sparse.DenseArray)
	s.mx.Lock()
	s.lru.Add(key, a)
	s.mx.Unlock()
	return a, nil
}

// fetch reads one array from the dataset, retrying with exponential
// backoff until the retry limit is reached or ctx is done.
func (s *lazySource) fetch(ctx context.Context, r slabRequest) (*sparse.DenseArray, error) {
	var out *sparse.DenseArray
	var ctxErr error
	// WithMaxRetries treats zero as unlimited.
	var policy backoff.BackOff = &backoff.StopBackOff{}
	if s.retries > 0 {
		policy = backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.retries)
	}
	err := backoff.RetryNotify(
		func() error {
			if err := ctx.Err(); err != nil {
				ctxErr = err
				return nil
			}
			var err error
			out, err = s.ds.Field(ctx, r.name, r.face, r.t)
			if err != nil {
				return fmt.Errorf("seaduck: fetching field %s face %d time %d: %v", r.name, r.face, r.t, err)
			}
			return nil
		},
		backoff.WithContext(policy, ctx),
		func(err error, d time.Duration) {
			s.log.WithFields(logrus.Fields{
				"field": r.name,
				"face":  r.face,
				"time":  r.t,
			}).Warnf("%v: retrying in %v", err, d)
		},
	)
	if ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, err
	}
	s.metrics.fetch(r.name)
	return out, nil
}
