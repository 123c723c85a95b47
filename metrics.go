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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/ThomasHaine/seaduck")

// Metrics holds Prometheus collectors for interpolation and particle
// tracking. A nil *Metrics records nothing.
type Metrics struct {
	Fetches            *prometheus.CounterVec
	ResolutionFailures prometheus.Counter
	Substeps           prometheus.Counter
	Terminations       *prometheus.CounterVec
	BatchDurations     *prometheus.HistogramVec
}

// NewMetrics registers seaduck metrics against reg, defaulting to the
// global Prometheus registry when reg is nil. Registering twice against
// the same registry returns the existing collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	fetches, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seaduck_field_fetches_total",
		Help: "Number of (face, time) field arrays read from the dataset, labeled by field.",
	}, []string{"field"}), "seaduck_field_fetches_total")
	if err != nil {
		return nil, err
	}
	failures, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "seaduck_resolution_failures_total",
		Help: "Number of points that could not be matched to a grid cell.",
	}), "seaduck_resolution_failures_total")
	if err != nil {
		return nil, err
	}
	substeps, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "seaduck_integration_substeps_total",
		Help: "Number of particle integration sub-steps taken.",
	}), "seaduck_integration_substeps_total")
	if err != nil {
		return nil, err
	}
	terminations, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seaduck_particle_terminations_total",
		Help: "Number of particles that stopped early, labeled by status.",
	}, []string{"status"}), "seaduck_particle_terminations_total")
	if err != nil {
		return nil, err
	}
	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "seaduck_batch_duration_seconds",
		Help:    "Duration of batch interpolation and integration calls in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"operation"}), "seaduck_batch_duration_seconds")
	if err != nil {
		return nil, err
	}
	return &Metrics{
		Fetches:            fetches,
		ResolutionFailures: failures,
		Substeps:           substeps,
		Terminations:       terminations,
		BatchDurations:     durations,
	}, nil
}

func (m *Metrics) fetch(field string) {
	if m == nil {
		return
	}
	m.Fetches.WithLabelValues(field).Inc()
}

func (m *Metrics) resolutionFailure() {
	if m == nil {
		return
	}
	m.ResolutionFailures.Inc()
}

func (m *Metrics) substep() {
	if m == nil {
		return
	}
	m.Substeps.Inc()
}

func (m *Metrics) terminated(s Status) {
	if m == nil {
		return
	}
	m.Terminations.WithLabelValues(s.String()).Inc()
}

func (m *Metrics) observe(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.BatchDurations.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("seaduck: collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return c, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("seaduck: collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("seaduck: collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
