// Package instrument wraps an odm.Store with Prometheus metrics.
package instrument

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mickamy/docmap/odm"
	"github.com/mickamy/docmap/scope"
)

// Operation label values.
const (
	OpFind   = "find"
	OpCount  = "count"
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
	OpEnsure = "ensure"
)

// Result label values.
const (
	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// Metrics holds the collectors shared by instrumented stores.
type Metrics struct {
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
	rows     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docmap",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Store operations by collection, operation and result.",
		}, []string{"collection", "operation", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docmap",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Store operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collection", "operation"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docmap",
			Subsystem: "store",
			Name:      "records_read_total",
			Help:      "Records returned by Find.",
		}, []string{"collection"}),
	}
	if reg != nil {
		reg.MustRegister(m.ops, m.duration, m.rows)
	}
	return m
}

// Store is an odm.Store that records metrics for every call to next.
type Store struct {
	next    odm.Store
	metrics *Metrics
}

var (
	_ odm.Store       = (*Store)(nil)
	_ odm.Initializer = (*Store)(nil)
	_ io.Closer       = (*Store)(nil)
)

// Wrap returns next instrumented with m.
func Wrap(next odm.Store, m *Metrics) *Store {
	return &Store{next: next, metrics: m}
}

// Unwrap returns the wrapped store.
func (s *Store) Unwrap() odm.Store { return s.next }

func (s *Store) Find(ctx context.Context, coll string, q scope.Query) ([]odm.Record, error) {
	done := s.observe(coll, OpFind)
	recs, err := s.next.Find(ctx, coll, q)
	done(err)
	if err == nil {
		s.metrics.rows.WithLabelValues(coll).Add(float64(len(recs)))
	}
	return recs, err //nolint:wrapcheck // decorator
}

func (s *Store) Count(ctx context.Context, coll string, q scope.Query) (int64, error) {
	done := s.observe(coll, OpCount)
	n, err := s.next.Count(ctx, coll, q)
	done(err)
	return n, err //nolint:wrapcheck // decorator
}

func (s *Store) Insert(ctx context.Context, coll string, rec odm.Record) error {
	done := s.observe(coll, OpInsert)
	err := s.next.Insert(ctx, coll, rec)
	done(err)
	return err //nolint:wrapcheck // decorator
}

func (s *Store) Update(ctx context.Context, coll string, id string, rec odm.Record) error {
	done := s.observe(coll, OpUpdate)
	err := s.next.Update(ctx, coll, id, rec)
	done(err)
	return err //nolint:wrapcheck // decorator
}

func (s *Store) Delete(ctx context.Context, coll string, id string) error {
	done := s.observe(coll, OpDelete)
	err := s.next.Delete(ctx, coll, id)
	done(err)
	return err //nolint:wrapcheck // decorator
}

// EnsureCollection forwards to the wrapped store when it is an
// odm.Initializer.
func (s *Store) EnsureCollection(ctx context.Context, coll string, indexes []string) error {
	init, ok := s.next.(odm.Initializer)
	if !ok {
		return nil
	}
	done := s.observe(coll, OpEnsure)
	err := init.EnsureCollection(ctx, coll, indexes)
	done(err)
	return err //nolint:wrapcheck // decorator
}

// Close forwards to the wrapped store when it is an io.Closer.
func (s *Store) Close() error {
	if c, ok := s.next.(io.Closer); ok {
		return c.Close() //nolint:wrapcheck // decorator
	}
	return nil
}

func (s *Store) observe(coll, op string) func(error) {
	start := time.Now()
	return func(err error) {
		s.metrics.duration.WithLabelValues(coll, op).Observe(time.Since(start).Seconds())
		s.metrics.ops.WithLabelValues(coll, op, result(err)).Inc()
	}
}

func result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, odm.ErrNotFound):
		return ResultNotFound
	default:
		return ResultError
	}
}
