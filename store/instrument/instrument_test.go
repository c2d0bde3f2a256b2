package instrument

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/docmap/odm"
	"github.com/mickamy/docmap/scope"
	"github.com/mickamy/docmap/store/memory"
)

func TestStoreCountsOperations(t *testing.T) {
	t.Parallel()

	m := NewMetrics(prometheus.NewRegistry())
	s := Wrap(memory.New(), m)
	ctx := t.Context()

	require.NoError(t, s.EnsureCollection(ctx, "users", nil))
	require.NoError(t, s.Insert(ctx, "users", odm.Record{odm.IDKey: "u1", "login": "dcu"}))
	require.NoError(t, s.Insert(ctx, "users", odm.Record{odm.IDKey: "u2", "login": "jnunemaker"}))

	recs, err := s.Find(ctx, "users", scope.Query{})
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	err = s.Delete(ctx, "users", "missing")
	assert.True(t, errors.Is(err, odm.ErrNotFound))

	err = s.Insert(ctx, "users", odm.Record{odm.IDKey: "u1"})
	assert.Error(t, err)

	tests := []struct {
		op, result string
		want       float64
	}{
		{OpEnsure, ResultOK, 1},
		{OpInsert, ResultOK, 2},
		{OpInsert, ResultError, 1},
		{OpFind, ResultOK, 1},
		{OpDelete, ResultNotFound, 1},
		{OpCount, ResultOK, 0},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(m.ops.WithLabelValues("users", tt.op, tt.result))
		assert.Equal(t, tt.want, got, "%s/%s", tt.op, tt.result)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.rows.WithLabelValues("users")))
}

func TestStoreForwardsToWrapped(t *testing.T) {
	t.Parallel()

	inner := memory.New()
	s := Wrap(inner, NewMetrics(nil))

	assert.Same(t, inner, s.Unwrap())
	assert.NoError(t, s.Close())
}

func TestUnregisteredMetricsDoNotPanic(t *testing.T) {
	t.Parallel()

	s := Wrap(memory.New(), NewMetrics(nil))
	n, err := s.Count(t.Context(), "users", scope.Query{})
	require.NoError(t, err)
	assert.Zero(t, n)
}
