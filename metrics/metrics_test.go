package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	t.Parallel()

	m := New()
	m.IncRequest("ok")
	m.IncRequest("ok")
	m.IncPage("empty")
	m.AddItems(12)
	m.AddItems(-3)
	m.AddDuplicates(2)
	m.IncError("timeout")
	m.IncRejected("missing_title")
	m.AddInserted(10)
	m.AddSkipped(1)
	m.ObserveDuration(150 * time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.PagesTotal.WithLabelValues("empty")), 0)
	assert.InDelta(t, 12, testutil.ToFloat64(m.ItemsScrapedTotal), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.DuplicatesTotal), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("timeout")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RejectedTotal.WithLabelValues("missing_title")), 0)
	assert.InDelta(t, 10, testutil.ToFloat64(m.RowsInsertedTotal), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RowsSkippedTotal), 0)
}

func TestObserveRunSetsLastSuccess(t *testing.T) {
	t.Parallel()

	m := New()
	finished := time.Unix(1700000000, 0)

	m.ObserveRun("failure", time.Second, finished)
	assert.InDelta(t, 0, testutil.ToFloat64(m.LastSuccess), 0)

	m.ObserveRun("success", time.Second, finished)
	assert.InDelta(t, 1700000000, testutil.ToFloat64(m.LastSuccess), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RunsTotal.WithLabelValues("success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RunsTotal.WithLabelValues("failure")), 0)
}

func TestNilMetricsAreSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.IncRequest("ok")
	m.IncPage("ok")
	m.AddItems(1)
	m.AddDuplicates(1)
	m.IncError("other")
	m.IncRejected("negative_price")
	m.AddInserted(1)
	m.AddSkipped(1)
	m.ObserveDuration(time.Second)
	m.ObserveRun("success", time.Second, time.Now())
	require.NoError(t, m.Push(context.Background(), "http://unused", "job"))
}

func TestPush(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	var path atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		path.Store(r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m := New()
	m.AddInserted(3)
	require.NoError(t, m.Push(context.Background(), server.URL, "books_etl"))
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, "/metrics/job/books_etl", path.Load())
}

func TestPushWithoutURLIsNoop(t *testing.T) {
	t.Parallel()

	require.NoError(t, New().Push(context.Background(), "", "books_etl"))
}

func TestPushFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := New().Push(context.Background(), server.URL, "books_etl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "push metrics")
}
