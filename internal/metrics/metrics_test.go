package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/reconcile"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/types"
)

func TestObserveReconcile(t *testing.T) {
	r := New()
	r.ObserveReconcile("sales", &reconcile.Summary{
		RowsTotal:     10,
		NullCounts:    map[types.Field]int{types.FieldAmount: 2, types.FieldAgent: 0},
		FallbackCount: 3,
		Issues: []reconcile.Issue{
			{Kind: reconcile.KindAmbiguousColumn},
			{Kind: reconcile.KindUnparseableRow},
			{Kind: reconcile.KindUnparseableRow},
		},
	})
	r.ObserveReconcile("sales", nil)

	assert.Equal(t, 10.0, testutil.ToFloat64(r.rows.WithLabelValues("sales")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.nulls.WithLabelValues(string(types.FieldAmount))))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.fallbacks))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.issues.WithLabelValues(string(reconcile.KindUnparseableRow))))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.issues.WithLabelValues(string(reconcile.KindAmbiguousColumn))))
}

func TestObservePersistAndFiles(t *testing.T) {
	r := New()
	r.ObservePersist(5, 2, 1)
	r.ObservePersist(0, 7, 0)
	r.ObserveFile("items", true)
	r.ObserveFile("items", false)

	assert.Equal(t, 5.0, testutil.ToFloat64(r.persisted.WithLabelValues(OutcomeInserted)))
	assert.Equal(t, 9.0, testutil.ToFloat64(r.persisted.WithLabelValues(OutcomeDuplicate)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.persisted.WithLabelValues(OutcomeSkipped)))
	assert.Equal(t, 2, testutil.CollectAndCount(r.files))
}

func TestObserveDuration(t *testing.T) {
	r := New()
	r.ObserveDuration("read", 10*time.Millisecond)
	r.ObserveDuration("persist", time.Second)
	assert.Equal(t, 2, testutil.CollectAndCount(r.duration))
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.ObservePersist(4, 0, 0)

	path := filepath.Join(t.TempDir(), "textfile", "fradma.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `fradma_persisted_rows_total{outcome="inserted"} 4`)
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveFile("sales", true)
		r.ObserveReconcile("sales", &reconcile.Summary{})
		r.ObservePersist(1, 1, 1)
		r.ObserveDuration("read", time.Second)
	})
	assert.NoError(t, r.WriteTextfile("ignored.prom"))
	assert.Nil(t, r.Registry())
}
