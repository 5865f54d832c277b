package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"favesave/internal/model"
)

func TestMetrics_RecordsRunEvents(t *testing.T) {
	m := New()
	m.Disposition(model.CategoryFaved, model.DispositionDownloaded)
	m.Disposition(model.CategoryFaved, model.DispositionDownloaded)
	m.Disposition(model.CategoryLiked, model.DispositionBlocked)
	m.InFlight(3)
	m.Stalled(true)
	m.FetchDuration(2 * time.Second)
	m.RunFinished(model.StateCompleted)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.outcomes.WithLabelValues("faved", "downloaded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("liked", "blocked")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.inFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stalled))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("completed")))

	m.Stalled(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.stalled))
}

func TestMetrics_HandlerExposesFamilies(t *testing.T) {
	m := New()
	m.Disposition(model.CategoryShared, model.DispositionFailed)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, `favesave_items_total{category="shared",disposition="failed"} 1`), text)
	assert.Contains(t, text, "favesave_fetches_in_flight")
}

func TestMetrics_InstancesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.InFlight(5)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.inFlight))
}
