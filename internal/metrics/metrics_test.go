package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"arbtracker/internal/model"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()

	r.RecordFetch("valr", nil, 20*time.Millisecond)
	r.RecordFetch("valr", errors.New("boom"), time.Millisecond)
	r.RecordFetch("exchangerate", nil, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.fetchTotal.WithLabelValues("valr", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fetchTotal.WithLabelValues("valr", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fetchTotal.WithLabelValues("exchangerate", "ok")))

	captured := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	r.RecordCalculation("poll", model.ProfitReport{
		CapturedAt: captured,
		ValrRate:   18.5,
		MarketRate: 18.4,
		Spread:     0.54,
		ProfitZAR:  285.99,
	}, nil)
	r.RecordCalculation("request", model.ProfitReport{}, errors.New("rates unavailable"))
	r.SetHistorySize(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.calcTotal.WithLabelValues("poll", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.calcTotal.WithLabelValues("request", "error")))
	assert.Equal(t, 18.5, testutil.ToFloat64(r.rate.WithLabelValues("valr")))
	assert.Equal(t, 0.54, testutil.ToFloat64(r.spread))
	assert.Equal(t, 285.99, testutil.ToFloat64(r.profitZAR))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.historySize))
	assert.Equal(t, float64(captured.Unix()), testutil.ToFloat64(r.lastRefresh))

	n, err := testutil.GatherAndCount(r.Registry(), "arbtracker_rate_fetch_total")
	assert.NoError(t, err)
	assert.Equal(t, 3, n)
}
