package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"arbtracker/internal/arbitrage"
	"arbtracker/internal/history"
	"arbtracker/internal/model"
	"arbtracker/internal/settings"
	"arbtracker/internal/tracker"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) CalculateNow(ctx context.Context, usd *float64) (model.ProfitReport, error) {
	args := m.Called(ctx, usd)
	return args.Get(0).(model.ProfitReport), args.Error(1)
}

func (m *MockService) History() []model.ProfitReport {
	return m.Called().Get(0).([]model.ProfitReport)
}

func (m *MockService) HistorySize() int {
	return m.Called().Int(0)
}

func (m *MockService) LastRefresh() (model.ProfitReport, bool) {
	args := m.Called()
	return args.Get(0).(model.ProfitReport), args.Bool(1)
}

func (m *MockService) LatestReport() (model.ProfitReport, bool) {
	args := m.Called()
	return args.Get(0).(model.ProfitReport), args.Bool(1)
}

func (m *MockService) Settings() model.Settings {
	return m.Called().Get(0).(model.Settings)
}

func (m *MockService) UpdateSettings(u model.SettingsUpdate) (model.Settings, error) {
	args := m.Called(u)
	return args.Get(0).(model.Settings), args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestServer(svc Service, metricsHandler http.Handler) http.Handler {
	return NewServer(Config{Mode: gin.TestMode, PollInterval: 5 * time.Minute}, svc, nil, metricsHandler, discardLogger()).Handler()
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func sampleReport() model.ProfitReport {
	return model.ProfitReport{
		CapturedAt:    time.Date(2026, 5, 1, 12, 30, 45, 123, time.UTC),
		ValrRate:      18.5,
		MarketRate:    18.4,
		Spread:        0.5,
		InitialZAR:    18000,
		USDPurchased:  1000,
		WireFee:       10,
		FinalZAR:      18285.99,
		ProfitZAR:     285.99,
		ProfitPercent: 1.5888,
	}
}

func TestProfitData(t *testing.T) {
	t.Run("default notional", func(t *testing.T) {
		svc := new(MockService)
		svc.On("CalculateNow", mock.Anything, (*float64)(nil)).Return(sampleReport(), nil).Once()

		w := do(newTestServer(svc, nil), http.MethodGet, "/get_profit_data", "")
		require.Equal(t, http.StatusOK, w.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "2026-05-01 12:30:45", body["timestamp"])
		assert.Equal(t, 18.5, body["valr_rate"])
		assert.Equal(t, 285.99, body["profit_zar"])
		assert.Len(t, body, 10)
		svc.AssertExpectations(t)
	})

	t.Run("explicit notional", func(t *testing.T) {
		svc := new(MockService)
		svc.On("CalculateNow", mock.Anything, mock.MatchedBy(func(v *float64) bool {
			return v != nil && *v == 2500.5
		})).Return(sampleReport(), nil).Once()

		w := do(newTestServer(svc, nil), http.MethodGet, "/get_profit_data?usd_purchased=2500.5", "")
		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("empty parameter uses default", func(t *testing.T) {
		svc := new(MockService)
		svc.On("CalculateNow", mock.Anything, (*float64)(nil)).Return(sampleReport(), nil).Once()

		w := do(newTestServer(svc, nil), http.MethodGet, "/get_profit_data?usd_purchased=", "")
		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	for _, raw := range []string{"abc", "NaN", "Inf", "1e400"} {
		t.Run("rejects "+raw, func(t *testing.T) {
			svc := new(MockService)
			w := do(newTestServer(svc, nil), http.MethodGet, "/get_profit_data?usd_purchased="+raw, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			svc.AssertNotCalled(t, "CalculateNow", mock.Anything, mock.Anything)
		})
	}

	t.Run("rates unavailable", func(t *testing.T) {
		svc := new(MockService)
		svc.On("CalculateNow", mock.Anything, mock.Anything).
			Return(model.ProfitReport{}, fmt.Errorf("%w: valr down", arbitrage.ErrRatesUnavailable))

		w := do(newTestServer(svc, nil), http.MethodGet, "/get_profit_data", "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"error":"Failed to calculate profit"}`, w.Body.String())
	})
}

type fixedRate struct {
	name string
	rate float64
}

func (f fixedRate) GetName() string { return f.name }
func (f fixedRate) FetchRate(context.Context) (float64, error) { return f.rate, nil }

func TestProfitData_OverflowingNotionalIsNotStored(t *testing.T) {
	calc := arbitrage.NewCalculator(discardLogger(), fixedRate{"valr", 18.5}, fixedRate{"exchangerate", 18.4}, nil)
	store := settings.NewStore(discardLogger(), filepath.Join(t.TempDir(), ".env"), model.Settings{InitialInvestment: 18000, USDPurchased: 1000})
	trk := tracker.New(discardLogger(), calc, history.NewBuffer(0), store)
	h := newTestServer(trk, nil)

	require.Equal(t, http.StatusOK, do(h, http.MethodGet, "/get_profit_data", "").Code)
	require.Equal(t, 1, trk.HistorySize())

	w := do(h, http.MethodGet, "/get_profit_data?usd_purchased=1e308", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Failed to calculate profit"}`, w.Body.String())
	assert.Equal(t, 1, trk.HistorySize())

	w = do(h, http.MethodGet, "/get_profit_history", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body, 1)
}

func TestProfitHistory(t *testing.T) {
	t.Run("returns entries in order", func(t *testing.T) {
		first := sampleReport()
		second := sampleReport()
		second.CapturedAt = first.CapturedAt.Add(5 * time.Minute)
		svc := new(MockService)
		svc.On("History").Return([]model.ProfitReport{first, second})

		w := do(newTestServer(svc, nil), http.MethodGet, "/get_profit_history", "")
		require.Equal(t, http.StatusOK, w.Code)

		var body []map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Len(t, body, 2)
		assert.Equal(t, "2026-05-01 12:30:45", body[0]["timestamp"])
		assert.Equal(t, "2026-05-01 12:35:45", body[1]["timestamp"])
	})

	t.Run("empty history is an empty array", func(t *testing.T) {
		svc := new(MockService)
		svc.On("History").Return([]model.ProfitReport{})

		w := do(newTestServer(svc, nil), http.MethodGet, "/get_profit_history", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[]`, w.Body.String())
	})
}

func TestUpdateSettings(t *testing.T) {
	ptr := func(v float64) *float64 { return &v }

	t.Run("numbers and numeric strings", func(t *testing.T) {
		svc := new(MockService)
		want := model.SettingsUpdate{InitialInvestment: ptr(19000), USDPurchased: ptr(1050.5)}
		svc.On("UpdateSettings", want).Return(model.Settings{InitialInvestment: 19000, USDPurchased: 1050.5}, nil).Once()

		w := do(newTestServer(svc, nil), http.MethodPost, "/update_settings",
			`{"initial_investment":19000,"usd_purchased":"1050.5","ignored":true}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true}`, w.Body.String())
		svc.AssertExpectations(t)
	})

	t.Run("partial update", func(t *testing.T) {
		svc := new(MockService)
		svc.On("UpdateSettings", model.SettingsUpdate{USDPurchased: ptr(5)}).Return(model.Settings{}, nil).Once()

		w := do(newTestServer(svc, nil), http.MethodPost, "/update_settings", `{"usd_purchased":5}`)
		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	badBodies := map[string]string{
		"empty":          ``,
		"not json":       `initial_investment=5`,
		"null body":      `null`,
		"array":          `[1,2]`,
		"null value":     `{"initial_investment":null}`,
		"word value":     `{"usd_purchased":"lots"}`,
		"boolean value":  `{"usd_purchased":true}`,
		"nan string":     `{"initial_investment":"NaN"}`,
		"overflow value": `{"initial_investment":1e400}`,
	}
	for name, body := range badBodies {
		t.Run("rejects "+name, func(t *testing.T) {
			svc := new(MockService)
			w := do(newTestServer(svc, nil), http.MethodPost, "/update_settings", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			svc.AssertNotCalled(t, "UpdateSettings", mock.Anything)
		})
	}

	t.Run("invalid value from store", func(t *testing.T) {
		svc := new(MockService)
		svc.On("UpdateSettings", mock.Anything).Return(model.Settings{}, fmt.Errorf("x: %w", settings.ErrInvalidValue))

		w := do(newTestServer(svc, nil), http.MethodPost, "/update_settings", `{"usd_purchased":1}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("persistence failure", func(t *testing.T) {
		svc := new(MockService)
		svc.On("UpdateSettings", mock.Anything).Return(model.Settings{}, errors.New("read-only file system"))

		w := do(newTestServer(svc, nil), http.MethodPost, "/update_settings", `{"usd_purchased":1}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestParseSettingsUpdate(t *testing.T) {
	u, err := parseSettingsUpdate([]byte(`{}`))
	require.NoError(t, err)
	assert.Nil(t, u.InitialInvestment)
	assert.Nil(t, u.USDPurchased)

	u, err = parseSettingsUpdate([]byte(`{"initial_investment":"-250.75"}`))
	require.NoError(t, err)
	require.NotNil(t, u.InitialInvestment)
	assert.Equal(t, -250.75, *u.InitialInvestment)

	_, err = parseNumber(json.RawMessage(`"Infinity"`))
	assert.Error(t, err)
	v, err := parseNumber(json.RawMessage(`12`))
	require.NoError(t, err)
	assert.False(t, math.IsNaN(v))
}

func TestHealth(t *testing.T) {
	t.Run("before first refresh", func(t *testing.T) {
		svc := new(MockService)
		svc.On("LastRefresh").Return(model.ProfitReport{}, false)
		svc.On("LatestReport").Return(model.ProfitReport{}, false)
		svc.On("HistorySize").Return(0)

		w := do(newTestServer(svc, nil), http.MethodGet, "/healthz", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok","last_refresh":null,"latest_report":null,"history_size":0}`, w.Body.String())
	})

	t.Run("after refresh", func(t *testing.T) {
		svc := new(MockService)
		newest := sampleReport()
		newest.CapturedAt = newest.CapturedAt.Add(90 * time.Second)
		svc.On("LastRefresh").Return(sampleReport(), true)
		svc.On("LatestReport").Return(newest, true)
		svc.On("HistorySize").Return(3)

		w := do(newTestServer(svc, nil), http.MethodGet, "/healthz", "")
		assert.JSONEq(t, `{"status":"ok","last_refresh":"2026-05-01 12:30:45","latest_report":"2026-05-01 12:32:15","history_size":3}`, w.Body.String())
	})
}

func TestDashboardRoute(t *testing.T) {
	svc := new(MockService)
	svc.On("Settings").Return(model.Settings{InitialInvestment: 18000, USDPurchased: 1000})

	w := do(newTestServer(svc, nil), http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "Server polls every 5m0s")
}

func TestMiddleware(t *testing.T) {
	t.Run("request id is generated", func(t *testing.T) {
		svc := new(MockService)
		svc.On("History").Return([]model.ProfitReport{})

		w := do(newTestServer(svc, nil), http.MethodGet, "/get_profit_history", "")
		assert.Len(t, w.Header().Get(requestIDHeader), 36)
	})

	t.Run("inbound request id is kept", func(t *testing.T) {
		svc := new(MockService)
		svc.On("History").Return([]model.ProfitReport{})

		req := httptest.NewRequest(http.MethodGet, "/get_profit_history", nil)
		req.Header.Set(requestIDHeader, "abc-123")
		w := httptest.NewRecorder()
		newTestServer(svc, nil).ServeHTTP(w, req)
		assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
	})

	t.Run("panics become 500", func(t *testing.T) {
		svc := new(MockService)
		svc.On("History").Run(func(mock.Arguments) { panic("boom") }).Return([]model.ProfitReport{})

		w := do(newTestServer(svc, nil), http.MethodGet, "/get_profit_history", "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("metrics route", func(t *testing.T) {
		metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "arbtracker_up 1\n")
		})
		w := do(newTestServer(new(MockService), metrics), http.MethodGet, "/metrics", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "arbtracker_up 1\n", w.Body.String())
	})

	t.Run("routes absent without handlers", func(t *testing.T) {
		h := newTestServer(new(MockService), nil)
		assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/metrics", "").Code)
		assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/ws", "").Code)
	})
}
