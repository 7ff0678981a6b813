package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"arbtracker/internal/model"
	"arbtracker/internal/settings"
	"arbtracker/internal/web"
)

const maxSettingsBody = 1 << 16

// Service is what the handlers need from the tracker.
type Service interface {
	CalculateNow(ctx context.Context, usdPurchased *float64) (model.ProfitReport, error)
	History() []model.ProfitReport
	HistorySize() int
	LastRefresh() (model.ProfitReport, bool)
	LatestReport() (model.ProfitReport, bool)
	Settings() model.Settings
	UpdateSettings(u model.SettingsUpdate) (model.Settings, error)
}

// ProfitHandler serves the dashboard and its JSON endpoints.
type ProfitHandler struct {
	Service      Service
	PollInterval time.Duration
}

func (h *ProfitHandler) Register(r *gin.Engine) {
	r.GET("/", h.dashboard)
	r.GET("/get_profit_data", h.profitData)
	r.GET("/get_profit_history", h.profitHistory)
	r.POST("/update_settings", h.updateSettings)
	r.GET("/healthz", h.health)
}

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func (h *ProfitHandler) dashboard(c *gin.Context) {
	var buf bytes.Buffer
	err := web.RenderDashboard(&buf, web.DashboardData{
		Settings:        h.Service.Settings(),
		PollInterval:    h.PollInterval,
		RefreshInterval: time.Minute,
	})
	if err != nil {
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "failed to render dashboard")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (h *ProfitHandler) profitData(c *gin.Context) {
	var usd *float64
	if raw := strings.TrimSpace(c.Query("usd_purchased")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			writeError(c, http.StatusBadRequest, "usd_purchased must be a number")
			return
		}
		usd = &v
	}

	report, err := h.Service.CalculateNow(c.Request.Context(), usd)
	if err != nil {
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "Failed to calculate profit")
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *ProfitHandler) profitHistory(c *gin.Context) {
	reports := h.Service.History()
	if reports == nil {
		reports = []model.ProfitReport{}
	}
	c.JSON(http.StatusOK, reports)
}

func (h *ProfitHandler) updateSettings(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSettingsBody))
	if err != nil {
		writeError(c, http.StatusBadRequest, "could not read request body")
		return
	}
	update, err := parseSettingsUpdate(body)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.Service.UpdateSettings(update); err != nil {
		_ = c.Error(err)
		if errors.Is(err, settings.ErrInvalidValue) {
			writeError(c, http.StatusBadRequest, err.Error())
			return
		}
		writeError(c, http.StatusInternalServerError, "failed to save settings")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *ProfitHandler) health(c *gin.Context) {
	var lastRefresh, latestReport any
	if polled, ok := h.Service.LastRefresh(); ok {
		lastRefresh = polled.Timestamp()
	}
	if latest, ok := h.Service.LatestReport(); ok {
		latestReport = latest.Timestamp()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"last_refresh":  lastRefresh,
		"latest_report": latestReport,
		"history_size":  h.Service.HistorySize(),
	})
}

// parseSettingsUpdate accepts numbers or numeric strings for either key. Other keys are ignored.
func parseSettingsUpdate(body []byte) (model.SettingsUpdate, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return model.SettingsUpdate{}, errors.New("request body must be a JSON object")
	}

	var u model.SettingsUpdate
	for key, dst := range map[string]**float64{
		"initial_investment": &u.InitialInvestment,
		"usd_purchased":      &u.USDPurchased,
	} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		v, err := parseNumber(raw)
		if err != nil {
			return model.SettingsUpdate{}, fmt.Errorf("%s must be a number", key)
		}
		*dst = &v
	}
	return u, nil
}

func parseNumber(raw json.RawMessage) (float64, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(n.String()), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("not finite")
	}
	return v, nil
}
