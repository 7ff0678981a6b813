// Package web renders the dashboard page that consumes the JSON endpoints.
package web

import (
	"embed"
	"html/template"
	"io"
	"time"

	"arbtracker/internal/model"
)

//go:embed templates/*.html
var templatesFS embed.FS

var dashboardTmpl = template.Must(template.ParseFS(templatesFS, "templates/dashboard.html"))

// DashboardData is the view model of the dashboard page.
type DashboardData struct {
	Settings        model.Settings
	PollInterval    time.Duration
	RefreshInterval time.Duration
}

// RenderDashboard writes the dashboard page.
func RenderDashboard(w io.Writer, data DashboardData) error {
	return dashboardTmpl.Execute(w, data)
}
