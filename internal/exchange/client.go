package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
)

// ErrUnavailable is returned when a rate cannot be obtained for any reason.
var ErrUnavailable = errors.New("rate unavailable")

// RateClient defines the standard interface for all rate providers.
type RateClient interface {
	GetName() string
	FetchRate(ctx context.Context) (float64, error)
}

// maxBodyBytes caps how much of an upstream response is read.
const maxBodyBytes = 1 << 20

func unavailable(source, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", source, ErrUnavailable, fmt.Sprintf(format, args...))
}

// getJSON issues a GET and decodes a 2xx JSON body into out.
func getJSON(ctx context.Context, hc *http.Client, source, url string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return unavailable(source, "build request: %v", err)
	}
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return unavailable(source, "request: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return unavailable(source, "read body: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return unavailable(source, "status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return unavailable(source, "decode: %v", err)
	}
	return nil
}

// parsePositive accepts a JSON number or a numeric JSON string.
func parsePositive(raw json.RawMessage) (float64, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, false
	}
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unq)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
