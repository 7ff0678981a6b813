// Package settings owns the two user-adjustable calculation inputs and their
// key=value file.
package settings

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/joho/godotenv"

	"arbtracker/internal/model"
)

// Keys written to the settings file.
const (
	InitialInvestmentKey = "RANDS"
	USDPurchasedKey      = "USD_PURCHASED"
)

// ErrInvalidValue is returned for non-finite setting values.
var ErrInvalidValue = errors.New("invalid settings value")

// Store keeps the current Settings in memory and mirrors changes to a file.
type Store struct {
	logger *slog.Logger
	path   string

	mu      sync.Mutex
	current model.Settings
}

// NewStore creates a Store backed by path holding initial.
func NewStore(logger *slog.Logger, path string, initial model.Settings) *Store {
	return &Store{logger: logger, path: path, current: initial}
}

// Load creates a Store seeded from the file at path. A key set in the process environment takes
// precedence over the file. Keys found in neither, or a missing file, fall back to fallback.
func Load(logger *slog.Logger, path string, fallback model.Settings) (*Store, error) {
	values, err := godotenv.Read(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read settings %s: %w", path, err)
	}

	current := fallback
	if err := parseInto(values, InitialInvestmentKey, &current.InitialInvestment); err != nil {
		return nil, err
	}
	if err := parseInto(values, USDPurchasedKey, &current.USDPurchased); err != nil {
		return nil, err
	}
	return NewStore(logger, path, current), nil
}

func parseInto(values map[string]string, key string, dst *float64) error {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		raw = values[key]
	}
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("settings %s=%q: %w", key, raw, ErrInvalidValue)
	}
	if err := validate(&v); err != nil {
		return fmt.Errorf("settings %s=%q: %w", key, raw, err)
	}
	*dst = v
	return nil
}

// Get returns the current settings.
func (s *Store) Get() model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Update applies the non-nil fields of u, rewrites the settings file and returns the result.
// The file rewrite and the in-memory change happen under one lock; on any error neither is changed.
func (s *Store) Update(u model.SettingsUpdate) (model.Settings, error) {
	if err := validate(u.InitialInvestment); err != nil {
		return model.Settings{}, fmt.Errorf("initial_investment: %w", err)
	}
	if err := validate(u.USDPurchased); err != nil {
		return model.Settings{}, fmt.Errorf("usd_purchased: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	if u.InitialInvestment != nil {
		next.InitialInvestment = *u.InitialInvestment
	}
	if u.USDPurchased != nil {
		next.USDPurchased = *u.USDPurchased
	}

	if err := s.persist(next); err != nil {
		return model.Settings{}, err
	}
	s.current = next
	s.logger.Info("Settings updated",
		"initialInvestment", next.InitialInvestment,
		"usdPurchased", next.USDPurchased,
	)
	return next, nil
}

func validate(v *float64) error {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return ErrInvalidValue
	}
	return nil
}

// persist rewrites only the two managed lines of the file, appending them when absent.
func (s *Store) persist(next model.Settings) error {
	content, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read settings %s: %w", s.path, err)
	}

	updated := RewriteLines(content, []Entry{
		{Key: InitialInvestmentKey, Value: formatFloat(next.InitialInvestment)},
		{Key: USDPurchasedKey, Value: formatFloat(next.USDPurchased)},
	})

	return writeFileAtomic(s.path, updated)
}

// Entry is one KEY=value line.
type Entry struct {
	Key   string
	Value string
}

// RewriteLines replaces every line starting with "KEY=" for the given entries and leaves all
// other lines byte-for-byte intact. Entries with no matching line are appended in order.
func RewriteLines(content []byte, entries []Entry) []byte {
	seen := make([]bool, len(entries))
	var out bytes.Buffer
	for _, line := range bytes.SplitAfter(content, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		replaced := false
		for i, e := range entries {
			if !bytes.HasPrefix(line, []byte(e.Key+"=")) {
				continue
			}
			out.WriteString(e.Key + "=" + e.Value + "\n")
			seen[i] = true
			replaced = true
			break
		}
		if !replaced {
			out.Write(line)
		}
	}

	for i, e := range entries {
		if seen[i] {
			continue
		}
		if out.Len() > 0 && !bytes.HasSuffix(out.Bytes(), []byte("\n")) {
			out.WriteByte('\n')
		}
		out.WriteString(e.Key + "=" + e.Value + "\n")
	}
	return out.Bytes()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeFileAtomic(path string, data []byte) error {
	mode := os.FileMode(0o600)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("write settings %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings %s: %w", path, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write settings %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("write settings %s: %w", path, err)
	}
	return nil
}
