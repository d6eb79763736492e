// Package erroranalytics keeps a bounded in-process log of rendered errors
// for the admin dashboard.
package erroranalytics

import (
	"context"
	"errors"
	"maps"
	"math"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/academy/internal/apperror"
	"github.com/smallbiznis/academy/internal/clock"
	"go.uber.org/fx"
)

const (
	maxEntries   = 1000
	topErrorsMax = 10

	unknownCode = "UNKNOWN_ERROR"
)

type Range string

const (
	RangeHour Range = "hour"
	RangeDay  Range = "day"
	RangeWeek Range = "week"
)

// ParseRange falls back to a day for anything unrecognised.
func ParseRange(raw string) Range {
	switch Range(raw) {
	case RangeHour, RangeWeek:
		return Range(raw)
	default:
		return RangeDay
	}
}

func (r Range) duration() time.Duration {
	switch r {
	case RangeHour:
		return time.Hour
	case RangeWeek:
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Meta describes the request an error was rendered for. Code and StatusCode
// override the defaults for errors outside the taxonomy.
type Meta struct {
	RequestID  string
	UserAgent  string
	IP         string
	Code       string
	StatusCode int
}

type Entry struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	ErrorCode  string         `json:"errorCode"`
	Category   string         `json:"category"`
	Message    string         `json:"message"`
	StatusCode int            `json:"statusCode"`
	RequestID  string         `json:"requestId"`
	Context    map[string]any `json:"context,omitempty"`
	UserAgent  string         `json:"userAgent,omitempty"`
	IP         string         `json:"ip,omitempty"`
	Resolved   bool           `json:"resolved"`
}

type TopError struct {
	Code           string    `json:"code"`
	Message        string    `json:"message"`
	Count          int       `json:"count"`
	LastOccurrence time.Time `json:"lastOccurrence"`
}

type Metrics struct {
	ErrorCount       int            `json:"errorCount"`
	ErrorsByCategory map[string]int `json:"errorsByCategory"`
	ErrorsByCode     map[string]int `json:"errorsByCode"`
	ErrorsByHour     map[string]int `json:"errorsByHour"`
	TopErrors        []TopError     `json:"topErrors"`
}

type Page struct {
	Errors     []Entry `json:"errors"`
	Total      int     `json:"total"`
	Page       int     `json:"page"`
	Limit      int     `json:"limit"`
	TotalPages int     `json:"totalPages"`
}

type Params struct {
	fx.In

	Clock      clock.Clock
	Registerer prometheus.Registerer `optional:"true"`
}

type Service struct {
	mu      sync.RWMutex
	clock   clock.Clock
	entries []Entry
	counter *prometheus.CounterVec
}

func New(p Params) (*Service, error) {
	registerer := p.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "academy_errors_total",
		Help: "Errors rendered to clients by code and category.",
	}, []string{"code", "category"})
	if err := registerer.Register(counter); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		counter = existing
	}

	return &Service{clock: p.Clock, counter: counter}, nil
}

// Record appends err to the log, dropping the oldest entry past the cap.
func (s *Service) Record(_ context.Context, err error, meta Meta) Entry {
	entry := Entry{
		ID:         ulid.Make().String(),
		Timestamp:  s.clock.Now(),
		ErrorCode:  unknownCode,
		Category:   string(apperror.CategoryInfrastructure),
		StatusCode: http.StatusInternalServerError,
		RequestID:  meta.RequestID,
		UserAgent:  meta.UserAgent,
		IP:         meta.IP,
	}
	if entry.RequestID == "" {
		entry.RequestID = "unknown"
	}
	if err != nil {
		entry.Message = err.Error()
	}
	if appErr, ok := apperror.As(err); ok {
		entry.ErrorCode = appErr.Code()
		entry.Category = string(appErr.Category())
		entry.StatusCode = appErr.StatusCode()
		entry.Context = appErr.Context()
	} else {
		if meta.Code != "" {
			entry.ErrorCode = meta.Code
		}
		if meta.StatusCode != 0 {
			entry.StatusCode = meta.StatusCode
		}
	}

	s.counter.WithLabelValues(entry.ErrorCode, entry.Category).Inc()

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	if over := len(s.entries) - maxEntries; over > 0 {
		s.entries = slices.Clone(s.entries[over:])
	}
	s.mu.Unlock()

	return entry
}

func (s *Service) Metrics(r Range) Metrics {
	since := s.clock.Now().Add(-r.duration())
	out := Metrics{
		ErrorsByCategory: map[string]int{},
		ErrorsByCode:     map[string]int{},
		ErrorsByHour:     map[string]int{},
		TopErrors:        []TopError{},
	}
	latest := map[string]Entry{}

	s.mu.RLock()
	for _, e := range s.entries {
		if e.Timestamp.Before(since) {
			continue
		}
		out.ErrorCount++
		out.ErrorsByCategory[e.Category]++
		out.ErrorsByCode[e.ErrorCode]++
		out.ErrorsByHour[e.Timestamp.UTC().Format("15")]++
		if prev, ok := latest[e.ErrorCode]; !ok || !e.Timestamp.Before(prev.Timestamp) {
			latest[e.ErrorCode] = e
		}
	}
	s.mu.RUnlock()

	for _, code := range slices.Sorted(maps.Keys(out.ErrorsByCode)) {
		last := latest[code]
		out.TopErrors = append(out.TopErrors, TopError{
			Code:           code,
			Message:        last.Message,
			Count:          out.ErrorsByCode[code],
			LastOccurrence: last.Timestamp,
		})
	}
	slices.SortStableFunc(out.TopErrors, func(a, b TopError) int { return b.Count - a.Count })
	if len(out.TopErrors) > topErrorsMax {
		out.TopErrors = out.TopErrors[:topErrorsMax]
	}
	return out
}

// Recent pages through the log newest first. page starts at 1.
func (s *Service) Recent(page, limit int) Page {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	limit = min(limit, maxEntries)

	s.mu.RLock()
	sorted := slices.Clone(s.entries)
	s.mu.RUnlock()
	slices.Reverse(sorted)
	slices.SortStableFunc(sorted, func(a, b Entry) int { return b.Timestamp.Compare(a.Timestamp) })

	out := Page{
		Errors:     []Entry{},
		Total:      len(sorted),
		Page:       page,
		Limit:      limit,
		TotalPages: int(math.Ceil(float64(len(sorted)) / float64(limit))),
	}
	// pages past the end stay empty; checking first keeps the offset from overflowing
	if page-1 < out.TotalPages {
		start := (page - 1) * limit
		out.Errors = sorted[start:min(start+limit, len(sorted))]
	}
	return out
}

func (s *Service) Resolve(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID == id {
			s.entries[i].Resolved = true
			return true
		}
	}
	return false
}

func (s *Service) Clear() {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
}
