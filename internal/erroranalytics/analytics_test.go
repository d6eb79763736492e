package erroranalytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/academy/internal/apperror"
	"github.com/smallbiznis/academy/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*Service, *clock.FakeClock) {
	t.Helper()
	fake := clock.NewFakeClock(time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC))
	svc, err := New(Params{Clock: fake, Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	return svc, fake
}

func TestRecordClassifiesErrors(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	typed := svc.Record(ctx, apperror.CourseNotFound("c1"), Meta{RequestID: "req-1", IP: "10.0.0.1"})
	assert.Equal(t, "COURSE_NOT_FOUND", typed.ErrorCode)
	assert.Equal(t, "business", typed.Category)
	assert.Equal(t, 404, typed.StatusCode)
	assert.Equal(t, "c1", typed.Context["courseId"])
	assert.NotEmpty(t, typed.ID)

	plain := svc.Record(ctx, errors.New("boom"), Meta{})
	assert.Equal(t, "UNKNOWN_ERROR", plain.ErrorCode)
	assert.Equal(t, "infrastructure", plain.Category)
	assert.Equal(t, 500, plain.StatusCode)
	assert.Equal(t, "unknown", plain.RequestID)

	assert.Equal(t, 1.0, promtest.ToFloat64(svc.counter.WithLabelValues("COURSE_NOT_FOUND", "business")))
	assert.Equal(t, 1.0, promtest.ToFloat64(svc.counter.WithLabelValues("UNKNOWN_ERROR", "infrastructure")))
}

func TestRecordKeepsLatestEntries(t *testing.T) {
	svc, _ := newService(t)
	for i := 0; i < maxEntries+5; i++ {
		svc.Record(context.Background(), fmt.Errorf("failure %d", i), Meta{})
	}

	page := svc.Recent(1, 1)
	assert.Equal(t, maxEntries, page.Total)
	require.Len(t, page.Errors, 1)
	assert.Equal(t, fmt.Sprintf("failure %d", maxEntries+4), page.Errors[0].Message)
}

func TestMetricsWindow(t *testing.T) {
	svc, fake := newService(t)
	ctx := context.Background()

	svc.Record(ctx, apperror.Unauthorized(""), Meta{})
	fake.Advance(2 * time.Hour)
	svc.Record(ctx, apperror.BookingNotFound("b1"), Meta{})
	svc.Record(ctx, apperror.BookingNotFound("b2"), Meta{})

	hour := svc.Metrics(RangeHour)
	assert.Equal(t, 2, hour.ErrorCount)
	assert.Equal(t, map[string]int{"BOOKING_NOT_FOUND": 2}, hour.ErrorsByCode)
	assert.Equal(t, map[string]int{"11": 2}, hour.ErrorsByHour)
	require.Len(t, hour.TopErrors, 1)
	assert.Equal(t, "Booking with ID b2 not found", hour.TopErrors[0].Message)

	day := svc.Metrics(ParseRange("day"))
	assert.Equal(t, 3, day.ErrorCount)
	assert.Equal(t, map[string]int{"business": 2, "auth": 1}, day.ErrorsByCategory)
	require.Len(t, day.TopErrors, 2)
	assert.Equal(t, "BOOKING_NOT_FOUND", day.TopErrors[0].Code)
}

func TestRecentPaginatesNewestFirst(t *testing.T) {
	svc, fake := newService(t)
	for i := 0; i < 5; i++ {
		svc.Record(context.Background(), fmt.Errorf("e%d", i), Meta{})
		fake.Advance(time.Minute)
	}

	page := svc.Recent(2, 2)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Errors, 2)
	assert.Equal(t, "e2", page.Errors[0].Message)
	assert.Equal(t, "e1", page.Errors[1].Message)

	assert.Empty(t, svc.Recent(4, 2).Errors)
}

func TestRecentHandlesOutOfRangeInput(t *testing.T) {
	svc, _ := newService(t)
	svc.Record(context.Background(), errors.New("only"), Meta{})

	page := svc.Recent(math.MaxInt, 2)
	assert.Empty(t, page.Errors)
	assert.Equal(t, 1, page.Total)

	page = svc.Recent(1, math.MaxInt)
	require.Len(t, page.Errors, 1)
	assert.Equal(t, maxEntries, page.Limit)
}

func TestResolve(t *testing.T) {
	svc, _ := newService(t)
	entry := svc.Record(context.Background(), errors.New("boom"), Meta{})

	assert.True(t, svc.Resolve(entry.ID))
	assert.False(t, svc.Resolve("missing"))
	assert.True(t, svc.Recent(1, 10).Errors[0].Resolved)

	svc.Clear()
	assert.Zero(t, svc.Recent(1, 10).Total)
}
