package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/academy/internal/apperror"
	"github.com/smallbiznis/academy/internal/clock"
	"github.com/smallbiznis/academy/internal/course/domain"
	"github.com/smallbiznis/academy/internal/course/repository"
	"github.com/smallbiznis/academy/internal/course/service"
	"github.com/smallbiznis/academy/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) domain.Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return service.New(service.Params{
		DB:    testutil.NewDB(t),
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
}

func TestCreateGeneratesSlug(t *testing.T) {
	svc := newService(t)

	course, err := svc.Create(context.Background(), domain.CreateCourseRequest{
		Title:       "Intro to Go Concurrency",
		Price:       9900,
		Currency:    "usd",
		IsPublished: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "intro-to-go-concurrency", course.Slug)
	assert.Equal(t, "USD", course.Currency)

	got, err := svc.GetPublished(context.Background(), course.ID)
	require.NoError(t, err)
	assert.Equal(t, course.Title, got.Title)
}

func TestCreateDuplicateSlugMapsToDomainError(t *testing.T) {
	svc := newService(t)
	req := domain.CreateCourseRequest{Title: "Kubernetes Basics", Price: 100, Currency: "EUR"}

	_, err := svc.Create(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), req)
	appErr, ok := apperror.As(err)
	require.True(t, ok, "expected taxonomy error, got %v", err)
	assert.Equal(t, "COURSE_SLUG_EXISTS", appErr.Code())
	assert.Equal(t, "kubernetes-basics", appErr.Context()["slug"])
}

func TestCreateValidatesInput(t *testing.T) {
	svc := newService(t)

	_, err := svc.Create(context.Background(), domain.CreateCourseRequest{Title: "  ", Currency: "USD"})
	assert.True(t, apperror.IsKind(err, apperror.KindFieldValidation))

	zero := 0
	_, err = svc.Create(context.Background(), domain.CreateCourseRequest{Title: "x", Currency: "USD", Capacity: &zero})
	assert.True(t, apperror.IsKind(err, apperror.KindFieldValidation))
}

func TestGetPublishedRejectsDrafts(t *testing.T) {
	svc := newService(t)
	draft, err := svc.Create(context.Background(), domain.CreateCourseRequest{Title: "Draft", Currency: "USD"})
	require.NoError(t, err)

	_, err = svc.GetPublished(context.Background(), draft.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindCourseNotPublished))

	_, err = svc.GetByID(context.Background(), "missing")
	assert.True(t, apperror.IsKind(err, apperror.KindCourseNotFound))

	list, err := svc.ListPublished(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}
