package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academic-desk/internal/models"
	"github.com/noah-isme/academic-desk/internal/service"
)

type warmupReporterMock struct {
	report  models.WarmupReport
	ran     bool
	reloads int
}

func (m *warmupReporterMock) Report() (models.WarmupReport, bool) { return m.report, m.ran }

func (m *warmupReporterMock) Reload(ctx context.Context) models.WarmupReport {
	m.reloads++
	m.ran = true
	return m.report
}

type catalogStateMock struct {
	name     string
	loadedAt time.Time
	entries  int
}

func (m *catalogStateMock) Name() string        { return m.name }
func (m *catalogStateMock) LoadedAt() time.Time { return m.loadedAt }
func (m *catalogStateMock) Len() int            { return m.entries }

func newHealthRouter(warmup warmupReporter, catalogs ...catalogState) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterRoutes(router, "/api/v1", Handlers{Metrics: NewMetricsHandler(service.NewMetricsService(), warmup, catalogs...)})
	return router
}

func TestReadyFollowsWarmupReport(t *testing.T) {
	warmup := &warmupReporterMock{}
	router := newHealthRouter(warmup)

	resp := performRequest(router, jsonRequest(http.MethodGet, "/ready", ""))
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Contains(t, resp.Body.String(), "warming")

	warmup.ran = true
	warmup.report = models.WarmupReport{Results: []models.WarmupResult{
		{Catalog: "students", Entries: 4},
		{Catalog: "books", Error: "timeout"},
	}}
	resp = performRequest(router, jsonRequest(http.MethodGet, "/ready", ""))
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Contains(t, resp.Body.String(), `"failed":["books"]`)

	warmup.report.Results[1].Error = ""
	resp = performRequest(router, jsonRequest(http.MethodGet, "/ready", ""))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"status":"ready"`)
}

func TestHealthEndpoints(t *testing.T) {
	router := newHealthRouter(nil)

	resp := performRequest(router, jsonRequest(http.MethodGet, "/health", ""))
	require.Equal(t, http.StatusOK, resp.Code)

	resp = performRequest(router, jsonRequest(http.MethodGet, "/ready", ""))
	require.Equal(t, http.StatusOK, resp.Code)

	resp = performRequest(router, jsonRequest(http.MethodGet, "/metrics", ""))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "goroutines_total")

	resp = performRequest(router, jsonRequest(http.MethodGet, "/metrics/summary", ""))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"catalog_hit_ratio"`)
}

func TestReadyFollowsLiveCatalogState(t *testing.T) {
	warmup := &warmupReporterMock{}
	students := &catalogStateMock{name: "students"}
	books := &catalogStateMock{name: "books"}
	router := newHealthRouter(warmup, students, books)

	resp := performRequest(router, jsonRequest(http.MethodGet, "/ready", ""))
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Contains(t, resp.Body.String(), `"status":"warming"`)

	warmup.ran = true
	warmup.report = models.WarmupReport{Results: []models.WarmupResult{
		{Catalog: "students", Entries: 4},
		{Catalog: "books", Error: "timeout"},
	}}
	students.loadedAt = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	students.entries = 4
	resp = performRequest(router, jsonRequest(http.MethodGet, "/ready", ""))
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Contains(t, resp.Body.String(), `"status":"degraded"`)
	assert.Contains(t, resp.Body.String(), `"failed":["books"]`)
	assert.Contains(t, resp.Body.String(), `"loaded_at":"2025-03-10T12:00:00Z"`)

	// books loads later through a regular read; the stale warmup failure no longer matters
	books.loadedAt = students.loadedAt.Add(time.Minute)
	books.entries = 3
	resp = performRequest(router, jsonRequest(http.MethodGet, "/ready", ""))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"status":"ready"`)
	assert.NotContains(t, resp.Body.String(), `"failed"`)
}

func TestReloadCatalogs(t *testing.T) {
	warmup := &warmupReporterMock{report: models.WarmupReport{Results: []models.WarmupResult{
		{Catalog: "students", Entries: 4},
		{Catalog: "books", Error: "timeout"},
	}}}
	router := newHealthRouter(warmup)

	resp := performRequest(router, jsonRequest(http.MethodPost, "/api/v1/catalogs/reload", ""))
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Equal(t, 1, warmup.reloads)
	assert.Contains(t, resp.Body.String(), `"failed":["books"]`)

	warmup.report.Results[1].Error = ""
	resp = performRequest(router, jsonRequest(http.MethodPost, "/api/v1/catalogs/reload", ""))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 2, warmup.reloads)

	resp = performRequest(newHealthRouter(nil), jsonRequest(http.MethodPost, "/api/v1/catalogs/reload", ""))
	require.Equal(t, http.StatusBadGateway, resp.Code)
	assert.Contains(t, resp.Body.String(), "UPSTREAM_UNAVAILABLE")
}
