package service

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academic-desk/internal/models"
)

func TestMetricsServiceSnapshot(t *testing.T) {
	m := NewMetricsService()

	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/students/:id", http.StatusOK, 20*time.Millisecond)
	m.ObserveHTTPRequest(http.MethodPost, "/api/v1/enrollments", http.StatusCreated, 40*time.Millisecond)
	m.ObserveCatalogRefresh(CatalogBooks, time.Second, errors.New("timeout"))
	m.ObserveCatalogRefresh(CatalogBooks, time.Second, nil)
	m.RecordCatalogLookup(CatalogBooks, true)
	m.RecordCatalogLookup(CatalogBooks, true)
	m.RecordCatalogLookup(CatalogBooks, true)
	m.RecordCatalogLookup(CatalogBooks, false)
	m.RecordBookingEvent(models.BookingEvent{Kind: models.EventEnrollmentCreated})
	m.RecordBookingEvent(models.BookingEvent{Kind: models.EventEnrollmentRejected, Reason: "NO_SEATS_AVAILABLE"})
	m.ObserveDBQuery("enrollment_insert", 4*time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.RequestsTotal)
	assert.InDelta(t, 30, snap.AverageRequestDurationMs, 0.001)
	assert.Equal(t, uint64(1), snap.CatalogRefreshFailures)
	assert.InDelta(t, 0.75, snap.CatalogHitRatio, 0.0001)
	assert.Equal(t, uint64(1), snap.BookingsAccepted)
	assert.Equal(t, uint64(1), snap.BookingsRejected)
	assert.Equal(t, uint64(1), snap.DBQueryCount)
	assert.Positive(t, snap.Goroutines)
}

func TestMetricsServiceHandlerExposesCollectors(t *testing.T) {
	m := NewMetricsService()
	m.RecordBookingEvent(models.BookingEvent{Kind: models.EventReservationCreated})

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `booking_events_total{kind="reservation.created",reason=""} 1`)
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	m.ObserveHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	m.RecordCatalogLookup(CatalogStudents, true)
	m.RecordBookingEvent(models.BookingEvent{})
	assert.Equal(t, models.DeskMetrics{}, m.Snapshot())

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
