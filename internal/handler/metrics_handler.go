package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academic-desk/internal/models"
	"github.com/noah-isme/academic-desk/internal/service"
	appErrors "github.com/noah-isme/academic-desk/pkg/errors"
	"github.com/noah-isme/academic-desk/pkg/response"
)

type warmupReporter interface {
	Report() (models.WarmupReport, bool)
	Reload(ctx context.Context) models.WarmupReport
}

type catalogState interface {
	Name() string
	LoadedAt() time.Time
	Len() int
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics  *service.MetricsService
	warmup   warmupReporter
	catalogs []catalogState
}

// NewMetricsHandler constructs a metrics handler. Readiness follows the given
// catalogs when any are passed, and the warmup report otherwise.
func NewMetricsHandler(metrics *service.MetricsService, warmup warmupReporter, catalogs ...catalogState) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, warmup: warmup, catalogs: catalogs}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Summary returns the aggregated counters as JSON.
func (h *MetricsHandler) Summary(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.metrics.Snapshot())
}

// Health responds with a generic OK payload for liveness usage.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready answers 503 until every catalog holds a snapshot. A catalog that
// recovers through lazy refresh after a failed warmup turns the endpoint ready.
func (h *MetricsHandler) Ready(c *gin.Context) {
	body := gin.H{}
	ran := false
	if h.warmup != nil {
		var report models.WarmupReport
		report, ran = h.warmup.Report()
		if ran {
			body["warmup"] = report
		}
		if len(h.catalogs) == 0 {
			h.readyFromReport(c, body, report, ran)
			return
		}
	}

	statuses := make([]models.CatalogStatus, 0, len(h.catalogs))
	var missing []string
	for _, catalog := range h.catalogs {
		status := models.CatalogStatus{Catalog: catalog.Name(), Entries: catalog.Len()}
		if loadedAt := catalog.LoadedAt(); !loadedAt.IsZero() {
			loadedAt = loadedAt.UTC()
			status.LoadedAt = &loadedAt
		} else {
			missing = append(missing, catalog.Name())
		}
		statuses = append(statuses, status)
	}
	body["catalogs"] = statuses

	if len(missing) == 0 {
		body["status"] = "ready"
		c.JSON(http.StatusOK, body)
		return
	}
	body["status"] = "degraded"
	if h.warmup != nil && !ran {
		body["status"] = "warming"
	}
	body["failed"] = missing
	c.JSON(http.StatusServiceUnavailable, body)
}

func (h *MetricsHandler) readyFromReport(c *gin.Context, body gin.H, report models.WarmupReport, ran bool) {
	switch {
	case !ran:
		body["status"] = "warming"
		c.JSON(http.StatusServiceUnavailable, body)
	case !report.Ready():
		body["status"] = "degraded"
		body["failed"] = report.Failed()
		c.JSON(http.StatusServiceUnavailable, body)
	default:
		body["status"] = "ready"
		c.JSON(http.StatusOK, body)
	}
}

// ReloadCatalogs godoc
// @Summary Reload the remote catalogs
// @Description Marks every catalog stale, drops the Redis mirror and warms the catalogs again
// @Tags Catalogs
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /catalogs/reload [post]
func (h *MetricsHandler) ReloadCatalogs(c *gin.Context) {
	if h.warmup == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUpstreamUnavailable, "catalog warmup is not configured"))
		return
	}
	report := h.warmup.Reload(c.Request.Context())
	status := http.StatusOK
	if !report.Ready() {
		status = http.StatusServiceUnavailable
	}
	response.JSON(c, status, report, map[string]interface{}{"failed": report.Failed()})
}
