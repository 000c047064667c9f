package models

import "time"

// DeskMetrics is a point-in-time summary of the process counters.
type DeskMetrics struct {
	CatalogHitRatio          float64   `json:"catalog_hit_ratio"`
	CatalogHits              uint64    `json:"catalog_hits"`
	CatalogMisses            uint64    `json:"catalog_misses"`
	CatalogRefreshFailures   uint64    `json:"catalog_refresh_failures"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	BookingsAccepted         uint64    `json:"bookings_accepted"`
	BookingsRejected         uint64    `json:"bookings_rejected"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
