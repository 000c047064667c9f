package handler

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/academic-desk/api/swagger"
)

// Handlers groups the HTTP handlers mounted by RegisterRoutes.
type Handlers struct {
	Catalog *CatalogHandler
	Booking *BookingHandler
	Metrics *MetricsHandler
	// Docs mounts the Swagger UI under /docs.
	Docs bool
}

// RegisterRoutes mounts the health endpoints at the root and the desk API under prefix.
func RegisterRoutes(r gin.IRouter, prefix string, h Handlers) {
	if h.Metrics != nil {
		r.GET("/health", h.Metrics.Health)
		r.GET("/ready", h.Metrics.Ready)
		r.GET("/metrics", h.Metrics.Prometheus)
		r.GET("/metrics/summary", h.Metrics.Summary)
	}
	if h.Docs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(prefix)
	if h.Metrics != nil {
		api.POST("/catalogs/reload", h.Metrics.ReloadCatalogs)
	}
	if c := h.Catalog; c != nil {
		api.GET("/students", c.ListStudents)
		api.GET("/students/:id", c.GetStudent)
		api.GET("/courses", c.ListCourses)
		api.GET("/disciplines", c.ListDisciplines)
		api.GET("/disciplines/:id/seats", c.DisciplineSeats)
		api.GET("/books", c.ListBooks)
		api.GET("/books/:id/availability", c.BookAvailability)
	}
	if b := h.Booking; b != nil {
		api.GET("/students/:id/enrollments", b.StudentEnrollments)
		api.DELETE("/students/:id/enrollments/:disciplineId", b.CancelEnrollment)

		enrollments := api.Group("/enrollments")
		enrollments.POST("", b.Enroll)
		enrollments.GET("/:code", b.GetEnrollment)
		enrollments.DELETE("/:code", b.CancelByCode)
		enrollments.GET("/:code/reservations", b.ListReservations)
		enrollments.POST("/:code/reservations", b.Reserve)
		enrollments.DELETE("/:code/reservations/:bookId", b.CancelReservation)
	}
}
