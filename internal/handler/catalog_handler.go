package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academic-desk/internal/models"
	appErrors "github.com/noah-isme/academic-desk/pkg/errors"
	"github.com/noah-isme/academic-desk/pkg/response"
)

type studentLookup interface {
	All(ctx context.Context) ([]models.Student, error)
	ByID(ctx context.Context, id int64) (*models.Student, error)
}

type courseLister interface {
	Courses(ctx context.Context) ([]string, error)
}

type bookLister interface {
	All(ctx context.Context) ([]models.Book, error)
}

type availabilityReader interface {
	ParseID(field, raw string) (int64, error)
	LiveSeatCount(ctx context.Context, rawDisciplineID string) (int, error)
	DisciplinesWithSeats(ctx context.Context, course string) ([]models.DisciplineSeats, error)
	ReservableBooks(ctx context.Context) ([]models.Book, error)
	BookAvailability(ctx context.Context, rawBookID string) (*models.BookAvailabilityView, error)
}

// CatalogHandler exposes the read side of the remote catalogs.
type CatalogHandler struct {
	students     studentLookup
	courses      courseLister
	books        bookLister
	availability availabilityReader
}

// NewCatalogHandler constructs CatalogHandler.
func NewCatalogHandler(students studentLookup, courses courseLister, books bookLister, availability availabilityReader) *CatalogHandler {
	return &CatalogHandler{students: students, courses: courses, books: books, availability: availability}
}

// ListStudents godoc
// @Summary List students
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *CatalogHandler) ListStudents(c *gin.Context) {
	students, err := h.students.All(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, map[string]interface{}{"total": len(students)})
}

// GetStudent godoc
// @Summary Get student
// @Tags Catalog
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [get]
func (h *CatalogHandler) GetStudent(c *gin.Context) {
	id, err := h.availability.ParseID("student_id", c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	student, err := h.students.ByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student)
}

// ListCourses godoc
// @Summary List courses offered by the discipline catalog
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *CatalogHandler) ListCourses(c *gin.Context) {
	courses, err := h.courses.Courses(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses)
}

// ListDisciplines godoc
// @Summary List disciplines with live seat counts
// @Tags Catalog
// @Produce json
// @Param course query string false "Course name, matched case-insensitively"
// @Success 200 {object} response.Envelope
// @Router /disciplines [get]
func (h *CatalogHandler) ListDisciplines(c *gin.Context) {
	course := c.Query("course")
	disciplines, err := h.availability.DisciplinesWithSeats(c.Request.Context(), course)
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := map[string]interface{}{"total": len(disciplines)}
	if strings.TrimSpace(course) != "" {
		meta["course"] = course
	}
	response.JSON(c, http.StatusOK, disciplines, meta)
}

// DisciplineSeats godoc
// @Summary Live seat count for a discipline
// @Tags Catalog
// @Produce json
// @Param id path string true "Discipline ID"
// @Success 200 {object} response.Envelope
// @Router /disciplines/{id}/seats [get]
func (h *CatalogHandler) DisciplineSeats(c *gin.Context) {
	raw := c.Param("id")
	seats, err := h.availability.LiveSeatCount(c.Request.Context(), raw)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"discipline_id": raw, "seats_left": seats})
}

// ListBooks godoc
// @Summary List books
// @Tags Catalog
// @Produce json
// @Param available query bool false "Only books that can be reserved now"
// @Success 200 {object} response.Envelope
// @Router /books [get]
func (h *CatalogHandler) ListBooks(c *gin.Context) {
	onlyAvailable := false
	if raw := c.Query("available"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.WithDetails(appErrors.ErrInvalidInput, "available must be a boolean", map[string]interface{}{
				"field": "available",
				"value": raw,
			}))
			return
		}
		onlyAvailable = parsed
	}

	var (
		books []models.Book
		err   error
	)
	if onlyAvailable {
		books, err = h.availability.ReservableBooks(c.Request.Context())
	} else {
		books, err = h.books.All(c.Request.Context())
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, books, map[string]interface{}{"total": len(books)})
}

// BookAvailability godoc
// @Summary Remote and local availability of a book
// @Tags Catalog
// @Produce json
// @Param id path string true "Book ID"
// @Success 200 {object} response.Envelope
// @Router /books/{id}/availability [get]
func (h *CatalogHandler) BookAvailability(c *gin.Context) {
	view, err := h.availability.BookAvailability(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}
