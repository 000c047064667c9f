package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/academic-desk/internal/models"
	"github.com/noah-isme/academic-desk/internal/service"
	"github.com/noah-isme/academic-desk/pkg/enrollcode"
	appErrors "github.com/noah-isme/academic-desk/pkg/errors"
	"github.com/noah-isme/academic-desk/pkg/response"
)

type bookingService interface {
	Enroll(ctx context.Context, req service.EnrollRequest) (*models.Enrollment, error)
	FindEnrollment(ctx context.Context, code string) (*models.Enrollment, error)
	CancelByCode(ctx context.Context, code string) error
	CancelEnrollment(ctx context.Context, rawStudentID, rawDisciplineID string) error
	EnrollmentsByStudent(ctx context.Context, rawStudentID string) ([]models.EnrollmentDetail, error)
	ReservationsByCode(ctx context.Context, code string) ([]models.ReservationDetail, error)
	ReserveBook(ctx context.Context, code string, req service.ReserveRequest) (*models.Reservation, error)
	CancelReservation(ctx context.Context, code, rawBookID string) error
}

// identifier accepts ids sent either as JSON strings or numbers.
type identifier string

func (i *identifier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*i = identifier(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*i = identifier(n.String())
	return nil
}

type enrollPayload struct {
	StudentID    identifier `json:"student_id"`
	DisciplineID identifier `json:"discipline_id"`
}

type reservePayload struct {
	BookID identifier `json:"book_id"`
}

// BookingHandler exposes enrollment and reservation endpoints.
type BookingHandler struct {
	bookings bookingService
}

// NewBookingHandler constructs BookingHandler.
func NewBookingHandler(bookings bookingService) *BookingHandler {
	return &BookingHandler{bookings: bookings}
}

// Enroll godoc
// @Summary Enroll a student in a discipline
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body enrollPayload true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Router /enrollments [post]
func (h *BookingHandler) Enroll(c *gin.Context) {
	var payload enrollPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	enrollment, err := h.bookings.Enroll(c.Request.Context(), service.EnrollRequest{
		StudentID:    string(payload.StudentID),
		DisciplineID: string(payload.DisciplineID),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment, codeMeta(enrollment.Code))
}

// GetEnrollment godoc
// @Summary Get enrollment by code
// @Tags Enrollments
// @Produce json
// @Param code path string true "Enrollment code"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{code} [get]
func (h *BookingHandler) GetEnrollment(c *gin.Context) {
	enrollment, err := h.bookings.FindEnrollment(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, codeMeta(enrollment.Code))
}

// CancelByCode godoc
// @Summary Cancel enrollment by code
// @Tags Enrollments
// @Param code path string true "Enrollment code"
// @Success 204
// @Router /enrollments/{code} [delete]
func (h *BookingHandler) CancelByCode(c *gin.Context) {
	if err := h.bookings.CancelByCode(c.Request.Context(), c.Param("code")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CancelEnrollment godoc
// @Summary Cancel a student's enrollment in a discipline
// @Tags Enrollments
// @Param id path string true "Student ID"
// @Param disciplineId path string true "Discipline ID"
// @Success 204
// @Router /students/{id}/enrollments/{disciplineId} [delete]
func (h *BookingHandler) CancelEnrollment(c *gin.Context) {
	if err := h.bookings.CancelEnrollment(c.Request.Context(), c.Param("id"), c.Param("disciplineId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// StudentEnrollments godoc
// @Summary List a student's enrollments
// @Tags Enrollments
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/enrollments [get]
func (h *BookingHandler) StudentEnrollments(c *gin.Context) {
	enrollments, err := h.bookings.EnrollmentsByStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, map[string]interface{}{"total": len(enrollments)})
}

// ListReservations godoc
// @Summary List reservations held by an enrollment code
// @Tags Reservations
// @Produce json
// @Param code path string true "Enrollment code"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{code}/reservations [get]
func (h *BookingHandler) ListReservations(c *gin.Context) {
	reservations, err := h.bookings.ReservationsByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reservations, map[string]interface{}{"total": len(reservations)})
}

// Reserve godoc
// @Summary Reserve a book
// @Tags Reservations
// @Accept json
// @Produce json
// @Param code path string true "Enrollment code"
// @Param payload body reservePayload true "Reservation payload"
// @Success 201 {object} response.Envelope
// @Router /enrollments/{code}/reservations [post]
func (h *BookingHandler) Reserve(c *gin.Context) {
	var payload reservePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	reservation, err := h.bookings.ReserveBook(c.Request.Context(), c.Param("code"), service.ReserveRequest{
		BookID: string(payload.BookID),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, reservation)
}

// CancelReservation godoc
// @Summary Release a reserved book
// @Tags Reservations
// @Param code path string true "Enrollment code"
// @Param bookId path string true "Book ID"
// @Success 204
// @Router /enrollments/{code}/reservations/{bookId} [delete]
func (h *BookingHandler) CancelReservation(c *gin.Context) {
	if err := h.bookings.CancelReservation(c.Request.Context(), c.Param("code"), c.Param("bookId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func invalidPayload(err error) *appErrors.Error {
	return appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, http.StatusBadRequest, "invalid payload")
}

func codeMeta(code string) map[string]interface{} {
	formatted, err := enrollcode.Format(code)
	if err != nil {
		return nil
	}
	return map[string]interface{}{"formatted_code": formatted}
}
