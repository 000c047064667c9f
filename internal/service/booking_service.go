package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-desk/internal/models"
	"github.com/noah-isme/academic-desk/internal/repository"
	"github.com/noah-isme/academic-desk/pkg/enrollcode"
	appErrors "github.com/noah-isme/academic-desk/pkg/errors"
)

const catalogEntryMissing = "not found"

// codeAttempts bounds how many codes one enrollment may try when concurrent
// writers allocate the same sequence.
const codeAttempts = 5

type enrollmentStore interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	CreateGuarded(ctx context.Context, enrollment *models.Enrollment, limits models.EnrollmentLimits) error
	DeleteByKey(ctx context.Context, studentID, disciplineID int64) (int64, error)
	DeleteByCode(ctx context.Context, code string) (int64, error)
	ListByStudent(ctx context.Context, studentID int64) ([]models.Enrollment, error)
	Exists(ctx context.Context, studentID, disciplineID int64) (bool, error)
	FindByCode(ctx context.Context, code string) (*models.Enrollment, error)
}

type reservationStore interface {
	Create(ctx context.Context, reservation *models.Reservation) error
	Delete(ctx context.Context, studentID, bookID int64) (int64, error)
	ListByStudent(ctx context.Context, studentID int64) ([]models.Reservation, error)
	Exists(ctx context.Context, studentID, bookID int64) (bool, error)
}

type dbObserver interface {
	ObserveDBQuery(label string, duration time.Duration)
}

// EnrollRequest describes an enrollment attempt.
type EnrollRequest struct {
	StudentID    string `json:"student_id" validate:"required"`
	DisciplineID string `json:"discipline_id" validate:"required"`
}

// ReserveRequest describes a reservation attempt for an enrollment code.
type ReserveRequest struct {
	BookID string `json:"book_id" validate:"required"`
}

// BookingOptions tunes BookingService.
type BookingOptions struct {
	// Guarded persists enrollments through CreateGuarded so capacity and the
	// per-student limit are re-checked under lock.
	Guarded  bool
	Sequence enrollcode.SequenceSource
	Events   []EventSink
	Metrics  dbObserver
	Now      func() time.Time
}

// BookingService runs the validated create and cancel flows for enrollments
// and reservations.
type BookingService struct {
	availability *AvailabilityService
	disciplines  disciplineCatalog
	books        bookCatalog
	enrollments  enrollmentStore
	reservations reservationStore
	guarded      bool
	sequence     enrollcode.SequenceSource
	events       *eventPublisher
	metrics      dbObserver
	now          func() time.Time
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewBookingService constructs BookingService.
func NewBookingService(availability *AvailabilityService, disciplines disciplineCatalog, books bookCatalog, enrollments enrollmentStore, reservations reservationStore, opts BookingOptions, validate *validator.Validate, logger *zap.Logger) *BookingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sequence == nil {
		opts.Sequence = enrollcode.ClockSequence{Now: opts.Now}
	}
	return &BookingService{
		availability: availability,
		disciplines:  disciplines,
		books:        books,
		enrollments:  enrollments,
		reservations: reservations,
		guarded:      opts.Guarded,
		sequence:     opts.Sequence,
		events:       newEventPublisher(opts.Now, opts.Events...),
		metrics:      opts.Metrics,
		now:          opts.Now,
		validator:    validate,
		logger:       logger,
	}
}

// Enroll validates the request, issues an enrollment code and persists the enrollment.
func (s *BookingService) Enroll(ctx context.Context, req EnrollRequest) (*models.Enrollment, error) {
	event := models.BookingEvent{Kind: models.EventEnrollmentRejected}
	if err := s.validator.Struct(req); err != nil {
		return nil, s.reject(ctx, event, appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, appErrors.ErrInvalidInput.Status, "invalid enrollment payload"))
	}
	check, err := s.availability.ValidateEnrollment(ctx, req.StudentID, req.DisciplineID)
	if err != nil {
		return nil, s.reject(ctx, event, err)
	}
	event.StudentID = check.Student.ID
	event.DisciplineID = check.Discipline.ID

	exists, err := s.enrollments.Exists(ctx, check.Student.ID, check.Discipline.ID)
	if err != nil {
		return nil, s.reject(ctx, event, persistenceFailure(err, "failed to check existing enrollment"))
	}
	if exists {
		return nil, s.reject(ctx, event, duplicateEnrollment(check.Student.ID, check.Discipline.ID))
	}

	issuedAt := s.now().UTC()
	var enrollment *models.Enrollment
	for attempt := 1; ; attempt++ {
		code, err := s.issueCode(ctx, issuedAt)
		if err != nil {
			return nil, s.reject(ctx, event, err)
		}
		event.Code = code

		enrollment = &models.Enrollment{
			Code:         code,
			StudentID:    check.Student.ID,
			DisciplineID: check.Discipline.ID,
			EnrolledAt:   issuedAt,
		}
		err = s.persistEnrollment(ctx, enrollment, check)
		if err == nil {
			break
		}
		// A concurrent enrollment took the same code; the next allocation sees it.
		if errors.Is(err, repository.ErrDuplicateCode) && attempt < codeAttempts {
			s.logger.Warn("enrollment code collision, reissuing",
				zap.String("code", code),
				zap.Int("attempt", attempt))
			continue
		}
		return nil, s.reject(ctx, event, err)
	}

	s.events.publish(ctx, models.BookingEvent{
		Kind:         models.EventEnrollmentCreated,
		StudentID:    enrollment.StudentID,
		DisciplineID: enrollment.DisciplineID,
		Code:         enrollment.Code,
		Context: map[string]interface{}{
			"seats_left": check.SeatsLeft - 1,
			"held":       check.CurrentEnrollments + 1,
			"limit":      check.Limit,
		},
	})
	return enrollment, nil
}

// CancelByCode deletes the enrollment identified by code.
func (s *BookingService) CancelByCode(ctx context.Context, code string) error {
	event := models.BookingEvent{Kind: models.EventCancellationRejected, Code: code}
	normalized, err := normalizeCode(code)
	if err != nil {
		return s.reject(ctx, event, err)
	}
	start := time.Now()
	affected, err := s.enrollments.DeleteByCode(ctx, normalized)
	s.observe("enrollment_delete_by_code", start)
	if err != nil {
		return s.reject(ctx, event, persistenceFailure(err, "failed to cancel enrollment"))
	}
	if affected == 0 {
		return s.reject(ctx, event, appErrors.WithDetails(appErrors.ErrNotFound, "enrollment not found", map[string]interface{}{
			"code": normalized,
		}))
	}
	s.events.publish(ctx, models.BookingEvent{Kind: models.EventEnrollmentCancelled, Code: normalized})
	return nil
}

// CancelEnrollment deletes a student's enrollment in a discipline.
func (s *BookingService) CancelEnrollment(ctx context.Context, rawStudentID, rawDisciplineID string) error {
	event := models.BookingEvent{Kind: models.EventCancellationRejected}
	studentID, err := s.availability.ParseID("student_id", rawStudentID)
	if err != nil {
		return s.reject(ctx, event, err)
	}
	disciplineID, err := s.availability.ParseID("discipline_id", rawDisciplineID)
	if err != nil {
		return s.reject(ctx, event, err)
	}
	event.StudentID, event.DisciplineID = studentID, disciplineID

	start := time.Now()
	affected, err := s.enrollments.DeleteByKey(ctx, studentID, disciplineID)
	s.observe("enrollment_delete_by_key", start)
	if err != nil {
		return s.reject(ctx, event, persistenceFailure(err, "failed to cancel enrollment"))
	}
	if affected == 0 {
		return s.reject(ctx, event, appErrors.WithDetails(appErrors.ErrNotFound, "enrollment not found", map[string]interface{}{
			"student_id":    studentID,
			"discipline_id": disciplineID,
		}))
	}
	s.events.publish(ctx, models.BookingEvent{Kind: models.EventEnrollmentCancelled, StudentID: studentID, DisciplineID: disciplineID})
	return nil
}

// FindEnrollment returns the enrollment identified by code.
func (s *BookingService) FindEnrollment(ctx context.Context, code string) (*models.Enrollment, error) {
	normalized, err := normalizeCode(code)
	if err != nil {
		return nil, err
	}
	enrollment, err := s.enrollments.FindByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.WithDetails(appErrors.ErrNotFound, "enrollment not found", map[string]interface{}{
				"code": normalized,
			})
		}
		return nil, persistenceFailure(err, "failed to load enrollment")
	}
	return enrollment, nil
}

// ReserveBook reserves a book for the student holding the enrollment code.
func (s *BookingService) ReserveBook(ctx context.Context, code string, req ReserveRequest) (*models.Reservation, error) {
	event := models.BookingEvent{Kind: models.EventReservationRejected, Code: code}
	enrollment, err := s.FindEnrollment(ctx, code)
	if err != nil {
		return nil, s.reject(ctx, event, err)
	}
	event.StudentID = enrollment.StudentID
	event.Code = enrollment.Code

	if err := s.validator.Struct(req); err != nil {
		return nil, s.reject(ctx, event, appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, appErrors.ErrInvalidInput.Status, "invalid reservation payload"))
	}

	book, err := s.availability.ValidateReservation(ctx, req.BookID)
	if err != nil {
		return nil, s.reject(ctx, event, err)
	}
	event.BookID = book.ID

	exists, err := s.reservations.Exists(ctx, enrollment.StudentID, book.ID)
	if err != nil {
		return nil, s.reject(ctx, event, persistenceFailure(err, "failed to check existing reservation"))
	}
	if exists {
		return nil, s.reject(ctx, event, duplicateReservation(enrollment.StudentID, book.ID))
	}

	reservation := &models.Reservation{StudentID: enrollment.StudentID, BookID: book.ID, ReservedAt: s.now().UTC()}
	start := time.Now()
	err = s.reservations.Create(ctx, reservation)
	s.observe("reservation_insert", start)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateReservation):
			err = duplicateReservation(enrollment.StudentID, book.ID)
		case errors.Is(err, repository.ErrBookAlreadyReserved):
			err = bookUnavailable(book.ID, "reserved")
		default:
			err = persistenceFailure(err, "failed to create reservation")
		}
		return nil, s.reject(ctx, event, err)
	}

	s.events.publish(ctx, models.BookingEvent{
		Kind:      models.EventReservationCreated,
		StudentID: reservation.StudentID,
		BookID:    reservation.BookID,
		Code:      enrollment.Code,
		Context:   map[string]interface{}{"title": book.Title},
	})
	return reservation, nil
}

// CancelReservation releases a book held by the student behind code.
func (s *BookingService) CancelReservation(ctx context.Context, code, rawBookID string) error {
	event := models.BookingEvent{Kind: models.EventCancellationRejected, Code: code}
	enrollment, err := s.FindEnrollment(ctx, code)
	if err != nil {
		return s.reject(ctx, event, err)
	}
	event.StudentID = enrollment.StudentID
	bookID, err := s.availability.ParseID("book_id", rawBookID)
	if err != nil {
		return s.reject(ctx, event, err)
	}
	event.BookID = bookID

	exists, err := s.reservations.Exists(ctx, enrollment.StudentID, bookID)
	if err != nil {
		return s.reject(ctx, event, persistenceFailure(err, "failed to check reservation"))
	}
	if !exists {
		return s.reject(ctx, event, appErrors.WithDetails(appErrors.ErrNotFound, "reservation not found", map[string]interface{}{
			"student_id": enrollment.StudentID,
			"book_id":    bookID,
		}))
	}
	start := time.Now()
	affected, err := s.reservations.Delete(ctx, enrollment.StudentID, bookID)
	s.observe("reservation_delete", start)
	if err != nil {
		return s.reject(ctx, event, persistenceFailure(err, "failed to cancel reservation"))
	}
	if affected == 0 {
		return s.reject(ctx, event, appErrors.Clone(appErrors.ErrNotFound, "reservation not found"))
	}
	s.events.publish(ctx, models.BookingEvent{
		Kind:      models.EventReservationCancelled,
		StudentID: enrollment.StudentID,
		BookID:    bookID,
		Code:      enrollment.Code,
	})
	return nil
}

// EnrollmentsByStudent lists a student's enrollments with discipline names.
// Disciplines missing from the catalog are labelled instead of failing the listing.
func (s *BookingService) EnrollmentsByStudent(ctx context.Context, rawStudentID string) ([]models.EnrollmentDetail, error) {
	studentID, err := s.availability.ParseID("student_id", rawStudentID)
	if err != nil {
		return nil, err
	}
	enrollments, err := s.enrollments.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, persistenceFailure(err, "failed to list enrollments")
	}
	details := make([]models.EnrollmentDetail, 0, len(enrollments))
	for _, e := range enrollments {
		detail := models.EnrollmentDetail{Enrollment: e, DisciplineName: catalogEntryMissing}
		discipline, err := s.disciplines.ByID(ctx, e.DisciplineID)
		switch {
		case err == nil:
			detail.DisciplineName = discipline.Name
			detail.DisciplineCourse = discipline.Course
		case !errors.Is(err, appErrors.ErrNotFound):
			s.logger.Warn("discipline lookup failed", zap.Int64("discipline_id", e.DisciplineID), zap.Error(err))
		}
		details = append(details, detail)
	}
	return details, nil
}

// ReservationsByCode lists the reservations of the student behind code with book titles.
func (s *BookingService) ReservationsByCode(ctx context.Context, code string) ([]models.ReservationDetail, error) {
	enrollment, err := s.FindEnrollment(ctx, code)
	if err != nil {
		return nil, err
	}
	reservations, err := s.reservations.ListByStudent(ctx, enrollment.StudentID)
	if err != nil {
		return nil, persistenceFailure(err, "failed to list reservations")
	}
	details := make([]models.ReservationDetail, 0, len(reservations))
	for _, r := range reservations {
		detail := models.ReservationDetail{Reservation: r, BookTitle: catalogEntryMissing}
		book, err := s.books.ByID(ctx, r.BookID)
		switch {
		case err == nil:
			detail.BookTitle = book.Title
			detail.BookAuthor = book.Author
		case !errors.Is(err, appErrors.ErrNotFound):
			s.logger.Warn("book lookup failed", zap.Int64("book_id", r.BookID), zap.Error(err))
		}
		details = append(details, detail)
	}
	return details, nil
}

func (s *BookingService) issueCode(ctx context.Context, at time.Time) (string, error) {
	year, term := at.Year(), enrollcode.TermOf(at)
	seq, err := s.sequence.Next(ctx, year, term)
	if err != nil {
		return "", persistenceFailure(err, "failed to allocate enrollment sequence")
	}
	if seq > enrollcode.MaxSequence {
		return "", appErrors.WithDetails(appErrors.ErrPersistenceFailed, fmt.Sprintf("enrollment sequence exhausted for %d term %d", year, term), map[string]interface{}{
			"year":     year,
			"term":     term,
			"sequence": seq,
			"max":      enrollcode.MaxSequence,
		})
	}
	code, err := enrollcode.Generate(year, term, seq)
	if err != nil {
		return "", appErrors.WithDetails(appErrors.ErrPersistenceFailed, "failed to issue enrollment code", map[string]interface{}{
			"year":     year,
			"term":     term,
			"sequence": seq,
		})
	}
	return code, nil
}

func (s *BookingService) persistEnrollment(ctx context.Context, enrollment *models.Enrollment, check *EnrollmentCheck) error {
	start := time.Now()
	var err error
	if s.guarded {
		err = s.enrollments.CreateGuarded(ctx, enrollment, models.EnrollmentLimits{
			Capacity:       check.Discipline.NominalCapacity(),
			MaxPerStudent:  check.Limit,
			EnforceCeiling: true,
		})
	} else {
		err = s.enrollments.Create(ctx, enrollment)
	}
	s.observe("enrollment_insert", start)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrDuplicateEnrollment):
		return duplicateEnrollment(enrollment.StudentID, enrollment.DisciplineID)
	case errors.Is(err, repository.ErrDisciplineFull):
		return noSeats(enrollment.DisciplineID, 0)
	case errors.Is(err, repository.ErrStudentLimitReached):
		return limitExceeded(check.Limit, check.Limit)
	case errors.Is(err, repository.ErrDuplicateCode):
		e := appErrors.WithDetails(appErrors.ErrPersistenceFailed, "enrollment code collision", map[string]interface{}{
			"code": enrollment.Code,
		})
		e.Err = err
		return e
	}
	return persistenceFailure(err, "failed to create enrollment")
}

func (s *BookingService) reject(ctx context.Context, event models.BookingEvent, err error) error {
	appErr := appErrors.FromError(err)
	event.Reason = appErr.Code
	event.Context = appErr.Details
	s.events.publish(ctx, event)
	return appErr
}

func (s *BookingService) observe(label string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveDBQuery(label, time.Since(start))
	}
}

func normalizeCode(code string) (string, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return "", appErrors.WithDetails(appErrors.ErrInvalidInput, "enrollment code is required", map[string]interface{}{
			"field": "code",
		})
	}
	if _, err := enrollcode.Parse(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}

func duplicateEnrollment(studentID, disciplineID int64) *appErrors.Error {
	return appErrors.WithDetails(appErrors.ErrDuplicateEnrollment, fmt.Sprintf("student %d already enrolled in discipline %d", studentID, disciplineID), map[string]interface{}{
		"student_id":    studentID,
		"discipline_id": disciplineID,
	})
}

func duplicateReservation(studentID, bookID int64) *appErrors.Error {
	return appErrors.WithDetails(appErrors.ErrDuplicateReservation, fmt.Sprintf("student %d already reserved book %d", studentID, bookID), map[string]interface{}{
		"student_id": studentID,
		"book_id":    bookID,
	})
}

type sequenceStore interface {
	NextSequence(ctx context.Context, prefix string) (int, error)
}

// StoreSequence allocates sequences from the highest code already stored for
// the year and term.
type StoreSequence struct {
	store sequenceStore
}

// NewStoreSequence constructs a store backed sequence source.
func NewStoreSequence(store sequenceStore) *StoreSequence {
	return &StoreSequence{store: store}
}

// Next implements enrollcode.SequenceSource.
func (s *StoreSequence) Next(ctx context.Context, year, term int) (int, error) {
	return s.store.NextSequence(ctx, enrollcode.Prefix(year, term))
}
