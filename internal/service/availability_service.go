package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-desk/internal/models"
	appErrors "github.com/noah-isme/academic-desk/pkg/errors"
)

// DefaultMaxEnrollments is the per-student enrollment ceiling.
const DefaultMaxEnrollments = 5

type studentCatalog interface {
	ByID(ctx context.Context, id int64) (*models.Student, error)
}

type disciplineCatalog interface {
	ByID(ctx context.Context, id int64) (*models.Discipline, error)
	All(ctx context.Context) ([]models.Discipline, error)
	ByCourse(ctx context.Context, name string) ([]models.Discipline, error)
}

type bookCatalog interface {
	ByID(ctx context.Context, id int64) (*models.Book, error)
	Available(ctx context.Context) ([]models.Book, error)
}

type enrollmentCounter interface {
	CountByStudent(ctx context.Context, studentID int64) (int, error)
	CountByDiscipline(ctx context.Context, disciplineID int64) (int, error)
}

type reservationLookup interface {
	IsBookReserved(ctx context.Context, bookID int64) (bool, error)
	ReservedBookIDs(ctx context.Context) ([]int64, error)
}

// EnrollmentCheck is the outcome of a successful enrollment validation.
type EnrollmentCheck struct {
	Student            models.Student
	Discipline         models.Discipline
	SeatsLeft          int
	CurrentEnrollments int
	Limit              int
}

// AvailabilityService combines remote catalog snapshots with local counts to
// decide whether an enrollment or reservation may happen now.
type AvailabilityService struct {
	students     studentCatalog
	disciplines  disciplineCatalog
	books        bookCatalog
	enrollments  enrollmentCounter
	reservations reservationLookup
	maxPerUser   int
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewAvailabilityService constructs AvailabilityService.
func NewAvailabilityService(students studentCatalog, disciplines disciplineCatalog, books bookCatalog, enrollments enrollmentCounter, reservations reservationLookup, maxPerStudent int, validate *validator.Validate, logger *zap.Logger) *AvailabilityService {
	if maxPerStudent <= 0 {
		maxPerStudent = DefaultMaxEnrollments
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{
		students:     students,
		disciplines:  disciplines,
		books:        books,
		enrollments:  enrollments,
		reservations: reservations,
		maxPerUser:   maxPerStudent,
		validator:    validate,
		logger:       logger,
	}
}

// MaxEnrollments returns the per-student ceiling in force.
func (s *AvailabilityService) MaxEnrollments() int {
	return s.maxPerUser
}

// ParseID validates a raw identifier as a positive decimal number.
func (s *AvailabilityService) ParseID(field, raw string) (int64, error) {
	return parseID(s.validator, field, raw)
}

// LiveSeatCount returns the seats left in a discipline. Malformed ids,
// unknown disciplines and missing capacities all count as zero seats.
func (s *AvailabilityService) LiveSeatCount(ctx context.Context, rawDisciplineID string) (int, error) {
	id, err := s.ParseID("discipline_id", rawDisciplineID)
	if err != nil {
		return 0, nil
	}
	discipline, err := s.disciplines.ByID(ctx, id)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return s.seatsLeft(ctx, discipline)
}

// IsBookReservable reports whether the remote catalog lists the book as
// available and no local reservation holds it.
func (s *AvailabilityService) IsBookReservable(ctx context.Context, bookID int64) (bool, error) {
	book, err := s.books.ByID(ctx, bookID)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !book.RemotelyAvailable() {
		return false, nil
	}
	reserved, err := s.reservations.IsBookReserved(ctx, bookID)
	if err != nil {
		return false, persistenceFailure(err, "failed to check book reservation")
	}
	return !reserved, nil
}

// BookAvailability describes a book's remote flag and local reservation state.
func (s *AvailabilityService) BookAvailability(ctx context.Context, rawBookID string) (*models.BookAvailabilityView, error) {
	id, err := s.ParseID("book_id", rawBookID)
	if err != nil {
		return nil, err
	}
	book, err := s.books.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	reserved, err := s.reservations.IsBookReserved(ctx, id)
	if err != nil {
		return nil, persistenceFailure(err, "failed to check book reservation")
	}
	return &models.BookAvailabilityView{
		Book:            *book,
		LocallyReserved: reserved,
		Reservable:      book.RemotelyAvailable() && !reserved,
	}, nil
}

// ValidateEnrollment applies the enrollment rules in a fixed order and
// returns the first one that fails.
func (s *AvailabilityService) ValidateEnrollment(ctx context.Context, rawStudentID, rawDisciplineID string) (*EnrollmentCheck, error) {
	studentID, err := s.ParseID("student_id", rawStudentID)
	if err != nil {
		return nil, err
	}
	disciplineID, err := s.ParseID("discipline_id", rawDisciplineID)
	if err != nil {
		return nil, err
	}

	student, err := s.students.ByID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	discipline, err := s.disciplines.ByID(ctx, disciplineID)
	if err != nil {
		return nil, err
	}

	if !student.Active() {
		return nil, appErrors.WithDetails(appErrors.ErrInactiveStudent, fmt.Sprintf("student %d is not active", student.ID), map[string]interface{}{
			"student_id": student.ID,
			"status":     string(student.Status),
		})
	}

	current, err := s.enrollments.CountByStudent(ctx, studentID)
	if err != nil {
		return nil, persistenceFailure(err, "failed to count student enrollments")
	}
	if current >= s.maxPerUser {
		return nil, limitExceeded(s.maxPerUser, current)
	}

	seats, err := s.seatsLeft(ctx, discipline)
	if err != nil {
		return nil, err
	}
	if seats <= 0 {
		return nil, noSeats(discipline.ID, seats)
	}

	if !sameCourse(discipline.Course, student.Course) {
		return nil, appErrors.WithDetails(appErrors.ErrCourseMismatch, "discipline does not belong to the student's course", map[string]interface{}{
			"discipline_course": discipline.Course,
			"student_course":    student.Course,
		})
	}

	s.logger.Debug("enrollment validated",
		zap.Int64("student_id", student.ID),
		zap.Int64("discipline_id", discipline.ID),
		zap.Int("seats_left", seats),
		zap.Int("current", current))
	return &EnrollmentCheck{
		Student:            *student,
		Discipline:         *discipline,
		SeatsLeft:          seats,
		CurrentEnrollments: current,
		Limit:              s.maxPerUser,
	}, nil
}

// ValidateReservation checks the id and that the book can be reserved now.
func (s *AvailabilityService) ValidateReservation(ctx context.Context, rawBookID string) (*models.Book, error) {
	bookID, err := s.ParseID("book_id", rawBookID)
	if err != nil {
		return nil, err
	}
	book, err := s.books.ByID(ctx, bookID)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return nil, bookUnavailable(bookID, "not_found")
		}
		return nil, err
	}
	if !book.RemotelyAvailable() {
		return nil, bookUnavailable(bookID, "remote_unavailable")
	}
	reserved, err := s.reservations.IsBookReserved(ctx, bookID)
	if err != nil {
		return nil, persistenceFailure(err, "failed to check book reservation")
	}
	if reserved {
		return nil, bookUnavailable(bookID, "reserved")
	}
	return book, nil
}

// DisciplinesWithSeats lists disciplines of a course, or all when course is
// blank, with their live seat counts.
func (s *AvailabilityService) DisciplinesWithSeats(ctx context.Context, course string) ([]models.DisciplineSeats, error) {
	var (
		disciplines []models.Discipline
		err         error
	)
	if strings.TrimSpace(course) == "" {
		disciplines, err = s.disciplines.All(ctx)
	} else {
		disciplines, err = s.disciplines.ByCourse(ctx, course)
	}
	if err != nil {
		return nil, err
	}
	out := make([]models.DisciplineSeats, 0, len(disciplines))
	for _, d := range disciplines {
		seats, err := s.seatsLeft(ctx, &d)
		if err != nil {
			return nil, err
		}
		out = append(out, models.DisciplineSeats{Discipline: d, SeatsLeft: seats})
	}
	return out, nil
}

// ReservableBooks returns remotely available books not held locally.
func (s *AvailabilityService) ReservableBooks(ctx context.Context) ([]models.Book, error) {
	available, err := s.books.Available(ctx)
	if err != nil {
		return nil, err
	}
	reservedIDs, err := s.reservations.ReservedBookIDs(ctx)
	if err != nil {
		return nil, persistenceFailure(err, "failed to list reserved books")
	}
	reserved := make(map[int64]struct{}, len(reservedIDs))
	for _, id := range reservedIDs {
		reserved[id] = struct{}{}
	}
	books := make([]models.Book, 0, len(available))
	for _, b := range available {
		if _, held := reserved[b.ID]; !held {
			books = append(books, b)
		}
	}
	return books, nil
}

func (s *AvailabilityService) seatsLeft(ctx context.Context, discipline *models.Discipline) (int, error) {
	nominal := discipline.NominalCapacity()
	if nominal <= 0 {
		return 0, nil
	}
	taken, err := s.enrollments.CountByDiscipline(ctx, discipline.ID)
	if err != nil {
		return 0, persistenceFailure(err, "failed to count discipline enrollments")
	}
	if left := nominal - taken; left > 0 {
		return left, nil
	}
	return 0, nil
}

func parseID(validate *validator.Validate, field, raw string) (int64, error) {
	value := strings.TrimSpace(raw)
	if err := validate.Var(value, "required,number"); err != nil {
		return 0, invalidID(field, raw, err)
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, invalidID(field, raw, err)
	}
	return id, nil
}

func invalidID(field, raw string, cause error) *appErrors.Error {
	e := appErrors.WithDetails(appErrors.ErrInvalidInput, fmt.Sprintf("%s must be a positive number", field), map[string]interface{}{
		"field": field,
		"value": raw,
	})
	e.Err = cause
	return e
}

func sameCourse(disciplineCourse, studentCourse string) bool {
	a := strings.TrimSpace(disciplineCourse)
	b := strings.TrimSpace(studentCourse)
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(a, b)
}

func limitExceeded(limit, current int) *appErrors.Error {
	return appErrors.WithDetails(appErrors.ErrEnrollmentLimit, fmt.Sprintf("student already holds %d of %d enrollments", current, limit), map[string]interface{}{
		"limit":   limit,
		"current": current,
	})
}

func noSeats(disciplineID int64, seatsLeft int) *appErrors.Error {
	return appErrors.WithDetails(appErrors.ErrNoSeats, fmt.Sprintf("discipline %d has no seats available", disciplineID), map[string]interface{}{
		"discipline_id": disciplineID,
		"seats_left":    seatsLeft,
	})
}

func bookUnavailable(bookID int64, reason string) *appErrors.Error {
	return appErrors.WithDetails(appErrors.ErrBookUnavailable, fmt.Sprintf("book %d is not available for reservation", bookID), map[string]interface{}{
		"book_id": bookID,
		"reason":  reason,
	})
}

func persistenceFailure(err error, message string) *appErrors.Error {
	return appErrors.Wrap(err, appErrors.ErrPersistenceFailed.Code, appErrors.ErrPersistenceFailed.Status, message)
}
