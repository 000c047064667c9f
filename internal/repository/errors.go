package repository

import (
	"errors"

	"github.com/lib/pq"
)

// Constraint names declared in migrations/0001_booking.sql.
const (
	constraintEnrollmentCode       = "enrollments_code_key"
	constraintEnrollmentStudentKey = "enrollments_student_discipline_key"
	constraintReservationStudent   = "reservations_student_book_key"
	constraintReservationBook      = "reservations_book_key"

	uniqueViolation pq.ErrorCode = "23505"
)

// Store level outcomes that services translate into domain errors.
var (
	ErrDuplicateEnrollment  = errors.New("enrollment already exists for student and discipline")
	ErrDuplicateCode        = errors.New("enrollment code already issued")
	ErrDuplicateReservation = errors.New("reservation already exists for student and book")
	ErrBookAlreadyReserved  = errors.New("book already reserved")
	ErrDisciplineFull       = errors.New("discipline has no seats left")
	ErrStudentLimitReached  = errors.New("student reached the enrollment limit")
)

func uniqueConstraint(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

func classifyEnrollmentInsert(err error) error {
	constraint, ok := uniqueConstraint(err)
	if !ok {
		return nil
	}
	switch constraint {
	case constraintEnrollmentStudentKey:
		return ErrDuplicateEnrollment
	case constraintEnrollmentCode:
		return ErrDuplicateCode
	}
	return nil
}

func classifyReservationInsert(err error) error {
	constraint, ok := uniqueConstraint(err)
	if !ok {
		return nil
	}
	switch constraint {
	case constraintReservationStudent:
		return ErrDuplicateReservation
	case constraintReservationBook:
		return ErrBookAlreadyReserved
	}
	return nil
}
