package models

import "time"

// Enrollment records a student taking a discipline. Rows are created and
// deleted, never updated.
type Enrollment struct {
	ID           int64     `db:"id" json:"id"`
	Code         string    `db:"enrollment_code" json:"code"`
	StudentID    int64     `db:"student_id" json:"student_id"`
	DisciplineID int64     `db:"discipline_id" json:"discipline_id"`
	EnrolledAt   time.Time `db:"enrolled_at" json:"enrolled_at"`
}

// EnrollmentDetail enriches Enrollment with catalog data for display.
type EnrollmentDetail struct {
	Enrollment
	DisciplineName   string `json:"discipline_name"`
	DisciplineCourse string `json:"discipline_course"`
}

// EnrollmentLimits carries the ceilings enforced when persisting under lock.
type EnrollmentLimits struct {
	Capacity       int
	MaxPerStudent  int
	EnforceCeiling bool
}
