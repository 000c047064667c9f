package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academic-desk/internal/models"
)

const enrollmentColumns = `id, enrollment_code, student_id, discipline_id, enrolled_at`

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Create inserts an enrollment and fills its generated id. Unique violations
// surface as ErrDuplicateEnrollment or ErrDuplicateCode.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	const query = `INSERT INTO enrollments (enrollment_code, student_id, discipline_id, enrolled_at)
        VALUES ($1, $2, $3, $4) RETURNING id`
	err := r.db.QueryRowxContext(ctx, query, enrollment.Code, enrollment.StudentID, enrollment.DisciplineID, enrollment.EnrolledAt).
		Scan(&enrollment.ID)
	if err != nil {
		if classified := classifyEnrollmentInsert(err); classified != nil {
			return fmt.Errorf("create enrollment: %w", classified)
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// CreateGuarded inserts an enrollment inside a transaction that serialises
// writers per discipline and per student with advisory locks, then re-checks
// the seat ceiling and the per-student limit before inserting.
func (r *EnrollmentRepository) CreateGuarded(ctx context.Context, enrollment *models.Enrollment, limits models.EnrollmentLimits) (err error) {
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enrollment transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const lockQuery = `SELECT pg_advisory_xact_lock(hashtext($1))`
	if _, err = tx.ExecContext(ctx, lockQuery, fmt.Sprintf("discipline:%d", enrollment.DisciplineID)); err != nil {
		return fmt.Errorf("lock discipline: %w", err)
	}
	if _, err = tx.ExecContext(ctx, lockQuery, fmt.Sprintf("student:%d", enrollment.StudentID)); err != nil {
		return fmt.Errorf("lock student: %w", err)
	}

	if limits.EnforceCeiling {
		var taken int
		if err = tx.GetContext(ctx, &taken, `SELECT COUNT(*) FROM enrollments WHERE discipline_id = $1`, enrollment.DisciplineID); err != nil {
			return fmt.Errorf("count discipline enrollments: %w", err)
		}
		if taken >= limits.Capacity {
			return ErrDisciplineFull
		}
	}
	if limits.MaxPerStudent > 0 {
		var current int
		if err = tx.GetContext(ctx, &current, `SELECT COUNT(*) FROM enrollments WHERE student_id = $1`, enrollment.StudentID); err != nil {
			return fmt.Errorf("count student enrollments: %w", err)
		}
		if current >= limits.MaxPerStudent {
			return ErrStudentLimitReached
		}
	}

	const insertQuery = `INSERT INTO enrollments (enrollment_code, student_id, discipline_id, enrolled_at)
        VALUES ($1, $2, $3, $4) RETURNING id`
	if err = tx.QueryRowxContext(ctx, insertQuery, enrollment.Code, enrollment.StudentID, enrollment.DisciplineID, enrollment.EnrolledAt).
		Scan(&enrollment.ID); err != nil {
		if classified := classifyEnrollmentInsert(err); classified != nil {
			return fmt.Errorf("create enrollment: %w", classified)
		}
		return fmt.Errorf("create enrollment: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment: %w", err)
	}
	return nil
}

// DeleteByKey removes the enrollment of a student in a discipline and returns
// the number of affected rows.
func (r *EnrollmentRepository) DeleteByKey(ctx context.Context, studentID, disciplineID int64) (int64, error) {
	const query = `DELETE FROM enrollments WHERE student_id = $1 AND discipline_id = $2`
	res, err := r.db.ExecContext(ctx, query, studentID, disciplineID)
	if err != nil {
		return 0, fmt.Errorf("delete enrollment: %w", err)
	}
	return res.RowsAffected()
}

// DeleteByCode removes the enrollment with the given code.
func (r *EnrollmentRepository) DeleteByCode(ctx context.Context, code string) (int64, error) {
	const query = `DELETE FROM enrollments WHERE enrollment_code = $1`
	res, err := r.db.ExecContext(ctx, query, code)
	if err != nil {
		return 0, fmt.Errorf("delete enrollment by code: %w", err)
	}
	return res.RowsAffected()
}

// ListByStudent returns a student's enrollments, oldest first.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID int64) ([]models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE student_id = $1 ORDER BY enrolled_at, id`
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// CountByStudent returns how many disciplines a student is enrolled in.
func (r *EnrollmentRepository) CountByStudent(ctx context.Context, studentID int64) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM enrollments WHERE student_id = $1`, studentID); err != nil {
		return 0, fmt.Errorf("count student enrollments: %w", err)
	}
	return count, nil
}

// CountByDiscipline returns how many seats of a discipline are taken.
func (r *EnrollmentRepository) CountByDiscipline(ctx context.Context, disciplineID int64) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM enrollments WHERE discipline_id = $1`, disciplineID); err != nil {
		return 0, fmt.Errorf("count discipline enrollments: %w", err)
	}
	return count, nil
}

// Exists checks whether the student is already enrolled in the discipline.
func (r *EnrollmentRepository) Exists(ctx context.Context, studentID, disciplineID int64) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND discipline_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, disciplineID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// FindByCode returns the enrollment with the given code or sql.ErrNoRows.
func (r *EnrollmentRepository) FindByCode(ctx context.Context, code string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE enrollment_code = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, code); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// NextSequence returns one past the highest sequence issued under prefix.
func (r *EnrollmentRepository) NextSequence(ctx context.Context, prefix string) (int, error) {
	const query = `SELECT COALESCE(MAX(CAST(SUBSTRING(enrollment_code FROM 4) AS INTEGER)), 0) + 1
        FROM enrollments WHERE enrollment_code LIKE $1`
	var next int
	if err := r.db.GetContext(ctx, &next, query, prefix+"%"); err != nil {
		return 0, fmt.Errorf("next enrollment sequence: %w", err)
	}
	return next, nil
}
