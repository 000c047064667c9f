package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/academic-desk/internal/models"
)

// ReservationRepository handles persistence of book reservations.
type ReservationRepository struct {
	db *sqlx.DB
}

// NewReservationRepository constructs the repository.
func NewReservationRepository(db *sqlx.DB) *ReservationRepository {
	return &ReservationRepository{db: db}
}

// Create inserts a reservation. Unique violations surface as
// ErrDuplicateReservation or ErrBookAlreadyReserved.
func (r *ReservationRepository) Create(ctx context.Context, reservation *models.Reservation) error {
	if reservation.ReservedAt.IsZero() {
		reservation.ReservedAt = time.Now().UTC()
	}
	const query = `INSERT INTO reservations (student_id, book_id, reserved_at) VALUES ($1, $2, $3) RETURNING id`
	err := r.db.QueryRowxContext(ctx, query, reservation.StudentID, reservation.BookID, reservation.ReservedAt).
		Scan(&reservation.ID)
	if err != nil {
		if classified := classifyReservationInsert(err); classified != nil {
			return fmt.Errorf("create reservation: %w", classified)
		}
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

// Delete removes a student's reservation of a book.
func (r *ReservationRepository) Delete(ctx context.Context, studentID, bookID int64) (int64, error) {
	const query = `DELETE FROM reservations WHERE student_id = $1 AND book_id = $2`
	res, err := r.db.ExecContext(ctx, query, studentID, bookID)
	if err != nil {
		return 0, fmt.Errorf("delete reservation: %w", err)
	}
	return res.RowsAffected()
}

// ListByStudent returns a student's reservations, oldest first.
func (r *ReservationRepository) ListByStudent(ctx context.Context, studentID int64) ([]models.Reservation, error) {
	const query = `SELECT id, student_id, book_id, reserved_at FROM reservations WHERE student_id = $1 ORDER BY reserved_at, id`
	var reservations []models.Reservation
	if err := r.db.SelectContext(ctx, &reservations, query, studentID); err != nil {
		return nil, fmt.Errorf("list student reservations: %w", err)
	}
	return reservations, nil
}

// CountByStudent returns how many books a student holds.
func (r *ReservationRepository) CountByStudent(ctx context.Context, studentID int64) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM reservations WHERE student_id = $1`, studentID); err != nil {
		return 0, fmt.Errorf("count student reservations: %w", err)
	}
	return count, nil
}

// Exists checks whether the student already reserved the book.
func (r *ReservationRepository) Exists(ctx context.Context, studentID, bookID int64) (bool, error) {
	const query = `SELECT 1 FROM reservations WHERE student_id = $1 AND book_id = $2 LIMIT 1`
	return r.rowExists(ctx, "check reservation", query, studentID, bookID)
}

// IsBookReserved checks whether any student holds the book.
func (r *ReservationRepository) IsBookReserved(ctx context.Context, bookID int64) (bool, error) {
	const query = `SELECT 1 FROM reservations WHERE book_id = $1 LIMIT 1`
	return r.rowExists(ctx, "check book reservation", query, bookID)
}

// ReservedBookIDs returns every book currently held locally.
func (r *ReservationRepository) ReservedBookIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, `SELECT DISTINCT book_id FROM reservations ORDER BY book_id`); err != nil {
		return nil, fmt.Errorf("list reserved books: %w", err)
	}
	return ids, nil
}

func (r *ReservationRepository) rowExists(ctx context.Context, op, query string, args ...interface{}) (bool, error) {
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return true, nil
}
