package models

import "time"

// Reservation records a student holding a library book.
type Reservation struct {
	ID         int64     `db:"id" json:"id"`
	StudentID  int64     `db:"student_id" json:"student_id"`
	BookID     int64     `db:"book_id" json:"book_id"`
	ReservedAt time.Time `db:"reserved_at" json:"reserved_at"`
}

// ReservationDetail enriches Reservation with the book's catalog data.
type ReservationDetail struct {
	Reservation
	BookTitle  string `json:"book_title"`
	BookAuthor string `json:"book_author"`
}

// BookAvailabilityView is the combined remote and local availability of a book.
type BookAvailabilityView struct {
	Book
	LocallyReserved bool `json:"locally_reserved"`
	Reservable      bool `json:"reservable"`
}
