package models

import "time"

// BookingEventKind identifies what happened at the booking desk.
type BookingEventKind string

// Booking event kinds.
const (
	EventEnrollmentCreated    BookingEventKind = "enrollment.created"
	EventEnrollmentRejected   BookingEventKind = "enrollment.rejected"
	EventEnrollmentCancelled  BookingEventKind = "enrollment.cancelled"
	EventReservationCreated   BookingEventKind = "reservation.created"
	EventReservationRejected  BookingEventKind = "reservation.rejected"
	EventReservationCancelled BookingEventKind = "reservation.cancelled"
	EventCancellationRejected BookingEventKind = "cancellation.rejected"
)

// BookingEvent is emitted for every write and every rejection.
type BookingEvent struct {
	ID           string                 `json:"id"`
	Kind         BookingEventKind       `json:"kind"`
	OccurredAt   time.Time              `json:"occurred_at"`
	StudentID    int64                  `json:"student_id,omitempty"`
	DisciplineID int64                  `json:"discipline_id,omitempty"`
	BookID       int64                  `json:"book_id,omitempty"`
	Code         string                 `json:"code,omitempty"`
	Reason       string                 `json:"reason,omitempty"`
	Context      map[string]interface{} `json:"context,omitempty"`
}

// Accepted reports whether the event describes a completed write.
func (e BookingEvent) Accepted() bool {
	switch e.Kind {
	case EventEnrollmentCreated, EventEnrollmentCancelled, EventReservationCreated, EventReservationCancelled:
		return true
	}
	return false
}
