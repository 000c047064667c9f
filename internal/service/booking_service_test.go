package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academic-desk/internal/models"
	"github.com/noah-isme/academic-desk/internal/repository"
	"github.com/noah-isme/academic-desk/pkg/enrollcode"
	appErrors "github.com/noah-isme/academic-desk/pkg/errors"
	"github.com/noah-isme/academic-desk/pkg/middleware/requestid"
)

type recordingSink struct {
	mu     sync.Mutex
	events []models.BookingEvent
}

func (r *recordingSink) RecordBookingEvent(event models.BookingEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingSink) last() models.BookingEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return models.BookingEvent{}
	}
	return r.events[len(r.events)-1]
}

type recordingObserver struct {
	mu     sync.Mutex
	labels []string
}

func (r *recordingObserver) ObserveDBQuery(label string, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.labels = append(r.labels, label)
}

var bookingClock = func() time.Time { return time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC) }

func newBookingFixture(guarded bool) (*deskFixture, *BookingService, *recordingSink) {
	f := newDeskFixture()
	sink := &recordingSink{}
	svc := NewBookingService(f.availability, f.disciplines, f.books, f.enrollments, f.reservations, BookingOptions{
		Guarded:  guarded,
		Sequence: NewStoreSequence(f.enrollments),
		Events:   []EventSink{sink},
		Now:      bookingClock,
	}, nil, nil)
	return f, svc, sink
}

func TestEnrollIssuesSequentialCodes(t *testing.T) {
	_, svc, sink := newBookingFixture(false)
	ctx := context.Background()

	first, err := svc.Enroll(ctx, EnrollRequest{StudentID: "1", DisciplineID: "10"})
	require.NoError(t, err)
	assert.Equal(t, "2510001", first.Code)
	assert.Equal(t, bookingClock(), first.EnrolledAt)
	assert.NotZero(t, first.ID)

	second, err := svc.Enroll(ctx, EnrollRequest{StudentID: "3", DisciplineID: "10"})
	require.NoError(t, err)
	assert.Equal(t, "2510002", second.Code)

	event := sink.last()
	assert.Equal(t, models.EventEnrollmentCreated, event.Kind)
	assert.Equal(t, "2510002", event.Code)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, 28, event.Context["seats_left"])
}

func TestEnrollSixthIsRejected(t *testing.T) {
	for _, guarded := range []bool{false, true} {
		f, svc, sink := newBookingFixture(guarded)
		ctx := context.Background()

		for _, d := range []string{"10", "15", "16", "17", "18"} {
			_, err := svc.Enroll(ctx, EnrollRequest{StudentID: "1", DisciplineID: d})
			require.NoError(t, err, d)
		}
		_, err := svc.Enroll(ctx, EnrollRequest{StudentID: "1", DisciplineID: "19"})
		appErr := requireCode(t, err, appErrors.ErrEnrollmentLimit)
		assert.Equal(t, 5, appErr.Details["limit"])
		assert.Equal(t, 5, appErr.Details["current"])
		assert.Equal(t, 5, f.enrollments.len())

		event := sink.last()
		assert.Equal(t, models.EventEnrollmentRejected, event.Kind)
		assert.Equal(t, appErrors.ErrEnrollmentLimit.Code, event.Reason)
		if guarded {
			assert.Equal(t, 5, f.enrollments.guarded)
		}
	}
}

func TestEnrollRejectsDuplicateAndLeavesStore(t *testing.T) {
	f, svc, _ := newBookingFixture(false)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, EnrollRequest{StudentID: "1", DisciplineID: "10"})
	require.NoError(t, err)
	_, err = svc.Enroll(ctx, EnrollRequest{StudentID: "1", DisciplineID: "10"})
	requireCode(t, err, appErrors.ErrDuplicateEnrollment)
	assert.Equal(t, 1, f.enrollments.len())
}

func TestEnrollValidationFailures(t *testing.T) {
	_, svc, sink := newBookingFixture(false)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, EnrollRequest{StudentID: "", DisciplineID: "10"})
	requireCode(t, err, appErrors.ErrInvalidInput)
	assert.Equal(t, models.EventEnrollmentRejected, sink.last().Kind)

	_, err = svc.Enroll(ctx, EnrollRequest{StudentID: "2", DisciplineID: "12"})
	requireCode(t, err, appErrors.ErrInactiveStudent)

	_, err = svc.Enroll(ctx, EnrollRequest{StudentID: "3", DisciplineID: "12"})
	requireCode(t, err, appErrors.ErrCourseMismatch)
	assert.Equal(t, appErrors.ErrCourseMismatch.Code, sink.last().Reason)
}

func TestEnrollMapsStoreFailures(t *testing.T) {
	cases := []struct {
		name     string
		storeErr error
		want     *appErrors.Error
	}{
		{"race on discipline ceiling", repository.ErrDisciplineFull, appErrors.ErrNoSeats},
		{"race on student limit", repository.ErrStudentLimitReached, appErrors.ErrEnrollmentLimit},
		{"race on duplicate pair", repository.ErrDuplicateEnrollment, appErrors.ErrDuplicateEnrollment},
		{"code collision", repository.ErrDuplicateCode, appErrors.ErrPersistenceFailed},
		{"database down", errors.New("connection reset"), appErrors.ErrPersistenceFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, svc, _ := newBookingFixture(true)
			f.enrollments.createErr = tc.storeErr

			_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "1", DisciplineID: "10"})
			requireCode(t, err, tc.want)
			assert.Zero(t, f.enrollments.len())
		})
	}
}

func TestEnrollSurfacesUpstreamFailure(t *testing.T) {
	f, svc, _ := newBookingFixture(false)
	f.disciplineSrc.set(nil, errors.New("timeout"))

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "1", DisciplineID: "10"})
	requireCode(t, err, appErrors.ErrUpstreamUnavailable)
}

func TestEnrollWithClockSequence(t *testing.T) {
	f := newDeskFixture()
	svc := NewBookingService(f.availability, f.disciplines, f.books, f.enrollments, f.reservations, BookingOptions{Now: bookingClock}, nil, nil)

	enrollment, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "1", DisciplineID: "10"})
	require.NoError(t, err)
	parts, err := enrollcode.Parse(enrollment.Code)
	require.NoError(t, err)
	assert.Equal(t, 2025, parts.Year)
	assert.Equal(t, 1, parts.Term)
}

// racingSequence hands out the store's next sequence and, on its first call,
// lets another writer commit that same code before the caller inserts.
type racingSequence struct {
	store *memEnrollments
	inner enrollcode.SequenceSource
	raced bool
}

func (r *racingSequence) Next(ctx context.Context, year, term int) (int, error) {
	seq, err := r.inner.Next(ctx, year, term)
	if err != nil || r.raced {
		return seq, err
	}
	r.raced = true
	code, err := enrollcode.Generate(year, term, seq)
	if err != nil {
		return 0, err
	}
	if err := r.store.Create(ctx, &models.Enrollment{Code: code, StudentID: 3, DisciplineID: 15}); err != nil {
		return 0, err
	}
	return seq, nil
}

func TestEnrollReissuesCodeAfterConcurrentCollision(t *testing.T) {
	for _, guarded := range []bool{false, true} {
		f := newDeskFixture()
		sequence := &racingSequence{store: f.enrollments, inner: NewStoreSequence(f.enrollments)}
		svc := NewBookingService(f.availability, f.disciplines, f.books, f.enrollments, f.reservations, BookingOptions{
			Guarded:  guarded,
			Sequence: sequence,
			Now:      bookingClock,
		}, nil, nil)

		enrollment, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "1", DisciplineID: "10"})
		require.NoError(t, err)
		assert.Equal(t, "2510002", enrollment.Code)
		assert.Equal(t, 2, f.enrollments.len())
	}
}

func TestEnrollFailsWhenTermSequenceIsExhausted(t *testing.T) {
	f, svc, sink := newBookingFixture(false)
	ctx := context.Background()
	require.NoError(t, f.enrollments.Create(ctx, &models.Enrollment{Code: "2519999", StudentID: 3, DisciplineID: 15}))

	_, err := svc.Enroll(ctx, EnrollRequest{StudentID: "1", DisciplineID: "10"})
	appErr := requireCode(t, err, appErrors.ErrPersistenceFailed)
	assert.Equal(t, enrollcode.MaxSequence, appErr.Details["max"])
	assert.Equal(t, 10000, appErr.Details["sequence"])
	assert.Equal(t, 1, f.enrollments.len())
	assert.Equal(t, models.EventEnrollmentRejected, sink.last().Kind)
}

func TestCancelByCode(t *testing.T) {
	f, svc, sink := newBookingFixture(false)
	ctx := context.Background()

	enrollment, err := svc.Enroll(ctx, EnrollRequest{StudentID: "1", DisciplineID: "10"})
	require.NoError(t, err)

	err = svc.CancelByCode(ctx, "2519999")
	requireCode(t, err, appErrors.ErrNotFound)
	assert.Equal(t, 1, f.enrollments.len())
	assert.Equal(t, models.EventCancellationRejected, sink.last().Kind)

	err = svc.CancelByCode(ctx, "25A0001")
	requireCode(t, err, appErrors.ErrInvalidFormat)

	err = svc.CancelByCode(ctx, "   ")
	requireCode(t, err, appErrors.ErrInvalidInput)

	require.NoError(t, svc.CancelByCode(ctx, " "+enrollment.Code+" "))
	assert.Zero(t, f.enrollments.len())
	assert.Equal(t, models.EventEnrollmentCancelled, sink.last().Kind)

	_, err = svc.FindEnrollment(ctx, enrollment.Code)
	requireCode(t, err, appErrors.ErrNotFound)
}

func TestCancelEnrollmentByKey(t *testing.T) {
	f, svc, _ := newBookingFixture(false)
	ctx := context.Background()

	_, err := svc.Enroll(ctx, EnrollRequest{StudentID: "1", DisciplineID: "10"})
	require.NoError(t, err)

	requireCode(t, svc.CancelEnrollment(ctx, "1", "11"), appErrors.ErrNotFound)
	requireCode(t, svc.CancelEnrollment(ctx, "x", "10"), appErrors.ErrInvalidInput)
	require.NoError(t, svc.CancelEnrollment(ctx, "1", "10"))
	assert.Zero(t, f.enrollments.len())

	seats, err := f.availability.LiveSeatCount(ctx, "10")
	require.NoError(t, err)
	assert.Equal(t, 30, seats)
}

func TestReserveAndReleaseBook(t *testing.T) {
	f, svc, sink := newBookingFixture(false)
	ctx := context.Background()

	ana, err := svc.Enroll(ctx, EnrollRequest{StudentID: "1", DisciplineID: "10"})
	require.NoError(t, err)
	carla, err := svc.Enroll(ctx, EnrollRequest{StudentID: "3", DisciplineID: "10"})
	require.NoError(t, err)

	reservation, err := svc.ReserveBook(ctx, ana.Code, ReserveRequest{BookID: "300"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), reservation.StudentID)
	assert.Equal(t, bookingClock(), reservation.ReservedAt)
	assert.Equal(t, models.EventReservationCreated, sink.last().Kind)

	reservable, err := f.availability.IsBookReservable(ctx, 300)
	require.NoError(t, err)
	assert.False(t, reservable)

	_, err = svc.ReserveBook(ctx, carla.Code, ReserveRequest{BookID: "300"})
	appErr := requireCode(t, err, appErrors.ErrBookUnavailable)
	assert.Equal(t, "reserved", appErr.Details["reason"])

	require.NoError(t, svc.CancelReservation(ctx, ana.Code, "300"))
	assert.Equal(t, models.EventReservationCancelled, sink.last().Kind)
	reservable, err = f.availability.IsBookReservable(ctx, 300)
	require.NoError(t, err)
	assert.True(t, reservable)

	err = svc.CancelReservation(ctx, ana.Code, "300")
	requireCode(t, err, appErrors.ErrNotFound)

	_, err = svc.ReserveBook(ctx, carla.Code, ReserveRequest{BookID: "300"})
	require.NoError(t, err)
}

func TestReserveBookRejections(t *testing.T) {
	f, svc, _ := newBookingFixture(false)
	ctx := context.Background()

	ana, err := svc.Enroll(ctx, EnrollRequest{StudentID: "1", DisciplineID: "10"})
	require.NoError(t, err)

	_, err = svc.ReserveBook(ctx, "2519999", ReserveRequest{BookID: "300"})
	requireCode(t, err, appErrors.ErrNotFound)

	_, err = svc.ReserveBook(ctx, "2519999", ReserveRequest{})
	requireCode(t, err, appErrors.ErrNotFound)

	_, err = svc.ReserveBook(ctx, "abc", ReserveRequest{})
	requireCode(t, err, appErrors.ErrInvalidFormat)

	_, err = svc.ReserveBook(ctx, "abc", ReserveRequest{BookID: "300"})
	requireCode(t, err, appErrors.ErrInvalidFormat)

	_, err = svc.ReserveBook(ctx, ana.Code, ReserveRequest{})
	requireCode(t, err, appErrors.ErrInvalidInput)

	_, err = svc.ReserveBook(ctx, ana.Code, ReserveRequest{BookID: "3O0"})
	requireCode(t, err, appErrors.ErrInvalidInput)

	_, err = svc.ReserveBook(ctx, ana.Code, ReserveRequest{BookID: "301"})
	requireCode(t, err, appErrors.ErrBookUnavailable)

	_, err = svc.ReserveBook(ctx, ana.Code, ReserveRequest{BookID: "999"})
	requireCode(t, err, appErrors.ErrBookUnavailable)

	f.reservations.createErr = repository.ErrBookAlreadyReserved
	_, err = svc.ReserveBook(ctx, ana.Code, ReserveRequest{BookID: "302"})
	requireCode(t, err, appErrors.ErrBookUnavailable)
}

func TestListingsFallBackToPlaceholder(t *testing.T) {
	f, svc, _ := newBookingFixture(false)
	ctx := context.Background()

	ana, err := svc.Enroll(ctx, EnrollRequest{StudentID: "1", DisciplineID: "10"})
	require.NoError(t, err)
	f.seed(1, 77)
	_, err = svc.ReserveBook(ctx, ana.Code, ReserveRequest{BookID: "300"})
	require.NoError(t, err)
	require.NoError(t, f.reservations.Create(ctx, &models.Reservation{StudentID: 1, BookID: 404}))

	enrollments, err := svc.EnrollmentsByStudent(ctx, "1")
	require.NoError(t, err)
	require.Len(t, enrollments, 2)
	assert.Equal(t, "Calculo I", enrollments[0].DisciplineName)
	assert.Equal(t, "Engenharia", enrollments[0].DisciplineCourse)
	assert.Equal(t, "not found", enrollments[1].DisciplineName)

	reservations, err := svc.ReservationsByCode(ctx, ana.Code)
	require.NoError(t, err)
	require.Len(t, reservations, 2)
	assert.Equal(t, "Dom Casmurro", reservations[0].BookTitle)
	assert.Equal(t, "not found", reservations[1].BookTitle)

	empty, err := svc.EnrollmentsByStudent(ctx, "4")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestBookingEventsCarryRequestID(t *testing.T) {
	f := newDeskFixture()
	sink := &recordingSink{}
	observer := &recordingObserver{}
	svc := NewBookingService(f.availability, f.disciplines, f.books, f.enrollments, f.reservations, BookingOptions{
		Sequence: NewStoreSequence(f.enrollments),
		Events:   []EventSink{sink, NewLogEventSink(nil)},
		Metrics:  observer,
		Now:      bookingClock,
	}, nil, nil)

	ctx := requestid.WithValue(context.Background(), "req-42")
	_, err := svc.Enroll(ctx, EnrollRequest{StudentID: "1", DisciplineID: "10"})
	require.NoError(t, err)

	event := sink.last()
	assert.Equal(t, "req-42", event.Context["request_id"])
	assert.Equal(t, bookingClock(), event.OccurredAt)
	assert.Contains(t, observer.labels, "enrollment_insert")
}
