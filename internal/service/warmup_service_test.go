package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academic-desk/internal/models"
)

type stubTarget struct {
	name    string
	entries int
	delay   time.Duration
	// failures is the number of leading calls that fail.
	failures    int32
	calls       int32
	invalidated int32
}

func (s *stubTarget) Name() string { return s.name }

func (s *stubTarget) Invalidate() { atomic.AddInt32(&s.invalidated, 1) }

func (s *stubTarget) Refresh(ctx context.Context) (int, error) {
	n := atomic.AddInt32(&s.calls, 1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if n <= atomic.LoadInt32(&s.failures) {
		return 0, errors.New(s.name + " unreachable")
	}
	return s.entries, nil
}

func TestWarmupRunsTargetsConcurrently(t *testing.T) {
	targets := []WarmupTarget{
		&stubTarget{name: CatalogStudents, entries: 4, delay: 50 * time.Millisecond},
		&stubTarget{name: CatalogDisciplines, entries: 10, delay: 50 * time.Millisecond},
		&stubTarget{name: CatalogBooks, entries: 3, delay: 50 * time.Millisecond},
	}
	svc := NewWarmupService(WarmupOptions{Timeout: time.Second}, targets...)

	_, ran := svc.Report()
	assert.False(t, ran)

	start := time.Now()
	report := svc.Run(context.Background())
	assert.Less(t, time.Since(start), 140*time.Millisecond)

	require.Len(t, report.Results, 3)
	assert.True(t, report.Ready())
	assert.Equal(t, CatalogStudents, report.Results[0].Catalog)
	assert.Equal(t, 10, report.Results[1].Entries)

	stored, ran := svc.Report()
	assert.True(t, ran)
	assert.Equal(t, report.Results, stored.Results)
}

func TestWarmupFailureDoesNotAbortOthers(t *testing.T) {
	books := &stubTarget{name: CatalogBooks, failures: 1}
	students := &stubTarget{name: CatalogStudents, entries: 2}
	svc := NewWarmupService(WarmupOptions{}, students, books)

	report := svc.Run(context.Background())
	assert.False(t, report.Ready())
	assert.Equal(t, []string{CatalogBooks}, report.Failed())
	assert.Equal(t, 2, report.Results[0].Entries)
	assert.Contains(t, report.Results[1].Error, "unreachable")
	assert.Equal(t, int32(1), atomic.LoadInt32(&students.calls))
}

func TestWarmupRetriesFailedCatalogsInBackground(t *testing.T) {
	books := &stubTarget{name: CatalogBooks, entries: 3, failures: 2}
	svc := NewWarmupService(WarmupOptions{Retries: 3, RetryDelay: 10 * time.Millisecond}, books)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	report := svc.Run(ctx)
	require.False(t, report.Ready())

	require.Eventually(t, func() bool {
		latest, _ := svc.Report()
		return latest.Ready()
	}, time.Second, 10*time.Millisecond)

	latest, _ := svc.Report()
	assert.Equal(t, 3, latest.Results[0].Entries)
	assert.Equal(t, int32(3), atomic.LoadInt32(&books.calls))
}

func TestWarmupTimeoutBoundsRun(t *testing.T) {
	slow := &stubTarget{name: CatalogDisciplines, delay: time.Second}
	svc := NewWarmupService(WarmupOptions{Timeout: 30 * time.Millisecond}, slow)

	start := time.Now()
	report := svc.Run(context.Background())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, []string{CatalogDisciplines}, report.Failed())
}

func TestWarmupAgainstCatalogServices(t *testing.T) {
	f := newDeskFixture()
	f.bookSrc.set(nil, errors.New("library offline"))
	svc := NewWarmupService(WarmupOptions{}, f.students, f.disciplines, f.books)

	report := svc.Run(context.Background())
	assert.Equal(t, []string{CatalogBooks}, report.Failed())
	assert.Equal(t, 10, report.Results[1].Entries)

	student, err := f.students.ByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Ana", student.Name)
	assert.Equal(t, 1, f.studentSrc.calls)
}

type purgeRecorder struct {
	calls int32
	err   error
}

func (p *purgeRecorder) Purge(ctx context.Context) error {
	atomic.AddInt32(&p.calls, 1)
	return p.err
}

func TestWarmupReloadInvalidatesPurgesAndRuns(t *testing.T) {
	students := &stubTarget{name: CatalogStudents, entries: 4}
	books := &stubTarget{name: CatalogBooks, entries: 3}
	mirror := &purgeRecorder{}
	svc := NewWarmupService(WarmupOptions{Mirror: mirror}, students, books)

	report := svc.Reload(context.Background())
	assert.True(t, report.Ready())
	assert.Equal(t, int32(1), atomic.LoadInt32(&students.invalidated))
	assert.Equal(t, int32(1), atomic.LoadInt32(&books.invalidated))
	assert.Equal(t, int32(1), atomic.LoadInt32(&mirror.calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&books.calls))

	mirror.err = errors.New("redis down")
	report = svc.Reload(context.Background())
	assert.True(t, report.Ready())
	assert.Equal(t, int32(2), atomic.LoadInt32(&mirror.calls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&students.calls))
}

func TestWarmupReloadRefetchesCatalogServices(t *testing.T) {
	f := newDeskFixture()
	svc := NewWarmupService(WarmupOptions{}, f.students, f.disciplines, f.books)
	ctx := context.Background()

	require.True(t, svc.Run(ctx).Ready())
	require.Equal(t, 1, f.bookSrc.calls)

	f.bookSrc.set([]models.Book{{ID: 900, Title: "Novo", Availability: models.BookAvailable}}, nil)
	report := svc.Reload(ctx)
	require.True(t, report.Ready())
	assert.Equal(t, 1, report.Results[2].Entries)

	book, err := f.books.ByID(ctx, 900)
	require.NoError(t, err)
	assert.Equal(t, "Novo", book.Title)
	assert.False(t, f.books.LoadedAt().IsZero())
	assert.Equal(t, 1, f.books.Len())
}
