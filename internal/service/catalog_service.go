package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/academic-desk/internal/models"
	"github.com/noah-isme/academic-desk/pkg/cache"
	appErrors "github.com/noah-isme/academic-desk/pkg/errors"
)

// Catalog names used in logs, metrics and mirror keys.
const (
	CatalogStudents    = "students"
	CatalogDisciplines = "disciplines"
	CatalogBooks       = "books"
)

type catalogFetcher[T any] interface {
	FetchAll(ctx context.Context) ([]T, error)
}

type catalogMirror interface {
	Load(ctx context.Context, catalog string, dest interface{}) error
	Save(ctx context.Context, catalog string, value interface{}) error
}

// CatalogSettings holds the options shared by the three catalog gateways.
type CatalogSettings struct {
	TTL           time.Duration
	SlowThreshold time.Duration
	LoadTimeout   time.Duration
	Observer      cache.RefreshObserver
	Mirror        catalogMirror
	Logger        *zap.Logger
	Now           func() time.Time
}

func newCatalog[T any](name string, src catalogFetcher[T], key func(T) int64, settings CatalogSettings) *cache.Catalog[T] {
	logger := settings.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	fetch := cache.Fetcher[T](src.FetchAll)
	var fallback cache.Fetcher[T]
	if mirror := settings.Mirror; mirror != nil {
		fetch = func(ctx context.Context) ([]T, error) {
			items, err := src.FetchAll(ctx)
			if err != nil {
				return nil, err
			}
			if err := mirror.Save(ctx, name, items); err != nil {
				logger.Warn("failed to mirror catalog", zap.String("catalog", name), zap.Error(err))
			}
			return items, nil
		}
		fallback = func(ctx context.Context) ([]T, error) {
			var items []T
			if err := mirror.Load(ctx, name, &items); err != nil {
				return nil, err
			}
			return items, nil
		}
	}
	return cache.NewCatalog(fetch, cache.CatalogOptions[T]{
		Name:          name,
		TTL:           settings.TTL,
		SlowThreshold: settings.SlowThreshold,
		LoadTimeout:   settings.LoadTimeout,
		Key:           key,
		Fallback:      fallback,
		Observer:      settings.Observer,
		Logger:        logger,
		Now:           settings.Now,
	})
}

func notFound(kind string, id int64) *appErrors.Error {
	return appErrors.WithDetails(appErrors.ErrNotFound, fmt.Sprintf("%s %d not found", kind, id), map[string]interface{}{
		"resource": kind,
		"id":       id,
	})
}

// StudentService serves the remote student catalog from a local snapshot.
type StudentService struct {
	catalog *cache.Catalog[models.Student]
}

// NewStudentService constructs StudentService.
func NewStudentService(src catalogFetcher[models.Student], settings CatalogSettings) *StudentService {
	return &StudentService{
		catalog: newCatalog(CatalogStudents, src, func(s models.Student) int64 { return s.ID }, settings),
	}
}

// Name returns the catalog label.
func (s *StudentService) Name() string { return s.catalog.Name() }

// ByID returns the student or NOT_FOUND.
func (s *StudentService) ByID(ctx context.Context, id int64) (*models.Student, error) {
	student, ok, err := s.catalog.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("student", id)
	}
	return &student, nil
}

// All returns every student in the snapshot.
func (s *StudentService) All(ctx context.Context) ([]models.Student, error) {
	return s.catalog.List(ctx)
}

// Refresh reloads the snapshot and returns its size.
func (s *StudentService) Refresh(ctx context.Context) (int, error) {
	items, err := s.catalog.Refresh(ctx)
	return len(items), err
}

// Invalidate forces the next read to refresh.
func (s *StudentService) Invalidate() { s.catalog.Invalidate() }

// LoadedAt returns when the snapshot was last fetched, zero if never.
func (s *StudentService) LoadedAt() time.Time { return s.catalog.LoadedAt() }

// Len returns the snapshot size without refreshing.
func (s *StudentService) Len() int { return s.catalog.Len() }

// DisciplineService serves the remote discipline catalog and course lookups.
type DisciplineService struct {
	catalog *cache.Catalog[models.Discipline]

	mu         sync.Mutex
	byCourse   map[string][]models.Discipline
	generation uint64
}

// NewDisciplineService constructs DisciplineService.
func NewDisciplineService(src catalogFetcher[models.Discipline], settings CatalogSettings) *DisciplineService {
	return &DisciplineService{
		catalog:  newCatalog(CatalogDisciplines, src, func(d models.Discipline) int64 { return d.ID }, settings),
		byCourse: make(map[string][]models.Discipline),
	}
}

// Name returns the catalog label.
func (s *DisciplineService) Name() string { return s.catalog.Name() }

// ByID returns the discipline or NOT_FOUND.
func (s *DisciplineService) ByID(ctx context.Context, id int64) (*models.Discipline, error) {
	discipline, ok, err := s.catalog.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("discipline", id)
	}
	return &discipline, nil
}

// All returns every discipline in the snapshot.
func (s *DisciplineService) All(ctx context.Context) ([]models.Discipline, error) {
	return s.catalog.List(ctx)
}

// ByCourse returns disciplines whose course contains name, ignoring case.
// Results are memoised per normalised name until the snapshot changes.
func (s *DisciplineService) ByCourse(ctx context.Context, name string) ([]models.Discipline, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return []models.Discipline{}, nil
	}
	before := s.catalog.Generation()
	all, err := s.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	generation := s.catalog.Generation()

	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation {
		s.byCourse = make(map[string][]models.Discipline)
		s.generation = generation
	}
	if cached, ok := s.byCourse[key]; ok && before == generation {
		return append([]models.Discipline{}, cached...), nil
	}
	matches := make([]models.Discipline, 0)
	for _, d := range all {
		if strings.Contains(strings.ToLower(d.Course), key) {
			matches = append(matches, d)
		}
	}
	// Memoise only when no refresh landed while listing.
	if before == generation {
		s.byCourse[key] = matches
	}
	return append([]models.Discipline{}, matches...), nil
}

// Courses returns the distinct course names, sorted.
func (s *DisciplineService) Courses(ctx context.Context) ([]string, error) {
	all, err := s.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(all))
	courses := make([]string, 0)
	for _, d := range all {
		course := strings.TrimSpace(d.Course)
		if course == "" {
			continue
		}
		if _, ok := seen[course]; ok {
			continue
		}
		seen[course] = struct{}{}
		courses = append(courses, course)
	}
	sort.Strings(courses)
	return courses, nil
}

// Refresh reloads the snapshot and returns its size.
func (s *DisciplineService) Refresh(ctx context.Context) (int, error) {
	items, err := s.catalog.Refresh(ctx)
	return len(items), err
}

// Invalidate forces the next read to refresh.
func (s *DisciplineService) Invalidate() { s.catalog.Invalidate() }

// LoadedAt returns when the snapshot was last fetched, zero if never.
func (s *DisciplineService) LoadedAt() time.Time { return s.catalog.LoadedAt() }

// Len returns the snapshot size without refreshing.
func (s *DisciplineService) Len() int { return s.catalog.Len() }

// BookService serves the remote library catalog.
type BookService struct {
	catalog *cache.Catalog[models.Book]
}

// NewBookService constructs BookService.
func NewBookService(src catalogFetcher[models.Book], settings CatalogSettings) *BookService {
	return &BookService{
		catalog: newCatalog(CatalogBooks, src, func(b models.Book) int64 { return b.ID }, settings),
	}
}

// Name returns the catalog label.
func (s *BookService) Name() string { return s.catalog.Name() }

// ByID returns the book or NOT_FOUND.
func (s *BookService) ByID(ctx context.Context, id int64) (*models.Book, error) {
	book, ok, err := s.catalog.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("book", id)
	}
	return &book, nil
}

// All returns every book in the snapshot.
func (s *BookService) All(ctx context.Context) ([]models.Book, error) {
	return s.catalog.List(ctx)
}

// ByAvailability filters the snapshot by the remote lending flag.
func (s *BookService) ByAvailability(ctx context.Context, availability models.BookAvailability) ([]models.Book, error) {
	all, err := s.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	books := make([]models.Book, 0, len(all))
	for _, b := range all {
		if b.Availability == availability {
			books = append(books, b)
		}
	}
	return books, nil
}

// Available returns the books the remote catalog marks as available.
func (s *BookService) Available(ctx context.Context) ([]models.Book, error) {
	return s.ByAvailability(ctx, models.BookAvailable)
}

// Refresh reloads the snapshot and returns its size.
func (s *BookService) Refresh(ctx context.Context) (int, error) {
	items, err := s.catalog.Refresh(ctx)
	return len(items), err
}

// Invalidate forces the next read to refresh.
func (s *BookService) Invalidate() { s.catalog.Invalidate() }

// LoadedAt returns when the snapshot was last fetched, zero if never.
func (s *BookService) LoadedAt() time.Time { return s.catalog.LoadedAt() }

// Len returns the snapshot size without refreshing.
func (s *BookService) Len() int { return s.catalog.Len() }
