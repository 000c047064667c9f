package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/academic-desk/internal/models"
	"github.com/noah-isme/academic-desk/pkg/jobs"
)

// WarmupTarget is a catalog that can be preloaded.
type WarmupTarget interface {
	Name() string
	Refresh(ctx context.Context) (int, error)
	Invalidate()
}

type mirrorPurger interface {
	Purge(ctx context.Context) error
}

// WarmupOptions configures WarmupService.
type WarmupOptions struct {
	// Timeout bounds the whole warmup run.
	Timeout time.Duration
	// Retries is how many background attempts a failed catalog gets after the
	// initial run. Zero leaves failed catalogs to lazy refresh only.
	Retries    int
	RetryDelay time.Duration
	// Mirror is purged by Reload so the reload cannot fall back to the payloads
	// it is meant to replace.
	Mirror mirrorPurger
	Logger *zap.Logger
	Now        func() time.Time
}

// WarmupService preloads the catalog gateways concurrently and keeps the last report.
type WarmupService struct {
	targets []WarmupTarget
	byName  map[string]WarmupTarget
	timeout time.Duration
	mirror  mirrorPurger
	retries *jobs.Queue
	logger  *zap.Logger
	now     func() time.Time

	mu     sync.RWMutex
	report models.WarmupReport
	ran    bool
}

// NewWarmupService constructs WarmupService.
func NewWarmupService(opts WarmupOptions, targets ...WarmupTarget) *WarmupService {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &WarmupService{
		targets: targets,
		byName:  make(map[string]WarmupTarget, len(targets)),
		timeout: opts.Timeout,
		mirror:  opts.Mirror,
		logger:  opts.Logger,
		now:     opts.Now,
	}
	for _, t := range targets {
		s.byName[t.Name()] = t
	}
	if opts.Retries > 0 {
		s.retries = jobs.NewQueue("catalog-rewarm", s.rewarm, jobs.QueueConfig{
			Workers:    len(targets),
			MaxRetries: opts.Retries - 1,
			RetryDelay: opts.RetryDelay,
			OnGiveUp: func(task jobs.Task, err error) {
				s.logger.Warn("catalog left to lazy refresh", zap.String("catalog", task.Target), zap.Error(err))
			},
			Logger: opts.Logger,
		})
	}
	return s
}

// Start launches the background re-warm workers.
func (s *WarmupService) Start(ctx context.Context) {
	if s.retries != nil {
		s.retries.Start(ctx)
	}
}

// Stop waits for the background re-warm workers to exit.
func (s *WarmupService) Stop() {
	if s.retries != nil {
		s.retries.Stop()
	}
}

// Run refreshes every target concurrently and waits for all of them. A
// failing target does not abort the others; its error is recorded in the report.
func (s *WarmupService) Run(ctx context.Context) models.WarmupReport {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	report := models.WarmupReport{
		StartedAt: s.now().UTC(),
		Results:   make([]models.WarmupResult, len(s.targets)),
	}
	var wg sync.WaitGroup
	for i, target := range s.targets {
		wg.Add(1)
		go func(i int, target WarmupTarget) {
			defer wg.Done()
			report.Results[i] = s.warm(ctx, target)
		}(i, target)
	}
	wg.Wait()
	report.FinishedAt = s.now().UTC()

	s.mu.Lock()
	s.report = report
	s.report.Results = append([]models.WarmupResult(nil), report.Results...)
	s.ran = true
	s.mu.Unlock()

	if failed := report.Failed(); len(failed) > 0 {
		s.logger.Warn("catalog warmup incomplete", zap.Strings("failed", failed))
		s.scheduleRetries(failed)
	} else {
		s.logger.Info("catalog warmup complete", zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)))
	}
	return report
}

// Reload marks every target stale, drops the mirrored payloads and runs a
// new warmup. A purge failure is logged and does not stop the reload.
func (s *WarmupService) Reload(ctx context.Context) models.WarmupReport {
	for _, target := range s.targets {
		target.Invalidate()
	}
	if s.mirror != nil {
		if err := s.mirror.Purge(ctx); err != nil {
			s.logger.Warn("failed to purge catalog mirror", zap.Error(err))
		}
	}
	s.logger.Info("catalog reload requested", zap.Int("catalogs", len(s.targets)))
	return s.Run(ctx)
}

// Report returns the latest warmup report and whether a run happened.
func (s *WarmupService) Report() (models.WarmupReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	report := s.report
	report.Results = append([]models.WarmupResult(nil), s.report.Results...)
	return report, s.ran
}

func (s *WarmupService) warm(ctx context.Context, target WarmupTarget) models.WarmupResult {
	start := time.Now()
	entries, err := target.Refresh(ctx)
	result := models.WarmupResult{Catalog: target.Name(), Entries: entries, Duration: time.Since(start)}
	if err != nil {
		result.Error = err.Error()
		s.logger.Warn("catalog warmup failed", zap.String("catalog", target.Name()), zap.Error(err))
	}
	return result
}

func (s *WarmupService) scheduleRetries(failed []string) {
	if s.retries == nil {
		return
	}
	for _, name := range failed {
		if err := s.retries.Enqueue(jobs.Task{Target: name}); err != nil {
			s.logger.Debug("catalog re-warm not scheduled", zap.String("catalog", name), zap.Error(err))
		}
	}
}

func (s *WarmupService) rewarm(ctx context.Context, task jobs.Task) error {
	target, ok := s.byName[task.Target]
	if !ok {
		return fmt.Errorf("unknown catalog %q", task.Target)
	}
	result := s.warm(ctx, target)
	if !result.OK() {
		return errors.New(result.Error)
	}

	s.mu.Lock()
	for i := range s.report.Results {
		if s.report.Results[i].Catalog == result.Catalog {
			s.report.Results[i] = result
		}
	}
	s.mu.Unlock()
	s.logger.Info("catalog re-warmed", zap.String("catalog", task.Target), zap.Int("attempt", task.Attempt))
	return nil
}
