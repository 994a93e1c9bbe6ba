package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one periodic unit of work. Jobs are declared up front in an
// explicit list and registered once at process start; nothing adds
// schedules at runtime.
type Job struct {
	Name    string
	Spec    string // standard 5-field cron expression
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

type Service struct {
	log  zerolog.Logger
	loc  *time.Location
	c    *cron.Cron
	jobs []Job

	mu      sync.Mutex
	running map[string]bool
}

// New builds a scheduler for the given job list in the given location.
func New(loc *time.Location, jobs []Job, log zerolog.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		log:     log.With().Str("component", "scheduler").Logger(),
		loc:     loc,
		jobs:    jobs,
		running: map[string]bool{},
	}
}

// Start registers every job and starts the cron runner. Each job is
// wrapped with a skip-if-running guard: a tick that fires while the
// previous run of the same job is still going is dropped, so sweep
// invocations never overlap within one process. Panics inside a job
// are recovered and logged.
func (s *Service) Start(ctx context.Context) error {
	s.c = cron.New(cron.WithLocation(s.loc))
	for _, j := range s.jobs {
		j := j
		if _, err := s.c.AddFunc(j.Spec, func() { s.runOne(ctx, j) }); err != nil {
			return err
		}
		s.log.Info().Str("job", j.Name).Str("spec", j.Spec).Msg("job registered")
	}
	s.c.Start()
	s.log.Info().Str("tz", s.loc.String()).Int("jobs", len(s.jobs)).Msg("scheduler started")
	return nil
}

// Stop halts the cron runner and waits for in-flight jobs.
func (s *Service) Stop() {
	if s.c == nil {
		return
	}
	<-s.c.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Service) runOne(ctx context.Context, j Job) {
	s.mu.Lock()
	if s.running[j.Name] {
		s.mu.Unlock()
		s.log.Warn().Str("job", j.Name).Msg("previous run still in progress, tick skipped")
		return
	}
	s.running[j.Name] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running[j.Name] = false
		s.mu.Unlock()
	}()
	// cron runs each tick in its own goroutine, so an escaped panic
	// would take down the whole worker process.
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("job", j.Name).Interface("panic", r).Msg("job panicked")
		}
	}()

	runCtx := ctx
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := j.Run(runCtx)
	if err != nil {
		s.log.Warn().Str("job", j.Name).Dur("took", time.Since(start)).Err(err).Msg("job failed")
		return
	}
	s.log.Debug().Str("job", j.Name).Dur("took", time.Since(start)).Msg("job ok")
}
