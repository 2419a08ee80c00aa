// Package scheduler translates a run request into enqueued queue rows,
// observes completion, and signals shutdown (spec §4.5).
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/mireiodev/gemforge/internal/logging"
	"github.com/mireiodev/gemforge/internal/queue"
)

// Job is one unit of work a Scheduler enqueues.
type Job struct {
	Name       string
	JobType    string
	ConfigBlob []byte
	Priority   int
}

// Scheduler is the common lifecycle every scheduling mode implements.
type Scheduler interface {
	Start(ctx context.Context) error
	Tick(ctx context.Context) (done bool, err error)
	Stop(ctx context.Context) error
}

// ErrUnknownMode is spec §6's CONFIG_ERROR for an unrecognized
// scheduler_mode string.
type ErrUnknownMode struct{ Mode string }

func (e *ErrUnknownMode) Error() string { return fmt.Sprintf("scheduler: unknown mode %q", e.Mode) }

// New selects a Scheduler by mode ("oneshot" | "cron"). Unknown modes
// return *ErrUnknownMode rather than starting (spec §4.5 "Selection").
func New(mode string, jobs []Job, store queue.Store, interval time.Duration, log logging.Logger) (Scheduler, error) {
	switch mode {
	case "oneshot":
		return NewOneShotScheduler(jobs, store, log), nil
	case "cron":
		return NewCronScheduler(jobs, store, interval, log), nil
	default:
		return nil, &ErrUnknownMode{Mode: mode}
	}
}

// OneShotScheduler enqueues every configured job once and signals done once
// the queue drains.
type OneShotScheduler struct {
	jobs  []Job
	store queue.Store
	log   logging.Logger
}

func NewOneShotScheduler(jobs []Job, store queue.Store, log logging.Logger) *OneShotScheduler {
	if log == nil {
		log = logging.Discard()
	}
	return &OneShotScheduler{jobs: jobs, store: store, log: log}
}

// Start enqueues every job as a PENDING row.
func (s *OneShotScheduler) Start(ctx context.Context) error {
	for _, j := range s.jobs {
		row := &queue.JobRow{Name: j.Name, JobType: j.JobType, ConfigBlob: j.ConfigBlob, Priority: j.Priority}
		if err := s.store.Add(ctx, row); err != nil {
			return fmt.Errorf("scheduler: enqueue %s: %w", j.Name, err)
		}
	}
	s.log.Info("oneshot scheduler enqueued jobs", "count", len(s.jobs))
	return nil
}

// Tick queries status; when pending+in_progress == 0, it reports done.
func (s *OneShotScheduler) Tick(ctx context.Context) (bool, error) {
	status, err := s.store.Status(ctx)
	if err != nil {
		return false, err
	}
	return status.Pending+status.InProgress == 0, nil
}

// Stop purges completed rows.
func (s *OneShotScheduler) Stop(ctx context.Context) error {
	return s.store.PurgeCompleted(ctx)
}

// CronScheduler periodically re-enqueues its configured jobs at Interval.
// Per spec §4.5 it is "reserved for future cron-driven periodic re-enqueue;
// no behavior mandated beyond the same lifecycle hooks" — implemented here
// as a fixed-interval re-submission: each Tick compares the time elapsed
// since the last enqueue against Interval (stdlib time only), since the pack
// contributes no grounded cron-expression library and spec.md mandates no
// expression syntax (see DESIGN.md).
type CronScheduler struct {
	jobs     []Job
	store    queue.Store
	interval time.Duration
	log      logging.Logger

	lastRun time.Time
}

func NewCronScheduler(jobs []Job, store queue.Store, interval time.Duration, log logging.Logger) *CronScheduler {
	if log == nil {
		log = logging.Discard()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &CronScheduler{jobs: jobs, store: store, interval: interval, log: log}
}

func (s *CronScheduler) Start(ctx context.Context) error {
	return s.enqueue(ctx)
}

// Tick re-enqueues once Interval has elapsed since the last run. It never
// reports done: a cron scheduler runs until externally stopped.
func (s *CronScheduler) Tick(ctx context.Context) (bool, error) {
	if time.Since(s.lastRun) < s.interval {
		return false, nil
	}
	return false, s.enqueue(ctx)
}

func (s *CronScheduler) Stop(ctx context.Context) error {
	return s.store.PurgeCompleted(ctx)
}

func (s *CronScheduler) enqueue(ctx context.Context) error {
	for _, j := range s.jobs {
		row := &queue.JobRow{Name: j.Name, JobType: j.JobType, ConfigBlob: j.ConfigBlob, Priority: j.Priority}
		if err := s.store.Add(ctx, row); err != nil {
			return fmt.Errorf("scheduler: enqueue %s: %w", j.Name, err)
		}
	}
	s.lastRun = now()
	s.log.Info("cron scheduler re-enqueued jobs", "count", len(s.jobs))
	return nil
}

var now = time.Now
