// Package scheduler starts harvest jobs for the configured collections on a
// cron schedule.
package scheduler

import (
	"context"
	"fmt"

	"github.com/nggdpp/ndc-harvester/internal/config"
	"github.com/nggdpp/ndc-harvester/internal/jobs"
	"github.com/nggdpp/ndc-harvester/internal/logging"
	"github.com/nggdpp/ndc-harvester/internal/models"
	"github.com/robfig/cron/v3"
)

// JobStarter starts one harvest job.
type JobStarter interface {
	Start(req jobs.Request) (*models.HarvestJob, error)
}

// Scheduler re-reads the sources file on every tick so edits take effect
// without a restart.
type Scheduler struct {
	cronRunner  *cron.Cron
	starter     JobStarter
	cronExpr    string
	sourcesFile string
	log         *logging.Logger
}

func New(starter JobStarter, cronExpr, sourcesFile string, log *logging.Logger) *Scheduler {
	return &Scheduler{
		cronRunner: cron.New(
			cron.WithSeconds(),
			cron.WithChain(
				cron.SkipIfStillRunning(cron.DefaultLogger),
				cron.Recover(cron.DefaultLogger),
			),
		),
		starter:     starter,
		cronExpr:    cronExpr,
		sourcesFile: sourcesFile,
		log:         logging.OrNop(log).Component("scheduler"),
	}
}

// Start registers the harvest entry and starts the cron runner.
func (s *Scheduler) Start() error {
	if _, err := config.LoadSources(s.sourcesFile); err != nil {
		return err
	}
	entryID, err := s.cronRunner.AddFunc(s.cronExpr, func() {
		if _, err := s.RunOnce(); err != nil {
			s.log.Error("scheduled harvest failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.cronExpr, err)
	}
	s.cronRunner.Start()
	s.log.Info("scheduler started", "entry", entryID, "cron", s.cronExpr, "sources", s.sourcesFile)
	return nil
}

// RunOnce starts a job per request of every configured collection and
// returns the started job ids.
func (s *Scheduler) RunOnce() ([]string, error) {
	sources, err := config.LoadSources(s.sourcesFile)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, c := range sources.Collections {
		for _, req := range c.Requests() {
			job, err := s.starter.Start(req)
			if err != nil {
				s.log.Warn("could not start harvest", "collection", c.ID, "error", err)
				continue
			}
			ids = append(ids, job.ID)
		}
	}
	s.log.Info("scheduled harvest started", "collections", len(sources.Collections), "jobs", len(ids))
	return ids, nil
}

// Entries reports how many cron entries are registered.
func (s *Scheduler) Entries() int {
	return len(s.cronRunner.Entries())
}

// Stop stops the cron runner and waits for a running tick to return.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cronRunner.Stop()
	select {
	case <-done.Done():
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler shutdown timed out")
	}
}
