// Package janitor runs scheduled retention: idle memories leave the store
// after their retention window, finished evaluation runs after theirs.
package janitor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"ragcore/internal/config"
	"ragcore/internal/memory"
	"ragcore/internal/repository"
)

// Janitor owns the cron schedule. One job covers both retention sweeps so
// they never overlap each other.
type Janitor struct {
	memories *memory.Service
	evalRuns repository.EvalRuns
	memCfg   config.Memory
	evalCfg  config.Evaluation
	logger   *zap.Logger
	cron     *cron.Cron
}

// New builds the janitor; Start arms it.
func New(
	memories *memory.Service,
	evalRuns repository.EvalRuns,
	memCfg config.Memory,
	evalCfg config.Evaluation,
	logger *zap.Logger,
) *Janitor {
	return &Janitor{
		memories: memories,
		evalRuns: evalRuns,
		memCfg:   memCfg,
		evalCfg:  evalCfg,
		logger:   logger,
		cron:     cron.New(),
	}
}

// Start schedules the sweep. An unparsable schedule is a wiring error and
// surfaces immediately.
func (j *Janitor) Start() error {
	_, err := j.cron.AddFunc(j.memCfg.JanitorSchedule, j.sweep)
	if err != nil {
		return err
	}
	j.cron.Start()
	j.logger.Info("Janitor scheduled", zap.String("schedule", j.memCfg.JanitorSchedule))
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	j.Sweep(ctx)
}

// Sweep runs one retention pass. Exposed for the CLI and tests.
func (j *Janitor) Sweep(ctx context.Context) {
	purged, err := j.memories.Purge(ctx, j.memCfg.RetentionDays)
	if err != nil {
		j.logger.Error("Memory retention sweep failed", zap.Error(err))
	} else if purged > 0 {
		j.logger.Info("Purged idle memories", zap.Int("count", purged))
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -j.evalCfg.RunRetentionDays)
	removed, err := j.evalRuns.DeleteRunsOlderThan(ctx, cutoff)
	if err != nil {
		j.logger.Error("Evaluation retention sweep failed", zap.Error(err))
	} else if removed > 0 {
		j.logger.Info("Removed expired evaluation runs", zap.Int("count", removed))
	}
}
