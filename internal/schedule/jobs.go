package schedule

import (
	"context"

	"go.uber.org/zap"
)

// CodeSweeper deletes expired verification codes. *goRecover.Engine
// satisfies it.
type CodeSweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// SweepJob removes expired verification codes on a schedule.
type SweepJob struct {
	sweeper CodeSweeper
	logger  *zap.Logger
}

func NewSweepJob(sweeper CodeSweeper, logger *zap.Logger) *SweepJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SweepJob{sweeper: sweeper, logger: logger}
}

func (j *SweepJob) Name() string { return "sweep_expired_codes" }

func (j *SweepJob) Run(ctx context.Context) error {
	n, err := j.sweeper.SweepExpired(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		j.logger.Info("expired codes removed", zap.Int64("count", n))
	}
	return nil
}

// PairPurger drops expired selector/token pairs held by an in-process
// identity provider.
type PairPurger interface {
	PurgeExpiredPairs() int
}

type PurgeJob struct {
	purger PairPurger
	logger *zap.Logger
}

func NewPurgeJob(purger PairPurger, logger *zap.Logger) *PurgeJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PurgeJob{purger: purger, logger: logger}
}

func (j *PurgeJob) Name() string { return "purge_expired_pairs" }

func (j *PurgeJob) Run(context.Context) error {
	if n := j.purger.PurgeExpiredPairs(); n > 0 {
		j.logger.Info("expired pairs removed", zap.Int("count", n))
	}
	return nil
}
