package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	auditdomain "github.com/smallbiznis/bizbooks/internal/audit/domain"
	"github.com/smallbiznis/bizbooks/internal/clock"
	ledgerdomain "github.com/smallbiznis/bizbooks/internal/ledger/domain"
	"github.com/smallbiznis/bizbooks/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

const (
	JobIntegritySweep = "integrity_sweep"
	JobRecoverySweep  = "recovery_sweep"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	TrialBalance ledgerdomain.TrialBalanceService
	AuditSvc     auditdomain.Service `optional:"true"`
	Telemetry    *telemetry.Metrics  `optional:"true"`
	Redis        *redis.Client       `optional:"true"`
	Clock        clock.Clock         `optional:"true"`
	Config       Config              `optional:"true"`
}

// Scheduler runs background ledger maintenance: the trial balance integrity
// sweep and recovery of postings interrupted between the ledger commit and
// the invoice or payment update.
type Scheduler struct {
	db           *gorm.DB
	log          *zap.Logger
	cfg          Config
	clock        clock.Clock
	trialBalance ledgerdomain.TrialBalanceService
	auditSvc     auditdomain.Service
	telemetry    *telemetry.Metrics
	locker       Locker
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.TrialBalance == nil {
		return nil, ErrInvalidConfig
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Scheduler{
		db:           p.DB,
		log:          p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:          p.Config.withDefaults(),
		clock:        clk,
		trialBalance: p.TrialBalance,
		auditSvc:     p.AuditSvc,
		telemetry:    p.Telemetry,
		locker:       NewLocker(p.Redis),
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	release, err := s.locker.Obtain(parent, name, s.cfg.LockTTL)
	if errors.Is(err, ErrLockHeld) {
		s.log.Debug("job skipped, lock held elsewhere", zap.String("job", name))
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: obtain lock: %w", name, err)
	}
	defer release(context.Background())

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}

	err = fn(ctx)
	if owner {
		if err != nil && run.Errors() == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick picks up the rest
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every job a single time.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	err = errors.Join(err, s.runJob(parent, JobRecoverySweep, s.cfg.BatchSize, s.cfg.JobTimeout, s.RecoverySweepJob))
	err = errors.Join(err, s.runJob(parent, JobIntegritySweep, s.cfg.BatchSize, s.cfg.JobTimeout, func(ctx context.Context) error {
		_, sweepErr := s.IntegritySweepJob(ctx)
		return sweepErr
	}))
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
