package scheduler

import (
	"context"
	"crypto/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	obscontext "github.com/smallbiznis/bizbooks/internal/observability/context"
	obslogger "github.com/smallbiznis/bizbooks/internal/observability/logger"
	"go.uber.org/zap"
)

// jobRun tracks one execution of a job. The run ID doubles as the request ID
// so every log line and audit row of the run can be correlated.
type jobRun struct {
	job       string
	runID     string
	batchSize int
	startedAt time.Time
	processed atomic.Int64
	failures  atomic.Int64
}

type jobRunKey struct{}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func newRunID(now time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}

func (r *jobRun) AddProcessed(count int) {
	if r != nil && count > 0 {
		r.processed.Add(int64(count))
	}
}

func (r *jobRun) IncError() {
	if r != nil {
		r.failures.Add(1)
	}
}

func (r *jobRun) Errors() int64 {
	if r == nil {
		return 0
	}
	return r.failures.Load()
}

func (r *jobRun) fields() []zap.Field {
	return []zap.Field{zap.String("job", r.job), zap.String("run_id", r.runID)}
}

// ensureJobRun attaches a run to ctx. owner is false when ctx already
// carries one, in which case the caller must not log start or finish.
func (s *Scheduler) ensureJobRun(ctx context.Context, job string, batchSize int) (_ context.Context, run *jobRun, owner bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if existing, ok := ctx.Value(jobRunKey{}).(*jobRun); ok && existing != nil {
		return ctx, existing, false
	}

	now := s.clock.Now()
	run = &jobRun{job: job, runID: newRunID(now), batchSize: batchSize, startedAt: now}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	return obscontext.WithRequestID(ctx, run.runID), run, true
}

func (s *Scheduler) withOrg(ctx context.Context, orgID snowflake.ID) context.Context {
	if orgID == 0 {
		return ctx
	}
	return obscontext.WithOrgID(ctx, orgID.String())
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	s.logger(ctx).Info("scheduler.job.start", append(run.fields(), zap.Int("batch_size", run.batchSize))...)
}

func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	fields := append(run.fields(),
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int64("processed_count", run.processed.Load()),
		zap.Int64("error_count", run.Errors()),
	)
	if run.Errors() > 0 {
		s.logger(ctx).Warn("scheduler.job.finish", fields...)
		return
	}
	s.logger(ctx).Info("scheduler.job.finish", fields...)
}

// logJobError counts err against the run and logs it scoped to orgID.
func (s *Scheduler) logJobError(ctx context.Context, run *jobRun, msg string, orgID snowflake.ID, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	run.IncError()
	all := []zap.Field{zap.Error(err)}
	if run != nil {
		all = append(all, run.fields()...)
	}
	s.logger(s.withOrg(ctx, orgID)).Error(msg, append(all, fields...)...)
}

func idString(id snowflake.ID) string {
	if id == 0 {
		return ""
	}
	return id.String()
}
