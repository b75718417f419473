package scheduler

import (
	"context"
	"time"

	obscontext "github.com/smallbiznis/pharmasettle/internal/observability/context"
	obslogger "github.com/smallbiznis/pharmasettle/internal/observability/logger"
	"go.uber.org/zap"
)

// sweepRun is the bookkeeping of one job execution, carried in the context
// so nested calls report into the same run.
type sweepRun struct {
	job       string
	id        string
	startedAt time.Time
	cutoff    time.Time
	batches   int
	expired   int
	failures  int
}

type sweepRunKey struct{}

func (r *sweepRun) batchDone(expired int) {
	if r == nil {
		return
	}
	r.batches++
	if expired > 0 {
		r.expired += expired
	}
}

func (r *sweepRun) fail() {
	if r != nil {
		r.failures++
	}
}

func (r *sweepRun) fields() []zap.Field {
	fields := []zap.Field{
		zap.String("job", r.job),
		zap.String("run_id", r.id),
		zap.Int("batches", r.batches),
		zap.Int("expired", r.expired),
		zap.Int("failures", r.failures),
	}
	if !r.cutoff.IsZero() {
		fields = append(fields, zap.Time("cutoff", r.cutoff))
	}
	return fields
}

// beginRun returns the run already in ctx, or starts a new one tagged with
// the scheduler actor. owner reports whether the caller started it.
func (s *Scheduler) beginRun(ctx context.Context, job string) (context.Context, *sweepRun, bool) {
	if run, ok := ctx.Value(sweepRunKey{}).(*sweepRun); ok && run != nil {
		return ctx, run, false
	}
	run := &sweepRun{
		job:       job,
		id:        s.genID.Generate().String(),
		startedAt: s.clock.Now(),
	}
	ctx = context.WithValue(ctx, sweepRunKey{}, run)
	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	ctx = obscontext.WithRequestID(ctx, run.id)

	s.logger(ctx).Debug("scheduler.job.start", zap.String("job", job), zap.String("run_id", run.id))
	return ctx, run, true
}

func (s *Scheduler) endRun(ctx context.Context, run *sweepRun) {
	fields := append(run.fields(), zap.Duration("elapsed", s.clock.Now().Sub(run.startedAt)))
	switch {
	case run.failures > 0:
		s.logger(ctx).Warn("scheduler.job.finish", fields...)
	case run.expired > 0:
		s.logger(ctx).Info("scheduler.job.finish", fields...)
	default:
		s.logger(ctx).Debug("scheduler.job.finish", fields...)
	}
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}
