// Package scheduler runs periodic settlement housekeeping.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pharmasettle/internal/clock"
	obsmetrics "github.com/smallbiznis/pharmasettle/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/pharmasettle/internal/payment/domain"
	"github.com/smallbiznis/pharmasettle/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const JobExpireGatewayPayments = "expire_gateway_payments"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log        *zap.Logger
	PaymentSvc paymentdomain.Service
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     Config              `optional:"true"`
	Locker     *ratelimit.Locker   `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	paymentSvc paymentdomain.Service
	locker     *ratelimit.Locker
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.PaymentSvc == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		paymentSvc: p.PaymentSvc,
		locker:     p.Locker,
		obsMetrics: p.ObsMetrics,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	release, ok := s.acquire(ctx, name)
	if !ok {
		s.log.Debug("job held by another instance", zap.String("job", name))
		s.obsMetrics.RecordSchedulerJob(ctx, name, "skipped")
		return nil
	}
	defer release()

	ctx, run, owner := s.beginRun(ctx, name)
	err := fn(ctx)
	if err != nil {
		run.fail()
	}
	if owner {
		s.endRun(ctx, run)
	}

	switch {
	case err == nil:
		s.obsMetrics.RecordSchedulerJob(ctx, name, "ok")
		return nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		// soft timeout, the next tick picks up the rest
		s.obsMetrics.RecordSchedulerJob(ctx, name, "timeout")
		s.logger(ctx).Warn("job timed out", zap.String("job", name), zap.Duration("timeout", timeout), zap.Error(err))
		return nil
	default:
		s.obsMetrics.RecordSchedulerJob(ctx, name, "error")
		return fmt.Errorf("%s: %w", name, err)
	}
}

// acquire takes the cluster-wide job lock. Without redis every instance runs every job.
func (s *Scheduler) acquire(ctx context.Context, job string) (func(), bool) {
	noop := func() {}
	if s.locker == nil {
		return noop, true
	}
	key := "scheduler:" + job
	token, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
	if err != nil {
		s.log.Warn("scheduler lock unavailable", zap.String("job", job), zap.Error(err))
		return noop, true
	}
	if !ok {
		return nil, false
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, key, token); err != nil {
			s.log.Warn("scheduler lock release failed", zap.String("job", job), zap.Error(err))
		}
	}, true
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{JobExpireGatewayPayments, s.isJobEnabled(JobExpireGatewayPayments), func(ctx context.Context) error {
			return s.runJob(ctx, JobExpireGatewayPayments, 30*time.Second, s.ExpireGatewayPaymentsJob)
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}

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

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// ExpireGatewayPaymentsJob fails checkouts the gateway can no longer confirm,
// batch by batch until a short batch comes back.
func (s *Scheduler) ExpireGatewayPaymentsJob(ctx context.Context) error {
	ctx, run, owner := s.beginRun(ctx, JobExpireGatewayPayments)
	if owner {
		defer s.endRun(ctx, run)
	}
	run.cutoff = s.clock.Now().Add(-s.cfg.StaleAfter)

	for ctx.Err() == nil {
		expired, err := s.paymentSvc.ExpireStale(ctx, run.cutoff, s.cfg.BatchSize)
		run.batchDone(expired)
		if err != nil {
			s.logger(ctx).Error("scheduler.payment.expire.failed", append(run.fields(), zap.Error(err))...)
			return err
		}
		if expired < s.cfg.BatchSize {
			return nil
		}
	}
	return ctx.Err()
}
