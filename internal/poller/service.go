package poller

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"linkwatch/internal/storage"
	logx "linkwatch/pkg/logx"
)

const stateLastCycle = "last_cycle_at"

// Service runs RunCycle on a fixed interval. Overlapping runs are skipped:
// if a cycle is still in flight when the next tick fires, the tick is
// dropped rather than queued.
type Service struct {
	log      logx.Logger
	p        *Poller
	st       storage.Store
	interval time.Duration

	cron   *cron.Cron
	cancel context.CancelFunc
}

func NewService(interval time.Duration, p *Poller, st storage.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:      log,
		p:        p,
		st:       st,
		interval: interval,
	}
}

// Start schedules the polling loop. The first cycle fires one full interval
// after Start returns.
func (s *Service) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger{s.log}),
	))
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, func() { s.runOnce(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	s.cron.Start()
	s.log.Info("polling started",
		logx.Duration("interval", s.interval),
		logx.Time("first_cycle", time.Now().Add(s.interval)))
	return nil
}

func (s *Service) runOnce(ctx context.Context) {
	start := time.Now()
	stats := s.p.RunCycle(ctx)
	s.log.Info("cycle finished",
		logx.Int("checked", stats.Checked),
		logx.Int("posted", stats.Posted),
		logx.Int("errors", stats.Errors),
		logx.Duration("took", time.Since(start)))

	if err := s.st.SetState(ctx, stateLastCycle, time.Now().UTC().Format(time.RFC3339)); err != nil {
		s.log.Warn("failed to record cycle timestamp", logx.Err(err))
	}
}

// Stop drains the loop: no new cycles are scheduled, and an in-flight cycle
// is allowed to finish its current source step before halting. If the cycle
// does not finish before ctx expires, it is cancelled outright.
func (s *Service) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	s.p.RequestDrain()
	done := s.cron.Stop()

	select {
	case <-done.Done():
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return fmt.Errorf("drain timed out: %w", ctx.Err())
	}
}

// cronLogger routes the scheduler's own messages, notably skipped overlapping
// runs, into the service log.
type cronLogger struct {
	log logx.Logger
}

func (c cronLogger) Info(msg string, kv ...any) {
	if msg == "skip" {
		c.log.Warn("cycle still running, skipping tick")
		return
	}
	c.log.Debug(msg, logx.Any("detail", kv))
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.log.Error(msg, logx.Err(err), logx.Any("detail", kv))
}
