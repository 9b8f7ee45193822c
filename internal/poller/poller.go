// Package poller drives the poll-dedup-publish cycle over all configured
// sources.
package poller

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"linkwatch/internal/broadcast"
	"linkwatch/internal/sources"
	"linkwatch/internal/storage"
	logx "linkwatch/pkg/logx"
)

const defaultRetentionDays = 30

type Config struct {
	// RetentionDays is the dedup record retention window. <=0 means 30.
	RetentionDays int
}

// CycleStats summarizes one full pass over all sources.
type CycleStats struct {
	Checked int
	Posted  int
	Errors  int
	Pruned  int64
	Drained bool
}

type Poller struct {
	log  logx.Logger
	cfg  Config
	srcs []sources.Source
	st   storage.Store
	disp *broadcast.Dispatcher

	quitOnce sync.Once
	quit     chan struct{}
}

func New(cfg Config, srcs []sources.Source, st storage.Store, disp *broadcast.Dispatcher, log logx.Logger) *Poller {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = defaultRetentionDays
	}
	return &Poller{
		log:  log,
		cfg:  cfg,
		srcs: srcs,
		st:   st,
		disp: disp,
		quit: make(chan struct{}),
	}
}

// RequestDrain asks a running cycle to halt after its current source step.
// The in-flight step is never interrupted; the cycle simply stops before the
// next source.
func (p *Poller) RequestDrain() {
	p.quitOnce.Do(func() { close(p.quit) })
}

func (p *Poller) draining() bool {
	select {
	case <-p.quit:
		return true
	default:
		return false
	}
}

// RunCycle performs one pass: for every source, fetch the newest item, skip
// it if already broadcast, otherwise broadcast and mark it seen. A failure in
// one source never aborts the cycle. After all sources, old dedup records are
// pruned.
func (p *Poller) RunCycle(ctx context.Context) CycleStats {
	var stats CycleStats

	for _, src := range p.srcs {
		if ctx.Err() != nil || p.draining() {
			p.log.Info("cycle halted before next source", logx.String("source", src.Name()))
			stats.Drained = true
			return stats
		}
		stats.Checked++
		posted, err := p.checkSource(ctx, src)
		if err != nil {
			stats.Errors++
			p.log.Error("source check failed",
				logx.String("source", src.Name()),
				logx.Err(err))
			continue
		}
		if posted {
			stats.Posted++
		}
	}

	pruned, err := p.st.PruneOlderThan(ctx, p.cfg.RetentionDays)
	if err != nil {
		p.log.Error("prune failed", logx.Err(err))
	} else if pruned > 0 {
		p.log.Info("pruned old dedup records", logx.Int64("deleted", pruned))
	}
	stats.Pruned = pruned
	return stats
}

// checkSource runs the fetch -> dedup -> broadcast -> mark-seen steps for one
// source. Panics are contained here so a misbehaving adapter cannot take down
// the cycle.
func (p *Poller) checkSource(ctx context.Context, src sources.Source) (posted bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	item, ok, err := src.Latest(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		p.log.Debug("no new item", logx.String("source", src.Name()))
		return false, nil
	}

	if p.st.Seen(ctx, item.URL) {
		p.log.Debug("already broadcast", logx.String("url", item.URL))
		return false, nil
	}

	p.log.Info("new item found",
		logx.String("source", src.Name()),
		logx.String("url", item.URL))

	res := p.disp.Broadcast(ctx, item.URL, src.Name())

	// Mark seen after the broadcast attempt regardless of per-target
	// failures, so a partially failed fan-out is not replayed every cycle.
	if err := p.st.MarkSeen(ctx, item.URL, src.Name()); err != nil {
		return res.Sent > 0, fmt.Errorf("mark seen: %w", err)
	}
	return true, nil
}
