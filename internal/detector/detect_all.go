package detector

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/rtp-recorder/internal/feed"
	"github.com/tphakala/rtp-recorder/internal/logger"
)

// DetectFunc receives each finished detection. It runs on the task's goroutine.
type DetectFunc func(ctx context.Context, def feed.Definition, res Result)

// DetectAll runs one detection task per feed concurrently and returns once
// every task has resolved. onResult may be nil. Tasks never fail; the group
// only bounds concurrency when Config.MaxConcurrent is set.
func (d *Detector) DetectAll(ctx context.Context, defs []feed.Definition, onResult DetectFunc) Summary {
	var (
		mu      sync.Mutex
		summary = make(Summary)
		g       errgroup.Group
	)

	d.logger.Info("starting source detection",
		logger.Int("feeds", len(defs)),
		logger.Duration("timeout", d.cfg.Timeout),
		logger.Int("max_concurrent", d.cfg.MaxConcurrent))

	if d.cfg.MaxConcurrent > 0 {
		g.SetLimit(d.cfg.MaxConcurrent)
	}

	for i := range defs {
		def := defs[i]
		g.Go(func() error {
			res := d.Detect(ctx, def)

			mu.Lock()
			summary[res.Outcome]++
			mu.Unlock()

			if onResult != nil {
				onResult(ctx, def, res)
			}
			return nil
		})
	}
	_ = g.Wait() // tasks report through the summary

	d.logger.Info("source detection finished",
		logger.Int("detected", summary[OutcomeDetected]),
		logger.Int("timed_out", summary[OutcomeTimedOut]),
		logger.Int("bind_conflict", summary[OutcomeBindConflict]),
		logger.Int("bind_error", summary[OutcomeBindError]),
		logger.Int("canceled", summary[OutcomeCanceled]))

	return summary
}
