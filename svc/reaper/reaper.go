package reaper

import (
	"context"
	"time"

	"sealbin/metrics"
	"sealbin/svc/store"
	"sealbin/svc/util"

	"github.com/pkg/errors"
)

// Sweeper is the part of the store the reaper drives.
type Sweeper interface {
	Sweep() int
	Stats() store.Stats
}

type Reaper struct {
	st       Sweeper
	interval time.Duration
}

func New(st Sweeper, interval time.Duration) (*Reaper, error) {
	if st == nil {
		return nil, errors.New("reaper: nil store")
	}
	if interval <= 0 {
		return nil, errors.New("reaper: interval must be positive")
	}
	return &Reaper{st: st, interval: interval}, nil
}

// Run sweeps on every tick until ctx is cancelled. It always returns nil so
// it can sit in an errgroup next to the HTTP server.
func (r *Reaper) Run(ctx context.Context) error {
	log := util.Component("reaper")
	runID := util.RequestIDFrom("")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	log.Info().
		Str("request_id", runID).
		Dur("interval", r.interval).
		Msg("reaper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().
				Str("request_id", runID).
				Msg("reaper shutting down")
			return nil
		case <-ticker.C:
			removed := r.SweepOnce()
			if removed > 0 {
				stats := r.st.Stats()
				log.Info().
					Str("request_id", runID).
					Int("removed", removed).
					Int64("entries", stats.Entries).
					Int64("bytes", stats.Bytes).
					Msg("expired pastes reaped")
			}
		}
	}
}

// SweepOnce runs a single sweep. A panic is logged and swallowed so the next
// tick simply tries again.
func (r *Reaper) SweepOnce() (removed int) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			util.Component("reaper").Error().Interface("panic", rec).Msg("sweep failed, retrying next tick")
			removed = 0
		}
	}()
	removed = r.st.Sweep()
	metrics.SweepCycles.Inc()
	metrics.SweepDuration.Observe(time.Since(start).Seconds())
	metrics.PasteDeleted.WithLabelValues(metrics.CauseExpired).Add(float64(removed))
	stats := r.st.Stats()
	metrics.StoreEntries.Set(float64(stats.Entries))
	metrics.StoreBytes.Set(float64(stats.Bytes))
	return removed
}
