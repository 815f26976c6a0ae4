package lim

import (
	"sync"
	"time"

	"sealbin/metrics"
	"sealbin/svc/util"
)

type AnomalyConfig struct {
	Buckets     int
	Tick        time.Duration
	MinRequests int64
	// ThresholdPct is the server error percentage that triggers adaptive mode.
	ThresholdPct float64
}

func DefaultAnomalyConfig() AnomalyConfig {
	return AnomalyConfig{Buckets: 5, Tick: time.Minute, MinRequests: 10, ThresholdPct: 5}
}

// AnomalyDetector keeps a ring of per-tick request and error counts and
// fires onAnomaly when the error rate across the ring crosses the threshold.
type AnomalyDetector struct {
	mu        sync.Mutex
	cfg       AnomalyConfig
	window    []bucket
	current   int
	onAnomaly func()

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}
type bucket struct {
	requests int64
	errors   int64
}

func NewAnomalyDetector(c AnomalyConfig, onAnomaly func()) *AnomalyDetector {
	def := DefaultAnomalyConfig()
	if c.Buckets <= 0 {
		c.Buckets = def.Buckets
	}
	if c.Tick <= 0 {
		c.Tick = def.Tick
	}
	return &AnomalyDetector{
		cfg:       c,
		window:    make([]bucket, c.Buckets),
		onAnomaly: onAnomaly,
		done:      make(chan struct{}),
	}
}
func (d *AnomalyDetector) Start() {
	d.startOnce.Do(func() {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			ticker := time.NewTicker(d.cfg.Tick)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					d.AdvanceWindow()
				case <-d.done:
					return
				}
			}
		}()
	})
}

// Stop is safe to call more than once and waits for the ticker goroutine.
func (d *AnomalyDetector) Stop() {
	d.stopOnce.Do(func() { close(d.done) })
	d.wg.Wait()
}
func (d *AnomalyDetector) RecordRequest() {
	d.mu.Lock()
	d.window[d.current].requests++
	d.mu.Unlock()
}
func (d *AnomalyDetector) RecordError() {
	d.mu.Lock()
	d.window[d.current].errors++
	d.mu.Unlock()
}

// AdvanceWindow evaluates the ring and then starts a fresh bucket. It
// returns whether an anomaly was reported.
func (d *AnomalyDetector) AdvanceWindow() bool {
	d.mu.Lock()
	var reqs, errs int64
	for _, b := range d.window {
		reqs += b.requests
		errs += b.errors
	}
	var rate float64
	if reqs > 0 {
		rate = float64(errs) / float64(reqs) * 100
	}
	d.current = (d.current + 1) % len(d.window)
	d.window[d.current] = bucket{}
	d.mu.Unlock()

	metrics.RecentErrorRatePercent.Set(rate)
	if reqs < d.cfg.MinRequests || rate <= d.cfg.ThresholdPct {
		return false
	}
	util.Component("limiter").Warn().
		Float64("error_rate", rate).
		Int64("total_reqs", reqs).
		Int64("total_errs", errs).
		Msg("high error rate, tightening rate limits")
	if d.onAnomaly != nil {
		d.onAnomaly()
	}
	return true
}
