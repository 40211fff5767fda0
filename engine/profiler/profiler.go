// Package profiler tracks frame timings of the render scheduler,
// accumulated per caller-supplied key (the Scene passes the object type),
// and the usual Go memory statistics, reporting through the structured
// log at a fixed interval.
package profiler

import (
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Profiler accumulates frame and per-key durations for performance
// monitoring. Stats are flushed to the log once per updateInterval.
type Profiler struct {
	log zerolog.Logger

	mu             sync.Mutex
	frameCount     int
	bandTotals     map[string]time.Duration
	lastTime       time.Time
	updateInterval time.Duration

	memStats       runtime.MemStats
	lastTotalAlloc uint64
}

// NewProfiler creates a Profiler flushing once per second.
func NewProfiler(log zerolog.Logger) *Profiler {
	return &Profiler{
		log:            log.With().Str("component", "profiler").Logger(),
		bandTotals:     make(map[string]time.Duration),
		lastTime:       time.Now(),
		updateInterval: time.Second,
	}
}

// Measure adds the time elapsed since start to the total kept under the
// given key for the current interval.
func (p *Profiler) Measure(band string, start time.Time) {
	p.mu.Lock()
	p.bandTotals[band] += time.Since(start)
	p.mu.Unlock()
}

// Tick is called once per frame. When the update interval elapsed, the
// accumulated statistics are logged and reset. Returns true when stats
// were flushed.
func (p *Profiler) Tick() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.frameCount++
	elapsed := time.Since(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	fps := float64(p.frameCount) / elapsed.Seconds()

	runtime.ReadMemStats(&p.memStats)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	event := p.log.Debug().
		Float64("fps", fps).
		Float64("heapMB", allocMB).
		Float64("allocMBs", allocRateMB).
		Uint32("gc", p.memStats.NumGC)

	bands := make([]string, 0, len(p.bandTotals))
	for band := range p.bandTotals {
		bands = append(bands, band)
	}
	sort.Strings(bands)
	for _, band := range bands {
		perFrame := p.bandTotals[band] / time.Duration(p.frameCount)
		event = event.Dur(band, perFrame)
		p.bandTotals[band] = 0
	}
	event.Msg("frame statistics")

	p.frameCount = 0
	p.lastTime = time.Now()
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}
