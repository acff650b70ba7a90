package ui

import (
	"sync"
	"time"
)

// speedWindow is the minimum interval between speed samples.
const speedWindow = 500 * time.Millisecond

// ProgressTracker accumulates search progress. It is safe for concurrent use.
type ProgressTracker struct {
	mu          sync.RWMutex
	searched    int
	records     int
	currentFile string
	startTime   time.Time
	errors      []ErrorEvent
	warnings    []ErrorEvent

	lastSearched  int
	lastSpeedCalc time.Time
	currentSpeed  float64 // files/sec
	avgSpeed      float64
	peakSpeed     float64
	speedSamples  int

	now func() time.Time
}

// SpeedStats contains speed metrics for display.
type SpeedStats struct {
	Current float64 // Current files/sec
	Avg     float64 // Rolling average
	Peak    float64 // Maximum observed
}

// ProgressStats contains a snapshot of current progress.
type ProgressStats struct {
	Searched    int
	Records     int
	CurrentFile string
	Elapsed     time.Duration
	ErrorCount  int
	WarnCount   int
	Speed       SpeedStats
}

// NewProgressTracker creates a new progress tracker.
func NewProgressTracker() *ProgressTracker {
	return newProgressTracker(time.Now)
}

func newProgressTracker(now func() time.Time) *ProgressTracker {
	start := now()
	return &ProgressTracker{
		startTime:     start,
		lastSpeedCalc: start,
		now:           now,
	}
}

// Update records the latest progress snapshot.
func (p *ProgressTracker) Update(event ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.searched = event.Searched
	p.records = event.Records
	if event.CurrentFile != "" {
		p.currentFile = event.CurrentFile
	}

	now := p.now()
	elapsed := now.Sub(p.lastSpeedCalc)
	if elapsed < speedWindow {
		return
	}
	if delta := p.searched - p.lastSearched; delta > 0 {
		speed := float64(delta) / elapsed.Seconds()
		p.currentSpeed = speed

		p.speedSamples++
		if p.speedSamples == 1 {
			p.avgSpeed = speed
		} else {
			p.avgSpeed = 0.2*speed + 0.8*p.avgSpeed
		}
		if speed > p.peakSpeed {
			p.peakSpeed = speed
		}
	}
	p.lastSearched = p.searched
	p.lastSpeedCalc = now
}

// AddError records an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.IsWarn {
		p.warnings = append(p.warnings, event)
	} else {
		p.errors = append(p.errors, event)
	}
}

// Stats returns current statistics snapshot.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return ProgressStats{
		Searched:    p.searched,
		Records:     p.records,
		CurrentFile: p.currentFile,
		Elapsed:     p.now().Sub(p.startTime),
		ErrorCount:  len(p.errors),
		WarnCount:   len(p.warnings),
		Speed: SpeedStats{
			Current: p.currentSpeed,
			Avg:     p.avgSpeed,
			Peak:    p.peakSpeed,
		},
	}
}

// Errors returns the list of recorded errors.
func (p *ProgressTracker) Errors() []ErrorEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]ErrorEvent, len(p.errors))
	copy(result, p.errors)
	return result
}

// Warnings returns the list of recorded warnings.
func (p *ProgressTracker) Warnings() []ErrorEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]ErrorEvent, len(p.warnings))
	copy(result, p.warnings)
	return result
}
