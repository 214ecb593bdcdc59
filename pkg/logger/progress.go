package logger

import (
	"fmt"
	"sync"
	"time"
)

// ProgressTracker counts completed and skipped units of a fan-out operation.
// It is safe for concurrent use.
type ProgressTracker struct {
	logger      Logger
	operation   string
	total       int64
	done        int64
	skipped     int64
	startTime   time.Time
	lastLogTime time.Time
	logInterval time.Duration
	mutex       sync.Mutex
}

// ProgressConfig configures progress tracking behavior
type ProgressConfig struct {
	Operation   string        `json:"operation"`
	Total       int64         `json:"total"`
	LogInterval time.Duration `json:"log_interval"`
	Logger      Logger        `json:"-"`
}

// ProgressStats is a snapshot of a tracker
type ProgressStats struct {
	Operation  string        `json:"operation"`
	Total      int64         `json:"total"`
	Done       int64         `json:"done"`
	Skipped    int64         `json:"skipped"`
	Percentage float64       `json:"percentage"`
	Duration   time.Duration `json:"duration"`
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(config ProgressConfig) *ProgressTracker {
	if config.Logger == nil {
		config.Logger = GetGlobalLogger()
	}
	if config.LogInterval == 0 {
		config.LogInterval = 2 * time.Second
	}

	now := time.Now()
	tracker := &ProgressTracker{
		logger:      config.Logger.WithComponent("progress"),
		operation:   config.Operation,
		total:       config.Total,
		startTime:   now,
		lastLogTime: now,
		logInterval: config.LogInterval,
	}

	tracker.logger.WithFields(Fields{
		"operation": config.Operation,
		"total":     config.Total,
	}).Debug("Starting operation")

	return tracker
}

// Increment records one successfully processed unit
func (p *ProgressTracker) Increment() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.done++
	p.maybeLog()
}

// Skip records one unit that was dropped from the result
func (p *ProgressTracker) Skip() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.skipped++
	p.maybeLog()
}

// Complete logs final statistics and returns them
func (p *ProgressTracker) Complete() ProgressStats {
	stats := p.Stats()

	p.logger.WithFields(Fields{
		"operation": stats.Operation,
		"total":     stats.Total,
		"done":      stats.Done,
		"skipped":   stats.Skipped,
		"duration":  stats.Duration.String(),
	}).Info("Operation completed")

	return stats
}

// Stats returns current progress statistics
func (p *ProgressTracker) Stats() ProgressStats {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.statsLocked(time.Now())
}

func (p *ProgressTracker) statsLocked(now time.Time) ProgressStats {
	var percentage float64
	if p.total > 0 {
		percentage = float64(p.done+p.skipped) / float64(p.total) * 100
	}

	return ProgressStats{
		Operation:  p.operation,
		Total:      p.total,
		Done:       p.done,
		Skipped:    p.skipped,
		Percentage: percentage,
		Duration:   now.Sub(p.startTime),
	}
}

func (p *ProgressTracker) maybeLog() {
	now := time.Now()
	if now.Sub(p.lastLogTime) < p.logInterval {
		return
	}
	p.lastLogTime = now

	stats := p.statsLocked(now)
	p.logger.WithFields(Fields{
		"operation":  stats.Operation,
		"done":       stats.Done,
		"skipped":    stats.Skipped,
		"percentage": fmt.Sprintf("%.1f%%", stats.Percentage),
	}).Info("Progress update")
}

// String returns a human-readable representation of the progress
func (ps ProgressStats) String() string {
	if ps.Total > 0 {
		return fmt.Sprintf("%s: %d/%d done, %d skipped (%.1f%%) in %v",
			ps.Operation, ps.Done, ps.Total, ps.Skipped, ps.Percentage, ps.Duration)
	}
	return fmt.Sprintf("%s: %d done, %d skipped in %v",
		ps.Operation, ps.Done, ps.Skipped, ps.Duration)
}

// TimedOperation executes a function and logs timing information
func TimedOperation(operation string, log Logger, fn func() error) error {
	if log == nil {
		log = GetGlobalLogger()
	}
	start := time.Now()
	log = log.WithComponent("operation").WithField("operation", operation)

	err := fn()

	fields := Fields{"duration": time.Since(start).String()}
	if err != nil {
		log.WithError(err).WithFields(fields).Error("Operation failed")
	} else {
		log.WithFields(fields).Debug("Operation completed")
	}

	return err
}
