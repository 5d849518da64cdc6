// Package throttle implements the adaptive PTY injection interval
// (spec.md §4.5): it widens or narrows the delay between injections
// based on recent echo-verification success rate.
package throttle

import "time"

const (
	// DefaultIntervalMS is the starting injection interval.
	DefaultIntervalMS = 50
	// MinIntervalMS is the floor for fast agents.
	MinIntervalMS = 20
	// MaxIntervalMS is the ceiling for slow agents.
	MaxIntervalMS = 500

	// windowSize is the number of recent samples kept for the moving average.
	windowSize = 20

	slowDownThreshold = 0.7
	speedUpThreshold  = 0.9
	slowDownFactor    = 1.3
	speedUpFactor     = 0.85

	minSamplesForAdjustment = 3
)

// deliverySample records the outcome of a single delivery.
type deliverySample struct {
	echoVerified      bool
	activityConfirmed *bool
	echoLatencyMs     *uint64
	activityLatencyMs *uint64
}

// Adaptive adjusts the PTY injection interval based on echo
// verification and activity confirmation success rates.
type Adaptive struct {
	currentInterval    time.Duration
	samples            []deliverySample
	lastAdjustment     time.Time
	adjustmentCooldown time.Duration
}

// New creates an Adaptive throttle with the default 5s adjustment
// cooldown.
func New() *Adaptive {
	return &Adaptive{
		currentInterval:    DefaultIntervalMS * time.Millisecond,
		lastAdjustment:     time.Now(),
		adjustmentCooldown: 5 * time.Second,
	}
}

// NewWithCooldown creates an Adaptive throttle with a custom
// adjustment cooldown, backdating lastAdjustment so the first
// maybeAdjust call is not blocked by it. Intended for tests.
func NewWithCooldown(cooldown time.Duration) *Adaptive {
	return &Adaptive{
		currentInterval:    DefaultIntervalMS * time.Millisecond,
		lastAdjustment:     time.Now().Add(-cooldown),
		adjustmentCooldown: cooldown,
	}
}

// Interval returns the current recommended injection interval.
func (a *Adaptive) Interval() time.Duration { return a.currentInterval }

// SetInterval overrides the current interval. Intended for tests that
// seed a non-default starting point.
func (a *Adaptive) SetInterval(d time.Duration) { a.currentInterval = d }

// RecordEchoSuccess records that echo verification succeeded for a
// delivery, with its latency in milliseconds.
func (a *Adaptive) RecordEchoSuccess(echoLatencyMs uint64) {
	lat := echoLatencyMs
	a.pushSample(deliverySample{echoVerified: true, echoLatencyMs: &lat})
	a.maybeAdjust()
}

// RecordEchoFailure records that echo verification failed for a
// delivery.
func (a *Adaptive) RecordEchoFailure() {
	a.pushSample(deliverySample{echoVerified: false})
	a.maybeAdjust()
}

// RecordActivityConfirmed updates the most recent echo-verified
// sample still awaiting an activity outcome.
func (a *Adaptive) RecordActivityConfirmed(activityLatencyMs uint64) {
	lat := activityLatencyMs
	for i := len(a.samples) - 1; i >= 0; i-- {
		s := &a.samples[i]
		if s.echoVerified && s.activityConfirmed == nil {
			confirmed := true
			s.activityConfirmed = &confirmed
			s.activityLatencyMs = &lat
			break
		}
	}
	a.maybeAdjust()
}

// RecordActivityTimeout updates the most recent echo-verified sample
// still awaiting an activity outcome to reflect a timeout.
func (a *Adaptive) RecordActivityTimeout() {
	for i := len(a.samples) - 1; i >= 0; i-- {
		s := &a.samples[i]
		if s.echoVerified && s.activityConfirmed == nil {
			confirmed := false
			s.activityConfirmed = &confirmed
			break
		}
	}
	a.maybeAdjust()
}

// EchoSuccessRate returns the echo verification success rate over the
// current window, 1.0 when no samples have been recorded yet.
func (a *Adaptive) EchoSuccessRate() float64 {
	if len(a.samples) == 0 {
		return 1.0
	}
	successes := 0
	for _, s := range a.samples {
		if s.echoVerified {
			successes++
		}
	}
	return float64(successes) / float64(len(a.samples))
}

// AvgEchoLatencyMs returns the average echo latency across verified
// samples in the window, or (0, false) if none have a latency
// recorded.
func (a *Adaptive) AvgEchoLatencyMs() (uint64, bool) {
	var sum, count uint64
	for _, s := range a.samples {
		if s.echoLatencyMs != nil {
			sum += *s.echoLatencyMs
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return sum / count, true
}

func (a *Adaptive) pushSample(s deliverySample) {
	a.samples = append(a.samples, s)
	if len(a.samples) > windowSize {
		a.samples = a.samples[1:]
	}
}

func (a *Adaptive) maybeAdjust() {
	if time.Since(a.lastAdjustment) < a.adjustmentCooldown {
		return
	}
	if len(a.samples) < minSamplesForAdjustment {
		return
	}

	rate := a.EchoSuccessRate()
	old := a.currentInterval

	switch {
	case rate < slowDownThreshold:
		newMs := uint64(float64(a.currentInterval.Milliseconds()) * slowDownFactor)
		if newMs > MaxIntervalMS {
			newMs = MaxIntervalMS
		}
		a.currentInterval = time.Duration(newMs) * time.Millisecond
	case rate > speedUpThreshold:
		newMs := uint64(float64(a.currentInterval.Milliseconds()) * speedUpFactor)
		if newMs < MinIntervalMS {
			newMs = MinIntervalMS
		}
		a.currentInterval = time.Duration(newMs) * time.Millisecond
	}

	if a.currentInterval != old {
		a.lastAdjustment = time.Now()
	}
}
