// Package policy implements the VMM-swap usage prediction policy.
//
// A UsagePolicy keeps a bounded, chronologically ordered history of the
// spans during which swap was enabled for one VM and projects up to the
// last four weeks of that history onto the upcoming week to estimate how
// much longer the current enabled state will last. The caller decides
// whether that estimate justifies paying the cost of enabling swap; the
// policy itself never touches the underlying swap mechanism.
package policy

import (
	"time"

	"go.uber.org/zap"

	"github.com/quantix-kvm/swapd/internal/domain"
)

const (
	// historyCapacity bounds the ring to one slot per hour over the full
	// projection window: 24 hours * 7 days * 4 weeks.
	historyCapacity = 24 * 7 * 4

	// collapseWindow merges enable events landing within an hour of the
	// previous period's start into that period, and bounds how far off a
	// backfilled start estimate can be. Tuning constant, value inherited
	// from the production deployment.
	collapseWindow = time.Hour

	// projectionWeeks is how many past weeks contribute to a prediction.
	projectionWeeks = 4

	week = 7 * 24 * time.Hour
)

// UsagePolicy tracks the enable/disable history of VMM-swap for a single VM
// and predicts how long the enabled state is expected to persist.
//
// A UsagePolicy performs no internal locking: all calls must come from a
// single owning goroutine, or the caller must serialize access externally.
type UsagePolicy struct {
	history *periodRing
	enabled bool
	logger  *zap.Logger
}

// NewUsagePolicy creates an empty, disabled policy.
func NewUsagePolicy(logger *zap.Logger) *UsagePolicy {
	return &UsagePolicy{
		history: newPeriodRing(historyCapacity),
		logger:  logger.Named("swap-usage-policy"),
	}
}

// NewUsagePolicyFromHistory creates a disabled policy seeded with previously
// recorded periods, oldest first. Open periods in the snapshot are stored
// as-is; callers restoring from persistent storage should close them at the
// snapshot time first, since the policy cannot know when the process that
// recorded them stopped observing.
func NewUsagePolicyFromHistory(periods []domain.SwapPeriod, logger *zap.Logger) *UsagePolicy {
	p := NewUsagePolicy(logger)
	for _, period := range periods {
		p.history.Append(period)
	}
	return p
}

// IsEnabled reports the current swap state as seen by the policy.
func (p *UsagePolicy) IsEnabled() bool {
	return p.enabled
}

// History returns a copy of the recorded periods from oldest to newest.
func (p *UsagePolicy) History() []domain.SwapPeriod {
	return p.history.Snapshot()
}

// OnEnabled records that swap was enabled at the given time. Calling it
// while already enabled is a no-op. An enable landing within collapseWindow
// of the most recent period's start does not open a new period; the
// existing record absorbs the churn.
func (p *UsagePolicy) OnEnabled(t time.Time) {
	if p.enabled {
		return
	}
	p.enabled = true

	if last, ok := p.history.Last(); ok && t.Sub(last.Start) <= collapseWindow {
		return
	}
	p.history.Append(domain.SwapPeriod{Start: t})
}

// OnDisabled records that swap was disabled at the given time, closing the
// open period. Calling it while already disabled is a no-op. A disable
// timestamp preceding the open period's start is a caller clock anomaly:
// it is logged and the period is left open rather than given a negative
// duration.
func (p *UsagePolicy) OnDisabled(t time.Time) {
	p.addEnableRecordIfMissing(t)
	if !p.enabled {
		return
	}
	p.enabled = false

	last := p.history.lastRef()
	if last == nil {
		return
	}
	if last.Start.After(t) {
		p.logger.Warn("Swap disable timestamp precedes enable record",
			zap.Time("record_start", last.Start),
			zap.Time("disabled_at", t),
		)
		return
	}
	if !last.Closed {
		last.Duration = t.Sub(last.Start)
		last.Closed = true
	}
}

// addEnableRecordIfMissing normalizes the history so it reflects being
// enabled up to t. If the latest record is already closed but the policy is
// still enabled an hour or more past that record's start, the true re-enable
// boundary was lost to the collapse window; a new open period is backfilled
// at the pessimistic estimate start+collapseWindow.
func (p *UsagePolicy) addEnableRecordIfMissing(t time.Time) {
	if !p.enabled {
		return
	}
	last, ok := p.history.Last()
	if !ok {
		return
	}
	if last.Closed && t.Sub(last.Start) >= collapseWindow {
		p.history.Append(domain.SwapPeriod{Start: last.Start.Add(collapseWindow)})
	}
}

// PredictDuration estimates how much longer the swap-enabled state will
// last, as of now. With no history it returns zero. With less than a week
// of history it returns double the latest period's elapsed time. Otherwise
// each record is projected onto the upcoming week at its "same time N weeks
// ago" offset and the overlapping portions are averaged across the observed
// weeks, up to four.
func (p *UsagePolicy) PredictDuration(now time.Time) time.Duration {
	p.addEnableRecordIfMissing(now)

	first, ok := p.history.First()
	if !ok {
		return 0
	}

	numWeeks := int(now.Sub(first.Start) / week)
	if numWeeks > projectionWeeks {
		numWeeks = projectionWeeks
	}
	if numWeeks == 0 {
		last, _ := p.history.Last()
		return 2 * last.Elapsed(now)
	}

	var sum time.Duration
	p.history.Each(func(r domain.SwapPeriod) {
		duration := r.Elapsed(now)

		startWeeksAgo := int(now.Sub(r.Start) / week)
		if startWeeksAgo > projectionWeeks {
			startWeeksAgo = projectionWeeks
		}
		endWeeksAgo := int(now.Sub(r.Start.Add(duration)) / week)

		// Only records spanning at least one weekly projection point
		// inside the window overlap the upcoming week.
		if endWeeksAgo >= projectionWeeks || startWeeksAgo == endWeeksAgo {
			return
		}

		projected := now.Add(-week * time.Duration(startWeeksAgo))
		durationOfWeek := duration + r.Start.Sub(projected)
		sum += durationOfWeek
		for durationOfWeek > week {
			durationOfWeek -= week
			sum += durationOfWeek
		}
	})

	predicted := sum / time.Duration(numWeeks)
	if predicted < 0 {
		p.logger.Warn("Negative swap duration prediction clamped to zero",
			zap.Duration("predicted", predicted),
		)
		return 0
	}
	return predicted
}
