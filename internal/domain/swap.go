// Package domain contains domain models and business logic errors.
package domain

import (
	"time"
)

// SwapState represents the VMM-swap state of a virtual machine.
type SwapState string

const (
	SwapStateDisabled SwapState = "DISABLED"
	SwapStateEnabled  SwapState = "ENABLED"
)

// SwapPeriod is one historical record of a contiguous span during which
// VMM-swap was enabled for a VM. A period is open while the VM is still
// enabled; Duration is only meaningful once Closed is set.
type SwapPeriod struct {
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration,omitempty"`
	Closed   bool          `json:"closed"`
}

// Elapsed returns the period's duration, measuring up to now for a period
// that is still open.
func (p SwapPeriod) Elapsed(now time.Time) time.Duration {
	if p.Closed {
		return p.Duration
	}
	return now.Sub(p.Start)
}

// End returns the timestamp the period ended, or would have ended as of now
// for an open period.
func (p SwapPeriod) End(now time.Time) time.Time {
	return p.Start.Add(p.Elapsed(now))
}

// SwapEventAction identifies the kind of swap transition recorded in the
// audit trail.
type SwapEventAction string

const (
	SwapEventEnabled  SwapEventAction = "ENABLED"
	SwapEventDisabled SwapEventAction = "DISABLED"
)

// SwapEvent is an audit record of a swap enable/disable decision made by the
// policy engine for a VM.
type SwapEvent struct {
	ID                string          `json:"id"`
	VMID              string          `json:"vm_id"`
	Action            SwapEventAction `json:"action"`
	PredictedDuration time.Duration   `json:"predicted_duration"`
	MemoryUsedPercent float64         `json:"memory_used_percent"`
	CreatedAt         time.Time       `json:"created_at"`
}

// SwapHistorySnapshot captures a VM's enabled-period history at a point in
// time so it can survive a daemon restart.
type SwapHistorySnapshot struct {
	VMID    string       `json:"vm_id"`
	Periods []SwapPeriod `json:"periods"`
	TakenAt time.Time    `json:"taken_at"`
}
