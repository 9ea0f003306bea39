package scheduler

import (
	"slices"
	"time"
)

// Trigger names the reason a pass started.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerInterval  Trigger = "interval"
	TriggerThreshold Trigger = "threshold"
	TriggerStartup   Trigger = "startup"
)

// ParseTrigger maps a stored trigger name back to a Trigger.
func ParseTrigger(value string) (Trigger, bool) {
	switch t := Trigger(value); t {
	case TriggerManual, TriggerInterval, TriggerThreshold, TriggerStartup:
		return t, true
	default:
		return "", false
	}
}

// Policy is the scheduler configuration. Values are immutable once applied;
// settings changes supply a new Policy.
type Policy struct {
	IntervalMinutes  int
	HighUsageEnabled bool
	ThresholdPercent uint32
	Cooldown         time.Duration
	AutoActions      []string
	ManualActions    []string
}

func (p Policy) clone() Policy {
	p.AutoActions = slices.Clone(p.AutoActions)
	p.ManualActions = slices.Clone(p.ManualActions)
	return p
}
