package amqp

import (
	"encoding/json"
	"time"

	"paydays/internal/core"
	"paydays/internal/scheduler"
)

type EventKind string

const (
	ScheduleComputed  EventKind = "schedule.computed"
	PrioritiesUpdated EventKind = "priorities.updated"
)

// BucketSummary describes one payday of a computed schedule.
type BucketSummary struct {
	Date  string `json:"date"`
	Label string `json:"label,omitempty"`
	Bills int    `json:"bills"`
	Total string `json:"total"`
}

// Event is published after a scheduled run. It carries counts and totals only;
// consumers that need the bills read the stored run by RunID.
type Event struct {
	Kind       EventKind              `json:"kind"`
	RunID      string                 `json:"run_id"`
	Strategy   scheduler.StrategyName `json:"strategy"`
	Today      string                 `json:"today"`
	Assigned   int                    `json:"assigned,omitempty"`
	Unassigned int                    `json:"unassigned,omitempty"`
	Rejected   int                    `json:"rejected,omitempty"`
	Total      string                 `json:"total,omitempty"`
	Buckets    []BucketSummary        `json:"buckets,omitempty"`
	Updated    int                    `json:"updated,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// NewScheduleComputedEvent summarises plan for the run identified by runID.
func NewScheduleComputedEvent(runID string, plan scheduler.Plan, at time.Time) *Event {
	ev := &Event{
		Kind:       ScheduleComputed,
		RunID:      runID,
		Strategy:   plan.Strategy,
		Today:      plan.Today.String(),
		Assigned:   len(plan.Assignments),
		Unassigned: len(plan.Unassigned),
		Rejected:   len(plan.Rejected),
		Total:      core.FormatAmount(plan.Total()),
		Timestamp:  at.UTC(),
	}
	for _, b := range plan.Buckets {
		ev.Buckets = append(ev.Buckets, BucketSummary{
			Date:  b.Payday.Date.String(),
			Label: b.Payday.Label,
			Bills: len(b.Assignments),
			Total: core.FormatAmount(b.Total),
		})
	}
	return ev
}

// NewPrioritiesUpdatedEvent reports how many bills had their priority written back.
func NewPrioritiesUpdatedEvent(runID string, strategy scheduler.StrategyName, today core.Date, updated int, at time.Time) *Event {
	return &Event{
		Kind:      PrioritiesUpdated,
		RunID:     runID,
		Strategy:  strategy,
		Today:     today.String(),
		Updated:   updated,
		Timestamp: at.UTC(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON creates an event from JSON bytes
func EventFromJSON(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
