package model

import (
	"time"
)

// TraceabilityEntry describes one hand-over: the fulfillment task which processed the actionable task
// and produced a successor.
type TraceabilityEntry struct {
	FulfillerID         ComponentID `json:"fulfillerId"`
	ActionableTaskID    TaskID      `json:"actionableTaskId"`
	FulfillmentTaskID   TaskID      `json:"fulfillmentTaskId"`
	RegistrationInstant *time.Time  `json:"registrationInstant,omitempty"`
	StartInstant        *time.Time  `json:"startInstant,omitempty"`
	FinishInstant       *time.Time  `json:"finishInstant,omitempty"`
}

// TaskTraceability is an ordered, append-only journey log of a business work item.
// The zero value is an empty log. Append never modifies the receiver.
type TaskTraceability struct {
	entries []TraceabilityEntry
}

func NewTaskTraceability(entries ...TraceabilityEntry) TaskTraceability {
	return TaskTraceability{}.Append(entries...)
}

// Append returns a new log with the entries added at the end.
func (v TaskTraceability) Append(entries ...TraceabilityEntry) TaskTraceability {
	out := make([]TraceabilityEntry, 0, len(v.entries)+len(entries))
	out = append(out, v.entries...)
	for _, e := range entries {
		out = append(out, e.clone())
	}
	return TaskTraceability{entries: out}
}

func (v TaskTraceability) Len() int {
	return len(v.entries)
}

// Entries returns a copy of the log.
func (v TaskTraceability) Entries() []TraceabilityEntry {
	out := make([]TraceabilityEntry, 0, len(v.entries))
	for _, e := range v.entries {
		out = append(out, e.clone())
	}
	return out
}

// Last returns the most recent entry, its ActionableTaskID is the predecessor of the current task.
func (v TaskTraceability) Last() (TraceabilityEntry, bool) {
	if len(v.entries) == 0 {
		return TraceabilityEntry{}, false
	}
	return v.entries[len(v.entries)-1].clone(), true
}

func (e TraceabilityEntry) clone() TraceabilityEntry {
	e.RegistrationInstant = cloneTime(e.RegistrationInstant)
	e.StartInstant = cloneTime(e.StartInstant)
	e.FinishInstant = cloneTime(e.FinishInstant)
	return e
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
