package model

import (
	"time"

	"github.com/keboola/processing-plant/internal/pkg/utils/errors"
)

// Stage of a fulfillment lifecycle, each stage has its own timestamp.
type Stage int

const (
	StageRegistration Stage = iota
	StageReady
	StageStart
	StageFinish
	StageFinalisation
)

func (v Stage) String() string {
	switch v {
	case StageRegistration:
		return "registration"
	case StageReady:
		return "ready"
	case StageStart:
		return "start"
	case StageFinish:
		return "finish"
	case StageFinalisation:
		return "finalisation"
	default:
		return "unknown"
	}
}

// TaskFulfillment is the fulfillment segment of a fulfillment task.
//
// Timestamps are monotonically non-decreasing in the Stage order,
// a later stage timestamp is never set while an earlier one is absent.
type TaskFulfillment struct {
	FulfillerComponentID ComponentID     `json:"fulfillerComponentId"`
	TrackingID           string          `json:"trackingId"`
	Status               ExecutionStatus `json:"status"`
	ResilientActivity    bool            `json:"resilientActivity"`
	RegistrationInstant  *time.Time      `json:"registrationInstant,omitempty"`
	ReadyInstant         *time.Time      `json:"readyInstant,omitempty"`
	StartInstant         *time.Time      `json:"startInstant,omitempty"`
	FinishInstant        *time.Time      `json:"finishInstant,omitempty"`
	FinalisationInstant  *time.Time      `json:"finalisationInstant,omitempty"`
	LastCheckedInstant   *time.Time      `json:"lastCheckedInstant,omitempty"`
}

func (f *TaskFulfillment) instant(stage Stage) **time.Time {
	switch stage {
	case StageRegistration:
		return &f.RegistrationInstant
	case StageReady:
		return &f.ReadyInstant
	case StageStart:
		return &f.StartInstant
	case StageFinish:
		return &f.FinishInstant
	case StageFinalisation:
		return &f.FinalisationInstant
	default:
		panic(errors.Errorf(`unexpected stage "%d"`, stage))
	}
}

// Instant returns the stage timestamp or nil.
func (f *TaskFulfillment) Instant(stage Stage) *time.Time {
	return *f.instant(stage)
}

// SetInstant sets the stage timestamp.
// An error is returned if an earlier stage has no timestamp or if the time is before the earlier stage.
func (f *TaskFulfillment) SetInstant(stage Stage, t time.Time) error {
	for earlier := StageRegistration; earlier < stage; earlier++ {
		prev := f.Instant(earlier)
		if prev == nil {
			return errors.Errorf(`cannot set %s instant: %s instant is not set`, stage, earlier)
		}
		if t.Before(*prev) {
			return errors.Errorf(`cannot set %s instant: it is before the %s instant`, stage, earlier)
		}
	}
	*f.instant(stage) = &t
	return nil
}

// Advance sets the stage timestamp, skipped earlier stages get the same timestamp.
// The time is moved forward if it is before an already set earlier stage.
func (f *TaskFulfillment) Advance(stage Stage, t time.Time) {
	for s := StageRegistration; s <= stage; s++ {
		ptr := f.instant(s)
		if *ptr != nil {
			if t.Before(**ptr) {
				t = **ptr
			}
			if s < stage {
				continue
			}
		}
		v := t
		*ptr = &v
	}
}

// Validate checks the timestamps invariant.
func (f *TaskFulfillment) Validate() error {
	var last *time.Time
	var lastStage Stage
	for s := StageRegistration; s <= StageFinalisation; s++ {
		current := f.Instant(s)
		if current == nil {
			last = nil
			lastStage = s
			continue
		}
		if s > StageRegistration && last == nil {
			return errors.Errorf(`%s instant is set, but %s instant is not set`, s, lastStage)
		}
		if last != nil && current.Before(*last) {
			return errors.Errorf(`%s instant is before %s instant`, s, lastStage)
		}
		last, lastStage = current, s
	}
	return nil
}

func (f *TaskFulfillment) Clone() *TaskFulfillment {
	if f == nil {
		return nil
	}
	clone := *f
	for _, ptr := range []**time.Time{
		&clone.RegistrationInstant, &clone.ReadyInstant, &clone.StartInstant,
		&clone.FinishInstant, &clone.FinalisationInstant, &clone.LastCheckedInstant,
	} {
		if *ptr != nil {
			v := **ptr
			*ptr = &v
		}
	}
	return &clone
}
