package model

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/keboola/processing-plant/internal/pkg/idgenerator"
)

const (
	actionableIDPrefix  = "AT"
	fulfillmentIDPrefix = "FT"
	idSeparator         = ":"
)

// TaskID identifies an actionable task or a fulfillment task.
// The two spaces are disjoint, each ID starts with a kind prefix. The value is immutable.
type TaskID string

// ComponentID identifies a Work Unit Processor (worker).
type ComponentID string

// EpisodeID identifies the lineage of an actionable task, it is used for finalisation tracking.
type EpisodeID string

func (v TaskID) String() string {
	return string(v)
}

func (v TaskID) IsActionable() bool {
	return strings.HasPrefix(string(v), actionableIDPrefix+idSeparator)
}

func (v TaskID) IsFulfillment() bool {
	return strings.HasPrefix(string(v), fulfillmentIDPrefix+idSeparator)
}

func (v ComponentID) String() string {
	return string(v)
}

func (v EpisodeID) String() string {
	return string(v)
}

// EpisodeFor returns the episode of the actionable task.
func EpisodeFor(actionableTaskID TaskID) EpisodeID {
	return EpisodeID(actionableTaskID)
}

// NewActionableTaskID composes the reason tag, the content descriptor and a random suffix,
// for example "AT:OUTCOME:hl7.adt:5f1a0c2b9e7d4a31:Xa9Kq2Lm".
// The digest is computed from the full descriptor, so IDs with the same content are easy to correlate.
func NewActionableTaskID(reason TaskReason, descriptor DataDescriptor) TaskID {
	return TaskID(strings.Join([]string{
		actionableIDPrefix,
		string(reason),
		descriptor.Label(),
		fmt.Sprintf("%016x", xxhash.Sum64String(descriptor.String())),
		idgenerator.TaskIDSuffix(),
	}, idSeparator))
}

// NewFulfillmentTaskID composes the worker ID, digest of the actionable task ID and a random suffix.
func NewFulfillmentTaskID(actionableTaskID TaskID, worker ComponentID) TaskID {
	return TaskID(strings.Join([]string{
		fulfillmentIDPrefix,
		string(worker),
		fmt.Sprintf("%016x", xxhash.Sum64String(string(actionableTaskID))),
		idgenerator.TaskIDSuffix(),
	}, idSeparator))
}
