package model

import (
	"strings"
)

// ProcessingOutcome of a work item, set by the worker.
type ProcessingOutcome string

const (
	OutcomePending              ProcessingOutcome = "PENDING"
	OutcomeSuccess              ProcessingOutcome = "SUCCESS"
	OutcomeFailed               ProcessingOutcome = "FAILED"
	OutcomeNoProcessingRequired ProcessingOutcome = "NO_PROCESSING_REQUIRED"
)

// DataDescriptor describes content of a payload, the payload format itself is opaque.
type DataDescriptor struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`
	Version string `json:"version,omitempty"`
	Source  string `json:"source,omitempty"`
}

// Payload is one unit of business content.
type Payload struct {
	Descriptor DataDescriptor `json:"descriptor"`
	Content    []byte         `json:"content,omitempty"`
}

// WorkItem carries the ingres payload to a worker and collects its egress payloads.
// A completed attempt may produce zero, one or many egress payloads.
type WorkItem struct {
	Ingres  *Payload          `json:"ingres,omitempty"`
	Egress  []Payload         `json:"egress,omitempty"`
	Outcome ProcessingOutcome `json:"outcome"`
}

// String returns all non-empty parts joined by a slash.
func (v DataDescriptor) String() string {
	var parts []string
	for _, p := range []string{v.Source, v.Type, v.Subtype, v.Version} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "/")
}

// Label is a short human-readable part of the descriptor used in task IDs.
func (v DataDescriptor) Label() string {
	label := v.Type
	if v.Subtype != "" {
		label += "." + v.Subtype
	}
	if label == "" {
		return "unknown"
	}
	return strings.ReplaceAll(label, idSeparator, "_")
}

func (v Payload) Clone() Payload {
	if v.Content != nil {
		content := make([]byte, len(v.Content))
		copy(content, v.Content)
		v.Content = content
	}
	return v
}

// Clone returns a deep copy, the work item is copied from the actionable task to each fulfillment task.
func (v WorkItem) Clone() WorkItem {
	out := WorkItem{Outcome: v.Outcome}
	if v.Ingres != nil {
		ingres := v.Ingres.Clone()
		out.Ingres = &ingres
	}
	if v.Egress != nil {
		out.Egress = make([]Payload, 0, len(v.Egress))
		for _, p := range v.Egress {
			out.Egress = append(out.Egress, p.Clone())
		}
	}
	return out
}
