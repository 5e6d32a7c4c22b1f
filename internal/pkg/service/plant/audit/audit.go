// Package audit defines the sink of audit records written when a parcel is finalised.
// The record schema of an external audit trail is out of scope, the sink converts the Record as it needs.
package audit

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/keboola/processing-plant/internal/pkg/log"
	"github.com/keboola/processing-plant/internal/pkg/service/common/utctime"
	"github.com/keboola/processing-plant/internal/pkg/service/plant/model"
)

type Record struct {
	EpisodeID           model.EpisodeID       `json:"episodeId"`
	FulfillmentTaskID   model.TaskID          `json:"fulfillmentTaskId"`
	ActionableTaskID    model.TaskID          `json:"actionableTaskId"`
	WorkUnitProcessor   model.ComponentID     `json:"workUnitProcessor"`
	Status              model.ExecutionStatus `json:"status"`
	RegistrationInstant utctime.UTCTime       `json:"registrationInstant"`
	FinalisationInstant utctime.UTCTime       `json:"finalisationInstant"`
}

type Sink interface {
	LogActivity(ctx context.Context, record Record)
}

// LogSink writes each record as an info message.
type LogSink struct {
	logger log.Logger
}

func NewLogSink(logger log.Logger) *LogSink {
	return &LogSink{logger: logger.WithComponent("audit")}
}

func (s *LogSink) LogActivity(ctx context.Context, r Record) {
	s.logger.With(
		attribute.String("episode.id", r.EpisodeID.String()),
		attribute.String("fulfillmentTask.id", r.FulfillmentTaskID.String()),
		attribute.String("actionableTask.id", r.ActionableTaskID.String()),
		attribute.String("worker.id", r.WorkUnitProcessor.String()),
		attribute.String("registeredAt", r.RegistrationInstant.String()),
		attribute.String("finalisedAt", r.FinalisationInstant.String()),
	).Infof(ctx, `parcel %s`, r.Status)
}

// MemorySink collects records in memory.
type MemorySink struct {
	lock    sync.Mutex
	records []Record
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) LogActivity(_ context.Context, r Record) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.records = append(s.records, r)
}

func (s *MemorySink) Records() []Record {
	s.lock.Lock()
	defer s.lock.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}
