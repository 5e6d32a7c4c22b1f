// Package policy maps a worker's declared resilience and concurrency modes to the registration policy.
//
// The decision is a pure lookup in a literal table. Invalid or missing combinations degrade to the nearest
// valid policy instead of failing, a mis-declared worker must not stop the plant.
package policy

import (
	"fmt"

	"github.com/keboola/processing-plant/internal/pkg/service/plant/model"
)

// Action is the registration action taken against the job card registry.
type Action string

const (
	// ActionRegisterConcurrent registers the card without exclusivity, the attempt may start immediately.
	ActionRegisterConcurrent Action = "REGISTER_CONCURRENT"
	// ActionRegisterOnDemand registers the card exclusively, one active attempt in the scope, reissued on demand.
	ActionRegisterOnDemand Action = "REGISTER_ON_DEMAND"
	// ActionRegisterStandalone registers the card exclusively and pins the cluster and system focus to it.
	ActionRegisterStandalone Action = "REGISTER_STANDALONE"
)

// Scope of the exclusivity.
type Scope string

const (
	ScopeNone    Scope = "none"
	ScopeLocal   Scope = "local"
	ScopeCluster Scope = "cluster"
	ScopeSystem  Scope = "system"
)

// Policy is the effective registration and execution policy of a worker.
type Policy struct {
	Resilience  model.ResilienceMode
	Concurrency model.ConcurrencyMode
	Action      Action
	Scope       Scope
	// Exclusive means at most one live attempt of the worker in the Scope.
	Exclusive bool
	// DirectExecution means the registration grants the EXECUTING status immediately.
	DirectExecution bool
	// PinFocus means the cluster-wide and system-wide focus is set to the attempt.
	PinFocus bool
	// Degraded is true if the declared modes have been replaced by the nearest valid combination.
	Degraded bool
}

type key struct {
	resilience  model.ResilienceMode
	concurrency model.ConcurrencyMode
}

// nolint: gochecknoglobals
var (
	multisiteConcurrent = Policy{
		Resilience:      model.ResilienceMultisite,
		Concurrency:     model.ConcurrencyConcurrent,
		Action:          ActionRegisterConcurrent,
		Scope:           ScopeNone,
		DirectExecution: true,
	}
	multisiteOnDemand = Policy{
		Resilience:  model.ResilienceMultisite,
		Concurrency: model.ConcurrencyOnDemand,
		Action:      ActionRegisterOnDemand,
		Scope:       ScopeSystem,
		Exclusive:   true,
	}
	clusteredOnDemand = Policy{
		Resilience:  model.ResilienceClustered,
		Concurrency: model.ConcurrencyOnDemand,
		Action:      ActionRegisterOnDemand,
		Scope:       ScopeCluster,
		Exclusive:   true,
	}
	standalone = Policy{
		Resilience:  model.ResilienceStandalone,
		Concurrency: model.ConcurrencyStandalone,
		Action:      ActionRegisterStandalone,
		Scope:       ScopeLocal,
		Exclusive:   true,
		PinFocus:    true,
	}
)

// table contains all 9 declared combinations.
// nolint: gochecknoglobals
var table = map[key]Policy{
	{model.ResilienceMultisite, model.ConcurrencyConcurrent}:  multisiteConcurrent,
	{model.ResilienceMultisite, model.ConcurrencyOnDemand}:    multisiteOnDemand,
	{model.ResilienceMultisite, model.ConcurrencyStandalone}:  multisiteOnDemand,
	{model.ResilienceClustered, model.ConcurrencyOnDemand}:    clusteredOnDemand,
	{model.ResilienceClustered, model.ConcurrencyConcurrent}:  clusteredOnDemand,
	{model.ResilienceClustered, model.ConcurrencyStandalone}:  clusteredOnDemand,
	{model.ResilienceStandalone, model.ConcurrencyStandalone}: standalone,
	{model.ResilienceStandalone, model.ConcurrencyOnDemand}:   standalone,
	{model.ResilienceStandalone, model.ConcurrencyConcurrent}: standalone,
}

// Decide returns the effective policy for the declared modes, it never fails.
// Unknown or missing resilience mode degrades to STANDALONE/STANDALONE,
// unknown or missing concurrency mode degrades to ONDEMAND for CLUSTERED and MULTISITE workers.
func Decide(resilience model.ResilienceMode, concurrency model.ConcurrencyMode) Policy {
	p, found := table[key{resilience, concurrency}]
	if !found {
		switch resilience {
		case model.ResilienceMultisite:
			p = multisiteOnDemand
		case model.ResilienceClustered:
			p = clusteredOnDemand
		default:
			p = standalone
		}
	}
	p.Degraded = p.Resilience != resilience || p.Concurrency != concurrency
	return p
}

// DecideFor is a shortcut for Decide with the worker configuration.
func DecideFor(cfg model.WorkerConfig) Policy {
	return Decide(cfg.Resilience, cfg.Concurrency)
}

func (p Policy) String() string {
	return fmt.Sprintf("%s/%s", p.Resilience, p.Concurrency)
}
