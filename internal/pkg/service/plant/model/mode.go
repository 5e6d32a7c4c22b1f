package model

// ResilienceMode is the cluster topology policy of a worker.
// The empty value means the mode is not declared.
type ResilienceMode string

// ConcurrencyMode is the number of simultaneous attempts a worker's policy permits.
// The empty value means the mode is not declared.
type ConcurrencyMode string

const (
	ResilienceStandalone ResilienceMode = "STANDALONE"
	ResilienceClustered  ResilienceMode = "CLUSTERED"
	ResilienceMultisite  ResilienceMode = "MULTISITE"
)

const (
	ConcurrencyStandalone ConcurrencyMode = "STANDALONE"
	ConcurrencyOnDemand   ConcurrencyMode = "ONDEMAND"
	ConcurrencyConcurrent ConcurrencyMode = "CONCURRENT"
)

func ResilienceModes() []ResilienceMode {
	return []ResilienceMode{ResilienceStandalone, ResilienceClustered, ResilienceMultisite}
}

func ConcurrencyModes() []ConcurrencyMode {
	return []ConcurrencyMode{ConcurrencyStandalone, ConcurrencyOnDemand, ConcurrencyConcurrent}
}

// WorkerConfig is the declared configuration of a worker, resolved by the topology service.
type WorkerConfig struct {
	Resilience  ResilienceMode  `json:"resilienceMode" mapstructure:"resilienceMode" validate:"omitempty,oneof=STANDALONE CLUSTERED MULTISITE"`
	Concurrency ConcurrencyMode `json:"concurrencyMode" mapstructure:"concurrencyMode" validate:"omitempty,oneof=STANDALONE ONDEMAND CONCURRENT"`
}
