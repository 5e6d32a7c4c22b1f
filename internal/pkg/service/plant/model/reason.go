package model

// TaskReason tags why an actionable task has been created.
type TaskReason string

const (
	// ReasonIngress is new work entering the plant.
	ReasonIngress TaskReason = "INGRESS"
	// ReasonOutcome is work produced by an upstream fulfillment task.
	ReasonOutcome TaskReason = "OUTCOME"
	// ReasonRetry is work re-issued after a failed attempt.
	ReasonRetry TaskReason = "RETRY"
)
