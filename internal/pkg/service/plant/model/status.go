package model

// ExecutionStatus is the status of a fulfillment task and of its job card.
type ExecutionStatus string

const (
	StatusUnregistered       ExecutionStatus = "UNREGISTERED"
	StatusRegistered         ExecutionStatus = "REGISTERED"
	StatusInitiated          ExecutionStatus = "INITIATED"
	StatusExecuting          ExecutionStatus = "EXECUTING"
	StatusExecutingElsewhere ExecutionStatus = "EXECUTING_ELSEWHERE"
	StatusFinished           ExecutionStatus = "FINISHED"
	StatusFailed             ExecutionStatus = "FAILED"
	StatusCancelled          ExecutionStatus = "CANCELLED"
	StatusFinishedElsewhere  ExecutionStatus = "FINISHED_ELSEWHERE"
	StatusFinalised          ExecutionStatus = "FINALISED"
	StatusFinalisedElsewhere ExecutionStatus = "FINALISED_ELSEWHERE"
)

func (v ExecutionStatus) String() string {
	return string(v)
}

// IsInFlight returns true for a registered attempt that has not finished yet.
func (v ExecutionStatus) IsInFlight() bool {
	switch v {
	case StatusRegistered, StatusInitiated, StatusExecuting:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the attempt has ended, here or on another node.
func (v ExecutionStatus) IsTerminal() bool {
	switch v {
	case StatusFinished, StatusFailed, StatusCancelled, StatusFinishedElsewhere, StatusFinalised, StatusFinalisedElsewhere:
		return true
	default:
		return false
	}
}

// IsHandledElsewhere returns true if another cluster member did the terminal bookkeeping.
func (v ExecutionStatus) IsHandledElsewhere() bool {
	return v == StatusFinishedElsewhere || v == StatusFinalisedElsewhere
}

// IsGrantedByWatchdog returns true for the bookkeeping statuses a worker cannot request.
func (v ExecutionStatus) IsGrantedByWatchdog() bool {
	switch v {
	case StatusFinalised, StatusFinalisedElsewhere, StatusFinishedElsewhere, StatusExecutingElsewhere:
		return true
	default:
		return false
	}
}
