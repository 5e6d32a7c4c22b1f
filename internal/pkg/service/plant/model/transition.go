package model

// transitions lists allowed job card transitions, the watchdog owns the transition to FINALISED.
// nolint: gochecknoglobals
var transitions = map[ExecutionStatus][]ExecutionStatus{
	StatusUnregistered: {StatusRegistered, StatusExecuting},
	StatusRegistered:   {StatusInitiated, StatusExecuting, StatusCancelled},
	StatusInitiated:    {StatusExecuting, StatusFailed, StatusCancelled},
	StatusExecuting:    {StatusFinished, StatusFailed, StatusCancelled},
	StatusFinished:     {StatusFinalised},
	StatusFailed:       {StatusFinalised},
	StatusCancelled:    {StatusFinalised},
}

// CanTransition returns true if the status change is allowed.
func CanTransition(from, to ExecutionStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
