package planner

import "fmt"

// PlanningError reports that the global planner could not produce or repair
// a plan within its retry budget. The orchestrator treats it as fatal to
// the run.
type PlanningError struct {
	Op       string // "plan" or "replan"
	Attempts int
	Err      error
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning failed: %s after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *PlanningError) Unwrap() error { return e.Err }
