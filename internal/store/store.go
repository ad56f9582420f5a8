// Package store persists finished runs. Two backends: flat JSON result files
// for local benchmark runs, and PostgreSQL for shared result collection.
package store

import (
	"context"
	"time"

	"github.com/coactdev/coact/api/schemas"
)

// RunRecord is the persisted shape of one finished run.
type RunRecord struct {
	RunID       string               `json:"run_id"`
	TaskID      int                  `json:"task_id"`
	Intent      string               `json:"intent"`
	StartURL    string               `json:"start_url,omitempty"`
	Verdict     schemas.Verdict      `json:"verdict"`
	Score       *float64             `json:"score,omitempty"`
	Plan        schemas.Plan         `json:"plan"`
	Retired     []schemas.SubTask    `json:"retired,omitempty"`
	ReplanCount int                  `json:"replan_count"`
	StepCount   int                  `json:"step_count"`
	StartedAt   time.Time            `json:"started_at"`
	FinishedAt  time.Time            `json:"finished_at"`
	History     []schemas.Trajectory `json:"history,omitempty"`
}

// Store is a sink for finished runs.
type Store interface {
	SaveRun(ctx context.Context, rec *RunRecord) error
}

// NewRunRecord flattens a finalized run state into its persisted form. The
// full step history is included only when saveTrace is set; verdict and
// counters are always kept.
func NewRunRecord(task schemas.TaskConfig, state *schemas.RunState, saveTrace bool) *RunRecord {
	rec := &RunRecord{
		RunID:       state.RunID,
		TaskID:      task.TaskID,
		Intent:      task.Intent,
		StartURL:    task.StartURL,
		Plan:        state.Plan,
		Retired:     state.Retired,
		ReplanCount: state.ReplanCount,
		StepCount:   state.StepCount,
		StartedAt:   state.StartedAt,
		FinishedAt:  state.FinishedAt,
	}
	if state.Verdict != nil {
		rec.Verdict = *state.Verdict
	}
	if saveTrace {
		rec.History = state.History
	}
	return rec
}
