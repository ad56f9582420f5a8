// Package schemas holds the shared data model for a coact run: the goal,
// the plan produced by the global planner, the trajectories recorded by the
// local executor, and the final verdict. Everything here is plain data;
// behaviour lives in the internal packages.
package schemas

import (
	"time"

	"github.com/google/uuid"
)

// SubTaskStatus tracks a sub-task through its execution lifecycle.
type SubTaskStatus string

const (
	StatusPending   SubTaskStatus = "pending"   // created but not yet dispatched
	StatusActive    SubTaskStatus = "active"    // currently being executed
	StatusSucceeded SubTaskStatus = "succeeded" // executor declared completion
	StatusFailed    SubTaskStatus = "failed"    // executor gave up or timed out
	StatusAbandoned SubTaskStatus = "abandoned" // dropped from the plan by a replan
)

// SubTask is one unit of delegated work inside a Plan. Created by the global
// planner; status and attempt transitions are owned by the orchestrator, the
// result summary is written from the executor's outcome.
type SubTask struct {
	ID            string        `json:"id"`
	Description   string        `json:"description"`
	ExpectedState string        `json:"expected_state,omitempty"`
	Status        SubTaskStatus `json:"status"`
	Attempts      int           `json:"attempts"`
	Summary       string        `json:"summary,omitempty"`
}

// Plan is the ordered sequence of sub-tasks for one run. At most one entry is
// active at a time; completed entries are never reordered, only appended to
// or truncated from the tail on a replan.
type Plan struct {
	SubTasks []SubTask `json:"subtasks"`
}

// Active returns a pointer to the currently active sub-task, or nil.
func (p *Plan) Active() *SubTask {
	for i := range p.SubTasks {
		if p.SubTasks[i].Status == StatusActive {
			return &p.SubTasks[i]
		}
	}
	return nil
}

// NextPending returns a pointer to the first pending sub-task, or nil.
func (p *Plan) NextPending() *SubTask {
	for i := range p.SubTasks {
		if p.SubTasks[i].Status == StatusPending {
			return &p.SubTasks[i]
		}
	}
	return nil
}

// SucceededPrefixLen returns the number of leading sub-tasks that have
// already succeeded. A replan must preserve exactly this prefix.
func (p *Plan) SucceededPrefixLen() int {
	n := 0
	for _, st := range p.SubTasks {
		if st.Status != StatusSucceeded {
			break
		}
		n++
	}
	return n
}

// Splice replaces every sub-task from index `from` onward with the given
// replacements, marking the displaced entries' work as superseded. The
// prefix [0:from) is left untouched.
func (p *Plan) Splice(from int, replacement []SubTask) {
	if from < 0 {
		from = 0
	}
	if from > len(p.SubTasks) {
		from = len(p.SubTasks)
	}
	kept := make([]SubTask, from, from+len(replacement))
	copy(kept, p.SubTasks[:from])
	p.SubTasks = append(kept, replacement...)
}

// NewSubTask builds a pending sub-task with a fresh id.
func NewSubTask(description, expectedState string) SubTask {
	return SubTask{
		ID:            uuid.NewString(),
		Description:   description,
		ExpectedState: expectedState,
		Status:        StatusPending,
	}
}

// Step is a single record inside a trajectory: what was seen, what was done,
// and why. Steps are append-only and never mutated after the fact.
type Step struct {
	Index             int       `json:"index"`
	ObservationDigest string    `json:"observation_digest"`
	Action            Action    `json:"action"`
	Rationale         string    `json:"rationale,omitempty"`
	Error             string    `json:"error,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// Trajectory is the step-by-step record of one sub-task's execution. It is
// owned by the executor while the sub-task runs and archived into the run
// history when the sub-task concludes.
type Trajectory struct {
	SubTaskID string    `json:"subtask_id"`
	Steps     []Step    `json:"steps"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Append adds a step to the trajectory.
func (t *Trajectory) Append(s Step) {
	s.Index = len(t.Steps)
	t.Steps = append(t.Steps, s)
}

// OutcomeStatus classifies how a sub-task execution ended.
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeTimedOut  OutcomeStatus = "timed_out"
)

// ExecutionOutcome is the executor's report for one sub-task. The executor
// writes only into this structure, never into the plan.
type ExecutionOutcome struct {
	Status     OutcomeStatus `json:"status"`
	Trajectory Trajectory    `json:"trajectory"`
	Summary    string        `json:"summary"`
	Answer     string        `json:"answer,omitempty"`
}

// VerdictKind is the terminal classification of a run.
type VerdictKind string

const (
	VerdictCompleted       VerdictKind = "completed"
	VerdictExhaustedBudget VerdictKind = "exhausted-budget"
	VerdictUnrecoverable   VerdictKind = "unrecoverable-failure"
)

// Verdict is the single terminal outcome of a run, with the final answer
// when the executor produced one.
type Verdict struct {
	Kind   VerdictKind `json:"kind"`
	Answer string      `json:"answer,omitempty"`
	Reason string      `json:"reason,omitempty"`
}

// RunState is the process-wide state of one invocation. It is created at
// task start, mutated only by the orchestrator, and frozen once a verdict is
// emitted.
type RunState struct {
	RunID       string       `json:"run_id"`
	Goal        string       `json:"goal"`
	Plan        Plan         `json:"plan"`
	History     []Trajectory `json:"history"`
	// Retired holds sub-tasks displaced from the plan by replans, so the
	// record of attempted work survives plan surgery.
	Retired     []SubTask    `json:"retired,omitempty"`
	ReplanCount int          `json:"replan_count"`
	StepCount   int          `json:"step_count"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	Verdict     *Verdict     `json:"verdict,omitempty"`

	finalized bool
}

// NewRunState initializes run state for the given goal.
func NewRunState(goal string) *RunState {
	return &RunState{
		RunID:     uuid.NewString(),
		Goal:      goal,
		StartedAt: time.Now().UTC(),
	}
}

// Archive appends a concluded trajectory to the run history and adds its
// steps to the global step count. No-op after finalization.
func (r *RunState) Archive(t Trajectory) {
	if r.finalized {
		return
	}
	r.History = append(r.History, t)
	r.StepCount += len(t.Steps)
}

// Finalize records the verdict and freezes the state. Only the first call
// has any effect; every run terminates with exactly one verdict.
func (r *RunState) Finalize(v Verdict) {
	if r.finalized {
		return
	}
	r.finalized = true
	r.FinishedAt = time.Now().UTC()
	r.Verdict = &v
}

// Finalized reports whether a verdict has been emitted.
func (r *RunState) Finalized() bool { return r.finalized }

// TaskConfig identifies one task to run: the user's goal and where the
// environment should start. Mirrors the per-task config files consumed by
// the batch runner.
type TaskConfig struct {
	TaskID   int       `json:"task_id"`
	Intent   string    `json:"intent"`
	StartURL string    `json:"start_url"`
	Eval     *TaskEval `json:"eval,omitempty"`
}

// TaskEval holds the reference answers a finished run is graded against.
// Tasks without one are not graded.
type TaskEval struct {
	ReferenceAnswers ReferenceAnswers `json:"reference_answers"`
}

// ReferenceAnswers lists the matching rules for a task's final answer.
// Rules combine multiplicatively: every configured rule must pass for a
// score of 1.
type ReferenceAnswers struct {
	ExactMatch  string   `json:"exact_match,omitempty"`
	MustInclude []string `json:"must_include,omitempty"`
}

// PageElement is one interactive element in an observation, addressable by
// its numeric id in executor actions.
type PageElement struct {
	ID   int    `json:"id"`
	Role string `json:"role"`
	Name string `json:"name"`
}

// Observation is a snapshot of the environment: current URL, title, open tab
// count, and a numbered index of interactive elements rendered in the
// accessibility-tree style the model is prompted with.
type Observation struct {
	URL       string        `json:"url"`
	Title     string        `json:"title"`
	Tabs      int           `json:"tabs"`
	Elements  []PageElement `json:"elements"`
	Timestamp time.Time     `json:"timestamp"`
}

// ActResult reports the environment's reaction to a single action.
type ActResult struct {
	Info string `json:"info,omitempty"`
}
