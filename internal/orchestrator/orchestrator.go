// Package orchestrator drives the plan/execute/replan control loop for one
// run: it owns the RunState, sequences the global planner and the local
// executor, enforces the run-wide budgets, and emits exactly one verdict.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/coactdev/coact/api/schemas"
	"github.com/coactdev/coact/internal/config"
)

// runPhase is the orchestrator's position in its state machine.
type runPhase string

const (
	phasePlanning   runPhase = "planning"
	phaseExecuting  runPhase = "executing"
	phaseEvaluating runPhase = "evaluating"
	phaseReplanning runPhase = "replanning"
)

// GlobalPlanner is the planning tier as the orchestrator sees it.
type GlobalPlanner interface {
	Plan(ctx context.Context, goal string, state *schemas.RunState) (*schemas.Plan, error)
	Replan(ctx context.Context, goal string, state *schemas.RunState, failed schemas.SubTask) (*schemas.Plan, error)
}

// LocalExecutor is the execution tier as the orchestrator sees it.
type LocalExecutor interface {
	Execute(ctx context.Context, goal string, st schemas.SubTask, sess schemas.Session) *schemas.ExecutionOutcome
}

// Orchestrator runs the control loop. Dependencies arrive as interfaces so
// the state machine is testable without a browser or a model.
type Orchestrator struct {
	budgets  config.BudgetsConfig
	planner  GlobalPlanner
	executor LocalExecutor
	env      schemas.Environment
	logger   *zap.Logger
	now      func() time.Time
}

// New wires an orchestrator. All dependencies are required.
func New(budgets config.BudgetsConfig, planner GlobalPlanner, executor LocalExecutor, env schemas.Environment, logger *zap.Logger) (*Orchestrator, error) {
	if planner == nil || executor == nil || env == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	return &Orchestrator{
		budgets:  budgets,
		planner:  planner,
		executor: executor,
		env:      env,
		logger:   logger.Named("orchestrator"),
		now:      time.Now,
	}, nil
}

// Run executes one task to a verdict. The returned RunState always carries
// exactly one verdict, including partial progress. The error return is
// reserved for infrastructure failures not attributable to the task itself
// (the environment could not even be acquired); every other outcome is
// expressed through the verdict.
func (o *Orchestrator) Run(ctx context.Context, task schemas.TaskConfig) (*schemas.RunState, error) {
	state := schemas.NewRunState(task.Intent)
	logger := o.logger.With(zap.String("run_id", state.RunID), zap.Int("task_id", task.TaskID))
	logger.Info("Run starting", zap.String("goal", state.Goal))

	sess, err := o.env.Reset(ctx, task)
	if err != nil {
		state.Finalize(schemas.Verdict{
			Kind:   schemas.VerdictUnrecoverable,
			Reason: fmt.Sprintf("environment reset failed: %v", err),
		})
		return state, fmt.Errorf("failed to acquire environment session: %w", err)
	}
	// The session must be released on every exit path, including
	// cancellation mid-transition.
	defer func() {
		if cerr := sess.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Warn("Failed to close environment session", zap.Error(cerr))
		}
	}()

	phase := phasePlanning
	var lastOutcome *schemas.ExecutionOutcome
	var lastFailed schemas.SubTask

	for {
		// Budgets and cancellation are observed at the top of every
		// transition, regardless of the current phase.
		if reason, breached := o.budgetBreached(ctx, state); breached {
			logger.Warn("Budget exhausted", zap.String("reason", reason), zap.String("phase", string(phase)))
			state.Finalize(schemas.Verdict{Kind: schemas.VerdictExhaustedBudget, Reason: reason})
			return state, nil
		}

		switch phase {
		case phasePlanning:
			plan, err := o.planner.Plan(ctx, state.Goal, state)
			if err != nil {
				logger.Error("Initial planning failed", zap.Error(err))
				state.Finalize(schemas.Verdict{
					Kind:   schemas.VerdictUnrecoverable,
					Reason: fmt.Sprintf("planning failed: %v", err),
				})
				return state, nil
			}
			state.Plan = *plan
			o.activateNext(state)
			logger.Info("Plan installed", zap.Int("subtasks", len(plan.SubTasks)))
			phase = phaseExecuting

		case phaseExecuting:
			active := state.Plan.Active()
			if active == nil {
				state.Finalize(schemas.Verdict{
					Kind:   schemas.VerdictUnrecoverable,
					Reason: "no active sub-task to execute",
				})
				return state, nil
			}
			active.Attempts++
			outcome := o.executor.Execute(ctx, state.Goal, *active, sess)
			state.Archive(outcome.Trajectory)
			lastOutcome = outcome
			phase = phaseEvaluating

		case phaseEvaluating:
			active := state.Plan.Active()
			switch lastOutcome.Status {
			case schemas.OutcomeSucceeded:
				active.Status = schemas.StatusSucceeded
				active.Summary = lastOutcome.Summary
				if state.Plan.NextPending() == nil {
					state.Finalize(schemas.Verdict{
						Kind:   schemas.VerdictCompleted,
						Answer: lastOutcome.Answer,
					})
					logger.Info("Run completed", zap.Int("steps", state.StepCount), zap.Int("replans", state.ReplanCount))
					return state, nil
				}
				o.activateNext(state)
				phase = phaseExecuting

			default: // failed or timed_out
				active.Status = schemas.StatusFailed
				active.Summary = lastOutcome.Summary
				lastFailed = *active
				logger.Warn("Sub-task failed",
					zap.String("subtask_id", active.ID),
					zap.String("outcome", string(lastOutcome.Status)),
					zap.String("summary", lastOutcome.Summary))
				if state.ReplanCount >= o.budgets.MaxReplans {
					state.Finalize(schemas.Verdict{
						Kind:   schemas.VerdictExhaustedBudget,
						Reason: fmt.Sprintf("replan budget (%d) exhausted", o.budgets.MaxReplans),
					})
					return state, nil
				}
				phase = phaseReplanning
			}

		case phaseReplanning:
			plan, err := o.planner.Replan(ctx, state.Goal, state, lastFailed)
			if err != nil {
				logger.Error("Replanning failed", zap.Error(err))
				state.Finalize(schemas.Verdict{
					Kind:   schemas.VerdictUnrecoverable,
					Reason: fmt.Sprintf("replanning failed: %v", err),
				})
				return state, nil
			}
			o.installReplan(state, plan)
			state.ReplanCount++
			o.activateNext(state)
			logger.Info("Replan installed",
				zap.Int("replan_count", state.ReplanCount),
				zap.Int("subtasks", len(plan.SubTasks)))
			phase = phaseExecuting
		}
	}
}

// installReplan swaps the plan for the revised one, retiring the displaced
// suffix so the record of attempted work is kept.
func (o *Orchestrator) installReplan(state *schemas.RunState, plan *schemas.Plan) {
	prefix := state.Plan.SucceededPrefixLen()
	for _, st := range state.Plan.SubTasks[prefix:] {
		if st.Status == schemas.StatusPending || st.Status == schemas.StatusActive {
			st.Status = schemas.StatusAbandoned
		}
		state.Retired = append(state.Retired, st)
	}
	state.Plan = *plan
}

// activateNext marks the first pending sub-task active. The plan never has
// more than one active entry because this is the only place activation
// happens and it is only reached with no sub-task running.
func (o *Orchestrator) activateNext(state *schemas.RunState) {
	if st := state.Plan.NextPending(); st != nil {
		st.Status = schemas.StatusActive
	}
}

// budgetBreached checks cancellation and the run-wide ceilings.
func (o *Orchestrator) budgetBreached(ctx context.Context, state *schemas.RunState) (string, bool) {
	if err := ctx.Err(); err != nil {
		return fmt.Sprintf("run cancelled: %v", err), true
	}
	if o.budgets.MaxWallClock > 0 {
		if elapsed := o.now().Sub(state.StartedAt); elapsed >= o.budgets.MaxWallClock {
			return fmt.Sprintf("wall clock budget (%s) exhausted", o.budgets.MaxWallClock), true
		}
	}
	if o.budgets.MaxTotalSteps > 0 && state.StepCount >= o.budgets.MaxTotalSteps {
		return fmt.Sprintf("total step budget (%d) exhausted", o.budgets.MaxTotalSteps), true
	}
	return "", false
}
