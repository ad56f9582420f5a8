// Package executor implements the Local Execution Agent: a bounded
// observe -> think -> act loop that carries one sub-task to completion,
// failure or timeout against an environment session. It never mutates the
// plan; everything it produces goes into the ExecutionOutcome it returns.
package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/coactdev/coact/api/schemas"
	"github.com/coactdev/coact/internal/config"
	"github.com/coactdev/coact/internal/llmutil"
)

// Executor is the local execution agent.
type Executor struct {
	llm    schemas.LLMClient
	cfg    config.ExecutorConfig
	opts   schemas.CompletionOptions
	logger *zap.Logger
}

// New builds an executor on top of the model gateway.
func New(llm schemas.LLMClient, cfg config.ExecutorConfig, llmCfg config.LLMConfig, logger *zap.Logger) *Executor {
	return &Executor{
		llm: llm,
		cfg: cfg,
		opts: schemas.CompletionOptions{
			Model:         llmCfg.Model,
			Temperature:   llmCfg.Temperature,
			MaxTokens:     llmCfg.MaxTokens,
			StopSequences: llmCfg.StopSequences,
		},
		logger: logger.Named("executor"),
	}
}

// Execute runs one sub-task to a terminal outcome. The returned outcome is
// always non-nil: transport and adapter failures beyond their local retry
// budgets surface as a failed outcome, never as a Go error, so the
// orchestrator has a single evaluation path.
func (e *Executor) Execute(ctx context.Context, goal string, st schemas.SubTask, sess schemas.Session) *schemas.ExecutionOutcome {
	logger := e.logger.With(zap.String("subtask_id", st.ID))
	logger.Info("Executing sub-task", zap.String("description", st.Description))

	traj := schemas.Trajectory{SubTaskID: st.ID, StartedAt: time.Now().UTC()}
	outcome := &schemas.ExecutionOutcome{Status: schemas.OutcomeFailed}

	// Consecutive recovery attempts: unparseable replies and rejected
	// actions share this counter, a successful step resets it.
	recoveryFails := 0
	var executed []schemas.Action

	defer func() {
		traj.EndedAt = time.Now().UTC()
		outcome.Trajectory = traj
		logger.Info("Sub-task concluded",
			zap.String("status", string(outcome.Status)),
			zap.Int("steps", len(traj.Steps)))
	}()

	for stepNum := 0; ; stepNum++ {
		if err := ctx.Err(); err != nil {
			outcome.Summary = fmt.Sprintf("execution cancelled: %v", err)
			return outcome
		}
		if stepNum >= e.cfg.MaxSteps {
			outcome.Status = schemas.OutcomeTimedOut
			outcome.Summary = fmt.Sprintf("step budget (%d) exhausted", e.cfg.MaxSteps)
			return outcome
		}

		obs, err := e.observe(ctx, sess)
		if err != nil {
			outcome.Summary = fmt.Sprintf("environment observation failed: %v", err)
			return outcome
		}
		obsDigest := obs.Digest(e.cfg.MaxObservationChars)

		reply, err := e.llm.Complete(ctx, schemas.CompletionRequest{
			SystemPrompt: executorSystemPrompt,
			UserPrompt:   buildUserPrompt(goal, st, obs, obsDigest, traj.Steps, e.cfg.ContextLookback),
			Options:      e.opts,
		})
		if err != nil {
			outcome.Summary = fmt.Sprintf("model call failed: %v", err)
			return outcome
		}

		step := schemas.Step{
			ObservationDigest: obsDigest,
			Rationale:         rationaleOf(reply),
			Timestamp:         time.Now().UTC(),
		}

		action, parseErr := e.decide(reply)
		step.Action = action
		if parseErr != nil {
			// A single malformed reply is recoverable: record it and
			// give the model another look at the page.
			recoveryFails++
			step.Error = parseErr.Error()
			traj.Append(step)
			logger.Warn("Unparseable action", zap.Int("consecutive", recoveryFails), zap.Error(parseErr))
			if recoveryFails >= e.cfg.ParsingFailureLimit {
				outcome.Summary = fmt.Sprintf("failed to produce a valid action %d times in a row", recoveryFails)
				return outcome
			}
			continue
		}

		if action.Kind == schemas.ActionStop {
			traj.Append(step)
			outcome.Status = schemas.OutcomeSucceeded
			outcome.Answer = action.Answer
			outcome.Summary = stopSummary(action.Answer)
			return outcome
		}

		if stalled(executed, action, e.cfg.RepeatingActionLimit) {
			step.Error = fmt.Sprintf("same action repeated %d times", e.cfg.RepeatingActionLimit)
			traj.Append(step)
			outcome.Summary = fmt.Sprintf("stalled: %s repeated %d times", action.String(), e.cfg.RepeatingActionLimit)
			return outcome
		}

		if _, err := e.act(ctx, sess, action); err != nil {
			// Rejected actions (e.g. a non-existent element id) are
			// recoverable events, same budget as parse failures.
			recoveryFails++
			step.Error = err.Error()
			traj.Append(step)
			logger.Warn("Action rejected by environment", zap.String("action", action.String()), zap.Error(err))
			if recoveryFails >= e.cfg.ParsingFailureLimit {
				outcome.Summary = fmt.Sprintf("environment rejected %d consecutive actions: %v", recoveryFails, err)
				return outcome
			}
			continue
		}

		recoveryFails = 0
		executed = append(executed, action)
		traj.Append(step)
	}
}

// decide extracts the fenced action from a model reply and parses it.
func (e *Executor) decide(reply string) (schemas.Action, error) {
	raw, ok := llmutil.ExtractFenced(reply)
	if !ok {
		return schemas.Action{Kind: schemas.ActionNone, Raw: llmutil.Truncate(reply, 200)},
			fmt.Errorf("reply contains no fenced action")
	}
	return ParseAction(raw)
}

// observe fetches a snapshot, retrying transient adapter failures.
func (e *Executor) observe(ctx context.Context, sess schemas.Session) (*schemas.Observation, error) {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.AdapterRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
		obs, err := sess.Observe(ctx)
		if err == nil {
			return obs, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// act applies one action. No retry here: a rejected action is evidence the
// model must see, not a transient to paper over.
func (e *Executor) act(ctx context.Context, sess schemas.Session, action schemas.Action) (*schemas.ActResult, error) {
	return sess.Act(ctx, action)
}

// stalled reports whether issuing next would cross the repeated-action
// threshold. Typing actions count across the whole sub-task (re-typing the
// same text is never progress); other actions only when consecutive.
func stalled(executed []schemas.Action, next schemas.Action, limit int) bool {
	if limit <= 0 {
		return false
	}
	count := 1
	if next.Kind == schemas.ActionTypeText {
		for _, a := range executed {
			if a.Equivalent(next) {
				count++
			}
		}
		return count > limit
	}
	for i := len(executed) - 1; i >= 0; i-- {
		if !executed[i].Equivalent(next) {
			break
		}
		count++
	}
	return count > limit
}

// rationaleOf keeps the reasoning portion of a reply, everything before the
// final fenced action, truncated for the trajectory.
func rationaleOf(reply string) string {
	return llmutil.Truncate(reply, 1000)
}

func stopSummary(answer string) string {
	if answer == "" {
		return "sub-task completed"
	}
	return "sub-task completed with answer: " + answer
}
