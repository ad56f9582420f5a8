// Package planner implements the Global Planning Agent: it turns a goal
// into an ordered plan of sub-tasks, and reorganizes the unexecuted tail of
// the plan when a sub-task fails. Apart from the gateway call it is a pure
// function of (goal, history), so replanning is reproducible for a fixed
// history.
package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/coactdev/coact/api/schemas"
	"github.com/coactdev/coact/internal/config"
)

// Planner is the global planning agent.
type Planner struct {
	llm    schemas.LLMClient
	cfg    config.PlannerConfig
	opts   schemas.CompletionOptions
	logger *zap.Logger
}

// New builds a planner on top of the model gateway.
func New(llm schemas.LLMClient, cfg config.PlannerConfig, llmCfg config.LLMConfig, logger *zap.Logger) *Planner {
	return &Planner{
		llm: llm,
		cfg: cfg,
		opts: schemas.CompletionOptions{
			Model:         llmCfg.Model,
			Temperature:   llmCfg.Temperature,
			MaxTokens:     llmCfg.MaxTokens,
			StopSequences: llmCfg.StopSequences,
			ForceJSON:     true,
		},
		logger: logger.Named("planner"),
	}
}

// Plan produces the initial plan for a goal. It is called exactly once per
// run, before any execution; the returned plan is non-empty and every
// sub-task carries a unique id.
func (p *Planner) Plan(ctx context.Context, goal string, state *schemas.RunState) (*schemas.Plan, error) {
	subtasks, err := p.generate(ctx, "plan", buildPlanPrompt(goal))
	if err != nil {
		return nil, err
	}
	p.logger.Info("Global plan created", zap.Int("subtasks", len(subtasks)))
	return &schemas.Plan{SubTasks: subtasks}, nil
}

// Replan replaces everything from the failed sub-task onward. The prefix of
// already-succeeded sub-tasks is carried over verbatim; the record of
// completed work is never discarded.
func (p *Planner) Replan(ctx context.Context, goal string, state *schemas.RunState, failed schemas.SubTask) (*schemas.Plan, error) {
	replacement, err := p.generate(ctx, "replan", buildReplanPrompt(goal, state, failed, p.cfg.MaxHistoryChars))
	if err != nil {
		return nil, err
	}

	prefixLen := state.Plan.SucceededPrefixLen()
	next := make([]schemas.SubTask, prefixLen, prefixLen+len(replacement))
	copy(next, state.Plan.SubTasks[:prefixLen])
	next = append(next, replacement...)

	p.logger.Info("Global plan revised",
		zap.Int("preserved", prefixLen),
		zap.Int("replacement", len(replacement)))
	return &schemas.Plan{SubTasks: next}, nil
}

// generate runs one planning call with bounded retries. Both transport
// errors and unparseable plans count against the same budget; exhausting it
// is a PlanningError, fatal to the run.
func (p *Planner) generate(ctx context.Context, op, userPrompt string) ([]schemas.SubTask, error) {
	req := schemas.CompletionRequest{
		SystemPrompt: plannerSystemPrompt,
		UserPrompt:   userPrompt,
		Options:      p.opts,
	}

	attempts := 0
	var subtasks []schemas.SubTask

	operation := func() error {
		attempts++
		reply, err := p.llm.Complete(ctx, req)
		if err != nil {
			p.logger.Warn("Planning model call failed", zap.String("op", op), zap.Int("attempt", attempts), zap.Error(err))
			return err
		}
		parsed, err := parsePlanReply(reply)
		if err != nil {
			p.logger.Warn("Planning reply unparseable", zap.String("op", op), zap.Int("attempt", attempts), zap.Error(err))
			return err
		}
		subtasks = parsed
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 0 // bounded by WithMaxRetries, not elapsed time

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.cfg.MaxRetries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, &PlanningError{Op: op, Attempts: attempts, Err: err}
	}

	if err := validate(subtasks); err != nil {
		return nil, &PlanningError{Op: op, Attempts: attempts, Err: err}
	}
	return subtasks, nil
}

// validate enforces the plan invariants: non-empty, unique ids.
func validate(subtasks []schemas.SubTask) error {
	if len(subtasks) == 0 {
		return fmt.Errorf("plan is empty")
	}
	seen := make(map[string]struct{}, len(subtasks))
	for _, st := range subtasks {
		if _, dup := seen[st.ID]; dup {
			return fmt.Errorf("duplicate sub-task id %s", st.ID)
		}
		seen[st.ID] = struct{}{}
	}
	return nil
}
