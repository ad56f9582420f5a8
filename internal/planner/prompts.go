package planner

import (
	"fmt"
	"strings"

	"github.com/coactdev/coact/api/schemas"
	"github.com/coactdev/coact/internal/llmutil"
)

const plannerSystemPrompt = `You are the strategic leader in a two-tier web task execution structure. You decompose a user's web-based objective into an ordered sequence of sub-tasks that a subordinate browser agent will execute one at a time.

Rules for your plans:
- Every sub-task description must be self-contained: it must be resolvable on its own, without pronouns referring back to earlier sub-tasks.
- Each sub-task pairs a description with the expected state of the task after it completes.
- Respond with ONLY a JSON array, no prose, in this form:
[{"description": "...", "expected_state": "..."}, ...]`

const replanInstruction = `A sub-task has failed and the plan must be reorganized. Produce replacement sub-tasks for everything from the failed sub-task onward. You may change granularity, ordering or strategy for the remaining work, but the already-completed work listed below is fixed and must not be redone.

Respond with ONLY a JSON array of the replacement sub-tasks, in this form:
[{"description": "...", "expected_state": "..."}, ...]`

// buildPlanPrompt renders the initial planning request.
func buildPlanPrompt(goal string) string {
	return fmt.Sprintf("OBJECTIVE: %s\n\nProduce the global plan now.", goal)
}

// buildReplanPrompt renders the replan request: the fixed completed prefix,
// the failure evidence, and the discarded remainder of the old plan.
func buildReplanPrompt(goal string, state *schemas.RunState, failed schemas.SubTask, maxHistoryChars int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "OBJECTIVE: %s\n\n", goal)

	b.WriteString("COMPLETED SUB-TASKS (fixed, do not redo):\n")
	completed := 0
	for _, st := range state.Plan.SubTasks {
		if st.Status != schemas.StatusSucceeded {
			break
		}
		completed++
		fmt.Fprintf(&b, "%d. %s\n   result: %s\n", completed, st.Description, st.Summary)
	}
	if completed == 0 {
		b.WriteString("(none)\n")
	}

	fmt.Fprintf(&b, "\nFAILED SUB-TASK: %s\n", failed.Description)
	if failed.ExpectedState != "" {
		fmt.Fprintf(&b, "EXPECTED STATE: %s\n", failed.ExpectedState)
	}
	fmt.Fprintf(&b, "FAILURE: %s\n", failed.Summary)

	if digest := historyDigest(state, maxHistoryChars); digest != "" {
		fmt.Fprintf(&b, "\nEXECUTION HISTORY:\n%s\n", digest)
	}

	discarded := false
	for _, st := range state.Plan.SubTasks[completed:] {
		if st.ID == failed.ID {
			continue
		}
		if !discarded {
			b.WriteString("\nDISCARDED REMAINDER OF THE OLD PLAN (for reference only):\n")
			discarded = true
		}
		fmt.Fprintf(&b, "- %s\n", st.Description)
	}

	b.WriteString("\n")
	b.WriteString(replanInstruction)
	return b.String()
}

// historyDigest summarizes the archived trajectories, most recent last,
// truncated from the front so the freshest evidence survives.
func historyDigest(state *schemas.RunState, maxChars int) string {
	var b strings.Builder
	for _, traj := range state.History {
		fmt.Fprintf(&b, "sub-task %s:\n", traj.SubTaskID)
		for _, step := range traj.Steps {
			line := fmt.Sprintf("  step %d: %s", step.Index, step.Action.String())
			if step.Error != "" {
				line += " (error: " + step.Error + ")"
			}
			b.WriteString(line + "\n")
		}
	}
	s := strings.TrimRight(b.String(), "\n")
	if maxChars > 0 && len(s) > maxChars {
		s = "[...truncated]\n" + s[len(s)-maxChars:]
	}
	return s
}

// planItem is the wire shape of one planned sub-task in the model's reply.
type planItem struct {
	Description   string `json:"description"`
	ExpectedState string `json:"expected_state"`
}

// parsePlanReply turns a model reply into pending sub-tasks, rejecting
// empty plans and blank descriptions.
func parsePlanReply(reply string) ([]schemas.SubTask, error) {
	items, err := llmutil.ParseJSON[[]planItem](reply)
	if err != nil {
		return nil, err
	}
	if len(*items) == 0 {
		return nil, fmt.Errorf("model returned an empty plan")
	}

	subtasks := make([]schemas.SubTask, 0, len(*items))
	for i, item := range *items {
		desc := strings.TrimSpace(item.Description)
		if desc == "" {
			return nil, fmt.Errorf("plan item %d has an empty description", i)
		}
		subtasks = append(subtasks, schemas.NewSubTask(desc, strings.TrimSpace(item.ExpectedState)))
	}
	return subtasks, nil
}
