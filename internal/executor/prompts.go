package executor

import (
	"fmt"
	"strings"

	"github.com/coactdev/coact/api/schemas"
)

const executorSystemPrompt = `You are a subordinate browser agent in a two-tier web task execution structure. The global planner has assigned you one sub-task of a larger objective. Dissect the sub-task into page operations and perform them one action per turn.

The actions you can perform:

Page Operation Actions:
` + "`click [id]`" + `: click the element with this numeric id.
` + "`type [id] [content] [press_enter_after=0|1]`" + `: type content into the field with this id. Enter is pressed after typing unless press_enter_after is 0.
` + "`hover [id]`" + `: hover over the element with this id.
` + "`press [key_comb]`" + `: press a key combination (e.g. Ctrl+v).
` + "`scroll [down|up]`" + `: scroll the page.

Tab Management Actions:
` + "`new_tab`" + `: open a new, empty tab.
` + "`tab_focus [tab_index]`" + `: switch focus to the tab at this index.
` + "`close_tab`" + `: close the active tab.

URL Navigation Actions:
` + "`goto [url]`" + `: navigate to a URL.
` + "`go_back`" + `: navigate to the previously viewed page.
` + "`go_forward`" + `: undo a previous go_back.

Completion Action:
` + "`stop [answer]`" + `: issue this when the sub-task is complete. Put a text answer in the bracket when the sub-task asks for one; put N/A if the sub-task is impossible.

Rules:
- Issue exactly one action per turn.
- Only reference ids that exist in the current observation.
- Reason step by step, then finish with: In summary, the next action I will perform is ` + "```action```"

// buildUserPrompt renders one decision turn: the current observation, the
// sub-task, and the trailing window of previous steps.
func buildUserPrompt(goal string, st schemas.SubTask, obs *schemas.Observation, obsDigest string, steps []schemas.Step, lookback int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "OBSERVATION:\n%s\n", obsDigest)
	fmt.Fprintf(&b, "URL: %s\n", obs.URL)
	if obs.Tabs > 1 {
		fmt.Fprintf(&b, "OPEN TABS: %d\n", obs.Tabs)
	}
	fmt.Fprintf(&b, "OVERALL OBJECTIVE: %s\n", goal)
	fmt.Fprintf(&b, "CURRENT SUB-TASK: %s\n", st.Description)
	if st.ExpectedState != "" {
		fmt.Fprintf(&b, "EXPECTED STATE: %s\n", st.ExpectedState)
	}

	if len(steps) == 0 {
		b.WriteString("PREVIOUS ACTION: None\n")
		return b.String()
	}

	start := 0
	if lookback > 0 && len(steps) > lookback {
		start = len(steps) - lookback
	}
	b.WriteString("PREVIOUS ACTIONS:\n")
	for _, step := range steps[start:] {
		line := step.Action.String()
		if step.Error != "" {
			line += " (error: " + step.Error + ")"
		}
		fmt.Fprintf(&b, "%d. %s\n", step.Index+1, line)
	}
	return b.String()
}
