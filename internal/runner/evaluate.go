package runner

import (
	"strings"

	"github.com/coactdev/coact/api/schemas"
)

// Score grades a finished run's answer against the task's reference
// answers: 1 when every configured rule passes, 0 otherwise, nil when the
// task carries no eval block.
func Score(task schemas.TaskConfig, state *schemas.RunState) *float64 {
	if task.Eval == nil {
		return nil
	}

	answer := ""
	if state != nil && state.Verdict != nil {
		answer = state.Verdict.Answer
	}
	pred := cleanAnswer(answer)

	score := 1.0
	refs := task.Eval.ReferenceAnswers
	if refs.ExactMatch != "" && pred != cleanAnswer(refs.ExactMatch) {
		score = 0
	}
	for _, ref := range refs.MustInclude {
		if !mustInclude(cleanAnswer(ref), pred) {
			score = 0
		}
	}
	return &score
}

// cleanAnswer strips one layer of quoting and lowercases, so formatting
// noise does not fail a correct answer.
func cleanAnswer(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			s = s[1 : len(s)-1]
		}
	}
	return strings.ToLower(s)
}

// mustInclude checks containment. A single-word reference must match a
// whole token of the answer, so a reference of "0" does not pass on "10".
func mustInclude(ref, pred string) bool {
	if strings.ContainsAny(ref, " \t") {
		return strings.Contains(pred, ref)
	}
	for _, tok := range strings.Fields(pred) {
		if strings.Trim(tok, ".,;:!?") == ref {
			return true
		}
	}
	return false
}
