package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coactdev/coact/api/schemas"
)

func finishedState(answer string) *schemas.RunState {
	state := schemas.NewRunState("goal")
	state.Finalize(schemas.Verdict{Kind: schemas.VerdictCompleted, Answer: answer})
	return state
}

func TestScoreNoEvalBlock(t *testing.T) {
	assert.Nil(t, Score(schemas.TaskConfig{TaskID: 1}, finishedState("anything")))
}

func TestScoreExactMatch(t *testing.T) {
	task := schemas.TaskConfig{Eval: &schemas.TaskEval{
		ReferenceAnswers: schemas.ReferenceAnswers{ExactMatch: "$24.99"},
	}}

	// Quoting and case are formatting noise, not wrong answers.
	got := Score(task, finishedState(`"$24.99"`))
	require.NotNil(t, got)
	assert.Equal(t, 1.0, *got)

	got = Score(task, finishedState("$19.99"))
	require.NotNil(t, got)
	assert.Equal(t, 0.0, *got)
}

func TestScoreMustInclude(t *testing.T) {
	task := schemas.TaskConfig{Eval: &schemas.TaskEval{
		ReferenceAnswers: schemas.ReferenceAnswers{MustInclude: []string{"blue mug", "$24.99"}},
	}}

	got := Score(task, finishedState("The blue mug costs $24.99."))
	require.NotNil(t, got)
	assert.Equal(t, 1.0, *got)

	// Every phrase must appear; one miss zeroes the score.
	got = Score(task, finishedState("The blue mug is out of stock."))
	require.NotNil(t, got)
	assert.Equal(t, 0.0, *got)
}

func TestScoreSingleWordReferenceMatchesWholeTokens(t *testing.T) {
	task := schemas.TaskConfig{Eval: &schemas.TaskEval{
		ReferenceAnswers: schemas.ReferenceAnswers{MustInclude: []string{"0"}},
	}}

	got := Score(task, finishedState("10 items"))
	require.NotNil(t, got)
	assert.Equal(t, 0.0, *got)

	got = Score(task, finishedState("0 items"))
	require.NotNil(t, got)
	assert.Equal(t, 1.0, *got)
}

func TestScoreMissingAnswerFails(t *testing.T) {
	task := schemas.TaskConfig{Eval: &schemas.TaskEval{
		ReferenceAnswers: schemas.ReferenceAnswers{ExactMatch: "$24.99"},
	}}

	state := schemas.NewRunState("goal")
	state.Finalize(schemas.Verdict{Kind: schemas.VerdictExhaustedBudget, Reason: "step budget"})
	got := Score(task, state)
	require.NotNil(t, got)
	assert.Equal(t, 0.0, *got)
}
