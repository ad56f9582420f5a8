package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/coactdev/coact/api/schemas"
)

func TestNewFileStoreCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "results")
	_, err := NewFileStore(dir, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.DirExists(t, dir)
}

func TestNewFileStoreRejectsEmptyDir(t *testing.T) {
	_, err := NewFileStore("", zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestFileStoreSaveRun(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir, zaptest.NewLogger(t))
	require.NoError(t, err)

	rec := testRecord()
	require.NoError(t, fs.SaveRun(context.Background(), rec))

	data, err := os.ReadFile(filepath.Join(dir, "result_7.json"))
	require.NoError(t, err)

	var got RunRecord
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, rec.RunID, got.RunID)
	assert.Equal(t, schemas.VerdictCompleted, got.Verdict.Kind)
	assert.Equal(t, rec.StepCount, got.StepCount)
}

func TestFileStoreOverwritesPreviousResult(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFileStore(dir, zaptest.NewLogger(t))
	require.NoError(t, err)

	rec := testRecord()
	require.NoError(t, fs.SaveRun(context.Background(), rec))

	rec.Verdict = schemas.Verdict{Kind: schemas.VerdictExhaustedBudget, Reason: "rerun"}
	require.NoError(t, fs.SaveRun(context.Background(), rec))

	data, err := os.ReadFile(filepath.Join(dir, "result_7.json"))
	require.NoError(t, err)
	var got RunRecord
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, schemas.VerdictExhaustedBudget, got.Verdict.Kind)
}

func TestNewRunRecordTraceToggle(t *testing.T) {
	task := schemas.TaskConfig{TaskID: 3, Intent: "check order status"}
	state := schemas.NewRunState(task.Intent)
	state.Archive(schemas.Trajectory{SubTaskID: "t1", Steps: make([]schemas.Step, 2)})
	state.Finalize(schemas.Verdict{Kind: schemas.VerdictCompleted})

	bare := NewRunRecord(task, state, false)
	assert.Empty(t, bare.History)
	assert.Equal(t, 2, bare.StepCount)

	full := NewRunRecord(task, state, true)
	require.Len(t, full.History, 1)
	assert.Equal(t, "t1", full.History[0].SubTaskID)
}
