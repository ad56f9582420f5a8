package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var fileJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// FileStore writes one result_<task_id>.json per run into the result
// directory.
type FileStore struct {
	dir    string
	logger *zap.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore ensures the result directory exists.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("result directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create result directory %q: %w", dir, err)
	}
	return &FileStore{dir: dir, logger: logger.Named("store")}, nil
}

// SaveRun writes the record, replacing any earlier result for the same task.
func (f *FileStore) SaveRun(_ context.Context, rec *RunRecord) error {
	data, err := fileJSON.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}
	path := filepath.Join(f.dir, fmt.Sprintf("result_%d.json", rec.TaskID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write run record: %w", err)
	}
	f.logger.Info("Run result saved", zap.String("path", path), zap.String("verdict", string(rec.Verdict.Kind)))
	return nil
}
