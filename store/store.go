package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"booq/types"
)

type FileRegistry interface {
	GetFile(context.Context, string) (*types.FileInfo, error)
	ListFiles(context.Context) ([]types.FileInfo, error)
	SaveFile(context.Context, types.FileInfo) error
}

type QuestionStore interface {
	SaveQuestions(context.Context, string, []types.Question) error
	GetQuestions(context.Context, string) ([]types.Question, error)
}

// IndexPath is where the retrieval index of a file lives.
func IndexPath(root, fileID string) string {
	return filepath.Join(root, fileID, "rag_index.json")
}

// writeJSON replaces path with the indented encoding of v. The data goes to a
// temp file in the same directory first so readers never see a partial file.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// readJSON decodes path into v. ok is false when the file does not exist.
func readJSON(path string, v any) (ok bool, err error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("decode %s: %v: %w", path, err, types.ErrValidation)
	}
	return true, nil
}
