package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"booq/types"
)

// FileStore keeps everything about a file under <root>/<file_id>/: the
// registry record in meta.json and the question snapshot in
// questions/all_questions.json.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) metaPath(fileID string) string {
	return filepath.Join(s.root, fileID, "meta.json")
}

func (s *FileStore) questionsPath(fileID string) string {
	return filepath.Join(s.root, fileID, "questions", "all_questions.json")
}

func (s *FileStore) GetFile(ctx context.Context, fileID string) (*types.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validID(fileID) {
		return nil, fmt.Errorf("file %q: %w", fileID, types.ErrNotFound)
	}

	var info types.FileInfo
	ok, err := readJSON(s.metaPath(fileID), &info)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("file %q: %w", fileID, types.ErrNotFound)
	}
	return &info, nil
}

func (s *FileStore) ListFiles(ctx context.Context) ([]types.FileInfo, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}

	files := make([]types.FileInfo, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := s.GetFile(ctx, e.Name())
		if err != nil {
			continue
		}
		files = append(files, *info)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].CreatedAt.After(files[j].CreatedAt)
	})
	return files, nil
}

func (s *FileStore) SaveFile(ctx context.Context, info types.FileInfo) error {
	if !validID(info.ID) {
		return fmt.Errorf("file id %q: %w", info.ID, types.ErrValidation)
	}
	if err := writeJSON(s.metaPath(info.ID), info); err != nil {
		return fmt.Errorf("save file %s: %v: %w", info.ID, err, types.ErrPersistence)
	}
	return nil
}

// SaveQuestions replaces the snapshot of fileID with questions.
func (s *FileStore) SaveQuestions(ctx context.Context, fileID string, questions []types.Question) error {
	if questions == nil {
		questions = []types.Question{}
	}
	if err := writeJSON(s.questionsPath(fileID), questions); err != nil {
		return fmt.Errorf("save questions of %s: %v: %w", fileID, err, types.ErrPersistence)
	}
	return nil
}

func (s *FileStore) GetQuestions(ctx context.Context, fileID string) ([]types.Question, error) {
	if !validID(fileID) {
		return nil, fmt.Errorf("file %q: %w", fileID, types.ErrNotFound)
	}

	var questions []types.Question
	if _, err := readJSON(s.questionsPath(fileID), &questions); err != nil {
		return nil, err
	}
	if questions == nil {
		questions = []types.Question{}
	}
	return questions, nil
}

// validID keeps ids from escaping the storage root.
func validID(id string) bool {
	return id != "" && id != "." && id != ".." && filepath.Base(id) == id
}
