package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"booq/types"
)

// ExtractJSON returns the span from the first '{' to the last '}' of s.
// Without such a span s is returned unchanged so that decoding it fails.
//
// The heuristic breaks on replies holding several JSON objects or stray
// braces outside the object.
func ExtractJSON(s string) string {
	start := strings.Index(s, "{")
	if start == -1 {
		return s
	}
	end := strings.LastIndex(s, "}")
	if end < start {
		return s
	}
	return s[start : end+1]
}

// HasJSONObject reports whether s contains a span ExtractJSON can decode.
func HasJSONObject(s string) bool {
	return json.Valid([]byte(ExtractJSON(s)))
}

type questionItem struct {
	Question        *string  `json:"question"`
	Answer          *string  `json:"answer"`
	Analysis        string   `json:"analysis"`
	KnowledgePoints []string `json:"knowledge_points"`
	Chapter         string   `json:"chapter"`
	Section         string   `json:"section"`
}

type examplesResponse struct {
	Examples *[]questionItem `json:"examples"`
}

type exercisesResponse struct {
	Exercises *[]questionItem `json:"exercises"`
}

// ParseExamples decodes an example-extraction reply into questions of page.
func ParseExamples(raw, fileID string, page int) ([]types.Question, error) {
	var resp examplesResponse
	if err := decode(raw, &resp); err != nil {
		return nil, err
	}
	if resp.Examples == nil {
		return nil, fmt.Errorf("missing field \"examples\": %w", types.ErrValidation)
	}
	return toQuestions(*resp.Examples, fileID, page, types.QuestionExample)
}

// ParseExercises decodes an exercise reply. Exercise answers are generated,
// never original.
func ParseExercises(raw, fileID string, page int) ([]types.Question, error) {
	var resp exercisesResponse
	if err := decode(raw, &resp); err != nil {
		return nil, err
	}
	if resp.Exercises == nil {
		return nil, fmt.Errorf("missing field \"exercises\": %w", types.ErrValidation)
	}
	return toQuestions(*resp.Exercises, fileID, page, types.QuestionExercise)
}

func ParseAnswer(raw string) (*types.Answer, error) {
	var resp struct {
		Answer          *string  `json:"answer"`
		Analysis        string   `json:"analysis"`
		KnowledgePoints []string `json:"knowledge_points"`
	}
	if err := decode(raw, &resp); err != nil {
		return nil, err
	}
	if resp.Answer == nil {
		return nil, fmt.Errorf("missing field \"answer\": %w", types.ErrValidation)
	}
	if resp.KnowledgePoints == nil {
		resp.KnowledgePoints = []string{}
	}
	return &types.Answer{
		Answer:          *resp.Answer,
		Analysis:        resp.Analysis,
		KnowledgePoints: resp.KnowledgePoints,
	}, nil
}

func ParseStructure(raw string) ([]types.Chapter, error) {
	var resp struct {
		Chapters []types.Chapter `json:"chapters"`
	}
	if err := decode(raw, &resp); err != nil {
		return nil, err
	}
	if resp.Chapters == nil {
		resp.Chapters = []types.Chapter{}
	}
	return resp.Chapters, nil
}

// QuestionID is the deterministic id of the index-th question of a kind on
// a page.
func QuestionID(fileID string, page int, kind types.QuestionType, index int) string {
	return fmt.Sprintf("%s_%d_%s_%d", fileID, page, kind, index)
}

func decode(raw string, v any) error {
	if err := json.Unmarshal([]byte(ExtractJSON(raw)), v); err != nil {
		return fmt.Errorf("decode model reply: %v: %w", err, types.ErrValidation)
	}
	return nil
}

func toQuestions(items []questionItem, fileID string, page int, kind types.QuestionType) ([]types.Question, error) {
	questions := make([]types.Question, 0, len(items))
	for i, item := range items {
		if item.Question == nil || item.Answer == nil {
			return nil, fmt.Errorf("%s %d lacks question or answer: %w", kind, i, types.ErrValidation)
		}

		points := item.KnowledgePoints
		if points == nil {
			points = []string{}
		}

		questions = append(questions, types.Question{
			ID:                QuestionID(fileID, page, kind, i),
			FileID:            fileID,
			QuestionType:      kind,
			Chapter:           item.Chapter,
			Section:           item.Section,
			KnowledgePoints:   points,
			QuestionText:      *item.Question,
			Answer:            *item.Answer,
			Analysis:          item.Analysis,
			PageNumber:        page,
			HasOriginalAnswer: kind == types.QuestionExample,
		})
	}
	return questions, nil
}
