package types

import (
	"time"
)

type DocType string

const (
	DocKnowledge DocType = "knowledge"
	DocExample   DocType = "example"
	DocExercise  DocType = "exercise"
)

// Weight is the ranking multiplier applied to a fragment's lexical score.
func (t DocType) Weight() float64 {
	switch t {
	case DocExample:
		return 1.5
	case DocKnowledge:
		return 1.2
	case DocExercise:
		return 1.0
	default:
		return 0.8
	}
}

type FragmentMetadata struct {
	FileID     string  `json:"file_id"`
	PageNumber int     `json:"page_number"`
	ChunkIndex int     `json:"chunk_index"`
	DocType    DocType `json:"doc_type"`
	Chapter    string  `json:"chapter"`
	Section    string  `json:"section"`
}

// Fragment is one stored unit of the retrieval index.
type Fragment struct {
	ID        string           `json:"id"`
	Content   string           `json:"content"`
	Metadata  FragmentMetadata `json:"metadata"`
	Embedding []float32        `json:"embedding"` // reserved
}

type SearchResult struct {
	Fragment Fragment `json:"document"`
	Score    float64  `json:"score"`
}

type QuestionType string

const (
	QuestionExample  QuestionType = "example"
	QuestionExercise QuestionType = "exercise"
)

type Question struct {
	ID                string       `json:"id"`
	FileID            string       `json:"file_id"`
	QuestionType      QuestionType `json:"question_type"`
	Chapter           string       `json:"chapter"`
	Section           string       `json:"section"`
	KnowledgePoints   []string     `json:"knowledge_points"`
	QuestionText      string       `json:"question_text"`
	Answer            string       `json:"answer"`
	Analysis          string       `json:"analysis"`
	PageNumber        int          `json:"page_number"`
	HasOriginalAnswer bool         `json:"has_original_answer"`
}

type Status string

const (
	StatusIdle      Status = "idle"
	StatusAnalyzing Status = "analyzing"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusStopped   Status = "stopped"
)

// Terminal reports whether no further transitions are expected for a run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusStopped
}

type AnalysisProgress struct {
	FileID         string `json:"file_id"`
	Status         Status `json:"status"`
	CurrentPage    int    `json:"current_page"`
	TotalPages     int    `json:"total_pages"`
	CurrentStep    string `json:"current_step"`
	QuestionsFound int    `json:"questions_found"`
	Message        string `json:"message"`
}

type FileType string

const (
	FilePDF     FileType = "pdf"
	FileText    FileType = "txt"
	FileUnknown FileType = "unknown"
)

type FileInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	FileType    FileType  `json:"file_type"`
	Path        string    `json:"path"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
	TotalPages  int       `json:"total_pages"`
}

// Answer is a freshly generated answer for a single question.
type Answer struct {
	Answer          string   `json:"answer"`
	Analysis        string   `json:"analysis"`
	KnowledgePoints []string `json:"knowledge_points"`
}

type Chapter struct {
	Name     string    `json:"name"`
	Sections []Section `json:"sections"`
}

type Section struct {
	Name            string   `json:"name"`
	KnowledgePoints []string `json:"knowledge_points"`
}

type ModelConfig struct {
	URL    string `json:"url"`
	Model  string `json:"model"`
	APIKey string `json:"api_key,omitempty"`
}

func (m ModelConfig) Configured() bool {
	return m.URL != "" && m.Model != ""
}

type Config struct {
	ServerAddr   string
	StoragePath  string
	StoreBackend string
	PostgresDSN  string

	Analysis       ModelConfig
	Solving        ModelConfig
	RequestsPerSec float64
	RepairAttempts int

	Loader LoaderConfig
}

type LoaderConfig struct {
	MonitoringTime time.Duration
	SourceDir      string
	ArchiveDir     string
	BadDir         string
}
