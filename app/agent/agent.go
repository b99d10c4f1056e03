package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"booq/model"
	"booq/types"
)

var ErrNotConfigured = fmt.Errorf("no analysis model configured: %w", types.ErrValidation)

// Settings holds the models used for analysis. The solving model answers
// exercises and falls back to the analysis model when unset.
type Settings struct {
	mu       sync.RWMutex
	analysis types.ModelConfig
	solving  types.ModelConfig
}

func NewSettings(analysis, solving types.ModelConfig) *Settings {
	return &Settings{analysis: analysis, solving: solving}
}

func (s *Settings) Analysis() (types.ModelConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.analysis, s.analysis.Configured()
}

func (s *Settings) Solving() (types.ModelConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.solving.Configured() {
		return s.solving, true
	}
	return s.analysis, s.analysis.Configured()
}

// Snapshot returns both models as configured, without the fallback.
func (s *Settings) Snapshot() (analysis, solving types.ModelConfig) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.analysis, s.solving
}

func (s *Settings) SetAnalysis(cfg types.ModelConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analysis = cfg
}

func (s *Settings) SetSolving(cfg types.ModelConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.solving = cfg
}

// Agent wraps the chat model calls the analysis needs.
type Agent struct {
	settings       *Settings
	factory        model.Factory
	repairAttempts int
	countTokens    func(string) int
	logger         *slog.Logger
}

func New(settings *Settings, factory model.Factory, repairAttempts int) *Agent {
	return &Agent{
		settings:       settings,
		factory:        factory,
		repairAttempts: repairAttempts,
		countTokens:    CountTokens,
		logger:         slog.Default(),
	}
}

func (a *Agent) Settings() *Settings {
	return a.settings
}

func (a *Agent) Configured() bool {
	_, ok := a.settings.Analysis()
	return ok
}

// AnalyzeExamples asks for the worked examples on a page and returns the raw
// reply.
func (a *Agent) AnalyzeExamples(ctx context.Context, text string) (string, error) {
	cfg, ok := a.settings.Analysis()
	if !ok {
		return "", ErrNotConfigured
	}
	return a.complete(ctx, cfg, "examples", model.ExamplesSystemPrompt, model.ExamplesUserPrompt(text))
}

// AnalyzeExercises asks for the exercises on a page, solved with the help of
// the retrieved context.
func (a *Agent) AnalyzeExercises(ctx context.Context, text, context string) (string, error) {
	cfg, ok := a.settings.Solving()
	if !ok {
		return "", ErrNotConfigured
	}
	return a.complete(ctx, cfg, "exercises", model.ExercisesSystemPrompt, model.ExercisesUserPrompt(text, context))
}

func (a *Agent) GenerateAnswer(ctx context.Context, question, context string) (*types.Answer, error) {
	cfg, ok := a.settings.Solving()
	if !ok {
		return nil, ErrNotConfigured
	}
	raw, err := a.complete(ctx, cfg, "answer", model.AnswerSystemPrompt, model.AnswerUserPrompt(question, context))
	if err != nil {
		return nil, err
	}
	return model.ParseAnswer(raw)
}

func (a *Agent) ExtractStructure(ctx context.Context, text string) ([]types.Chapter, error) {
	cfg, ok := a.settings.Analysis()
	if !ok {
		return nil, ErrNotConfigured
	}
	raw, err := a.complete(ctx, cfg, "structure", model.StructureSystemPrompt, model.StructureUserPrompt(text))
	if err != nil {
		return nil, err
	}
	return model.ParseStructure(raw)
}

func (a *Agent) complete(ctx context.Context, cfg types.ModelConfig, task, system, user string) (string, error) {
	start := time.Now()
	a.logger.Debug("prompt prepared",
		"task", task,
		"model", cfg.Model,
		"tokens", a.countTokens(system+user),
		"symbols", len(system)+len(user),
	)

	c := a.factory(cfg)
	reply, err := c.Chat(ctx, system, user)
	if err != nil {
		return "", err
	}

	for attempt := 1; attempt <= a.repairAttempts && !model.HasJSONObject(reply); attempt++ {
		a.logger.Warn("model reply is not JSON, asking for a repair", "task", task, "attempt", attempt)
		fixed, err := c.Chat(ctx, system, model.RepairPrompt(reply))
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return "", err
			}
			break
		}
		reply = fixed
	}

	a.logger.Debug("model answered", "task", task, "took", time.Since(start))
	return reply, nil
}

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

// CountTokens counts tokens with the cl100k encoding, or estimates len/4
// when the encoding cannot be loaded.
func CountTokens(text string) int {
	encOnce.Do(func() {
		enc, encErr = tiktoken.EncodingForModel("gpt-3.5-turbo")
	})
	if encErr != nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}
