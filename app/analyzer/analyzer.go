package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"booq/loader"
	"booq/model"
	"booq/store"
	"booq/types"
)

const (
	// Documents above this many pages are processed in fixed-size batches.
	batchThreshold = 400
	batchSize      = 20

	contextTokens = 4000
)

// PageSource yields the text of a single page, "" when there is none.
type PageSource interface {
	PageText(ctx context.Context, info types.FileInfo, page int) (string, error)
}

// Solver is the model side of the analysis.
type Solver interface {
	Configured() bool
	AnalyzeExamples(ctx context.Context, text string) (string, error)
	AnalyzeExercises(ctx context.Context, text, context string) (string, error)
	GenerateAnswer(ctx context.Context, question, context string) (*types.Answer, error)
}

type Options struct {
	Files     store.FileRegistry
	Questions store.QuestionStore
	Pages     PageSource
	Agent     Solver
	Registry  *Registry
	IndexRoot string
	Logger    *slog.Logger
}

// Analyzer runs the page-by-page question extraction of a document and
// serves its results.
type Analyzer struct {
	files     store.FileRegistry
	questions store.QuestionStore
	pages     PageSource
	agent     Solver
	registry  *Registry
	indexRoot string
	logger    *slog.Logger

	openIndex func(path string) (*store.Index, error)
	wg        sync.WaitGroup
}

func New(opts Options) *Analyzer {
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Analyzer{
		files:     opts.Files,
		questions: opts.Questions,
		pages:     opts.Pages,
		agent:     opts.Agent,
		registry:  opts.Registry,
		indexRoot: opts.IndexRoot,
		logger:    opts.Logger,
		openIndex: store.OpenIndex,
	}
}

type Batch struct {
	Start int
	End   int
}

// Batches partitions pages 1..total into the ranges processed in order.
func Batches(total int) []Batch {
	if total <= 0 {
		return nil
	}
	if total <= batchThreshold {
		return []Batch{{Start: 1, End: total}}
	}
	batches := make([]Batch, 0, (total+batchSize-1)/batchSize)
	for start := 1; start <= total; start += batchSize {
		batches = append(batches, Batch{Start: start, End: min(start+batchSize-1, total)})
	}
	return batches
}

// Start launches the analysis of fileID in the background. Errors resolving
// the file or registering the session are returned directly.
func (a *Analyzer) Start(ctx context.Context, fileID string) error {
	info, s, err := a.begin(ctx, fileID)
	if err != nil {
		return err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.run(context.WithoutCancel(ctx), info, s); err != nil && !errors.Is(err, types.ErrCancelled) {
			a.logger.Error("analysis failed", "file_id", fileID, "error", err)
		}
	}()
	return nil
}

// Run analyses fileID and returns once the run has finished. A stopped run
// returns ErrCancelled.
func (a *Analyzer) Run(ctx context.Context, fileID string) error {
	info, s, err := a.begin(ctx, fileID)
	if err != nil {
		return err
	}
	return a.run(ctx, info, s)
}

func (a *Analyzer) Stop(fileID string) {
	a.registry.RequestStop(fileID)
}

func (a *Analyzer) Progress(fileID string) types.AnalysisProgress {
	return a.registry.Progress(fileID)
}

// Wait blocks until every background run has returned.
func (a *Analyzer) Wait() {
	a.wg.Wait()
}

// Shutdown asks every active run to stop and waits for the background ones.
func (a *Analyzer) Shutdown() {
	a.registry.StopAll()
	a.wg.Wait()
}

func (a *Analyzer) Questions(ctx context.Context, fileID string) ([]types.Question, error) {
	if _, err := a.files.GetFile(ctx, fileID); err != nil {
		return nil, err
	}
	return a.questions.GetQuestions(ctx, fileID)
}

func (a *Analyzer) Question(ctx context.Context, fileID, questionID string) (*types.Question, error) {
	questions, err := a.Questions(ctx, fileID)
	if err != nil {
		return nil, err
	}
	for i := range questions {
		if questions[i].ID == questionID {
			return &questions[i], nil
		}
	}
	return nil, fmt.Errorf("question %s: %w", questionID, types.ErrNotFound)
}

// Answer generates a fresh answer for a stored question using the file's
// index as context. The result is not persisted.
func (a *Analyzer) Answer(ctx context.Context, fileID, questionID string) (*types.Answer, error) {
	q, err := a.Question(ctx, fileID, questionID)
	if err != nil {
		return nil, err
	}
	idx, err := a.openIndex(store.IndexPath(a.indexRoot, fileID))
	if err != nil {
		return nil, err
	}
	return a.agent.GenerateAnswer(ctx, q.QuestionText, idx.BuildContext(q.QuestionText, contextTokens))
}

func (a *Analyzer) Fragments(ctx context.Context, fileID string, filter types.FragmentFilter) ([]*types.Fragment, error) {
	if _, err := a.files.GetFile(ctx, fileID); err != nil {
		return nil, err
	}
	idx, err := a.openIndex(store.IndexPath(a.indexRoot, fileID))
	if err != nil {
		return nil, err
	}

	var fragments []*types.Fragment
	switch {
	case filter.Type != "":
		fragments = idx.ByType(types.DocType(filter.Type))
	case filter.Chapter != "":
		fragments = idx.ByChapter(filter.Chapter)
	default:
		fragments = idx.Filter(filter.Match)
	}
	if filter.Type != "" && filter.Chapter != "" {
		kept := fragments[:0]
		for _, f := range fragments {
			if filter.Match(f) {
				kept = append(kept, f)
			}
		}
		fragments = kept
	}
	if fragments == nil {
		fragments = []*types.Fragment{}
	}
	return fragments, nil
}

// ClearFragments empties the index of fileID. It refuses while a run owns
// the index.
func (a *Analyzer) ClearFragments(ctx context.Context, fileID string) error {
	if _, err := a.files.GetFile(ctx, fileID); err != nil {
		return err
	}
	if a.registry.Running(fileID) {
		return fmt.Errorf("file %s: %w", fileID, types.ErrAlreadyRunning)
	}
	idx, err := a.openIndex(store.IndexPath(a.indexRoot, fileID))
	if err != nil {
		return err
	}
	return idx.Clear()
}

func (a *Analyzer) begin(ctx context.Context, fileID string) (types.FileInfo, *Session, error) {
	info, err := a.files.GetFile(ctx, fileID)
	if err != nil {
		return types.FileInfo{}, nil, err
	}
	s, err := a.registry.Begin(fileID, info.TotalPages)
	if err != nil {
		return types.FileInfo{}, nil, err
	}
	return *info, s, nil
}

func (a *Analyzer) run(ctx context.Context, info types.FileInfo, s *Session) error {
	defer a.registry.End(s)

	log := a.logger.With("file_id", info.ID)
	log.Info("analysis started", "pages", info.TotalPages)

	idx, err := a.openIndex(store.IndexPath(a.indexRoot, info.ID))
	if err != nil {
		a.registry.Finish(s, types.StatusError, fmt.Sprintf("cannot open index: %v", err), 0)
		return err
	}

	if !a.agent.Configured() {
		log.Warn("no analysis model configured, only indexing page text")
	}

	var questions []types.Question
	batches := Batches(info.TotalPages)
	for n, batch := range batches {
		if a.stopped(ctx, s) {
			log.Info("analysis stopped", "batch", n+1)
			return types.ErrCancelled
		}
		a.registry.Update(s, func(p *types.AnalysisProgress) {
			p.CurrentPage = batch.Start
			p.CurrentStep = fmt.Sprintf("pages %d-%d", batch.Start, batch.End)
			p.Message = fmt.Sprintf("batch %d/%d: pages %d-%d", n+1, len(batches), batch.Start, batch.End)
		})

		for page := batch.Start; page <= batch.End; page++ {
			if a.stopped(ctx, s) {
				log.Info("analysis stopped", "page", page)
				return types.ErrCancelled
			}

			questions = append(questions, a.analyzePage(ctx, log, idx, s, info, page)...)

			found := len(questions)
			a.registry.Update(s, func(p *types.AnalysisProgress) {
				p.CurrentPage = page
				p.CurrentStep = "page done"
				p.QuestionsFound = found
				p.Message = fmt.Sprintf("page %d/%d done, %d questions so far", page, info.TotalPages, found)
			})
		}
	}

	if a.stopped(ctx, s) {
		return types.ErrCancelled
	}

	if err := a.questions.SaveQuestions(ctx, info.ID, questions); err != nil {
		a.registry.Finish(s, types.StatusError, fmt.Sprintf("cannot save questions: %v", err), len(questions))
		return err
	}

	a.registry.Finish(s, types.StatusCompleted,
		fmt.Sprintf("analysis completed, %d questions found", len(questions)), len(questions))
	log.Info("analysis completed", "questions", len(questions), "fragments", idx.Len())
	return nil
}

// stopped reports whether the run must end at this checkpoint. A cancelled
// context counts as a stop request.
func (a *Analyzer) stopped(ctx context.Context, s *Session) bool {
	if ctx.Err() != nil {
		a.registry.Stop(s)
		return true
	}
	return s.StopRequested()
}

func (a *Analyzer) analyzePage(ctx context.Context, log *slog.Logger, idx *store.Index, s *Session, info types.FileInfo, page int) []types.Question {
	log = log.With("page", page)

	text, err := a.pages.PageText(ctx, info, page)
	if err != nil {
		log.Warn("page text unavailable", "error", err)
		return nil
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	chunks := loader.ChunkByParagraph(text, loader.ParagraphChunkSize)
	knowledge := make([]types.Fragment, 0, len(chunks))
	for i, chunk := range chunks {
		knowledge = append(knowledge, types.Fragment{
			ID:      fmt.Sprintf("%s_%d_%d", info.ID, page, i),
			Content: chunk,
			Metadata: types.FragmentMetadata{
				FileID:     info.ID,
				PageNumber: page,
				ChunkIndex: i,
				DocType:    types.DocKnowledge,
			},
		})
	}
	a.index(log, idx, knowledge)

	if !a.agent.Configured() {
		return nil
	}

	a.setStep(s, "extracting questions")
	examples := a.examples(ctx, log, info.ID, page, text)
	fragments := make([]types.Fragment, 0, len(examples))
	for i, q := range examples {
		fragments = append(fragments, types.Fragment{
			ID:      q.ID,
			Content: fmt.Sprintf("Question: %s\nAnswer: %s", q.QuestionText, q.Answer),
			Metadata: types.FragmentMetadata{
				FileID:     info.ID,
				PageNumber: page,
				ChunkIndex: i,
				DocType:    types.DocExample,
				Chapter:    q.Chapter,
				Section:    q.Section,
			},
		})
	}
	a.index(log, idx, fragments)

	a.setStep(s, "solving exercises")
	exercises := a.exercises(ctx, log, info.ID, page, text, idx.BuildContext(text, contextTokens))

	log.Debug("page analysed", "examples", len(examples), "exercises", len(exercises))
	return append(examples, exercises...)
}

func (a *Analyzer) examples(ctx context.Context, log *slog.Logger, fileID string, page int, text string) []types.Question {
	reply, err := a.agent.AnalyzeExamples(ctx, text)
	if err != nil {
		log.Warn("example extraction failed", "error", err)
		return nil
	}
	questions, err := model.ParseExamples(reply, fileID, page)
	if err != nil {
		log.Warn("example reply unusable", "error", err)
		return nil
	}
	return questions
}

func (a *Analyzer) exercises(ctx context.Context, log *slog.Logger, fileID string, page int, text, context string) []types.Question {
	reply, err := a.agent.AnalyzeExercises(ctx, text, context)
	if err != nil {
		log.Warn("exercise extraction failed", "error", err)
		return nil
	}
	questions, err := model.ParseExercises(reply, fileID, page)
	if err != nil {
		log.Warn("exercise reply unusable", "error", err)
		return nil
	}
	return questions
}

func (a *Analyzer) index(log *slog.Logger, idx *store.Index, fragments []types.Fragment) {
	if err := idx.AddAll(fragments); err != nil {
		log.Error("fragments not indexed", "error", err)
	}
}

func (a *Analyzer) setStep(s *Session, step string) {
	a.registry.Update(s, func(p *types.AnalysisProgress) {
		p.CurrentStep = step
	})
}
