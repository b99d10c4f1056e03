package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booq/app/agent"
	"booq/app/analyzer"
	"booq/loader"
	"booq/model"
	"booq/store"
	"booq/types"
)

type cannedModel struct{}

func (cannedModel) Chat(ctx context.Context, system, user string) (string, error) {
	switch system {
	case model.ExamplesSystemPrompt:
		return `{"examples":[{"question":"What is the derivative of x^2?","answer":"2x","chapter":"Derivatives"}]}`, nil
	case model.ExercisesSystemPrompt:
		return `{"exercises":[{"question":"What is the derivative of x^3?","answer":"3x^2","chapter":"Derivatives"}]}`, nil
	case model.AnswerSystemPrompt:
		return `{"answer":"2x","analysis":"power rule","knowledge_points":["power rule"]}`, nil
	case model.StructureSystemPrompt:
		return `{"chapters":[{"name":"Derivatives","sections":[{"name":"Power rule","knowledge_points":["power rule"]}]}]}`, nil
	}
	return "", types.ErrExternal
}

type testEnv struct {
	app      *fiber.App
	analyzer *analyzer.Analyzer
	settings *agent.Settings
}

func newTestEnv(t *testing.T, configured bool) *testEnv {
	t.Helper()
	root := t.TempDir()
	files, err := store.NewFileStore(root)
	require.NoError(t, err)

	analysis := types.ModelConfig{}
	if configured {
		analysis = types.ModelConfig{URL: "http://llm.local/v1/chat/completions", Model: "qwen", APIKey: "sk-1234567890abcd"}
	}
	settings := agent.NewSettings(analysis, types.ModelConfig{})
	ag := agent.New(settings, func(types.ModelConfig) model.Completer { return cannedModel{} }, 0)
	pages := loader.NewPageLoader(root)

	a := analyzer.New(analyzer.Options{
		Files:     files,
		Questions: files,
		Pages:     pages,
		Agent:     ag,
		IndexRoot: root,
	})
	t.Cleanup(a.Wait)

	return &testEnv{
		app:      NewApp(nil, files, pages, a, ag, root),
		analyzer: a,
		settings: settings,
	}
}

func (e *testEnv) do(t *testing.T, req *http.Request, out any) int {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	if out != nil {
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, out), string(body))
	}
	return resp.StatusCode
}

func (e *testEnv) upload(t *testing.T, name, content string) (int, types.FileInfo) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/files", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())

	var info types.FileInfo
	code := e.do(t, req, &info)
	return code, info
}

func TestHealthy(t *testing.T) {
	e := newTestEnv(t, false)
	var body map[string]any
	code := e.do(t, httptest.NewRequest(http.MethodGet, "/check/healthy", nil), &body)
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "ok", body["result"])
	assert.Equal(t, false, body["model_configured"])
}

func TestFileRoutes(t *testing.T) {
	e := newTestEnv(t, true)

	code, info := e.upload(t, "notes.txt", "Derivatives\n\nThe derivative of x^2 is 2x.")
	require.Equal(t, fiber.StatusCreated, code)
	assert.Equal(t, types.FileText, info.FileType)
	assert.Equal(t, 1, info.TotalPages)

	var list []types.FileInfo
	assert.Equal(t, fiber.StatusOK, e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/files", nil), &list))
	require.Len(t, list, 1)
	assert.Equal(t, info.ID, list[0].ID)

	var got types.FileInfo
	assert.Equal(t, fiber.StatusOK, e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/files/"+info.ID, nil), &got))
	assert.Equal(t, "notes.txt", got.Name)

	var page struct {
		Page    int    `json:"page"`
		Content string `json:"content"`
	}
	assert.Equal(t, fiber.StatusOK, e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/files/"+info.ID+"/pages/1", nil), &page))
	assert.Contains(t, page.Content, "derivative of x^2")

	var apiErr map[string]any
	assert.Equal(t, fiber.StatusNotFound, e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/files/"+info.ID+"/pages/2", nil), &apiErr))
	assert.Equal(t, fiber.StatusBadRequest, e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/files/"+info.ID+"/pages/one", nil), nil))

	var structure struct {
		Chapters []types.Chapter `json:"chapters"`
	}
	assert.Equal(t, fiber.StatusOK, e.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/files/"+info.ID+"/pages/1/structure", nil), &structure))
	require.Len(t, structure.Chapters, 1)
	assert.Equal(t, "Derivatives", structure.Chapters[0].Name)
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	e := newTestEnv(t, true)
	code, _ := e.upload(t, "virus.exe", "MZ")
	assert.Equal(t, fiber.StatusUnprocessableEntity, code)
}

func TestUnknownFile(t *testing.T) {
	e := newTestEnv(t, true)

	var apiErr struct {
		Code    int    `json:"code"`
		Message string `json:"error"`
	}
	code := e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/files/nope", nil), &apiErr)
	assert.Equal(t, fiber.StatusNotFound, code)
	assert.Equal(t, fiber.StatusNotFound, apiErr.Code)

	assert.Equal(t, fiber.StatusNotFound, e.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/files/nope/analysis", nil), nil))
	assert.Equal(t, fiber.StatusNotFound, e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/files/nope/questions", nil), nil))

	var progress types.AnalysisProgress
	assert.Equal(t, fiber.StatusOK, e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/files/nope/analysis", nil), &progress))
	assert.Equal(t, types.StatusIdle, progress.Status)
}

func TestAnalysisRoutes(t *testing.T) {
	e := newTestEnv(t, true)
	_, info := e.upload(t, "notes.txt", "Derivatives\n\nThe derivative of x^2 is 2x.\n\nExercise: derivative of x^3.")
	base := "/api/v1/files/" + info.ID

	var progress types.AnalysisProgress
	require.Equal(t, fiber.StatusAccepted, e.do(t, httptest.NewRequest(http.MethodPost, base+"/analysis", nil), &progress))
	e.analyzer.Wait()

	require.Equal(t, fiber.StatusOK, e.do(t, httptest.NewRequest(http.MethodGet, base+"/analysis", nil), &progress))
	assert.Equal(t, types.StatusCompleted, progress.Status)
	assert.Equal(t, 2, progress.QuestionsFound)

	var questions []types.Question
	require.Equal(t, fiber.StatusOK, e.do(t, httptest.NewRequest(http.MethodGet, base+"/questions?type=exercise", nil), &questions))
	require.Len(t, questions, 1)
	assert.Equal(t, info.ID+"_1_exercise_0", questions[0].ID)

	require.Equal(t, fiber.StatusOK, e.do(t, httptest.NewRequest(http.MethodGet, base+"/questions?chapter=Derivatives", nil), &questions))
	assert.Len(t, questions, 2)

	assert.Equal(t, fiber.StatusUnprocessableEntity, e.do(t, httptest.NewRequest(http.MethodGet, base+"/questions?type=quiz", nil), nil))

	var q types.Question
	require.Equal(t, fiber.StatusOK, e.do(t, httptest.NewRequest(http.MethodGet, base+"/questions/"+info.ID+"_1_example_0", nil), &q))
	assert.True(t, q.HasOriginalAnswer)
	assert.Equal(t, fiber.StatusNotFound, e.do(t, httptest.NewRequest(http.MethodGet, base+"/questions/missing", nil), nil))

	var ans types.Answer
	require.Equal(t, fiber.StatusOK, e.do(t, httptest.NewRequest(http.MethodPost, base+"/questions/"+q.ID+"/answer", nil), &ans))
	assert.Equal(t, "2x", ans.Answer)

	var fragments []types.Fragment
	require.Equal(t, fiber.StatusOK, e.do(t, httptest.NewRequest(http.MethodGet, base+"/fragments?type=example", nil), &fragments))
	require.Len(t, fragments, 1)
	assert.Equal(t, q.ID, fragments[0].ID)

	assert.Equal(t, fiber.StatusNoContent, e.do(t, httptest.NewRequest(http.MethodDelete, base+"/fragments", nil), nil))
	require.Equal(t, fiber.StatusOK, e.do(t, httptest.NewRequest(http.MethodGet, base+"/fragments", nil), &fragments))
	assert.Empty(t, fragments)

	require.Equal(t, fiber.StatusOK, e.do(t, httptest.NewRequest(http.MethodDelete, base+"/analysis", nil), &progress))
	assert.Equal(t, types.StatusCompleted, progress.Status)
}

func TestConfigRoutes(t *testing.T) {
	e := newTestEnv(t, true)

	var cfg struct {
		Analysis types.ModelConfig `json:"analysis_model"`
		Solving  types.ModelConfig `json:"solving_model"`
	}
	require.Equal(t, fiber.StatusOK, e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/config", nil), &cfg))
	assert.Equal(t, "qwen", cfg.Analysis.Model)
	assert.Equal(t, "****abcd", cfg.Analysis.APIKey)
	assert.Empty(t, cfg.Solving.Model)

	put := func(body string) *http.Request {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/config", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		return req
	}

	var valErr struct {
		Errors map[string]string `json:"errors"`
	}
	assert.Equal(t, fiber.StatusUnprocessableEntity, e.do(t, put(`{"solving_model":{"url":"not a url","model":"m"}}`), &valErr))
	assert.Contains(t, valErr.Errors, "URL")
	assert.Equal(t, fiber.StatusUnprocessableEntity, e.do(t, put(`{}`), nil))
	assert.Equal(t, fiber.StatusBadRequest, e.do(t, put(`{`), nil))

	require.Equal(t, fiber.StatusOK, e.do(t, put(`{"solving_model":{"url":"http://solver.local/v1","model":"deepseek","api_key":"short"}}`), &cfg))
	assert.Equal(t, "deepseek", cfg.Solving.Model)
	assert.Equal(t, "****", cfg.Solving.APIKey)

	solving, ok := e.settings.Solving()
	require.True(t, ok)
	assert.Equal(t, "short", solving.APIKey)
}
