package api

import (
	"github.com/gofiber/fiber/v2"

	"booq/types"
)

type QuestionHandler struct {
	analyzer Analyzer
}

func NewQuestionHandler(a Analyzer) *QuestionHandler {
	return &QuestionHandler{analyzer: a}
}

func (h *QuestionHandler) HandleList(c *fiber.Ctx) error {
	var filter types.QuestionFilter
	if c.QueryParser(&filter) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&filter); len(errors) > 0 {
		return NewValidationError(errors)
	}

	questions, err := h.analyzer.Questions(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}

	result := make([]types.Question, 0, len(questions))
	for _, q := range questions {
		if filter.Match(q) {
			result = append(result, q)
		}
	}
	return c.JSON(result)
}

func (h *QuestionHandler) HandleGet(c *fiber.Ctx) error {
	q, err := h.analyzer.Question(c.UserContext(), c.Params("id"), c.Params("qid"))
	if err != nil {
		return err
	}
	return c.JSON(q)
}

// HandleAnswer regenerates the answer of a question. Nothing is stored.
func (h *QuestionHandler) HandleAnswer(c *fiber.Ctx) error {
	ans, err := h.analyzer.Answer(c.UserContext(), c.Params("id"), c.Params("qid"))
	if err != nil {
		return err
	}
	return c.JSON(ans)
}
