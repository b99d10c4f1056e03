package api

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"booq/types"
)

type Analyzer interface {
	Start(ctx context.Context, fileID string) error
	Stop(fileID string)
	Progress(fileID string) types.AnalysisProgress
	Questions(ctx context.Context, fileID string) ([]types.Question, error)
	Question(ctx context.Context, fileID, questionID string) (*types.Question, error)
	Answer(ctx context.Context, fileID, questionID string) (*types.Answer, error)
	Fragments(ctx context.Context, fileID string, filter types.FragmentFilter) ([]*types.Fragment, error)
	ClearFragments(ctx context.Context, fileID string) error
}

type AnalysisHandler struct {
	analyzer Analyzer
}

func NewAnalysisHandler(a Analyzer) *AnalysisHandler {
	return &AnalysisHandler{analyzer: a}
}

func (h *AnalysisHandler) HandleStart(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.analyzer.Start(c.UserContext(), id); err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(h.analyzer.Progress(id))
}

func (h *AnalysisHandler) HandleStop(c *fiber.Ctx) error {
	id := c.Params("id")
	h.analyzer.Stop(id)
	return c.JSON(h.analyzer.Progress(id))
}

func (h *AnalysisHandler) HandleProgress(c *fiber.Ctx) error {
	return c.JSON(h.analyzer.Progress(c.Params("id")))
}

func (h *AnalysisHandler) HandleFragments(c *fiber.Ctx) error {
	var filter types.FragmentFilter
	if c.QueryParser(&filter) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&filter); len(errors) > 0 {
		return NewValidationError(errors)
	}

	fragments, err := h.analyzer.Fragments(c.UserContext(), c.Params("id"), filter)
	if err != nil {
		return err
	}
	return c.JSON(fragments)
}

func (h *AnalysisHandler) HandleClearFragments(c *fiber.Ctx) error {
	if err := h.analyzer.ClearFragments(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
