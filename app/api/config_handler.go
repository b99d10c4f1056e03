package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"booq/app/agent"
	"booq/types"
)

type ConfigHandler struct {
	settings *agent.Settings
}

func NewConfigHandler(settings *agent.Settings) *ConfigHandler {
	return &ConfigHandler{
		settings: settings,
	}
}

type configResponse struct {
	Analysis types.ModelConfig `json:"analysis_model"`
	Solving  types.ModelConfig `json:"solving_model"`
}

func (h *ConfigHandler) HandleGetConfig(c *fiber.Ctx) error {
	return c.JSON(h.view())
}

func (h *ConfigHandler) HandleSetConfig(c *fiber.Ctx) error {
	var params types.ConfigParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	if params.Analysis != nil {
		h.settings.SetAnalysis(toModelConfig(params.Analysis))
	}
	if params.Solving != nil {
		h.settings.SetSolving(toModelConfig(params.Solving))
	}

	return c.JSON(h.view())
}

func (h *ConfigHandler) view() configResponse {
	analysis, solving := h.settings.Snapshot()
	analysis.APIKey = maskKey(analysis.APIKey)
	solving.APIKey = maskKey(solving.APIKey)
	return configResponse{Analysis: analysis, Solving: solving}
}

func toModelConfig(p *types.ModelParams) types.ModelConfig {
	return types.ModelConfig{
		URL:    strings.TrimSpace(p.URL),
		Model:  strings.TrimSpace(p.Model),
		APIKey: p.APIKey,
	}
}

// maskKey keeps the last four characters of long keys.
func maskKey(key string) string {
	switch {
	case key == "":
		return ""
	case len(key) <= 8:
		return "****"
	default:
		return "****" + key[len(key)-4:]
	}
}
