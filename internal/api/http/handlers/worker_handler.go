package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/autonoc/internal/api/dto"
	"github.com/spec-kit/autonoc/internal/worker"
)

// PipelineRunner is the slice of the batch pipeline the HTTP surface needs.
type PipelineRunner interface {
	Run(ctx context.Context, action string) (*worker.Summary, error)
}

// WorkerHandler triggers pipeline runs on demand.
type WorkerHandler struct {
	pipeline PipelineRunner
}

// NewWorkerHandler constructs handler.
func NewWorkerHandler(pipeline PipelineRunner) *WorkerHandler {
	return &WorkerHandler{pipeline: pipeline}
}

// Run POST /worker?action=sync|diagnostico|validacao|despacho|sla|all.
func (h *WorkerHandler) Run(c *fiber.Ctx) error {
	action := c.Query("action", worker.ActionAll)
	summary, err := h.pipeline.Run(c.UserContext(), action)
	if err != nil {
		return err
	}
	return c.JSON(dto.OK(summary))
}

// RunOrList GET /worker. Cron schedulers often can only issue GETs, so
// a request naming an action runs the pipeline just like POST; without
// one it lists the supported actions.
func (h *WorkerHandler) RunOrList(c *fiber.Ctx) error {
	if c.Query("action") != "" {
		return h.Run(c)
	}
	return c.JSON(dto.OK([]string{
		worker.ActionSync,
		worker.ActionDiagnose,
		worker.ActionValidate,
		worker.ActionDispatch,
		worker.ActionSLA,
		worker.ActionAll,
	}))
}
