package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/autonoc/internal/config"
	"github.com/spec-kit/autonoc/internal/observability"
	"github.com/spec-kit/autonoc/internal/service"
	apperrors "github.com/spec-kit/autonoc/pkg/util"
)

// Worker actions. "all" runs the full cycle in order.
const (
	ActionSync     = "sync"
	ActionDiagnose = "diagnostico"
	ActionValidate = "validacao"
	ActionDispatch = "despacho"
	ActionSLA      = "sla"
	ActionAll      = "all"
)

// StepResult reports one pipeline step of a worker run.
type StepResult struct {
	Success   bool   `json:"success"`
	Processed int    `json:"processed,omitempty"`
	Resolved  int    `json:"resolved,omitempty"`
	Escalated int    `json:"escalated,omitempty"`
	AtRisk    int    `json:"at_risk,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Summary aggregates the steps executed in one run, keyed by action.
type Summary struct {
	Action    string                `json:"action"`
	StartedAt time.Time             `json:"started_at"`
	Duration  string                `json:"duration"`
	Steps     map[string]StepResult `json:"steps"`
}

// Pipeline drives the recurring decision cycle: sync new tickets,
// diagnose, validate remote fixes, dispatch technicians, flag SLA risk.
type Pipeline struct {
	sync       *service.SyncService
	diagnostic *service.DiagnosticService
	dispatch   *service.DispatchService
	cfg        config.WorkerConfig
	logger     *zap.Logger
	now        func() time.Time
}

// PipelineDependencies bundles collaborators.
type PipelineDependencies struct {
	Sync       *service.SyncService
	Diagnostic *service.DiagnosticService
	Dispatch   *service.DispatchService
	Config     config.WorkerConfig
	Logger     *zap.Logger
	Now        func() time.Time
}

// NewPipeline creates the worker.
func NewPipeline(deps PipelineDependencies) *Pipeline {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		sync:       deps.Sync,
		diagnostic: deps.Diagnostic,
		dispatch:   deps.Dispatch,
		cfg:        deps.Config,
		logger:     logger,
		now:        now,
	}
}

// ValidAction reports whether the action name is recognized.
func ValidAction(action string) bool {
	switch action {
	case ActionSync, ActionDiagnose, ActionValidate, ActionDispatch, ActionSLA, ActionAll:
		return true
	}
	return false
}

// Run executes the requested action. For "all" every step runs even
// when an earlier one fails; each step's outcome is isolated in the
// summary.
func (p *Pipeline) Run(ctx context.Context, action string) (*Summary, error) {
	if !ValidAction(action) {
		return nil, apperrors.NewValidationError("unknown worker action", map[string]any{"action": action})
	}

	started := p.now()
	summary := &Summary{
		Action:    action,
		StartedAt: started,
		Steps:     make(map[string]StepResult),
	}

	runStep := func(name string, fn func(context.Context) StepResult) {
		stepStart := time.Now()
		result := fn(ctx)
		observability.WorkerStepDuration.WithLabelValues(name).Observe(time.Since(stepStart).Seconds())
		outcome := "success"
		if !result.Success {
			outcome = "error"
			p.logger.Warn("worker step failed", zap.String("step", name), zap.String("error", result.Error))
		}
		observability.WorkerSteps.WithLabelValues(name, outcome).Inc()
		summary.Steps[name] = result
	}

	if action == ActionSync || action == ActionAll {
		runStep(ActionSync, p.stepSync)
	}
	if action == ActionDiagnose || action == ActionAll {
		runStep(ActionDiagnose, p.stepDiagnose)
	}
	if action == ActionValidate || action == ActionAll {
		runStep(ActionValidate, p.stepValidate)
	}
	if action == ActionDispatch || action == ActionAll {
		runStep(ActionDispatch, p.stepDispatch)
	}
	if action == ActionSLA || action == ActionAll {
		runStep(ActionSLA, p.stepSLA)
	}

	summary.Duration = time.Since(started).String()
	return summary, nil
}

func (p *Pipeline) stepSync(ctx context.Context) StepResult {
	created, err := p.sync.SyncOpenTickets(ctx)
	if err != nil {
		return StepResult{Error: err.Error()}
	}
	return StepResult{Success: true, Processed: created}
}

func (p *Pipeline) stepDiagnose(ctx context.Context) StepResult {
	diagnosed, err := p.diagnostic.ProcessPendingDiagnoses(ctx, p.cfg.DiagnosisBatch)
	if err != nil {
		return StepResult{Error: err.Error()}
	}
	return StepResult{Success: true, Processed: diagnosed}
}

func (p *Pipeline) stepValidate(ctx context.Context) StepResult {
	resolved, escalated, err := p.diagnostic.ProcessValidations(ctx, p.cfg.ValidationBatch)
	if err != nil {
		return StepResult{Error: err.Error()}
	}
	return StepResult{Success: true, Resolved: resolved, Escalated: escalated}
}

func (p *Pipeline) stepDispatch(ctx context.Context) StepResult {
	assigned, err := p.dispatch.ProcessPending(ctx, p.cfg.DispatchBatch)
	if err != nil {
		return StepResult{Error: err.Error()}
	}
	return StepResult{Success: true, Processed: assigned}
}

func (p *Pipeline) stepSLA(ctx context.Context) StepResult {
	atRisk, err := p.sync.SLAAtRisk(ctx, p.cfg.SLAWindow())
	if err != nil {
		return StepResult{Error: err.Error()}
	}
	return StepResult{Success: true, AtRisk: len(atRisk)}
}

// Start runs the full cycle on a fixed interval until the context is
// cancelled. Intended to run in its own goroutine.
func (p *Pipeline) Start(ctx context.Context) {
	interval := p.cfg.Interval()
	if interval <= 0 {
		p.logger.Info("periodic worker disabled")
		return
	}
	p.logger.Info("periodic worker started", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("periodic worker stopped")
			return
		case <-ticker.C:
			if _, err := p.Run(ctx, ActionAll); err != nil {
				p.logger.Error("worker cycle failed", zap.Error(err))
			}
		}
	}
}
