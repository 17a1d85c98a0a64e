package agent

import (
	"context"

	"github.com/diysmart/productinfo/internal/domain"
	"github.com/diysmart/productinfo/internal/infrastructure/logger"
)

// WorkflowStep names an agent and its own input
type WorkflowStep struct {
	AgentName string            `json:"agent"`
	Input     domain.AgentInput `json:"input"`
}

// StepOutcome is one executed step. Output is nil when the step failed.
type StepOutcome struct {
	Task   domain.AgentTask    `json:"task"`
	Output *domain.AgentOutput `json:"-"`
}

// WorkflowResult is everything a workflow produced, in step order
type WorkflowResult struct {
	Steps     []StepOutcome `json:"steps"`
	Completed bool          `json:"completed"`
}

// Last returns the output of the final successful step, or nil
func (r *WorkflowResult) Last() *domain.AgentOutput {
	for i := len(r.Steps) - 1; i >= 0; i-- {
		if r.Steps[i].Output != nil {
			return r.Steps[i].Output
		}
	}
	return nil
}

// Results returns each step's envelope in order
func (r *WorkflowResult) Results() []*domain.AgentResult {
	out := make([]*domain.AgentResult, 0, len(r.Steps))
	for _, s := range r.Steps {
		out = append(out, s.Task.Result)
	}
	return out
}

// RunWorkflow executes steps strictly in order. Each step receives the
// previous step's output as input.Prior. The first failing step halts the
// workflow; outcomes gathered so far are returned.
func (m *Manager) RunWorkflow(ctx context.Context, steps []WorkflowStep) *WorkflowResult {
	result := &WorkflowResult{Steps: make([]StepOutcome, 0, len(steps))}

	var prior *domain.AgentOutput
	for i, step := range steps {
		input := step.Input
		input.Prior = prior

		task, out := m.execute(ctx, step.AgentName, &input)
		result.Steps = append(result.Steps, StepOutcome{Task: task, Output: out})
		if task.Status != domain.TaskCompleted {
			m.logger.Info("workflow halted",
				logger.Int("step", i),
				logger.String("agent", step.AgentName))
			return result
		}
		prior = out
	}

	result.Completed = true
	return result
}
