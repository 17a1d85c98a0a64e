package usecase

import (
	"context"
	"fmt"

	"github.com/diysmart/productinfo/internal/agent"
	"github.com/diysmart/productinfo/internal/domain"
)

// ExtractionService admits requests through the quota gate and runs them on
// the agent manager
type ExtractionService struct {
	gate   *QuotaGate
	agents *agent.Manager
}

// NewExtractionService creates the service
func NewExtractionService(gate *QuotaGate, agents *agent.Manager) *ExtractionService {
	return &ExtractionService{gate: gate, agents: agents}
}

// Extract charges one unit to id and runs the product_info agent. Quota
// denial returns a *domain.QuotaExceededError and runs nothing.
func (s *ExtractionService) Extract(
	ctx context.Context,
	id domain.Identity,
	input *domain.AgentInput,
) (domain.AgentTask, domain.QuotaDecision, error) {
	decision, err := s.gate.CheckAndConsume(ctx, id, 1)
	if err != nil {
		return domain.AgentTask{}, decision, err
	}
	return s.agents.Execute(ctx, ProductInfoAgentName, input), decision, nil
}

// RunWorkflow charges one unit per step and runs the workflow
func (s *ExtractionService) RunWorkflow(
	ctx context.Context,
	id domain.Identity,
	steps []agent.WorkflowStep,
) (*agent.WorkflowResult, domain.QuotaDecision, error) {
	if len(steps) == 0 {
		return nil, domain.QuotaDecision{}, fmt.Errorf("%w: workflow has no steps", domain.ErrBadInput)
	}
	for _, step := range steps {
		if _, ok := s.agents.Agent(step.AgentName); !ok {
			return nil, domain.QuotaDecision{}, fmt.Errorf("%w: %s", domain.ErrAgentNotFound, step.AgentName)
		}
	}

	decision, err := s.gate.CheckAndConsume(ctx, id, len(steps))
	if err != nil {
		return nil, decision, err
	}
	return s.agents.RunWorkflow(ctx, steps), decision, nil
}

// Usage reports id's remaining allowance
func (s *ExtractionService) Usage(ctx context.Context, id domain.Identity) (domain.QuotaDecision, error) {
	return s.gate.Usage(ctx, id)
}

// Agents exposes the manager for status and history queries
func (s *ExtractionService) Agents() *agent.Manager {
	return s.agents
}
