package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/diysmart/productinfo/internal/domain"
)

// Agent names
const (
	ProductInfoAgentName = "product_info"
	ProductSaveAgentName = "product_save"
)

// ProductInfoAgent runs the extraction coordinator as an agent task
type ProductInfoAgent struct {
	coordinator *Coordinator
}

// NewProductInfoAgent wraps coordinator
func NewProductInfoAgent(coordinator *Coordinator) *ProductInfoAgent {
	return &ProductInfoAgent{coordinator: coordinator}
}

func (a *ProductInfoAgent) Name() string { return ProductInfoAgentName }

// Validate requires a product URL and, when given, the product_analysis task type
func (a *ProductInfoAgent) Validate(input *domain.AgentInput) bool {
	if input == nil || strings.TrimSpace(input.ProductURL) == "" {
		return false
	}
	return input.TaskType == "" || input.TaskType == domain.TaskTypeProductAnalysis
}

// Execute extracts the product. The returned output carries the failure kinds
// of the attempted strategies, and the per-strategy detail under "attempts",
// even when extraction fails.
func (a *ProductInfoAgent) Execute(ctx context.Context, input *domain.AgentInput) (*domain.AgentOutput, error) {
	ext, err := a.coordinator.Extract(ctx, input.ProductURL, input.Image)
	if err != nil {
		out := &domain.AgentOutput{Kind: domain.OutputNone}
		var exhausted *domain.ExhaustedError
		if errors.As(err, &exhausted) {
			out.Metadata = map[string]any{
				"attempted_strategies": exhausted.Kinds(),
				"attempts":             exhausted.Attempts,
			}
		}
		return out, err
	}

	return &domain.AgentOutput{
		Kind:    domain.OutputProduct,
		Product: ext.Record,
		Metadata: map[string]any{
			"extraction_method":    ext.Record.ExtractionMethod,
			"attempted_strategies": domain.FailureKinds(ext.Attempts),
			"attempts":             ext.Attempts,
		},
	}, nil
}

// ProductSaveAgent persists the product produced by the previous workflow step
type ProductSaveAgent struct {
	repo domain.ProductRepository
}

// NewProductSaveAgent creates the catalog save agent
func NewProductSaveAgent(repo domain.ProductRepository) *ProductSaveAgent {
	return &ProductSaveAgent{repo: repo}
}

func (a *ProductSaveAgent) Name() string { return ProductSaveAgentName }

// Validate requires a product from the previous step
func (a *ProductSaveAgent) Validate(input *domain.AgentInput) bool {
	return input != nil && input.Prior != nil &&
		input.Prior.Kind == domain.OutputProduct && input.Prior.Product != nil
}

func (a *ProductSaveAgent) Execute(ctx context.Context, input *domain.AgentInput) (*domain.AgentOutput, error) {
	rec := input.Prior.Product
	id, err := a.repo.Upsert(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("save product: %w", err)
	}
	return &domain.AgentOutput{
		Kind:  domain.OutputSaved,
		Saved: &domain.SavedProduct{ID: id, ProductURL: rec.ProductURL},
		Metadata: map[string]any{
			"extraction_method": rec.ExtractionMethod,
		},
	}, nil
}
