package domain

import (
	"fmt"
	"time"
)

// TaskTypeProductAnalysis is the only task type the product agent accepts
const TaskTypeProductAnalysis = "product_analysis"

// TaskStatus is the lifecycle state of an AgentTask
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Terminal reports whether s is absorbing
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// AgentInput is the inbound payload of a task
type AgentInput struct {
	ProductURL string            `json:"product_url"`
	Image      []byte            `json:"image,omitempty"`
	TaskType   string            `json:"task_type,omitempty"`
	Params     map[string]string `json:"params,omitempty"`

	// Prior is the output of the preceding workflow step, nil for the first step
	Prior *AgentOutput `json:"-"`
}

// OutputKind tags which payload an AgentOutput carries
type OutputKind string

const (
	OutputNone    OutputKind = "none"
	OutputProduct OutputKind = "product"
	OutputSaved   OutputKind = "saved"
)

// SavedProduct identifies a record persisted to the catalog
type SavedProduct struct {
	ID         string `json:"id"`
	ProductURL string `json:"product_url"`
}

// AgentOutput is what an executor hands back on success. Exactly one payload
// matching Kind is set.
type AgentOutput struct {
	Kind     OutputKind
	Product  *ProductRecord
	Saved    *SavedProduct
	Metadata map[string]any
}

// Data returns the payload selected by Kind
func (o *AgentOutput) Data() any {
	if o == nil {
		return nil
	}
	switch o.Kind {
	case OutputProduct:
		return o.Product
	case OutputSaved:
		return o.Saved
	}
	return nil
}

// AgentResult is the outbound envelope of a task. Cause keeps the error
// behind a failed result for callers in-process; it is not serialized.
type AgentResult struct {
	Success       bool           `json:"success"`
	Data          any            `json:"data,omitempty"`
	Error         string         `json:"error,omitempty"`
	ExecutionTime float64        `json:"execution_time"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	Cause         error          `json:"-"`
}

// AgentTask tracks one agent invocation
type AgentTask struct {
	ID         string       `json:"task_id"`
	AgentName  string       `json:"agent_name"`
	Input      *AgentInput  `json:"-"`
	CreatedAt  time.Time    `json:"created_at"`
	FinishedAt time.Time    `json:"finished_at,omitempty"`
	Status     TaskStatus   `json:"status"`
	Result     *AgentResult `json:"result,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// NewAgentTask creates a pending task
func NewAgentTask(id, agentName string, input *AgentInput, now time.Time) *AgentTask {
	return &AgentTask{
		ID:        id,
		AgentName: agentName,
		Input:     input,
		CreatedAt: now,
		Status:    TaskPending,
	}
}

// Start moves a pending task to running
func (t *AgentTask) Start() error {
	if t.Status != TaskPending {
		return t.transitionErr(TaskRunning)
	}
	t.Status = TaskRunning
	return nil
}

// Finish moves the task to its terminal state based on result.Success and
// drops the input payload.
func (t *AgentTask) Finish(result *AgentResult, now time.Time) error {
	if t.Status.Terminal() {
		return t.transitionErr(TaskCompleted)
	}
	t.Result = result
	t.FinishedAt = now
	t.Input = nil
	if result != nil && result.Success {
		t.Status = TaskCompleted
		return nil
	}
	t.Status = TaskFailed
	if result != nil {
		t.Error = result.Error
	}
	return nil
}

func (t *AgentTask) transitionErr(to TaskStatus) error {
	if t.Status.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrTaskTerminal, t.ID, t.Status)
	}
	return fmt.Errorf("invalid task transition %s -> %s", t.Status, to)
}
