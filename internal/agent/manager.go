package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/diysmart/productinfo/internal/domain"
	"github.com/diysmart/productinfo/internal/infrastructure/logger"
	"github.com/diysmart/productinfo/internal/infrastructure/metrics"
)

const (
	// DefaultHistorySize bounds the finished-task map
	DefaultHistorySize = 256
	// DefaultHistoryLimit is the number of tasks TaskHistory returns when asked for zero
	DefaultHistoryLimit = 10
)

// ManagerConfig holds manager settings. Zero values use the defaults.
type ManagerConfig struct {
	HistorySize int
}

// Manager owns the registered agents and the tasks they run. Build one at
// startup and pass it to whatever needs it.
type Manager struct {
	mu     sync.RWMutex
	agents map[string]*registered

	tasksMu  sync.Mutex
	inflight map[string]*domain.AgentTask
	finished *lru.Cache[string, domain.AgentTask]

	logger  logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	newID   func() string
}

// NewManager creates an empty manager
func NewManager(log logger.Logger, m *metrics.Metrics, config ManagerConfig) (*Manager, error) {
	if config.HistorySize <= 0 {
		config.HistorySize = DefaultHistorySize
	}
	if log == nil {
		log = logger.NewNop()
	}
	finished, err := lru.New[string, domain.AgentTask](config.HistorySize)
	if err != nil {
		return nil, fmt.Errorf("create task history: %w", err)
	}

	return &Manager{
		agents:   make(map[string]*registered),
		inflight: make(map[string]*domain.AgentTask),
		finished: finished,
		logger:   log.With(logger.String("component", "agent_manager")),
		metrics:  m,
		now:      time.Now,
		newID:    uuid.NewString,
	}, nil
}

// Register adds an agent. Names must be unique.
func (m *Manager) Register(a Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := a.Name()
	if name == "" {
		return errors.New("agent name is required")
	}
	if _, exists := m.agents[name]; exists {
		return fmt.Errorf("agent %q already registered", name)
	}
	m.agents[name] = &registered{agent: a}
	m.logger.Info("agent registered", logger.String("agent", name))
	return nil
}

// Agent looks up a registered agent
func (m *Manager) Agent(name string) (Agent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.agents[name]
	if !ok {
		return nil, false
	}
	return r.agent, true
}

// Execute runs input through the named agent and returns the finished task
func (m *Manager) Execute(ctx context.Context, agentName string, input *domain.AgentInput) domain.AgentTask {
	task, _ := m.execute(ctx, agentName, input)
	return task
}

func (m *Manager) execute(ctx context.Context, agentName string, input *domain.AgentInput) (domain.AgentTask, *domain.AgentOutput) {
	task := domain.NewAgentTask(m.newID(), agentName, input, m.now())
	log := m.logger.With(logger.String("agent", agentName), logger.String("task_id", task.ID))

	m.mu.RLock()
	r, ok := m.agents[agentName]
	m.mu.RUnlock()
	if !ok {
		err := fmt.Errorf("%w: %s", domain.ErrAgentNotFound, agentName)
		return m.finish(task, m.failure(err, 0, nil), log), nil
	}

	if input == nil || !r.agent.Validate(input) {
		err := fmt.Errorf("%w: rejected by %s", domain.ErrBadInput, agentName)
		return m.finish(task, m.failure(err, 0, nil), log), nil
	}

	m.start(task)

	r.stats.begin()
	start := m.now()
	out, err := m.safeExecute(ctx, r.agent, input)
	elapsed := m.now().Sub(start)
	r.stats.end(elapsed, m.now())

	var result *domain.AgentResult
	if err != nil {
		result = m.failure(err, elapsed, out)
		out = nil
	} else {
		result = m.success(out, elapsed)
	}
	return m.finish(task, result, log), out
}

// safeExecute converts panics into AgentExecutionError
func (m *Manager) safeExecute(ctx context.Context, a Agent, input *domain.AgentInput) (out *domain.AgentOutput, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.Error("agent panicked",
				logger.String("agent", a.Name()),
				logger.Any("panic", rec),
				logger.String("stack", string(debug.Stack())))
			out = nil
			err = &domain.AgentExecutionError{Agent: a.Name(), Message: fmt.Sprint(rec)}
		}
	}()

	out, err = a.Execute(ctx, input)
	if err == nil && out == nil {
		out = &domain.AgentOutput{Kind: domain.OutputNone}
	}
	return out, err
}

func (m *Manager) success(out *domain.AgentOutput, elapsed time.Duration) *domain.AgentResult {
	return &domain.AgentResult{
		Success:       true,
		Data:          out.Data(),
		ExecutionTime: elapsed.Seconds(),
		Metadata:      out.Metadata,
		Timestamp:     m.now().UTC(),
	}
}

func (m *Manager) failure(err error, elapsed time.Duration, out *domain.AgentOutput) *domain.AgentResult {
	result := &domain.AgentResult{
		Success:       false,
		Error:         err.Error(),
		ExecutionTime: elapsed.Seconds(),
		Timestamp:     m.now().UTC(),
		Cause:         err,
	}
	if out != nil {
		result.Metadata = out.Metadata
	}
	return result
}

func (m *Manager) finish(task *domain.AgentTask, result *domain.AgentResult, log logger.Logger) domain.AgentTask {
	m.tasksMu.Lock()
	if err := task.Finish(result, m.now()); err != nil {
		log.Error("task finished twice", logger.Error(err))
	}
	delete(m.inflight, task.ID)
	m.finished.Add(task.ID, *task)
	m.tasksMu.Unlock()

	m.metrics.IncAgentTask(task.AgentName, string(task.Status))
	if task.Status == domain.TaskFailed {
		log.Warn("task failed", logger.String("error", task.Error))
	} else {
		log.Debug("task completed", logger.Float64("execution_time", result.ExecutionTime))
	}
	return *task
}

// start marks task running and makes it visible to Task
func (m *Manager) start(task *domain.AgentTask) {
	m.tasksMu.Lock()
	_ = task.Start()
	m.inflight[task.ID] = task
	m.tasksMu.Unlock()
}

// Task returns a task by id, running or finished
func (m *Manager) Task(id string) (domain.AgentTask, bool) {
	m.tasksMu.Lock()
	defer m.tasksMu.Unlock()
	if t, ok := m.inflight[id]; ok {
		return *t, true
	}
	return m.finished.Peek(id)
}

// TaskHistory returns up to limit finished tasks, newest first
func (m *Manager) TaskHistory(limit int) []domain.AgentTask {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	m.tasksMu.Lock()
	defer m.tasksMu.Unlock()

	keys := m.finished.Keys()
	out := make([]domain.AgentTask, 0, min(limit, len(keys)))
	for i := len(keys) - 1; i >= 0 && len(out) < limit; i-- {
		if t, ok := m.finished.Peek(keys[i]); ok {
			out = append(out, t)
		}
	}
	return out
}

// Status returns every agent's counters, sorted by name
func (m *Manager) Status() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Status, 0, len(m.agents))
	for name, r := range m.agents {
		out = append(out, r.stats.snapshot(name))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
