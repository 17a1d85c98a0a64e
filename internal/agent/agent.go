// Package agent runs named agents as tracked tasks and chains them into
// workflows.
package agent

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/diysmart/productinfo/internal/domain"
)

// Agent is a named worker. Implementations must be safe for concurrent use;
// the manager may run the same agent for several tasks at once.
type Agent interface {
	Name() string
	// Validate reports whether input is acceptable. A false result fails the
	// task with domain.ErrBadInput before Execute runs.
	Validate(input *domain.AgentInput) bool
	// Execute does the work. An output may accompany an error to carry
	// metadata about the failure.
	Execute(ctx context.Context, input *domain.AgentInput) (*domain.AgentOutput, error)
}

// Status is a snapshot of an agent's advisory counters
type Status struct {
	Name                 string     `json:"name"`
	IsRunning            bool       `json:"is_running"`
	Running              int64      `json:"running"`
	TasksCompleted       int64      `json:"tasks_completed"`
	TotalExecutionTime   float64    `json:"total_execution_time"`
	AverageExecutionTime float64    `json:"average_execution_time"`
	LastExecution        *time.Time `json:"last_execution,omitempty"`
}

// stats are advisory. They are updated atomically but never used for
// exclusion, so concurrent tasks on one agent only blur them.
type stats struct {
	running        atomic.Int64
	tasksCompleted atomic.Int64
	totalNanos     atomic.Int64
	lastExecution  atomic.Int64
}

func (s *stats) begin() {
	s.running.Add(1)
}

func (s *stats) end(elapsed time.Duration, finished time.Time) {
	s.running.Add(-1)
	s.tasksCompleted.Add(1)
	s.totalNanos.Add(int64(elapsed))
	s.lastExecution.Store(finished.UnixNano())
}

func (s *stats) snapshot(name string) Status {
	st := Status{
		Name:           name,
		Running:        s.running.Load(),
		TasksCompleted: s.tasksCompleted.Load(),
	}
	st.IsRunning = st.Running > 0
	total := time.Duration(s.totalNanos.Load())
	st.TotalExecutionTime = total.Seconds()
	if st.TasksCompleted > 0 {
		st.AverageExecutionTime = st.TotalExecutionTime / float64(st.TasksCompleted)
	}
	if last := s.lastExecution.Load(); last != 0 {
		t := time.Unix(0, last).UTC()
		st.LastExecution = &t
	}
	return st
}

type registered struct {
	agent Agent
	stats stats
}
