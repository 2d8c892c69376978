package core

import "sync"

// CheckpointStore persists TaskCheckpoints keyed by task id. Implementations
// are a caller concern (on-disk persistence is explicitly out of scope);
// the in-memory default below is what the task runner uses unless a caller
// supplies its own.
type CheckpointStore interface {
	Save(cp TaskCheckpoint) error
	Load(taskID string) (TaskCheckpoint, bool, error)
}

// InMemoryCheckpointStore is the default CheckpointStore: a process-local
// map, good enough for a single-process task runner and for tests.
type InMemoryCheckpointStore struct {
	mu   sync.Mutex
	data map[string]TaskCheckpoint
}

func NewInMemoryCheckpointStore() *InMemoryCheckpointStore {
	return &InMemoryCheckpointStore{data: make(map[string]TaskCheckpoint)}
}

func (s *InMemoryCheckpointStore) Save(cp TaskCheckpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[cp.TaskID] = cp
	return nil
}

func (s *InMemoryCheckpointStore) Load(taskID string) (TaskCheckpoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.data[taskID]
	return cp, ok, nil
}

// CheckpointManager saves a TaskCheckpoint at each step boundary and on
// every plan adjustment. A checkpoint's Resumable flag is true only when
// the last terminal status was a clean success or the task is still
// in-flight; any other abort reason flips it permanently false for that
// task id.
type CheckpointManager struct {
	Store CheckpointStore
}

func NewCheckpointManager(store CheckpointStore) *CheckpointManager {
	if store == nil {
		store = NewInMemoryCheckpointStore()
	}
	return &CheckpointManager{Store: store}
}

// SaveStepBoundary records progress after a step completes (or is
// in-flight, with currentStep non-nil and not yet in completed).
func (m *CheckpointManager) SaveStepBoundary(taskID string, plan ExecutionPlan, completed []StepResult, currentStep *int, elapsedSeconds, costUSD float64) {
	m.Store.Save(TaskCheckpoint{
		TaskID:      taskID,
		Timestamp:   currentUnixOrZero(),
		Plan:        plan,
		Completed:   append([]StepResult{}, completed...),
		CurrentStep: currentStep,
		Elapsed:     elapsedSeconds,
		CostUSD:     costUSD,
		Resumable:   true,
	})
}

// MarkAborted records a terminal, non-resumable checkpoint for taskID. Any
// abort reason other than clean success lands here.
func (m *CheckpointManager) MarkAborted(taskID string, plan ExecutionPlan, completed []StepResult, elapsedSeconds, costUSD float64) {
	m.Store.Save(TaskCheckpoint{
		TaskID:    taskID,
		Timestamp: currentUnixOrZero(),
		Plan:      plan,
		Completed: append([]StepResult{}, completed...),
		Elapsed:   elapsedSeconds,
		CostUSD:   costUSD,
		Resumable: false,
	})
}

// MarkCompleted records the final, resumable-in-the-trivial-sense
// checkpoint for a task that ran to clean success.
func (m *CheckpointManager) MarkCompleted(taskID string, plan ExecutionPlan, completed []StepResult, elapsedSeconds, costUSD float64) {
	m.Store.Save(TaskCheckpoint{
		TaskID:    taskID,
		Timestamp: currentUnixOrZero(),
		Plan:      plan,
		Completed: append([]StepResult{}, completed...),
		Elapsed:   elapsedSeconds,
		CostUSD:   costUSD,
		Resumable: true,
	})
}

// Resume loads the last checkpoint for taskID, returning ok=false if none
// exists or it was marked non-resumable.
func (m *CheckpointManager) Resume(taskID string) (TaskCheckpoint, bool) {
	cp, ok, err := m.Store.Load(taskID)
	if err != nil || !ok || !cp.Resumable {
		return TaskCheckpoint{}, false
	}
	return cp, true
}
