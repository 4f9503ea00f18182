// Package workflow runs small task DAGs in-process. Tasks execute one at a
// time in dependency order and exchange values through an XCom store.
package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/systmms/dfops/internal/logging"
	"github.com/systmms/dfops/internal/metrics"
)

// State is the outcome of one task in a DAG run.
type State string

const (
	StateSuccess        State = "success"
	StateFailed         State = "failed"
	StateUpstreamFailed State = "upstream_failed"
	StateNotRun         State = "not_run"
)

// TaskFunc is the body of a task. Its return value is pushed to XCom under
// the task ID; nil pushes nothing.
type TaskFunc func(ctx context.Context, tc *TaskContext) (interface{}, error)

// Task is a node of a DAG.
type Task struct {
	ID        string
	DependsOn []string
	Fn        TaskFunc
}

// DAG is a named set of tasks.
type DAG struct {
	ID          string
	Description string
	Tags        []string
	Tasks       []*Task
}

// TaskContext is handed to every task.
type TaskContext struct {
	DAGID  string
	TaskID string
	Conf   map[string]string
	XCom   *XCom
	Logger *logging.Logger
}

// ConfOr returns Conf[key] or def when the key is missing or empty.
func (tc *TaskContext) ConfOr(key, def string) string {
	if v := tc.Conf[key]; v != "" {
		return v
	}
	return def
}

// XCom holds values returned by finished tasks.
type XCom struct {
	mu     sync.Mutex
	values map[string]interface{}
}

// NewXCom returns an empty store.
func NewXCom() *XCom {
	return &XCom{values: make(map[string]interface{})}
}

// Push stores v for taskID.
func (x *XCom) Push(taskID string, v interface{}) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.values[taskID] = v
}

// Pull returns the value pushed by taskID.
func (x *XCom) Pull(taskID string) (interface{}, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	v, ok := x.values[taskID]
	return v, ok
}

// PullMap returns the value pushed by taskID as a string map.
func (x *XCom) PullMap(taskID string) (map[string]string, error) {
	v, ok := x.Pull(taskID)
	if !ok {
		return nil, fmt.Errorf("no value pushed by task %s", taskID)
	}
	m, ok := v.(map[string]string)
	if !ok {
		return nil, fmt.Errorf("task %s pushed %T, want map[string]string", taskID, v)
	}
	return m, nil
}

// TaskError is returned by Run when a task fails.
type TaskError struct {
	DAGID  string
	TaskID string
	Err    error
}

func (e TaskError) Error() string {
	return fmt.Sprintf("dag %s: task %s failed: %v", e.DAGID, e.TaskID, e.Err)
}

func (e TaskError) Unwrap() error {
	return e.Err
}

// RunResult records the state of every task after a run.
type RunResult struct {
	DAGID  string
	Order  []string
	States map[string]State
	XCom   *XCom
}

// Order returns the tasks in dependency order. Ties are broken by task ID so
// the order is stable. Unknown dependencies and cycles are errors.
func (d *DAG) Order() ([]*Task, error) {
	byID := make(map[string]*Task, len(d.Tasks))
	inDegree := make(map[string]int, len(d.Tasks))
	dependents := make(map[string][]string, len(d.Tasks))

	for _, task := range d.Tasks {
		if task.ID == "" {
			return nil, fmt.Errorf("dag %s: task with empty id", d.ID)
		}
		if _, dup := byID[task.ID]; dup {
			return nil, fmt.Errorf("dag %s: duplicate task %s", d.ID, task.ID)
		}
		byID[task.ID] = task
		inDegree[task.ID] = 0
	}

	for _, task := range d.Tasks {
		for _, dep := range task.DependsOn {
			if _, ok := byID[dep]; !ok {
				return nil, fmt.Errorf("dag %s: task %s depends on unknown task %s", d.ID, task.ID, dep)
			}
			inDegree[task.ID]++
			dependents[dep] = append(dependents[dep], task.ID)
		}
	}

	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	ordered := make([]*Task, 0, len(d.Tasks))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		ordered = append(ordered, byID[current])

		for _, next := range dependents[current] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
		sort.Strings(queue)
	}

	if len(ordered) != len(d.Tasks) {
		return nil, fmt.Errorf("dag %s: cycle detected", d.ID)
	}
	return ordered, nil
}

// Run executes the DAG. A task runs only when all of its upstream tasks
// succeeded; tasks below a failure are marked upstream_failed. Cancelling
// ctx leaves the remaining tasks not_run. The first task error is returned
// as a TaskError.
func (d *DAG) Run(ctx context.Context, conf map[string]string, logger *logging.Logger) (*RunResult, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	ordered, err := d.Order()
	if err != nil {
		return nil, err
	}
	if conf == nil {
		conf = map[string]string{}
	}

	res := &RunResult{DAGID: d.ID, States: make(map[string]State, len(ordered)), XCom: NewXCom()}
	var firstErr error

	for _, task := range ordered {
		res.Order = append(res.Order, task.ID)

		if ctx.Err() != nil {
			res.States[task.ID] = StateNotRun
			continue
		}
		if blocked := d.blockedBy(task, res.States); blocked != "" {
			logger.Warn("[%s] Skipping %s: upstream %s did not succeed", d.ID, task.ID, blocked)
			res.States[task.ID] = StateUpstreamFailed
			metrics.RecordTask(d.ID, task.ID, string(StateUpstreamFailed))
			continue
		}

		logger.Info("[%s] Running %s", d.ID, task.ID)
		tc := &TaskContext{DAGID: d.ID, TaskID: task.ID, Conf: conf, XCom: res.XCom, Logger: logger}
		value, err := task.Fn(ctx, tc)
		if err != nil {
			logger.Error("[%s] %s failed: %v", d.ID, task.ID, err)
			res.States[task.ID] = StateFailed
			metrics.RecordTask(d.ID, task.ID, string(StateFailed))
			if firstErr == nil {
				firstErr = TaskError{DAGID: d.ID, TaskID: task.ID, Err: err}
			}
			continue
		}
		if value != nil {
			res.XCom.Push(task.ID, value)
		}
		res.States[task.ID] = StateSuccess
		metrics.RecordTask(d.ID, task.ID, string(StateSuccess))
	}

	if firstErr == nil && ctx.Err() != nil {
		firstErr = ctx.Err()
	}
	return res, firstErr
}

func (d *DAG) blockedBy(task *Task, states map[string]State) string {
	for _, dep := range task.DependsOn {
		if states[dep] != StateSuccess {
			return dep
		}
	}
	return ""
}

// Registry holds DAGs by ID.
type Registry struct {
	mu   sync.RWMutex
	dags map[string]*DAG
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{dags: make(map[string]*DAG)}
}

// Register validates and adds d.
func (r *Registry) Register(d *DAG) error {
	if d.ID == "" {
		return fmt.Errorf("dag id is required")
	}
	if _, err := d.Order(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.dags[d.ID]; exists {
		return fmt.Errorf("dag %s already registered", d.ID)
	}
	r.dags[d.ID] = d
	return nil
}

// Get returns the DAG with the given ID.
func (r *Registry) Get(id string) (*DAG, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.dags[id]
	return d, ok
}

// List returns all DAGs sorted by ID.
func (r *Registry) List() []*DAG {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*DAG, 0, len(r.dags))
	for _, d := range r.dags {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
