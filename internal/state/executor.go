// Package state implements the single-writer cluster-state task executor
// described in §4.7: a priority queue of Task values applied one at a time
// by exactly one goroutine, so every task may treat the current state as
// frozen while it runs.
package state

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"

	"github.com/ployz-io/zen/internal/check"
	"github.com/ployz-io/zen/internal/cluster"
)

// Priority orders tasks within the queue; higher-priority tasks jump the
// queue but never preempt an in-flight task (§4.7).
type Priority int

const (
	Languid Priority = iota
	Normal
	High
	Urgent
	Immediate
)

// Task is one unit of cluster-state mutation.
type Task interface {
	// Execute derives the new state from current. It must not block on
	// I/O; long waits are forbidden inside the executor (§5).
	Execute(current cluster.State) (cluster.State, error)
	// RequiresMaster reports whether this task must only run while the
	// local node is master; if true and it isn't, OnNoLongerMaster fires
	// instead of Execute.
	RequiresMaster() bool
	// OnNoLongerMaster is called in place of Execute when RequiresMaster
	// is true but the local node is not (or no longer) master.
	OnNoLongerMaster()
	// OnFailure is called if Execute returns an error; the task is
	// abandoned and the state is left unchanged.
	OnFailure(err error)
	// ClusterStateProcessed fires after the new state is visible to
	// readers, with both the prior and the newly-applied state.
	ClusterStateProcessed(old, applied cluster.State)
}

// Service is the single-writer executor. The zero value is not usable;
// construct with New.
type Service struct {
	log *slog.Logger

	mu      sync.Mutex
	current cluster.State
	localID string

	queue   taskHeap
	seq     int
	notify  chan struct{}

	runOnce sync.Once
	done    chan struct{}

	onApplied func(cluster.State)
}

type queuedTask struct {
	task     Task
	priority Priority
	seq      int // FIFO tie-break within a priority class
}

// taskHeap orders by priority descending, then submission order ascending.
type taskHeap []queuedTask

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)         { *h = append(*h, x.(queuedTask)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// New constructs a Service seeded with initial and starts its single
// background worker goroutine. Callers stop it by cancelling ctx.
func New(ctx context.Context, initial cluster.State, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		log:     log.With("component", "cluster_state_service"),
		current: initial,
		localID: initial.Nodes.LocalID(),
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

// OnApplied installs a callback fired synchronously, inside the executor
// goroutine, every time a task's Execute produces a new state — including
// when it's unchanged from the prior one. Intended for cheap observers
// (metrics gauges); it must not block or submit new tasks re-entrantly.
func (s *Service) OnApplied(fn func(cluster.State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onApplied = fn
}

// Submit enqueues task at priority. It never blocks on task execution.
func (s *Service) Submit(task Task, priority Priority) {
	s.mu.Lock()
	s.seq++
	heap.Push(&s.queue, queuedTask{task: task, priority: priority, seq: s.seq})
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Current returns the current state. Safe to call from any goroutine; it
// never blocks on a running task.
func (s *Service) Current() cluster.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.notify:
		}

		for {
			task, ok := s.popTask()
			if !ok {
				break
			}
			s.runTask(task)
			select {
			case <-ctx.Done():
				return
			default:
			}
		}
	}
}

func (s *Service) popTask() (queuedTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Len() == 0 {
		return queuedTask{}, false
	}
	return heap.Pop(&s.queue).(queuedTask), true
}

// runTask executes exactly one task under the single-writer invariant
// (run() is the only goroutine that calls it). Before storing the new
// state it asserts, in debug builds, that the local node id of the current
// state did not change while the task ran.
func (s *Service) runTask(qt queuedTask) {
	task := qt.task

	s.mu.Lock()
	old := s.current
	isMaster := old.Nodes.IsLocalMaster()
	s.mu.Unlock()

	if task.RequiresMaster() && !isMaster {
		task.OnNoLongerMaster()
		return
	}

	newState, err := task.Execute(old)
	if err != nil {
		task.OnFailure(err)
		return
	}

	s.mu.Lock()
	check.Assertf(s.current.Nodes.LocalID() == old.Nodes.LocalID() || old.Nodes.LocalID() == "",
		"local id changed underneath the state executor: %s -> %s", old.Nodes.LocalID(), s.current.Nodes.LocalID())
	s.current = newState
	onApplied := s.onApplied
	s.mu.Unlock()

	if onApplied != nil {
		onApplied(newState)
	}

	task.ClusterStateProcessed(old, newState)
}
