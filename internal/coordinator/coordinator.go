// Package coordinator implements the admission-controlled scheduler
// that bounds concurrent decode work by aggregate memory cost, sized
// against a device-capacity signal (spec.md §4.2).
package coordinator

import (
	"container/list"
	"log/slog"
	"sync"
)

// Dispatcher is the subset of runner.Runner the coordinator needs: a
// place to hand off admitted work. internal/runner.WorkerPool
// implements this; DecodeCoordinator never posts to a SerialRunner.
type Dispatcher interface {
	Post(fn func()) error
}

// Snapshot is a point-in-time view of coordinator state, used by
// telemetry and by admission-bound property tests.
type Snapshot struct {
	InFlightMemory    uint64
	InFlightCount     uint32
	QueueDepth        int
	MaxMemoryInFlight uint64
	CPUCoreCount      uint32
	Admitted          uint64
	Enqueued          uint64
	Finished          uint64
}

type pendingTask struct {
	cost uint64
	work func(finish func())
}

// DecodeCoordinator gates the Worker pool so that aggregate in-flight
// decode memory stays within budget, with a starvation-guard exception
// for a single task larger than the whole budget, and a soft
// parallelism cap at cpuCoreCount concurrent tasks.
type DecodeCoordinator struct {
	mu sync.Mutex

	worker Dispatcher
	log    *slog.Logger

	maxMemoryInFlight uint64
	cpuCoreCount      uint32

	inFlightMemory uint64
	inFlightCount  uint32
	queue          *list.List // of *pendingTask, FIFO

	admitted uint64
	enqueued uint64
	finished uint64
}

// New constructs a coordinator dispatching admitted work onto worker.
// Capacity starts at zero (nothing admits) until UpdateCapacity is
// called; internal/capacity.Device.MaybeEvaluate does this on codec
// instantiation.
func New(worker Dispatcher, log *slog.Logger) *DecodeCoordinator {
	if log == nil {
		log = slog.Default()
	}
	return &DecodeCoordinator{
		worker: worker,
		log:    log,
		queue:  list.New(),
	}
}

// UpdateCapacity atomically replaces the budgets and then admits any
// queued tasks that newly fit. It never cancels already-running tasks.
func (c *DecodeCoordinator) UpdateCapacity(cpuCoreCount uint32, maxMemoryInFlight uint64) {
	c.mu.Lock()
	c.cpuCoreCount = cpuCoreCount
	c.maxMemoryInFlight = maxMemoryInFlight
	c.mu.Unlock()

	c.admitQueued()
}

// admissibleLocked implements the admission rule from spec.md §4.2.
// Caller must hold c.mu.
//
// The budget check is evaluated against the currently in-flight
// memory alone, not the sum after admitting this task: admission is a
// gate on "is there room to start one more", not a guarantee that the
// post-admission total stays under budget. This is what makes two
// same-size tasks both admissible when the first alone is under
// budget (S5: two 5MB tasks start against an 8MB budget, landing at
// 10MB in flight) while still bounding the aggregate to
// budget-plus-one-task, never unbounded queueing.
func (c *DecodeCoordinator) admissibleLocked() bool {
	if c.inFlightCount >= c.cpuCoreCount {
		return false
	}
	budgetHasRoom := c.inFlightMemory < c.maxMemoryInFlight
	starvationGuard := c.inFlightCount == 0
	return budgetHasRoom || starvationGuard
}

// PostTask submits work with the given memory cost. If admissible, it
// is dispatched to the worker pool immediately; otherwise it is
// enqueued FIFO and dispatched later as capacity frees up.
//
// work is invoked with a finish callback that the caller must call
// exactly once when the task's work is complete, regardless of
// outcome. finish is idempotent (extra calls are no-ops) and is also
// invoked by the dispatch wrapper if work panics, so a panicking
// thunk can never leak the coordinator's counters — this is the
// "worker dispatch layer wraps the thunk with scoped release"
// structural enforcement spec.md §4.2 calls for.
func (c *DecodeCoordinator) PostTask(cost uint64, work func(finish func())) {
	c.mu.Lock()
	admit := c.admissibleLocked()
	if admit {
		c.inFlightMemory += cost
		c.inFlightCount++
		c.admitted++
	} else {
		c.queue.PushBack(&pendingTask{cost: cost, work: work})
		c.enqueued++
	}
	c.mu.Unlock()

	if admit {
		c.dispatch(cost, work)
	}
}

func (c *DecodeCoordinator) dispatch(cost uint64, work func(finish func())) {
	var once sync.Once
	finish := func() {
		once.Do(func() {
			c.finishTask(cost)
		})
	}

	err := c.worker.Post(func() {
		defer func() {
			if r := recover(); r != nil {
				c.log.Error("decode task panicked", "recover", r)
				finish()
			}
		}()
		work(finish)
	})
	if err != nil {
		// Worker pool closed underneath us (shutdown race): the task
		// will never run, so release its admission slot immediately.
		c.log.Warn("decode coordinator: worker pool rejected task", "error", err)
		finish()
	}
}

// finishTask decrements the in-flight counters for a completed task
// and attempts to admit queued tasks in FIFO order while admissible.
func (c *DecodeCoordinator) finishTask(cost uint64) {
	c.mu.Lock()
	if cost > c.inFlightMemory {
		c.inFlightMemory = 0
	} else {
		c.inFlightMemory -= cost
	}
	if c.inFlightCount > 0 {
		c.inFlightCount--
	}
	c.finished++
	c.mu.Unlock()

	c.admitQueued()
}

// admitQueued pops queued tasks in FIFO order and dispatches every
// one that is currently admissible, stopping at the first that is
// not (queue order is preserved; a large queued task never gets
// skipped over by smaller later ones).
func (c *DecodeCoordinator) admitQueued() {
	for {
		c.mu.Lock()
		front := c.queue.Front()
		if front == nil {
			c.mu.Unlock()
			return
		}
		t := front.Value.(*pendingTask)
		if !c.admissibleLocked() {
			c.mu.Unlock()
			return
		}
		c.queue.Remove(front)
		c.inFlightMemory += t.cost
		c.inFlightCount++
		c.admitted++
		c.mu.Unlock()

		c.dispatch(t.cost, t.work)
	}
}

// Snapshot returns a point-in-time view of coordinator state.
func (c *DecodeCoordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		InFlightMemory:    c.inFlightMemory,
		InFlightCount:     c.inFlightCount,
		QueueDepth:        c.queue.Len(),
		MaxMemoryInFlight: c.maxMemoryInFlight,
		CPUCoreCount:      c.cpuCoreCount,
		Admitted:          c.admitted,
		Enqueued:          c.enqueued,
		Finished:          c.finished,
	}
}
