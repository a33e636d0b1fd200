// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Palais Contributors

package memory

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	palaiserr "github.com/palais-dev/palais/pkg/errors"
)

// Task is a unit of background work. The context carries the task's overall
// cap and is detached from whatever request scheduled the task.
type Task func(ctx context.Context) error

type job struct {
	id    string
	stage string
	fn    Task
}

// Dispatcher runs background tasks on a fixed pool of workers fed by a
// bounded queue. Submitting never blocks: when the queue is full the task
// is dropped, logged and counted.
type Dispatcher struct {
	mu     sync.RWMutex
	closed bool
	queue  chan job

	workers sync.WaitGroup

	idleMu  sync.Mutex
	idle    *sync.Cond
	pending int

	timeout time.Duration
	logger  *slog.Logger
	metrics *Metrics
}

// NewDispatcher starts workers goroutines. Call Close to drain and stop them.
func NewDispatcher(workers, queueSize int, timeout time.Duration, logger *slog.Logger, metrics *Metrics) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}

	d := &Dispatcher{
		queue:   make(chan job, queueSize),
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}
	d.idle = sync.NewCond(&d.idleMu)

	for range workers {
		d.workers.Add(1)
		go d.run()
	}
	return d
}

func (d *Dispatcher) run() {
	defer d.workers.Done()
	for j := range d.queue {
		d.execute(j)
		d.idleMu.Lock()
		d.pending--
		if d.pending == 0 {
			d.idle.Broadcast()
		}
		d.idleMu.Unlock()
	}
}

// execute runs a job under the task cap with panic recovery.
func (d *Dispatcher) execute(j job) {
	ctx := context.Background()
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	outcome := outcomeOK
	func() {
		defer func() {
			if r := recover(); r != nil {
				outcome = outcomePanic
				d.logger.Error("memory task panic recovered",
					"task_id", j.id,
					"stage", j.stage,
					"panic", r,
					"stack", string(debug.Stack()))
			}
		}()
		if err := j.fn(ctx); err != nil {
			outcome = outcomeFailed
			d.logger.Warn("memory task failed",
				"task_id", j.id,
				"stage", j.stage,
				"error", err)
		}
	}()

	d.metrics.TaskDuration.WithLabelValues(j.stage).Observe(time.Since(start).Seconds())
	d.metrics.Tasks.WithLabelValues(j.stage, outcome).Inc()
}

// Go schedules fn under stage and returns the task id. It returns false when
// the task was dropped.
func (d *Dispatcher) Go(stage string, fn Task) (string, bool) {
	id := uuid.NewString()

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(id, stage, "dispatcher closed")
		return id, false
	}

	d.idleMu.Lock()
	d.pending++
	d.idleMu.Unlock()

	select {
	case d.queue <- job{id: id, stage: stage, fn: fn}:
		d.logger.Debug("memory task queued", "task_id", id, "stage", stage)
		return id, true
	default:
		d.idleMu.Lock()
		d.pending--
		if d.pending == 0 {
			d.idle.Broadcast()
		}
		d.idleMu.Unlock()
		d.drop(id, stage, "queue full")
		return id, false
	}
}

func (d *Dispatcher) drop(id, stage, reason string) {
	d.metrics.TasksDropped.Inc()
	d.metrics.Tasks.WithLabelValues(stage, outcomeDropped).Inc()
	d.logger.Warn("memory task dropped",
		"task_id", id,
		"stage", stage,
		"reason", reason,
		"error", palaiserr.New(palaiserr.CodeMemoryTaskQueueFull, reason))
}

// Wait blocks until every queued and running task has finished. Tasks
// scheduled by running tasks are waited for as well.
func (d *Dispatcher) Wait() {
	d.idleMu.Lock()
	for d.pending > 0 {
		d.idle.Wait()
	}
	d.idleMu.Unlock()
}

// Close stops accepting tasks, runs everything already queued and waits
// for the workers to exit. Close is idempotent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.workers.Wait()
}
