// Package workqueue hands out turns at a single shared rendering context.
//
// Any number of goroutines submit jobs with Do; exactly one goroutine, the
// one that owns the context (usually the locked main thread), executes them
// with RunFrame or Serve. Each job runs to completion before the next one
// starts, so a job is an atomic unit of GPU work.
package workqueue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/lightbake/internal/logger"
)

// ErrClosed is returned by Do after Close or once Serve has returned.
var ErrClosed = errors.New("workqueue: closed")

const (
	statePending int32 = iota
	stateRunning
	stateCanceled
)

type job struct {
	fn    func() error
	state atomic.Int32
	done  chan error
}

// Options configures a Manager.
type Options struct {
	// JobsPerFrame caps how many jobs RunFrame executes; 0 means 1.
	JobsPerFrame int
	// QueueSize is the submit buffer; 0 means 64.
	QueueSize int
	Logger    *zap.Logger
}

// Manager is a single-consumer job queue.
//
// Thread safety: Do, Yield and Close are safe for concurrent use. RunFrame
// and Serve must only be called from the goroutine that owns the context.
type Manager struct {
	jobs         chan *job
	closed       chan struct{}
	closing      atomic.Bool
	jobsPerFrame int
	log          *zap.Logger

	executed atomic.Int64
	canceled atomic.Int64
}

// New creates a Manager.
func New(opts Options) *Manager {
	if opts.JobsPerFrame <= 0 {
		opts.JobsPerFrame = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	return &Manager{
		jobs:         make(chan *job, opts.QueueSize),
		closed:       make(chan struct{}),
		jobsPerFrame: opts.JobsPerFrame,
		log:          logger.Or(opts.Logger, "workqueue"),
	}
}

// Do queues fn and blocks until it has run, returning its error.
//
// If ctx ends while the job is still waiting for its turn, the job is
// withdrawn and never runs, and Do returns ctx.Err(). A job that already
// started is allowed to finish and its result is returned.
func (m *Manager) Do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.closing.Load() {
		return ErrClosed
	}
	j := &job{fn: fn, done: make(chan error, 1)}
	select {
	case m.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.closed:
		return ErrClosed
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		if j.state.CompareAndSwap(statePending, stateCanceled) {
			m.canceled.Add(1)
			return ctx.Err()
		}
		return <-j.done
	case <-m.closed:
		if j.state.CompareAndSwap(statePending, stateCanceled) {
			return ErrClosed
		}
		return <-j.done
	}
}

// Yield waits for one turn without doing any work. It lets the owner run a
// frame between stages of a long task.
func (m *Manager) Yield(ctx context.Context) error {
	return m.Do(ctx, func() error { return nil })
}

// run executes j unless it was withdrawn. It reports whether j ran.
func (m *Manager) run(j *job) bool {
	if !j.state.CompareAndSwap(statePending, stateRunning) {
		return false
	}
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				m.log.Error("job panicked", zap.Any("panic", r))
				err = &PanicError{Value: r}
			}
		}()
		err = j.fn()
	}()
	j.done <- err
	m.executed.Add(1)
	return true
}

// RunFrame runs up to JobsPerFrame queued jobs without blocking and returns
// how many ran. Withdrawn jobs do not count.
func (m *Manager) RunFrame() int {
	ran := 0
	for ran < m.jobsPerFrame {
		select {
		case j := <-m.jobs:
			if m.run(j) {
				ran++
			}
		default:
			return ran
		}
	}
	return ran
}

// Serve runs jobs until ctx ends or the manager is closed. After every
// frame that ran at least one job it calls frame, if non-nil, which is
// where the owner presents or pumps events. When idle Serve blocks, waking
// at least every idle interval to call frame.
//
// Once Serve returns the manager is closed: queued jobs are rejected and
// later calls to Do return ErrClosed.
func (m *Manager) Serve(ctx context.Context, idle time.Duration, frame func()) error {
	if idle <= 0 {
		idle = 16 * time.Millisecond
	}
	ticker := time.NewTicker(idle)
	defer ticker.Stop()
	defer func() {
		m.Close()
		m.drain()
	}()

	for {
		if m.closing.Load() {
			return nil
		}
		if m.RunFrame() > 0 {
			if frame != nil {
				frame()
			}
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.closed:
			return nil
		case j := <-m.jobs:
			if m.run(j) && frame != nil {
				frame()
			}
		case <-ticker.C:
			if frame != nil {
				frame()
			}
		}
	}
}

// drain rejects every job still queued so no submitter waits forever.
func (m *Manager) drain() {
	for {
		select {
		case j := <-m.jobs:
			if j.state.CompareAndSwap(statePending, stateCanceled) {
				j.done <- ErrClosed
			}
		default:
			return
		}
	}
}

// Close stops accepting jobs and unblocks Serve. Queued jobs are rejected
// with ErrClosed once Serve returns.
func (m *Manager) Close() {
	if m.closing.CompareAndSwap(false, true) {
		close(m.closed)
	}
}

// Stats returns the number of executed and withdrawn jobs.
func (m *Manager) Stats() (executed, canceled int64) {
	return m.executed.Load(), m.canceled.Load()
}

// PanicError wraps a value recovered from a panicking job.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("workqueue: job panicked: %v", e.Value)
}
