package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	errspkg "github.com/drblury/protobroker/internal/runtime/errors"
	"github.com/drblury/protobroker/internal/runtime/logging"
)

// SyncBroker exposes blocking Start and Stop for callers that cannot manage
// contexts or goroutines themselves, such as test setup helpers.
//
// Lifecycle operations run one at a time on a scheduler goroutine created on
// first use. A call made while an operation is running, for example from a
// LifecycleHooks callback, fails with ErrSchedulerActive unless the broker
// was configured with AllowReentrant, in which case it runs nested on the
// caller's goroutine.
//
// SyncBroker is not safe for concurrent use. The scheduler cannot tell a hook
// from an unrelated goroutine, so a concurrent call is rejected the same way
// and, with AllowReentrant set, runs concurrently with the active operation
// instead of nested inside it.
type SyncBroker struct {
	broker         *Broker
	allowReentrant bool
	log            logging.ServiceLogger

	mu    sync.Mutex
	sched *scheduler
}

// NewSyncBroker wraps b.
func NewSyncBroker(b *Broker) *SyncBroker {
	return &SyncBroker{
		broker:         b,
		allowReentrant: b.conf.AllowReentrant,
		log:            b.log,
	}
}

// Broker returns the wrapped Broker.
func (s *SyncBroker) Broker() *Broker { return s.broker }

// Start blocks until the broker is started and returns its bootstrap address.
func (s *SyncBroker) Start() (string, error) {
	return s.StartContext(context.Background())
}

// StartContext is Start bounded by ctx.
func (s *SyncBroker) StartContext(ctx context.Context) (string, error) {
	var addr string
	err := s.run(ctx, "Start", func(ctx context.Context) error {
		var err error
		addr, err = s.broker.Start(ctx)
		return err
	})
	return addr, err
}

// Stop blocks until the broker is stopped.
func (s *SyncBroker) Stop() error {
	return s.StopContext(context.Background())
}

// StopContext is Stop bounded by ctx.
func (s *SyncBroker) StopContext(ctx context.Context) error {
	return s.run(ctx, "Stop", s.broker.Stop)
}

// IsStarted reports whether the wrapped broker is started.
func (s *SyncBroker) IsStarted() bool { return s.broker.IsStarted() }

// BootstrapServer returns the bootstrap address of the running session.
func (s *SyncBroker) BootstrapServer() string { return s.broker.BootstrapServer() }

// Close shuts the scheduler goroutine down. A later call creates a new one.
func (s *SyncBroker) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched != nil {
		s.sched.close()
		s.sched = nil
	}
}

func (s *SyncBroker) scheduler() *scheduler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched == nil {
		s.sched = newScheduler()
	}
	return s.sched
}

func (s *SyncBroker) run(ctx context.Context, name string, fn func(context.Context) error) error {
	sched := s.scheduler()
	if sched.active.Load() {
		if !s.allowReentrant {
			return fmt.Errorf("%w: %s called while another lifecycle operation is running; "+
				"SyncBroker is not safe for concurrent use, and calls from lifecycle hooks need AllowReentrant to run nested",
				errspkg.ErrSchedulerActive, name)
		}
		s.log.Warn("Running nested lifecycle operation", logging.LogFields{"operation": name})
		return fn(ctx)
	}
	return sched.do(ctx, fn)
}

type task struct {
	ctx    context.Context
	fn     func(context.Context) error
	result chan error
}

// scheduler executes tasks sequentially on its own goroutine.
type scheduler struct {
	tasks  chan task
	active atomic.Bool
	done   chan struct{}
	once   sync.Once
}

func newScheduler() *scheduler {
	s := &scheduler{
		tasks: make(chan task),
		done:  make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *scheduler) loop() {
	for {
		select {
		case t := <-s.tasks:
			s.active.Store(true)
			err := s.execute(t)
			s.active.Store(false)
			t.result <- err
		case <-s.done:
			return
		}
	}
}

func (s *scheduler) execute(t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lifecycle operation panicked: %v", r)
		}
	}()
	return t.fn(t.ctx)
}

func (s *scheduler) do(ctx context.Context, fn func(context.Context) error) error {
	t := task{ctx: ctx, fn: fn, result: make(chan error, 1)}
	select {
	case s.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return errSchedulerClosed
	}
	return <-t.result
}

func (s *scheduler) close() {
	s.once.Do(func() { close(s.done) })
}

var errSchedulerClosed = errors.New("protobroker: lifecycle scheduler closed")
