package pnn

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Transition reports that prediction changed between two adjacent rows.
type Transition struct {
	From Label
	To   Label
	Row  int
}

// NotifyFunc delivers a transition. Its errors are logged and dropped.
type NotifyFunc func(Transition) error

// Notifier delivers transitions on a single background worker. Notify never
// blocks: when the queue is full the transition is dropped.
type Notifier struct {
	queue   chan Transition
	fn      NotifyFunc
	logger  *zap.Logger
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Int64
}

// NewNotifier starts a notifier with the given queue size.
func NewNotifier(size int, fn NotifyFunc, logger *zap.Logger) *Notifier {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Notifier{
		queue:  make(chan Transition, size),
		fn:     fn,
		logger: logger,
		done:   make(chan struct{}),
	}
	n.wg.Add(1)
	go n.run()
	return n
}

// Notify queues t for delivery and reports whether it was accepted.
// A nil Notifier accepts nothing.
func (n *Notifier) Notify(t Transition) bool {
	if n == nil {
		return false
	}
	select {
	case <-n.done:
		return false
	default:
	}
	select {
	case n.queue <- t:
		return true
	default:
		n.dropped.Add(1)
		return false
	}
}

// Dropped returns how many transitions were discarded because the queue was full.
func (n *Notifier) Dropped() int64 {
	if n == nil {
		return 0
	}
	return n.dropped.Load()
}

// Close stops the worker. Transitions still queued are discarded.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.once.Do(func() { close(n.done) })
	n.wg.Wait()
}

func (n *Notifier) run() {
	defer n.wg.Done()
	for {
		select {
		case <-n.done:
			return
		case t := <-n.queue:
			n.deliver(t)
		}
	}
}

func (n *Notifier) deliver(t Transition) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Warn("transition handler panicked", zap.Any("panic", r))
		}
	}()
	if n.fn == nil {
		return
	}
	if err := n.fn(t); err != nil {
		n.logger.Debug("transition not delivered",
			zap.Stringer("from", t.From),
			zap.Stringer("to", t.To),
			zap.Error(err))
	}
}
