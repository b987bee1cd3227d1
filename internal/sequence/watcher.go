package sequence

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Publisher receives emitted action codes.
type Publisher interface {
	Store(ctx context.Context, v int64) error
}

// WatcherConfig holds Watcher options.
type WatcherConfig struct {
	Rules     []Rule
	Phase     Phase
	Publisher Publisher
	Logger    *zap.Logger
}

// Watcher combines the debouncer and matcher and publishes matched actions.
type Watcher struct {
	debouncer *Debouncer
	matcher   *Matcher
	phase     Phase
	publisher Publisher
	logger    *zap.Logger
}

// NewWatcher creates a watcher starting in cfg.Phase.
func NewWatcher(cfg WatcherConfig) *Watcher {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		debouncer: NewDebouncer(cfg.Phase.Sentinel()),
		matcher:   NewMatcher(cfg.Rules),
		phase:     cfg.Phase,
		publisher: cfg.Publisher,
		logger:    logger,
	}
}

// maxPoseCode is the highest pose label code.
const maxPoseCode = 3

// Observe consumes one pose code. The rule table is evaluated on every call,
// so a match whose publish failed is retried on the next call. On a
// successful publish the sequence resets to the next phase's sentinel and
// the action is returned.
func (w *Watcher) Observe(ctx context.Context, pose int64) (Action, error) {
	if pose < 0 || pose > maxPoseCode {
		return ActionNone, fmt.Errorf("pose code %d out of range", pose)
	}
	if w.debouncer.Push(byte('0' + pose)) {
		w.logger.Debug("sequence", zap.String("seq", w.debouncer.Sequence()))
	}

	action := w.matcher.Match(w.debouncer.Sequence())
	if action == ActionNone {
		return ActionNone, nil
	}

	if w.publisher != nil {
		if err := w.publisher.Store(ctx, int64(action)); err != nil {
			w.logger.Warn("publish action failed",
				zap.Stringer("action", action),
				zap.String("seq", w.debouncer.Sequence()),
				zap.Error(err))
			return ActionNone, fmt.Errorf("publish %s: %w", action, err)
		}
	}

	w.logger.Info("action matched",
		zap.Stringer("action", action),
		zap.String("seq", w.debouncer.Sequence()),
		zap.Stringer("phase", w.phase))
	w.phase = w.phase.Next()
	w.debouncer.Reset(w.phase.Sentinel())
	return action, nil
}

// Sequence returns the current debounced sequence.
func (w *Watcher) Sequence() string { return w.debouncer.Sequence() }

// Phase returns the current half-cycle.
func (w *Watcher) Phase() Phase { return w.phase }
