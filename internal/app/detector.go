package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/posecue/internal/channel"
	"github.com/ayusman/posecue/internal/sequence"
	"github.com/ayusman/posecue/internal/store"
)

// DetectorConfig holds Detector dependencies.
type DetectorConfig struct {
	// Poses is read on every tick.
	Poses channel.Slot

	// Watcher publishes matched actions to the action slot.
	Watcher *sequence.Watcher

	Tick   time.Duration
	Events EventRecorder
	Status *Status
	Logger *zap.Logger
}

// Detector samples the pose slot and feeds the sequence watcher.
type Detector struct {
	config DetectorConfig
	logger *zap.Logger
}

// NewDetector creates a Detector.
func NewDetector(config DetectorConfig) *Detector {
	if config.Tick <= 0 {
		config.Tick = 30 * time.Millisecond
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{config: config, logger: logger}
}

// Step reads the pose slot once and returns the action it triggered, if any.
// An empty pose slot is not an error.
func (d *Detector) Step(ctx context.Context) (sequence.Action, error) {
	pose, err := d.config.Poses.TryLoad()
	if errors.Is(err, channel.ErrEmpty) {
		return sequence.ActionNone, nil
	}
	if err != nil {
		return sequence.ActionNone, fmt.Errorf("read pose: %w", err)
	}

	action, err := d.config.Watcher.Observe(ctx, pose)
	d.config.Status.SetSequence(d.config.Watcher.Sequence(), d.config.Watcher.Phase())
	if err != nil {
		return sequence.ActionNone, err
	}
	if action == sequence.ActionNone {
		return action, nil
	}

	d.config.Status.SetAction(action)
	if d.config.Events != nil {
		if err := d.config.Events.Record(&store.Event{
			Kind:   store.EventAction,
			Code:   int64(action),
			Detail: action.String(),
		}); err != nil {
			d.logger.Warn("record action event failed", zap.Error(err))
		}
	}
	return action, nil
}

// Run waits for the first pose, then steps the detector on every tick until
// ctx is done.
func (d *Detector) Run(ctx context.Context) error {
	d.logger.Info("detector started", zap.Duration("tick", d.config.Tick))
	defer d.logger.Info("detector stopped")

	// The predictor may start later.
	first, err := channel.Load(ctx, d.config.Poses, channel.DefaultBackoff())
	if err != nil {
		return nil
	}
	d.logger.Info("first pose received", zap.Int64("pose", first))

	ticker := time.NewTicker(d.config.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := d.Step(ctx); err != nil {
				d.logger.Warn("detector step failed", zap.Error(err))
			}
		}
	}
}
