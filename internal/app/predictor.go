package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/posecue/internal/channel"
	"github.com/ayusman/posecue/internal/pnn"
	"github.com/ayusman/posecue/internal/preprocess"
	"github.com/ayusman/posecue/internal/skeleton"
	"github.com/ayusman/posecue/internal/store"
	"github.com/ayusman/posecue/internal/window"
)

// EventRecorder persists pipeline events. *store.EventRepository satisfies it.
type EventRecorder interface {
	Record(e *store.Event) error
}

// PredictorConfig holds Predictor dependencies.
type PredictorConfig struct {
	Tracker    skeleton.Tracker
	Classifier *pnn.Classifier
	Window     *window.Buffer

	// Poses receives the pose code of every classified window.
	Poses channel.Slot

	// Idle is how long Run waits after a frame without new data.
	Idle time.Duration

	Events EventRecorder
	Status *Status
	Logger *zap.Logger
}

// Predictor turns tracker frames into pose codes.
type Predictor struct {
	config PredictorConfig
	logger *zap.Logger
}

// NewPredictor creates a Predictor. The window length must match the
// classifier's training rows, which is checked per window by the classifier.
func NewPredictor(config PredictorConfig) *Predictor {
	if config.Idle <= 0 {
		config.Idle = 33 * time.Millisecond
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Predictor{config: config, logger: logger}
}

// Step retrieves one tracker frame and, once the window is full, classifies
// it and publishes the pose code. It reports whether a window was classified.
func (p *Predictor) Step(ctx context.Context) (bool, error) {
	_, classified, err := p.step(ctx)
	return classified, err
}

func (p *Predictor) step(ctx context.Context) (fresh, classified bool, err error) {
	frame, err := p.config.Tracker.Retrieve(ctx)
	if err != nil {
		return false, false, fmt.Errorf("retrieve frame: %w", err)
	}
	if !frame.IsNew {
		return false, false, nil
	}
	if len(frame.Bodies) > 0 {
		p.config.Status.SetSkeleton(frame.Bodies[0].Keypoints)
	}
	if !p.config.Status.Enabled() {
		p.config.Window.Reset()
		return true, false, nil
	}
	p.config.Window.AddFrame(frame)
	if !p.config.Window.Full() {
		return true, false, nil
	}
	classified, err = p.classify(ctx)
	return true, classified, err
}

func (p *Predictor) classify(ctx context.Context) (bool, error) {
	raws, err := p.config.Window.Flush()
	if err != nil {
		return false, err
	}
	rows, err := preprocess.Window(raws)
	if err != nil {
		return false, err
	}

	start := time.Now()
	res, err := p.config.Classifier.ClassifyWindow(ctx, rows)
	if err != nil {
		return false, fmt.Errorf("classify window: %w", err)
	}
	p.logger.Debug("window classified",
		zap.Stringer("pose", res.Pose),
		zap.Ints("votes", res.Votes[:]),
		zap.Duration("took", time.Since(start)))

	p.config.Status.SetPose(res.Pose)

	if err := p.config.Poses.Store(ctx, int64(res.Pose)); err != nil {
		// The next window overwrites the slot anyway.
		p.logger.Warn("publish pose failed", zap.Stringer("pose", res.Pose), zap.Error(err))
	}
	if p.config.Events != nil {
		if err := p.config.Events.Record(&store.Event{
			Kind:   store.EventPose,
			Code:   int64(res.Pose),
			Detail: res.Pose.String(),
		}); err != nil {
			p.logger.Warn("record pose event failed", zap.Error(err))
		}
	}
	return true, nil
}

// Run steps the predictor until ctx is done or the tracker is exhausted.
// Frames are pulled as fast as the tracker delivers them.
func (p *Predictor) Run(ctx context.Context) error {
	p.logger.Info("predictor started",
		zap.Int("window", p.config.Window.Size()),
		zap.Stringer("kernel", p.config.Classifier.Kernel()))
	defer p.logger.Info("predictor stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}
		fresh, _, err := p.step(ctx)
		switch {
		case err == nil:
			if !fresh && !sleepCtx(ctx, p.config.Idle) {
				return nil
			}
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		case errors.Is(err, skeleton.ErrReplayDone):
			p.logger.Info("tracker finished")
			return nil
		case errors.Is(err, preprocess.ErrDataRead):
			p.logger.Warn("dropping window", zap.Error(err))
		case errors.Is(err, pnn.ErrDimension):
			return err
		default:
			p.logger.Warn("predictor step failed", zap.Error(err))
			if !sleepCtx(ctx, 100*time.Millisecond) {
				return nil
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
