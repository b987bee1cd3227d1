// Package app wires the pose pipeline: the predictor classifies tracker
// windows into pose codes, the detector turns the pose stream into action
// codes and the driver runs the robot behavior bound to each action. The
// three stages talk only through channel slots, so they run either in one
// process or as separate processes.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/posecue/internal/channel"
	"github.com/ayusman/posecue/internal/config"
	"github.com/ayusman/posecue/internal/dataset"
	"github.com/ayusman/posecue/internal/pnn"
	"github.com/ayusman/posecue/internal/robot"
	"github.com/ayusman/posecue/internal/sequence"
	"github.com/ayusman/posecue/internal/skeleton"
	"github.com/ayusman/posecue/internal/store"
	"github.com/ayusman/posecue/internal/window"
)

// Roles selects the pipeline stages an App runs.
type Roles struct {
	Predict bool
	Detect  bool
	Drive   bool
}

// AllRoles runs the whole pipeline in one process.
var AllRoles = Roles{Predict: true, Detect: true, Drive: true}

// Config holds configuration options for the application.
type Config struct {
	Settings *config.Config
	Store    *store.Store
	Roles    Roles

	// Tracker supplies skeleton frames. Required for the predict role.
	Tracker skeleton.Tracker

	// Status receives live updates. A fresh one is created when nil.
	Status *Status

	Logger *zap.Logger
}

// App owns the pipeline stages and the slots between them.
type App struct {
	config Config
	logger *zap.Logger
	status *Status

	poses    channel.Slot
	actions  channel.Slot
	notifier *pnn.Notifier
	plugins  *robot.Manager

	predictor *Predictor
	detector  *Detector
	driver    *robot.Driver

	closeOnce sync.Once
}

// New builds the stages selected by config.Roles. Adjacent stages in the
// same process share an in-memory slot; a stage bordering another process
// uses the slot kind from the settings.
func New(config Config) (*App, error) {
	if config.Settings == nil {
		return nil, errors.New("settings are required")
	}
	roles := config.Roles
	if !roles.Predict && !roles.Detect && !roles.Drive {
		return nil, errors.New("no pipeline role selected")
	}
	if roles.Predict && config.Tracker == nil {
		return nil, errors.New("predict role needs a tracker")
	}
	if (roles.Predict || roles.Drive) && config.Store == nil {
		return nil, errors.New("store is required")
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	status := config.Status
	if status == nil {
		status = NewStatus(config.Settings.Pipeline.StartEnabled)
	}

	a := &App{
		config: config,
		logger: logger,
		status: status,
	}

	if err := a.openSlots(); err != nil {
		a.Close()
		return nil, err
	}
	if roles.Predict {
		if err := a.buildPredictor(); err != nil {
			a.Close()
			return nil, err
		}
	}
	if roles.Detect {
		a.buildDetector()
	}
	if roles.Drive {
		if err := a.buildDriver(); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *App) openSlots() error {
	s := a.config.Settings.Slots
	roles := a.config.Roles

	var err error
	if roles.Predict || roles.Detect {
		if roles.Predict && roles.Detect {
			a.poses = channel.NewMemorySlot()
		} else {
			a.poses, err = OpenSlot(a.config.Settings, s.PoseKind, s.PoseName, roles.Predict, a.logger)
			if err != nil {
				return fmt.Errorf("open pose slot: %w", err)
			}
		}
	}
	if roles.Detect || roles.Drive {
		if roles.Detect && roles.Drive {
			a.actions = channel.NewMemorySlot()
		} else {
			a.actions, err = OpenSlot(a.config.Settings, s.ActionKind, s.ActionName, roles.Detect, a.logger)
			if err != nil {
				return fmt.Errorf("open action slot: %w", err)
			}
		}
	}
	return nil
}

// OpenSlot opens a slot of the named kind using the connection settings.
func OpenSlot(settings *config.Config, kind, name string, owner bool, logger *zap.Logger) (channel.Slot, error) {
	k, err := channel.ParseKind(kind)
	if err != nil {
		return nil, err
	}
	return channel.Open(channel.Options{
		Kind:     k,
		Name:     name,
		Owner:    owner,
		Broker:   settings.Slots.Broker,
		Username: settings.Slots.Username,
		Password: settings.Slots.Password,
		Timeout:  settings.Slots.Timeout,
		Logger:   logger.Named("slot"),
	})
}

func (a *App) buildPredictor() error {
	p := a.config.Settings.Pipeline

	ts, err := LoadTrainingSet(a.config.Settings, a.config.Store)
	if err != nil {
		return err
	}

	notifyLog := a.logger.Named("transitions")
	a.notifier = pnn.NewNotifier(p.NotifyQueue, func(t pnn.Transition) error {
		notifyLog.Debug("prediction changed inside window",
			zap.Stringer("from", t.From),
			zap.Stringer("to", t.To),
			zap.Int("row", t.Row))
		return nil
	}, notifyLog)

	clf, err := pnn.New(ts, pnn.Config{
		Sigma:    p.Sigma,
		Kernel:   a.config.Settings.KernelValue(),
		Workers:  p.Workers,
		Notifier: a.notifier,
	})
	if err != nil {
		return fmt.Errorf("build classifier: %w", err)
	}
	if clf.Dim() != skeleton.Dim {
		return fmt.Errorf("training vectors have %d features, windows have %d: %w", clf.Dim(), skeleton.Dim, pnn.ErrDimension)
	}

	within, between := clf.Separation()
	a.logger.Info("classifier ready",
		zap.Int("samples", ts.Len()),
		zap.Stringer("kernel", clf.Kernel()),
		zap.Float64("sigma", p.Sigma),
		zap.Float64("within", within),
		zap.Float64("between", between))

	var events EventRecorder
	if p.RecordPoses {
		events = a.config.Store.Events()
	}
	a.predictor = NewPredictor(PredictorConfig{
		Tracker:    a.config.Tracker,
		Classifier: clf,
		Window:     window.New(p.WindowSize, p.MinConfidence),
		Poses:      a.poses,
		Idle:       p.PredictTick,
		Events:     events,
		Status:     a.status,
		Logger:     a.logger.Named("predictor"),
	})
	return nil
}

// LoadTrainingSet reads the training file when one is configured and the
// stored samples otherwise.
func LoadTrainingSet(settings *config.Config, s *store.Store) (pnn.TrainingSet, error) {
	if path := settings.Pipeline.TrainingFile; path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open training file: %w", err)
		}
		defer f.Close()

		samples, _, err := dataset.Import(f, pnn.Standing)
		if err != nil {
			return nil, fmt.Errorf("read training file %s: %w", path, err)
		}
		return dataset.TrainingSet(samples), nil
	}

	ts, err := s.Samples().TrainingSet()
	if err != nil {
		return nil, fmt.Errorf("load training samples: %w", err)
	}
	return ts, nil
}

func (a *App) buildDetector() {
	var events EventRecorder
	if a.config.Store != nil {
		events = a.config.Store.Events()
	}
	log := a.logger.Named("detector")
	a.detector = NewDetector(DetectorConfig{
		Poses: a.poses,
		Watcher: sequence.NewWatcher(sequence.WatcherConfig{
			Rules:     sequence.DefaultRules(),
			Phase:     sequence.PhaseA,
			Publisher: a.actions,
			Logger:    log,
		}),
		Tick:   a.config.Settings.Pipeline.DetectTick,
		Events: events,
		Status: a.status,
		Logger: log,
	})
}

func (a *App) buildDriver() error {
	r := a.config.Settings.Robot
	bindings := a.config.Store.Bindings()

	created, err := bindings.EnsureDefaults(robot.DefaultBindings())
	if err != nil {
		return fmt.Errorf("create default bindings: %w", err)
	}
	if created > 0 {
		a.logger.Info("created default bindings", zap.Int("count", created))
	}

	a.plugins = robot.NewManager(r.PluginDir, a.logger.Named("plugins"))
	if err := a.plugins.Discover(); err != nil {
		return fmt.Errorf("discover plugins: %w", err)
	}

	a.driver = robot.NewDriver(robot.DriverConfig{
		Actions:  a.actions,
		Bindings: bindings,
		Plugins:  a.plugins,
		Runner:   robot.NewExecutor(r.Timeout),
		Tick:     a.config.Settings.Pipeline.DetectTick,
		Logger:   a.logger.Named("driver"),
	})
	return nil
}

// Run runs every selected stage until ctx is done or a stage fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if a.predictor != nil {
		g.Go(func() error { return a.predictor.Run(ctx) })
	}
	if a.detector != nil {
		g.Go(func() error { return a.detector.Run(ctx) })
	}
	if a.driver != nil {
		g.Go(func() error { return a.driver.Run(ctx) })
	}
	return g.Wait()
}

// Close stops notifications and releases the slots and the tracker. Owned
// shared resources are removed.
func (a *App) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		if a.notifier != nil {
			a.notifier.Close()
		}
		for _, slot := range []channel.Slot{a.poses, a.actions} {
			if slot != nil {
				if err := slot.Close(); err != nil {
					errs = append(errs, err)
				}
			}
		}
		if a.config.Tracker != nil {
			if err := a.config.Tracker.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// Status returns the live pipeline state.
func (a *App) Status() *Status {
	return a.status
}

// SetEnabled enables or disables classification.
func (a *App) SetEnabled(enabled bool) {
	a.status.SetEnabled(enabled)
}

// IsEnabled returns whether classification is currently enabled.
func (a *App) IsEnabled() bool {
	return a.status.Enabled()
}

// PluginManager returns the behavior plugin manager, or nil without the drive role.
func (a *App) PluginManager() *robot.Manager {
	return a.plugins
}

// Detector returns the detector stage, or nil without the detect role.
func (a *App) Detector() *Detector {
	return a.detector
}

// Predictor returns the predictor stage, or nil without the predict role.
func (a *App) Predictor() *Predictor {
	return a.predictor
}

// Driver returns the robot driver, or nil without the drive role.
func (a *App) Driver() *robot.Driver {
	return a.driver
}
