package robot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/posecue/internal/channel"
	"github.com/ayusman/posecue/internal/sequence"
	"github.com/ayusman/posecue/internal/store"
)

// DefaultPlugin is the plugin the default bindings point at.
const DefaultPlugin = "behavior-log"

// DefaultBindings maps both stand cycles to standing up and the double
// one-hand stand to sitting down.
func DefaultBindings() []store.Binding {
	return []store.Binding{
		{Action: int64(sequence.ActionStandCycle), PluginName: DefaultPlugin, Behavior: BehaviorStand, Enabled: true},
		{Action: int64(sequence.ActionDoubleOneHandStand), PluginName: DefaultPlugin, Behavior: BehaviorSit, Enabled: true},
		{Action: int64(sequence.ActionStandCycleAlt), PluginName: DefaultPlugin, Behavior: BehaviorStand, Enabled: true},
	}
}

// BindingSource looks up the binding for an action code. It returns nil, nil
// when nothing is bound.
type BindingSource interface {
	GetByAction(action int64) (*store.Binding, error)
}

// Runner executes a plugin request.
type Runner interface {
	Execute(ctx context.Context, plugin *Plugin, req *Request) (*Response, error)
}

// DriverConfig holds Driver dependencies.
type DriverConfig struct {
	Actions  channel.Slot
	Bindings BindingSource
	Plugins  *Manager
	Runner   Runner
	Tick     time.Duration
	Logger   *zap.Logger
	// OnBehavior is called after each successful behavior. Optional.
	OnBehavior func(action int64, binding *store.Binding)
}

// Driver polls the action slot and runs the bound behavior whenever the
// action code changes.
type Driver struct {
	config DriverConfig
	logger *zap.Logger

	mu      sync.Mutex
	prev    int64
	hasPrev bool
}

// NewDriver creates a Driver.
func NewDriver(config DriverConfig) *Driver {
	if config.Tick <= 0 {
		config.Tick = 50 * time.Millisecond
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{config: config, logger: logger}
}

// Step reads the action slot once. It reports whether a behavior ran.
// A code equal to the previous one, code 0 and an empty slot do nothing.
func (d *Driver) Step(ctx context.Context) (bool, error) {
	v, err := d.config.Actions.TryLoad()
	if errors.Is(err, channel.ErrEmpty) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read action: %w", err)
	}

	d.mu.Lock()
	changed := !d.hasPrev || v != d.prev
	d.prev = v
	d.hasPrev = true
	d.mu.Unlock()

	if !changed || v == int64(sequence.ActionNone) {
		return false, nil
	}
	return d.perform(ctx, v)
}

func (d *Driver) perform(ctx context.Context, action int64) (bool, error) {
	log := d.logger.With(zap.Stringer("action", sequence.Action(action)))

	binding, err := d.config.Bindings.GetByAction(action)
	if err != nil {
		return false, fmt.Errorf("look up binding: %w", err)
	}
	if binding == nil || !binding.Enabled {
		log.Info("no enabled binding, ignoring action")
		return false, nil
	}

	plugin, err := d.config.Plugins.Get(binding.PluginName)
	if err != nil {
		return false, fmt.Errorf("binding %s: %s: %w", binding.ID, binding.PluginName, err)
	}
	if !plugin.Manifest.Supports(binding.Behavior) {
		return false, fmt.Errorf("plugin %s does not implement %q", plugin.Manifest.Name, binding.Behavior)
	}

	resp, err := d.config.Runner.Execute(ctx, plugin, &Request{
		Behavior: binding.Behavior,
		Action:   action,
		Config:   binding.Config,
	})
	if err != nil {
		return false, err
	}
	if !resp.Success {
		return false, fmt.Errorf("behavior %s failed: %s", binding.Behavior, resp.Error)
	}

	log.Info("behavior executed", zap.String("behavior", binding.Behavior), zap.String("plugin", plugin.Manifest.Name))
	if d.config.OnBehavior != nil {
		d.config.OnBehavior(action, binding)
	}
	return true, nil
}

// Run steps the driver on every tick until ctx is done.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.config.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := d.Step(ctx); err != nil {
				d.logger.Warn("driver step failed", zap.Error(err))
			}
		}
	}
}
