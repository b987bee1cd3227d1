// Package tray shows the live pose and action in the desktop system tray and
// lets the user pause classification.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
	"go.uber.org/zap"

	"github.com/ayusman/posecue/internal/app"
)

// Tray mirrors an app.Status in the system tray menu.
type Tray struct {
	status *app.Status
	logger *zap.Logger

	mu         sync.Mutex
	onSettings func()
	onQuit     func()
	cancel     func()

	menuToggle *systray.MenuItem
	menuPose   *systray.MenuItem
	menuAction *systray.MenuItem
}

// New creates a Tray for status.
func New(status *app.Status, logger *zap.Logger) *Tray {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tray{status: status, logger: logger}
}

// OnSettings sets the callback for the settings menu item.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnQuit sets the callback run before the tray exits.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray. It blocks until Quit is called and must run
// on the main goroutine.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("posecue")
	systray.SetTooltip("posecue pose sequence detector")

	snap := t.status.Snapshot()

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(snap.Enabled), "Pause or resume pose classification")
	systray.AddSeparator()
	t.menuPose = systray.AddMenuItem(poseTitle(snap.Pose), "Last classified pose")
	t.menuPose.Disable()
	t.menuAction = systray.AddMenuItem(actionTitle(snap.Action), "Last detected action")
	t.menuAction.Disable()
	t.mu.Unlock()

	systray.AddSeparator()
	menuSettings := systray.AddMenuItem("Open Settings...", "Open settings in browser")
	systray.AddSeparator()
	menuQuit := systray.AddMenuItem("Quit", "Quit posecue")

	cancel := t.status.Subscribe(t.apply)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.status.SetEnabled(!t.status.Enabled())
			case <-menuSettings.ClickedCh:
				t.handleSettings()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// apply updates the menu for a status change.
func (t *Tray) apply(u app.Update) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch u.Kind {
	case app.UpdateEnabled:
		if t.menuToggle != nil {
			t.menuToggle.SetTitle(toggleTitle(u.Code == 1))
		}
	case app.UpdatePose:
		if t.menuPose != nil {
			t.menuPose.SetTitle(poseTitle(u.Name))
		}
	case app.UpdateAction:
		if t.menuAction != nil {
			t.menuAction.SetTitle(actionTitle(u.Name))
		}
		t.logger.Debug("action shown in tray", zap.String("action", u.Name))
	}
}

func (t *Tray) handleSettings() {
	t.mu.Lock()
	callback := t.onSettings
	t.mu.Unlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.Lock()
	callback := t.onQuit
	t.mu.Unlock()

	if callback != nil {
		callback()
	}
	systray.Quit()
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Classifying"
	}
	return "○ Paused"
}

func poseTitle(name string) string {
	if name == "" {
		name = "none"
	}
	return "Pose: " + name
}

func actionTitle(name string) string {
	if name == "" {
		name = "none"
	}
	return "Action: " + name
}
