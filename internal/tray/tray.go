// Package tray provides a system tray menu for controlling facewatch.
package tray

import (
	"log/slog"
	"sync"

	"github.com/getlantern/systray"
)

// Actions are the operations the tray menu triggers. Nil actions are
// ignored.
type Actions struct {
	// Active reports whether a session is running. The session may be
	// started or stopped outside the tray, so the toggle asks before acting.
	Active func() bool

	Start     func() error
	Stop      func() error
	Capture   func() error
	Dashboard func()
	Quit      func()
}

// Tray represents the system tray application.
type Tray struct {
	actions Actions
	logger  *slog.Logger

	mu     sync.RWMutex
	active bool

	// Menu items stored for later updates
	menuToggle *systray.MenuItem
	menuStatus *systray.MenuItem
}

// New creates a new Tray with the session inactive.
func New(actions Actions, logger *slog.Logger) *Tray {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tray{
		actions: actions,
		logger:  logger.With("component", "tray"),
	}
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray from outside the menu, e.g. on SIGINT.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("Facewatch")
	systray.SetTooltip("Facewatch live face detection")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.active), "Start or stop face detection")
	systray.AddSeparator()

	t.menuStatus = systray.AddMenuItem(statusTitle(t.active), "Session state")
	t.menuStatus.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuCapture := systray.AddMenuItem("Capture Snapshot", "Save the current camera image")
	menuDashboard := systray.AddMenuItem("Open Dashboard...", "Open the live preview in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Facewatch")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuCapture.ClickedCh:
				t.handleCapture()
			case <-menuDashboard.ClickedCh:
				t.handleDashboard()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func toggleTitle(active bool) string {
	if active {
		return "■ Stop Detection"
	}
	return "▶ Start Detection"
}

func statusTitle(active bool) string {
	if active {
		return "Status: active"
	}
	return "Status: idle"
}

// handleToggle starts or stops the session depending on the current state.
func (t *Tray) handleToggle() {
	active := t.sessionActive()

	fn := t.actions.Start
	if active {
		fn = t.actions.Stop
	}
	if fn == nil {
		return
	}

	// Call outside the lock: Start blocks while the camera opens.
	err := fn()
	if err != nil {
		t.logger.Error("tray action failed", "stop", active, "error", err)
	}

	if t.actions.Active != nil {
		t.SetActive(t.actions.Active())
		return
	}
	// A failed stop still leaves the session stopped.
	if err == nil || active {
		t.SetActive(!active)
	}
}

// sessionActive prefers the session's own state over the tray's copy.
func (t *Tray) sessionActive() bool {
	if t.actions.Active != nil {
		active := t.actions.Active()
		t.SetActive(active)
		return active
	}
	return t.IsActive()
}

func (t *Tray) handleCapture() {
	if t.actions.Capture == nil {
		return
	}
	if err := t.actions.Capture(); err != nil {
		t.logger.Warn("snapshot failed", "error", err)
	}
}

func (t *Tray) handleDashboard() {
	if t.actions.Dashboard != nil {
		t.actions.Dashboard()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	if t.actions.Quit != nil {
		t.actions.Quit()
	}

	systray.Quit()
}

// SetActive updates the menu to reflect the session state.
func (t *Tray) SetActive(active bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.active = active
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(active))
	}
	if t.menuStatus != nil {
		t.menuStatus.SetTitle(statusTitle(active))
	}
}

// IsActive returns whether the tray believes a session is running.
func (t *Tray) IsActive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active
}
