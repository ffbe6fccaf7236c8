package tray

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/getlantern/systray"
	"github.com/petems/sound-predict/internal/app"
	"github.com/petems/sound-predict/internal/config"
	"github.com/petems/sound-predict/internal/logging"
	"github.com/petems/sound-predict/internal/progress"
	"github.com/petems/sound-predict/internal/recording"
	"github.com/petems/sound-predict/internal/session"
	"github.com/rs/zerolog"
)

const barCells = 10

type UI struct {
	app     *app.App
	cfg     *config.Config
	version string
	commit  string
	log     zerolog.Logger

	mu      sync.Mutex
	ready   bool
	status  session.Status
	width   int
	pending []recording.Entry
	entries map[string]*entryItems

	// Menu items
	mRecord     *systray.MenuItem
	mDevices    *systray.MenuItem
	mRecordings *systray.MenuItem
}

// entryItems is the submenu rendered for one recording
type entryItems struct {
	root    *systray.MenuItem
	play    *systray.MenuItem
	copy    *systray.MenuItem
	predict *systray.MenuItem
	status  *systray.MenuItem
}

func New(application *app.App, cfg *config.Config, version, commit string, log zerolog.Logger) *UI {
	return &UI{
		app:     application,
		cfg:     cfg,
		version: version,
		commit:  commit,
		log:     log,
		entries: make(map[string]*entryItems),
	}
}

// SetApp sets the app reference (for circular dependency resolution)
func (u *UI) SetApp(application *app.App) {
	u.app = application
}

func (u *UI) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		systray.Quit()
	}()
	systray.Run(u.onReady, u.onExit)
	return nil
}

func (u *UI) onReady() {
	systray.SetTooltip("Record a sound and classify it")

	// Build menu
	u.mRecord = systray.AddMenuItem(recordTitle(session.Idle), "Record a short clip")
	systray.AddSeparator()

	u.mRecordings = systray.AddMenuItem("Recordings", "Recordings of this session")
	u.mRecordings.Disable()
	systray.AddSeparator()

	u.mDevices = systray.AddMenuItem("Microphone", "Select audio device")
	u.buildDeviceMenu()

	systray.AddSeparator()
	mFolder := systray.AddMenuItem("Open Recordings Folder", "Show saved recordings")
	mLogs := systray.AddMenuItem("Open Logs", "View application logs")
	mAbout := systray.AddMenuItem("About", "About sound-predict")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	u.mu.Lock()
	u.ready = true
	pending := u.pending
	u.pending = nil
	u.mu.Unlock()

	u.refreshTitle()
	for _, e := range pending {
		u.EntryAppended(e)
	}

	// Event loop
	go u.handleEvents(mFolder, mLogs, mAbout, mQuit)
}

func (u *UI) handleEvents(mFolder, mLogs, mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-u.mRecord.ClickedCh:
			u.app.ToggleRecording()
		case <-mFolder.ClickedCh:
			u.open(u.app.RecordingsDir())
		case <-mLogs.ClickedCh:
			u.open(logging.LogPath())
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

func (u *UI) buildDeviceMenu() {
	// Get devices from app
	devices, err := u.app.ListDevices()
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to list audio devices")
		return
	}

	deviceItems := make(map[string]*systray.MenuItem)

	for _, dev := range devices {
		item := u.mDevices.AddSubMenuItem(dev.Name, "")
		if dev.ID == u.cfg.Audio.DeviceID || (u.cfg.Audio.DeviceID == "" && dev.Default) {
			item.Check()
		}
		deviceItems[dev.ID] = item

		go func(deviceID, deviceName string, menuItem *systray.MenuItem) {
			for {
				<-menuItem.ClickedCh
				if err := u.app.SetDevice(deviceID); err != nil {
					u.log.Warn().Err(err).Str("device", deviceName).Msg("Device not changed")
					continue
				}
				// Uncheck all other items
				for id, itm := range deviceItems {
					if id != deviceID {
						itm.Uncheck()
					}
				}
				menuItem.Check()
				u.log.Info().Str("device", deviceName).Msg("Changed audio device")
			}
		}(dev.ID, dev.Name, item)
	}
}

// Start control, called by the session controller

func (u *UI) EnableStart() {
	if item := u.recordItem(); item != nil {
		item.Enable()
	}
}

func (u *UI) DisableStart() {
	if item := u.recordItem(); item != nil {
		item.Disable()
	}
}

func (u *UI) SetStatus(s session.Status) {
	u.mu.Lock()
	u.status = s
	u.mu.Unlock()

	// The start control doubles as the stop control while recording
	if item := u.recordItem(); item != nil {
		item.SetTitle(recordTitle(s))
		if s == session.Recording {
			item.Enable()
		}
	}
	u.refreshTitle()
}

func (u *UI) SetProgress(width int) {
	u.mu.Lock()
	changed := cellsFor(width) != cellsFor(u.width)
	u.width = width
	u.mu.Unlock()

	// Only redraw when the bar visibly changes
	if changed {
		u.refreshTitle()
	}
}

// recordItem is nil until the menu has been built
func (u *UI) recordItem() *systray.MenuItem {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.ready {
		return nil
	}
	return u.mRecord
}

// Recording list, called by recording.List

func (u *UI) EntryAppended(e recording.Entry) {
	u.mu.Lock()
	if !u.ready {
		u.pending = append(u.pending, e)
		u.mu.Unlock()
		return
	}
	u.mu.Unlock()

	u.mRecordings.Enable()
	items := &entryItems{root: u.mRecordings.AddSubMenuItem(e.Artifact.Filename(), e.Path)}
	items.play = items.root.AddSubMenuItem("Play", "Play this recording")
	items.copy = items.root.AddSubMenuItem("Copy Path", "Copy the file path to the clipboard")
	items.predict = items.root.AddSubMenuItem("Predict", "Upload and classify this recording")
	items.status = items.root.AddSubMenuItem(statusLine(e.Status), "")
	items.status.Disable()

	u.mu.Lock()
	u.entries[e.Artifact.ID()] = items
	u.mu.Unlock()

	go u.handleEntry(e, items)
}

func (u *UI) handleEntry(e recording.Entry, items *entryItems) {
	for {
		select {
		case <-items.play.ClickedCh:
			u.open(e.Path)
		case <-items.copy.ClickedCh:
			if err := clipboard.WriteAll(e.Path); err != nil {
				u.log.Error().Err(err).Msg("Failed to write clipboard")
			}
		case <-items.predict.ClickedCh:
			if err := u.app.Predict(e.Artifact.ID()); err != nil {
				u.log.Error().Err(err).Msg("Predict failed")
			}
		}
	}
}

func (u *UI) StatusChanged(id string, s recording.Status) {
	u.mu.Lock()
	items, ok := u.entries[id]
	u.mu.Unlock()
	if !ok {
		return
	}
	items.status.SetTitle(statusLine(s))
}

func (u *UI) open(path string) {
	name, args := openCommand(runtime.GOOS, path)
	if err := exec.Command(name, args...).Start(); err != nil {
		u.log.Error().Err(err).Str("path", path).Msg("Failed to open")
	}
}

func (u *UI) showAbout() {
	count := len(u.app.Recordings())
	u.log.Info().
		Str("version", u.version).
		Str("commit", u.commit).
		Str("base_url", u.cfg.BaseURL).
		Int("recordings", count).
		Msg("About sound-predict")
	fmt.Printf("sound-predict %s (%s)\nPredicting against %s\n%d recording(s) this session\n", u.version, u.commit, u.cfg.BaseURL, count)
}

func (u *UI) onExit() {
	// Cleanup
}

func (u *UI) refreshTitle() {
	u.mu.Lock()
	status, width, ready := u.status, u.width, u.ready
	u.mu.Unlock()
	if !ready {
		return
	}
	systray.SetTitle(title(status, width))
}

// recordTitle is the label of the record item for a session status
func recordTitle(status session.Status) string {
	if status == session.Recording {
		return "Stop"
	}
	return "Record"
}

// title renders the tray title: microphone, status emoji and, while
// recording, the progress bar
func title(status session.Status, width int) string {
	t := fmt.Sprintf("🎤 %s", emojiForStatus(status))
	if status == session.Recording {
		t += " " + progressBar(width)
	}
	return t
}

// emojiForStatus returns the appropriate status emoji
func emojiForStatus(status session.Status) string {
	switch status {
	case session.Recording:
		return "🔴" // Red - recording
	case session.Requesting, session.Stopped:
		return "🟡" // Yellow - waiting on the device
	default:
		return "🟢" // Green - ready/idle
	}
}

func cellsFor(width int) int {
	if width < 0 {
		width = 0
	}
	if width > progress.Ceiling {
		width = progress.Ceiling
	}
	return width * barCells / progress.Ceiling
}

// progressBar maps a width in [0, progress.Ceiling] onto a fixed-size bar
func progressBar(width int) string {
	filled := cellsFor(width)
	return strings.Repeat("▮", filled) + strings.Repeat("▯", barCells-filled)
}

func statusLine(s recording.Status) string {
	if s.Text == "" {
		return "–"
	}
	switch s.Tone {
	case recording.ToneSuccess:
		return "✅ " + s.Text
	case recording.ToneError:
		return "⚠️ " + s.Text
	default:
		return s.Text
	}
}

// openCommand returns the platform opener for a file or folder
func openCommand(goos, path string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{path}
	case "windows":
		return "cmd", []string{"/c", "start", "", path}
	default:
		return "xdg-open", []string{path}
	}
}
