// Package tui drives the interactive session: a single bubbletea model owns
// the menu, selection and settings state, while fetch and download batches
// run off the input loop and report back through messages.
package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/ogura/figex/internal/catalog"
	"github.com/ogura/figex/internal/config"
	"github.com/ogura/figex/internal/download"
)

type sessionState string

const (
	stateMenu        sessionState = "menu"
	stateFetching    sessionState = "fetching"
	stateSelecting   sessionState = "selecting"
	stateConfirmBulk sessionState = "confirmBulk"
	stateDownloading sessionState = "downloading"
	stateSettings    sessionState = "settings"
)

var menuItems = []string{
	"Fetch image links from URLs",
	"Select and download images",
	"Download all images",
	"Settings",
	"Quit",
}

const (
	menuFetch = iota
	menuSelect
	menuDownloadAll
	menuSettings
	menuQuit
)

// settings rows: the four config fields plus Save and Back.
var settingsFields = []string{"Figma Token", "URLs File", "Output File", "Assets Dir", "Save settings", "Back"}

const (
	fieldToken = iota
	fieldURLsFile
	fieldOutputFile
	fieldAssetsDir
	fieldSave
	fieldBack
)

type fetchRow struct {
	name   string
	status string
	failed bool
}

type downloadRow struct {
	name      string
	status    download.Status
	localPath string
	err       string
}

// App is the session controller. It owns the selection state and the live
// progress views; batch work only ever reports back through messages.
type App struct {
	cfg     config.Config
	cfgPath string

	state      sessionState
	menuCursor int
	status     string
	statusErr  bool
	width      int
	height     int
	keys       keyMap
	spin       spinner.Model

	// fetch batch
	fetchRows   []fetchRow
	fetchTotal  int
	fetchEvents chan tea.Msg
	fetchCancel context.CancelFunc

	// selection screen
	images  []catalog.ResolvedImage
	checked []bool
	cursor  int

	// download batch
	dlRows    []downloadRow
	dlEvents  <-chan download.Event
	dlCancel  context.CancelFunc
	dlStopped bool

	// settings editor
	settingsCursor int
	draft          config.Config
	editing        bool
	inputBuffer    string
	showToken      bool
}

// New builds the controller. cfgPath is where the settings screen persists
// its document.
func New(cfg config.Config, cfgPath string) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return &App{
		cfg:     cfg,
		cfgPath: cfgPath,
		state:   stateMenu,
		keys:    newKeyMap(),
		spin:    sp,
	}
}

func (a *App) Init() tea.Cmd {
	return nil
}

func (a *App) setStatus(s string) {
	a.status = s
	a.statusErr = false
}

func (a *App) setError(s string) {
	a.status = s
	a.statusErr = true
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = m.Width
		a.height = m.Height
		return a, nil
	case spinner.TickMsg:
		if a.state != stateFetching && a.state != stateDownloading {
			return a, nil
		}
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(m)
		return a, cmd
	case tea.KeyMsg:
		return a.handleKey(m)
	case fetchStartedMsg:
		if a.state != stateFetching {
			return a, nil
		}
		a.fetchTotal = m.total
		return a, a.listenFetch()
	case fetchItemMsg:
		if a.state != stateFetching {
			return a, nil
		}
		a.fetchRows = append(a.fetchRows, fetchRow(m))
		return a, a.listenFetch()
	case fetchDoneMsg:
		if a.state != stateFetching {
			return a, nil
		}
		return a.handleFetchDone(m)
	case settingsSavedMsg:
		a.cfg = m.cfg
		a.state = stateMenu
		a.setStatus("settings saved")
		return a, nil
	case reportLoadedMsg:
		return a.handleReportLoaded(m)
	case downloadEventMsg:
		return a.handleDownloadEvent(download.Event(m))
	case errMsg:
		a.setError(m.err.Error())
		if a.state == stateFetching || a.state == stateConfirmBulk {
			a.state = stateMenu
		}
		return a, nil
	}
	return a, nil
}

func (a *App) handleKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(m, a.keys.ForceQuit) {
		return a, tea.Quit
	}
	switch a.state {
	case stateMenu:
		return a.handleMenuKey(m)
	case stateFetching:
		if key.Matches(m, a.keys.Cancel) {
			if a.fetchCancel != nil {
				a.fetchCancel()
				a.fetchCancel = nil
			}
			a.state = stateMenu
			a.setStatus("fetch cancelled")
		}
		return a, nil
	case stateSelecting:
		return a.handleSelectingKey(m)
	case stateConfirmBulk:
		return a.handleConfirmKey(m)
	case stateDownloading:
		if key.Matches(m, a.keys.Cancel) && !a.dlStopped {
			if a.dlCancel != nil {
				a.dlCancel()
			}
			a.dlStopped = true
			a.setStatus("cancelling: letting in-flight downloads finish")
		}
		return a, nil
	case stateSettings:
		return a.handleSettingsKey(m)
	}
	return a, nil
}

func (a *App) handleMenuKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(m, a.keys.Up):
		if a.menuCursor > 0 {
			a.menuCursor--
		}
	case key.Matches(m, a.keys.Down):
		if a.menuCursor < len(menuItems)-1 {
			a.menuCursor++
		}
	case key.Matches(m, a.keys.Confirm):
		switch a.menuCursor {
		case menuFetch:
			a.state = stateFetching
			a.status = ""
			a.fetchRows = nil
			a.fetchTotal = 0
			return a, tea.Batch(a.spin.Tick, a.startFetch())
		case menuSelect:
			return a, a.loadReport(false)
		case menuDownloadAll:
			return a, a.loadReport(true)
		case menuSettings:
			a.state = stateSettings
			a.status = ""
			a.draft = a.cfg
			a.settingsCursor = 0
			a.editing = false
			a.showToken = false
		case menuQuit:
			return a, tea.Quit
		}
	case key.Matches(m, a.keys.Cancel):
		return a, tea.Quit
	}
	return a, nil
}

func (a *App) handleSelectingKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(m, a.keys.Up):
		if a.cursor > 0 {
			a.cursor--
		}
	case key.Matches(m, a.keys.Down):
		if a.cursor < len(a.images)-1 {
			a.cursor++
		}
	case key.Matches(m, a.keys.Toggle):
		if len(a.images) > 0 {
			a.checked[a.cursor] = !a.checked[a.cursor]
		}
	case key.Matches(m, a.keys.ToggleAll):
		// any unchecked: check everything; otherwise clear everything
		anyUnchecked := false
		for _, c := range a.checked {
			if !c {
				anyUnchecked = true
				break
			}
		}
		for i := range a.checked {
			a.checked[i] = anyUnchecked
		}
	case key.Matches(m, a.keys.Confirm):
		var picked []catalog.ResolvedImage
		for i, img := range a.images {
			if a.checked[i] {
				picked = append(picked, img)
			}
		}
		if len(picked) == 0 {
			a.setStatus("no images selected")
			return a, nil
		}
		return a, a.startDownload(picked)
	case key.Matches(m, a.keys.Cancel):
		a.state = stateMenu
		a.status = ""
	}
	return a, nil
}

func (a *App) handleConfirmKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(m, a.keys.Confirm), m.String() == "y", m.String() == "Y":
		return a, a.startDownload(a.images)
	case key.Matches(m, a.keys.Cancel), m.String() == "n", m.String() == "N":
		a.state = stateMenu
		a.status = ""
	}
	return a, nil
}

func (a *App) handleSettingsKey(m tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.editing {
		switch m.Type {
		case tea.KeyEsc:
			a.editing = false
			a.inputBuffer = ""
		case tea.KeyEnter:
			a.applyEdit()
		case tea.KeyBackspace, tea.KeyCtrlH, tea.KeyDelete:
			if len(a.inputBuffer) > 0 {
				a.inputBuffer = a.inputBuffer[:len(a.inputBuffer)-1]
			}
		case tea.KeySpace:
			a.inputBuffer += " "
		case tea.KeyRunes:
			a.inputBuffer += string(m.Runes)
		}
		return a, nil
	}
	switch {
	case key.Matches(m, a.keys.Up):
		if a.settingsCursor > 0 {
			a.settingsCursor--
		}
	case key.Matches(m, a.keys.Down):
		if a.settingsCursor < len(settingsFields)-1 {
			a.settingsCursor++
		}
	case m.String() == "v":
		a.showToken = !a.showToken
	case key.Matches(m, a.keys.Confirm):
		switch a.settingsCursor {
		case fieldSave:
			return a, a.saveSettings()
		case fieldBack:
			a.state = stateMenu
			a.status = ""
		default:
			a.editing = true
			a.inputBuffer = a.draftField(a.settingsCursor)
		}
	case key.Matches(m, a.keys.Cancel):
		// unsaved edits die with the draft
		a.state = stateMenu
		a.status = ""
	}
	return a, nil
}

func (a *App) draftField(i int) string {
	switch i {
	case fieldToken:
		return a.draft.FigmaToken
	case fieldURLsFile:
		return a.draft.URLsFile
	case fieldOutputFile:
		return a.draft.OutputFile
	case fieldAssetsDir:
		return a.draft.AssetsDir
	}
	return ""
}

func (a *App) applyEdit() {
	value := a.inputBuffer
	switch a.settingsCursor {
	case fieldToken:
		a.draft.FigmaToken = value
	case fieldURLsFile:
		a.draft.URLsFile = value
	case fieldOutputFile:
		a.draft.OutputFile = value
	case fieldAssetsDir:
		a.draft.AssetsDir = value
	}
	a.editing = false
	a.inputBuffer = ""
}

func (a *App) handleFetchDone(m fetchDoneMsg) (tea.Model, tea.Cmd) {
	a.state = stateMenu
	if a.fetchCancel != nil {
		a.fetchCancel()
		a.fetchCancel = nil
	}
	a.fetchEvents = nil
	if m.fatal != nil {
		a.setError(m.fatal.Error())
		return a, nil
	}
	a.setStatus("fetch complete: " + summaryLine(m.succeeded, m.failed))
	return a, nil
}

func (a *App) handleReportLoaded(m reportLoadedMsg) (tea.Model, tea.Cmd) {
	if m.err != nil {
		a.setError(m.err.Error())
		a.state = stateMenu
		return a, nil
	}
	if len(m.images) == 0 {
		a.setError("no resolved images in the report: run fetch first")
		a.state = stateMenu
		return a, nil
	}
	a.images = m.images
	a.status = ""
	if m.bulk {
		a.state = stateConfirmBulk
		return a, nil
	}
	a.checked = make([]bool, len(a.images))
	a.cursor = 0
	a.state = stateSelecting
	return a, nil
}

func (a *App) handleDownloadEvent(ev download.Event) (tea.Model, tea.Cmd) {
	if ev.Done != nil {
		a.state = stateMenu
		a.dlEvents = nil
		if a.dlCancel != nil {
			a.dlCancel()
			a.dlCancel = nil
		}
		a.setStatus("download complete: " + summaryLine(ev.Done.Succeeded, ev.Done.Failed))
		return a, nil
	}
	for ev.Index >= len(a.dlRows) {
		a.dlRows = append(a.dlRows, downloadRow{})
	}
	a.dlRows[ev.Index] = downloadRow{name: ev.Name, status: ev.Status, localPath: ev.LocalPath, err: ev.Err}
	return a, a.listenDownload()
}
