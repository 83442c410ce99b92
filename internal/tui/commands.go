package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ogura/figex/internal/catalog"
	"github.com/ogura/figex/internal/config"
	"github.com/ogura/figex/internal/download"
	"github.com/ogura/figex/internal/figma"
)

type errMsg struct{ err error }

type fetchStartedMsg struct{ total int }

type fetchItemMsg fetchRow

type fetchDoneMsg struct {
	succeeded int
	failed    int
	fatal     error
}

type reportLoadedMsg struct {
	images []catalog.ResolvedImage
	bulk   bool
	err    error
}

type downloadEventMsg download.Event

type settingsSavedMsg struct{ cfg config.Config }

// startFetch kicks off the resolve batch on its own goroutine. Progress
// flows back over a channel the controller drains one message per Cmd.
func (a *App) startFetch() tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	a.fetchCancel = cancel
	ch := make(chan tea.Msg)
	a.fetchEvents = ch
	go runFetch(ctx, a.cfg, figma.NewClient(a.cfg.FigmaToken), ch)
	return a.listenFetch()
}

func (a *App) listenFetch() tea.Cmd {
	ch := a.fetchEvents
	if ch == nil {
		return nil
	}
	return func() tea.Msg { return <-ch }
}

// runFetch resolves every catalogue entry in order and persists the report.
// An auth failure aborts the batch; every other failure is recorded per
// entry and the batch continues.
func runFetch(ctx context.Context, cfg config.Config, client *figma.Client, ch chan<- tea.Msg) {
	defer close(ch)

	send := func(msg tea.Msg) bool {
		select {
		case ch <- msg:
			return true
		case <-ctx.Done():
			return false
		}
	}

	entries, err := catalog.LoadLinks(cfg.URLsFile)
	if err != nil {
		send(fetchDoneMsg{fatal: err})
		return
	}
	if !send(fetchStartedMsg{total: len(entries)}) {
		return
	}

	report := make([]catalog.ResolvedImage, 0, len(entries))
	var succeeded, failed int

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		img := catalog.ResolvedImage{Name: entry.Name}

		ref, err := figma.ParseReference(entry.URL)
		if err != nil {
			img.Status = catalog.StatusFailed
			img.Error = err.Error()
			failed++
			report = append(report, img)
			if !send(fetchItemMsg{name: entry.Name, status: err.Error(), failed: true}) {
				return
			}
			continue
		}
		img.FileKey = ref.FileKey
		img.NodeID = ref.NodeID

		imageURL, err := client.ResolveImage(ctx, ref)
		if err != nil {
			var authErr *figma.AuthError
			if errors.As(err, &authErr) {
				img.Status = catalog.StatusFailed
				img.Error = err.Error()
				report = append(report, img)
				if saveErr := catalog.SaveReport(cfg.OutputFile, report); saveErr != nil {
					send(fetchDoneMsg{fatal: saveErr})
					return
				}
				send(fetchDoneMsg{fatal: fmt.Errorf("aborting batch: %w", err)})
				return
			}
			img.Status = catalog.StatusFailed
			img.Error = err.Error()
			failed++
			report = append(report, img)
			if !send(fetchItemMsg{name: entry.Name, status: err.Error(), failed: true}) {
				return
			}
			continue
		}

		img.Status = catalog.StatusResolved
		img.ImageURL = imageURL
		succeeded++
		report = append(report, img)
		if !send(fetchItemMsg{name: entry.Name, status: "resolved"}) {
			return
		}
	}

	if ctx.Err() != nil {
		return
	}
	if err := catalog.SaveReport(cfg.OutputFile, report); err != nil {
		send(fetchDoneMsg{fatal: err})
		return
	}
	send(fetchDoneMsg{succeeded: succeeded, failed: failed})
}

// loadReport reads the persisted report and keeps only entries with a live
// URL. bulk routes the result to the confirm screen instead of selection.
func (a *App) loadReport(bulk bool) tea.Cmd {
	path := a.cfg.OutputFile
	return func() tea.Msg {
		images, err := catalog.LoadReport(path)
		if err != nil {
			return reportLoadedMsg{bulk: bulk, err: err}
		}
		return reportLoadedMsg{images: catalog.Resolved(images), bulk: bulk}
	}
}

func (a *App) startDownload(items []catalog.ResolvedImage) tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	a.dlCancel = cancel
	a.dlStopped = false
	a.dlRows = make([]downloadRow, len(items))
	for i, it := range items {
		a.dlRows[i] = downloadRow{name: it.Name, status: download.StatusQueued}
	}

	mgr := download.NewManager(a.cfg.AssetsDir)
	a.dlEvents = mgr.Run(ctx, items)
	a.state = stateDownloading
	a.status = ""
	return tea.Batch(a.spin.Tick, a.listenDownload())
}

func (a *App) listenDownload() tea.Cmd {
	ch := a.dlEvents
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return downloadEventMsg(ev)
	}
}

func (a *App) saveSettings() tea.Cmd {
	draft := a.draft
	path := a.cfgPath
	return func() tea.Msg {
		if err := config.Save(path, draft); err != nil {
			return errMsg{err}
		}
		return settingsSavedMsg{cfg: draft}
	}
}

func summaryLine(succeeded, failed int) string {
	return fmt.Sprintf("%d succeeded, %d failed", succeeded, failed)
}
