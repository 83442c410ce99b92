package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ogura/figex/internal/download"
)

// styles
var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Underline(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func (a *App) View() string {
	switch a.state {
	case stateMenu:
		return a.renderMenu()
	case stateFetching:
		return a.renderFetching()
	case stateSelecting:
		return a.renderSelecting()
	case stateConfirmBulk:
		return a.renderConfirmBulk()
	case stateDownloading:
		return a.renderDownloading()
	case stateSettings:
		return a.renderSettings()
	}
	return ""
}

func (a *App) statusLine() string {
	if a.status == "" {
		return ""
	}
	if a.statusErr {
		return "\n" + errorStyle.Render(a.status)
	}
	return "\n" + a.status
}

func (a *App) renderMenu() string {
	out := titleStyle.Render("Figma Image Exporter") + "\n"
	for i, item := range menuItems {
		marker := " "
		if i == a.menuCursor {
			marker = "▶"
		}
		out += fmt.Sprintf("%s %s\n", marker, item)
	}
	out += subtleStyle.Render("[↑/↓] Move  [enter] Select  [esc] Quit")
	out += a.statusLine()
	return out
}

func (a *App) renderFetching() string {
	out := titleStyle.Render("Fetching image links") + "\n"
	out += fmt.Sprintf("%s resolving %d/%d\n", a.spin.View(), len(a.fetchRows), a.fetchTotal)
	for _, row := range a.fetchRows {
		if row.failed {
			out += fmt.Sprintf("  %-30s %s\n", row.name, errorStyle.Render(row.status))
		} else {
			out += fmt.Sprintf("  %-30s %s\n", row.name, okStyle.Render(row.status))
		}
	}
	out += subtleStyle.Render("[esc] Cancel")
	out += a.statusLine()
	return out
}

func (a *App) renderSelecting() string {
	out := titleStyle.Render("Select images to download") + "\n"
	for i, img := range a.images {
		marker := " "
		if i == a.cursor {
			marker = "▶"
		}
		box := "[ ]"
		if a.checked[i] {
			box = "[x]"
		}
		out += fmt.Sprintf("%s %s %s\n", marker, box, img.Name)
	}
	out += subtleStyle.Render("[space] Toggle  [a] Toggle all  [enter] Download  [esc] Back")
	out += a.statusLine()
	return out
}

func (a *App) renderConfirmBulk() string {
	out := titleStyle.Render("Download all images?") + "\n"
	out += fmt.Sprintf("%d resolved images will be downloaded to %s\n", len(a.images), a.cfg.AssetsDir)
	out += subtleStyle.Render("[y/enter] Download  [n/esc] Cancel")
	out += a.statusLine()
	return out
}

func (a *App) renderDownloading() string {
	done := 0
	for _, row := range a.dlRows {
		if row.status == download.StatusOK || row.status == download.StatusFailed {
			done++
		}
	}
	out := titleStyle.Render("Downloading") + "\n"
	out += fmt.Sprintf("%s %d/%d complete\n", a.spin.View(), done, len(a.dlRows))
	for _, row := range a.dlRows {
		switch row.status {
		case download.StatusOK:
			out += fmt.Sprintf("  %-30s %s %s\n", row.name, okStyle.Render("ok"), subtleStyle.Render(row.localPath))
		case download.StatusFailed:
			out += fmt.Sprintf("  %-30s %s\n", row.name, errorStyle.Render(row.err))
		case download.StatusDownloading:
			out += fmt.Sprintf("  %-30s downloading\n", row.name)
		default:
			out += fmt.Sprintf("  %-30s %s\n", row.name, subtleStyle.Render("queued"))
		}
	}
	out += subtleStyle.Render("[esc] Stop after in-flight")
	out += a.statusLine()
	return out
}

func (a *App) renderSettings() string {
	out := titleStyle.Render("Settings") + "\n"
	for i, field := range settingsFields {
		marker := " "
		if i == a.settingsCursor {
			marker = "▶"
		}
		switch i {
		case fieldSave, fieldBack:
			out += fmt.Sprintf("%s %s\n", marker, field)
		case fieldToken:
			value := a.draft.FigmaToken
			if value == "" {
				value = "(not set)"
			} else if !a.showToken {
				value = strings.Repeat("*", len(value))
			}
			if a.editing && i == a.settingsCursor {
				value = a.inputBuffer + "_"
			}
			out += fmt.Sprintf("%s %-12s %s\n", marker, field+":", value)
		default:
			value := a.draftField(i)
			if a.editing && i == a.settingsCursor {
				value = a.inputBuffer + "_"
			}
			out += fmt.Sprintf("%s %-12s %s\n", marker, field+":", value)
		}
	}
	if a.editing {
		out += subtleStyle.Render("[enter] Apply  [esc] Cancel edit")
	} else {
		out += subtleStyle.Render("[enter] Edit/Select  [v] Toggle token  [esc] Back without saving")
	}
	out += a.statusLine()
	return out
}
