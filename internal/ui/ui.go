package ui

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/snx/internal/models"
	"github.com/desertthunder/snx/internal/session"
	"github.com/desertthunder/snx/internal/shared"
	"github.com/desertthunder/snx/internal/tasks"
)

// ViewState names the screen the TUI is showing.
type ViewState int

const (
	LibraryView ViewState = iota
	TrackListView
	ConfirmView
	SyncView
	ResultView
)

// Model is the bubbletea state for the library browser.
type Model struct {
	ctx            context.Context
	view           ViewState
	engine         *tasks.LibraryEngine
	sess           *session.Session
	width          int
	height         int
	playlistList   list.Model
	snapshot       *tasks.LibrarySnapshot
	trackList      list.Model
	selectedExport *models.PlaylistExport
	force          bool
	progressChan   chan tasks.ProgressUpdate
	progress       tasks.ProgressUpdate
	result         *tasks.SyncResult
	err            error
	help           help.Model
	keys           keyMap
}

// NewModel builds the initial model around an engine and the signed-in session.
func NewModel(ctx context.Context, engine *tasks.LibraryEngine, sess *session.Session) *Model {
	return &Model{
		ctx:    ctx,
		view:   LibraryView,
		engine: engine,
		sess:   sess,
		help:   help.New(),
		keys:   newKeyMap(),
	}
}

// Init loads the stored library snapshot.
func (m *Model) Init() tea.Cmd {
	return m.loadSnapshot()
}

// Update routes messages to the active view's key handler and folds engine
// results back into the model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.playlistList.Width() == 0 {
			m.playlistList.SetSize(msg.Width-2, msg.Height-6)
		}
		if m.trackList.Width() == 0 {
			m.trackList.SetSize(msg.Width-2, msg.Height-6)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case LibraryView:
			return m.handleLibraryKeys(msg)
		case TrackListView:
			return m.handleTrackListKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case snapshotMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.snapshot = msg.snapshot
		items := make([]list.Item, len(msg.snapshot.Playlists))
		for i, export := range msg.snapshot.Playlists {
			items[i] = playlistItem{export: export}
		}
		m.playlistList = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.playlistList.Title = "Synced Library"
		m.playlistList.SetSize(m.width-2, m.height-6)
		m.view = LibraryView
		return m, nil

	case progressUpdateMsg:
		m.progress = tasks.ProgressUpdate(msg)
		return m, m.waitForProgress()

	case syncCompleteMsg:
		m.result = msg.result
		m.err = msg.err
		m.view = ResultView
		m.progressChan = nil
		return m, nil
	}

	return m.updateLists(msg)
}

// View renders the active screen.
func (m *Model) View() string {
	if m.err != nil && m.view != ResultView {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case LibraryView:
		return m.renderLibrary()
	case TrackListView:
		return m.renderTrackList()
	case ConfirmView:
		return m.renderConfirm()
	case SyncView:
		return m.renderSync()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleLibraryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "s":
		m.force = false
		m.view = ConfirmView
		return m, nil
	case "f":
		m.force = true
		m.view = ConfirmView
		return m, nil
	case "enter":
		selected := m.playlistList.SelectedItem()
		if selected != nil {
			if item, ok := selected.(playlistItem); ok {
				m.openPlaylist(item.export)
				return m, nil
			}
		}
	}

	var cmd tea.Cmd
	m.playlistList, cmd = m.playlistList.Update(msg)
	return m, cmd
}

func (m *Model) handleTrackListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.view = LibraryView
		return m, nil
	}

	var cmd tea.Cmd
	m.trackList, cmd = m.trackList.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "n", "esc":
		m.view = LibraryView
		return m, nil
	case "y":
		m.view = SyncView
		return m, m.startSync()
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "r":
		m.view = LibraryView
		m.selectedExport = nil
		m.result = nil
		m.err = nil
		m.force = false
		return m, m.loadSnapshot()
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case LibraryView:
		m.playlistList, cmd = m.playlistList.Update(msg)
	case TrackListView:
		m.trackList, cmd = m.trackList.Update(msg)
	}
	return m, cmd
}

// openPlaylist builds the track list for a stored playlist. The snapshot
// already carries every track row, so no fetch is needed.
func (m *Model) openPlaylist(export *models.PlaylistExport) {
	m.selectedExport = export
	items := make([]list.Item, len(export.Tracks))
	for i, track := range export.Tracks {
		items[i] = trackItem{track: track}
	}
	m.trackList = list.New(items, list.NewDefaultDelegate(), 0, 0)
	m.trackList.Title = fmt.Sprintf("Tracks in '%s'", export.Playlist.Name())
	m.trackList.SetSize(m.width-2, m.height-6)
	m.view = TrackListView
}

// loadSnapshot reads the stored library. A user who has never synced gets an
// empty library rather than an error screen.
func (m *Model) loadSnapshot() tea.Cmd {
	return func() tea.Msg {
		snapshot, err := m.engine.Snapshot(m.ctx, m.sess.Provider, m.sess.UserID)
		if errors.Is(err, shared.ErrUserNotFound) {
			return snapshotMsg{snapshot: &tasks.LibrarySnapshot{}}
		}
		return snapshotMsg{snapshot: snapshot, err: err}
	}
}

func (m *Model) startSync() tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 64)

	go func(progress chan tasks.ProgressUpdate) {
		result, err := m.engine.Sync(m.ctx, m.sess, tasks.SyncOptions{Force: m.force}, progress)
		m.result = result
		m.err = err
		close(progress)
	}(m.progressChan)

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	return func() tea.Msg {
		if m.progressChan == nil {
			return syncCompleteMsg{result: m.result, err: m.err}
		}

		update, ok := <-m.progressChan
		if !ok {
			return syncCompleteMsg{result: m.result, err: m.err}
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderLibrary() string {
	if m.snapshot == nil || len(m.snapshot.Playlists) == 0 {
		title := styles.title.Render("Synced Library")
		body := "No playlists synced yet."
		helpView := m.help.ShortHelpView([]key.Binding{m.keys.sync, m.keys.quit})
		return fmt.Sprintf("%s\n%s\n\n%s", title, body, helpView)
	}

	helpKeys := []key.Binding{m.keys.enter, m.keys.sync, m.keys.force, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.playlistList.View(), helpView)
}

func (m *Model) renderTrackList() string {
	helpKeys := []key.Binding{m.keys.back, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.trackList.View(), helpView)
}

func (m *Model) renderConfirm() string {
	action := "Sync"
	detail := "Playlists already in the store are skipped."
	if m.force {
		action = "Force sync"
		detail = "Every playlist is re-fetched and its contents replaced."
	}

	title := styles.title.Render(fmt.Sprintf("%s your %s library?", action, m.sess.Provider))

	helpKeys := []key.Binding{m.keys.yes, m.keys.no, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s\n\n%s", title, detail, helpView)
}

func (m *Model) renderSync() string {
	title := styles.title.Render("Syncing Library")

	var phase string
	switch m.progress.Phase {
	case tasks.FetchProfile:
		phase = "Fetching profile..."
	case tasks.FetchPlaylists:
		phase = "Fetching playlists..."
	case tasks.SyncPlaylists:
		phase = fmt.Sprintf("Syncing playlists (%d/%d)", m.progress.Step, m.progress.Total)
	case tasks.SyncSaved:
		phase = "Syncing saved tracks..."
	case tasks.Assemble:
		phase = "Assembling library..."
	default:
		phase = "Working..."
	}

	return fmt.Sprintf("%s\n\n%s\n%s", title, phase, m.progress.Message)
}

func (m *Model) renderResult() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Sync failed: %v\n\nPress r to retry, q to quit", m.err))
	}

	if m.result == nil {
		return styles.err.Render("No result available\n\nPress r to retry, q to quit")
	}

	title := styles.ok.Render("✓ Sync Complete")
	info := fmt.Sprintf(
		"\nPlaylists: %d synced, %d skipped, %d filtered\nTracks upserted: %d\n",
		m.result.PlaylistsSynced,
		m.result.PlaylistsSkipped,
		m.result.PlaylistsFiltered,
		m.result.TracksUpserted,
	)
	if m.result.SavedTracks > 0 {
		info += fmt.Sprintf("Saved tracks: %d\n", m.result.SavedTracks)
	}

	helpKeys := []key.Binding{m.keys.refresh, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s%s\n%s", title, info, helpView)
}
