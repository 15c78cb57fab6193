package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lepinkainen/search-forge/pkg/cache"
	"github.com/lepinkainen/search-forge/pkg/paging"
	"github.com/lepinkainen/search-forge/pkg/searchtypes"
)

// ViewMode represents the current view mode
type ViewMode int

// View modes for the preview TUI
const (
	ListViewMode ViewMode = iota
	DetailViewMode
	RawViewMode
)

// Pager supplies pages. *paging.Pager implements it.
type Pager interface {
	Next(ctx context.Context) (paging.Page, error)
	HasMore() bool
	Query() string
}

// Favorites flips and re-reads favorite flags. *paging.Orchestrator implements it.
type Favorites interface {
	ToggleFavorite(ctx context.Context, id string) (bool, error)
	FavoriteStates(ctx context.Context, query string) (map[string]bool, error)
}

type pageLoadedMsg struct {
	page paging.Page
	err  error
}

type favoriteToggledMsg struct {
	id    string
	state bool
	err   error
}

type favoriteStatesMsg struct {
	states map[string]bool
	err    error
}

type cacheChangedMsg struct {
	change cache.Change
	ok     bool
}

// Model represents the Bubble Tea model for the preview TUI
type Model struct {
	ctx       context.Context
	pager     Pager
	favorites Favorites
	changes   <-chan cache.Change
	now       func() time.Time

	items         []searchtypes.SearchResult
	cursor        int
	viewMode      ViewMode
	loading       bool
	status        string
	width         int
	height        int
	selectedIndex int // Index of the item currently being viewed in detail
}

// NewModel creates a new preview model. changes may be nil; when set,
// favorite flags are refreshed whenever the cache reports a change for the
// query.
func NewModel(ctx context.Context, pager Pager, favorites Favorites, changes <-chan cache.Change) Model {
	return Model{
		ctx:           ctx,
		pager:         pager,
		favorites:     favorites,
		changes:       changes,
		now:           time.Now,
		viewMode:      ListViewMode,
		loading:       true,
		selectedIndex: -1,
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadNext(), m.waitForChange())
}

func (m Model) loadNext() tea.Cmd {
	return func() tea.Msg {
		page, err := m.pager.Next(m.ctx)
		return pageLoadedMsg{page: page, err: err}
	}
}

func (m Model) waitForChange() tea.Cmd {
	if m.changes == nil {
		return nil
	}
	return func() tea.Msg {
		change, ok := <-m.changes
		return cacheChangedMsg{change: change, ok: ok}
	}
}

func (m Model) toggleFavorite(id string) tea.Cmd {
	return func() tea.Msg {
		state, err := m.favorites.ToggleFavorite(m.ctx, id)
		return favoriteToggledMsg{id: id, state: state, err: err}
	}
}

func (m Model) refreshFavorites() tea.Cmd {
	return func() tea.Msg {
		states, err := m.favorites.FavoriteStates(m.ctx, m.pager.Query())
		return favoriteStatesMsg{states: states, err: err}
	}
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case pageLoadedMsg:
		m.loading = false
		switch {
		case errors.Is(msg.err, paging.ErrNoMorePages):
			m.status = "no more results"
		case msg.err != nil:
			slog.Debug("Preview page load failed", "error", msg.err)
			m.status = "could not load this page"
		default:
			m.items = append(m.items, msg.page.Items...)
			m.status = ""
		}
		return m, nil

	case favoriteToggledMsg:
		switch {
		case errors.Is(msg.err, paging.ErrResultNotFound):
			// Live duplicates of an already cached thumbnail are never stored.
			m.status = "this result is not cached, reload the search to favorite it"
			return m, nil
		case msg.err != nil:
			m.status = fmt.Sprintf("could not update favorite: %v", msg.err)
			return m, nil
		}
		m.setFavorite(msg.id, msg.state)
		return m, nil

	case favoriteStatesMsg:
		if msg.err != nil {
			slog.Debug("Preview favorite refresh failed", "error", msg.err)
			return m, nil
		}
		for i := range m.items {
			m.items[i].IsFavorite = msg.states[m.items[i].ID]
		}
		return m, nil

	case cacheChangedMsg:
		if !msg.ok {
			return m, nil
		}
		cmd := m.waitForChange()
		if msg.change.Query == m.pager.Query() && m.favorites != nil {
			cmd = tea.Batch(cmd, m.refreshFavorites())
		}
		return m, cmd

	case tea.KeyMsg:
		switch m.viewMode {
		case ListViewMode:
			return m.updateListView(msg)
		case DetailViewMode, RawViewMode:
			return m.updateDetailView(msg)
		}
	}

	return m, nil
}

func (m *Model) setFavorite(id string, state bool) {
	for i := range m.items {
		if m.items[i].ID == id {
			m.items[i].IsFavorite = state
		}
	}
}

// updateListView handles key presses in list view mode
func (m Model) updateListView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}

	case "n":
		if m.loading || !m.pager.HasMore() {
			return m, nil
		}
		m.loading = true
		return m, m.loadNext()

	case "f":
		if m.favorites == nil || len(m.items) == 0 {
			return m, nil
		}
		return m, m.toggleFavorite(m.items[m.cursor].ID)

	case "enter":
		if len(m.items) == 0 {
			return m, nil
		}
		m.selectedIndex = m.cursor
		m.viewMode = DetailViewMode
	}

	return m, nil
}

// updateDetailView handles key presses in detail/raw view modes
func (m Model) updateDetailView(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "esc":
		m.viewMode = ListViewMode

	case "f":
		if m.favorites != nil && m.selectedIndex >= 0 && m.selectedIndex < len(m.items) {
			return m, m.toggleFavorite(m.items[m.selectedIndex].ID)
		}

	case "y":
		if m.viewMode == DetailViewMode {
			m.viewMode = RawViewMode
		} else {
			m.viewMode = DetailViewMode
		}
	}

	return m, nil
}

// View implements tea.Model
func (m Model) View() string {
	if m.viewMode != ListViewMode && (m.selectedIndex < 0 || m.selectedIndex >= len(m.items)) {
		return "No item selected"
	}

	switch m.viewMode {
	case ListViewMode:
		return m.renderListView()
	case DetailViewMode:
		return m.renderItemView(FormatDetailedItem(m.items[m.selectedIndex], m.now()), "esc: back to list • f: favorite • y: YAML view • q: quit")
	case RawViewMode:
		return m.renderItemView(FormatRawItem(m.items[m.selectedIndex]), "esc: back to list • f: favorite • y: detail view • q: quit")
	}
	return ""
}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))
	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("12")).
			Bold(true)
	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))
)

// renderListView renders the list view
func (m Model) renderListView() string {
	var b strings.Builder

	header := fmt.Sprintf("Search - %s (%d results)", m.pager.Query(), len(m.items))
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n\n")

	visibleStart := 0
	visibleEnd := len(m.items)

	// Calculate visible range if height is set
	if m.height > 0 {
		maxVisible := m.height - 7 // Account for header, status, footer, and padding
		if maxVisible < 1 {
			maxVisible = 1
		}
		if maxVisible < len(m.items) {
			// Keep cursor in the middle of the screen when possible
			visibleStart = max(m.cursor-maxVisible/2, 0)
			visibleEnd = visibleStart + maxVisible
			if visibleEnd > len(m.items) {
				visibleEnd = len(m.items)
				visibleStart = max(visibleEnd-maxVisible, 0)
			}
		}
	}

	for i := visibleStart; i < visibleEnd; i++ {
		line := FormatCompactListItem(i, m.items[i])
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("→ " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch {
	case m.loading:
		b.WriteString("loading...\n")
	case m.status != "":
		b.WriteString(statusStyle.Render(m.status))
		b.WriteString("\n")
	}

	footer := "↑/↓ or j/k: navigate • n: next page • f: favorite • enter: details • q: quit"
	if !m.pager.HasMore() {
		footer = "↑/↓ or j/k: navigate • f: favorite • enter: details • q: quit"
	}
	b.WriteString(footerStyle.Render(footer))

	return b.String()
}

func (m Model) renderItemView(content, footer string) string {
	var b strings.Builder
	b.WriteString(content)
	b.WriteString("\n")
	b.WriteString(footerStyle.Render(footer))
	return b.String()
}

// Run starts the Bubble Tea program
func Run(ctx context.Context, pager Pager, favorites Favorites, changes <-chan cache.Change) error {
	p := tea.NewProgram(NewModel(ctx, pager, favorites, changes), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
