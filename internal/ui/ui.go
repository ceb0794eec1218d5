package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/dashtune/internal/formatter"
	"github.com/desertthunder/dashtune/internal/models"
	"github.com/desertthunder/dashtune/internal/tasks"
)

const tickInterval = time.Second

// ViewState represents the current view in the TUI.
type ViewState int

const (
	BrowseView ViewState = iota
	SearchView
	QueueView
)

// Session is the part of [tasks.Session] the browser drives.
type Session interface {
	Root(ctx context.Context) (models.Node, error)
	Children(ctx context.Context, parentID string, page, pageSize int) ([]models.Node, error)
	Search(ctx context.Context, query string, page, pageSize int) ([]models.Node, error)
	SetPlaylist(ctx context.Context, refs []string, start models.StartPosition) (*tasks.Resolution, error)
	Resumable(ctx context.Context) (*tasks.Resolution, error)
	SetRating(ctx context.Context, id string, favorite bool) error
	OnTransition(ctx context.Context, tl models.Timeline, index int) ([]int, error)
}

var _ Session = (*tasks.Session)(nil)

// frame is one level of the browse stack.
type frame struct {
	parent string
	title  string
	nodes  []models.Node
}

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	session  Session
	view     ViewState
	width    int
	height   int
	stack    []frame
	browser  list.Model
	queue    list.Model
	input    textinput.Model
	res      *tasks.Resolution
	timeline models.Timeline
	playing  int
	clock    *Clock
	status   string
	progress <-chan tasks.ProgressUpdate
	err      error
	help     help.Model
	keys     keyMap
}

// NewModel creates a browser over session. progress may be nil.
func NewModel(ctx context.Context, session Session, progress <-chan tasks.ProgressUpdate) *Model {
	input := textinput.New()
	input.Placeholder = "artist, album or track"
	input.CharLimit = 128

	return &Model{
		ctx:      ctx,
		session:  session,
		view:     BrowseView,
		browser:  newList(nil, "Library"),
		queue:    newList(nil, "Queue"),
		input:    input,
		playing:  -1,
		clock:    NewClock(),
		progress: progress,
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

func newList(items []list.Item, title string) list.Model {
	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = title
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	return l
}

// Clock is the playback clock of the queue, for use with [tasks.PositionPoller].
func (m *Model) Clock() *Clock {
	return m.clock
}

// Init loads the root listing, starts draining progress updates and the display tick.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetchRoot(), m.waitForProgress(), tick())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.browser.SetSize(m.listSize())
		m.queue.SetSize(m.listSize())
		m.input.Width = max(msg.Width-8, 10)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case BrowseView:
			return m.handleBrowseKeys(msg)
		case SearchView:
			return m.handleSearchKeys(msg)
		case QueueView:
			return m.handleQueueKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgListingLoaded:
		d := msg.data.(listingData)
		if d.err != nil {
			m.err = d.err
			return m, nil
		}
		m.err = nil
		m.push(d.frame)

	case MsgPlaylistResolved:
		d := msg.data.(resolvedData)
		if d.err != nil {
			m.err = d.err
			return m, nil
		}
		m.err = nil
		if len(d.res.Tracks) == 0 {
			m.status = fmt.Sprintf("Nothing playable (%d skipped)", len(d.res.Diagnostics))
			return m, nil
		}
		m.setQueue(d.res)
		return m, m.transition(d.res.StartIndex)

	case MsgRated:
		d := msg.data.(ratedData)
		if d.err != nil {
			m.err = d.err
			return m, nil
		}
		m.err = nil
		m.markFavorite(d.node)
		if d.node.Track.Favorite {
			m.status = fmt.Sprintf("♥ %s", d.node.Title)
		} else {
			m.status = fmt.Sprintf("Removed %s from favorites", d.node.Title)
		}

	case MsgTransitioned:
		d := msg.data.(transitionData)
		if d.err != nil {
			m.err = d.err
			return m, nil
		}
		m.err = nil
		m.playing = d.index
		m.clock.Start(m.res.Tracks[d.index].DurationMs())
		m.queue.SetItems(queueItems(m.res.Tracks, m.playing))
		m.queue.Select(d.index)
		m.status = fmt.Sprintf("Playing %s (%d queued for download)", m.res.Tracks[d.index].Title, len(d.prefetched))

	case MsgProgressUpdate:
		m.status = msg.data.(tasks.ProgressUpdate).Message
		return m, m.waitForProgress()

	case MsgProgressClosed:
		m.progress = nil

	case MsgTick:
		return m, tick()
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && len(m.stack) == 0 {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case BrowseView:
		return m.renderBrowser()
	case SearchView:
		return m.renderSearch()
	case QueueView:
		return m.renderQueue()
	default:
		return ""
	}
}

func (m *Model) handleBrowseKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	n, ok := m.selected()

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.pop()
		return m, nil
	case key.Matches(msg, m.keys.enter):
		if !ok {
			return m, nil
		}
		if n.Browsable() {
			return m, m.fetchChildren(n)
		}
		return m, m.play(n)
	case key.Matches(msg, m.keys.play):
		if ok && n.Playable() {
			return m, m.play(n)
		}
		return m, nil
	case key.Matches(msg, m.keys.favorite):
		if ok && n.Track != nil {
			return m, m.rate(n)
		}
		return m, nil
	case key.Matches(msg, m.keys.search):
		m.view = SearchView
		m.input.SetValue("")
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.resume):
		return m, m.resume()
	case key.Matches(msg, m.keys.queue):
		if m.res != nil {
			m.view = QueueView
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.browser, cmd = m.browser.Update(msg)
	return m, cmd
}

func (m *Model) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.input.Blur()
		m.view = BrowseView
		return m, nil
	case "enter":
		query := strings.TrimSpace(m.input.Value())
		m.input.Blur()
		m.view = BrowseView
		if query == "" {
			return m, nil
		}
		return m, m.runSearch(query)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleQueueKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.queue):
		m.view = BrowseView
		return m, nil
	case key.Matches(msg, m.keys.enter):
		if i := m.queue.Index(); i >= 0 && i < len(m.timeline.Items) {
			return m, m.transition(i)
		}
		return m, nil
	case key.Matches(msg, m.keys.next):
		if m.playing < 0 {
			return m, nil
		}
		next, ok := m.timeline.Next(m.playing)
		if !ok {
			m.status = "End of queue"
			return m, nil
		}
		return m, m.transition(next)
	case key.Matches(msg, m.keys.pause):
		if m.playing >= 0 && !m.clock.Toggle() {
			m.status = "Paused"
		}
		return m, nil
	case key.Matches(msg, m.keys.favorite):
		if it, ok := m.queue.SelectedItem().(queueItem); ok {
			return m, m.rate(it.node)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.queue, cmd = m.queue.Update(msg)
	return m, cmd
}

func (m *Model) selected() (models.Node, bool) {
	it, ok := m.browser.SelectedItem().(nodeItem)
	if !ok {
		return models.Node{}, false
	}
	return it.node, true
}

func (m *Model) push(f frame) {
	m.stack = append(m.stack, f)
	m.showFrame()
}

func (m *Model) pop() {
	if len(m.stack) <= 1 {
		return
	}
	m.stack = m.stack[:len(m.stack)-1]
	m.showFrame()
}

func (m *Model) showFrame() {
	top := m.stack[len(m.stack)-1]
	m.browser = newList(nodeItems(top.nodes), top.title)
	m.browser.SetSize(m.listSize())
}

func (m *Model) listSize() (int, int) {
	return max(m.width-4, 0), max(m.height-8, 0)
}

func (m *Model) setQueue(res *tasks.Resolution) {
	m.res = res
	m.timeline = models.NewTimeline(res.Tracks)
	m.playing = -1
	m.queue = newList(queueItems(res.Tracks, m.playing), "Queue")
	m.queue.SetSize(m.listSize())
	m.queue.Select(res.StartIndex)
	m.view = QueueView
}

// markFavorite refreshes every visible copy of a re-rated track.
func (m *Model) markFavorite(n models.Node) {
	update := func(nodes []models.Node) {
		for i := range nodes {
			if nodes[i].ID == n.ID && nodes[i].Track != nil {
				t := *nodes[i].Track
				t.Favorite = n.Track.Favorite
				nodes[i].Track = &t
			}
		}
	}
	for _, f := range m.stack {
		update(f.nodes)
	}
	if len(m.stack) > 0 {
		m.browser.SetItems(nodeItems(m.stack[len(m.stack)-1].nodes))
	}
	if m.res != nil {
		update(m.res.Tracks)
		m.queue.SetItems(queueItems(m.res.Tracks, m.playing))
	}
}

func (m *Model) fetchRoot() tea.Cmd {
	return func() tea.Msg {
		root, err := m.session.Root(m.ctx)
		if err != nil {
			return listingLoadedMsg(frame{}, err)
		}
		title := root.Title
		if title == "" {
			title = "Library"
		}
		nodes, err := m.session.Children(m.ctx, root.ID, -1, 0)
		return listingLoadedMsg(frame{parent: root.ID, title: title, nodes: nodes}, err)
	}
}

func (m *Model) fetchChildren(n models.Node) tea.Cmd {
	return func() tea.Msg {
		nodes, err := m.session.Children(m.ctx, n.ID, -1, 0)
		return listingLoadedMsg(frame{parent: n.ID, title: n.Title, nodes: nodes}, err)
	}
}

func (m *Model) runSearch(query string) tea.Cmd {
	return func() tea.Msg {
		nodes, err := m.session.Search(m.ctx, query, -1, 0)
		return listingLoadedMsg(frame{title: fmt.Sprintf("Search: %s", query), nodes: nodes}, err)
	}
}

func (m *Model) play(n models.Node) tea.Cmd {
	return func() tea.Msg {
		res, err := m.session.SetPlaylist(m.ctx, []string{n.ID}, models.StartPosition{})
		return playlistResolvedMsg(res, err)
	}
}

func (m *Model) resume() tea.Cmd {
	return func() tea.Msg {
		res, err := m.session.Resumable(m.ctx)
		return playlistResolvedMsg(res, err)
	}
}

func (m *Model) rate(n models.Node) tea.Cmd {
	t := *n.Track
	t.Favorite = !t.Favorite
	n.Track = &t
	return func() tea.Msg {
		err := m.session.SetRating(m.ctx, n.ID, t.Favorite)
		return ratedMsg(n, err)
	}
}

func (m *Model) transition(index int) tea.Cmd {
	tl := m.timeline
	return func() tea.Msg {
		prefetched, err := m.session.OnTransition(m.ctx, tl, index)
		return transitionedMsg(index, prefetched, err)
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(time.Time) tea.Msg {
		return Msg{kind: MsgTick}
	})
}

func (m *Model) waitForProgress() tea.Cmd {
	ch := m.progress
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		update, ok := <-ch
		if !ok {
			return Msg{kind: MsgProgressClosed}
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) statusLine() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v", m.err))
	}
	return styles.muted.Render(m.status)
}

func (m *Model) renderBrowser() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.play, m.keys.favorite, m.keys.search, m.keys.resume, m.keys.back, m.keys.quit}
	if m.res != nil {
		helpKeys = append(helpKeys, m.keys.queue)
	}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n%s\n\n%s", m.browser.View(), m.statusLine(), helpView)
}

func (m *Model) renderSearch() string {
	title := styles.title.Render("Search")
	searchKey := key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "search"))
	helpView := m.help.ShortHelpView([]key.Binding{searchKey, m.keys.back})
	return fmt.Sprintf("%s\n%s\n\n%s", title, m.input.View(), helpView)
}

func (m *Model) renderQueue() string {
	playKey := key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "play"))
	helpKeys := []key.Binding{playKey, m.keys.next, m.keys.pause, m.keys.favorite, m.keys.back, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	position := ""
	if m.playing >= 0 {
		position = fmt.Sprintf("%s / %s\n",
			formatter.FormatDuration(m.clock.PositionMs()), formatter.FormatDuration(m.clock.DurationMs()))
	}
	return fmt.Sprintf("%s\n%s%s\n\n%s", m.queue.View(), position, m.statusLine(), helpView)
}
