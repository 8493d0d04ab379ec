// Package tui renders live progress for a batch of downloads with bubbletea.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jxwalker/assetfetch/internal/downloader"
	fetcherrors "github.com/jxwalker/assetfetch/internal/errors"
)

type Theme struct {
	border  lipgloss.Style
	title   lipgloss.Style
	label   lipgloss.Style
	head    lipgloss.Style
	ok      lipgloss.Style
	bad     lipgloss.Style
	skipped lipgloss.Style
	footer  lipgloss.Style
}

func defaultTheme() Theme {
	b := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	return Theme{
		border:  b.BorderForeground(lipgloss.Color("63")),
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81")),
		label:   lipgloss.NewStyle().Faint(true),
		head:    lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true),
		ok:      lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		bad:     lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		skipped: lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		footer:  lipgloss.NewStyle().Faint(true),
	}
}

// Item status shown in the table.
const (
	StatusPending = "pending"
	StatusActive  = "active"
	StatusDone    = "done"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// StartMsg marks item ID as active.
type StartMsg struct{ ID int }

// ProgressMsg carries one downloader event for item ID.
type ProgressMsg struct {
	ID    int
	Event downloader.ProgressEvent
}

// DoneMsg ends item ID. Err nil with Skipped false means it completed.
type DoneMsg struct {
	ID      int
	Path    string
	Bytes   int64
	Skipped bool
	Err     error
}

// FinishedMsg is sent once every item has ended.
type FinishedMsg struct{}

type obs struct {
	bytes int64
	t     time.Time
}

type row struct {
	label  string
	status string
	cur    int64
	total  int64
	rate   float64
	prev   obs
	detail string
}

type Model struct {
	th       Theme
	w, h     int
	rows     []*row
	prog     progress.Model
	started  time.Time
	finished bool
	// Cancel is invoked when the user quits before the batch ends.
	Cancel func()
}

// New returns a model with one pending row per label, indexed by position.
func New(labels []string, cancel func()) *Model {
	rows := make([]*row, len(labels))
	for i, l := range labels {
		rows[i] = &row{label: l, status: StatusPending, total: -1}
	}
	p := progress.New(progress.WithDefaultGradient(), progress.WithWidth(24))
	return &Model{th: defaultTheme(), rows: rows, prog: p, started: time.Now(), Cancel: cancel}
}

func (m *Model) Init() tea.Cmd { return nil }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.w, m.h = msg.Width, msg.Height
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.finished && m.Cancel != nil {
				m.Cancel()
			}
			return m, tea.Quit
		}
	case StartMsg:
		if r := m.row(msg.ID); r != nil {
			r.status = StatusActive
			r.prev = obs{t: time.Now()}
		}
	case ProgressMsg:
		if r := m.row(msg.ID); r != nil {
			r.status = StatusActive
			r.cur = msg.Event.BytesReceived
			r.total = msg.Event.TotalBytes
			now := time.Now()
			if dt := now.Sub(r.prev.t).Seconds(); dt > 0.25 {
				r.rate = float64(r.cur-r.prev.bytes) / dt
				r.prev = obs{bytes: r.cur, t: now}
			}
		}
	case DoneMsg:
		if r := m.row(msg.ID); r != nil {
			switch {
			case msg.Err != nil:
				r.status = StatusFailed
				r.detail = fmt.Sprintf("%s: %v", fetcherrors.KindOf(msg.Err), msg.Err)
			case msg.Skipped:
				r.status = StatusSkipped
				r.detail = msg.Path
			default:
				r.status = StatusDone
				r.cur = msg.Bytes
				if r.total < 0 {
					r.total = msg.Bytes
				}
				r.detail = msg.Path
			}
			r.rate = 0
		}
	case FinishedMsg:
		m.finished = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) row(id int) *row {
	if id < 0 || id >= len(m.rows) {
		return nil
	}
	return m.rows[id]
}

// Counts returns how many rows are in each status.
func (m *Model) Counts() map[string]int {
	out := map[string]int{}
	for _, r := range m.rows {
		out[r.status]++
	}
	return out
}

func (m *Model) View() string {
	w := m.w
	if w == 0 {
		w = 100
	}
	c := m.Counts()
	var rate float64
	for _, r := range m.rows {
		rate += r.rate
	}
	title := m.th.title.Render("assetfetch")
	stats := fmt.Sprintf("Pending:%d Active:%d Done:%d Skipped:%d Failed:%d • Rate:%s/s • %s",
		c[StatusPending], c[StatusActive], c[StatusDone], c[StatusSkipped], c[StatusFailed],
		humanize.Bytes(uint64(rate)), time.Since(m.started).Round(time.Second))
	header := m.th.border.Render(lipgloss.JoinHorizontal(lipgloss.Top, title+"  ", m.th.label.Render(stats)))

	var sb strings.Builder
	sb.WriteString(m.th.head.Render(fmt.Sprintf("%-8s  %-24s  %-10s  %-20s  %s", "STATUS", "PROGRESS", "SPEED", "SIZE", "ITEM")))
	sb.WriteString("\n")
	maxRows := m.h - 8
	if maxRows < 3 {
		maxRows = len(m.rows)
	}
	for i, r := range m.rows {
		if i >= maxRows {
			sb.WriteString(m.th.label.Render(fmt.Sprintf("… %d more", len(m.rows)-i)))
			sb.WriteString("\n")
			break
		}
		sb.WriteString(m.renderRow(r))
		sb.WriteString("\n")
	}
	if len(m.rows) == 0 {
		sb.WriteString(m.th.label.Render("(no items)"))
	}
	body := m.th.border.Width(w - 4).Render(strings.TrimRight(sb.String(), "\n"))
	footer := m.th.footer.Render("q cancel and quit")
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m *Model) renderRow(r *row) string {
	var bar string
	switch {
	case r.total > 0:
		f := float64(r.cur) / float64(r.total)
		if f > 1 {
			f = 1
		}
		bar = m.prog.ViewAs(f)
	case r.status == StatusActive:
		bar = fmt.Sprintf("%-24s", humanize.Bytes(uint64(r.cur)))
	default:
		bar = fmt.Sprintf("%-24s", "-")
	}
	size := "-"
	if r.total > 0 {
		size = humanize.Bytes(uint64(r.cur)) + "/" + humanize.Bytes(uint64(r.total))
	}
	speed := "-"
	if r.rate > 0 {
		speed = humanize.Bytes(uint64(r.rate)) + "/s"
	}
	status := fmt.Sprintf("%-8s", r.status)
	switch r.status {
	case StatusDone:
		status = m.th.ok.Render(status)
	case StatusFailed:
		status = m.th.bad.Render(status)
	case StatusSkipped:
		status = m.th.skipped.Render(status)
	}
	line := fmt.Sprintf("%s  %s  %-10s  %-20s  %s", status, bar, speed, size, r.label)
	if r.status == StatusFailed && r.detail != "" {
		line += "\n" + m.th.bad.Render("    "+r.detail)
	}
	return line
}

// Sink forwards download progress for item id to a running program.
func Sink(p *tea.Program, id int) downloader.Sink {
	return downloader.SinkFunc(func(e downloader.ProgressEvent) error {
		p.Send(ProgressMsg{ID: id, Event: e})
		return nil
	})
}
