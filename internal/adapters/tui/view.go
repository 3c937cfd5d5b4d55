package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/isola513i/hari-hr-system/internal/core/canvas"
)

type tone int

const (
	tonePlain tone = iota
	toneEdge
	toneCard
	toneCursor
	toneHighlight
	toneSource
	toneValid
	toneInvalid
	tonePending
)

type styles struct {
	tones   map[tone]lipgloss.Style
	status  lipgloss.Style
	info    lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	help    lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		tones: map[tone]lipgloss.Style{
			tonePlain:     lipgloss.NewStyle(),
			toneEdge:      lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
			toneCard:      lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
			toneCursor:    lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
			toneHighlight: lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true),
			toneSource:    lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true),
			toneValid:     lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
			toneInvalid:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
			tonePending:   lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Faint(true),
		},
		status:  lipgloss.NewStyle().Foreground(lipgloss.Color("250")).Background(lipgloss.Color("236")),
		info:    lipgloss.NewStyle().Foreground(lipgloss.Color("117")),
		success: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		failure: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		help:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

type cell struct {
	r rune
	t tone
}

// grid は描画用の文字セル配列です。範囲外への書き込みは無視されます。
type grid struct {
	w, h  int
	cells [][]cell
}

func newGrid(w, h int) *grid {
	g := &grid{w: w, h: h, cells: make([][]cell, h)}
	for y := range g.cells {
		row := make([]cell, w)
		for x := range row {
			row[x] = cell{r: ' '}
		}
		g.cells[y] = row
	}
	return g
}

func (g *grid) set(x, y int, r rune, t tone) {
	if x < 0 || y < 0 || x >= g.w || y >= g.h {
		return
	}
	g.cells[y][x] = cell{r: r, t: t}
}

func (g *grid) text(x, y, width int, s string, t tone) {
	runes := []rune(s)
	if len(runes) > width {
		if width <= 1 {
			runes = runes[:max(width, 0)]
		} else {
			runes = append(runes[:width-1], '…')
		}
	}
	for i, r := range runes {
		g.set(x+i, y, r, t)
	}
}

func (g *grid) render(s styles) string {
	var b strings.Builder
	for y, row := range g.cells {
		start := 0
		for x := 1; x <= len(row); x++ {
			if x < len(row) && row[x].t == row[start].t {
				continue
			}
			run := make([]rune, 0, x-start)
			for _, c := range row[start:x] {
				run = append(run, c.r)
			}
			b.WriteString(s.tones[row[start].t].Render(string(run)))
			start = x
		}
		if y < len(g.cells)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// View はキャンバスとステータス行を描画します。
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "loading org chart…"
	}
	rows := max(m.height-footerRows, 0)
	g := newGrid(m.width, rows)

	state := m.canvas.State()
	layout := m.canvas.Layout()
	tr := state.Transform

	for _, e := range layout.Edges {
		m.drawEdge(g, tr, layout.Rects[e.ParentID], layout.Rects[e.ChildID])
	}
	for _, id := range layout.Order {
		m.drawCard(g, tr, id, layout.Rects[id], m.toneFor(id, state))
	}

	return g.render(m.styles) + "\n" + m.statusLine(state) + "\n" + m.footerLine(state)
}

func toCell(tr canvas.Transform, p canvas.Point) (int, int) {
	s := tr.ToScreen(p)
	return int(math.Floor(s.X / cellWidth)), int(math.Floor(s.Y / cellHeight))
}

func (m *Model) drawEdge(g *grid, tr canvas.Transform, parent, child canvas.Rect) {
	px, py := toCell(tr, canvas.Point{X: parent.X + parent.W/2, Y: parent.Y + parent.H})
	cx, cy := toCell(tr, canvas.Point{X: child.X + child.W/2, Y: child.Y})
	mid := (py + cy) / 2

	for y := py; y < mid; y++ {
		g.set(px, y, '│', toneEdge)
	}
	for x := min(px, cx); x <= max(px, cx); x++ {
		g.set(x, mid, '─', toneEdge)
	}
	for y := mid + 1; y < cy; y++ {
		g.set(cx, y, '│', toneEdge)
	}
}

func (m *Model) drawCard(g *grid, tr canvas.Transform, id string, r canvas.Rect, t tone) {
	n, ok := m.canvas.Node(id)
	if !ok {
		return
	}
	x0, y0 := toCell(tr, canvas.Point{X: r.X, Y: r.Y})
	x1, y1 := toCell(tr, canvas.Point{X: r.X + r.W, Y: r.Y + r.H})
	w, h := max(x1-x0, 1), max(y1-y0, 1)

	name := n.Name
	if m.canvas.State().Collapsed[id] && n.DirectReportCount > 0 {
		name = "▸ " + name
	}

	if h < 3 || w < 4 {
		g.text(x0, y0, w, "["+name+"]", t)
		return
	}

	g.set(x0, y0, '┌', t)
	g.set(x0+w-1, y0, '┐', t)
	g.set(x0, y0+h-1, '└', t)
	g.set(x0+w-1, y0+h-1, '┘', t)
	for x := x0 + 1; x < x0+w-1; x++ {
		g.set(x, y0, '─', t)
		g.set(x, y0+h-1, '─', t)
	}
	for y := y0 + 1; y < y0+h-1; y++ {
		g.set(x0, y, '│', t)
		g.set(x0+w-1, y, '│', t)
		for x := x0 + 1; x < x0+w-1; x++ {
			g.set(x, y, ' ', t)
		}
	}

	lines := []string{name, n.Role}
	if n.DirectReportCount > 0 {
		lines = append(lines, fmt.Sprintf("%d reports", n.DirectReportCount))
	}
	for i, line := range lines {
		if i >= h-2 {
			break
		}
		g.text(x0+1, y0+1+i, w-2, line, t)
	}
}

func (m *Model) toneFor(id string, s canvas.ViewState) tone {
	switch {
	case s.Pending[id]:
		return tonePending
	case s.Drag != nil && s.Drag.SourceID == id:
		return toneSource
	case s.Drag != nil && s.Drag.TargetID == id && s.Drag.Valid:
		return toneValid
	case s.Drag != nil && s.Drag.TargetID == id:
		return toneInvalid
	case id == m.cursor:
		return toneCursor
	case id == s.Highlight:
		return toneHighlight
	default:
		return toneCard
	}
}

func (m *Model) statusLine(s canvas.ViewState) string {
	parts := []string{
		fmt.Sprintf(" %s", s.Mode),
		fmt.Sprintf("zoom %d%%", int(math.Round(s.Transform.Scale*100))),
		fmt.Sprintf("%d people", len(m.canvas.Nodes())),
	}
	if s.Drag != nil {
		target := "(choose a manager)"
		if s.Drag.TargetID != "" {
			verdict := "ok"
			switch {
			case s.Drag.Valid:
			case s.Drag.Veto == canvas.VetoTerminated:
				verdict = "terminated"
			default:
				verdict = "would create a cycle"
			}
			target = fmt.Sprintf("%s: %s", m.nameOf(s.Drag.TargetID), verdict)
		}
		parts = append(parts, fmt.Sprintf("moving %s → %s", m.nameOf(s.Drag.SourceID), target))
	}
	if len(s.Pending) > 0 {
		parts = append(parts, fmt.Sprintf("saving %d", len(s.Pending)))
	}
	if !m.canvas.CanMutate() {
		parts = append(parts, "read-only")
	}
	if s.FetchError != "" {
		parts = append(parts, "refresh failed: "+s.FetchError)
	}
	line := strings.Join(parts, " · ")
	return m.styles.status.Width(m.width).MaxWidth(m.width).Render(line)
}

func (m *Model) footerLine(s canvas.ViewState) string {
	var line string
	switch {
	case m.searching:
		line = "/" + m.query
		if hints := m.hints(); len(hints) > 0 {
			line += "   " + m.styles.help.Render(strings.Join(hints, ", "))
		}
	case m.flash != "":
		line = m.styles.failure.Render(m.flash)
	case s.Notice != nil:
		style := m.styles.info
		switch s.Notice.Kind {
		case canvas.NoticeSuccess:
			style = m.styles.success
		case canvas.NoticeError:
			style = m.styles.failure
		}
		line = style.Render(s.Notice.Text) + m.styles.help.Render("  (esc to dismiss)")
	default:
		line = m.styles.help.Render("↑/↓ select · m move · enter drop · esc cancel · space collapse · / search · +/- zoom · f fit · q quit")
	}
	return lipgloss.NewStyle().MaxWidth(m.width).Render(line)
}

func (m *Model) nameOf(id string) string {
	if n, ok := m.canvas.Node(id); ok {
		return n.Name
	}
	return id
}
