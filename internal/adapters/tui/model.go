// Package tui は canvas.Canvas を端末上に描画する bubbletea モデルです。
// 1 セルをワールド座標の cellWidth × cellHeight として扱い、キーボードとマウスの両方で操作できます。
package tui

import (
	"context"
	"errors"
	"slices"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/isola513i/hari-hr-system/internal/core/canvas"
	"github.com/isola513i/hari-hr-system/internal/core/hierarchy"
)

const (
	cellWidth  = 8.0
	cellHeight = 16.0
	footerRows = 2
	panStep    = 64.0
	zoomStep   = 1.1
	wheelDelta = 100.0
	maxHints   = 3
)

// eventMsg は canvas.Command の結果を Update へ届けます。
type eventMsg struct {
	ev canvas.Event
}

// Model は組織図キャンバスの bubbletea モデルです。
type Model struct {
	ctx    context.Context
	canvas *canvas.Canvas
	styles styles

	cursor    string
	searching bool
	query     string
	flash     string

	width  int
	height int
	fitted bool
}

var _ tea.Model = (*Model)(nil)

// New は c を描画する Model を生成します。ctx はバックエンド呼び出しに使われます。
func New(ctx context.Context, c *canvas.Canvas) *Model {
	return &Model{ctx: ctx, canvas: c, styles: defaultStyles()}
}

// Init は初回の一覧取得を開始します。
func (m *Model) Init() tea.Cmd {
	return m.run(m.canvas.Refresh())
}

// Update はキー、マウス、ウィンドウサイズ、バックエンド応答を処理します。
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.canvas.SetViewport(m.viewport())
		m.fitOnce()
		return m, nil
	case eventMsg:
		next := m.canvas.Handle(msg.ev)
		m.syncCursor()
		m.fitOnce()
		return m, m.run(next)
	case tea.KeyMsg:
		m.canvas.Settle()
		if m.searching {
			return m, m.updateSearch(msg)
		}
		return m.updateKey(msg)
	case tea.MouseMsg:
		m.canvas.Settle()
		return m, m.updateMouse(msg)
	}
	return m, nil
}

func (m *Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.flash = ""
	center := m.center()

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "up", "k":
		m.moveCursor(-1)
	case "down", "j":
		m.moveCursor(1)
	case "left", "h":
		m.cursorToParent()
	case "shift+up":
		m.canvas.PanBy(0, panStep)
	case "shift+down":
		m.canvas.PanBy(0, -panStep)
	case "shift+left":
		m.canvas.PanBy(panStep, 0)
	case "shift+right":
		m.canvas.PanBy(-panStep, 0)
	case "+", "=":
		m.canvas.ZoomAt(zoomStep, center)
	case "-":
		m.canvas.ZoomAt(1/zoomStep, center)
	case "0":
		m.canvas.SetScale(canvas.DefaultScale)
	case "f":
		m.canvas.FitToView()
	case " ", "space", "c":
		m.canvas.ToggleCollapse(m.cursor)
		m.syncCursor()
	case "e":
		m.canvas.ExpandAll()
	case "r":
		return m, m.run(m.canvas.Refresh())
	case "/":
		m.searching, m.query = true, ""
	case "m":
		if err := m.canvas.StartDrag(m.cursor); err != nil {
			m.flash = dragRefusal(err)
		}
	case "enter":
		if m.dragging() {
			return m, m.run(m.canvas.Drop())
		}
	case "esc":
		if m.dragging() {
			m.canvas.CancelDrag()
			return m, nil
		}
		m.canvas.DismissNotice()
	}
	return m, nil
}

func (m *Model) updateSearch(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc:
		m.searching = false
	case tea.KeyEnter:
		m.searching = false
		match, err := m.canvas.Reveal(m.query)
		if err == nil && match != nil {
			m.cursor = match.ID
		}
	case tea.KeyBackspace:
		if r := []rune(m.query); len(r) > 0 {
			m.query = string(r[:len(r)-1])
		}
	case tea.KeySpace:
		m.query += " "
	case tea.KeyRunes:
		m.query += string(msg.Runes)
	}
	return nil
}

func (m *Model) updateMouse(msg tea.MouseMsg) tea.Cmd {
	at := canvas.Point{
		X: float64(msg.X)*cellWidth + cellWidth/2,
		Y: float64(msg.Y)*cellHeight + cellHeight/2,
	}
	hit := m.hitAt(msg.Y, at)

	switch {
	case msg.Button == tea.MouseButtonWheelUp:
		m.canvas.Wheel(-wheelDelta, at)
	case msg.Button == tea.MouseButtonWheelDown:
		m.canvas.Wheel(wheelDelta, at)
	case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft:
		if hit.Kind == canvas.HitNode {
			m.cursor = hit.NodeID
		}
		if err := m.canvas.PointerDown(at, hit); err != nil {
			m.flash = dragRefusal(err)
		}
	case msg.Action == tea.MouseActionMotion:
		m.canvas.PointerMove(at, hit)
	case msg.Action == tea.MouseActionRelease:
		return m.run(m.canvas.PointerUp())
	}
	return nil
}

func (m *Model) hitAt(row int, at canvas.Point) canvas.Hit {
	if row >= m.height-footerRows {
		return canvas.Hit{Kind: canvas.HitControl}
	}
	if id, ok := m.canvas.Layout().HitTest(m.canvas.State().Transform, at); ok {
		return canvas.Hit{Kind: canvas.HitNode, NodeID: id}
	}
	return canvas.Hit{Kind: canvas.HitBackground}
}

// run は canvas.Command を tea.Cmd に包みます。
func (m *Model) run(cmd canvas.Command) tea.Cmd {
	if cmd == nil {
		return nil
	}
	ctx := m.ctx
	return func() tea.Msg {
		return eventMsg{ev: cmd(ctx)}
	}
}

func (m *Model) moveCursor(delta int) {
	order := m.canvas.Layout().Order
	if len(order) == 0 {
		return
	}
	i := slices.Index(order, m.cursor)
	switch {
	case i < 0:
		i = 0
	default:
		i = min(max(i+delta, 0), len(order)-1)
	}
	m.cursor = order[i]
	if m.dragging() {
		m.canvas.DragOver(m.cursor)
	}
}

func (m *Model) cursorToParent() {
	n, ok := m.canvas.Node(m.cursor)
	if !ok || n.ParentID == nil {
		return
	}
	if _, visible := m.canvas.Layout().Rects[*n.ParentID]; visible {
		m.cursor = *n.ParentID
		if m.dragging() {
			m.canvas.DragOver(m.cursor)
		}
	}
}

// syncCursor は表示されていないノードを指すカーソルを先頭へ戻します。
func (m *Model) syncCursor() {
	layout := m.canvas.Layout()
	if _, ok := layout.Rects[m.cursor]; ok {
		return
	}
	m.cursor = ""
	if len(layout.Order) > 0 {
		m.cursor = layout.Order[0]
	}
}

func (m *Model) fitOnce() {
	if m.fitted || m.width == 0 || len(m.canvas.Layout().Order) == 0 {
		return
	}
	m.canvas.FitToView()
	m.fitted = true
}

func (m *Model) dragging() bool {
	mode := m.canvas.State().Mode
	return mode == canvas.ModeDragging || mode == canvas.ModeDragOver
}

func (m *Model) viewport() canvas.Size {
	rows := max(m.height-footerRows, 0)
	return canvas.Size{Width: float64(m.width) * cellWidth, Height: float64(rows) * cellHeight}
}

func (m *Model) center() canvas.Point {
	vp := m.viewport()
	return canvas.Point{X: vp.Width / 2, Y: vp.Height / 2}
}

// hints は検索語に対するあいまい一致の候補名です。
func (m *Model) hints() []string {
	ranked := hierarchy.RankMatches(m.canvas.Nodes(), m.query)
	out := make([]string, 0, maxHints)
	for _, n := range ranked {
		if len(out) == maxHints {
			break
		}
		out = append(out, n.Name)
	}
	return out
}

func dragRefusal(err error) string {
	switch {
	case errors.Is(err, canvas.ErrReadOnly):
		return "read-only: you cannot change the hierarchy"
	case errors.Is(err, canvas.ErrRootNotDraggable):
		return "top-level nodes cannot be moved"
	case errors.Is(err, canvas.ErrReassignPending):
		return "a move for this person is still being saved"
	case errors.Is(err, canvas.ErrBusy):
		return "finish the current action first"
	case errors.Is(err, canvas.ErrUnknownNode):
		return "select a person first"
	default:
		return err.Error()
	}
}
