package canvas

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/isola513i/hari-hr-system/internal/core/hierarchy"
)

var (
	// ErrReadOnly は更新権限なしでドラッグを開始しようとした場合に返されます。
	ErrReadOnly = errors.New("canvas: mutate capability required")
	// ErrRootNotDraggable はルートノードをドラッグしようとした場合に返されます。
	ErrRootNotDraggable = errors.New("canvas: root nodes cannot be reassigned")
	// ErrReassignPending は同じノードの付け替えが送信中の場合に返されます。
	ErrReassignPending = errors.New("canvas: reassignment already in flight")
	// ErrBusy は別のジェスチャーが進行中の場合に返されます。
	ErrBusy = errors.New("canvas: another gesture is in progress")
	// ErrUnknownNode はキャンバス上に存在しないノードを指定した場合に返されます。
	ErrUnknownNode = errors.New("canvas: node is not on the canvas")
)

// Backend はキャンバスが利用するサーバー側操作です。
type Backend interface {
	ListHierarchy(ctx context.Context, department *string) ([]hierarchy.Node, error)
	Reassign(ctx context.Context, nodeID string, newParentID *string) (*hierarchy.ReassignResult, error)
}

// Command は非同期に実行される処理です。結果の Event を Canvas.Handle へ渡します。
type Command func(ctx context.Context) Event

// Event は Command の実行結果です。
type Event interface {
	event()
}

// RefetchDone は一覧再取得の結果です。
type RefetchDone struct {
	Generation uint64
	Nodes      []hierarchy.Node
	Err        error
}

// ReassignDone は付け替え要求の結果です。
type ReassignDone struct {
	NodeID      string
	NewParentID *string
	Result      *hierarchy.ReassignResult
	Err         error
}

func (RefetchDone) event()  {}
func (ReassignDone) event() {}

// HitKind はポインター位置にある要素の種類です。
type HitKind int

const (
	// HitBackground はキャンバスの背景です。
	HitBackground HitKind = iota
	// HitNode はノードカードです。
	HitNode
	// HitControl はボタンや入力欄などの操作部品です。パンもドラッグも開始しません。
	HitControl
)

// Hit はポインター位置にある要素です。
type Hit struct {
	Kind   HitKind
	NodeID string
}

// Options は Canvas の設定です。
type Options struct {
	CanMutate  bool
	Department *string
	Viewport   Size
	// FitPadding は FitToView 時の余白 (画面座標) です。
	FitPadding float64
}

// Canvas は組織図のビュー状態機械です。単一のイベントループから使う前提で、並行呼び出しには対応しません。
type Canvas struct {
	backend Backend
	opts    Options

	state  ViewState
	nodes  []hierarchy.Node
	byID   map[string]hierarchy.Node
	forest []*hierarchy.TreeNode
	layout Layout

	generation uint64
	panFrom    Point
}

// New は空の Canvas を生成します。表示データは Refresh の結果で埋まります。
func New(backend Backend, opts Options) *Canvas {
	if opts.FitPadding == 0 {
		opts.FitPadding = 24
	}
	c := &Canvas{
		backend: backend,
		opts:    opts,
		state:   NewViewState(),
		byID:    map[string]hierarchy.Node{},
	}
	c.rebuild()
	return c
}

// State は現在の ViewState の複製を返します。
func (c *Canvas) State() ViewState {
	return c.state.Clone()
}

// Restore は保存済みの ViewState を適用します。進行中のジェスチャーは破棄されます。
func (c *Canvas) Restore(s ViewState) {
	pending := c.state.Pending
	c.state = s.Clone()
	c.state.Mode = ModeIdle
	c.state.Drag = nil
	c.state.Pending = pending
	c.state.Transform.Scale = clampScale(c.state.Transform.Scale)
	c.rebuild()
}

// Nodes は直近に取得できたノード一覧です。
func (c *Canvas) Nodes() []hierarchy.Node {
	return c.nodes
}

// Node は ID でノードを返します。
func (c *Canvas) Node(id string) (hierarchy.Node, bool) {
	n, ok := c.byID[id]
	return n, ok
}

// Forest は現在のノードから組み立てたフォレストです。
func (c *Canvas) Forest() []*hierarchy.TreeNode {
	return c.forest
}

// Layout は縮約状態を反映した配置です。
func (c *Canvas) Layout() Layout {
	return c.layout
}

// CanMutate は呼び出し元が更新権限を持つかを返します。
func (c *Canvas) CanMutate() bool {
	return c.opts.CanMutate
}

// SetViewport はビューポートの大きさを更新します。
func (c *Canvas) SetViewport(size Size) {
	c.opts.Viewport = size
}

// Refresh は一覧の再取得を開始します。以前の再取得の結果は到着しても破棄されます。
func (c *Canvas) Refresh() Command {
	c.generation++
	gen := c.generation
	backend := c.backend
	dept := c.opts.Department
	return func(ctx context.Context) Event {
		nodes, err := backend.ListHierarchy(ctx, dept)
		return RefetchDone{Generation: gen, Nodes: nodes, Err: err}
	}
}

// Handle は Command の結果を反映し、続けて実行すべき Command を返します。
func (c *Canvas) Handle(ev Event) Command {
	switch e := ev.(type) {
	case RefetchDone:
		c.applyRefetch(e)
		return nil
	case ReassignDone:
		return c.applyReassign(e)
	default:
		return nil
	}
}

func (c *Canvas) applyRefetch(e RefetchDone) {
	if e.Generation != c.generation {
		return
	}
	if e.Err != nil {
		c.state.FetchError = e.Err.Error()
		return
	}
	c.state.FetchError = ""
	c.nodes = e.Nodes
	c.byID = make(map[string]hierarchy.Node, len(e.Nodes))
	for _, n := range e.Nodes {
		c.byID[n.ID] = n
	}
	for id := range c.state.Collapsed {
		if _, ok := c.byID[id]; !ok {
			delete(c.state.Collapsed, id)
		}
	}
	if _, ok := c.byID[c.state.Highlight]; !ok {
		c.state.Highlight = ""
	}
	if c.state.Drag != nil {
		if _, ok := c.byID[c.state.Drag.SourceID]; !ok {
			c.resetDrag(ModeIdle)
		}
	}
	c.rebuild()
}

func (c *Canvas) applyReassign(e ReassignDone) Command {
	delete(c.state.Pending, e.NodeID)
	// Restore 後に届いた結果は進行中のジェスチャーに触れません。
	committing := c.state.Mode == ModeCommitting
	if committing {
		c.state.Drag = nil
		if len(c.state.Pending) == 0 {
			c.state.Mode = ModeIdle
		}
	}
	if e.Err != nil {
		if committing {
			c.state.Mode = ModeCancelled
		}
		c.notify(NoticeError, describeError(e.Err))
		return nil
	}

	name := c.nameOf(e.NodeID)
	switch {
	case e.Result != nil && e.Result.NoOp:
		c.notify(NoticeInfo, fmt.Sprintf("%s already reports there", name))
	case e.NewParentID == nil:
		c.notify(NoticeSuccess, fmt.Sprintf("%s is now a top-level node", name))
	default:
		c.notify(NoticeSuccess, fmt.Sprintf("%s now reports to %s", name, c.nameOf(*e.NewParentID)))
	}
	return c.Refresh()
}

// Settle はキャンセル後のスナップバック表示を終えて Idle に戻します。
func (c *Canvas) Settle() {
	if c.state.Mode == ModeCancelled {
		c.state.Mode = ModeIdle
	}
}

// DismissNotice は通知を閉じます。
func (c *Canvas) DismissNotice() {
	c.state.Notice = nil
}

// PointerDown はポインター押下を処理します。操作部品上ではパンもドラッグも開始しません。
func (c *Canvas) PointerDown(at Point, hit Hit) error {
	c.Settle()
	if c.state.Mode != ModeIdle {
		return ErrBusy
	}
	switch hit.Kind {
	case HitControl:
		return nil
	case HitNode:
		return c.StartDrag(hit.NodeID)
	default:
		c.state.Mode = ModePanning
		c.panFrom = at
		return nil
	}
}

// PointerMove はパン中はオフセットを更新し、ドラッグ中はドロップ候補を評価します。
func (c *Canvas) PointerMove(at Point, hit Hit) {
	switch c.state.Mode {
	case ModePanning:
		c.PanBy(at.X-c.panFrom.X, at.Y-c.panFrom.Y)
		c.panFrom = at
	case ModeDragging, ModeDragOver:
		if hit.Kind == HitNode {
			c.DragOver(hit.NodeID)
			return
		}
		c.ClearDragTarget()
	}
}

// PointerUp はパンを終了するか、ドラッグ中であればドロップします。
func (c *Canvas) PointerUp() Command {
	switch c.state.Mode {
	case ModePanning:
		c.state.Mode = ModeIdle
		return nil
	case ModeDragging, ModeDragOver:
		return c.Drop()
	default:
		return nil
	}
}

// PanBy は画面座標でオフセットを移動します。
func (c *Canvas) PanBy(dx, dy float64) {
	c.state.Transform.OffsetX += dx
	c.state.Transform.OffsetY += dy
}

// ZoomAt は anchor (画面座標) を固定したまま倍率を factor 倍します。
func (c *Canvas) ZoomAt(factor float64, anchor Point) {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return
	}
	t := c.state.Transform
	world := t.ToWorld(anchor)
	scale := clampScale(t.Scale * factor)
	c.state.Transform = Transform{
		OffsetX: anchor.X - world.X*scale,
		OffsetY: anchor.Y - world.Y*scale,
		Scale:   scale,
	}
}

// Wheel はホイール入力をズームとして扱います。deltaY が負ならズームインです。
func (c *Canvas) Wheel(deltaY float64, at Point) {
	if deltaY == 0 {
		return
	}
	c.ZoomAt(math.Pow(1.1, -deltaY/100), at)
}

// SetScale は倍率を直接設定します。ビューポート中央を固定します。
func (c *Canvas) SetScale(scale float64) {
	center := Point{X: c.opts.Viewport.Width / 2, Y: c.opts.Viewport.Height / 2}
	c.ZoomAt(clampScale(scale)/c.state.Transform.Scale, center)
}

// FitToView は表示中のフォレスト全体がビューポートに収まるように変換を設定します。
func (c *Canvas) FitToView() {
	if len(c.layout.Order) == 0 {
		c.state.Transform = Transform{Scale: DefaultScale}
		return
	}
	c.state.Transform = FitTransform(c.layout.Bounds, c.opts.Viewport, c.opts.FitPadding)
}

// ToggleCollapse はノードの部下の表示を切り替えます。Node Store には影響しません。
func (c *Canvas) ToggleCollapse(id string) {
	if _, ok := c.byID[id]; !ok {
		return
	}
	if c.state.Collapsed[id] {
		delete(c.state.Collapsed, id)
	} else {
		c.state.Collapsed[id] = true
	}
	c.rebuild()
}

// ExpandAll は縮約をすべて解除します。
func (c *Canvas) ExpandAll() {
	clear(c.state.Collapsed)
	c.rebuild()
}

// Reveal は name または role に term を含む最初のノードを探し、その祖先だけを展開して強調します。
// 一致しない場合は nil を返します。
func (c *Canvas) Reveal(term string) (*hierarchy.Node, error) {
	match := hierarchy.FindMatch(c.nodes, term)
	if match == nil {
		c.state.Highlight = ""
		c.notify(NoticeInfo, fmt.Sprintf("no match for %q", term))
		return nil, nil
	}

	chain, err := hierarchy.AncestorChain(c.nodes, match.ID)
	if err != nil {
		c.notify(NoticeError, describeError(err))
		return nil, err
	}
	for _, id := range chain {
		delete(c.state.Collapsed, id)
	}
	c.state.Highlight = match.ID
	c.rebuild()
	return match, nil
}

// StartDrag はノードのドラッグを開始します。ルートノードと権限のない呼び出し元は拒否され、
// バックエンドは呼び出されません。
func (c *Canvas) StartDrag(id string) error {
	c.Settle()
	if c.state.Mode != ModeIdle {
		return ErrBusy
	}
	if !c.opts.CanMutate {
		return ErrReadOnly
	}
	n, ok := c.byID[id]
	if !ok {
		return ErrUnknownNode
	}
	if n.IsRoot() {
		return ErrRootNotDraggable
	}
	if c.state.Pending[id] {
		return ErrReassignPending
	}
	c.state.Mode = ModeDragging
	c.state.Drag = &DragState{SourceID: id}
	return nil
}

// DragOver はドロップ候補を設定し、サーバーの付け替え検証と同じ条件で有効・無効を判定します。
// 部署で絞り込んだ表示には退職済みの祖先も含まれるため、在籍状態も確認します。
func (c *Canvas) DragOver(targetID string) {
	if c.state.Drag == nil || (c.state.Mode != ModeDragging && c.state.Mode != ModeDragOver) {
		return
	}
	n, ok := c.byID[targetID]
	if !ok {
		c.ClearDragTarget()
		return
	}
	target := targetID
	c.state.Mode = ModeDragOver
	c.state.Drag.TargetID = targetID
	switch {
	case !n.IsActive():
		c.state.Drag.Valid, c.state.Drag.Veto = false, VetoTerminated
	case hierarchy.WouldCreateCycle(c.nodes, c.state.Drag.SourceID, &target):
		c.state.Drag.Valid, c.state.Drag.Veto = false, VetoCycle
	default:
		c.state.Drag.Valid, c.state.Drag.Veto = true, ""
	}
}

// ClearDragTarget はドロップ候補を外してドラッグ中の状態に戻します。
func (c *Canvas) ClearDragTarget() {
	if c.state.Drag == nil {
		return
	}
	c.state.Mode = ModeDragging
	c.state.Drag.TargetID = ""
	c.state.Drag.Valid = false
	c.state.Drag.Veto = ""
}

// CancelDrag はドラッグを取り消します。
func (c *Canvas) CancelDrag() {
	if c.state.Mode != ModeDragging && c.state.Mode != ModeDragOver {
		return
	}
	c.resetDrag(ModeCancelled)
}

// Drop は有効なドロップ候補があれば付け替えを送信する Command を返します。
// 候補がない、または無効な場合はスナップバックして nil を返します。
func (c *Canvas) Drop() Command {
	if c.state.Drag == nil {
		return nil
	}
	drag := *c.state.Drag
	if c.state.Mode != ModeDragOver || drag.TargetID == "" || !drag.Valid {
		if drag.TargetID != "" && !drag.Valid {
			reason := "it would create a reporting cycle"
			if drag.Veto == VetoTerminated {
				reason = c.nameOf(drag.TargetID) + " is terminated"
			}
			c.notify(NoticeError, fmt.Sprintf("cannot move %s under %s: %s",
				c.nameOf(drag.SourceID), c.nameOf(drag.TargetID), reason))
		}
		c.resetDrag(ModeCancelled)
		return nil
	}
	if c.state.Pending[drag.SourceID] {
		c.resetDrag(ModeCancelled)
		return nil
	}

	c.state.Mode = ModeCommitting
	c.state.Pending[drag.SourceID] = true

	backend := c.backend
	nodeID := drag.SourceID
	parent := drag.TargetID
	return func(ctx context.Context) Event {
		result, err := backend.Reassign(ctx, nodeID, &parent)
		return ReassignDone{NodeID: nodeID, NewParentID: &parent, Result: result, Err: err}
	}
}

// VisibleNodes は縮約を反映した表示順のノードです。
func (c *Canvas) VisibleNodes() []hierarchy.Node {
	out := make([]hierarchy.Node, 0, len(c.layout.Order))
	for _, id := range c.layout.Order {
		out = append(out, c.byID[id])
	}
	return out
}

func (c *Canvas) resetDrag(mode Mode) {
	c.state.Drag = nil
	c.state.Mode = mode
}

func (c *Canvas) notify(kind NoticeKind, text string) {
	c.state.Notice = &Notice{Kind: kind, Text: text}
}

func (c *Canvas) nameOf(id string) string {
	if n, ok := c.byID[id]; ok && n.Name != "" {
		return n.Name
	}
	return id
}

func (c *Canvas) rebuild() {
	c.forest = hierarchy.BuildForest(c.nodes)
	c.layout = ComputeLayout(c.forest, c.state.Collapsed)
}

// describeError はエラー区分ごとの通知文を返します。
func describeError(err error) string {
	switch {
	case errors.Is(err, hierarchy.ErrCycleRejected), errors.Is(err, hierarchy.ErrSelfReference):
		return "move rejected: it would create a reporting cycle"
	case errors.Is(err, hierarchy.ErrParentTerminated):
		return "move rejected: the new manager is no longer active"
	case errors.Is(err, hierarchy.ErrNodeNotFound), errors.Is(err, hierarchy.ErrParentNotFound):
		return "move rejected: the employee or manager no longer exists"
	case errors.Is(err, hierarchy.ErrUnauthorized):
		return "you do not have permission to change the hierarchy"
	case errors.Is(err, hierarchy.ErrConflict):
		return "the hierarchy changed concurrently, please retry"
	case errors.Is(err, hierarchy.ErrCorruptHierarchy):
		return "the hierarchy data is inconsistent"
	default:
		return "request failed: " + err.Error()
	}
}
