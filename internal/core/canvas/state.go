// Package canvas は組織図キャンバスのビュー状態とジェスチャーの状態機械を提供します。
// 状態はすべて ViewState に集約され、ノードの正本は常にサーバー側の Node Store です。
package canvas

import (
	"encoding/json"
	"maps"
)

const (
	// MinScale と MaxScale はズーム倍率の下限と上限です。
	MinScale = 0.3
	MaxScale = 1.5
	// DefaultScale は初期倍率です。
	DefaultScale = 1.0
)

// Mode はジェスチャーの状態です。
type Mode string

const (
	ModeIdle       Mode = "idle"
	ModePanning    Mode = "panning"
	ModeDragging   Mode = "dragging"
	ModeDragOver   Mode = "drag_over"
	ModeCommitting Mode = "committing"
	ModeCancelled  Mode = "cancelled"
)

// Point は画面またはワールド座標上の点です。
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size はビューポートの大きさです。
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Transform はワールド座標から画面座標への変換です。screen = world*Scale + Offset。
type Transform struct {
	OffsetX float64 `json:"offsetX"`
	OffsetY float64 `json:"offsetY"`
	Scale   float64 `json:"scale"`
}

// ToWorld は画面座標をワールド座標へ戻します。
func (t Transform) ToWorld(p Point) Point {
	scale := t.Scale
	if scale == 0 {
		scale = DefaultScale
	}
	return Point{X: (p.X - t.OffsetX) / scale, Y: (p.Y - t.OffsetY) / scale}
}

// ToScreen はワールド座標を画面座標へ写します。
func (t Transform) ToScreen(p Point) Point {
	return Point{X: p.X*t.Scale + t.OffsetX, Y: p.Y*t.Scale + t.OffsetY}
}

// DragState はドラッグ中のノードと現在のドロップ候補です。
type DragState struct {
	SourceID string `json:"sourceId"`
	TargetID string `json:"targetId,omitempty"`
	// Valid は TargetID への付け替えをサーバーが受け付ける場合に true です。
	Valid bool `json:"valid"`
	// Veto は Valid が false の理由です。
	Veto DropVeto `json:"veto,omitempty"`
}

// DropVeto はドロップ候補が拒否される理由です。
type DropVeto string

const (
	// VetoCycle は付け替えが報告ラインの循環を作ることを示します。
	VetoCycle DropVeto = "cycle"
	// VetoTerminated は候補が退職済みで上長になれないことを示します。
	VetoTerminated DropVeto = "terminated"
)

// NoticeKind は通知の種類です。
type NoticeKind string

const (
	NoticeInfo    NoticeKind = "info"
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// Notice は閉じることのできる一時的な通知です。
type Notice struct {
	Kind NoticeKind `json:"kind"`
	Text string     `json:"text"`
}

// ViewState はキャンバスの表示状態です。JSON で保存・復元できます。
type ViewState struct {
	Transform Transform       `json:"transform"`
	Collapsed map[string]bool `json:"collapsed,omitempty"`
	Mode      Mode            `json:"mode"`
	Drag      *DragState      `json:"drag,omitempty"`
	Pending   map[string]bool `json:"pending,omitempty"`
	Highlight string          `json:"highlight,omitempty"`
	Notice    *Notice         `json:"notice,omitempty"`
	// FetchError は直近の再取得が失敗した場合のメッセージです。表示中のツリーは保持されます。
	FetchError string `json:"fetchError,omitempty"`
}

// NewViewState は初期状態を返します。
func NewViewState() ViewState {
	return ViewState{
		Transform: Transform{Scale: DefaultScale},
		Collapsed: map[string]bool{},
		Mode:      ModeIdle,
		Pending:   map[string]bool{},
	}
}

// Clone は map とポインタを複製した ViewState を返します。
func (s ViewState) Clone() ViewState {
	out := s
	out.Collapsed = maps.Clone(s.Collapsed)
	out.Pending = maps.Clone(s.Pending)
	if out.Collapsed == nil {
		out.Collapsed = map[string]bool{}
	}
	if out.Pending == nil {
		out.Pending = map[string]bool{}
	}
	if s.Drag != nil {
		d := *s.Drag
		out.Drag = &d
	}
	if s.Notice != nil {
		n := *s.Notice
		out.Notice = &n
	}
	return out
}

// MarshalState は ViewState を JSON に変換します。
func MarshalState(s ViewState) ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalState は JSON から ViewState を復元します。
// 進行中のジェスチャーは復元せず、倍率は範囲内に収めます。
func UnmarshalState(b []byte) (ViewState, error) {
	s := NewViewState()
	if err := json.Unmarshal(b, &s); err != nil {
		return ViewState{}, err
	}
	s = s.Clone()
	s.Mode = ModeIdle
	s.Drag = nil
	s.Pending = map[string]bool{}
	s.Transform.Scale = clampScale(s.Transform.Scale)
	return s, nil
}

func clampScale(scale float64) float64 {
	switch {
	case scale == 0:
		return DefaultScale
	case scale < MinScale:
		return MinScale
	case scale > MaxScale:
		return MaxScale
	default:
		return scale
	}
}
