package canvas

import (
	"github.com/isola513i/hari-hr-system/internal/core/hierarchy"
)

// カード寸法と間隔 (ワールド座標)。
const (
	NodeWidth  = 180.0
	NodeHeight = 64.0
	HGap       = 24.0
	VGap       = 48.0
)

// Rect は軸に平行な矩形です。
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Contains は p が矩形内にあるかを返します。
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.W && p.Y >= r.Y && p.Y <= r.Y+r.H
}

// Union は r と o を包む最小の矩形を返します。
func (r Rect) Union(o Rect) Rect {
	minX, minY := min(r.X, o.X), min(r.Y, o.Y)
	maxX, maxY := max(r.X+r.W, o.X+o.W), max(r.Y+r.H, o.Y+o.H)
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// Center は矩形の中心です。
func (r Rect) Center() Point {
	return Point{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// Edge は上長から部下への線です。
type Edge struct {
	ParentID string
	ChildID  string
}

// Layout は表示中ノードの配置です。
type Layout struct {
	Rects map[string]Rect
	// Order は表示中ノードの前順走査順です。
	Order  []string
	Edges  []Edge
	Depth  map[string]int
	Bounds Rect
}

// ComputeLayout はフォレストを縮約済みノードを葉として配置します。
// 葉は左から順に並べ、親は最初と最後の子の中央に置きます。
func ComputeLayout(forest []*hierarchy.TreeNode, collapsed map[string]bool) Layout {
	l := Layout{Rects: map[string]Rect{}, Depth: map[string]int{}}
	cursor := 0.0

	var place func(n *hierarchy.TreeNode, depth int) float64
	place = func(n *hierarchy.TreeNode, depth int) float64 {
		l.Order = append(l.Order, n.ID)
		l.Depth[n.ID] = depth

		var cx float64
		if collapsed[n.ID] || len(n.Children) == 0 {
			cx = cursor + NodeWidth/2
			cursor += NodeWidth + HGap
		} else {
			var first, last float64
			for i, child := range n.Children {
				l.Edges = append(l.Edges, Edge{ParentID: n.ID, ChildID: child.ID})
				c := place(child, depth+1)
				if i == 0 {
					first = c
				}
				last = c
			}
			cx = (first + last) / 2
		}

		l.Rects[n.ID] = Rect{
			X: cx - NodeWidth/2,
			Y: float64(depth) * (NodeHeight + VGap),
			W: NodeWidth,
			H: NodeHeight,
		}
		return cx
	}

	for _, root := range forest {
		place(root, 0)
	}

	for i, id := range l.Order {
		if i == 0 {
			l.Bounds = l.Rects[id]
			continue
		}
		l.Bounds = l.Bounds.Union(l.Rects[id])
	}
	return l
}

// HitTest は画面座標 p にあるノード ID を返します。
func (l Layout) HitTest(t Transform, p Point) (string, bool) {
	w := t.ToWorld(p)
	for i := len(l.Order) - 1; i >= 0; i-- {
		id := l.Order[i]
		if l.Rects[id].Contains(w) {
			return id, true
		}
	}
	return "", false
}

// FitTransform は bounds 全体が viewport の中央に収まる変換を返します。倍率は範囲内に収めます。
func FitTransform(bounds Rect, viewport Size, padding float64) Transform {
	if bounds.W <= 0 || bounds.H <= 0 || viewport.Width <= 0 || viewport.Height <= 0 {
		return Transform{Scale: DefaultScale}
	}
	availW := max(viewport.Width-2*padding, 1)
	availH := max(viewport.Height-2*padding, 1)
	scale := clampScale(min(availW/bounds.W, availH/bounds.H))

	return Transform{
		OffsetX: (viewport.Width-bounds.W*scale)/2 - bounds.X*scale,
		OffsetY: (viewport.Height-bounds.H*scale)/2 - bounds.Y*scale,
		Scale:   scale,
	}
}
