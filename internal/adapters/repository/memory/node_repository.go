// Package memory はプロセス内メモリに階層ノードを保持する Node Store 実装です。
// ローカル開発 (storage.driver=memory) とテストで使います。
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/isola513i/hari-hr-system/internal/core/hierarchy"
)

// NodeRepository はメモリ上の Node Store です。書き込みは mutex で直列化されます。
type NodeRepository struct {
	mu    sync.RWMutex
	nodes map[string]*hierarchy.Node
	order []string
}

// NewNodeRepository は seed を初期データとして NodeRepository を生成します。
func NewNodeRepository(seed ...hierarchy.Node) *NodeRepository {
	r := &NodeRepository{nodes: make(map[string]*hierarchy.Node, len(seed))}
	for i := range seed {
		n := seed[i]
		if _, dup := r.nodes[n.ID]; dup {
			continue
		}
		r.nodes[n.ID] = n.Clone()
		r.order = append(r.order, n.ID)
	}
	return r
}

// ListAll は filter に一致するノードを名前順で返します。部署指定時は祖先も含めます。
func (r *NodeRepository) ListAll(_ context.Context, filter hierarchy.ListFilter) ([]*hierarchy.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.snapshotLocked()
	keep := make(map[string]struct{}, len(all))
	for _, n := range all {
		if !filter.IncludeTerminated && !n.IsActive() {
			continue
		}
		if filter.Department != nil && !strings.EqualFold(n.Department, *filter.Department) {
			continue
		}
		keep[n.ID] = struct{}{}
		if filter.Department == nil {
			continue
		}
		chain, err := hierarchy.AncestorChain(all, n.ID)
		if err != nil {
			return nil, err
		}
		for _, id := range chain {
			keep[id] = struct{}{}
		}
	}

	counts := hierarchy.DirectReportCounts(all)
	out := make([]*hierarchy.Node, 0, len(keep))
	for _, id := range r.order {
		if _, ok := keep[id]; ok {
			out = append(out, withCount(r.nodes[id], counts))
		}
	}
	sortByName(out)
	return out, nil
}

// ListSubtree は rootID を起点とした部分木を返します。
func (r *NodeRepository) ListSubtree(_ context.Context, rootID string) ([]*hierarchy.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.snapshotLocked()
	sub := hierarchy.CollectSubtree(all, rootID)
	counts := hierarchy.DirectReportCounts(all)
	out := make([]*hierarchy.Node, 0, len(sub))
	for _, n := range sub {
		out = append(out, withCount(r.nodes[n.ID], counts))
	}
	return out, nil
}

// FindByID は ID でノードを取得します。
func (r *NodeRepository) FindByID(_ context.Context, id string) (*hierarchy.Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.nodes[id]
	if !ok {
		return nil, hierarchy.ErrNodeNotFound
	}
	return withCount(n, hierarchy.DirectReportCounts(r.snapshotLocked())), nil
}

// Create はノードを追加します。メールアドレスの重複は ErrConflict です。
func (r *NodeRepository) Create(_ context.Context, n *hierarchy.Node) (*hierarchy.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[n.ID]; exists {
		return nil, hierarchy.ErrConflict
	}
	for _, existing := range r.nodes {
		if n.Email != "" && strings.EqualFold(existing.Email, n.Email) {
			return nil, hierarchy.ErrConflict
		}
	}
	if n.ParentID != nil {
		if _, ok := r.nodes[*n.ParentID]; !ok {
			return nil, hierarchy.ErrParentNotFound
		}
	}

	stored := n.Clone()
	stored.DirectReportCount = 0
	r.nodes[n.ID] = stored
	r.order = append(r.order, n.ID)
	return stored.Clone(), nil
}

// UpdateAttributes は上長以外の属性を更新します。
func (r *NodeRepository) UpdateAttributes(_ context.Context, n *hierarchy.Node) (*hierarchy.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.nodes[n.ID]
	if !ok {
		return nil, hierarchy.ErrNodeNotFound
	}
	existing.Name = n.Name
	existing.Role = n.Role
	existing.Department = n.Department
	existing.Avatar = n.Avatar
	existing.Status = n.Status
	existing.UpdatedAt = n.UpdatedAt
	return withCount(existing, hierarchy.DirectReportCounts(r.snapshotLocked())), nil
}

// SetParent は上長参照を書き換えます。循環の検証は呼び出し側の責務です。
func (r *NodeRepository) SetParent(_ context.Context, id string, parentID *string, updatedAt time.Time) (*hierarchy.Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.nodes[id]
	if !ok {
		return nil, hierarchy.ErrNodeNotFound
	}
	if parentID != nil {
		if *parentID == id {
			return nil, hierarchy.ErrSelfReference
		}
		if _, ok := r.nodes[*parentID]; !ok {
			return nil, hierarchy.ErrParentNotFound
		}
		p := *parentID
		existing.ParentID = &p
	} else {
		existing.ParentID = nil
	}
	existing.UpdatedAt = updatedAt
	return withCount(existing, hierarchy.DirectReportCounts(r.snapshotLocked())), nil
}

// ReparentChildren は fromID 直下のノードを toID 配下へ移します。
func (r *NodeRepository) ReparentChildren(_ context.Context, fromID string, toID *string, updatedAt time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if toID != nil {
		if _, ok := r.nodes[*toID]; !ok {
			return 0, hierarchy.ErrParentNotFound
		}
	}

	moved := 0
	for _, id := range r.order {
		n := r.nodes[id]
		if !n.HasParent(fromID) || id == derefOr(toID, "") {
			continue
		}
		if toID != nil {
			p := *toID
			n.ParentID = &p
		} else {
			n.ParentID = nil
		}
		n.UpdatedAt = updatedAt
		moved++
	}
	return moved, nil
}

// Delete はノードを削除します。部下が残っている場合の扱いはサービス層が先に処理します。
func (r *NodeRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.nodes[id]; !ok {
		return hierarchy.ErrNodeNotFound
	}
	delete(r.nodes, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *NodeRepository) snapshotLocked() []hierarchy.Node {
	out := make([]hierarchy.Node, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.nodes[id])
	}
	return out
}

func withCount(n *hierarchy.Node, counts map[string]int) *hierarchy.Node {
	c := n.Clone()
	c.DirectReportCount = counts[n.ID]
	return c
}

func sortByName(nodes []*hierarchy.Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		li, lj := strings.ToLower(nodes[i].Name), strings.ToLower(nodes[j].Name)
		if li != lj {
			return li < lj
		}
		return nodes[i].ID < nodes[j].ID
	})
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
