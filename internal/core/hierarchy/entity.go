package hierarchy

import "time"

// Status は社員ノードの在籍状態を表します。
type Status string

const (
	StatusActive     Status = "active"
	StatusOnLeave    Status = "on_leave"
	StatusTerminated Status = "terminated"
)

// Node は組織階層における社員 1 名分のノードです。
// ParentID が nil のノードはルートです。
type Node struct {
	ID         string
	ParentID   *string
	Name       string
	Role       string
	Department string
	Email      string
	Avatar     string
	Status     Status

	// DirectReportCount は読み出しのたびに parent_id から再計算される派生値です。保存はしません。
	DirectReportCount int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsRoot はノードがルートかどうかを返します。
func (n Node) IsRoot() bool {
	return n.ParentID == nil
}

// IsActive は terminated 以外のノードで true を返します。
func (n Node) IsActive() bool {
	return n.Status != StatusTerminated
}

// HasParent は ParentID が id と一致するかを返します。
func (n Node) HasParent(id string) bool {
	return n.ParentID != nil && *n.ParentID == id
}

// Clone はポインタフィールドを含めたディープコピーを返します。
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.ParentID = cloneID(n.ParentID)
	return &c
}

// Actor はリクエストの呼び出し元です。CanMutate は上位の認可層が判定済みの値です。
type Actor struct {
	ID        string
	CanMutate bool
}

// ListFilter は階層一覧の絞り込み条件です。
type ListFilter struct {
	Department        *string
	IncludeTerminated bool
}

func cloneID(id *string) *string {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
