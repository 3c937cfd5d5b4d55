package hierarchy

import (
	"context"
	"time"
)

// Repository は階層ノードの永続化 (Node Store) の抽象です。
// 正規のノード状態を所有するのはこの実装だけです。
type Repository interface {
	// ListAll は filter に一致するノードを名前順で返します。
	// Department 指定時も、一致したノードの祖先は結果に含めます。
	ListAll(ctx context.Context, filter ListFilter) ([]*Node, error)
	// ListSubtree は rootID とその在籍中の子孫を返します。ルートが無ければ空スライスです。
	ListSubtree(ctx context.Context, rootID string) ([]*Node, error)
	FindByID(ctx context.Context, id string) (*Node, error)
	Create(ctx context.Context, node *Node) (*Node, error)
	UpdateAttributes(ctx context.Context, node *Node) (*Node, error)
	SetParent(ctx context.Context, id string, parentID *string, updatedAt time.Time) (*Node, error)
	// ReparentChildren は fromID 直下のノードをすべて toID 配下へ付け替え、件数を返します。
	ReparentChildren(ctx context.Context, fromID string, toID *string, updatedAt time.Time) (int, error)
	Delete(ctx context.Context, id string) error
}
