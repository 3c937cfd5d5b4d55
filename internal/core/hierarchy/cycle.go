package hierarchy

// Descendants は movingID の推移的な部下の ID 集合を返します。movingID 自身は含みません。
// 入力に循環があっても各ノードは一度しか訪問しないため停止します。
func Descendants(nodes []Node, movingID string) map[string]struct{} {
	children := childIndex(nodes)
	seen := make(map[string]struct{})

	queue := []string{movingID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, child := range children[current] {
			if child == movingID {
				continue
			}
			if _, ok := seen[child]; ok {
				continue
			}
			seen[child] = struct{}{}
			queue = append(queue, child)
		}
	}

	return seen
}

// WouldCreateCycle は movingID の上長を proposedParentID に変えると不正になるかを返します。
// 自己参照、配下ノードへの付け替え、存在しない上長はすべて不正です。
// nil (ルート化) は常に許可されます。
//
// サーバー側の付け替えとキャンバスのドロップ判定の両方がこの関数を使います。
func WouldCreateCycle(nodes []Node, movingID string, proposedParentID *string) bool {
	if proposedParentID == nil {
		return false
	}
	target := *proposedParentID
	if target == movingID {
		return true
	}
	if !containsID(nodes, target) {
		return true
	}
	_, isDescendant := Descendants(nodes, movingID)[target]
	return isDescendant
}

// checkParentAssignment は WouldCreateCycle と同じ判定を型付きエラーで返します。
func checkParentAssignment(nodes []Node, movingID string, proposedParentID *string) error {
	if proposedParentID == nil {
		return nil
	}
	if *proposedParentID == movingID {
		return ErrSelfReference
	}
	if !containsID(nodes, *proposedParentID) {
		return ErrParentNotFound
	}
	if WouldCreateCycle(nodes, movingID, proposedParentID) {
		return ErrCycleRejected
	}
	return nil
}

func childIndex(nodes []Node) map[string][]string {
	children := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		if n.ParentID == nil {
			continue
		}
		children[*n.ParentID] = append(children[*n.ParentID], n.ID)
	}
	return children
}

func containsID(nodes []Node, id string) bool {
	for _, n := range nodes {
		if n.ID == id {
			return true
		}
	}
	return false
}
