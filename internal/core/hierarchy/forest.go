package hierarchy

// TreeNode は BuildForest が返す木構造のノードです。
// 毎回新しく確保される使い捨ての射影であり、正規の状態は持ちません。
type TreeNode struct {
	Node
	Children []*TreeNode
}

// BuildForest はフラットなノード一覧からルートの一覧を構築します。
// 子の順序は入力順に従います。上長が一覧に存在しないノードはルートとして扱います。
// 循環したデータが渡された場合は、入力順で最初に現れた循環メンバーをルートに昇格させて木を保ちます。
func BuildForest(nodes []Node) []*TreeNode {
	index := make(map[string]*TreeNode, len(nodes))
	order := make([]*TreeNode, 0, len(nodes))
	for _, n := range nodes {
		if _, dup := index[n.ID]; dup {
			continue
		}
		tn := &TreeNode{Node: n}
		index[n.ID] = tn
		order = append(order, tn)
	}

	roots := make([]*TreeNode, 0)
	for _, tn := range order {
		if tn.ParentID == nil || *tn.ParentID == tn.ID {
			roots = append(roots, tn)
			continue
		}
		parent, ok := index[*tn.ParentID]
		if !ok {
			roots = append(roots, tn)
			continue
		}
		parent.Children = append(parent.Children, tn)
	}

	visited := make(map[string]struct{}, len(order))
	mark := func(root *TreeNode) {
		stack := []*TreeNode{root}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if _, ok := visited[top.ID]; ok {
				continue
			}
			visited[top.ID] = struct{}{}
			stack = append(stack, top.Children...)
		}
	}
	for _, r := range roots {
		mark(r)
	}

	for _, tn := range order {
		if _, ok := visited[tn.ID]; ok {
			continue
		}
		parent := index[*tn.ParentID]
		parent.Children = removeChild(parent.Children, tn)
		roots = append(roots, tn)
		mark(tn)
	}

	return roots
}

// Walk は深さ優先 (先行順) で forest を走査します。fn が false を返すとその子は辿りません。
func Walk(forest []*TreeNode, fn func(n *TreeNode, depth int) bool) {
	type frame struct {
		node  *TreeNode
		depth int
	}
	stack := make([]frame, 0, len(forest))
	for i := len(forest) - 1; i >= 0; i-- {
		stack = append(stack, frame{node: forest[i]})
	}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(top.node, top.depth) {
			continue
		}
		for i := len(top.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: top.node.Children[i], depth: top.depth + 1})
		}
	}
}

// DirectReportCounts は在籍中のノードだけを数えた直属の部下数を返します。
func DirectReportCounts(nodes []Node) map[string]int {
	counts := make(map[string]int, len(nodes))
	for _, n := range nodes {
		if n.ParentID == nil || !n.IsActive() {
			continue
		}
		counts[*n.ParentID]++
	}
	return counts
}

// CollectSubtree は rootID を起点に子方向へ幅優先で辿り、ルートと在籍中の子孫を返します。
// 結果は幅優先の訪問順です。
// ルートが存在しないか退職済みなら nil を返します。
func CollectSubtree(nodes []Node, rootID string) []Node {
	byID := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}
	root, ok := byID[rootID]
	if !ok || !root.IsActive() {
		return nil
	}

	children := childIndex(nodes)
	result := []Node{root}
	seen := map[string]struct{}{rootID: {}}
	queue := []string{rootID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, childID := range children[current] {
			if _, ok := seen[childID]; ok {
				continue
			}
			seen[childID] = struct{}{}
			queue = append(queue, childID)
			// 退職済みノードは返さないが、その配下は辿る
			if child := byID[childID]; child.IsActive() {
				result = append(result, child)
			}
		}
	}

	return result
}

func removeChild(children []*TreeNode, target *TreeNode) []*TreeNode {
	for i, c := range children {
		if c == target {
			return append(children[:i:i], children[i+1:]...)
		}
	}
	return children
}
