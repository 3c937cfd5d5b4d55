package hierarchy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// FindMatch は名前または役職に term を含む (大文字小文字を区別しない) 最初のノードを返します。
// 「最初」は nodes の並び順で決まり、関連度による順位付けはしません。
func FindMatch(nodes []Node, term string) *Node {
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return nil
	}
	for i := range nodes {
		if strings.Contains(strings.ToLower(nodes[i].Name), needle) ||
			strings.Contains(strings.ToLower(nodes[i].Role), needle) {
			found := nodes[i]
			return &found
		}
	}
	return nil
}

// AncestorChain は nodeID から上長を辿り、祖先の ID を近い順に返します。
// 上長が一覧に存在しない地点で打ち切ります。辿った回数がノード数を超えた場合は
// データが循環しているとみなし ErrCorruptHierarchy を返します。
func AncestorChain(nodes []Node, nodeID string) ([]string, error) {
	byID := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	current, ok := byID[nodeID]
	if !ok {
		return nil, fmt.Errorf("ancestor chain of %s: %w", nodeID, ErrNodeNotFound)
	}

	limit := len(byID)
	chain := make([]string, 0)
	for steps := 0; current.ParentID != nil; steps++ {
		if steps >= limit {
			return nil, fmt.Errorf("ancestor chain of %s exceeded %d steps: %w", nodeID, limit, ErrCorruptHierarchy)
		}
		parent, ok := byID[*current.ParentID]
		if !ok {
			break
		}
		chain = append(chain, parent.ID)
		current = parent
	}

	return chain, nil
}

// RankMatches は名前と役職に対するあいまい検索の結果を距離の小さい順に返します。
// 同じ距離のノードは nodes の並び順を保ちます。
func RankMatches(nodes []Node, term string) []Node {
	needle := strings.TrimSpace(term)
	if needle == "" || len(nodes) == 0 {
		return nil
	}

	names := make([]string, len(nodes))
	roles := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.Name
		roles[i] = n.Role
	}

	best := make(map[int]int)
	collect := func(ranks fuzzy.Ranks) {
		for _, r := range ranks {
			if d, ok := best[r.OriginalIndex]; !ok || r.Distance < d {
				best[r.OriginalIndex] = r.Distance
			}
		}
	}
	collect(fuzzy.RankFindNormalizedFold(needle, names))
	collect(fuzzy.RankFindNormalizedFold(needle, roles))

	indexes := make([]int, 0, len(best))
	for idx := range best {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool {
		di, dj := best[indexes[i]], best[indexes[j]]
		if di != dj {
			return di < dj
		}
		return indexes[i] < indexes[j]
	})

	result := make([]Node, 0, len(indexes))
	for _, idx := range indexes {
		result = append(result, nodes[idx])
	}
	return result
}
