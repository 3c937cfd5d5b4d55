package hierarchy

import (
	"math/rand"
	"reflect"
	"sort"
	"testing"
)

func childIDs(n *TreeNode) []string {
	ids := make([]string, 0, len(n.Children))
	for _, c := range n.Children {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestBuildForest_Scenario(t *testing.T) {
	t.Parallel()

	forest := BuildForest(scenarioForest())
	if len(forest) != 1 || forest[0].ID != "A" {
		t.Fatalf("expected single root A, got %+v", forest)
	}
	if got := childIDs(forest[0]); !reflect.DeepEqual(got, []string{"B", "C"}) {
		t.Fatalf("expected children [B C] in input order, got %v", got)
	}
	if got := childIDs(forest[0].Children[0]); !reflect.DeepEqual(got, []string{"D"}) {
		t.Fatalf("expected B to have child D, got %v", got)
	}
}

func TestBuildForest_MultipleRootsAndDangling(t *testing.T) {
	t.Parallel()

	nodes := []Node{
		node("r1", ""),
		node("orphan", "ghost"),
		node("r2", ""),
		node("c1", "r2"),
	}
	forest := BuildForest(nodes)

	roots := make([]string, 0, len(forest))
	for _, r := range forest {
		roots = append(roots, r.ID)
	}
	if !reflect.DeepEqual(roots, []string{"r1", "orphan", "r2"}) {
		t.Fatalf("expected dangling node kept as root in input order, got %v", roots)
	}
}

func TestBuildForest_BreaksCorruptCycle(t *testing.T) {
	t.Parallel()

	nodes := []Node{node("root", ""), node("x", "y"), node("y", "x"), node("self", "self")}
	forest := BuildForest(nodes)

	seen := map[string]int{}
	Walk(forest, func(n *TreeNode, _ int) bool {
		seen[n.ID]++
		return true
	})
	for _, id := range []string{"root", "x", "y", "self"} {
		if seen[id] != 1 {
			t.Fatalf("expected %s exactly once in forest, got %d (%v)", id, seen[id], seen)
		}
	}
}

func TestBuildForest_FreshAllocationEachCall(t *testing.T) {
	t.Parallel()

	nodes := scenarioForest()
	first := BuildForest(nodes)
	first[0].Children = nil

	second := BuildForest(nodes)
	if len(second[0].Children) != 2 {
		t.Fatalf("rebuilding must not observe mutations of an earlier projection")
	}
}

func TestWalk_DepthAndPruning(t *testing.T) {
	t.Parallel()

	forest := BuildForest(scenarioForest())

	var visited []string
	depths := map[string]int{}
	Walk(forest, func(n *TreeNode, depth int) bool {
		visited = append(visited, n.ID)
		depths[n.ID] = depth
		return n.ID != "B"
	})

	if !reflect.DeepEqual(visited, []string{"A", "B", "C"}) {
		t.Fatalf("expected pre-order with B pruned, got %v", visited)
	}
	if depths["C"] != 1 {
		t.Fatalf("expected depth 1 for C, got %d", depths["C"])
	}
}

func TestDirectReportCounts_IgnoresTerminated(t *testing.T) {
	t.Parallel()

	nodes := scenarioForest()
	nodes[2].Status = StatusTerminated // C

	counts := DirectReportCounts(nodes)
	if counts["A"] != 1 {
		t.Fatalf("expected A to have 1 active report, got %d", counts["A"])
	}
	if counts["B"] != 1 {
		t.Fatalf("expected B to have 1 active report, got %d", counts["B"])
	}
}

func TestCollectSubtree_Exactness(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(11))
	for round := 0; round < 30; round++ {
		nodes := randomForest(rng, 25)
		for i := range nodes {
			if rng.Intn(6) == 0 {
				nodes[i].Status = StatusTerminated
			}
		}

		for _, root := range nodes {
			got := CollectSubtree(nodes, root.ID)
			if !root.IsActive() {
				if got != nil {
					t.Fatalf("expected nil subtree for terminated root %s", root.ID)
				}
				continue
			}

			want := []string{root.ID}
			for _, n := range nodes {
				if !n.IsActive() || n.ID == root.ID {
					continue
				}
				chain, err := AncestorChain(nodes, n.ID)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				for _, a := range chain {
					if a == root.ID {
						want = append(want, n.ID)
						break
					}
				}
			}

			gotIDs := make([]string, 0, len(got))
			for _, n := range got {
				gotIDs = append(gotIDs, n.ID)
			}
			sort.Strings(gotIDs)
			sort.Strings(want)
			if !reflect.DeepEqual(gotIDs, want) {
				t.Fatalf("round %d subtree(%s) = %v, want %v", round, root.ID, gotIDs, want)
			}
		}
	}
}

func TestCollectSubtree_Scenario(t *testing.T) {
	t.Parallel()

	got := CollectSubtree(scenarioForest(), "B")
	if len(got) != 2 || got[0].ID != "B" || got[1].ID != "D" {
		t.Fatalf("expected [B D], got %+v", got)
	}

	if got := CollectSubtree(scenarioForest(), "missing"); got != nil {
		t.Fatalf("expected nil for unknown root, got %+v", got)
	}
}
