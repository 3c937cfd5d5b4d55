package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"testing"
	"time"
)

type stubClock struct {
	now time.Time
}

func (s *stubClock) Now() time.Time {
	return s.now
}

type fakeNodeRepo struct {
	nodes  map[string]*Node
	order  []string
	writes int
}

func newFakeNodeRepo(seed ...Node) *fakeNodeRepo {
	r := &fakeNodeRepo{nodes: make(map[string]*Node)}
	for _, n := range seed {
		n := n
		r.nodes[n.ID] = n.Clone()
		r.order = append(r.order, n.ID)
	}
	return r
}

func (r *fakeNodeRepo) snapshot() []Node {
	out := make([]Node, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.nodes[id])
	}
	return out
}

func (r *fakeNodeRepo) withCount(n *Node) *Node {
	clone := n.Clone()
	clone.DirectReportCount = DirectReportCounts(r.snapshot())[n.ID]
	return clone
}

func (r *fakeNodeRepo) ListAll(_ context.Context, filter ListFilter) ([]*Node, error) {
	all := r.snapshot()
	keep := make(map[string]bool)
	for _, n := range all {
		if !filter.IncludeTerminated && !n.IsActive() {
			continue
		}
		if filter.Department != nil && n.Department != *filter.Department {
			continue
		}
		keep[n.ID] = true
		if filter.Department != nil {
			chain, err := AncestorChain(all, n.ID)
			if err != nil {
				return nil, err
			}
			for _, a := range chain {
				keep[a] = true
			}
		}
	}

	out := make([]*Node, 0, len(keep))
	for _, id := range r.order {
		if keep[id] {
			out = append(out, r.withCount(r.nodes[id]))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *fakeNodeRepo) ListSubtree(_ context.Context, rootID string) ([]*Node, error) {
	sub := CollectSubtree(r.snapshot(), rootID)
	out := make([]*Node, 0, len(sub))
	for _, n := range sub {
		out = append(out, r.withCount(r.nodes[n.ID]))
	}
	return out, nil
}

func (r *fakeNodeRepo) FindByID(_ context.Context, id string) (*Node, error) {
	n, ok := r.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	return r.withCount(n), nil
}

func (r *fakeNodeRepo) Create(_ context.Context, n *Node) (*Node, error) {
	for _, existing := range r.nodes {
		if strings.EqualFold(existing.Email, n.Email) && n.Email != "" {
			return nil, ErrConflict
		}
	}
	r.writes++
	r.nodes[n.ID] = n.Clone()
	r.order = append(r.order, n.ID)
	return r.withCount(n), nil
}

func (r *fakeNodeRepo) UpdateAttributes(_ context.Context, n *Node) (*Node, error) {
	existing, ok := r.nodes[n.ID]
	if !ok {
		return nil, ErrNodeNotFound
	}
	r.writes++
	parent := existing.ParentID
	updated := n.Clone()
	updated.ParentID = parent
	r.nodes[n.ID] = updated
	return r.withCount(updated), nil
}

func (r *fakeNodeRepo) SetParent(_ context.Context, id string, parentID *string, at time.Time) (*Node, error) {
	existing, ok := r.nodes[id]
	if !ok {
		return nil, ErrNodeNotFound
	}
	r.writes++
	existing.ParentID = cloneID(parentID)
	existing.UpdatedAt = at
	return r.withCount(existing), nil
}

func (r *fakeNodeRepo) ReparentChildren(_ context.Context, fromID string, toID *string, at time.Time) (int, error) {
	moved := 0
	for _, id := range r.order {
		n := r.nodes[id]
		if n.HasParent(fromID) {
			n.ParentID = cloneID(toID)
			n.UpdatedAt = at
			moved++
		}
	}
	r.writes++
	return moved, nil
}

func (r *fakeNodeRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.nodes[id]; !ok {
		return ErrNodeNotFound
	}
	r.writes++
	delete(r.nodes, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

type countingRecorder struct {
	outcomes []ReassignOutcome
}

func (c *countingRecorder) ObserveReassignment(o ReassignOutcome) {
	c.outcomes = append(c.outcomes, o)
}

var admin = Actor{ID: "admin", CanMutate: true}

func newScenarioService(t *testing.T) (*Service, *fakeNodeRepo, *countingRecorder) {
	t.Helper()
	repo := newFakeNodeRepo(scenarioForest()...)
	rec := &countingRecorder{}
	seq := 0
	svc := NewService(repo, &stubClock{now: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}, nil,
		WithRecorder(rec),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("new-%d", seq)
		}),
	)
	return svc, repo, rec
}

func subtreeIDs(nodes []*Node) []string {
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

func TestService_Scenario(t *testing.T) {
	t.Parallel()

	svc, repo, rec := newScenarioService(t)
	ctx := context.Background()

	sub, err := svc.GetSubtree(ctx, GetSubtreeInput{RootID: "B"})
	if err != nil {
		t.Fatalf("GetSubtree returned error: %v", err)
	}
	if got := subtreeIDs(sub); len(got) != 2 || got[0] != "B" || got[1] != "D" {
		t.Fatalf("expected subtree [B D], got %v", got)
	}

	before := repo.writes
	_, err = svc.Reassign(ctx, ReassignInput{Actor: admin, NodeID: "A", NewParentID: strPtr("D")})
	if !errors.Is(err, ErrCycleRejected) {
		t.Fatalf("expected ErrCycleRejected moving A under D, got %v", err)
	}
	if repo.writes != before {
		t.Fatalf("rejected reassignment must not write")
	}

	res, err := svc.Reassign(ctx, ReassignInput{Actor: admin, NodeID: "D", NewParentID: strPtr("C")})
	if err != nil {
		t.Fatalf("Reassign D under C returned error: %v", err)
	}
	if res.NoOp || res.Node.ParentID == nil || *res.Node.ParentID != "C" {
		t.Fatalf("expected D to report to C, got %+v", res)
	}

	sub, err = svc.GetSubtree(ctx, GetSubtreeInput{RootID: "A"})
	if err != nil {
		t.Fatalf("GetSubtree returned error: %v", err)
	}
	forest := BuildForest(values(sub))
	if len(forest) != 1 {
		t.Fatalf("expected one root, got %d", len(forest))
	}
	var c *TreeNode
	for _, child := range forest[0].Children {
		if child.ID == "C" {
			c = child
		}
	}
	if c == nil || len(c.Children) != 1 || c.Children[0].ID != "D" {
		t.Fatalf("expected D under C in subtree(A), got %+v", forest[0])
	}

	if len(rec.outcomes) != 2 || rec.outcomes[0] != OutcomeCycleRejected || rec.outcomes[1] != OutcomeAccepted {
		t.Fatalf("unexpected recorded outcomes %v", rec.outcomes)
	}
}

func TestService_Reassign_NoOpAndSelf(t *testing.T) {
	t.Parallel()

	svc, repo, rec := newScenarioService(t)
	ctx := context.Background()

	res, err := svc.Reassign(ctx, ReassignInput{Actor: admin, NodeID: "D", NewParentID: strPtr("B")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.NoOp || repo.writes != 0 {
		t.Fatalf("expected no-op without writes, got %+v writes=%d", res, repo.writes)
	}

	if _, err := svc.Reassign(ctx, ReassignInput{Actor: admin, NodeID: "B", NewParentID: strPtr("B")}); !errors.Is(err, ErrSelfReference) {
		t.Fatalf("expected ErrSelfReference, got %v", err)
	}

	res, err = svc.Reassign(ctx, ReassignInput{Actor: admin, NodeID: "A", NewParentID: nil})
	if err != nil || !res.NoOp {
		t.Fatalf("expected root-to-root to be a no-op, got %+v %v", res, err)
	}

	if rec.outcomes[0] != OutcomeNoOp {
		t.Fatalf("expected noop outcome recorded, got %v", rec.outcomes)
	}
}

func TestService_Reassign_NotFoundAndTerminated(t *testing.T) {
	t.Parallel()

	svc, repo, _ := newScenarioService(t)
	ctx := context.Background()
	repo.nodes["C"].Status = StatusTerminated

	if _, err := svc.Reassign(ctx, ReassignInput{Actor: admin, NodeID: "missing", NewParentID: strPtr("A")}); !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("expected ErrNodeNotFound for moving node, got %v", err)
	}
	if _, err := svc.Reassign(ctx, ReassignInput{Actor: admin, NodeID: "D", NewParentID: strPtr("missing")}); !errors.Is(err, ErrParentNotFound) {
		t.Fatalf("expected ErrParentNotFound for target, got %v", err)
	}
	if _, err := svc.Reassign(ctx, ReassignInput{Actor: admin, NodeID: "D", NewParentID: strPtr("C")}); !errors.Is(err, ErrParentTerminated) {
		t.Fatalf("expected ErrParentTerminated, got %v", err)
	}
	if _, err := svc.Reassign(ctx, ReassignInput{Actor: admin, NodeID: "D", NewParentID: strPtr(" ")}); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID for blank parent, got %v", err)
	}
	if repo.writes != 0 {
		t.Fatalf("failed reassignments must not write, got %d writes", repo.writes)
	}
}

func TestService_Reassign_BecomeRoot(t *testing.T) {
	t.Parallel()

	svc, _, _ := newScenarioService(t)
	res, err := svc.Reassign(context.Background(), ReassignInput{Actor: admin, NodeID: "B", NewParentID: nil})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Node.IsRoot() {
		t.Fatalf("expected B to become a root, got %+v", res.Node)
	}
	if res.Node.DirectReportCount != 1 {
		t.Fatalf("expected refreshed direct report count 1, got %d", res.Node.DirectReportCount)
	}
}

func TestService_MutationsRequireCapability(t *testing.T) {
	t.Parallel()

	svc, repo, rec := newScenarioService(t)
	ctx := context.Background()
	viewer := Actor{ID: "viewer"}

	if _, err := svc.Reassign(ctx, ReassignInput{Actor: viewer, NodeID: "D", NewParentID: strPtr("C")}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on reassign, got %v", err)
	}
	if _, err := svc.CreateNode(ctx, CreateNodeInput{Actor: viewer, Name: "n", Role: "r", Email: "n@example.com"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on create, got %v", err)
	}
	name := "renamed"
	if _, err := svc.UpdateNode(ctx, UpdateNodeInput{Actor: viewer, ID: "D", Name: &name}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on update, got %v", err)
	}
	if _, err := svc.DeleteNode(ctx, DeleteNodeInput{Actor: viewer, ID: "D"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized on delete, got %v", err)
	}
	if repo.writes != 0 {
		t.Fatalf("unauthorized calls must not write")
	}
	if rec.outcomes[0] != OutcomeUnauthorized {
		t.Fatalf("expected unauthorized outcome, got %v", rec.outcomes)
	}
}

func TestService_CreateNode(t *testing.T) {
	t.Parallel()

	svc, _, _ := newScenarioService(t)
	ctx := context.Background()

	created, err := svc.CreateNode(ctx, CreateNodeInput{
		Actor:      admin,
		Name:       "  Erin Example ",
		Role:       " Analyst ",
		Email:      " Erin@Example.com ",
		Department: " Finance ",
		ParentID:   strPtr("C"),
	})
	if err != nil {
		t.Fatalf("CreateNode returned error: %v", err)
	}
	if created.ID != "new-1" || created.Name != "Erin Example" || created.Email != "erin@example.com" {
		t.Fatalf("unexpected normalized node %+v", created)
	}
	if created.Status != StatusActive {
		t.Fatalf("expected default status active, got %s", created.Status)
	}
	if created.Avatar != DefaultPlaceholderURL+"?name=EE" {
		t.Fatalf("expected placeholder avatar, got %s", created.Avatar)
	}

	parent, err := svc.GetNode(ctx, GetNodeInput{ID: "C"})
	if err != nil {
		t.Fatalf("GetNode returned error: %v", err)
	}
	if parent.DirectReportCount != 1 {
		t.Fatalf("expected C to have 1 report after insert, got %d", parent.DirectReportCount)
	}
}

func TestService_CreateNode_Validation(t *testing.T) {
	t.Parallel()

	svc, repo, _ := newScenarioService(t)
	ctx := context.Background()
	repo.nodes["C"].Status = StatusTerminated

	cases := []struct {
		name string
		in   CreateNodeInput
		want error
	}{
		{name: "missing name", in: CreateNodeInput{Actor: admin, Role: "r", Email: "a@example.com"}, want: ErrValidationFailed},
		{name: "bad email", in: CreateNodeInput{Actor: admin, Name: "n", Role: "r", Email: "nope"}, want: ErrValidationFailed},
		{name: "missing parent", in: CreateNodeInput{Actor: admin, Name: "n", Role: "r", Email: "a@example.com", ParentID: strPtr("ghost")}, want: ErrParentNotFound},
		{name: "terminated parent", in: CreateNodeInput{Actor: admin, Name: "n", Role: "r", Email: "a@example.com", ParentID: strPtr("C")}, want: ErrParentTerminated},
		{name: "bad status", in: CreateNodeInput{Actor: admin, Name: "n", Role: "r", Email: "a@example.com", Status: func() *Status { s := Status("retired"); return &s }()}, want: ErrInvalidStatus},
	}

	for _, tc := range cases {
		if _, err := svc.CreateNode(ctx, tc.in); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	if repo.writes != 0 {
		t.Fatalf("invalid creates must not write")
	}
}

func TestService_CreateNode_DuplicateEmail(t *testing.T) {
	t.Parallel()

	svc, _, _ := newScenarioService(t)
	ctx := context.Background()
	in := CreateNodeInput{Actor: admin, Name: "n", Role: "r", Email: "dup@example.com"}
	if _, err := svc.CreateNode(ctx, in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.CreateNode(ctx, in); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestService_UpdateNode_AttributesAndParent(t *testing.T) {
	t.Parallel()

	svc, _, _ := newScenarioService(t)
	ctx := context.Background()

	role := "Staff Engineer"
	dept := "Platform"
	updated, err := svc.UpdateNode(ctx, UpdateNodeInput{
		Actor:       admin,
		ID:          "D",
		Role:        &role,
		Department:  &dept,
		ParentID:    strPtr("C"),
		ParentIDSet: true,
	})
	if err != nil {
		t.Fatalf("UpdateNode returned error: %v", err)
	}
	if updated.Role != role || updated.Department != dept {
		t.Fatalf("expected attributes applied, got %+v", updated)
	}
	if updated.ParentID == nil || *updated.ParentID != "C" {
		t.Fatalf("expected parent C, got %v", updated.ParentID)
	}

	rooted, err := svc.UpdateNode(ctx, UpdateNodeInput{Actor: admin, ID: "D", ParentIDSet: true})
	if err != nil {
		t.Fatalf("UpdateNode to root returned error: %v", err)
	}
	if !rooted.IsRoot() {
		t.Fatalf("expected explicit null parent to make D a root")
	}
}

func TestService_UpdateNode_RejectedMoveWritesNothing(t *testing.T) {
	t.Parallel()

	svc, repo, _ := newScenarioService(t)
	name := "Renamed"
	_, err := svc.UpdateNode(context.Background(), UpdateNodeInput{
		Actor:       admin,
		ID:          "A",
		Name:        &name,
		ParentID:    strPtr("D"),
		ParentIDSet: true,
	})
	if !errors.Is(err, ErrCycleRejected) {
		t.Fatalf("expected ErrCycleRejected, got %v", err)
	}
	if repo.writes != 0 || repo.nodes["A"].Name != "A" {
		t.Fatalf("attributes must not be written when the move is rejected")
	}
}

func TestService_UpdateNode_BlankNameRejected(t *testing.T) {
	t.Parallel()

	svc, _, _ := newScenarioService(t)
	blank := "  "
	if _, err := svc.UpdateNode(context.Background(), UpdateNodeInput{Actor: admin, ID: "B", Name: &blank}); !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("expected ErrValidationFailed, got %v", err)
	}
}

func TestService_DeleteNode_ReparentsToParent(t *testing.T) {
	t.Parallel()

	svc, repo, _ := newScenarioService(t)
	res, err := svc.DeleteNode(context.Background(), DeleteNodeInput{Actor: admin, ID: "B"})
	if err != nil {
		t.Fatalf("DeleteNode returned error: %v", err)
	}
	if res.Reparented != 1 || res.NewParentID == nil || *res.NewParentID != "A" {
		t.Fatalf("unexpected delete result %+v", res)
	}
	if _, ok := repo.nodes["B"]; ok {
		t.Fatalf("expected B removed")
	}
	if !repo.nodes["D"].HasParent("A") {
		t.Fatalf("expected D re-parented to A")
	}
}

func TestService_DeleteNode_SkipsTerminatedAncestors(t *testing.T) {
	t.Parallel()

	svc, repo, _ := newScenarioService(t)
	repo.nodes["B"].Status = StatusTerminated
	repo.nodes["A"].Status = StatusTerminated

	res, err := svc.DeleteNode(context.Background(), DeleteNodeInput{Actor: admin, ID: "D"})
	if err != nil {
		t.Fatalf("DeleteNode returned error: %v", err)
	}
	if res.NewParentID != nil || res.Reparented != 0 {
		t.Fatalf("unexpected result %+v", res)
	}

	res, err = svc.DeleteNode(context.Background(), DeleteNodeInput{Actor: admin, ID: "C"})
	if err != nil || res.Reparented != 0 {
		t.Fatalf("unexpected result %+v %v", res, err)
	}
}

func TestService_DeleteNode_RootPromotesReports(t *testing.T) {
	t.Parallel()

	svc, repo, _ := newScenarioService(t)
	res, err := svc.DeleteNode(context.Background(), DeleteNodeInput{Actor: admin, ID: "A"})
	if err != nil {
		t.Fatalf("DeleteNode returned error: %v", err)
	}
	if res.Reparented != 2 || res.NewParentID != nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if !repo.nodes["B"].IsRoot() || !repo.nodes["C"].IsRoot() {
		t.Fatalf("expected B and C promoted to roots")
	}
}

func TestService_ListHierarchy_DepartmentKeepsAncestors(t *testing.T) {
	t.Parallel()

	svc, repo, _ := newScenarioService(t)
	repo.nodes["D"].Department = "Research"

	dept := "Research"
	nodes, err := svc.ListHierarchy(context.Background(), ListHierarchyInput{Department: &dept})
	if err != nil {
		t.Fatalf("ListHierarchy returned error: %v", err)
	}
	got := subtreeIDs(nodes)
	sort.Strings(got)
	if strings.Join(got, ",") != "A,B,D" {
		t.Fatalf("expected matched node plus ancestors [A B D], got %v", got)
	}
}

func TestService_GetSubtree_NotFoundIsEmpty(t *testing.T) {
	t.Parallel()

	svc, _, _ := newScenarioService(t)
	nodes, err := svc.GetSubtree(context.Background(), GetSubtreeInput{RootID: "ghost"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if nodes == nil || len(nodes) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", nodes)
	}

	if _, err := svc.GetSubtree(context.Background(), GetSubtreeInput{RootID: ""}); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestService_DirectReportCountStaysConsistent(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(3))
	seed := randomForest(rng, 20)
	repo := newFakeNodeRepo(seed...)
	svc := NewService(repo, &stubClock{now: time.Now().UTC()}, nil)
	ctx := context.Background()

	for step := 0; step < 300; step++ {
		snapshot := repo.snapshot()
		moving := snapshot[rng.Intn(len(snapshot))].ID
		switch rng.Intn(5) {
		case 0:
			terminated := StatusTerminated
			_, _ = svc.UpdateNode(ctx, UpdateNodeInput{Actor: admin, ID: moving, Status: &terminated})
		case 1:
			_, _ = svc.Reassign(ctx, ReassignInput{Actor: admin, NodeID: moving})
		default:
			target := snapshot[rng.Intn(len(snapshot))].ID
			_, _ = svc.Reassign(ctx, ReassignInput{Actor: admin, NodeID: moving, NewParentID: &target})
		}

		listed, err := svc.ListHierarchy(ctx, ListHierarchyInput{IncludeTerminated: true})
		if err != nil {
			t.Fatalf("step %d: ListHierarchy returned error: %v", step, err)
		}
		all := values(listed)
		for _, n := range listed {
			want := 0
			for _, m := range all {
				if m.HasParent(n.ID) && m.IsActive() {
					want++
				}
			}
			if n.DirectReportCount != want {
				t.Fatalf("step %d: node %s count %d, want %d", step, n.ID, n.DirectReportCount, want)
			}
			if _, err := AncestorChain(all, n.ID); err != nil {
				t.Fatalf("step %d: hierarchy became cyclic: %v", step, err)
			}
		}
	}
}
