package hierarchyv1

import (
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/isola513i/hari-hr-system/internal/core/hierarchy"
)

func TestNodeStructRoundTrip(t *testing.T) {
	t.Parallel()

	parent := "a"
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	in := []*hierarchy.Node{
		{ID: "a", Name: "Alice", Role: "CEO", Status: hierarchy.StatusActive, DirectReportCount: 1, CreatedAt: created, UpdatedAt: created},
		{ID: "b", ParentID: &parent, Name: "Bob", Role: "CTO", Email: "bob@example.com", Status: hierarchy.StatusOnLeave},
	}

	s, err := NewStruct(map[string]any{"nodes": NodesValue(in)})
	if err != nil {
		t.Fatalf("NewStruct returned error: %v", err)
	}

	out, err := NodesFromStruct(s)
	if err != nil {
		t.Fatalf("NodesFromStruct returned error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(out))
	}
	if !out[0].IsRoot() || out[0].DirectReportCount != 1 || !out[0].CreatedAt.Equal(created) {
		t.Fatalf("unexpected root: %+v", out[0])
	}
	if !out[1].HasParent("a") || out[1].Status != hierarchy.StatusOnLeave || !out[1].CreatedAt.IsZero() {
		t.Fatalf("unexpected child: %+v", out[1])
	}
}

func TestFieldSet_OptionalString(t *testing.T) {
	t.Parallel()

	s, err := structpb.NewStruct(map[string]any{"parentId": nil, "name": "x"})
	if err != nil {
		t.Fatalf("NewStruct returned error: %v", err)
	}
	f := Fields(s)

	if v, present := f.OptionalString("parentId"); !present || v != nil {
		t.Fatalf("explicit null must be present and nil, got %v %v", v, present)
	}
	if v, present := f.OptionalString("missing"); present || v != nil {
		t.Fatalf("missing field must be absent, got %v %v", v, present)
	}
	if v, present := f.OptionalString("name"); !present || v == nil || *v != "x" {
		t.Fatalf("unexpected value %v %v", v, present)
	}
}

func TestNodeFromStruct_RequiresID(t *testing.T) {
	t.Parallel()

	if _, err := NodeFromStruct(&structpb.Struct{}); err == nil {
		t.Fatal("expected error for node without id")
	}
}

func TestFullMethod(t *testing.T) {
	t.Parallel()

	if got := FullMethod(MethodReassign); got != "/hierarchy.v1.HierarchyService/Reassign" {
		t.Fatalf("unexpected full method %s", got)
	}
}
