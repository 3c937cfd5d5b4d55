package handler

import (
	"context"
	"strconv"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/isola513i/hari-hr-system/internal/adapters/grpc/hierarchyv1"
	"github.com/isola513i/hari-hr-system/internal/core/hierarchy"
	"github.com/isola513i/hari-hr-system/internal/platform/logging"
)

// HierarchyGrpcHandler は HierarchyService の gRPC 実装です。
type HierarchyGrpcHandler struct {
	svc hierarchy.UseCase
}

var _ hierarchyv1.HierarchyServiceServer = (*HierarchyGrpcHandler)(nil)

// NewHierarchyGrpcHandler は HierarchyGrpcHandler を生成します。
func NewHierarchyGrpcHandler(svc hierarchy.UseCase) *HierarchyGrpcHandler {
	return &HierarchyGrpcHandler{svc: svc}
}

// ListHierarchy はノード一覧を返します。
func (h *HierarchyGrpcHandler) ListHierarchy(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	f := hierarchyv1.Fields(req)

	var dept *string
	if d, ok := f.OptionalString("department"); ok && d != nil && strings.TrimSpace(*d) != "" {
		dept = d
	}

	nodes, err := h.svc.ListHierarchy(ctx, hierarchy.ListHierarchyInput{
		Department:        dept,
		IncludeTerminated: f.Bool("includeTerminated"),
	})
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(map[string]any{"nodes": hierarchyv1.NodesValue(nodes)})
}

// GetSubtree は rootId を起点とする部分木を返します。空の場合は NotFound です。
func (h *HierarchyGrpcHandler) GetSubtree(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	rootID := hierarchyv1.Fields(req).String("rootId")
	if strings.TrimSpace(rootID) == "" {
		return nil, status.Error(codes.InvalidArgument, "rootId is required")
	}

	nodes, err := h.svc.GetSubtree(ctx, hierarchy.GetSubtreeInput{RootID: rootID})
	if err != nil {
		return nil, toStatusError(err)
	}
	if len(nodes) == 0 {
		return nil, toStatusError(hierarchy.ErrNodeNotFound)
	}
	return encode(map[string]any{"nodes": hierarchyv1.NodesValue(nodes)})
}

// GetNode はノードを 1 件返します。
func (h *HierarchyGrpcHandler) GetNode(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	found, err := h.svc.GetNode(ctx, hierarchy.GetNodeInput{ID: hierarchyv1.Fields(req).String("id")})
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(map[string]any{"node": hierarchyv1.NodeValue(found)})
}

// CreateNode はノードを作成します。
func (h *HierarchyGrpcHandler) CreateNode(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	f := hierarchyv1.Fields(req)

	parentID, _ := f.OptionalString("parentId")
	var statusPtr *hierarchy.Status
	if raw := f.String("status"); raw != "" {
		s := hierarchy.Status(raw)
		statusPtr = &s
	}

	created, err := h.svc.CreateNode(ctx, hierarchy.CreateNodeInput{
		Actor:      actorFromContext(ctx),
		Name:       f.String("name"),
		Role:       f.String("role"),
		Email:      f.String("email"),
		Department: f.String("department"),
		Avatar:     f.String("avatar"),
		ParentID:   parentID,
		Status:     statusPtr,
	})
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(map[string]any{"node": hierarchyv1.NodeValue(created)})
}

// UpdateNode はノードを部分更新します。parentId が含まれる場合 (null を含む) は付け替えも行います。
func (h *HierarchyGrpcHandler) UpdateNode(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	f := hierarchyv1.Fields(req)

	in := hierarchy.UpdateNodeInput{
		Actor: actorFromContext(ctx),
		ID:    f.String("id"),
	}
	in.Name, _ = f.OptionalString("name")
	in.Role, _ = f.OptionalString("role")
	in.Department, _ = f.OptionalString("department")
	in.Avatar, _ = f.OptionalString("avatar")
	if raw, ok := f.OptionalString("status"); ok && raw != nil {
		s := hierarchy.Status(*raw)
		in.Status = &s
	}
	in.ParentID, in.ParentIDSet = f.OptionalString("parentId")

	updated, err := h.svc.UpdateNode(ctx, in)
	if err != nil {
		return nil, toStatusError(err)
	}
	return encode(map[string]any{"node": hierarchyv1.NodeValue(updated)})
}

// Reassign は nodeId を newParentId の配下へ付け替えます。newParentId が null または未指定ならルートにします。
func (h *HierarchyGrpcHandler) Reassign(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	f := hierarchyv1.Fields(req)
	newParentID, _ := f.OptionalString("newParentId")

	actor := actorFromContext(ctx)
	result, err := h.svc.Reassign(ctx, hierarchy.ReassignInput{
		Actor:       actor,
		NodeID:      f.String("nodeId"),
		NewParentID: newParentID,
	})
	if err != nil {
		return nil, toStatusError(err)
	}
	logging.FromContext(ctx).Info("node reassigned",
		"node", result.Node.ID, "parent", parentLabel(result.Node.ParentID), "noop", result.NoOp, "actor", actor.ID)
	return encode(map[string]any{
		"node": hierarchyv1.NodeValue(result.Node),
		"noop": result.NoOp,
	})
}

// DeleteNode はノードを削除し、直属の部下の付け替え結果を返します。
func (h *HierarchyGrpcHandler) DeleteNode(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	actor := actorFromContext(ctx)
	id := hierarchyv1.Fields(req).String("id")
	result, err := h.svc.DeleteNode(ctx, hierarchy.DeleteNodeInput{Actor: actor, ID: id})
	if err != nil {
		return nil, toStatusError(err)
	}
	logging.FromContext(ctx).Info("node deleted",
		"node", id, "reparented", result.Reparented, "parent", parentLabel(result.NewParentID), "actor", actor.ID)

	var newParent any
	if result.NewParentID != nil {
		newParent = *result.NewParentID
	}
	return encode(map[string]any{
		"reparented":  result.Reparented,
		"newParentId": newParent,
	})
}

// actorFromContext は受信メタデータから呼び出し元を組み立てます。
// 更新権限は x-actor-can-mutate が真値の場合のみ付与されます。
func actorFromContext(ctx context.Context) hierarchy.Actor {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return hierarchy.Actor{}
	}
	actor := hierarchy.Actor{ID: firstValue(md, hierarchyv1.MetadataActorID)}
	if raw := firstValue(md, hierarchyv1.MetadataActorCanMutate); raw != "" {
		canMutate, err := strconv.ParseBool(raw)
		actor.CanMutate = err == nil && canMutate
	}
	return actor
}

func firstValue(md metadata.MD, key string) string {
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func encode(fields map[string]any) (*structpb.Struct, error) {
	s, err := hierarchyv1.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return s, nil
}

// parentLabel はログ出力用に上長 ID を返します。ルートは "(root)" です。
func parentLabel(id *string) string {
	if id == nil {
		return "(root)"
	}
	return *id
}
