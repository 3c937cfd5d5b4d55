// Package client は HierarchyService の gRPC クライアントです。
// 応答のステータスはドメインエラーへ戻して返します。
package client

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/isola513i/hari-hr-system/internal/adapters/grpc/hierarchyv1"
	"github.com/isola513i/hari-hr-system/internal/core/canvas"
	"github.com/isola513i/hari-hr-system/internal/core/hierarchy"
)

// HierarchyClient は HierarchyService を呼び出します。
type HierarchyClient struct {
	stub  *hierarchyv1.HierarchyServiceClient
	actor hierarchy.Actor
}

var _ canvas.Backend = (*HierarchyClient)(nil)

// New は接続済みの cc を使うクライアントを生成します。actor は全リクエストのメタデータに付与されます。
func New(cc grpc.ClientConnInterface, actor hierarchy.Actor) *HierarchyClient {
	return &HierarchyClient{stub: hierarchyv1.NewHierarchyServiceClient(cc), actor: actor}
}

// Dial は addr へ平文で接続します。
func Dial(addr string, actor hierarchy.Actor) (*HierarchyClient, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(conn, actor), conn, nil
}

// ListHierarchy はノード一覧を取得します。department が nil なら全件です。
func (c *HierarchyClient) ListHierarchy(ctx context.Context, department *string) ([]hierarchy.Node, error) {
	fields := map[string]any{}
	if department != nil {
		fields["department"] = *department
	}
	resp, err := c.call(ctx, hierarchyv1.MethodListHierarchy, fields)
	if err != nil {
		return nil, err
	}
	return hierarchyv1.NodesFromStruct(resp)
}

// GetSubtree は rootID を起点とする部分木を取得します。
func (c *HierarchyClient) GetSubtree(ctx context.Context, rootID string) ([]hierarchy.Node, error) {
	resp, err := c.call(ctx, hierarchyv1.MethodGetSubtree, map[string]any{"rootId": rootID})
	if err != nil {
		return nil, err
	}
	return hierarchyv1.NodesFromStruct(resp)
}

// Reassign は nodeID の上長を newParentID に変更します。nil ならルートにします。
func (c *HierarchyClient) Reassign(ctx context.Context, nodeID string, newParentID *string) (*hierarchy.ReassignResult, error) {
	var parent any
	if newParentID != nil {
		parent = *newParentID
	}
	resp, err := c.call(ctx, hierarchyv1.MethodReassign, map[string]any{
		"nodeId":      nodeID,
		"newParentId": parent,
	})
	if err != nil {
		return nil, err
	}

	node, err := hierarchyv1.NodeFromStruct(resp.GetFields()["node"].GetStructValue())
	if err != nil {
		return nil, err
	}
	return &hierarchy.ReassignResult{Node: node, NoOp: hierarchyv1.Fields(resp).Bool("noop")}, nil
}

// DeleteNode はノードを削除します。
func (c *HierarchyClient) DeleteNode(ctx context.Context, id string) (*hierarchy.DeleteNodeResult, error) {
	resp, err := c.call(ctx, hierarchyv1.MethodDeleteNode, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	f := hierarchyv1.Fields(resp)
	newParent, _ := f.OptionalString("newParentId")
	return &hierarchy.DeleteNodeResult{Reparented: f.Int("reparented"), NewParentID: newParent}, nil
}

func (c *HierarchyClient) call(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	req, err := hierarchyv1.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	resp, err := c.stub.Call(c.outgoing(ctx), method, req)
	if err != nil {
		return nil, fromStatus(method, err)
	}
	return resp, nil
}

func (c *HierarchyClient) outgoing(ctx context.Context) context.Context {
	pairs := []string{hierarchyv1.MetadataActorCanMutate, strconv.FormatBool(c.actor.CanMutate)}
	if c.actor.ID != "" {
		pairs = append(pairs, hierarchyv1.MetadataActorID, c.actor.ID)
	}
	return metadata.AppendToOutgoingContext(ctx, pairs...)
}

// sentinels はサーバーのエラーメッセージから復元できるドメインエラーです。
var sentinels = []error{
	hierarchy.ErrParentTerminated,
	hierarchy.ErrParentNotFound,
	hierarchy.ErrNodeNotFound,
	hierarchy.ErrSelfReference,
	hierarchy.ErrCycleRejected,
	hierarchy.ErrInvalidID,
	hierarchy.ErrInvalidStatus,
	hierarchy.ErrValidationFailed,
	hierarchy.ErrUnauthorized,
	hierarchy.ErrConflict,
	hierarchy.ErrCorruptHierarchy,
}

// fromStatus は gRPC ステータスをドメインエラーへ戻します。
// メッセージにドメインエラーの文言があればそれを、なければコードから推定したものを包みます。
func fromStatus(method string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%s: %w", method, err)
	}
	msg := st.Message()
	for _, sentinel := range sentinels {
		if strings.Contains(msg, sentinel.Error()) {
			return fmt.Errorf("%w: %s", sentinel, msg)
		}
	}

	var base error
	switch st.Code() {
	case codes.InvalidArgument:
		base = hierarchy.ErrValidationFailed
	case codes.NotFound:
		base = hierarchy.ErrNodeNotFound
	case codes.FailedPrecondition:
		base = hierarchy.ErrCycleRejected
	case codes.PermissionDenied:
		base = hierarchy.ErrUnauthorized
	case codes.AlreadyExists, codes.Aborted:
		base = hierarchy.ErrConflict
	default:
		return fmt.Errorf("%s: %w", method, err)
	}
	return fmt.Errorf("%w: %s", base, msg)
}
