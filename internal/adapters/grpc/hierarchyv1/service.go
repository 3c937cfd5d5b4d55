// Package hierarchyv1 は hierarchy.v1.HierarchyService のサービス定義です。
// メッセージには google.protobuf.Struct を使い、フィールドは camelCase の JSON 名で表します。
package hierarchyv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName は完全修飾サービス名です。
	ServiceName = "hierarchy.v1.HierarchyService"

	MethodListHierarchy = "ListHierarchy"
	MethodGetSubtree    = "GetSubtree"
	MethodGetNode       = "GetNode"
	MethodCreateNode    = "CreateNode"
	MethodUpdateNode    = "UpdateNode"
	MethodReassign      = "Reassign"
	MethodDeleteNode    = "DeleteNode"

	// MetadataActorID と MetadataActorCanMutate は上流の認証層が付与する呼び出し元情報です。
	MetadataActorID        = "x-actor-id"
	MetadataActorCanMutate = "x-actor-can-mutate"
)

// FullMethod は "/hierarchy.v1.HierarchyService/Method" 形式の名前を返します。
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// HierarchyServiceServer はサーバー側の実装が満たすインターフェースです。
type HierarchyServiceServer interface {
	ListHierarchy(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSubtree(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetNode(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateNode(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateNode(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reassign(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteNode(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(HierarchyServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(HierarchyServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(HierarchyServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc は grpc.Server へ登録するサービス記述子です。
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*HierarchyServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodListHierarchy, HierarchyServiceServer.ListHierarchy),
		unary(MethodGetSubtree, HierarchyServiceServer.GetSubtree),
		unary(MethodGetNode, HierarchyServiceServer.GetNode),
		unary(MethodCreateNode, HierarchyServiceServer.CreateNode),
		unary(MethodUpdateNode, HierarchyServiceServer.UpdateNode),
		unary(MethodReassign, HierarchyServiceServer.Reassign),
		unary(MethodDeleteNode, HierarchyServiceServer.DeleteNode),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hierarchy/v1/hierarchy.proto",
}

// RegisterHierarchyServiceServer は srv を s に登録します。
func RegisterHierarchyServiceServer(s grpc.ServiceRegistrar, srv HierarchyServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// HierarchyServiceClient は HierarchyService のクライアントスタブです。
type HierarchyServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewHierarchyServiceClient は HierarchyServiceClient を生成します。
func NewHierarchyServiceClient(cc grpc.ClientConnInterface) *HierarchyServiceClient {
	return &HierarchyServiceClient{cc: cc}
}

// Call は method を呼び出し、応答の Struct を返します。
func (c *HierarchyServiceClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
