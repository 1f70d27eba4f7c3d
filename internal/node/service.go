package node

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully qualified name of the mailbox service.
	ServiceName = "forkring.v1.Mailbox"
	// DeliverMethod is the full method name of Deliver.
	DeliverMethod = "/" + ServiceName + "/Deliver"
)

// MailboxServer is the server API for the mailbox service.
type MailboxServer interface {
	Deliver(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error)
}

func deliverHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MailboxServer).Deliver(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: DeliverMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(MailboxServer).Deliver(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// MailboxServiceDesc describes the mailbox service for grpc.Server.
var MailboxServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MailboxServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Deliver",
			Handler:    deliverHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "forkring/v1/mailbox.proto",
}

// RegisterMailboxServer registers srv on s.
func RegisterMailboxServer(s grpc.ServiceRegistrar, srv MailboxServer) {
	s.RegisterService(&MailboxServiceDesc, srv)
}
