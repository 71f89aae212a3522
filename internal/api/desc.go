package api

import (
	"context"

	"google.golang.org/grpc"
)

// Full method names.
const (
	MessageAppendMethod    = "/chatsync.v1.MessageService/Append"
	MessageSetLikedMethod  = "/chatsync.v1.MessageService/SetLiked"
	MessageHistoryMethod   = "/chatsync.v1.MessageService/History"
	MessageSubscribeMethod = "/chatsync.v1.MessageService/Subscribe"

	InboxRecordSentMethod = "/chatsync.v1.InboxService/RecordSent"
	InboxMarkReadMethod   = "/chatsync.v1.InboxService/MarkRead"
	InboxListMethod       = "/chatsync.v1.InboxService/List"

	DirectoryLookupMethod = "/chatsync.v1.DirectoryService/Lookup"
	DirectoryPutMethod    = "/chatsync.v1.DirectoryService/Put"

	DaemonStatusMethod = "/chatsync.v1.DaemonService/Status"
)

const metadataFile = "chatsync/v1/chatsync.proto"

type MessageServer interface {
	Append(context.Context, *AppendRequest) (*AppendResponse, error)
	SetLiked(context.Context, *SetLikedRequest) (*Empty, error)
	History(context.Context, *HistoryRequest) (*HistoryResponse, error)
	Subscribe(*SubscribeRequest, grpc.ServerStreamingServer[SubscribeEvent]) error
}

type InboxServer interface {
	RecordSent(context.Context, *RecordSentRequest) (*Empty, error)
	MarkRead(context.Context, *MarkReadRequest) (*Empty, error)
	List(context.Context, *ListInboxRequest) (*ListInboxResponse, error)
}

type DirectoryServer interface {
	Lookup(context.Context, *LookupRequest) (*LookupResponse, error)
	Put(context.Context, *PutUserRequest) (*Empty, error)
}

type DaemonServer interface {
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
}

// MessageServiceDesc describes chatsync.v1.MessageService.
var MessageServiceDesc = grpc.ServiceDesc{
	ServiceName: "chatsync.v1.MessageService",
	HandlerType: (*MessageServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Append", Handler: unary(MessageAppendMethod, MessageServer.Append)},
		{MethodName: "SetLiked", Handler: unary(MessageSetLikedMethod, MessageServer.SetLiked)},
		{MethodName: "History", Handler: unary(MessageHistoryMethod, MessageServer.History)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
	},
	Metadata: metadataFile,
}

// InboxServiceDesc describes chatsync.v1.InboxService.
var InboxServiceDesc = grpc.ServiceDesc{
	ServiceName: "chatsync.v1.InboxService",
	HandlerType: (*InboxServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RecordSent", Handler: unary(InboxRecordSentMethod, InboxServer.RecordSent)},
		{MethodName: "MarkRead", Handler: unary(InboxMarkReadMethod, InboxServer.MarkRead)},
		{MethodName: "List", Handler: unary(InboxListMethod, InboxServer.List)},
	},
	Metadata: metadataFile,
}

// DirectoryServiceDesc describes chatsync.v1.DirectoryService.
var DirectoryServiceDesc = grpc.ServiceDesc{
	ServiceName: "chatsync.v1.DirectoryService",
	HandlerType: (*DirectoryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Lookup", Handler: unary(DirectoryLookupMethod, DirectoryServer.Lookup)},
		{MethodName: "Put", Handler: unary(DirectoryPutMethod, DirectoryServer.Put)},
	},
	Metadata: metadataFile,
}

// DaemonServiceDesc describes chatsync.v1.DaemonService.
var DaemonServiceDesc = grpc.ServiceDesc{
	ServiceName: "chatsync.v1.DaemonService",
	HandlerType: (*DaemonServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Status", Handler: unary(DaemonStatusMethod, DaemonServer.Status)},
	},
	Metadata: metadataFile,
}

// unary adapts a typed method to grpc.MethodHandler, running the server's
// interceptor chain when one is installed.
func unary[S, Req, Resp any](fullMethod string, call func(S, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(S), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(S), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(SubscribeRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(MessageServer).Subscribe(in, &grpc.GenericServerStream[SubscribeRequest, SubscribeEvent]{ServerStream: stream})
}
