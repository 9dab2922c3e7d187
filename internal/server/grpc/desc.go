package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "tgtoolkit.v1.Toolkit"

// Method names served by ServiceName.
const (
	MethodPing                = "Ping"
	MethodListAccounts        = "ListAccounts"
	MethodGetAccount          = "GetAccount"
	MethodRemoveAccount       = "RemoveAccount"
	MethodExportCredential    = "ExportCredential"
	MethodSwitchAccount       = "SwitchAccount"
	MethodRequestCode         = "RequestCode"
	MethodVerifyCode          = "VerifyCode"
	MethodGenerateQR          = "GenerateQR"
	MethodPollQR              = "PollQR"
	MethodImportSession       = "ImportSession"
	MethodImportSessionFile   = "ImportSessionFile"
	MethodImportBotToken      = "ImportBotToken"
	MethodListDialogs         = "ListDialogs"
	MethodGetMessages         = "GetMessages"
	MethodSendMessage         = "SendMessage"
	MethodStartClone          = "StartClone"
	MethodCloneProgress       = "CloneProgress"
	MethodListCloneOperations = "ListCloneOperations"
	MethodCancelClone         = "CancelClone"
	MethodExportChat          = "ExportChat"
	MethodRegisterChatKey     = "RegisterChatKey"
	MethodRemoveChatKey       = "RemoveChatKey"
	MethodListChatKeys        = "ListChatKeys"
)

var methodNames = []string{
	MethodPing,
	MethodListAccounts, MethodGetAccount, MethodRemoveAccount, MethodExportCredential, MethodSwitchAccount,
	MethodRequestCode, MethodVerifyCode, MethodGenerateQR, MethodPollQR,
	MethodImportSession, MethodImportSessionFile, MethodImportBotToken,
	MethodListDialogs, MethodGetMessages, MethodSendMessage,
	MethodStartClone, MethodCloneProgress, MethodListCloneOperations, MethodCancelClone,
	MethodExportChat,
	MethodRegisterChatKey, MethodRemoveChatKey, MethodListChatKeys,
}

// FullMethod returns the gRPC path of a method, e.g. "/tgtoolkit.v1.Toolkit/Ping".
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// toolkitServer is the handler type checked by grpc.Server.RegisterService.
type toolkitServer interface {
	dispatch(ctx context.Context, method string, in *structpb.Struct) (*structpb.Struct, error)
}

// ToolkitServiceDesc describes the service without generated stubs.
var ToolkitServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*toolkitServer)(nil),
	Methods:     methodDescs(),
	Streams:     []grpc.StreamDesc{},
	Metadata:    "tgtoolkit/v1/toolkit.proto",
}

func methodDescs() []grpc.MethodDesc {
	out := make([]grpc.MethodDesc, 0, len(methodNames))
	for _, name := range methodNames {
		out = append(out, grpc.MethodDesc{MethodName: name, Handler: unaryHandler(name)})
	}
	return out
}

func unaryHandler(name string) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		ts := srv.(toolkitServer)
		if interceptor == nil {
			return ts.dispatch(ctx, name, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
		handler := func(ctx context.Context, req any) (any, error) {
			return ts.dispatch(ctx, name, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}
