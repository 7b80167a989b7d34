package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/dynamicpb"
)

const serviceName = "filevault.FileService"

// FileServiceServer is the server API of filevault.FileService.
type FileServiceServer interface {
	ListFiles(context.Context, *ListFilesRequest) (*ListFilesResponse, error)
	GetFile(context.Context, *GetFileRequest) (*FileInfo, error)
	GetStats(context.Context, *GetStatsRequest) (*StatsResponse, error)
	DeleteFile(context.Context, *DeleteFileRequest) (*DeleteFileResponse, error)
}

func fullMethod(method string) string {
	return "/" + serviceName + "/" + method
}

// unaryHandler decodes the wire message into Req, runs call through the
// interceptor chain and encodes the result.
func unaryHandler[Req any, Resp message](method string, call func(FileServiceServer, context.Context, *Req) (Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		msg := any(in).(message)

		wire := dynamicpb.NewMessage(msg.descriptor())
		if err := dec(wire); err != nil {
			return nil, err
		}
		msg.fromProto(wire)

		handler := func(ctx context.Context, req any) (any, error) {
			out, err := call(srv.(FileServiceServer), ctx, req.(*Req))
			if err != nil {
				return nil, err
			}
			return encode(out), nil
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		return interceptor(ctx, in, info, handler)
	}
}

// FileServiceDesc describes filevault.FileService for grpc.Server.
var FileServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*FileServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListFiles", Handler: unaryHandler("ListFiles", FileServiceServer.ListFiles)},
		{MethodName: "GetFile", Handler: unaryHandler("GetFile", FileServiceServer.GetFile)},
		{MethodName: "GetStats", Handler: unaryHandler("GetStats", FileServiceServer.GetStats)},
		{MethodName: "DeleteFile", Handler: unaryHandler("DeleteFile", FileServiceServer.DeleteFile)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "filevault/files.proto",
}

// FileServiceClient calls filevault.FileService.
type FileServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewFileServiceClient(cc grpc.ClientConnInterface) *FileServiceClient {
	return &FileServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in message, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	msg := any(out).(message)

	reply := dynamicpb.NewMessage(msg.descriptor())
	if err := cc.Invoke(ctx, fullMethod(method), encode(in), reply, opts...); err != nil {
		return nil, err
	}
	msg.fromProto(reply)
	return out, nil
}

func (c *FileServiceClient) ListFiles(ctx context.Context, in *ListFilesRequest, opts ...grpc.CallOption) (*ListFilesResponse, error) {
	return invoke[ListFilesResponse](ctx, c.cc, "ListFiles", in, opts)
}

func (c *FileServiceClient) GetFile(ctx context.Context, in *GetFileRequest, opts ...grpc.CallOption) (*FileInfo, error) {
	return invoke[FileInfo](ctx, c.cc, "GetFile", in, opts)
}

func (c *FileServiceClient) GetStats(ctx context.Context, in *GetStatsRequest, opts ...grpc.CallOption) (*StatsResponse, error) {
	return invoke[StatsResponse](ctx, c.cc, "GetStats", in, opts)
}

func (c *FileServiceClient) DeleteFile(ctx context.Context, in *DeleteFileRequest, opts ...grpc.CallOption) (*DeleteFileResponse, error) {
	return invoke[DeleteFileResponse](ctx, c.cc, "DeleteFile", in, opts)
}
