package grpc

import (
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// filesProto describes filevault/files.proto:
//
//	syntax = "proto3";
//	package filevault;
//
//	message ListFilesRequest  { string type = 1; int32 limit = 2; int32 offset = 3; }
//	message FileInfo          { string file_id = 1; string file_name = 2; int64 size_bytes = 3;
//	                            string content_type = 4; google.protobuf.Timestamp uploaded_at = 5; }
//	message ListFilesResponse { repeated FileInfo files = 1; }
//	message GetFileRequest    { string file_id = 1; }
//	message StatsResponse     { int64 file_count = 1; int64 total_bytes = 2; }
//	message DeleteFileRequest { string file_id = 1; string download_key = 2; }
//
//	service FileService {
//	  rpc ListFiles(ListFilesRequest) returns (ListFilesResponse);
//	  rpc GetFile(GetFileRequest) returns (FileInfo);
//	  rpc GetStats(google.protobuf.Empty) returns (StatsResponse);
//	  rpc DeleteFile(DeleteFileRequest) returns (google.protobuf.Empty);
//	}
var filesProto = &descriptorpb.FileDescriptorProto{
	Name:    proto.String("filevault/files.proto"),
	Package: proto.String("filevault"),
	Syntax:  proto.String("proto3"),
	Dependency: []string{
		"google/protobuf/empty.proto",
		"google/protobuf/timestamp.proto",
	},
	MessageType: []*descriptorpb.DescriptorProto{
		messageProto("ListFilesRequest",
			scalarField("type", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
			scalarField("limit", 2, descriptorpb.FieldDescriptorProto_TYPE_INT32),
			scalarField("offset", 3, descriptorpb.FieldDescriptorProto_TYPE_INT32),
		),
		messageProto("FileInfo",
			scalarField("file_id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
			scalarField("file_name", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
			scalarField("size_bytes", 3, descriptorpb.FieldDescriptorProto_TYPE_INT64),
			scalarField("content_type", 4, descriptorpb.FieldDescriptorProto_TYPE_STRING),
			messageField("uploaded_at", 5, ".google.protobuf.Timestamp", false),
		),
		messageProto("ListFilesResponse",
			messageField("files", 1, ".filevault.FileInfo", true),
		),
		messageProto("GetFileRequest",
			scalarField("file_id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
		),
		messageProto("StatsResponse",
			scalarField("file_count", 1, descriptorpb.FieldDescriptorProto_TYPE_INT64),
			scalarField("total_bytes", 2, descriptorpb.FieldDescriptorProto_TYPE_INT64),
		),
		messageProto("DeleteFileRequest",
			scalarField("file_id", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
			scalarField("download_key", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
		),
	},
	Service: []*descriptorpb.ServiceDescriptorProto{{
		Name: proto.String("FileService"),
		Method: []*descriptorpb.MethodDescriptorProto{
			methodProto("ListFiles", ".filevault.ListFilesRequest", ".filevault.ListFilesResponse"),
			methodProto("GetFile", ".filevault.GetFileRequest", ".filevault.FileInfo"),
			methodProto("GetStats", ".google.protobuf.Empty", ".filevault.StatsResponse"),
			methodProto("DeleteFile", ".filevault.DeleteFileRequest", ".google.protobuf.Empty"),
		},
	}},
}

func messageProto(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

func scalarField(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

func messageField(name string, number int32, typeName string, repeated bool) *descriptorpb.FieldDescriptorProto {
	label := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
	if repeated {
		label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED
	}
	return &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		Number:   proto.Int32(number),
		Label:    label.Enum(),
		Type:     descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
		TypeName: proto.String(typeName),
	}
}

func methodProto(name, in, out string) *descriptorpb.MethodDescriptorProto {
	return &descriptorpb.MethodDescriptorProto{
		Name:       proto.String(name),
		InputType:  proto.String(in),
		OutputType: proto.String(out),
	}
}

// FilesFile is the resolved descriptor of filevault/files.proto.
var FilesFile protoreflect.FileDescriptor

var emptyDesc = (&emptypb.Empty{}).ProtoReflect().Descriptor()

func init() {
	// Resolving the imports needs empty.proto and timestamp.proto in
	// GlobalFiles; importing emptypb and timestamppb registers them.
	fd, err := protodesc.NewFile(filesProto, protoregistry.GlobalFiles)
	if err != nil {
		panic("filevault: bad files.proto descriptor: " + err.Error())
	}
	FilesFile = fd
}

func messageDesc(name protoreflect.Name) protoreflect.MessageDescriptor {
	return FilesFile.Messages().ByName(name)
}

// message is implemented by the request and response types. They travel as
// dynamic protobuf messages of the descriptor they name.
type message interface {
	descriptor() protoreflect.MessageDescriptor
	toProto(m protoreflect.Message)
	fromProto(m protoreflect.Message)
}

func encode(v message) *dynamicpb.Message {
	m := dynamicpb.NewMessage(v.descriptor())
	v.toProto(m)
	return m
}

func field(m protoreflect.Message, name protoreflect.Name) protoreflect.FieldDescriptor {
	return m.Descriptor().Fields().ByName(name)
}

func setString(m protoreflect.Message, name protoreflect.Name, v string) {
	m.Set(field(m, name), protoreflect.ValueOfString(v))
}

func getString(m protoreflect.Message, name protoreflect.Name) string {
	return m.Get(field(m, name)).String()
}

func setInt64(m protoreflect.Message, name protoreflect.Name, v int64) {
	m.Set(field(m, name), protoreflect.ValueOfInt64(v))
}

func getInt64(m protoreflect.Message, name protoreflect.Name) int64 {
	return m.Get(field(m, name)).Int()
}

func setInt32(m protoreflect.Message, name protoreflect.Name, v int32) {
	m.Set(field(m, name), protoreflect.ValueOfInt32(v))
}

func getInt32(m protoreflect.Message, name protoreflect.Name) int32 {
	return int32(m.Get(field(m, name)).Int())
}

// setTime writes t into a google.protobuf.Timestamp field. A zero t leaves
// the field unset.
func setTime(m protoreflect.Message, name protoreflect.Name, t time.Time) {
	if t.IsZero() {
		return
	}
	fd := field(m, name)
	ts := timestamppb.New(t)
	tm := m.NewField(fd).Message()
	tm.Set(field(tm, "seconds"), protoreflect.ValueOfInt64(ts.GetSeconds()))
	tm.Set(field(tm, "nanos"), protoreflect.ValueOfInt32(ts.GetNanos()))
	m.Set(fd, protoreflect.ValueOfMessage(tm))
}

func getTime(m protoreflect.Message, name protoreflect.Name) time.Time {
	fd := field(m, name)
	if !m.Has(fd) {
		return time.Time{}
	}
	tm := m.Get(fd).Message()
	ts := &timestamppb.Timestamp{
		Seconds: getInt64(tm, "seconds"),
		Nanos:   getInt32(tm, "nanos"),
	}
	return ts.AsTime()
}

type ListFilesRequest struct {
	Type   string
	Limit  int32
	Offset int32
}

func (*ListFilesRequest) descriptor() protoreflect.MessageDescriptor {
	return messageDesc("ListFilesRequest")
}

func (r *ListFilesRequest) toProto(m protoreflect.Message) {
	setString(m, "type", r.Type)
	setInt32(m, "limit", r.Limit)
	setInt32(m, "offset", r.Offset)
}

func (r *ListFilesRequest) fromProto(m protoreflect.Message) {
	r.Type = getString(m, "type")
	r.Limit = getInt32(m, "limit")
	r.Offset = getInt32(m, "offset")
}

type FileInfo struct {
	FileID      string
	FileName    string
	SizeBytes   int64
	ContentType string
	UploadedAt  time.Time
}

func (*FileInfo) descriptor() protoreflect.MessageDescriptor { return messageDesc("FileInfo") }

func (f *FileInfo) toProto(m protoreflect.Message) {
	setString(m, "file_id", f.FileID)
	setString(m, "file_name", f.FileName)
	setInt64(m, "size_bytes", f.SizeBytes)
	setString(m, "content_type", f.ContentType)
	setTime(m, "uploaded_at", f.UploadedAt)
}

func (f *FileInfo) fromProto(m protoreflect.Message) {
	f.FileID = getString(m, "file_id")
	f.FileName = getString(m, "file_name")
	f.SizeBytes = getInt64(m, "size_bytes")
	f.ContentType = getString(m, "content_type")
	f.UploadedAt = getTime(m, "uploaded_at")
}

type ListFilesResponse struct {
	Files []FileInfo
}

func (*ListFilesResponse) descriptor() protoreflect.MessageDescriptor {
	return messageDesc("ListFilesResponse")
}

func (r *ListFilesResponse) toProto(m protoreflect.Message) {
	if len(r.Files) == 0 {
		return
	}
	list := m.Mutable(field(m, "files")).List()
	for i := range r.Files {
		el := list.NewElement()
		r.Files[i].toProto(el.Message())
		list.Append(el)
	}
}

func (r *ListFilesResponse) fromProto(m protoreflect.Message) {
	list := m.Get(field(m, "files")).List()
	r.Files = make([]FileInfo, list.Len())
	for i := range r.Files {
		r.Files[i].fromProto(list.Get(i).Message())
	}
}

type GetFileRequest struct {
	FileID string
}

func (*GetFileRequest) descriptor() protoreflect.MessageDescriptor {
	return messageDesc("GetFileRequest")
}

func (r *GetFileRequest) toProto(m protoreflect.Message)   { setString(m, "file_id", r.FileID) }
func (r *GetFileRequest) fromProto(m protoreflect.Message) { r.FileID = getString(m, "file_id") }

// GetStatsRequest is google.protobuf.Empty.
type GetStatsRequest struct{}

func (*GetStatsRequest) descriptor() protoreflect.MessageDescriptor { return emptyDesc }
func (*GetStatsRequest) toProto(protoreflect.Message)               {}
func (*GetStatsRequest) fromProto(protoreflect.Message)             {}

type StatsResponse struct {
	FileCount  int64
	TotalBytes int64
}

func (*StatsResponse) descriptor() protoreflect.MessageDescriptor {
	return messageDesc("StatsResponse")
}

func (r *StatsResponse) toProto(m protoreflect.Message) {
	setInt64(m, "file_count", r.FileCount)
	setInt64(m, "total_bytes", r.TotalBytes)
}

func (r *StatsResponse) fromProto(m protoreflect.Message) {
	r.FileCount = getInt64(m, "file_count")
	r.TotalBytes = getInt64(m, "total_bytes")
}

type DeleteFileRequest struct {
	FileID      string
	DownloadKey string
}

func (*DeleteFileRequest) descriptor() protoreflect.MessageDescriptor {
	return messageDesc("DeleteFileRequest")
}

func (r *DeleteFileRequest) toProto(m protoreflect.Message) {
	setString(m, "file_id", r.FileID)
	setString(m, "download_key", r.DownloadKey)
}

func (r *DeleteFileRequest) fromProto(m protoreflect.Message) {
	r.FileID = getString(m, "file_id")
	r.DownloadKey = getString(m, "download_key")
}

// DeleteFileResponse is google.protobuf.Empty.
type DeleteFileResponse struct{}

func (*DeleteFileResponse) descriptor() protoreflect.MessageDescriptor { return emptyDesc }
func (*DeleteFileResponse) toProto(protoreflect.Message)               {}
func (*DeleteFileResponse) fromProto(protoreflect.Message)             {}
