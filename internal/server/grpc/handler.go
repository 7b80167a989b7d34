package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/server/auth"
	"github.com/dmitrijs2005/filevault/internal/server/models"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FileService is the part of the lifecycle service exposed over gRPC.
type FileService interface {
	Delete(ctx context.Context, fileID, ownerID, key string) error
	List(ctx context.Context, ownerID string, filter models.Filter) ([]*models.File, error)
	Get(ctx context.Context, fileID, ownerID string) (*models.File, error)
	Stats(ctx context.Context, ownerID string) (*models.Stats, error)
}

func toFileInfo(f *models.File) FileInfo {
	return FileInfo{
		FileID:      f.ID,
		FileName:    f.FileName,
		SizeBytes:   f.SizeBytes,
		ContentType: f.ContentType,
		UploadedAt:  f.UploadedAt.UTC(),
	}
}

func (s *GRPCServer) owner(ctx context.Context) (string, error) {
	id, ok := auth.UserIDFromContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "unauthenticated")
	}
	return id, nil
}

func (s *GRPCServer) ListFiles(ctx context.Context, req *ListFilesRequest) (*ListFilesResponse, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return nil, err
	}

	list, err := s.files.List(ctx, owner, models.Filter{ContentType: req.Type, Limit: int(req.Limit), Offset: int(req.Offset)})
	if err != nil {
		return nil, s.toStatus(ctx, err, false)
	}

	resp := &ListFilesResponse{Files: make([]FileInfo, 0, len(list))}
	for _, f := range list {
		resp.Files = append(resp.Files, toFileInfo(f))
	}
	return resp, nil
}

func (s *GRPCServer) GetFile(ctx context.Context, req *GetFileRequest) (*FileInfo, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return nil, err
	}

	f, err := s.files.Get(ctx, req.FileID, owner)
	if err != nil {
		return nil, s.toStatus(ctx, err, false)
	}
	info := toFileInfo(f)
	return &info, nil
}

func (s *GRPCServer) GetStats(ctx context.Context, _ *GetStatsRequest) (*StatsResponse, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return nil, err
	}

	st, err := s.files.Stats(ctx, owner)
	if err != nil {
		return nil, s.toStatus(ctx, err, false)
	}
	return &StatsResponse{FileCount: st.FileCount, TotalBytes: st.TotalBytes}, nil
}

func (s *GRPCServer) DeleteFile(ctx context.Context, req *DeleteFileRequest) (*DeleteFileResponse, error) {
	owner, err := s.owner(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.files.Delete(ctx, req.FileID, owner, req.DownloadKey); err != nil {
		return nil, s.toStatus(ctx, err, true)
	}
	s.logger.Info(ctx, "file deleted over grpc", "file_id", req.FileID, "owner", owner)
	return &DeleteFileResponse{}, nil
}

// toStatus maps service errors to gRPC codes. With keyed set, missing,
// foreign and wrong-key all become PermissionDenied.
func (s *GRPCServer) toStatus(ctx context.Context, err error, keyed bool) error {
	switch {
	case errors.Is(err, common.ErrTooManyAttempts):
		return status.Error(codes.ResourceExhausted, "too many failed attempts")
	case keyed && common.IsDeny(err):
		return status.Error(codes.PermissionDenied, "access denied")
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "file not found")
	case errors.Is(err, common.ErrForbidden), errors.Is(err, common.ErrInvalidKey):
		return status.Error(codes.PermissionDenied, "access denied")
	case errors.Is(err, common.ErrTransient):
		return status.Error(codes.Unavailable, "storage temporarily unavailable")
	case errors.Is(err, common.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthenticated")
	case errors.Is(err, common.ErrorInternal), errors.Is(err, common.ErrIntegrity):
		s.logger.Error(ctx, "grpc request failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	default:
		s.logger.Error(ctx, "grpc request failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
}
