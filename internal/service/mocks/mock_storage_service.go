package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"filedepot/internal/model"
)

type MockStorageService struct {
	mock.Mock
}

func (m *MockStorageService) ChunkSize() int64 {
	args := m.Called()
	return args.Get(0).(int64)
}

func (m *MockStorageService) SaveChunk(ctx context.Context, callerID, tenantID string, r io.Reader) (string, int64, error) {
	args := m.Called(ctx, callerID, tenantID, r)
	return args.String(0), args.Get(1).(int64), args.Error(2)
}

func (m *MockStorageService) GetChunk(ctx context.Context, callerID, tenantID, chunkID string) (io.ReadCloser, error) {
	args := m.Called(ctx, callerID, tenantID, chunkID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockStorageService) CommitFile(ctx context.Context, callerID, tenantID string, meta *model.FileMetadata) (*model.FileMetadata, error) {
	args := m.Called(ctx, callerID, tenantID, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FileMetadata), args.Error(1)
}

func (m *MockStorageService) GetFile(ctx context.Context, callerID, tenantID, fileID string) (*model.FileMetadata, error) {
	args := m.Called(ctx, callerID, tenantID, fileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FileMetadata), args.Error(1)
}

func (m *MockStorageService) ListFiles(ctx context.Context, callerID, tenantID string) ([]model.FileMetadata, error) {
	args := m.Called(ctx, callerID, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.FileMetadata), args.Error(1)
}

func (m *MockStorageService) DeleteFile(ctx context.Context, callerID, tenantID, fileID string) (bool, error) {
	args := m.Called(ctx, callerID, tenantID, fileID)
	return args.Bool(0), args.Error(1)
}

func (m *MockStorageService) DeleteAllFiles(ctx context.Context, callerID, tenantID string) (int, error) {
	args := m.Called(ctx, callerID, tenantID)
	return args.Int(0), args.Error(1)
}

func (m *MockStorageService) PurgeTenant(ctx context.Context, tenantID string) (int, error) {
	args := m.Called(ctx, tenantID)
	return args.Int(0), args.Error(1)
}
