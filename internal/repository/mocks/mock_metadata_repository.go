package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"filedepot/internal/model"
)

type MockMetadataRepository struct {
	mock.Mock
}

func (m *MockMetadataRepository) Save(ctx context.Context, tenantID string, meta *model.FileMetadata) error {
	args := m.Called(ctx, tenantID, meta)
	return args.Error(0)
}

func (m *MockMetadataRepository) FindByID(ctx context.Context, tenantID, fileID string) (*model.FileMetadata, error) {
	args := m.Called(ctx, tenantID, fileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FileMetadata), args.Error(1)
}

func (m *MockMetadataRepository) List(ctx context.Context, tenantID string) ([]model.FileMetadata, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.FileMetadata), args.Error(1)
}

func (m *MockMetadataRepository) Delete(ctx context.Context, tenantID, fileID string) error {
	args := m.Called(ctx, tenantID, fileID)
	return args.Error(0)
}
