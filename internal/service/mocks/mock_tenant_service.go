package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"filedepot/internal/model"
	"filedepot/internal/service"
)

type MockTenantService struct {
	mock.Mock
}

func (m *MockTenantService) CreateSubTenant(ctx context.Context, callerID, parentID, displayName string) (*model.Tenant, error) {
	args := m.Called(ctx, callerID, parentID, displayName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Tenant), args.Error(1)
}

func (m *MockTenantService) UpdateStorageLimit(ctx context.Context, callerID, tenantID string, limit int64) error {
	args := m.Called(ctx, callerID, tenantID, limit)
	return args.Error(0)
}

func (m *MockTenantService) Delete(ctx context.Context, callerID, tenantID string) error {
	args := m.Called(ctx, callerID, tenantID)
	return args.Error(0)
}

func (m *MockTenantService) Usage(ctx context.Context, callerID, tenantID string) (*service.UsageReport, error) {
	args := m.Called(ctx, callerID, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.UsageReport), args.Error(1)
}
