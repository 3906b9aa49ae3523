/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package mocks

import (
	"context"

	"github.com/blnkfinance/payroute/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Route methods

func (m *MockDataSource) GetRouteByID(ctx context.Context, id string) (*model.Route, error) {
	args := m.Called(ctx, id)
	route, _ := args.Get(0).(*model.Route)
	return route, args.Error(1)
}

func (m *MockDataSource) GetAllRoutes(ctx context.Context, limit, offset int) ([]model.Route, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]model.Route), args.Error(1)
}

func (m *MockDataSource) GetRoutesByParty(ctx context.Context, party string, limit, offset int) ([]model.Route, error) {
	args := m.Called(ctx, party, limit, offset)
	return args.Get(0).([]model.Route), args.Error(1)
}

// Balance methods

func (m *MockDataSource) CreateBalance(ctx context.Context, balance model.Balance) (model.Balance, error) {
	args := m.Called(ctx, balance)
	return args.Get(0).(model.Balance), args.Error(1)
}

func (m *MockDataSource) GetBalanceByID(ctx context.Context, id string) (*model.Balance, error) {
	args := m.Called(ctx, id)
	balance, _ := args.Get(0).(*model.Balance)
	return balance, args.Error(1)
}

func (m *MockDataSource) GetBalanceByIndicator(ctx context.Context, indicator, tokenID string) (*model.Balance, error) {
	args := m.Called(ctx, indicator, tokenID)
	balance, _ := args.Get(0).(*model.Balance)
	return balance, args.Error(1)
}

// Transfer methods

func (m *MockDataSource) GetTransfersByRoute(ctx context.Context, routeID string) ([]model.Transfer, error) {
	args := m.Called(ctx, routeID)
	return args.Get(0).([]model.Transfer), args.Error(1)
}

func (m *MockDataSource) GetTransfersByBalance(ctx context.Context, balanceID string, limit, offset int) ([]model.Transfer, error) {
	args := m.Called(ctx, balanceID, limit, offset)
	return args.Get(0).([]model.Transfer), args.Error(1)
}

func (m *MockDataSource) CommitChange(ctx context.Context, change model.RouteChange) error {
	args := m.Called(ctx, change)
	return args.Error(0)
}
