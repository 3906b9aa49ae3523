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

package database

import (
	"context"

	"github.com/blnkfinance/payroute/model"
)

// IDataSource is the host ledger the route engine persists to.
type IDataSource interface {
	route
	balance
	transfer
	// CommitChange applies a route change in a single transaction. Existing
	// records are only written when their stored version still matches.
	CommitChange(ctx context.Context, change model.RouteChange) error
}

type route interface {
	GetRouteByID(ctx context.Context, id string) (*model.Route, error)
	GetAllRoutes(ctx context.Context, limit, offset int) ([]model.Route, error)
	GetRoutesByParty(ctx context.Context, party string, limit, offset int) ([]model.Route, error)
}

type balance interface {
	CreateBalance(ctx context.Context, balance model.Balance) (model.Balance, error)
	GetBalanceByID(ctx context.Context, id string) (*model.Balance, error)
	GetBalanceByIndicator(ctx context.Context, indicator, tokenID string) (*model.Balance, error)
}

type transfer interface {
	GetTransfersByRoute(ctx context.Context, routeID string) ([]model.Transfer, error)
	GetTransfersByBalance(ctx context.Context, balanceID string, limit, offset int) ([]model.Transfer, error)
}
