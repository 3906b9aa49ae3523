package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/blnkfinance/payroute/internal/apierror"
	"github.com/blnkfinance/payroute/model"
	"github.com/pkg/errors"
)

// MemoryDataSource is an in-process host ledger with the same version
// semantics as the postgres datasource. Records are stored as copies so
// callers can only change state through CommitChange.
type MemoryDataSource struct {
	mu        sync.Mutex
	routes    map[string]*model.Route
	order     []string
	balances  map[string]*model.Balance
	transfers []model.Transfer

	// FailCommit, when set, is returned by the next CommitChange.
	FailCommit error
	Commits    int
}

func NewMemoryDataSource() *MemoryDataSource {
	return &MemoryDataSource{
		routes:   map[string]*model.Route{},
		balances: map[string]*model.Balance{},
	}
}

func (m *MemoryDataSource) GetRouteByID(_ context.Context, id string) (*model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	route, ok := m.routes[id]
	if !ok {
		return nil, errors.Wrapf(model.ErrRouteNotFound, "route %s", id)
	}
	return route.Clone(), nil
}

func (m *MemoryDataSource) GetAllRoutes(_ context.Context, limit, offset int) ([]model.Route, error) {
	return m.listRoutes(func(*model.Route) bool { return true }, limit, offset), nil
}

func (m *MemoryDataSource) GetRoutesByParty(_ context.Context, party string, limit, offset int) ([]model.Route, error) {
	return m.listRoutes(func(r *model.Route) bool {
		return party == r.Depositor || party == r.Beneficiary || party == r.Requester || party == r.Payer
	}, limit, offset), nil
}

func (m *MemoryDataSource) listRoutes(match func(*model.Route) bool, limit, offset int) []model.Route {
	m.mu.Lock()
	defer m.mu.Unlock()
	routes := []model.Route{}
	for i := len(m.order) - 1; i >= 0; i-- {
		route := m.routes[m.order[i]]
		if match(route) {
			routes = append(routes, *route.Clone())
		}
	}
	if offset >= len(routes) {
		return []model.Route{}
	}
	routes = routes[offset:]
	if limit > 0 && limit < len(routes) {
		routes = routes[:limit]
	}
	return routes
}

func (m *MemoryDataSource) CreateBalance(_ context.Context, balance model.Balance) (model.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if balance.BalanceID == "" {
		balance.BalanceID = model.GenerateUUIDWithSuffix("bln")
	}
	if err := m.checkUnique(&balance); err != nil {
		return model.Balance{}, err
	}
	balance.InitializeBalanceFields()
	balance.Version = 1
	m.balances[balance.BalanceID] = balance.Clone()
	return balance, nil
}

func (m *MemoryDataSource) checkUnique(balance *model.Balance) error {
	if _, ok := m.balances[balance.BalanceID]; ok {
		return apierror.NewAPIError(apierror.ErrConflict, "Balance already exists", nil)
	}
	for _, b := range m.balances {
		if b.Indicator == balance.Indicator && b.TokenID == balance.TokenID {
			return apierror.NewAPIError(apierror.ErrConflict, "Balance already exists", nil)
		}
	}
	return nil
}

func (m *MemoryDataSource) GetBalanceByID(_ context.Context, id string) (*model.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	balance, ok := m.balances[id]
	if !ok {
		return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Balance with ID '%s' not found", id), nil)
	}
	return balance.Clone(), nil
}

func (m *MemoryDataSource) GetBalanceByIndicator(_ context.Context, indicator, tokenID string) (*model.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.balances {
		if b.Indicator == indicator && b.TokenID == tokenID {
			return b.Clone(), nil
		}
	}
	return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Balance with indicator '%s' and token '%s' not found", indicator, tokenID), nil)
}

func (m *MemoryDataSource) GetTransfersByRoute(_ context.Context, routeID string) ([]model.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	transfers := []model.Transfer{}
	for _, t := range m.transfers {
		if t.RouteID == routeID {
			transfers = append(transfers, t)
		}
	}
	return transfers, nil
}

func (m *MemoryDataSource) GetTransfersByBalance(_ context.Context, balanceID string, limit, offset int) ([]model.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	transfers := []model.Transfer{}
	for i := len(m.transfers) - 1; i >= 0; i-- {
		t := m.transfers[i]
		if t.Source == balanceID || t.Destination == balanceID {
			transfers = append(transfers, t)
		}
	}
	if offset >= len(transfers) {
		return []model.Transfer{}, nil
	}
	transfers = transfers[offset:]
	if limit > 0 && limit < len(transfers) {
		transfers = transfers[:limit]
	}
	return transfers, nil
}

// CommitChange validates every version before applying anything, so a stale
// record leaves the store untouched.
func (m *MemoryDataSource) CommitChange(_ context.Context, change model.RouteChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailCommit != nil {
		err := m.FailCommit
		m.FailCommit = nil
		return err
	}

	if r := change.Route; r != nil {
		stored, exists := m.routes[r.RouteID]
		switch {
		case change.Create && exists:
			return apierror.NewAPIError(apierror.ErrConflict, "Route already exists", nil)
		case !change.Create && !exists:
			return errors.Wrapf(model.ErrRouteNotFound, "route %s", r.RouteID)
		case !change.Create && stored.Version != r.Version:
			return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("route %s was modified concurrently", r.RouteID), nil)
		}
	}
	for _, b := range change.Balances {
		stored, exists := m.balances[b.BalanceID]
		if b.Version == 0 {
			if err := m.checkUnique(b); err != nil {
				return err
			}
			continue
		}
		if !exists || stored.Version != b.Version {
			return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("balance %s was modified concurrently", b.BalanceID), nil)
		}
	}

	if r := change.Route; r != nil {
		r.Version++
		if change.Create {
			m.order = append(m.order, r.RouteID)
		}
		m.routes[r.RouteID] = r.Clone()
	}
	for _, b := range change.Balances {
		b.Version++
		m.balances[b.BalanceID] = b.Clone()
	}
	m.transfers = append(m.transfers, change.Transfers...)
	m.Commits++
	return nil
}

// Balances returns a copy of every stored balance ordered by balance id.
func (m *MemoryDataSource) Balances() []*model.Balance {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Balance, 0, len(m.balances))
	for _, b := range m.balances {
		out = append(out, b.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BalanceID < out[j].BalanceID })
	return out
}
