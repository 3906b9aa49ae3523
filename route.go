package payroute

import (
	"context"
	"math/big"
	"time"

	"github.com/blnkfinance/payroute/internal/apierror"
	redlock "github.com/blnkfinance/payroute/internal/lock"
	"github.com/blnkfinance/payroute/internal/notification"
	"github.com/blnkfinance/payroute/model"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ClaimableStatus is the eligibility view of a route.
type ClaimableStatus struct {
	RouteID      string            `json:"route_id"`
	Status       model.RouteStatus `json:"route_status"`
	ClaimableNow *big.Int          `json:"claimable_now"`
	NextUnlock   *time.Time        `json:"next_unlock,omitempty"`
}

func routeAttr(routeID string) trace.SpanStartEventOption {
	return trace.WithAttributes(attribute.String("route.id", routeID))
}

func (l *Payroute) observe(op model.RouteOperation, started time.Time, err error) {
	l.metrics.Observe(string(op), started, err)
}

func (l *Payroute) countTransfers(transfers []model.Transfer) {
	for _, t := range transfers {
		l.metrics.CountTransfer(string(t.Purpose))
	}
}

// resolveTier asks the fee-policy resolver for party's tier. Any failure is
// reported as ErrFeePolicyUnavailable.
func (l *Payroute) resolveTier(ctx context.Context, party string) (uint32, error) {
	tier, err := l.resolver.ResolveTier(ctx, party)
	if err != nil {
		if errors.Is(err, model.ErrFeePolicyUnavailable) {
			return 0, err
		}
		return 0, errors.Wrapf(model.ErrFeePolicyUnavailable, "resolving tier for %s: %v", party, err)
	}
	return tier, nil
}

// fundingHandles loads the funder wallet and the fee collector and builds the
// route's escrow balance.
func (l *Payroute) fundingHandles(ctx context.Context, route *model.Route, funder string, now time.Time) (model.FundingHandles, error) {
	wallet, err := l.getOrNewBalance(ctx, funder, route.TokenID)
	if err != nil {
		return model.FundingHandles{}, err
	}
	collector, err := l.getOrNewBalance(ctx, l.feeCollector, route.TokenID)
	if err != nil {
		return model.FundingHandles{}, err
	}
	return model.FundingHandles{
		Funder:       wallet,
		Escrow:       model.NewEscrowBalance(route, now),
		FeeCollector: collector,
	}, nil
}

func fundingBalances(h model.FundingHandles) []*model.Balance {
	return []*model.Balance{h.Funder, h.Escrow, h.FeeCollector}
}

func receiptFor(route *model.Route, amount *big.Int, transfers []model.Transfer) model.RouteReceipt {
	if amount == nil {
		amount = big.NewInt(0)
	}
	receipt := model.RouteReceipt{
		RouteID:       route.RouteID,
		Status:        route.Status,
		Amount:        new(big.Int).Set(amount),
		ClaimedAmount: new(big.Int).Set(route.ClaimedAmount),
		Transfers:     transfers,
	}
	if route.Kind == model.RouteKindMilestone {
		receipt.ApprovedAmount = new(big.Int).Set(route.ApprovedAmount)
	}
	return receipt
}

// lockRoute serializes operations on one route.
func (l *Payroute) lockRoute(ctx context.Context, routeID string) (func(), error) {
	return l.acquireLocks(ctx, redlock.RouteKey(routeID))
}

func (l *Payroute) lockBalances(ctx context.Context, tokenID string, indicators ...string) (func(), error) {
	keys := make([]string, 0, len(indicators))
	for _, indicator := range indicators {
		keys = append(keys, redlock.BalanceKey(indicator, tokenID))
	}
	return l.acquireLocks(ctx, keys...)
}

// CreateAndFund creates a linear or milestone route and funds it from the
// depositor's wallet in one commit. caller must be the depositor.
func (l *Payroute) CreateAndFund(ctx context.Context, caller string, terms model.RouteTerms) (model.RouteReceipt, error) {
	started := time.Now()
	receipt, err := l.createAndFund(ctx, caller, terms)
	l.observe(model.OperationCreateAndFund, started, err)
	return receipt, err
}

func (l *Payroute) createAndFund(ctx context.Context, caller string, terms model.RouteTerms) (model.RouteReceipt, error) {
	ctx, span := tracer.Start(ctx, "Creating and funding route")
	defer span.End()

	if terms.Kind != model.RouteKindLinear && terms.Kind != model.RouteKindMilestone {
		return model.RouteReceipt{}, errors.Wrapf(model.ErrUnsupportedOperation, "create_and_fund on %s route", terms.Kind)
	}
	now := l.now()
	route, err := model.NewRoute(terms, now)
	if err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "invalid route terms", err)
	}
	if err := model.Authorize(route, model.OperationCreateAndFund, caller); err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "create and fund rejected", err)
	}

	release, err := l.lockBalances(ctx, route.TokenID, route.Depositor, l.feeCollector)
	if err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "lock error", err)
	}
	defer release()

	tier, err := l.resolveTier(ctx, route.Depositor)
	if err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "fee policy error", err)
	}
	handles, err := l.fundingHandles(ctx, route, route.Depositor, now)
	if err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "balance error", err)
	}
	transfers, err := model.Fund(route, caller, handles, tier, l.fees, now)
	if err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "funding failed", err)
	}

	err = l.datasource.CommitChange(ctx, model.RouteChange{
		Route:     route,
		Create:    true,
		Balances:  fundingBalances(handles),
		Transfers: transfers,
	})
	if err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "commit route error", err)
	}
	span.AddEvent("Route funded", routeAttr(route.RouteID))

	l.countTransfers(transfers)
	l.postRouteActions(ctx, route, withCompletion(route, EventRouteCreated, EventRouteFunded)...)
	l.scheduleNextNotice(ctx, route)
	return receiptFor(route, route.DepositAmount, transfers), nil
}

// CreateInvoice records a pending invoice raised by its requester. No value
// moves until the payer accepts. The beneficiary defaults to the requester.
func (l *Payroute) CreateInvoice(ctx context.Context, caller string, terms model.RouteTerms) (model.RouteReceipt, error) {
	started := time.Now()
	receipt, err := l.createInvoice(ctx, caller, terms)
	l.observe(model.OperationCreate, started, err)
	return receipt, err
}

func (l *Payroute) createInvoice(ctx context.Context, caller string, terms model.RouteTerms) (model.RouteReceipt, error) {
	ctx, span := tracer.Start(ctx, "Creating invoice")
	defer span.End()

	terms.Kind = model.RouteKindInvoice
	if terms.Beneficiary == "" {
		terms.Beneficiary = terms.Requester
	}
	route, err := model.NewRoute(terms, l.now())
	if err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "invalid invoice terms", err)
	}
	if !model.SameAddress(caller, route.Requester) {
		return model.RouteReceipt{}, logAndRecordError(span, "create invoice rejected",
			errors.Wrap(model.ErrInvalidParty, "caller is not the requester"))
	}

	if err := l.datasource.CommitChange(ctx, model.RouteChange{Route: route, Create: true}); err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "commit invoice error", err)
	}
	span.AddEvent("Invoice created", routeAttr(route.RouteID))

	l.postRouteActions(ctx, route, EventInvoiceCreated)
	return receiptFor(route, nil, nil), nil
}

// Accept funds a pending invoice from the payer's wallet.
func (l *Payroute) Accept(ctx context.Context, routeID, caller string) (model.RouteReceipt, error) {
	started := time.Now()
	receipt, err := l.accept(ctx, routeID, caller)
	l.observe(model.OperationAccept, started, err)
	return receipt, err
}

func (l *Payroute) accept(ctx context.Context, routeID, caller string) (model.RouteReceipt, error) {
	ctx, span := tracer.Start(ctx, "Accepting invoice")
	defer span.End()

	release, err := l.lockRoute(ctx, routeID)
	if err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "lock error", err)
	}
	defer release()

	route, err := l.datasource.GetRouteByID(ctx, routeID)
	if err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "route lookup error", err)
	}
	if err := model.Authorize(route, model.OperationAccept, caller); err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "accept rejected", err)
	}

	releaseBalances, err := l.lockBalances(ctx, route.TokenID, route.Payer, l.feeCollector)
	if err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "lock error", err)
	}
	defer releaseBalances()

	tier, err := l.resolveTier(ctx, route.Payer)
	if err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "fee policy error", err)
	}
	now := l.now()
	handles, err := l.fundingHandles(ctx, route, route.Payer, now)
	if err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "balance error", err)
	}
	transfers, err := model.Accept(route, caller, handles, tier, l.fees, now)
	if err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "accept failed", err)
	}

	err = l.datasource.CommitChange(ctx, model.RouteChange{
		Route:     route,
		Balances:  fundingBalances(handles),
		Transfers: transfers,
	})
	if err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "commit route error", err)
	}
	span.AddEvent("Invoice accepted", routeAttr(route.RouteID))

	l.countTransfers(transfers)
	l.postRouteActions(ctx, route, withCompletion(route, EventInvoiceAccepted)...)
	l.scheduleNextNotice(ctx, route)
	return receiptFor(route, route.DepositAmount, transfers), nil
}

// Decline closes a pending invoice. No value moves.
func (l *Payroute) Decline(ctx context.Context, routeID, caller string) (model.RouteReceipt, error) {
	started := time.Now()
	receipt, err := l.decline(ctx, routeID, caller)
	l.observe(model.OperationDecline, started, err)
	return receipt, err
}

func (l *Payroute) decline(ctx context.Context, routeID, caller string) (model.RouteReceipt, error) {
	ctx, span := tracer.Start(ctx, "Declining invoice")
	defer span.End()

	release, err := l.lockRoute(ctx, routeID)
	if err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "lock error", err)
	}
	defer release()

	route, err := l.datasource.GetRouteByID(ctx, routeID)
	if err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "route lookup error", err)
	}
	if err := model.Decline(route, caller); err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "decline rejected", err)
	}
	if err := l.datasource.CommitChange(ctx, model.RouteChange{Route: route}); err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "commit route error", err)
	}
	span.AddEvent("Invoice declined", routeAttr(route.RouteID))

	l.postRouteActions(ctx, route, EventInvoiceDeclined)
	return receiptFor(route, nil, nil), nil
}

// Approve raises a milestone route's approved amount by amount. Approving
// zero is accepted and changes nothing.
func (l *Payroute) Approve(ctx context.Context, routeID, caller string, amount *big.Int) (model.RouteReceipt, error) {
	started := time.Now()
	receipt, err := l.approve(ctx, routeID, caller, amount)
	l.observe(model.OperationApprove, started, err)
	return receipt, err
}

func (l *Payroute) approve(ctx context.Context, routeID, caller string, amount *big.Int) (model.RouteReceipt, error) {
	ctx, span := tracer.Start(ctx, "Approving milestone")
	defer span.End()

	release, err := l.lockRoute(ctx, routeID)
	if err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "lock error", err)
	}
	defer release()

	route, err := l.datasource.GetRouteByID(ctx, routeID)
	if err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "route lookup error", err)
	}
	if err := model.Approve(route, caller, amount); err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "approve rejected", err)
	}
	if amount.Sign() == 0 {
		return receiptFor(route, amount, nil), nil
	}
	if err := l.datasource.CommitChange(ctx, model.RouteChange{Route: route}); err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "commit route error", err)
	}
	span.AddEvent("Milestone approved", routeAttr(route.RouteID))

	l.postRouteActions(ctx, route, EventRouteApproved)
	l.notifyClaimable(ctx, route)
	return receiptFor(route, amount, nil), nil
}

// Claim releases everything currently claimable to the beneficiary.
func (l *Payroute) Claim(ctx context.Context, routeID, caller string) (model.RouteReceipt, error) {
	started := time.Now()
	receipt, err := l.claim(ctx, routeID, caller)
	l.observe(model.OperationClaim, started, err)
	return receipt, err
}

func (l *Payroute) claim(ctx context.Context, routeID, caller string) (model.RouteReceipt, error) {
	ctx, span := tracer.Start(ctx, "Claiming route")
	defer span.End()

	release, err := l.lockRoute(ctx, routeID)
	if err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "lock error", err)
	}
	defer release()

	route, err := l.datasource.GetRouteByID(ctx, routeID)
	if err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "route lookup error", err)
	}
	if err := model.Authorize(route, model.OperationClaim, caller); err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "claim rejected", err)
	}

	releaseBalances, err := l.lockBalances(ctx, route.TokenID, route.Beneficiary)
	if err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "lock error", err)
	}
	defer releaseBalances()

	escrow, err := l.datasource.GetBalanceByID(ctx, route.EscrowBalanceID)
	if err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "escrow lookup error", err)
	}
	beneficiary, err := l.getOrNewBalance(ctx, route.Beneficiary, route.TokenID)
	if err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "balance error", err)
	}

	amount, transfers, err := model.Claim(route, caller, model.ClaimHandles{Escrow: escrow, Beneficiary: beneficiary}, l.now())
	if err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "claim failed", err)
	}
	err = l.datasource.CommitChange(ctx, model.RouteChange{
		Route:     route,
		Balances:  []*model.Balance{escrow, beneficiary},
		Transfers: transfers,
	})
	if err != nil {
		return model.RouteReceipt{}, logAndRecordError(span, "commit route error", err)
	}
	span.AddEvent("Route claimed", routeAttr(route.RouteID))

	l.countTransfers(transfers)
	l.postRouteActions(ctx, route, withCompletion(route, EventRouteClaimed)...)
	l.scheduleNextNotice(ctx, route)
	return receiptFor(route, amount, transfers), nil
}

// GetRoute returns the route view, including the escrow's live balance.
func (l *Payroute) GetRoute(ctx context.Context, routeID string) (model.RouteView, error) {
	ctx, span := tracer.Start(ctx, "Fetching route")
	defer span.End()

	route, err := l.datasource.GetRouteByID(ctx, routeID)
	if err != nil {
		return model.RouteView{}, logAndRecordError(span, "route lookup error", err)
	}
	escrow, err := l.datasource.GetBalanceByID(ctx, route.EscrowBalanceID)
	if err != nil {
		if !apierror.HasCode(err, apierror.ErrNotFound) {
			return model.RouteView{}, logAndRecordError(span, "escrow lookup error", err)
		}
		escrow = nil
	}
	return route.View(l.now(), escrow), nil
}

// ListRoutes returns route views newest first.
func (l *Payroute) ListRoutes(ctx context.Context, limit, offset int) ([]model.RouteView, error) {
	routes, err := l.datasource.GetAllRoutes(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	return l.views(routes), nil
}

// ListRoutesByParty returns the routes party takes any role in, newest first.
func (l *Payroute) ListRoutesByParty(ctx context.Context, party string, limit, offset int) ([]model.RouteView, error) {
	if err := model.ValidateAddress(party); err != nil {
		return nil, err
	}
	routes, err := l.datasource.GetRoutesByParty(ctx, model.CanonicalAddress(party), limit, offset)
	if err != nil {
		return nil, err
	}
	return l.views(routes), nil
}

func (l *Payroute) views(routes []model.Route) []model.RouteView {
	now := l.now()
	views := make([]model.RouteView, 0, len(routes))
	for i := range routes {
		views = append(views, routes[i].View(now, nil))
	}
	return views
}

// GetClaimable reports what the beneficiary could claim now and, for
// schedule-gated routes, when the next period unlocks.
func (l *Payroute) GetClaimable(ctx context.Context, routeID string) (ClaimableStatus, error) {
	route, err := l.datasource.GetRouteByID(ctx, routeID)
	if err != nil {
		return ClaimableStatus{}, err
	}
	now := l.now()
	status := ClaimableStatus{
		RouteID:      route.RouteID,
		Status:       route.Status,
		ClaimableNow: model.ClaimableNow(route, now),
	}
	if next, ok := model.NextUnlock(route, now); ok {
		status.NextUnlock = &next
	}
	return status, nil
}

// GetRouteTransfers returns the route's token movements in commit order.
func (l *Payroute) GetRouteTransfers(ctx context.Context, routeID string) ([]model.Transfer, error) {
	if _, err := l.datasource.GetRouteByID(ctx, routeID); err != nil {
		return nil, err
	}
	return l.datasource.GetTransfersByRoute(ctx, routeID)
}

// withCompletion appends route.completed to events when the route settled.
func withCompletion(route *model.Route, events ...string) []string {
	if route.Status == model.RouteStatusCompleted {
		events = append(events, EventRouteCompleted)
	}
	return events
}

// postRouteActions delivers the route's webhooks after a commit. Failures are
// reported and never undo the committed change.
func (l *Payroute) postRouteActions(ctx context.Context, route *model.Route, events ...string) {
	if l.dispatcher == nil {
		return
	}
	view := route.View(l.now(), nil)
	for _, event := range events {
		if err := l.dispatcher.SendWebhook(ctx, NewWebhook{Event: event, Payload: view}); err != nil {
			notification.NotifyError(errors.Wrapf(err, "sending %s for route %s", event, route.RouteID))
		}
	}
}

// notifyClaimable emits route.claimable when value is claimable right now.
func (l *Payroute) notifyClaimable(ctx context.Context, route *model.Route) {
	if model.ClaimableNow(route, l.now()).Sign() > 0 {
		l.postRouteActions(ctx, route, EventRouteClaimable)
	}
}

// scheduleNextNotice queues a claimable notice at the route's next unlock.
func (l *Payroute) scheduleNextNotice(ctx context.Context, route *model.Route) {
	if l.dispatcher == nil {
		return
	}
	at, ok := model.NextUnlock(route, l.now())
	if !ok {
		return
	}
	if err := l.dispatcher.ScheduleClaimableNotice(ctx, route.RouteID, at); err != nil {
		notification.NotifyError(errors.Wrapf(err, "scheduling claimable notice for route %s", route.RouteID))
	}
}
