package payroute

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/blnkfinance/payroute/feepolicy"
	"github.com/blnkfinance/payroute/internal/apierror"
	redlock "github.com/blnkfinance/payroute/internal/lock"
	"github.com/blnkfinance/payroute/internal/metrics"
	"github.com/blnkfinance/payroute/model"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndFund_Linear(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.topUp(t, depositor, 25_000)

	receipt, err := h.p.CreateAndFund(ctx, depositor, linearTerms(10_000))
	require.NoError(t, err)
	assert.Equal(t, model.RouteStatusActive, receipt.Status)
	assert.Equal(t, "9950", receipt.Amount.String())
	assert.Len(t, receipt.Transfers, 2)

	view, err := h.p.GetRoute(ctx, receipt.RouteID)
	require.NoError(t, err)
	assert.Equal(t, "9950", view.DepositAmount.String())
	assert.Equal(t, "50", view.FeeAmount.String())
	assert.Equal(t, uint32(50), view.FeeBps)
	assert.Equal(t, "9950", view.EscrowBalance.String())
	assert.Nil(t, view.ApprovedAmount)
	assert.Nil(t, view.Requester)

	assert.Equal(t, "15000", h.wallet(t, depositor))
	fees, err := h.ds.GetBalanceByIndicator(ctx, model.FeeCollectorIndicator, testToken)
	require.NoError(t, err)
	assert.Equal(t, "50", fees.Balance.String())

	assert.Equal(t, []string{EventRouteCreated, EventRouteFunded}, h.dispatcher.takeEvents())
	require.Len(t, h.dispatcher.notices, 1)
	assert.Equal(t, t0.Add(time.Hour), h.dispatcher.notices[0].at)
	assertConserved(t, h.ds)
}

func TestCreateAndFund_Rejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.topUp(t, depositor, 5_000)
	commits := h.ds.Commits

	_, err := h.p.CreateAndFund(ctx, depositor, linearTerms(10_000))
	assert.True(t, errors.Is(err, model.ErrInsufficientBalance))

	_, err = h.p.CreateAndFund(ctx, beneficiary, linearTerms(1_000))
	assert.True(t, errors.Is(err, model.ErrNotDepositor))

	bad := linearTerms(1_000)
	bad.Schedule.PeriodSeconds = 0
	_, err = h.p.CreateAndFund(ctx, depositor, bad)
	assert.True(t, errors.Is(err, model.ErrInvalidSchedule))

	bad = linearTerms(1_000)
	bad.Beneficiary = "0x12"
	_, err = h.p.CreateAndFund(ctx, depositor, bad)
	assert.True(t, errors.Is(err, model.ErrInvalidParty))

	_, err = h.p.CreateAndFund(ctx, payer, invoiceTerms(1_000))
	assert.True(t, errors.Is(err, model.ErrUnsupportedOperation))

	assert.Equal(t, commits, h.ds.Commits)
	assert.Equal(t, "5000", h.wallet(t, depositor))
	assert.Empty(t, h.dispatcher.takeEvents())
}

func TestCreateAndFund_FeePolicyUnavailable(t *testing.T) {
	h := newHarness(t, WithResolver(feepolicy.UnavailableResolver{Reason: "oracle down"}))
	h.topUp(t, depositor, 10_000)
	commits := h.ds.Commits

	_, err := h.p.CreateAndFund(context.Background(), depositor, linearTerms(10_000))
	assert.True(t, errors.Is(err, model.ErrFeePolicyUnavailable))
	assert.Equal(t, apierror.ErrUnavailable, apierror.FromError(err).Code)
	assert.Equal(t, commits, h.ds.Commits)
	assert.Equal(t, "10000", h.wallet(t, depositor))
}

func TestCreateAndFund_FeeDeterminism(t *testing.T) {
	for _, tt := range []struct {
		tier uint32
		fee  string
	}{
		{0, "5000"},
		{2, "2500"},
	} {
		h := newHarness(t, WithResolver(feepolicy.NewStaticResolver(map[string]uint32{depositor: tt.tier})))
		h.topUp(t, depositor, 1_000_000)
		terms := linearTerms(1_000_000)
		terms.Schedule.PayoutAmount = big.NewInt(100_000)
		receipt, err := h.p.CreateAndFund(context.Background(), depositor, terms)
		require.NoError(t, err)
		view, err := h.p.GetRoute(context.Background(), receipt.RouteID)
		require.NoError(t, err)
		assert.Equal(t, tt.fee, view.FeeAmount.String())
		assert.Equal(t, 0, new(big.Int).Add(view.FeeAmount, view.DepositAmount).Cmp(big.NewInt(1_000_000)))
	}
}

func TestCreateAndFund_TierForChecksummedAddress(t *testing.T) {
	const checksummed = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	lower := strings.ToLower(checksummed)

	h := newHarness(t, WithResolver(feepolicy.NewStaticResolver(map[string]uint32{checksummed: 2})))
	h.topUp(t, lower, 1_000_000)
	terms := linearTerms(1_000_000)
	terms.Depositor = lower
	terms.Schedule.PayoutAmount = big.NewInt(100_000)

	receipt, err := h.p.CreateAndFund(context.Background(), lower, terms)
	require.NoError(t, err)
	view, err := h.p.GetRoute(context.Background(), receipt.RouteID)
	require.NoError(t, err)
	assert.Equal(t, "2500", view.FeeAmount.String())
}

func TestLinearClaim_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.topUp(t, depositor, 10_000)
	receipt, err := h.p.CreateAndFund(ctx, depositor, linearTerms(10_000))
	require.NoError(t, err)
	id := receipt.RouteID

	_, err = h.p.Claim(ctx, id, beneficiary)
	assert.True(t, errors.Is(err, model.ErrNothingClaimable))

	h.clock.Advance(2*time.Hour + time.Minute)
	claimed, err := h.p.Claim(ctx, id, beneficiary)
	require.NoError(t, err)
	assert.Equal(t, "2000", claimed.Amount.String())

	_, err = h.p.Claim(ctx, id, beneficiary)
	assert.True(t, errors.Is(err, model.ErrNothingClaimable))

	_, err = h.p.Claim(ctx, id, depositor)
	assert.True(t, errors.Is(err, model.ErrNotBeneficiary))

	h.clock.Advance(24 * time.Hour)
	claimed, err = h.p.Claim(ctx, id, beneficiary)
	require.NoError(t, err)
	assert.Equal(t, "7950", claimed.Amount.String())
	assert.Equal(t, "9950", claimed.ClaimedAmount.String())
	assert.Equal(t, model.RouteStatusCompleted, claimed.Status)
	assert.Equal(t, "9950", h.wallet(t, beneficiary))

	view, err := h.p.GetRoute(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "0", view.EscrowBalance.String())

	transfers, err := h.p.GetRouteTransfers(ctx, id)
	require.NoError(t, err)
	assert.Len(t, transfers, 4)
	assertConserved(t, h.ds)
}

func TestInvoiceLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.topUp(t, payer, 1_000)
	h.dispatcher.takeEvents()

	_, err := h.p.CreateInvoice(ctx, payer, invoiceTerms(1_000))
	assert.True(t, errors.Is(err, model.ErrInvalidParty))

	created, err := h.p.CreateInvoice(ctx, requester, invoiceTerms(1_000))
	require.NoError(t, err)
	assert.Equal(t, model.RouteStatusPending, created.Status)
	id := created.RouteID

	view, err := h.p.GetRoute(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, requester, view.Beneficiary)
	assert.Nil(t, view.EscrowBalance)

	_, err = h.p.Claim(ctx, id, requester)
	assert.True(t, errors.Is(err, model.ErrNothingClaimable))

	_, err = h.p.Accept(ctx, id, requester)
	assert.True(t, errors.Is(err, model.ErrNotPayer))

	accepted, err := h.p.Accept(ctx, id, payer)
	require.NoError(t, err)
	assert.Equal(t, model.RouteStatusFunded, accepted.Status)
	view, err = h.p.GetRoute(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "995", view.DepositAmount.String())
	assert.Equal(t, "5", view.FeeAmount.String())
	assert.Equal(t, "0", h.wallet(t, payer))

	_, err = h.p.Accept(ctx, id, payer)
	assert.True(t, errors.Is(err, model.ErrAlreadyDecided))

	h.clock.Advance(time.Second)
	claimed, err := h.p.Claim(ctx, id, requester)
	require.NoError(t, err)
	assert.Equal(t, "995", claimed.Amount.String())
	assert.Equal(t, model.RouteStatusCompleted, claimed.Status)

	_, err = h.p.Claim(ctx, id, requester)
	assert.True(t, errors.Is(err, model.ErrNothingClaimable))

	assert.Equal(t, []string{
		EventInvoiceCreated,
		EventInvoiceAccepted,
		EventRouteClaimed, EventRouteCompleted,
	}, h.dispatcher.takeEvents())
	assertConserved(t, h.ds)
}

func TestInvoiceAccept_ClampsStart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.topUp(t, payer, 1_000)
	terms := invoiceTerms(1_000)
	terms.Schedule.StartTimestamp = t0.Add(-time.Hour).Unix()

	created, err := h.p.CreateInvoice(ctx, requester, terms)
	require.NoError(t, err)
	h.clock.Advance(10 * time.Minute)
	_, err = h.p.Accept(ctx, created.RouteID, payer)
	require.NoError(t, err)

	view, err := h.p.GetRoute(ctx, created.RouteID)
	require.NoError(t, err)
	assert.Equal(t, h.clock.Now().Unix(), view.StartTimestamp)
	assert.Equal(t, "0", view.ClaimableNow.String())
}

func TestInvoiceDecline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.topUp(t, payer, 1_000)

	created, err := h.p.CreateInvoice(ctx, requester, invoiceTerms(1_000))
	require.NoError(t, err)

	_, err = h.p.Decline(ctx, created.RouteID, requester)
	assert.True(t, errors.Is(err, model.ErrNotPayer))

	declined, err := h.p.Decline(ctx, created.RouteID, payer)
	require.NoError(t, err)
	assert.Equal(t, model.RouteStatusDeclined, declined.Status)

	_, err = h.p.Accept(ctx, created.RouteID, payer)
	assert.True(t, errors.Is(err, model.ErrAlreadyDecided))
	_, err = h.p.Decline(ctx, created.RouteID, payer)
	assert.True(t, errors.Is(err, model.ErrAlreadyDecided))

	assert.Equal(t, "1000", h.wallet(t, payer))
	transfers, err := h.p.GetRouteTransfers(ctx, created.RouteID)
	require.NoError(t, err)
	assert.Empty(t, transfers)
}

func TestMilestoneGating(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.topUp(t, depositor, 1_000)
	fees := model.DefaultFeeSchedule()
	fees.BaseRates[model.TokenClassGeneric] = 0
	fees.DefaultRate = 0
	h.p.fees = fees

	receipt, err := h.p.CreateAndFund(ctx, depositor, milestoneTerms(1_000))
	require.NoError(t, err)
	id := receipt.RouteID
	assert.Empty(t, h.dispatcher.notices)
	h.dispatcher.takeEvents()

	approved, err := h.p.Approve(ctx, id, depositor, big.NewInt(400))
	require.NoError(t, err)
	assert.Equal(t, "400", approved.ApprovedAmount.String())
	assert.Equal(t, []string{EventRouteApproved, EventRouteClaimable}, h.dispatcher.takeEvents())

	claimed, err := h.p.Claim(ctx, id, beneficiary)
	require.NoError(t, err)
	assert.Equal(t, "400", claimed.Amount.String())

	h.clock.Advance(30 * 24 * time.Hour)
	_, err = h.p.Claim(ctx, id, beneficiary)
	assert.True(t, errors.Is(err, model.ErrNothingClaimable))

	_, err = h.p.Approve(ctx, id, depositor, big.NewInt(601))
	assert.True(t, errors.Is(err, model.ErrExceedsDeposit))
	view, err := h.p.GetRoute(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "400", view.ApprovedAmount.String())

	commits := h.ds.Commits
	noop, err := h.p.Approve(ctx, id, depositor, big.NewInt(0))
	require.NoError(t, err)
	assert.Equal(t, "400", noop.ApprovedAmount.String())
	assert.Equal(t, commits, h.ds.Commits)

	_, err = h.p.Approve(ctx, id, beneficiary, big.NewInt(1))
	assert.True(t, errors.Is(err, model.ErrNotDepositor))

	_, err = h.p.Approve(ctx, id, depositor, big.NewInt(600))
	require.NoError(t, err)
	claimed, err = h.p.Claim(ctx, id, beneficiary)
	require.NoError(t, err)
	assert.Equal(t, "600", claimed.Amount.String())
	assert.Equal(t, model.RouteStatusCompleted, claimed.Status)
	assertConserved(t, h.ds)
}

func TestApprove_LinearUnsupported(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.topUp(t, depositor, 1_000)
	receipt, err := h.p.CreateAndFund(ctx, depositor, linearTerms(1_000))
	require.NoError(t, err)

	_, err = h.p.Approve(ctx, receipt.RouteID, depositor, big.NewInt(1))
	assert.True(t, errors.Is(err, model.ErrUnsupportedOperation))
	_, err = h.p.Accept(ctx, receipt.RouteID, depositor)
	assert.True(t, errors.Is(err, model.ErrUnsupportedOperation))
}

func TestRouteNotFound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.p.Claim(ctx, "rte_missing", beneficiary)
	assert.True(t, errors.Is(err, model.ErrRouteNotFound))
	_, err = h.p.GetRoute(ctx, "rte_missing")
	assert.True(t, errors.Is(err, model.ErrRouteNotFound))
	_, err = h.p.GetRouteTransfers(ctx, "rte_missing")
	assert.True(t, errors.Is(err, model.ErrRouteNotFound))
}

func TestClaim_FailedCommitLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.topUp(t, depositor, 10_000)
	receipt, err := h.p.CreateAndFund(ctx, depositor, linearTerms(10_000))
	require.NoError(t, err)
	h.dispatcher.takeEvents()

	h.clock.Advance(time.Hour)
	h.ds.FailCommit = apierror.NewAPIError(apierror.ErrConflict, "route was modified concurrently", nil)
	_, err = h.p.Claim(ctx, receipt.RouteID, beneficiary)
	assert.True(t, apierror.HasCode(err, apierror.ErrConflict))
	assert.Empty(t, h.dispatcher.takeEvents())

	view, err := h.p.GetRoute(ctx, receipt.RouteID)
	require.NoError(t, err)
	assert.Equal(t, "0", view.ClaimedAmount.String())
	assert.Equal(t, "9950", view.EscrowBalance.String())

	claimed, err := h.p.Claim(ctx, receipt.RouteID, beneficiary)
	require.NoError(t, err)
	assert.Equal(t, "1000", claimed.Amount.String())
}

func TestClaim_RouteLocked(t *testing.T) {
	h := newHarness(t)
	h.p.lockWait = 50 * time.Millisecond
	ctx := context.Background()
	h.topUp(t, depositor, 10_000)
	receipt, err := h.p.CreateAndFund(ctx, depositor, linearTerms(10_000))
	require.NoError(t, err)

	require.NoError(t, h.redis.Set(ctx, redlock.RouteKey(receipt.RouteID), "other", time.Minute).Err())
	h.clock.Advance(time.Hour)
	_, err = h.p.Claim(ctx, receipt.RouteID, beneficiary)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to acquire lock")
}

func TestGetClaimable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.topUp(t, depositor, 10_000)
	receipt, err := h.p.CreateAndFund(ctx, depositor, linearTerms(10_000))
	require.NoError(t, err)

	h.clock.Advance(90 * time.Minute)
	status, err := h.p.GetClaimable(ctx, receipt.RouteID)
	require.NoError(t, err)
	assert.Equal(t, "1000", status.ClaimableNow.String())
	require.NotNil(t, status.NextUnlock)
	assert.Equal(t, t0.Add(2*time.Hour), *status.NextUnlock)
}

func TestListRoutesByParty(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.topUp(t, depositor, 10_000)
	_, err := h.p.CreateAndFund(ctx, depositor, linearTerms(1_000))
	require.NoError(t, err)
	_, err = h.p.CreateInvoice(ctx, requester, invoiceTerms(1_000))
	require.NoError(t, err)

	all, err := h.p.ListRoutes(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := h.p.ListRoutesByParty(ctx, beneficiary, 10, 0)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, model.RouteKindLinear, mine[0].Kind)

	_, err = h.p.ListRoutesByParty(ctx, "not-an-address", 10, 0)
	assert.True(t, errors.Is(err, model.ErrInvalidParty))
}

func TestProcessClaimableNotice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.topUp(t, depositor, 10_000)
	receipt, err := h.p.CreateAndFund(ctx, depositor, linearTerms(10_000))
	require.NoError(t, err)
	h.dispatcher.takeEvents()
	require.Len(t, h.dispatcher.notices, 1)

	notice := h.dispatcher.notices[0]
	h.clock.Advance(notice.at.Sub(t0))
	payload, err := json.Marshal(ClaimableNoticePayload{RouteID: notice.routeID, At: notice.at})
	require.NoError(t, err)

	require.NoError(t, h.p.ProcessClaimableNotice(ctx, asynq.NewTask("notice", payload)))
	assert.Equal(t, []string{EventRouteClaimable}, h.dispatcher.takeEvents())
	require.Len(t, h.dispatcher.notices, 2)
	assert.Equal(t, t0.Add(2*time.Hour), h.dispatcher.notices[1].at)
	assert.Equal(t, receipt.RouteID, h.dispatcher.notices[1].routeID)

	process := func(at time.Time) []string {
		payload, err := json.Marshal(ClaimableNoticePayload{RouteID: receipt.RouteID, At: at})
		require.NoError(t, err)
		require.NoError(t, h.p.ProcessClaimableNotice(ctx, asynq.NewTask("notice", payload)))
		return h.dispatcher.takeEvents()
	}

	// the first release is still unclaimed, so the next boundary stays quiet
	h.clock.Advance(time.Hour)
	assert.Empty(t, process(t0.Add(2*time.Hour)))
	assert.Equal(t, t0.Add(3*time.Hour), h.dispatcher.notices[len(h.dispatcher.notices)-1].at)

	_, err = h.p.Claim(ctx, receipt.RouteID, beneficiary)
	require.NoError(t, err)
	h.dispatcher.takeEvents()

	h.clock.Advance(time.Hour)
	assert.Equal(t, []string{EventRouteClaimable}, process(t0.Add(3*time.Hour)))

	err = h.p.ProcessClaimableNotice(ctx, asynq.NewTask("notice", []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestFundWallet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.p.FundWallet(ctx, depositor, testToken, big.NewInt(0))
	assert.True(t, errors.Is(err, model.ErrInvalidAmount))
	_, err = h.p.FundWallet(ctx, "0x12", testToken, big.NewInt(1))
	assert.True(t, errors.Is(err, model.ErrInvalidParty))

	_, err = h.p.FundWallet(ctx, "0x5aaeb6053F3E94C9b9A09f33669435E7Ef1BeAed", testToken, big.NewInt(1))
	assert.True(t, errors.Is(err, model.ErrInvalidParty))

	transfer, err := h.p.FundWallet(ctx, depositor, testToken, big.NewInt(700))
	require.NoError(t, err)
	assert.Equal(t, model.TransferPurposeTopUp, transfer.Purpose)
	_, err = h.p.FundWallet(ctx, depositor, testToken, big.NewInt(300))
	require.NoError(t, err)
	assert.Equal(t, "1000", h.wallet(t, depositor))

	wallet, err := h.p.GetWalletBalance(ctx, depositor, testToken)
	require.NoError(t, err)
	transfers, err := h.p.GetBalanceTransfers(ctx, wallet.BalanceID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, transfers, 2)
	assertConserved(t, h.ds)
}

func TestOperationMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := newHarness(t, WithMetrics(metrics.NewRecorder(reg)))
	ctx := context.Background()
	h.topUp(t, depositor, 1_000)

	_, err := h.p.CreateAndFund(ctx, depositor, linearTerms(1_000))
	require.NoError(t, err)
	_, err = h.p.CreateAndFund(ctx, depositor, linearTerms(1_000))
	require.Error(t, err)

	count, err := testutil.GatherAndCount(reg, "payroute_route_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = testutil.GatherAndCount(reg, "payroute_transfers_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
