package api

import (
	"net/http"

	model2 "github.com/blnkfinance/payroute/api/model"
	"github.com/blnkfinance/payroute/model"
	"github.com/gin-gonic/gin"
)

func (a Api) CreateLinearRoute(c *gin.Context) {
	a.createRoute(c, model.RouteKindLinear)
}

func (a Api) CreateMilestoneRoute(c *gin.Context) {
	a.createRoute(c, model.RouteKindMilestone)
}

func (a Api) createRoute(c *gin.Context, kind model.RouteKind) {
	var newRoute model2.CreateRoute
	if err := c.ShouldBindJSON(&newRoute); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := newRoute.Schedule.ValidateSchedule(); err != nil {
		respondError(c, err)
		return
	}
	if err := newRoute.ValidateCreateRoute(); err != nil {
		validationError(c, err)
		return
	}
	terms, err := newRoute.ToRouteTerms(kind, a.decimals)
	if err != nil {
		validationError(c, err)
		return
	}

	resp, err := a.payroute.CreateAndFund(c.Request.Context(), newRoute.Caller, terms)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (a Api) CreateInvoice(c *gin.Context) {
	var newInvoice model2.CreateInvoice
	if err := c.ShouldBindJSON(&newInvoice); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := newInvoice.Schedule.ValidateSchedule(); err != nil {
		respondError(c, err)
		return
	}
	if err := newInvoice.ValidateCreateInvoice(); err != nil {
		validationError(c, err)
		return
	}
	terms, err := newInvoice.ToRouteTerms(a.decimals)
	if err != nil {
		validationError(c, err)
		return
	}

	resp, err := a.payroute.CreateInvoice(c.Request.Context(), newInvoice.Caller, terms)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// bindAction reads the caller of accept, decline and claim.
func bindAction(c *gin.Context) (string, bool) {
	var action model2.RouteAction
	if err := c.ShouldBindJSON(&action); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	if err := action.ValidateRouteAction(); err != nil {
		validationError(c, err)
		return "", false
	}
	return action.Caller, true
}

func (a Api) AcceptInvoice(c *gin.Context) {
	caller, ok := bindAction(c)
	if !ok {
		return
	}
	resp, err := a.payroute.Accept(c.Request.Context(), c.Param("id"), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) DeclineInvoice(c *gin.Context) {
	caller, ok := bindAction(c)
	if !ok {
		return
	}
	resp, err := a.payroute.Decline(c.Request.Context(), c.Param("id"), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) ClaimRoute(c *gin.Context) {
	caller, ok := bindAction(c)
	if !ok {
		return
	}
	resp, err := a.payroute.Claim(c.Request.Context(), c.Param("id"), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) ApproveRoute(c *gin.Context) {
	var approval model2.Approve
	if err := c.ShouldBindJSON(&approval); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := approval.ValidateApprove(); err != nil {
		validationError(c, err)
		return
	}

	ctx := c.Request.Context()
	route, err := a.payroute.GetRoute(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	amount, err := model2.ToMinorUnits(approval.Amount, a.decimals(route.TokenID))
	if err != nil {
		validationError(c, err)
		return
	}

	resp, err := a.payroute.Approve(ctx, route.RouteID, approval.Caller, amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) GetRoute(c *gin.Context) {
	resp, err := a.payroute.GetRoute(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) GetClaimable(c *gin.Context) {
	resp, err := a.payroute.GetClaimable(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) GetRouteTransfers(c *gin.Context) {
	resp, err := a.payroute.GetRouteTransfers(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) ListRoutes(c *gin.Context) {
	limit, offset := pagination(c)
	resp, err := a.payroute.ListRoutes(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) ListPartyRoutes(c *gin.Context) {
	limit, offset := pagination(c)
	resp, err := a.payroute.ListRoutesByParty(c.Request.Context(), c.Param("address"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
