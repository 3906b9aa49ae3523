package api

import (
	"net/http"

	model2 "github.com/blnkfinance/payroute/api/model"
	"github.com/gin-gonic/gin"
)

func (a Api) FundWallet(c *gin.Context) {
	var deposit model2.FundWallet
	if err := c.ShouldBindJSON(&deposit); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := deposit.ValidateFundWallet(); err != nil {
		validationError(c, err)
		return
	}
	amount, err := model2.ToMinorUnits(deposit.Amount, a.decimals(deposit.TokenID))
	if err != nil {
		validationError(c, err)
		return
	}

	resp, err := a.payroute.FundWallet(c.Request.Context(), deposit.Address, deposit.TokenID, amount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (a Api) GetWalletBalance(c *gin.Context) {
	resp, err := a.payroute.GetWalletBalance(c.Request.Context(), c.Param("address"), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) GetBalance(c *gin.Context) {
	resp, err := a.payroute.GetBalance(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) GetBalanceTransfers(c *gin.Context) {
	limit, offset := pagination(c)
	resp, err := a.payroute.GetBalanceTransfers(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
