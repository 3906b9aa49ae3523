package api

import (
	"net/http"

	"github.com/blnkfinance/payroute"
	"github.com/blnkfinance/payroute/api/middleware"
	"github.com/blnkfinance/payroute/config"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type Api struct {
	payroute *payroute.Payroute
	router   *gin.Engine
	tokens   map[string]config.TokenConfig
}

func (a Api) Router() *gin.Engine {
	router := a.router

	router.POST("/routes/linear", a.CreateLinearRoute)
	router.POST("/routes/milestone", a.CreateMilestoneRoute)
	router.GET("/routes", a.ListRoutes)
	router.GET("/routes/:id", a.GetRoute)
	router.GET("/routes/:id/claimable", a.GetClaimable)
	router.GET("/routes/:id/transfers", a.GetRouteTransfers)
	router.POST("/routes/:id/approve", a.ApproveRoute)
	router.POST("/routes/:id/claim", a.ClaimRoute)

	router.POST("/invoices", a.CreateInvoice)
	router.POST("/invoices/:id/accept", a.AcceptInvoice)
	router.POST("/invoices/:id/decline", a.DeclineInvoice)

	router.GET("/parties/:address/routes", a.ListPartyRoutes)

	router.POST("/wallets/deposit", a.FundWallet)
	router.GET("/wallets/:address/:token", a.GetWalletBalance)
	router.GET("/balances/:id", a.GetBalance)
	router.GET("/balances/:id/transfers", a.GetBalanceTransfers)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return a.router
}

func NewAPI(p *payroute.Payroute) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.New()
	r.Use(gin.Recovery())
	if conf.EnableTelemetry {
		r.Use(otelgin.Middleware(conf.ProjectName))
	}
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})

	return &Api{payroute: p, router: r, tokens: conf.Fees.Tokens}
}

// decimals returns the configured precision of tokenID. Unlisted tokens take
// amounts in their smallest unit.
func (a Api) decimals(tokenID string) int32 {
	return a.tokens[tokenID].Decimals
}
