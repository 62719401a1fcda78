package app

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/osvaldoandrade/riskdesk/internal/controllers"
	"github.com/osvaldoandrade/riskdesk/internal/middleware"
	"github.com/osvaldoandrade/riskdesk/internal/providers"
	"github.com/osvaldoandrade/riskdesk/pkg/auth"
)

func SetupMappings(app *Application) {
	app.Engine.GET("/healthz", controllers.NewHealthController(providers.RedisHealth{Client: app.Redis}).Handle)
	app.Engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := app.Engine.Group("/v1/riskdesk", middleware.AuthMiddleware(app.Validator))
	read := v1.Group("", middleware.RequireScope(auth.ScopeRead))
	run := v1.Group("", middleware.RequireScope(auth.ScopeRun))
	{
		read.GET("/features", controllers.NewListFeaturesController(app.Catalog).Handle)
		read.GET("/sessions", controllers.NewListSessionsController(app.Sessions).Handle)
		read.GET("/sessions/:id", controllers.NewGetSessionController(app.Sessions).Handle)
		read.GET("/sessions/:id/features/:type", controllers.NewGetFeatureController(app.Sessions).Handle)
		read.GET("/results", controllers.NewListRunsController(app.Runs).Handle)
		read.GET("/results/:identifier", controllers.NewGetRunController(app.Runs).Handle)

		run.POST("/sessions", controllers.NewOpenSessionController(app.Sessions).Handle)
		run.DELETE("/sessions/:id", controllers.NewCloseSessionController(app.Sessions).Handle)
		run.POST("/sessions/:id/features/:type/run",
			middleware.RateLimitRun(app.RateLimiter, app.Config),
			controllers.NewRunFeatureController(app.Sessions).Handle)
	}

	if app.Simulator != nil {
		agent := app.Engine.Group("/v1/agent")
		agent.POST("/start_job", controllers.NewStartJobController(app.Simulator).Handle)
		agent.POST("/purchase", controllers.NewPurchaseController(app.Simulator, app.Config.Agent.Payment.TokenHeader).Handle)
		agent.GET("/status", controllers.NewJobStatusController(app.Simulator).Handle)
	}
}
