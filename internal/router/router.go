package router

import (
	"time"

	"salesflow/internal/database"
	"salesflow/internal/handlers"
	"salesflow/internal/middleware"
	"salesflow/internal/models"
	"salesflow/internal/services"
	"salesflow/pkg/config"
	"salesflow/pkg/response"
	"salesflow/pkg/webhook"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// SetupRouter 设置路由
func SetupRouter() *gin.Engine {
	registerValidations()

	router := gin.New()

	// 中间件
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.SetupCORS())

	// 注册路由
	registerRoutes(router)
	return router
}

// 注册所有路由
func registerRoutes(router *gin.Engine) {
	cfg := config.GetConfig()
	db := database.GetDB()

	webhookClient := webhook.NewClient(time.Duration(cfg.Webhook.TimeoutSeconds) * time.Second)

	// 服务装配
	userService := services.NewUserService(db)
	carService := services.NewCarService(db)
	quotationService := services.NewQuotationService(db)
	workflowService := services.NewWorkflowService(db, database.GetRedisCache(),
		time.Duration(cfg.Cache.CatalogTTLMinutes)*time.Minute)
	notifyService := services.NewNotifyService(webhookClient, cfg.Webhook.NotifyURL)
	instanceService := services.NewInstanceService(db, notifyService)
	transitionService := services.NewTransitionService(db)
	insightService := services.NewAIInsightService(db, webhookClient, cfg.Webhook.AIInsightURL)

	auth := middleware.NewAuthMiddleware(userService)

	// API路由组
	api := router.Group("/api/v1")
	{
		// 健康检查接口
		api.GET("/health", healthCheck)
		api.GET("/ping", ping)

		// 认证路由
		authHandler := handlers.NewAuthHandler(userService)
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.RefreshToken)
			authGroup.GET("/me", auth.RequireLogin(), authHandler.Me)
		}

		// 工作流目录
		workflowHandler := handlers.NewWorkflowHandler(workflowService)
		workflows := api.Group("/workflows", auth.RequireLogin())
		{
			workflows.GET("", workflowHandler.List)
			workflows.GET("/catalog", workflowHandler.GetCatalog)
			workflows.GET("/:id", workflowHandler.GetByID)
			workflows.POST("", auth.RequireAdmin(), workflowHandler.Create)
			workflows.PUT("/:id", auth.RequireAdmin(), workflowHandler.Update)
			workflows.POST("/:id/enable", auth.RequireAdmin(), workflowHandler.Enable)
			workflows.POST("/:id/disable", auth.RequireAdmin(), workflowHandler.Disable)
			workflows.POST("/:id/transitions", auth.RequireAdmin(), workflowHandler.AddTransition)
			workflows.DELETE("/:id/transitions/:transitionId", auth.RequireAdmin(), workflowHandler.DeleteTransition)
		}

		// 车辆与报价
		carHandler := handlers.NewCarHandler(carService, quotationService, instanceService)
		cars := api.Group("/cars", auth.RequireLogin())
		{
			cars.GET("", carHandler.List)
			cars.POST("", carHandler.Create)
			cars.GET("/:id", carHandler.GetByID)
			cars.PUT("/:id", carHandler.Update)
			cars.GET("/:id/pipeline", carHandler.GetPipeline)
			cars.POST("/:id/quotations", carHandler.CreateQuotation)
			cars.GET("/:id/quotations", carHandler.ListQuotations)
			cars.GET("/:id/quotations/latest", carHandler.GetLatestQuotation)
		}

		// 工作流实例
		instanceHandler := handlers.NewInstanceHandler(instanceService, transitionService)
		instances := api.Group("/instances", auth.RequireLogin())
		{
			instances.POST("/activate", instanceHandler.Activate)
			instances.GET("/:id", instanceHandler.GetByID)
			instances.POST("/:id/transition", instanceHandler.Transition)
			instances.GET("/:id/transitions", instanceHandler.AvailableTransitions)
		}
		api.POST("/step-executions", auth.RequireLogin(), instanceHandler.RecordStepExecution)

		// AI推荐
		insightHandler := handlers.NewAIInsightHandler(insightService)
		insights := api.Group("/ai-insights", auth.RequireLogin())
		{
			insights.POST("/request", insightHandler.Request)
			insights.POST("/:id/rate", insightHandler.Rate)
		}
	}
}

// 注册自定义binding校验器
func registerValidations() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	_ = v.RegisterValidation("final_outcome", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case models.FinalOutcomeDiscount, models.FinalOutcomeOriginalPrice, models.FinalOutcomeLost:
			return true
		}
		return false
	})
}

// 健康检查
func healthCheck(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}

func ping(c *gin.Context) {
	response.Success(c, gin.H{"message": "pong"})
}
