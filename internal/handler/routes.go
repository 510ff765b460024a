package handler

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Routes 路由注册所需的处理器与中间件
type Routes struct {
	Links           *LinkHandler
	Tracking        *TrackingHandler
	Auth            *AuthHandler
	TrackingPath    string
	AuthMiddleware  gin.HandlerFunc
	AdminMiddleware gin.HandlerFunc
}

// RegisterRoutes 注册全部路由
func RegisterRoutes(router *gin.Engine, r Routes) {
	router.GET("/health", r.Links.HealthCheck)
	router.GET(r.TrackingPath, r.Tracking.Track)
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", r.Auth.Login)
	}

	api := router.Group("/api")
	api.Use(r.AuthMiddleware, r.AdminMiddleware)
	{
		api.GET("/me", r.Auth.GetCurrentUser)

		api.POST("/links", r.Links.UpsertLink)
		api.GET("/links", r.Links.GetLinks)
		api.POST("/links/bulk-delete", r.Links.BulkDelete)
		api.GET("/links/short/:short_url", r.Links.GetLinkByShortURL)
		api.GET("/links/:id", r.Links.GetLink)
		api.DELETE("/links/:id", r.Links.DeleteLink)
	}
}
