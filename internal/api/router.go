// Package api - Router setup
package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aethra/clientdesk/internal/auth"
	"github.com/aethra/clientdesk/internal/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(handler *Handler, corsCfg config.CORSConfig, metrics *Metrics, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(AccessLog(logger))
	if metrics != nil {
		r.Use(metrics.Middleware())
	}

	// When credentials are used, specific origins must be provided (not *)
	r.Use(cors.New(cors.Config{
		AllowOrigins:     corsCfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", agencyHeader, "Accept"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type", "Content-Disposition", nextCursorHeader},
		AllowCredentials: corsCfg.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}))

	// Health check and metrics (no auth required)
	r.GET("/api/health", handler.Health)
	if metrics != nil {
		r.GET("/metrics", metrics.Handler())
	}

	view := handler.PermissionMiddleware(auth.ActionView)
	create := handler.PermissionMiddleware(auth.ActionCreate)
	edit := handler.PermissionMiddleware(auth.ActionEdit)
	remove := handler.PermissionMiddleware(auth.ActionDelete)

	// ==========================================================================
	// CLIENTS - any authenticated caller within an agency
	// ==========================================================================
	clients := r.Group("/clients")
	clients.Use(handler.AuthMiddleware())
	clients.Use(handler.AgencyMiddleware())
	{
		clients.GET("", handler.ListClients)
		clients.POST("", handler.CreateClient)
		clients.GET("/:id", handler.GetClient)
		clients.PATCH("/:id", handler.UpdateClient)
		clients.DELETE("/:id", handler.DeleteClient)
		clients.GET("/:id/dashboard", handler.GetClientDashboard)
		clients.GET("/:id/ledger-balance", handler.GetLedgerBalance)
		clients.POST("/invites/organization-user", handler.InviteOrganizationUser)

		clients.POST("/:id/photo", handler.UploadClientPhoto)
		clients.GET("/:id/photo", handler.GetClientPhoto)
		clients.DELETE("/:id/photo", handler.DeleteClientPhoto)

		clients.GET("/:id/portals", handler.ListClientPortals)
		clients.POST("/:id/portals", handler.CreateClientPortal)
		clients.GET("/:id/portals/:portal_id", handler.GetClientPortal)
		clients.PATCH("/:id/portals/:portal_id", handler.UpdateClientPortal)
		clients.DELETE("/:id/portals/:portal_id", handler.DeleteClientPortal)
	}

	// ==========================================================================
	// SERVICES - external catalog proxy and client service links
	// ==========================================================================
	services := r.Group("/services")
	services.Use(handler.AuthMiddleware())
	services.Use(handler.AgencyMiddleware())
	{
		services.GET("", handler.ListExternalServices)
		services.POST("/:id/services", create, handler.AddClientServices)
		services.GET("/:id/services", view, handler.ListClientServices)
		services.DELETE("/:id/services", remove, handler.RemoveClientServices)
	}

	// ==========================================================================
	// PORTAL CATALOG - global, role gated
	// ==========================================================================
	portals := r.Group("/portals")
	portals.Use(handler.AuthMiddleware())
	{
		portals.GET("", view, handler.ListPortals)
		portals.POST("", create, handler.CreatePortal)
		portals.GET("/:id", view, handler.GetPortal)
		portals.PATCH("/:id", edit, handler.UpdatePortal)
		portals.DELETE("/:id", remove, handler.DeletePortal)
	}

	// ==========================================================================
	// SETTINGS
	// ==========================================================================
	settings := r.Group("/settings")
	settings.Use(handler.AuthMiddleware())
	{
		agencyScoped := settings.Group("")
		agencyScoped.Use(handler.AgencyMiddleware())
		{
			agencyScoped.GET("/general", view, handler.ListGeneralSettings)
			agencyScoped.POST("/general", create, handler.CreateGeneralSetting)
			agencyScoped.PATCH("/general/:id", edit, handler.UpdateGeneralSetting)
			agencyScoped.DELETE("/general/:id", remove, handler.DeleteGeneralSetting)

			agencyScoped.GET("/agency", view, handler.GetAgencySetting)
			agencyScoped.PATCH("/agency", edit, handler.UpdateAgencySetting)
		}

		settings.GET("/tags", view, handler.ListTags)
		settings.POST("/tags", create, handler.CreateTag)
		settings.PATCH("/tags/:id", edit, handler.UpdateTag)
		settings.DELETE("/tags/:id", remove, handler.DeleteTag)

		settings.GET("/business-types", view, handler.ListBusinessTypes)
		settings.POST("/business-types", create, handler.CreateBusinessType)
		settings.PATCH("/business-types/:id", edit, handler.UpdateBusinessType)
		settings.DELETE("/business-types/:id", remove, handler.DeleteBusinessType)
	}

	// ==========================================================================
	// ORGANIZATIONS - login API proxy
	// ==========================================================================
	r.GET("/organizations", handler.AuthMiddleware(), handler.ListOrganizations)

	return r
}
