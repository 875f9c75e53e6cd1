package routes

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"supply-daddy-api-server/internal/admin"
	"supply-daddy-api-server/internal/api/handlers"
	"supply-daddy-api-server/internal/api/middleware"
	"supply-daddy-api-server/internal/audit"
	"supply-daddy-api-server/internal/auth"
	"supply-daddy-api-server/internal/checkpoint"
	"supply-daddy-api-server/internal/models"
	"supply-daddy-api-server/internal/shipment"
	"supply-daddy-api-server/internal/socket"
	"supply-daddy-api-server/internal/users"
)

// Deps are the services the router wires into handlers.
type Deps struct {
	Engine       *checkpoint.Engine
	Shipments    *shipment.Service
	Admin        *admin.Service
	Users        *users.Service
	Auditor      *audit.Auditor
	Tokens       *auth.TokenManager
	Hub          *socket.Hub
	Gatherer     prometheus.Gatherer
	AllowOrigins []string
	Log          logrus.FieldLogger
}

const (
	admins       = models.RoleAdmin
	manufacturer = models.RoleManufacturer
	transit      = models.RoleTransitNode
	receiver     = models.RoleReceiver
)

func SetupRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(d.Log))
	if len(d.AllowOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     d.AllowOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			AllowCredentials: true,
		}))
	}

	checkpointHandler := &handlers.CheckpointHandler{Engine: d.Engine}
	shipmentHandler := &handlers.ShipmentHandler{Shipments: d.Shipments, Auditor: d.Auditor}
	adminHandler := &handlers.AdminHandler{Admin: d.Admin}
	routeHandler := &handlers.RouteHandler{Graph: d.Engine.Graph()}
	userHandler := &handlers.UserHandler{Users: d.Users}
	webSocketHandler := &handlers.WebSocketHandler{Hub: d.Hub, Tokens: d.Tokens, Log: d.Log}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	apiV1 := router.Group("/api/v1")
	{
		apiV1.GET("/ws", webSocketHandler.ServeWs)
		apiV1.POST("/auth/login", userHandler.Login)

		// Route topology is public so the landing map renders before login.
		routes := apiV1.Group("/routes")
		{
			routes.GET("/nodes", routeHandler.ListNodes)
			routes.GET("/graph", routeHandler.GetGraph)
			routes.POST("/optimal", routeHandler.OptimalRoute)
		}

		protected := apiV1.Group("/")
		protected.Use(middleware.Authenticate(d.Tokens))
		{
			protected.GET("/auth/me", userHandler.Me)
			protected.GET("/auth/users/receivers", middleware.Authorize(admins, manufacturer), userHandler.ListReceivers)

			protected.POST("/checkpoints", middleware.Authorize(admins, transit), checkpointHandler.SubmitCheckpoint)

			shipments := protected.Group("/shipments")
			{
				shipments.POST("", middleware.Authorize(admins, manufacturer), shipmentHandler.CreateShipment)
				shipments.GET("", shipmentHandler.ListShipments)
				shipments.GET("/:id", shipmentHandler.GetShipment)
				shipments.PUT("/:id/documents", middleware.Authorize(admins, manufacturer), shipmentHandler.UpdateDocuments)
				shipments.GET("/:id/ledger", shipmentHandler.GetLedger)
				shipments.GET("/:id/ledger/:index", shipmentHandler.GetLedgerEntry)
				shipments.GET("/:id/audit", shipmentHandler.AuditShipment)
			}

			anomalies := protected.Group("/anomalies")
			anomalies.Use(middleware.Authorize(admins, manufacturer, receiver))
			{
				anomalies.GET("", shipmentHandler.ListAnomalies)
				anomalies.GET("/:shipmentId", shipmentHandler.ListAnomalies)
			}

			protected.POST("/admin/users", middleware.Authorize(admins), userHandler.CreateUser)

			godMode := protected.Group("/god-mode")
			godMode.Use(middleware.Authorize(admins))
			{
				godMode.POST("/tamper/:id", adminHandler.Tamper)
				godMode.POST("/delay", adminHandler.InjectDelay)
				godMode.POST("/telemetry", adminHandler.OverrideTelemetry)
				godMode.POST("/checkpoint", adminHandler.ManualCheckpoint)
				godMode.GET("/simulation", adminHandler.SimulationStatus)
				godMode.POST("/simulation/pause", adminHandler.PauseSimulation)
				godMode.POST("/simulation/resume", adminHandler.ResumeSimulation)
			}
		}
	}

	return router
}
