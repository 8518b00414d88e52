// Package routes assembles the HTTP surface. The same router backs the serve
// command and the integration suites.
package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/usta-go-api/config"
	"github.com/kendall-kelly/usta-go-api/controllers"
	"github.com/kendall-kelly/usta-go-api/metrics"
	"github.com/kendall-kelly/usta-go-api/middleware"
	"github.com/kendall-kelly/usta-go-api/models"
	"github.com/kendall-kelly/usta-go-api/realtime"
	"github.com/kendall-kelly/usta-go-api/services"
)

// Dependencies are the long-lived components the handlers reach
type Dependencies struct {
	Config   *config.Config
	Services *services.Services
	Hub      *realtime.Hub      // nil disables /api/v1/ws
	Metrics  *metrics.Collector // nil disables /metrics
}

// NewRouter builds the gin engine and installs deps.Services as the
// process-wide bundle used by the controllers
func NewRouter(deps Dependencies) *gin.Engine {
	controllers.RegisterValidators()
	services.Init(deps.Services)

	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestLogger(),
		middleware.RequestMetrics(deps.Metrics),
		cors.New(corsConfig(deps.Config.CORSOrigins)),
	)

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	authenticate := middleware.Authenticate(deps.Config, deps.Services.Tokens)
	principal := middleware.LoadPrincipal(deps.Services.Users)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", controllers.HealthCheck)
		v1.GET("/database/status", controllers.DatabaseStatus)
		v1.GET("/uploads/:filename", controllers.GetUploadedImage)

		v1.POST("/auth/register", controllers.Register)
		v1.POST("/auth/login", controllers.Login)

		// profile creation only needs a valid token
		v1.POST("/users", authenticate, controllers.CreateUser)

		if deps.Hub != nil {
			v1.GET("/ws", middleware.TokenFromQuery("access_token"), authenticate, principal, controllers.StreamEvents(deps.Hub))
		}
	}

	api := v1.Group("", authenticate, principal)
	{
		api.GET("/users/me", controllers.GetMyProfile)
		api.PUT("/users/me", controllers.UpdateMyProfile)
		api.GET("/users/:id", controllers.GetUser)
		api.GET("/users/:id/reviews", controllers.ListProfessionalReviews)

		api.POST("/jobs", controllers.CreateJob)
		api.GET("/jobs", controllers.ListJobs)
		api.GET("/jobs/:id", controllers.GetJob)
		api.DELETE("/jobs/:id", controllers.DeleteJob)
		api.POST("/jobs/:id/accept", controllers.AcceptJob)
		api.POST("/jobs/:id/start", controllers.StartJob)
		api.POST("/jobs/:id/complete", controllers.CompleteJob)
		api.POST("/jobs/:id/cancel", controllers.CancelJob)
		api.POST("/jobs/:id/rate", controllers.RateJob)
		api.POST("/jobs/:id/photos", controllers.UploadJobPhoto)
		api.GET("/jobs/:id/offers", controllers.ListJobOffers)
		api.POST("/jobs/:id/offers", controllers.CreateOffer)
		api.GET("/jobs/:id/reviews", controllers.ListJobReviews)
		api.GET("/jobs/:id/messages", controllers.ListMessages)
		api.POST("/jobs/:id/messages", controllers.SendMessage)

		api.GET("/offers/mine", controllers.ListMyOffers)
		api.GET("/offers/:id", controllers.GetOffer)
		api.POST("/offers/:id/accept", controllers.AcceptOffer)
		api.POST("/offers/:id/reject", controllers.RejectOffer)
		api.POST("/offers/:id/withdraw", controllers.WithdrawOffer)

		api.GET("/wallet", controllers.GetWallet)
		api.GET("/wallet/earnings", controllers.GetEarnings)
		api.GET("/wallet/transactions", controllers.ListTransactions)
		api.POST("/wallet/withdrawals", controllers.RequestWithdrawal)

		api.POST("/complaints", controllers.CreateComplaint)
		api.GET("/complaints", controllers.ListComplaints)
		api.GET("/complaints/:id", controllers.GetComplaint)
	}

	admin := api.Group("/admin", middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/users", controllers.ListUsers)
		admin.POST("/users/:id/ban", controllers.BanUser)
		admin.POST("/users/:id/unban", controllers.UnbanUser)
		admin.DELETE("/users/:id", controllers.DeleteUser)

		admin.GET("/withdrawals", controllers.ListWithdrawals)
		admin.POST("/withdrawals/:id/approve", controllers.ApproveWithdrawal)
		admin.POST("/withdrawals/:id/reject", controllers.RejectWithdrawal)

		admin.POST("/complaints/:id/resolve", controllers.ResolveComplaint)
		admin.POST("/complaints/:id/reject", controllers.RejectComplaint)
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	for _, origin := range origins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}
