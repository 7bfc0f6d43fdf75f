package router

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/psds-microservice/helpy/paths"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/psds-microservice/support-ticket-service/api"
	"github.com/psds-microservice/support-ticket-service/internal/handler"
	"github.com/psds-microservice/support-ticket-service/internal/middleware"
)

const PathMetrics = "/metrics"

type Deps struct {
	Tickets  *handler.TicketHandler
	Classify *handler.ClassifyHandler
	Health   *handler.HealthHandler

	// Redis включает Idempotency-Key для POST /api/tickets; nil выключает.
	Redis          *redis.Client
	IdempotencyTTL time.Duration
}

func New(d Deps) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(), middleware.Metrics())

	r.GET(paths.PathHealth, d.Health.Health)
	r.GET(paths.PathReady, d.Health.Ready)
	r.GET(PathMetrics, gin.WrapH(promhttp.Handler()))
	r.GET(paths.PathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, paths.PathSwagger+"/") })
	r.GET(paths.PathSwagger+"/*any", func(c *gin.Context) {
		file := strings.TrimPrefix(c.Param("any"), "/")
		if file == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if file == "" {
			c.Request.URL.Path = paths.PathSwagger + "/index.html"
			c.Request.RequestURI = paths.PathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL(paths.PathSwagger+"/openapi.json"))(c)
	})

	// /stats и /classify: статические сегменты, gin выбирает их раньше /:id
	tickets := r.Group("/api/tickets")
	{
		tickets.GET("", d.Tickets.List)
		tickets.POST("", middleware.Idempotency(d.Redis, d.IdempotencyTTL), d.Tickets.Create)
		tickets.GET("/stats", d.Tickets.Stats)
		tickets.POST("/classify", d.Classify.Classify)
		tickets.GET("/:id", d.Tickets.Get)
		tickets.PATCH("/:id", d.Tickets.Update)
	}

	return r
}
