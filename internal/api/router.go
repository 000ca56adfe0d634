package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/timmy/rollcall/internal/api/handler"
	"github.com/timmy/rollcall/internal/api/middleware"
	"github.com/timmy/rollcall/internal/config"
	"github.com/timmy/rollcall/internal/logger"
	"github.com/timmy/rollcall/internal/service"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "rollcall"

// Services are the application services exposed over HTTP.
type Services struct {
	Ingest  *service.IngestService
	Reports *service.ReportService
}

// SetupRouter configures the Gin router with all routes.
// Every route is served with and without a trailing slash.
func SetupRouter(svc Services, cfg *config.ServerConfig, gatherer prometheus.Gatherer, log *logger.Logger) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cfg.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler(ServiceName, cfg.Version)
	ingestHandler := handler.NewIngestHandler(svc.Ingest)
	reportHandler := handler.NewReportHandler(svc.Reports)

	handle(r, "GET", "/api/health", healthHandler.Health)

	data := r.Group("/api/data")
	{
		handle(data, "POST", "/ingest", ingestHandler.Ingest)
		handle(data, "GET", "/status/:task_id", ingestHandler.Status)

		handle(data, "GET", "/report/:task_id", reportHandler.Report)
		handle(data, "POST", "/report/:task_id/export", reportHandler.Export)
		handle(data, "GET", "/report/:task_id/exports/:name", reportHandler.Download)
	}

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return r
}

func handle(r gin.IRoutes, method, path string, h gin.HandlerFunc) {
	r.Handle(method, path+"/", h)
	r.Handle(method, path, h)
}
