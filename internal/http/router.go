package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/clipreview-backend/internal/http/handlers"
	httpMW "github.com/yungbote/clipreview-backend/internal/http/middleware"
	"github.com/yungbote/clipreview-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log             *logger.Logger
	ServiceName     string
	CORSOrigins     []string
	MaxRequestBytes int64

	HealthHandler *httpH.HealthHandler
	ReviewHandler *httpH.ReviewHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log, "/healthcheck", "/readyz"))
	r.Use(httpMW.CORS(cfg.CORSOrigins))
	r.Use(httpMW.BodyLimit(cfg.MaxRequestBytes))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	api := r.Group("/api")
	{
		// Reviews
		if cfg.ReviewHandler != nil {
			api.POST("/reviews", cfg.ReviewHandler.Create)
			api.POST("/reviews/sync", cfg.ReviewHandler.CreateSync)
			api.GET("/reviews", cfg.ReviewHandler.List)
			api.GET("/reviews/:id", cfg.ReviewHandler.Get)
			api.GET("/reviews/:id/events", cfg.ReviewHandler.Events)
			api.POST("/reviews/:id/cancel", cfg.ReviewHandler.Cancel)
		}
	}

	return r
}
