package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/quotaledger/internal/config"
	"github.com/smallbiznis/quotaledger/internal/observability"
	obsmiddleware "github.com/smallbiznis/quotaledger/internal/observability/logger"
	obstracing "github.com/smallbiznis/quotaledger/internal/observability/tracing"
	quotadomain "github.com/smallbiznis/quotaledger/internal/quota/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type ServerParams struct {
	fx.In

	Gin      *gin.Engine
	Cfg      config.Config
	QuotaSvc quotadomain.Service
}

type Server struct {
	engine   *gin.Engine
	cfg      config.Config
	quotaSvc quotadomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:   p.Gin,
		cfg:      p.Cfg,
		quotaSvc: p.QuotaSvc,
	}

	svc.RegisterAPIRoutes()
	return svc
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api")

	projects := api.Group("/projects/:project_id")
	{
		projects.GET("/quotas", s.ListQuotas)
		projects.GET("/quotas/:kind", s.GetQuota)
		projects.PUT("/quotas/:kind", s.SetQuota)
		projects.GET("/quotas/:kind/history", s.QuotaHistory)

		projects.GET("/usage/:kind", s.GetUsage)
		projects.POST("/admissions", s.CheckAdmission)

		projects.GET("/expiration", s.GetExpiration)
		projects.PUT("/expiration", s.SetExpiration)
	}

	api.GET("/expirations", s.ListExpirations)
}
