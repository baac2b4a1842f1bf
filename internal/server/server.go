package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/bizbooks/internal/config"
	"github.com/smallbiznis/bizbooks/internal/observability"
	obslogger "github.com/smallbiznis/bizbooks/internal/observability/logger"
	obstracing "github.com/smallbiznis/bizbooks/internal/observability/tracing"
	"github.com/smallbiznis/bizbooks/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewServer),
	fx.Provide(NewEngine),
	fx.Invoke(run),
)

type Params struct {
	fx.In

	Config    config.Config
	ObsConfig observability.Config
	DB        *gorm.DB
	Log       *zap.Logger
	Telemetry *telemetry.Metrics `optional:"true"`
	Redis     *redis.Client      `optional:"true"`
}

// Server serves the operational endpoints: liveness, readiness and the
// Prometheus scrape target.
type Server struct {
	cfg       config.Config
	debug     bool
	db        *gorm.DB
	log       *zap.Logger
	telemetry *telemetry.Metrics
	redis     *redis.Client
}

func NewServer(p Params) *Server {
	return &Server{
		cfg:       p.Config,
		debug:     p.ObsConfig.Debug(),
		db:        p.DB,
		log:       p.Log.Named("http"),
		telemetry: p.Telemetry,
		redis:     p.Redis,
	}
}

func NewEngine(s *Server) *gin.Engine {
	if !s.debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(s.log, obslogger.MiddlewareConfig{Debug: s.debug}))
	r.Use(obstracing.GinMiddleware())
	r.Use(MetricsMiddleware(s.telemetry))

	s.RegisterRoutes(r)
	return r
}

func (s *Server) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health", s.Health)
	r.GET("/ready", s.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			log.Info("ops server listening", zap.String("addr", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("ops server stopped", zap.Error(err))
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
