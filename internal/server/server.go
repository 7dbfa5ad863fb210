package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/creditmeter/internal/authorization"
	"github.com/smallbiznis/creditmeter/internal/clock"
	"github.com/smallbiznis/creditmeter/internal/config"
	eventdomain "github.com/smallbiznis/creditmeter/internal/eventdef/domain"
	"github.com/smallbiznis/creditmeter/internal/observability"
	obslogger "github.com/smallbiznis/creditmeter/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/creditmeter/internal/observability/metrics"
	obstracing "github.com/smallbiznis/creditmeter/internal/observability/tracing"
	orgdomain "github.com/smallbiznis/creditmeter/internal/organization/domain"
	plandomain "github.com/smallbiznis/creditmeter/internal/plandef/domain"
	"github.com/smallbiznis/creditmeter/internal/ratelimit"
	usagedomain "github.com/smallbiznis/creditmeter/internal/usage/domain"
	"github.com/smallbiznis/creditmeter/internal/usage/liveevents"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if obsCfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
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
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	clock      clock.Clock
	authzSvc   authorization.Service
	meter      usagedomain.Meter
	aggregator usagedomain.Aggregator
	events     eventdomain.Service
	plans      plandomain.Service
	orgs       orgdomain.Service
	liveEvents *liveevents.Hub
	limiter    *ratelimit.TrackLimiter
	obsMetrics *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Clock      clock.Clock
	AuthzSvc   authorization.Service
	Meter      usagedomain.Meter
	Aggregator usagedomain.Aggregator
	Events     eventdomain.Service
	Plans      plandomain.Service
	Orgs       orgdomain.Service
	LiveEvents *liveevents.Hub        `optional:"true"`
	Limiter    *ratelimit.TrackLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics     `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		clock:      p.Clock,
		authzSvc:   p.AuthzSvc,
		meter:      p.Meter,
		aggregator: p.Aggregator,
		events:     p.Events,
		plans:      p.Plans,
		orgs:       p.Orgs,
		liveEvents: p.LiveEvents,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
	}

	svc.registerUsageRoutes()
	svc.registerCatalogueRoutes()
	svc.registerOrganizationRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerUsageRoutes() {
	usage := s.engine.Group("/v1/usage", s.Identity())

	usage.POST("/track", s.authorizeOrgAction(authorization.ObjectUsage, authorization.ActionUsageTrack), s.TrackRateLimit(), s.TrackUsage)
	usage.POST("/check", s.authorizeOrgAction(authorization.ObjectUsage, authorization.ActionUsageCheck), s.CheckUsage)

	usage.GET("/breakdown", s.authorizeOrgAction(authorization.ObjectUsage, authorization.ActionUsageView), s.GetUsageBreakdown)
	usage.GET("/trends", s.authorizeOrgAction(authorization.ObjectUsage, authorization.ActionUsageView), s.GetUsageTrends)
	usage.GET("/events", s.authorizeOrgAction(authorization.ObjectUsage, authorization.ActionUsageView), s.ListUsageEvents)
	usage.GET("/live", s.authorizeOrgAction(authorization.ObjectUsage, authorization.ActionUsageView), s.StreamUsageLiveEvents)

	usage.GET("/overview", s.authorizeOrgAction(authorization.ObjectUsage, authorization.ActionUsageManage), s.GetUsageOverview)
	usage.GET("/statement.pdf", s.authorizeOrgAction(authorization.ObjectUsage, authorization.ActionUsageManage), s.DownloadUsageStatement)
}

// Catalogue reads are public: they describe prices, not tenant data.
func (s *Server) registerCatalogueRoutes() {
	catalogue := s.engine.Group("/v1/catalogue")

	catalogue.GET("/events", s.ListEventCatalogue)
	catalogue.GET("/plans", s.ListPlanCatalogue)
}

func (s *Server) registerOrganizationRoutes() {
	org := s.engine.Group("/v1/organization", s.Identity())

	org.GET("", s.authorizeOrgAction(authorization.ObjectUsage, authorization.ActionUsageView), s.GetOrganization)
	org.PUT("/plan", s.authorizeOrgAction(authorization.ObjectOrganization, authorization.ActionOrganizationManage), s.ChangeOrganizationPlan)
	org.POST("/members", s.authorizeOrgAction(authorization.ObjectOrganization, authorization.ActionOrganizationManage), s.AddOrganizationMember)
}

// Definitions are shared by every organization, so these routes are checked
// in the operator domain rather than the caller's tenant.
func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin/config", s.Identity())

	view := s.authorizeOperatorAction(authorization.ObjectConfig, authorization.ActionConfigView)
	manage := s.authorizeOperatorAction(authorization.ObjectConfig, authorization.ActionConfigManage)

	admin.GET("/events", view, s.AdminListEvents)
	admin.PUT("/events/:eventType", manage, s.AdminUpdateEvent)
	admin.DELETE("/events/:eventType", manage, s.AdminDeleteEvent)

	admin.GET("/plans", view, s.AdminListPlans)
	admin.PUT("/plans/:planName", manage, s.AdminUpdatePlan)
	admin.DELETE("/plans/:planName", manage, s.AdminDeletePlan)

	admin.GET("/cache-info", view, s.AdminCacheInfo)
	admin.POST("/refresh", manage, s.AdminRefresh)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
