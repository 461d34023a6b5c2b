// Package server is the HTTP surface of the core. Handlers translate
// requests into domain calls and domain errors into status codes; no
// business rule lives here.
package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/lumenadtech/lumen/internal/audit/domain"
	"github.com/lumenadtech/lumen/internal/auditcontext"
	billingdomain "github.com/lumenadtech/lumen/internal/billing/domain"
	campaigndomain "github.com/lumenadtech/lumen/internal/campaign/domain"
	"github.com/lumenadtech/lumen/internal/config"
	deliverydomain "github.com/lumenadtech/lumen/internal/delivery/domain"
	settlementdomain "github.com/lumenadtech/lumen/internal/settlement/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Cfg           config.Config
	CampaignSvc   campaigndomain.Service
	DeliverySvc   deliverydomain.Service
	BillingSvc    billingdomain.Service
	SettlementSvc settlementdomain.Service
	AuditSvc      auditdomain.Service
}

type Server struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	cfg           config.Config
	engine        *gin.Engine
	campaignSvc   campaigndomain.Service
	deliverySvc   deliverydomain.Service
	billingSvc    billingdomain.Service
	settlementSvc settlementdomain.Service
	auditSvc      auditdomain.Service
}

// NewEngine builds the gin engine with the shared middleware chain.
func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestContext())
	engine.Use(requestLogger(log.Named("http")))
	return engine
}

func NewServer(p Params, engine *gin.Engine) *Server {
	return &Server{
		db:            p.DB,
		log:           p.Log.Named("server"),
		genID:         p.GenID,
		cfg:           p.Cfg,
		engine:        engine,
		campaignSvc:   p.CampaignSvc,
		deliverySvc:   p.DeliverySvc,
		billingSvc:    p.BillingSvc,
		settlementSvc: p.SettlementSvc,
		auditSvc:      p.AuditSvc,
	}
}

// RegisterAPIRoutes mounts every handler under /api.
func (s *Server) RegisterAPIRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api")

	api.POST("/campaigns", s.CreateCampaign)
	api.GET("/campaigns/:id", s.GetCampaign)
	api.POST("/campaigns/:id/transition", s.TransitionCampaign)

	api.POST("/delivery/facts", s.IngestFact)
	api.GET("/campaigns/:id/metrics", s.AggregateCampaign)
	api.GET("/devices/:id/metrics", s.AggregateDevice)

	api.POST("/invoices", s.CreateInvoice)
	api.GET("/invoices/:id", s.GetInvoice)
	api.POST("/invoices/:id/payments", s.ApplyPayment)
	api.GET("/advertisers/:id/summary", s.AccountSummary)

	api.POST("/partners/:id/earnings", s.ComputeEarnings)
	api.GET("/partners/:id/earnings", s.ListEarnings)
	api.GET("/earnings/:id", s.GetEarning)
	api.POST("/earnings/:id/paid", s.MarkEarningPaid)

	api.GET("/audit", s.ListAuditEntries)
}

// requestContext copies request metadata into the context so audit
// entries record who did what from where.
func requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if requestID := c.GetHeader("X-Request-Id"); requestID != "" {
			ctx = auditcontext.WithRequestID(ctx, requestID)
		}
		if actor := c.GetHeader("X-Actor-Id"); actor != "" {
			ctx = auditcontext.WithActor(ctx, actor)
		}
		ctx = auditcontext.WithIPAddress(ctx, c.ClientIP())
		ctx = auditcontext.WithUserAgent(ctx, c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
		)
	}
}

// RunHTTP starts the HTTP listener under the fx lifecycle.
func RunHTTP(lc fx.Lifecycle, engine *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				log.Info("http listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

func parsePathID(raw string) (snowflake.ID, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || value == 0 {
		return 0, ErrNotFound
	}
	return snowflake.ID(value), nil
}

// Module wires the HTTP server into the fx graph.
var Module = fx.Module("server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterAPIRoutes() }),
	fx.Invoke(RunHTTP),
)
