package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/referralhub/internal/actorcontext"
	"github.com/smallbiznis/referralhub/internal/audit"
	"github.com/smallbiznis/referralhub/internal/authorization"
	"github.com/smallbiznis/referralhub/internal/banking"
	bankingdomain "github.com/smallbiznis/referralhub/internal/banking/domain"
	"github.com/smallbiznis/referralhub/internal/config"
	"github.com/smallbiznis/referralhub/internal/eligibility"
	eligibilitydomain "github.com/smallbiznis/referralhub/internal/eligibility/domain"
	"github.com/smallbiznis/referralhub/internal/notification"
	notificationdomain "github.com/smallbiznis/referralhub/internal/notification/domain"
	"github.com/smallbiznis/referralhub/internal/observability"
	obsmiddleware "github.com/smallbiznis/referralhub/internal/observability/logger"
	obstracing "github.com/smallbiznis/referralhub/internal/observability/tracing"
	"github.com/smallbiznis/referralhub/internal/payment"
	paymentdomain "github.com/smallbiznis/referralhub/internal/payment/domain"
	"github.com/smallbiznis/referralhub/internal/payout"
	payoutdomain "github.com/smallbiznis/referralhub/internal/payout/domain"
	"github.com/smallbiznis/referralhub/internal/referral"
	referraldomain "github.com/smallbiznis/referralhub/internal/referral/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	audit.Module,
	authorization.Module,
	notification.Module,
	banking.Module,
	referral.Module,
	payment.Module,
	payout.Module,
	eligibility.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, cfg config.Config) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if len(cfg.CORS.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodOptions},
			AllowHeaders:     []string{"Authorization", "Content-Type", obsmiddleware.HeaderRequestID},
			ExposeHeaders:    []string{obsmiddleware.HeaderRequestID},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
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

	if root := strings.TrimSpace(cfg.Blob.Root); root != "" {
		r.Static("/files", root)
	}

	return r
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

type ServerParams struct {
	fx.In

	Engine *gin.Engine
	Cfg    config.Config
	Log    *zap.Logger

	AuthzSvc        authorization.Service
	ReferralSvc     referraldomain.Service
	PaymentSvc      paymentdomain.Service
	PayoutSvc       payoutdomain.Service
	EligibilitySvc  eligibilitydomain.Service
	BankingSvc      bankingdomain.Service
	NotificationSvc notificationdomain.Service
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	log    *zap.Logger

	authzSvc        authorization.Service
	referralSvc     referraldomain.Service
	paymentSvc      paymentdomain.Service
	payoutSvc       payoutdomain.Service
	eligibilitySvc  eligibilitydomain.Service
	bankingSvc      bankingdomain.Service
	notificationSvc notificationdomain.Service
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:          p.Engine,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		authzSvc:        p.AuthzSvc,
		referralSvc:     p.ReferralSvc,
		paymentSvc:      p.PaymentSvc,
		payoutSvc:       p.PayoutSvc,
		eligibilitySvc:  p.EligibilitySvc,
		bankingSvc:      p.BankingSvc,
		notificationSvc: p.NotificationSvc,
	}
}

func (s *Server) RegisterRoutes() {
	s.RegisterPartnerRoutes()
	s.RegisterAdminRoutes()
}

func (s *Server) RegisterPartnerRoutes() {
	partner := s.engine.Group("/partner", s.AuthRequired(), RequireRole(actorcontext.RolePartner))

	partner.POST("/referrals", s.authorize(authorization.ObjectReferral, authorization.ActionReferralCreate), s.CreateReferral)
	partner.GET("/referrals", s.authorize(authorization.ObjectReferral, authorization.ActionReferralView), s.ListReferrals)
	partner.GET("/referrals/:id", s.authorize(authorization.ObjectReferral, authorization.ActionReferralView), s.GetReferral)

	partner.GET("/payouts/eligible", s.authorize(authorization.ObjectPayout, authorization.ActionPayoutView), s.ListEligibleReferrals)
	partner.POST("/payouts", s.authorize(authorization.ObjectPayout, authorization.ActionPayoutRequest), s.RequestPayout)
	partner.GET("/payouts", s.authorize(authorization.ObjectPayout, authorization.ActionPayoutView), s.ListPartnerPayouts)
	partner.GET("/payouts/:id", s.authorize(authorization.ObjectPayout, authorization.ActionPayoutView), s.GetPayout)
	partner.POST("/payouts/:id/cancel", s.authorize(authorization.ObjectPayout, authorization.ActionPayoutCancel), s.CancelPayout)
	partner.GET("/payouts/:id/remittance", s.authorize(authorization.ObjectPayout, authorization.ActionPayoutView), s.DownloadRemittance)

	partner.PUT("/bank-account", s.authorize(authorization.ObjectBankAccount, authorization.ActionBankAccountManage), s.SetBankAccount)
	partner.GET("/bank-account", s.authorize(authorization.ObjectBankAccount, authorization.ActionBankAccountManage), s.GetBankAccount)

	partner.GET("/notifications", s.authorize(authorization.ObjectNotification, authorization.ActionNotificationView), s.ListNotifications)
	partner.POST("/notifications/:id/read", s.authorize(authorization.ObjectNotification, authorization.ActionNotificationView), s.MarkNotificationRead)
}

func (s *Server) RegisterAdminRoutes() {
	admin := s.engine.Group("/admin", s.AuthRequired(), RequireRole(actorcontext.RoleStaff))

	admin.GET("/referrals/lookup", s.authorize(authorization.ObjectReferral, authorization.ActionReferralView), s.LookupReferral)
	admin.GET("/referrals/:id", s.authorize(authorization.ObjectReferral, authorization.ActionReferralView), s.GetReferral)
	admin.POST("/referrals/:id/status", s.authorize(authorization.ObjectReferral, authorization.ActionReferralTransition), s.TransitionReferral)
	admin.POST("/referrals/:id/finalize", s.authorize(authorization.ObjectReferral, authorization.ActionReferralFinalize), s.FinalizeReferral)
	admin.POST("/referrals/:id/lead", s.authorize(authorization.ObjectLead, authorization.ActionLeadCreate), s.CreateLead)

	admin.POST("/payments", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentRecord), s.RecordPayment)
	admin.PATCH("/payments/:id", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentUpdate), s.UpdatePayment)
	admin.POST("/payments/:id/confirm", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentUpdate), s.ConfirmPayment)

	admin.GET("/payouts", s.authorize(authorization.ObjectPayout, authorization.ActionPayoutView), s.ListPayoutsByStatus)
	admin.GET("/payouts/:id", s.authorize(authorization.ObjectPayout, authorization.ActionPayoutView), s.GetPayout)
	admin.POST("/payouts/:id/process", s.authorize(authorization.ObjectPayout, authorization.ActionPayoutProcess), s.ProcessPayout)
	admin.GET("/payouts/:id/remittance", s.authorize(authorization.ObjectPayout, authorization.ActionPayoutView), s.DownloadRemittance)

	admin.GET("/notifications", s.authorize(authorization.ObjectNotification, authorization.ActionNotificationView), s.ListNotifications)
	admin.POST("/notifications/:id/read", s.authorize(authorization.ObjectNotification, authorization.ActionNotificationView), s.MarkNotificationRead)
}
