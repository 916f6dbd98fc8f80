package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/baharkarakas/welfare-backend/internal/api/handlers"
	"github.com/baharkarakas/welfare-backend/internal/api/httpx"
	"github.com/baharkarakas/welfare-backend/internal/auth"
	"github.com/baharkarakas/welfare-backend/internal/config"
	"github.com/baharkarakas/welfare-backend/internal/metrics"
	"github.com/baharkarakas/welfare-backend/internal/middleware"
	"github.com/baharkarakas/welfare-backend/internal/models"
	"github.com/baharkarakas/welfare-backend/internal/services"
)

type RouterDeps struct {
	Cfg          config.Config
	Log          *zap.Logger
	TM           *auth.TokenManager
	Ping         func(ctx context.Context) error
	Users        *services.UserService
	Campaigns    *services.CampaignService
	Collection   *services.CollectionService
	Disbursement *services.DisbursementService
	Sweeper      *services.Sweeper
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover(d.Log), middleware.HTTPMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	// health & metrics
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if d.Ping != nil {
			if err := d.Ping(ctx); err != nil {
				httpx.WriteError(w, http.StatusServiceUnavailable, "unavailable", "database unreachable", nil)
				return
			}
		}
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	authH := handlers.NewAuthHandler(d.Users)
	memberH := handlers.NewMemberHandler(d.Collection, d.Campaigns)
	adminH := handlers.NewAdminHandler(d.Campaigns, d.Disbursement, d.Sweeper)
	callbackH := handlers.NewCallbackHandler(d.Collection, d.Disbursement, d.Log)
	authMW := middleware.NewAuthMiddleware(d.TM, d.Cfg.Env)

	// gateway callbacks stay outside the rate limiter
	r.Post("/api/mpesa-callback", callbackH.STK)
	r.Post("/api/mpesa/b2c/result", callbackH.B2CResult)
	r.Post("/api/mpesa/b2c/timeout", callbackH.B2CTimeout)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(d.Cfg.RateRPS))

		r.Post("/auth/login", authH.Login)
		r.Post("/auth/refresh", authH.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(authMW.Auth)

			r.Route("/member", func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleMember, models.RoleAdmin))
				r.Post("/mpesa-payment", memberH.Pay)
				r.Get("/contributions/{transactionId}/status", memberH.ContributionStatus)
				r.Post("/campaigns/apply", memberH.ApplyCampaign)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(models.RoleAdmin))
				r.Post("/campaigns", adminH.CreateCampaign)
				r.Get("/campaigns/{id}", adminH.GetCampaign)
				r.Post("/campaigns/{id}/approve", adminH.Approve)
				r.Post("/campaigns/{id}/reject", adminH.Reject)
				r.Post("/campaigns/{id}/end", adminH.End)
				r.Post("/campaigns/{id}/disburse", adminH.Disburse)
				r.Post("/campaigns/{id}/reopen-disbursement", adminH.ReopenDisbursement)
				r.Post("/contributions/reconcile", adminH.Reconcile)
			})
		})
	})

	return r
}
