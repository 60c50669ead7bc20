package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/haulboard/haulboard-backend/api/controllers"
	"github.com/haulboard/haulboard-backend/api/middleware"
	"github.com/haulboard/haulboard-backend/internal/contracts"
	"github.com/haulboard/haulboard-backend/internal/jobs"
	"github.com/haulboard/haulboard-backend/internal/ledger"
	"github.com/haulboard/haulboard-backend/internal/orchestrator"
	"github.com/haulboard/haulboard-backend/internal/templates"
	"github.com/haulboard/haulboard-backend/pkg/config"
	"github.com/haulboard/haulboard-backend/pkg/db"
	"github.com/haulboard/haulboard-backend/pkg/logger"
	"github.com/haulboard/haulboard-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	templateService templates.Service,
	contractService contracts.Service,
	ledgerService ledger.Service,
	jobService jobs.Service,
	engine orchestrator.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	rateLimitPolicy := middleware.RateLimitPolicy{
		Window: cfg.RateLimit.Window,
		Limit:  int(cfg.RateLimit.Limit),
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(redisClient, logg))

		// Job ingestion is machine-to-machine: the telemetry pipeline names
		// the rider in the payload and deduplicates by job ID, so it skips
		// the rider header and throttles per source IP.
		r.With(middleware.RateLimit(rateLimitPolicy, redisClient, logg)).
			Post("/jobs", controllers.JobIngest(engine, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRider(logg))
			r.Use(middleware.RateLimit(rateLimitPolicy, redisClient, logg))

			r.Get("/templates", controllers.TemplateCatalog(templateService, logg))

			r.Route("/contracts", func(r chi.Router) {
				r.Post("/purchase", controllers.ContractPurchase(engine, logg))
				r.Get("/", controllers.ContractList(contractService, logg))
				r.Get("/{contractID}", controllers.ContractDetail(contractService, logg))
			})

			r.Route("/wallet", func(r chi.Router) {
				r.Get("/", controllers.WalletBalance(ledgerService, logg))
				r.Get("/transactions", controllers.WalletTransactions(ledgerService, logg))
			})

			r.Get("/jobs", controllers.JobList(jobService, logg))
		})
	})

	// The gateway authenticates staff before traffic reaches this surface.
	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(rateLimitPolicy, redisClient, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", controllers.AdminTemplateList(templateService, logg))
			r.Post("/", controllers.AdminTemplateCreate(templateService, logg))
			r.Get("/{templateID}", controllers.AdminTemplateGet(templateService, logg))
			r.Put("/{templateID}", controllers.AdminTemplateUpdate(templateService, logg))
			r.Delete("/{templateID}", controllers.AdminTemplateDelete(templateService, logg))
		})

		r.Post("/contracts/{contractID}/cancel", controllers.AdminContractCancel(contractService, logg))

		r.Route("/bank", func(r chi.Router) {
			r.Get("/", controllers.AdminBankBalance(ledgerService, logg))
			r.Post("/bonus", controllers.AdminBankBonus(ledgerService, logg))
			r.Post("/deduct", controllers.AdminBankDeduct(ledgerService, logg))
		})
	})

	return r
}
