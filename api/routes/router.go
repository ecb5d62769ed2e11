package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/GoldenRal/modSTR/api/controllers"
	"github.com/GoldenRal/modSTR/api/middleware"
	"github.com/GoldenRal/modSTR/internal/quota"
	"github.com/GoldenRal/modSTR/pkg/config"
	"github.com/GoldenRal/modSTR/pkg/logger"
)

// projectStore is everything the project-facing controllers need from the
// project store. *projects.Store satisfies it.
type projectStore interface {
	controllers.ProjectStore
	controllers.DocumentStore
	controllers.InstructionStore
}

// rateLimitStore is the counter surface backing the request throttle.
// *redis.Client satisfies it; nil disables throttling.
type rateLimitStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	CounterKey(name string) string
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	store projectStore,
	uploader controllers.DocumentUploader,
	quotaService quota.Service,
	deriver controllers.MetadataDeriver,
	reportService controllers.ReportService,
	limiter rateLimitStore,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Get("/healthz", controllers.Healthz(cfg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RateLimit(cfg.RateLimit, limiter, logg))

		r.Get("/plans", controllers.ListPlans(quotaService, logg))
		r.Get("/usage", controllers.GetUsage(quotaService, logg))

		r.Route("/projects", func(r chi.Router) {
			r.Post("/", controllers.CreateProject(store, logg))
			r.Get("/", controllers.ListProjects(store, logg))

			r.Route("/{projectId}", func(r chi.Router) {
				r.Get("/", controllers.GetProject(store, logg))
				r.Delete("/", controllers.DeleteProject(store, logg))

				r.Route("/documents", func(r chi.Router) {
					r.Post("/", controllers.UploadDocument(store, uploader, quotaService, logg))
					r.Route("/{documentId}", func(r chi.Router) {
						r.Delete("/", controllers.DeleteDocument(store, logg))
						r.Post("/types", controllers.AssignDocumentType(store, logg))
					})
				})

				r.Post("/derive", controllers.DeriveMetadata(deriver, logg))
				r.Route("/report", func(r chi.Router) {
					r.Post("/", controllers.GenerateReport(reportService, store, logg))
					r.Post("/reformat", controllers.ReformatReport(reportService, store, logg))
				})
			})
		})
	})

	return r
}
