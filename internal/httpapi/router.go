package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"condoledger/internal/api"
	"condoledger/internal/arrears"
	"condoledger/internal/auth"
	"condoledger/internal/building"
	"condoledger/internal/credit"
	"condoledger/internal/payment"
	"condoledger/internal/settlement"
	"condoledger/internal/unit"
	"condoledger/pkg/config"
)

type Dependencies struct {
	Cfg config.Config
	DB  *pgxpool.Pool
}

func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	buildingRepo := building.NewRepository(deps.DB)
	unitRepo := unit.NewRepository(deps.DB)
	creditRepo := credit.NewRepository(deps.DB)
	settlementRepo := settlement.NewRepository(deps.DB)
	paymentRepo := payment.NewRepository(deps.DB)

	authHandlers := auth.Handlers{Cfg: deps.Cfg}
	buildingHandlers := building.Handlers{Repo: buildingRepo}
	unitHandlers := unit.Handlers{DB: deps.DB, Repo: unitRepo, Buildings: buildingRepo, Credits: creditRepo}
	settlementHandlers := settlement.Handlers{DB: deps.DB, Repo: settlementRepo, Buildings: buildingRepo}
	paymentHandlers := payment.Handlers{DB: deps.DB, Repo: paymentRepo}
	arrearsHandlers := arrears.Handlers{DB: deps.DB}

	r.Route("/v1", func(r chi.Router) {
		r.Use(api.CORSMiddleware(api.CORSOptions{
			AllowedOrigins: deps.Cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
			MaxAgeSeconds:  600,
		}))

		r.Post("/auth/login", authHandlers.Login)

		r.Group(func(r chi.Router) {
			r.Use(api.AdminAuth(deps.Cfg))

			r.Post("/buildings", buildingHandlers.Create)
			r.Get("/buildings", buildingHandlers.List)
			r.Get("/buildings/{id}/units", unitHandlers.ListByBuilding)
			r.Get("/buildings/{id}/settlements", settlementHandlers.ListByBuilding)
			r.Post("/buildings/{id}/settlements", settlementHandlers.Create)
			r.Get("/buildings/{id}/debtors", arrearsHandlers.Debtors)
			r.Post("/buildings/{id}/debtors/pay", arrearsHandlers.Pay)

			r.Post("/units", unitHandlers.Create)
			r.Get("/units/{id}/arrears", unitHandlers.Arrears)
			r.Post("/units/{id}/credit/apply", unitHandlers.ApplyCredit)
			r.Get("/units/{id}/credit-movements", unitHandlers.CreditMovements)
			r.Get("/units/{id}/account-history", unitHandlers.AccountHistory)

			r.Delete("/settlements/{id}", settlementHandlers.Delete)

			r.Post("/payments", paymentHandlers.Create)
			r.Patch("/payments/{id}", paymentHandlers.Cancel)
			r.Get("/payments/history", paymentHandlers.History)
		})
	})

	return r
}
