package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	discoveryhandler "github.com/zhouzirui/epiphany/backend/internal/handler/discovery"
	"github.com/zhouzirui/epiphany/backend/internal/handler/events"
	"github.com/zhouzirui/epiphany/backend/internal/handler/persona"
	"github.com/zhouzirui/epiphany/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/epiphany/backend/internal/middleware"
	"github.com/zhouzirui/epiphany/backend/internal/service/discovery"
	"github.com/zhouzirui/epiphany/backend/pkg/utils"
)

// NewRouter wires HTTP routes to the discovery service.
func NewRouter(svc *discovery.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		discoveryhandler.New(svc).RegisterRoutes(api)
		persona.New(svc).RegisterRoutes(api)
		stream.New(svc).RegisterRoutes(api)
		events.New(svc).RegisterRoutes(api)
	})

	return r
}
