package discovery

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/epiphany/backend/internal/handler/apierr"
	sessionmodel "github.com/zhouzirui/epiphany/backend/internal/model/discovery"
	model "github.com/zhouzirui/epiphany/backend/internal/model/persona"
	"github.com/zhouzirui/epiphany/backend/internal/service/discovery"
	"github.com/zhouzirui/epiphany/backend/internal/service/interview"
	"github.com/zhouzirui/epiphany/backend/pkg/utils"
)

// Handler 发现会话的HTTP处理器
type Handler struct {
	svc *discovery.Service
}

// New 创建发现会话处理器
func New(svc *discovery.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册发现会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/discovery", func(r chi.Router) {
		r.Get("/", h.handleGetSession)
		r.Post("/personas", h.handleGenerate)
		r.Delete("/personas", h.handleReset)
		r.Post("/summary", h.handleSummary)
		r.Post("/followups", h.handleFollowUps)
	})
}

// PersonaCard is the list-view shape of a persona.
type PersonaCard struct {
	model.Card
	State string `json:"state"`
	Busy  bool   `json:"busy"`
}

type sessionResponse struct {
	Session  sessionmodel.Session `json:"session"`
	HasKey   bool                 `json:"hasApiKey"`
	Personas []PersonaCard        `json:"personas"`
}

// Cards renders personas for list views.
func Cards(svc *discovery.Service, personas []*interview.Persona) []PersonaCard {
	out := make([]PersonaCard, 0, len(personas))
	for _, p := range personas {
		out = append(out, PersonaCard{
			Card:  p.Card(),
			State: string(p.State()),
			Busy:  svc.Busy(p.ID()),
		})
	}
	return out
}

func (h *Handler) sessionView() sessionResponse {
	return sessionResponse{
		Session:  h.svc.Session(),
		HasKey:   h.svc.HasAPIKey(),
		Personas: Cards(h.svc, h.svc.Personas()),
	}
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Rehydrate(r.Context(), discovery.HydrateHome); err != nil {
		apierr.Respond(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.sessionView())
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Product  string `json:"product"`
		Customer string `json:"customer"`
		APIKey   string `json:"apiKey"`
	}
	if err := utils.DecodeJSON(r, &payload, false); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.svc.GenerateCustomers(r.Context(), payload.Product, payload.Customer, payload.APIKey)
	if err != nil {
		apierr.Respond(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, map[string]any{
		"created":  Cards(h.svc, created),
		"personas": Cards(h.svc, h.svc.Personas()),
	})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ResetPersonas(r.Context()); err != nil {
		apierr.Respond(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.sessionView())
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Notes string `json:"notes"`
	}
	if err := utils.DecodeJSON(r, &payload, true); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := h.svc.GenerateInterviewSummary(r.Context(), payload.Notes); err != nil {
		apierr.Respond(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.sessionView())
}

func (h *Handler) handleFollowUps(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.AskFollowUps(r.Context()); err != nil {
		apierr.Respond(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.sessionView())
}
