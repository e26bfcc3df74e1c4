package persona

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/epiphany/backend/internal/handler/apierr"
	model "github.com/zhouzirui/epiphany/backend/internal/model/persona"
	"github.com/zhouzirui/epiphany/backend/internal/service/discovery"
	"github.com/zhouzirui/epiphany/backend/internal/service/interview"
	"github.com/zhouzirui/epiphany/backend/pkg/utils"
)

// Handler persona服务的HTTP处理器
type Handler struct {
	svc *discovery.Service
}

// New 创建persona处理器
func New(svc *discovery.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes 注册persona相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/personas/{id}", h.handleGetPersona)
	r.Put("/personas/{id}/perspective", h.handleSetPerspective)
	r.Post("/personas/{id}/interview", h.handleStartInterview)
	r.Delete("/personas/{id}/interview", h.handleCancelInterview)
	r.Post("/personas/{id}/summary", h.handleSummarize)
}

// View is the detail shape of a persona, transcript included.
type View struct {
	Persona model.Persona `json:"persona"`
	State   string        `json:"state"`
	Busy    bool          `json:"busy"`
}

// NewView renders p for detail views.
func NewView(svc *discovery.Service, p *interview.Persona) View {
	return View{
		Persona: p.Snapshot(),
		State:   string(p.State()),
		Busy:    svc.Busy(p.ID()),
	}
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*interview.Persona, bool) {
	p, err := h.svc.LoadPersona(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		apierr.Respond(w, r, err)
		return nil, false
	}
	return p, true
}

func (h *Handler) handleGetPersona(w http.ResponseWriter, r *http.Request) {
	p, ok := h.load(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, NewView(h.svc, p))
}

func (h *Handler) handleSetPerspective(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Perspective string `json:"perspective"`
	}
	if err := utils.DecodeJSON(r, &payload, false); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.svc.SetPerspective(r.Context(), id, payload.Perspective); err != nil {
		apierr.Respond(w, r, err)
		return
	}
	p, ok := h.load(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, NewView(h.svc, p))
}

func (h *Handler) handleStartInterview(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Perspective *string `json:"perspective"`
	}
	if err := utils.DecodeJSON(r, &payload, true); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.svc.StartInterview(r.Context(), id, payload.Perspective); err != nil {
		apierr.Respond(w, r, err)
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, map[string]string{
		"status": "started",
		"stream": "/api/personas/" + id + "/stream",
	})
}

func (h *Handler) handleCancelInterview(w http.ResponseWriter, r *http.Request) {
	canceled := h.svc.CancelInterview(chi.URLParam(r, "id"))
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"canceled": canceled})
}

func (h *Handler) handleSummarize(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.SummarizePersona(r.Context(), id); err != nil {
		apierr.Respond(w, r, err)
		return
	}
	p, ok := h.load(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, NewView(h.svc, p))
}
