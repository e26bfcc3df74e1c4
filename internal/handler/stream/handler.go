package stream

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/epiphany/backend/internal/handler/apierr"
	personahandler "github.com/zhouzirui/epiphany/backend/internal/handler/persona"
	"github.com/zhouzirui/epiphany/backend/internal/service/discovery"
	"github.com/zhouzirui/epiphany/backend/internal/store"
	"github.com/zhouzirui/epiphany/backend/pkg/utils"
)

const (
	defaultPollInterval = time.Second
	heartbeatInterval   = 15 * time.Second
)

// Handler streams interview progress via Server-Sent Events.
type Handler struct {
	svc *discovery.Service
	// PollInterval is how often the stream checks whether the interview ended.
	PollInterval time.Duration
}

// New creates a new stream handler
func New(svc *discovery.Service) *Handler {
	return &Handler{svc: svc, PollInterval: defaultPollInterval}
}

// RegisterRoutes registers the SSE endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/personas/{id}/stream", h.handleStream)
}

// handleStream sends a snapshot on every change to the persona until no
// interview is running, then a final "done" event.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	id := chi.URLParam(r, "id")
	p, err := h.svc.LoadPersona(r.Context(), id)
	if err != nil {
		apierr.Respond(w, r, err)
		return
	}

	changes := make(chan struct{}, 1)
	cancel := h.svc.OnChange(func(change store.Change) {
		if change.ID != id {
			return
		}
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	defer cancel()

	utils.SetupSSEHeaders(w)
	log.Printf("[sse] opening interview stream for persona=%s", id)

	send := func(event string) bool {
		if err := utils.SendSSEEvent(w, flusher, event, personahandler.NewView(h.svc, p)); err != nil {
			log.Printf("[sse] persona=%s: %v", id, err)
			return false
		}
		return true
	}
	if !send("snapshot") {
		return
	}

	interval := h.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	poll := time.NewTicker(interval)
	defer poll.Stop()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		if !h.svc.Busy(id) {
			send("done")
			log.Printf("[sse] closing interview stream for persona=%s", id)
			return
		}
		select {
		case <-r.Context().Done():
			log.Printf("[sse] client left interview stream for persona=%s", id)
			return
		case <-changes:
			if !send("snapshot") {
				return
			}
		case <-poll.C:
		case <-heartbeat.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		}
	}
}
