// Package events pushes document store changes to browsers over WebSocket.
package events

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/epiphany/backend/internal/service/discovery"
	"github.com/zhouzirui/epiphany/backend/internal/store"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
	queueSize  = 64
)

// Handler WebSocket变更通知处理器
type Handler struct {
	svc      *discovery.Service
	upgrader websocket.Upgrader
}

// New 创建WebSocket处理器
func New(svc *discovery.Service) *Handler {
	return &Handler{
		svc: svc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/events", h.handleEvents)
}

// Message is one frame sent to the client.
type Message struct {
	Type      string        `json:"type"`
	Change    *store.Change `json:"change,omitempty"`
	Timestamp int64         `json:"timestamp"`
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[events] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	queue := make(chan store.Change, queueSize)
	unsubscribe := h.svc.OnChange(func(change store.Change) {
		select {
		case queue <- change:
		default:
			log.Printf("[events] dropping change for %s: client too slow", change.ID)
		}
	})
	defer unsubscribe()

	// the reader only exists to process pongs and notice the close
	go func() {
		defer cancel()
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("[events] read error: %v", err)
				}
				return
			}
		}
	}()

	log.Printf("[events] client connected from %s", r.RemoteAddr)
	if err := write(conn, Message{Type: "connected", Timestamp: time.Now().Unix()}); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[events] client disconnected from %s", r.RemoteAddr)
			return
		case change := <-queue:
			if err := write(conn, Message{Type: "change", Change: &change, Timestamp: time.Now().Unix()}); err != nil {
				log.Printf("[events] write failed: %v", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func write(conn *websocket.Conn, msg Message) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}
