// Package websocket pushes mail and forwarding events to connected
// dashboard clients.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"virtualaddresshub/backend/internal/auth/jwt"
	"virtualaddresshub/backend/internal/domain"
)

// Message is the frame sent to dashboard clients.
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Client is one connected dashboard session, bound to a user.
type Client struct {
	ID     string
	UserID string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
}

// Hub fans events out to the sessions of the affected user. It
// implements the service layer's EventPublisher alongside the webhook
// dispatcher.
type Hub struct {
	clients        map[string]*Client            // clientID -> client
	users          map[string]map[string]*Client // userID -> clientID -> client
	register       chan *Client
	unregister     chan *Client
	broadcast      chan userMessage
	mu             sync.RWMutex
	jwtManager     *jwt.Manager
	allowedOrigins []string
	log            *zap.Logger
}

type userMessage struct {
	userID  string
	payload []byte
}

func NewHub(allowedOrigins []string, jwtManager *jwt.Manager, log *zap.Logger) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &Hub{
		clients:        make(map[string]*Client),
		users:          make(map[string]map[string]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan userMessage, 256),
		jwtManager:     jwtManager,
		allowedOrigins: allowedOrigins,
		log:            log,
	}
}

// Run drives registration and fan-out until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			if h.users[client.UserID] == nil {
				h.users[client.UserID] = make(map[string]*Client)
			}
			h.users[client.UserID][client.ID] = client
			h.mu.Unlock()
			h.log.Debug("websocket client registered",
				zap.String("client_id", client.ID),
				zap.String("user_id", client.UserID),
			)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				if sessions := h.users[client.UserID]; sessions != nil {
					delete(sessions, client.ID)
					if len(sessions) == 0 {
						delete(h.users, client.UserID)
					}
				}
				close(client.send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for _, client := range h.users[msg.userID] {
				select {
				case client.send <- msg.payload:
				default:
					// Slow consumer; drop the frame rather than block
					// the hub.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Publish forwards a domain event to the owning user's sessions. The
// owner is read from the event payload's UserID field.
func (h *Hub) Publish(event domain.Event) {
	userID := ownerOf(event.Data)
	if userID == "" {
		return
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		h.log.Warn("failed to marshal event for websocket", zap.Error(err))
		return
	}

	payload, err := json.Marshal(Message{
		Type:      string(event.Type),
		Data:      data,
		Timestamp: event.Timestamp,
	})
	if err != nil {
		return
	}

	select {
	case h.broadcast <- userMessage{userID: userID, payload: payload}:
	default:
		h.log.Warn("websocket broadcast queue full, dropping event",
			zap.String("event", string(event.Type)))
	}
}

func ownerOf(data interface{}) string {
	switch v := data.(type) {
	case *domain.MailItem:
		return v.UserID
	case *domain.ForwardingRequest:
		return v.UserID
	}
	return ""
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		close(client.send)
		client.conn.Close()
		delete(h.clients, id)
	}
	h.users = make(map[string]map[string]*Client)
}

func (h *Hub) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			for _, origin := range h.allowedOrigins {
				if origin == "*" {
					return true
				}
			}
			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				return true
			}
			for _, origin := range h.allowedOrigins {
				if requestOrigin == origin {
					return true
				}
			}
			return false
		},
	}
}

// HandleWebSocket upgrades an authenticated dashboard connection. The
// token is taken from the query string because browsers cannot set
// headers on WebSocket dials.
func HandleWebSocket(h *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}

		claims, err := h.jwtManager.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		upgrader := h.upgrader()
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.log.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:     uuid.New().String(),
			UserID: claims.UserID,
			conn:   conn,
			send:   make(chan []byte, 64),
			hub:    h,
		}

		h.register <- client
		go client.writePump()
		go client.readPump()
	}
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
