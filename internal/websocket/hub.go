package websocket

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"geminichat-backend/internal/logger"
	"geminichat-backend/internal/middleware"
)

const writeWait = 10 * time.Second

// client serializes writes; gorilla connections allow one concurrent writer.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub keeps each user's open sockets and, while any are open, one Redis
// subscription on the user's channel whose payloads it forwards verbatim.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID][]*client
	cancelFuncs map[uuid.UUID]context.CancelFunc
	redisClient *redis.Client
	jwtAuth     *middleware.JWTAuth
	upgrader    websocket.Upgrader
	log         *logger.Logger
}

func NewHub(redisClient *redis.Client, jwtAuth *middleware.JWTAuth, allowedOrigins []string, log *logger.Logger) *Hub {
	return &Hub{
		connections: make(map[uuid.UUID][]*client),
		cancelFuncs: make(map[uuid.UUID]context.CancelFunc),
		redisClient: redisClient,
		jwtAuth:     jwtAuth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: log.With("component", "websocket"),
	}
}

// HandleWebSocket authenticates with an access token in the "token" query parameter.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	claims, err := h.jwtAuth.ParseToken(tokenStr, middleware.TokenTypeAccess)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	userID, err := claims.UserUUID()
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	c := &client{conn: conn}
	h.registerConnection(userID, c)

	// Reads only detect the disconnect; clients send nothing meaningful.
	go func() {
		defer h.unregisterConnection(userID, c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) registerConnection(userID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[userID] = append(h.connections[userID], c)

	if len(h.connections[userID]) == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[userID] = cancel
		go h.subscribe(ctx, userID)
	}

	h.log.Debug("websocket connected", "user_id", userID, "connections", len(h.connections[userID]))
}

func (h *Hub) unregisterConnection(userID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.conn.Close()

	conns := h.connections[userID]
	for i, existing := range conns {
		if existing == c {
			h.connections[userID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	if len(h.connections[userID]) == 0 {
		delete(h.connections, userID)
		if cancel, ok := h.cancelFuncs[userID]; ok {
			cancel()
			delete(h.cancelFuncs, userID)
		}
	}

	h.log.Debug("websocket disconnected", "user_id", userID)
}

func (h *Hub) subscribe(ctx context.Context, userID uuid.UUID) {
	if h.redisClient == nil {
		return
	}
	pubsub := h.redisClient.Subscribe(ctx, channelFor(userID))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(userID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(userID uuid.UUID, data []byte) {
	h.mu.RLock()
	conns := append([]*client(nil), h.connections[userID]...)
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.write(data); err != nil {
			h.log.Debug("websocket write failed", "user_id", userID, "error", err)
		}
	}
}

func (h *Hub) connectionCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[userID])
}

// Close drops every socket and subscription. Used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, conns := range h.connections {
		for _, c := range conns {
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			c.conn.Close()
		}
		if cancel, ok := h.cancelFuncs[userID]; ok {
			cancel()
		}
	}
	h.connections = make(map[uuid.UUID][]*client)
	h.cancelFuncs = make(map[uuid.UUID]context.CancelFunc)
}

// originChecker allows requests without an Origin header and those whose
// origin is listed. A "*" entry allows everything.
func originChecker(allowed []string) func(r *http.Request) bool {
	for _, o := range allowed {
		if o == "*" {
			return func(r *http.Request) bool { return true }
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		for _, o := range allowed {
			if strings.EqualFold(strings.TrimSuffix(o, "/"), u.Scheme+"://"+u.Host) {
				return true
			}
		}
		return false
	}
}
