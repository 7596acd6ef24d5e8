// Package gateway owns the client WebSocket connections: it replays history on connect,
// turns inbound events into registry and router calls, and cleans up on disconnect.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/relay-chat/backend/internal/config"
	"github.com/zhouzirui/relay-chat/backend/internal/model/chat"
	"github.com/zhouzirui/relay-chat/backend/internal/service/broadcast"
	"github.com/zhouzirui/relay-chat/backend/internal/service/session"
	"github.com/zhouzirui/relay-chat/backend/internal/store"
)

// Reasons sent to clients.
const (
	reasonUsernameRequired = "Username is required"
	reasonReplaced         = "You were logged out due to a new login"
	reasonSaveFailed       = "Failed to save message"
	reasonInvalidFrame     = "Invalid event frame"
	reasonInternal         = "Internal error"
)

// Gateway is the WebSocket endpoint of the chat.
type Gateway struct {
	registry *session.Registry
	router   *broadcast.Router
	store    store.Store
	cfg      config.GatewayConfig
	log      *zap.Logger
	upgrader websocket.Upgrader
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	conns  map[string]*Conn
	closed bool
}

// New builds a gateway. checkOrigin may be nil to accept every origin.
func New(registry *session.Registry, router *broadcast.Router, messages store.Store, cfg config.GatewayConfig, checkOrigin func(*http.Request) bool, log *zap.Logger) *Gateway {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		registry: registry,
		router:   router,
		store:    messages,
		cfg:      cfg,
		log:      log.Named("gateway"),
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[string]*Conn),
	}
}

// RegisterRoutes 注册 WebSocket 路由
func (g *Gateway) RegisterRoutes(r chi.Router) {
	r.Get("/socket", g.handleWebSocket)
}

// Connections returns the number of open connections.
func (g *Gateway) Connections() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if g.shuttingDown() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Info("upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	c := newConn(ws, r.RemoteAddr, g.cfg.SendBuffer)
	if !g.track(c, 2) {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server is shutting down"),
			time.Now().Add(writeWait))
		_ = ws.Close()
		return
	}
	log := g.log.With(zap.String("conn", c.ID()), zap.String("remote", c.addr))
	log.Info("client connected")

	go func() {
		defer g.wg.Done()
		c.writePump(g.cfg.PingInterval, log)
	}()
	go func() {
		defer g.wg.Done()
		defer g.disconnect(c)
		g.connect(g.ctx, c)
		c.readPump(int64(g.cfg.MaxMessageBytes), g.cfg.PongWait(), func(raw []byte) {
			g.dispatch(g.ctx, c, raw)
		}, log)
	}()
}

// track registers c and reserves workers pump goroutines on the wait group. It fails
// once Shutdown has started, so Shutdown never misses a connection.
func (g *Gateway) track(c *Conn, workers int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.conns[c.ID()] = c
	g.wg.Add(workers)
	return true
}

func (g *Gateway) shuttingDown() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// connect attaches c to the broadcast set and replays the recent history to it alone.
// c is attached first so nothing broadcast while the history loads is missed; a message
// may then arrive twice and clients de-duplicate by id.
func (g *Gateway) connect(ctx context.Context, c *Conn) {
	g.router.Attach(c)

	history, err := g.store.RecentMessages(ctx)
	if err != nil {
		g.log.Warn("load history failed", zap.String("conn", c.ID()), zap.Error(err))
		history = nil
	}
	if history == nil {
		history = []chat.Message{}
	}
	g.router.Unicast(c, chat.EventLoadMessages, history)
}

// dispatch handles one inbound frame. A panic is contained to this event. Frames read
// after the connection was closed are dropped.
func (g *Gateway) dispatch(ctx context.Context, c *Conn, raw []byte) {
	if c.Closed() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("event handler panicked", zap.String("conn", c.ID()), zap.Any("panic", r), zap.Stack("stack"))
			g.router.Unicast(c, chat.EventError, reasonInternal)
		}
	}()

	env, err := broadcast.Decode(raw)
	if err != nil {
		g.router.Unicast(c, chat.EventError, reasonInvalidFrame)
		return
	}

	switch env.Event {
	case chat.EventJoin:
		name, err := broadcast.DecodeString(env)
		if err != nil {
			g.router.Unicast(c, chat.EventAuthError, reasonUsernameRequired)
			return
		}
		g.join(c, name)
	case chat.EventChatMessage:
		text, err := broadcast.DecodeString(env)
		if err != nil {
			g.router.Unicast(c, chat.EventError, reasonInvalidFrame)
			return
		}
		g.chatMessage(ctx, c, text)
	default:
		g.router.Unicast(c, chat.EventError, "Unsupported event: "+env.Event)
	}
}

func (g *Gateway) join(c *Conn, rawName string) {
	res, err := g.registry.Bind(rawName, c)
	if errors.Is(err, session.ErrConnClosed) {
		return
	}
	if err != nil {
		g.router.Unicast(c, chat.EventAuthError, reasonUsernameRequired)
		return
	}

	if res.Evicted != nil {
		if prev, ok := res.Evicted.(*Conn); ok {
			g.evict(prev, res.Username)
		}
	}
	if res.Released != "" {
		g.router.Announce(chat.EventUserLeft, res.Released)
	}

	c.admin.Store(false)
	g.router.Announce(chat.EventUserJoined, res.Username)
	g.log.Info("user joined", zap.String("conn", c.ID()), zap.String("username", res.Username))
}

// evict forces a displaced connection out. Its registry binding is already gone, so its
// own disconnect later announces nothing. The notice is delivered even to a full queue.
func (g *Gateway) evict(prev *Conn, username string) {
	g.router.Detach(prev)
	frame, err := broadcast.Encode(chat.EventForceLogout, reasonReplaced)
	if err != nil {
		g.log.Error("encode force logout", zap.Error(err))
	} else if !prev.sendFinal(frame) {
		g.log.Warn("force logout not delivered", zap.String("conn", prev.ID()))
	}
	prev.Close()
	g.log.Info("session replaced", zap.String("conn", prev.ID()), zap.String("username", username))
}

func (g *Gateway) chatMessage(ctx context.Context, c *Conn, text string) {
	username, ok := g.registry.Lookup(c)
	if !ok {
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	msg := chat.Message{
		ID:        uuid.NewString(),
		Username:  username,
		Text:      text,
		Timestamp: g.now().UTC(),
	}
	if err := g.store.SaveMessage(ctx, msg); err != nil {
		g.log.Error("save message failed", zap.String("conn", c.ID()), zap.String("username", username), zap.Error(err))
		g.router.Unicast(c, chat.EventError, reasonSaveFailed)
		return
	}

	g.router.Announce(chat.EventChatMessage, msg)
}

func (g *Gateway) disconnect(c *Conn) {
	g.router.Detach(c)
	g.mu.Lock()
	delete(g.conns, c.ID())
	g.mu.Unlock()

	if name, removed := g.registry.Unbind(c); removed {
		g.router.Announce(chat.EventUserLeft, name)
		g.log.Info("user left", zap.String("conn", c.ID()), zap.String("username", name))
	}
	c.Close()
}

// Shutdown closes every connection and waits for their pumps, or for ctx.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.cancel()

	g.mu.Lock()
	g.closed = true
	conns := make([]*Conn, 0, len(g.conns))
	for _, c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	g.log.Info("closing connections", zap.Int("count", len(conns)))

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
