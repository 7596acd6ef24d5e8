package gateway

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// Conn is one client's duplex event channel. Outbound frames go through a buffered
// queue drained by the write pump; Close is safe to call from any goroutine, any
// number of times.
type Conn struct {
	id   string
	addr string
	ws   *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	admin atomic.Bool
}

func newConn(ws *websocket.Conn, addr string, buffer int) *Conn {
	return &Conn{
		id:   uuid.NewString(),
		addr: addr,
		ws:   ws,
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

// ID returns the connection identifier.
func (c *Conn) ID() string { return c.id }

// IsAdmin reports the admin flag. Chat clients joining over the socket never carry it.
func (c *Conn) IsAdmin() bool { return c.admin.Load() }

// Send queues frame without blocking. It returns false once the connection is closing
// or when its queue is full.
func (c *Conn) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// sendFinal queues the last frame a connection will get before it is closed. When the
// queue is full, older frames are discarded to make room. It fails only once the
// connection is closing.
func (c *Conn) sendFinal(frame []byte) bool {
	for attempt := 0; attempt <= cap(c.send); attempt++ {
		select {
		case <-c.done:
			return false
		default:
		}

		select {
		case c.send <- frame:
			return true
		default:
		}

		select {
		case <-c.send:
		default:
		}
	}
	return false
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Close marks the connection as closing. Frames queued before Close are still flushed.
func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed by Close.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) readPump(limit int64, pongWait time.Duration, handle func([]byte), log *zap.Logger) {
	c.ws.SetReadLimit(limit)
	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Debug("set read deadline", zap.Error(err))
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			logReadError(log, err)
			return
		}
		handle(raw)
	}
}

func (c *Conn) writePump(pingInterval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			if !c.write(websocket.TextMessage, frame, log) {
				return
			}
		case <-ticker.C:
			if !c.write(websocket.PingMessage, nil, log) {
				return
			}
		case <-c.done:
			c.flush(log)
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever was queued before the connection was closed.
func (c *Conn) flush(log *zap.Logger) {
	for {
		select {
		case frame := <-c.send:
			if !c.write(websocket.TextMessage, frame, log) {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(messageType int, data []byte, log *zap.Logger) bool {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Debug("set write deadline", zap.Error(err))
		return false
	}
	if err := c.ws.WriteMessage(messageType, data); err != nil {
		if !isExpectedCloseError(err) {
			log.Warn("write failed", zap.Error(err))
		}
		return false
	}
	return true
}

func logReadError(log *zap.Logger, err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Warn("frame exceeded read limit")
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		log.Debug("client closed", zap.Error(err))
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		log.Debug("connection closed", zap.Error(err))
	default:
		log.Info("read failed", zap.Error(err))
	}
}

func isExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	var closeErr *websocket.CloseError
	return errors.As(err, &closeErr)
}
