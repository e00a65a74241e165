package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// clients only send control frames
	maxMessageSize = 512
)

// closeSlowConsumer is sent when the hub dropped the subscription.
const closeSlowConsumer = "slow consumer"

// WebSocketHandler upgrades requests and streams hub events to the client
// until either side goes away.
type WebSocketHandler struct {
	hub      *Hub
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a handler for hub.
func NewWebSocketHandler(hub *Hub, log *zap.Logger) *WebSocketHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebSocketHandler{
		hub: hub,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sub, err := h.hub.Subscribe()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	log := h.log.With(zap.Uint64("subscription", sub.id), zap.String("remote", r.RemoteAddr))
	log.Debug("websocket connected")

	gone := make(chan struct{})
	go h.readLoop(conn, gone)
	h.writeLoop(conn, sub, gone, log)
	log.Debug("websocket disconnected")
}

// readLoop drains the connection so pongs and close frames are processed.
// It closes gone when the peer disconnects.
func (h *WebSocketHandler) readLoop(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *WebSocketHandler) writeLoop(conn *websocket.Conn, sub *Subscription, gone <-chan struct{}, log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		if r := recover(); r != nil {
			log.Error("websocket writer panicked", zap.Any("panic", r))
		}
		ticker.Stop()
		sub.Close()
		conn.Close()
		<-gone
	}()

	for {
		select {
		case ev, ok := <-sub.Events():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				reason := ""
				if sub.Dropped() {
					reason = closeSlowConsumer
				}
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, reason))
				return
			}
			data, err := Encode(ev)
			if err != nil {
				log.Error("encode event", zap.Error(err))
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

// Listen dials a hub endpoint and calls fn for every decoded event until ctx
// ends or the server closes the connection. Undecodable messages are skipped.
func Listen(ctx context.Context, url string, header http.Header, fn func(Event)) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				var ce *websocket.CloseError
				if errors.As(err, &ce) && ce.Text == closeSlowConsumer {
					return fmt.Errorf("server dropped connection: %s", ce.Text)
				}
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		ev, err := Decode(data)
		if err != nil {
			continue
		}
		fn(ev)
	}
}
