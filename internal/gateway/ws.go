// ABOUTME: Websocket stream of panel status for live dashboards
// ABOUTME: Pushes the status on connect and on every liveness publication or lock change

package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/craft-bridge/internal/liveness"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsSendBuffer = 8
	wsReadLimit  = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Panel tokens gate the route; browsers connect from the panel origin or a file.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// statusStream fans status payloads out to connected websocket clients.
// Slow clients whose buffer is full are dropped.
type statusStream struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
	logger  *slog.Logger
}

func newStatusStream(logger *slog.Logger) *statusStream {
	return &statusStream{
		clients: make(map[*wsClient]struct{}),
		logger:  logger.With("component", "ws"),
	}
}

func (s *statusStream) add(c *wsClient) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[c] = struct{}{}
	return true
}

// remove unregisters c and closes its send channel. Only the first call has
// any effect.
func (s *statusStream) remove(c *wsClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(c)
}

func (s *statusStream) removeLocked(c *wsClient) {
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *statusStream) broadcast(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- payload:
		default:
			s.logger.Debug("dropping slow websocket client")
			s.removeLocked(c)
		}
	}
}

func (s *statusStream) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close disconnects every client and rejects new ones.
func (s *statusStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for c := range s.clients {
		s.removeLocked(c)
	}
}

// readPump discards client messages and keeps the read deadline fresh via
// pongs. It unregisters the client when the connection fails.
func (s *statusStream) readPump(c *wsClient) {
	defer func() {
		s.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(wsReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Debug("websocket read error", "error", err)
			}
			return
		}
	}
}

// writePump writes queued payloads and pings until the send channel closes.
func (s *statusStream) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.logger.Debug("websocket write failed", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handlePanelWS upgrades to a websocket and streams PanelStatus payloads.
func (g *Gateway) handlePanelWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		g.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
	if payload, err := json.Marshal(g.status()); err == nil {
		c.send <- payload
	}
	if !g.stream.add(c) {
		_ = conn.Close()
		return
	}

	go g.stream.writePump(c)
	go g.stream.readPump(c)
}

// publishStatus mirrors a liveness publication into the gRPC health service
// and the websocket stream.
func (g *Gateway) publishStatus(snap liveness.Snapshot) {
	g.setServing(snap.Online)

	payload, err := json.Marshal(PanelStatus{
		ServerOnline: snap.Online,
		PlayerCount:  snap.PlayerCount,
		ServerLocked: g.lock.Locked(),
		Connected:    g.channel.IsAvailable(),
	})
	if err != nil {
		g.logger.Error("encoding status", "error", err)
		return
	}
	g.stream.broadcast(payload)
}
