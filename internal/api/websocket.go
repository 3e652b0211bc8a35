package api

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/thereceipt/printlink/internal/connection"
	"github.com/thereceipt/printlink/internal/selector"
)

// WebSocket message types
const (
	EventState          = "state"
	EventCommand        = "command"
	EventPrinterAdded   = "printer_added"
	EventPrinterRemoved = "printer_removed"
	EventResponse       = "response"
	EventError          = "error"
)

const writeWait = 10 * time.Second

// WSMessage represents a WebSocket message
type WSMessage struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data"`
}

// WSClient represents a connected WebSocket client
type WSClient struct {
	conn   *websocket.Conn
	send   chan WSMessage
	server *Server

	mu     sync.Mutex
	closed bool
}

// hub tracks connected clients for broadcasts
type hub struct {
	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[*WSClient]struct{})}
}

func (h *hub) add(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(c *WSClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *hub) broadcast(msg WSMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.enqueue(msg)
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()
	for c := range clients {
		c.close()
	}
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		conn:   conn,
		send:   make(chan WSMessage, 256),
		server: s,
	}
	client.enqueue(stateMessage(s.snapshot()))
	s.hub.add(client)
	s.log.Info("WebSocket client connected", "remote", conn.RemoteAddr().String())

	go client.writePump()
	go client.readPump()
}

func stateMessage(snap selector.Snapshot) WSMessage {
	return WSMessage{Event: EventState, Data: map[string]interface{}{"state": snap}}
}

// enqueue drops the message when the client is not keeping up
func (c *WSClient) enqueue(msg WSMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *WSClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *WSClient) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(msg); err != nil {
			c.server.log.Debug("WebSocket write error", "error", err)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

func (c *WSClient) readPump() {
	defer func() {
		c.server.hub.remove(c)
		c.close()
		c.server.log.Info("WebSocket client disconnected")
	}()

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.log.Warn("WebSocket error", "error", err)
			}
			return
		}
		c.handleMessage(&msg)
	}
}

func (c *WSClient) handleMessage(msg *WSMessage) {
	switch msg.Event {
	case EventState:
		c.enqueue(stateMessage(c.server.snapshot()))
	case EventCommand:
		c.handleCommandEvent(msg.Data)
	default:
		c.sendError("unknown event: " + msg.Event)
	}
}

func (c *WSClient) handleCommandEvent(data map[string]interface{}) {
	cmd, _ := data["command"].(string)
	if cmd == "" {
		c.sendError("command is required")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	result, snap := c.server.execute(ctx, cmd)
	if !result.Success {
		c.sendError(result.Error)
		return
	}

	resp := map[string]interface{}{"success": true, "message": result.Message}
	for k, v := range result.Data {
		resp[k] = v
	}
	c.enqueue(WSMessage{Event: EventResponse, Data: resp})
	c.server.publish(snap)
}

func (c *WSClient) sendError(message string) {
	c.enqueue(WSMessage{
		Event: EventError,
		Data: map[string]interface{}{
			"error": message,
		},
	})
}

// BroadcastPrinterAdded broadcasts a printer added event to all connected clients
func (s *Server) BroadcastPrinterAdded(p connection.DriverPrinter) {
	s.hub.broadcast(WSMessage{
		Event: EventPrinterAdded,
		Data:  map[string]interface{}{"printer": p},
	})
	s.log.Info("printer added", "name", p.Name, "description", p.Description)
}

// BroadcastPrinterRemoved broadcasts a printer removed event to all connected clients
func (s *Server) BroadcastPrinterRemoved(p connection.DriverPrinter) {
	s.hub.broadcast(WSMessage{
		Event: EventPrinterRemoved,
		Data:  map[string]interface{}{"printer": p},
	})
	s.log.Info("printer removed", "name", p.Name)
}
