// Package api handles HTTP and WebSocket API endpoints
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/thereceipt/printlink/internal/command"
	"github.com/thereceipt/printlink/internal/connection"
	"github.com/thereceipt/printlink/internal/logging"
	"github.com/thereceipt/printlink/internal/printer"
	"github.com/thereceipt/printlink/internal/registry"
	"github.com/thereceipt/printlink/internal/selector"
)

// Deps are the collaborators of the API server. Lock guards Selector and
// must be the same lock every other surface uses for it.
type Deps struct {
	Selector *selector.Selector
	Lock     sync.Locker
	Opener   printer.Opener
	Pool     *printer.ConnectionPool
	Registry *registry.Registry
}

// Server is the API server
type Server struct {
	router   *gin.Engine
	sel      *selector.Selector
	mu       sync.Locker
	opener   printer.Opener
	pool     *printer.ConnectionPool
	registry *registry.Registry
	executor *command.Executor
	upgrader websocket.Upgrader
	hub      *hub
	log      *slog.Logger

	probeTimeout time.Duration

	// OnChange is called after the selector was modified through the API.
	// It runs without the selector lock held.
	OnChange func()
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)

	lock := deps.Lock
	if lock == nil {
		lock = &sync.Mutex{}
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(), corsMiddleware())

	s := &Server{
		router:   router,
		sel:      deps.Selector,
		mu:       lock,
		opener:   deps.Opener,
		pool:     deps.Pool,
		registry: deps.Registry,
		executor: command.NewExecutor(deps.Selector, deps.Opener),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		hub:          newHub(),
		log:          logging.For("api"),
		probeTimeout: 2 * time.Second,
	}

	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	sel := s.router.Group("/selector")
	sel.GET("", s.handleGetSelector)
	sel.PUT("/mode", s.handleSetMode)
	sel.PUT("/tls", s.handleSetTLS)
	sel.PUT("/network", s.handleSetNetwork)
	sel.PUT("/usb-direct", s.handleSetUSBDirect)
	sel.PUT("/trust", s.handleSetTrust)
	sel.GET("/ip", s.handleGetIP)
	sel.PUT("/ip", s.handleSetIP)
	sel.POST("/focus", s.handleFocus)
	sel.POST("/refresh", s.handleRefresh)
	sel.POST("/usb-driver/select", s.handleSelectDriverPrinter)

	s.router.POST("/connection", s.handleBuildConnection)
	s.router.GET("/connection/qr", s.handleConnectionQRCode)
	s.router.POST("/connection/test", s.handleTestConnection)
	s.router.POST("/connection/open", s.handleOpenConnection)
	s.router.POST("/connection/close", s.handleCloseConnection)
	s.router.GET("/connections", s.handleGetConnections)
	s.router.DELETE("/connections", s.handleCloseConnections)

	s.router.GET("/printers", s.handleGetPrinters)
	s.router.GET("/printer/:id", s.handleGetPrinter)
	s.router.POST("/printer/:id/name", s.handleSetPrinterName)
	s.router.DELETE("/printer/:id", s.handleRemovePrinter)

	// Command endpoint
	s.router.POST("/command", s.handleCommand)

	// WebSocket
	s.router.GET("/ws", s.handleWebSocket)

	// Health check
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}

// locked runs fn with the selector lock held and returns a snapshot taken
// before the lock is released
func (s *Server) locked(fn func(*selector.Selector) error) (selector.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := fn(s.sel)
	return s.sel.Snapshot(), err
}

// mutate is locked for operations that change state; subscribers are
// notified after the lock is released
func (s *Server) mutate(c *gin.Context, fn func(*selector.Selector) error) {
	snap, err := s.locked(fn)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	s.publish(snap)
	c.JSON(200, snap)
}

func (s *Server) snapshot() selector.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel.Snapshot()
}

func (s *Server) publish(snap selector.Snapshot) {
	s.hub.broadcast(stateMessage(snap))
	if s.OnChange != nil {
		s.OnChange()
	}
}

// BroadcastState pushes the current selector state to WebSocket clients
func (s *Server) BroadcastState() {
	s.hub.broadcast(stateMessage(s.snapshot()))
}

// RefreshPrinters rescans driver printers, e.g. after a hotplug event
func (s *Server) RefreshPrinters() {
	snap, _ := s.locked(func(sel *selector.Selector) error {
		sel.RefreshDiscoveredPrinters()
		return nil
	})
	s.publish(snap)
}

// errorStatus maps selector and connection errors to HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, connection.ErrInvalidState),
		errors.Is(err, connection.ErrUnknownMode),
		errors.Is(err, connection.ErrUnknownTrustMode):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleGetSelector(c *gin.Context) {
	c.JSON(200, s.snapshot())
}

func (s *Server) handleSetMode(c *gin.Context) {
	var req struct {
		Mode string `json:"mode" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "mode is required"})
		return
	}
	m, err := connection.ParseMode(req.Mode)
	if err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	s.mutate(c, func(sel *selector.Selector) error {
		_, err := sel.SetMode(m)
		return err
	})
}

// handleSetTLS updates the TLS card; omitted fields are left alone
func (s *Server) handleSetTLS(c *gin.Context) {
	var req struct {
		Host      *string `json:"host"`
		Port      *string `json:"port"`
		TrustMode *string `json:"trust_mode"`
		CertPath  *string `json:"cert_path"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	var trust connection.TrustMode
	if req.TrustMode != nil {
		t, err := connection.ParseTrustMode(*req.TrustMode)
		if err != nil {
			c.JSON(400, gin.H{"error": err.Error()})
			return
		}
		trust = t
	}

	s.mutate(c, func(sel *selector.Selector) error {
		if req.Host != nil {
			sel.SetTLSHost(*req.Host)
		}
		if req.Port != nil {
			sel.SetTLSPort(*req.Port)
		}
		if req.CertPath != nil {
			sel.SetCertPath(*req.CertPath)
		}
		if trust != "" {
			return sel.SetTrustMode(trust)
		}
		return nil
	})
}

func (s *Server) handleSetNetwork(c *gin.Context) {
	var req struct {
		Host *string `json:"host"`
		Port *string `json:"port"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	s.mutate(c, func(sel *selector.Selector) error {
		if req.Host != nil {
			sel.SetNetworkHost(*req.Host)
		}
		if req.Port != nil {
			sel.SetNetworkPort(*req.Port)
		}
		return nil
	})
}

func (s *Server) handleSetUSBDirect(c *gin.Context) {
	var req struct {
		Address string `json:"address"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	s.mutate(c, func(sel *selector.Selector) error {
		sel.SetUSBDirectAddress(req.Address)
		return nil
	})
}

func (s *Server) handleSetTrust(c *gin.Context) {
	var req struct {
		TrustMode string `json:"trust_mode" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "trust_mode is required"})
		return
	}
	t, err := connection.ParseTrustMode(req.TrustMode)
	if err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	s.mutate(c, func(sel *selector.Selector) error {
		return sel.SetTrustMode(t)
	})
}

func (s *Server) handleGetIP(c *gin.Context) {
	s.mu.Lock()
	ip := s.sel.CurrentIPAddress()
	s.mu.Unlock()
	c.JSON(200, gin.H{"address": ip})
}

func (s *Server) handleSetIP(c *gin.Context) {
	var req struct {
		Address string `json:"address"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	s.mutate(c, func(sel *selector.Selector) error {
		sel.SetIPAddress(req.Address)
		return nil
	})
}

// handleFocus lets a remote panel report focus changes
func (s *Server) handleFocus(c *gin.Context) {
	var req struct {
		Focused bool `json:"focused"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	s.mutate(c, func(sel *selector.Selector) error {
		if req.Focused {
			sel.FocusGained()
		} else {
			sel.FocusLost()
		}
		return nil
	})
}

func (s *Server) handleRefresh(c *gin.Context) {
	s.mutate(c, func(sel *selector.Selector) error {
		sel.RefreshDiscoveredPrinters()
		return nil
	})
}

func (s *Server) handleSelectDriverPrinter(c *gin.Context) {
	var req struct {
		Index *int   `json:"index"`
		Name  string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	if req.Index == nil && req.Name == "" {
		c.JSON(400, gin.H{"error": "index or name is required"})
		return
	}
	s.mutate(c, func(sel *selector.Selector) error {
		if req.Index != nil {
			return sel.SelectDriverPrinter(*req.Index)
		}
		return sel.SelectDriverPrinterByName(req.Name)
	})
}

func (s *Server) build() (connection.Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sel.BuildConnection()
}

func (s *Server) handleBuildConnection(c *gin.Context) {
	d, err := s.build()
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"descriptor": d, "uri": d.String()})
}

// handleConnectionQRCode renders the built descriptor as a PNG QR code
func (s *Server) handleConnectionQRCode(c *gin.Context) {
	size, err := strconv.Atoi(c.DefaultQuery("size", "256"))
	if err != nil || size < 64 || size > 2048 {
		c.JSON(400, gin.H{"error": "size must be between 64 and 2048"})
		return
	}
	d, err := s.build()
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	png, err := d.QRCodePNG(size)
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error()})
		return
	}
	c.Data(200, "image/png", png)
}

// handleTestConnection opens the built descriptor, queries host status and
// closes it again. The selector lock is not held while dialing.
func (s *Server) handleTestConnection(c *gin.Context) {
	if s.opener == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "connection testing is not available"})
		return
	}
	d, err := s.build()
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	conn, err := s.opener.Open(c.Request.Context(), d)
	if err != nil {
		s.log.Warn("connection test failed", "descriptor", d.String(), "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "descriptor": d})
		return
	}
	defer conn.Close()

	resp := gin.H{"success": true, "descriptor": d, "uri": d.String()}
	reply, err := printer.Probe(conn, s.probeTimeout)
	switch {
	case errors.Is(err, printer.ErrNoReply):
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("status query failed: %v", err), "descriptor": d})
		return
	default:
		resp["status"] = reply
	}
	c.JSON(200, resp)
}

// handleOpenConnection opens the built descriptor into the connection pool
// and registers it
func (s *Server) handleOpenConnection(c *gin.Context) {
	if s.pool == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "connection pool is not available"})
		return
	}
	d, err := s.build()
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()
	alreadyOpen := s.pool.IsConnected(d)
	if _, err := s.pool.Connect(ctx, d); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "descriptor": d})
		return
	}

	resp := gin.H{"success": true, "descriptor": d, "uri": d.String(), "already_open": alreadyOpen}
	if s.registry != nil {
		resp["printer_id"] = s.registry.GetPrinterID(registry.InfoFromDescriptor(d))
	}
	c.JSON(200, resp)
}

// handleCloseConnection closes the pooled connection for the built descriptor
func (s *Server) handleCloseConnection(c *gin.Context) {
	if s.pool == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "connection pool is not available"})
		return
	}
	d, err := s.build()
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	wasOpen := s.pool.IsConnected(d)
	if err := s.pool.Disconnect(d); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "uri": d.String()})
		return
	}
	c.JSON(200, gin.H{"success": true, "uri": d.String(), "was_open": wasOpen})
}

func (s *Server) handleGetConnections(c *gin.Context) {
	var open []connection.Descriptor
	if s.pool != nil {
		open = s.pool.Connected()
	}
	uris := make([]string, 0, len(open))
	for _, d := range open {
		uris = append(uris, d.String())
	}
	c.JSON(200, gin.H{"connections": open, "uris": uris})
}

func (s *Server) handleCloseConnections(c *gin.Context) {
	if s.pool != nil {
		s.pool.DisconnectAll()
	}
	c.JSON(200, gin.H{"success": true})
}

// handleGetPrinters returns every printer the registry knows about
func (s *Server) handleGetPrinters(c *gin.Context) {
	if s.registry == nil {
		c.JSON(200, gin.H{"printers": []registry.PrinterEntry{}})
		return
	}
	c.JSON(200, gin.H{"printers": s.registry.GetAll()})
}

func (s *Server) handleGetPrinter(c *gin.Context) {
	var entry *registry.PrinterEntry
	if s.registry != nil {
		entry = s.registry.GetPrinterInfo(c.Param("id"))
	}
	if entry == nil {
		c.JSON(404, gin.H{"error": "printer not found"})
		return
	}
	c.JSON(200, gin.H{"printer": entry})
}

// handleSetPrinterName sets a custom name for a printer
func (s *Server) handleSetPrinterName(c *gin.Context) {
	if s.registry == nil {
		c.JSON(404, gin.H{"error": "printer not found"})
		return
	}
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "name is required"})
		return
	}
	if !s.registry.SetPrinterName(c.Param("id"), req.Name) {
		c.JSON(404, gin.H{"error": "printer not found"})
		return
	}

	// Driver labels come from the registry, so rescan to pick up the name
	s.RefreshPrinters()
	c.JSON(200, gin.H{"success": true})
}

func (s *Server) handleRemovePrinter(c *gin.Context) {
	if s.registry == nil || !s.registry.RemovePrinter(c.Param("id")) {
		c.JSON(404, gin.H{"error": "printer not found"})
		return
	}
	c.JSON(200, gin.H{"success": true})
}

// handleCommand handles command execution requests
func (s *Server) handleCommand(c *gin.Context) {
	var req struct {
		Command string `json:"command" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": "command is required"})
		return
	}

	result, snap := s.execute(c.Request.Context(), req.Command)
	if !result.Success {
		c.JSON(400, gin.H{"success": false, "error": result.Error})
		return
	}
	s.publish(snap)

	response := gin.H{"success": true}
	if result.Message != "" {
		response["message"] = result.Message
	}
	for k, v := range result.Data {
		response[k] = v
	}
	c.JSON(200, response)
}

// execute runs the selector part of a text command under the selector
// lock. A connection test dials after the lock is released.
func (s *Server) execute(ctx context.Context, cmd string) (*command.Result, selector.Snapshot) {
	s.mu.Lock()
	result, dial := s.executor.Prepare(cmd)
	snap := s.sel.Snapshot()
	s.mu.Unlock()

	if dial != nil {
		result = dial(ctx)
	}
	return result, snap
}

// Run starts the API server and shuts it down when ctx is cancelled
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("API listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.hub.closeAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func requestLogger() gin.HandlerFunc {
	log := logging.For("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
