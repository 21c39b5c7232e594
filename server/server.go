// Package server exposes the daemon's control operations over HTTP and
// its event stream over a websocket.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"go.aimuz.me/voxd/hub"
	"go.aimuz.me/voxd/internal/types"
)

// Controller is the daemon surface the control API drives.
type Controller interface {
	TriggerWake() error
	Kill()
	PushToTalkStart() error
	PushToTalkStop()
	Language() string
	SetLanguage(code string) error
	Settings() types.SettingsPayload
	UpdateSettings(p types.SettingsPayload) types.SettingsPayload
	Status() types.StatusSnapshot
}

// Server serves the control API and the observer websocket.
type Server struct {
	ctl      Controller
	hub      *hub.Hub
	upgrader websocket.Upgrader
}

// New creates a server over the given controller and event hub.
func New(ctl Controller, h *hub.Hub) *Server {
	return &Server{
		ctl: ctl,
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The daemon binds to loopback; observers are local UIs.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	control := r.Group("/control")
	control.POST("/wake", s.wake)
	control.POST("/stop", s.stop)
	control.POST("/push_to_talk/start", s.pttStart)
	control.POST("/push_to_talk/stop", s.pttStop)

	r.GET("/language", s.getLanguage)
	r.POST("/language", s.setLanguage)
	r.GET("/settings", s.getSettings)
	r.PUT("/settings", s.putSettings)
	r.GET("/status", s.status)
	r.GET("/ws", s.ws)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router()}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	slog.Info("control API listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	}
}

func (s *Server) wake(c *gin.Context) {
	if err := s.ctl.TriggerWake(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": s.ctl.Status().Mode})
}

func (s *Server) stop(c *gin.Context) {
	s.ctl.Kill()
	c.JSON(http.StatusOK, gin.H{"state": types.ModeIdle})
}

func (s *Server) pttStart(c *gin.Context) {
	if err := s.ctl.PushToTalkStart(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": s.ctl.Status().Mode})
}

func (s *Server) pttStop(c *gin.Context) {
	s.ctl.PushToTalkStop()
	c.JSON(http.StatusOK, gin.H{"state": s.ctl.Status().Mode})
}

func (s *Server) getLanguage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"language": s.ctl.Language()})
}

func (s *Server) setLanguage(c *gin.Context) {
	var req struct {
		Language string `json:"language" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.ctl.SetLanguage(req.Language); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"language": s.ctl.Language()})
}

func (s *Server) getSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctl.Settings())
}

func (s *Server) putSettings(c *gin.Context) {
	var p types.SettingsPayload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.ctl.UpdateSettings(p))
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctl.Status())
}

func (s *Server) ws(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}
	status := s.ctl.Status()
	go s.hub.ServeConn(conn,
		types.StateEvent(status.Mode),
		types.LanguageEvent(status.Language),
		types.SettingsEvent(s.ctl.Settings()),
	)
}
