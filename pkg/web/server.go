// Package web serves the sentinel dashboard: live MJPEG view, motion status,
// snapshots, and websocket feeds for camera frames and status changes.
package web

import (
	"context"
	"embed"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-sentinel/pkg/hub"
	"github.com/teslashibe/go-sentinel/pkg/motion"
)

//go:embed static/index.html
var staticFS embed.FS

// DefaultRecentEvents is how many timestamps /motion_status returns.
const DefaultRecentEvents = 5

// State is the dashboard's view of the sentinel
type State struct {
	MotionDetected bool   `json:"motion_detected"`
	AlertStatus    string `json:"alert_status"`
	Episodes       uint64 `json:"episodes"`
	LastEpisode    string `json:"last_episode,omitempty"`
}

// EventSource supplies recent episode timestamps, oldest first
type EventSource interface {
	Recent(ctx context.Context, n int) ([]time.Time, error)
}

// Config holds server settings
type Config struct {
	// Addr is the listen address. Default: ":8080"
	Addr string

	// SnapshotDir is served under /snapshots when set
	SnapshotDir string

	// RecentEvents is the number of timestamps in /motion_status. Default: 5
	RecentEvents int
}

// Server is the web dashboard server
type Server struct {
	cfg    Config
	app    *fiber.App
	events EventSource
	logger *slog.Logger

	state   State
	stateMu sync.RWMutex

	// Hubs for websocket and stream broadcast
	statusHub *hub.Hub
	cameraHub *hub.Hub

	hubCtx    context.Context
	hubCancel context.CancelFunc
	startedAt time.Time

	// Stats returns engine counters for /api/status; optional
	Stats func() motion.Stats

	// Health returns capture, alert and recorder counters; optional
	Health func() Health
}

// NewServer creates the dashboard server and starts its hubs. events may be
// nil, in which case no timestamps are reported.
func NewServer(cfg Config, events EventSource, logger *slog.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.RecentEvents <= 0 {
		cfg.RecentEvents = DefaultRecentEvents
	}
	if logger == nil {
		logger = slog.Default()
	}

	hubCtx, hubCancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg,
		events:    events,
		logger:    logger,
		state:     State{AlertStatus: "idle"},
		statusHub: hub.New("status", logger),
		cameraHub: hub.New("camera", logger),
		hubCtx:    hubCtx,
		hubCancel: hubCancel,
		startedAt: time.Now(),
	}
	go s.statusHub.Run(hubCtx)
	go s.cameraHub.Run(hubCtx)

	app := fiber.New(fiber.Config{
		AppName:               "Sentinel",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	app.Get("/", s.handleIndex)
	app.Get("/video_feed", s.handleVideoFeed)
	app.Get("/motion_status", s.handleMotionStatus)
	if cfg.SnapshotDir != "" {
		app.Static("/snapshots", cfg.SnapshotDir, fiber.Static{Browse: false})
	}

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/frame", s.handleFrame)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// App returns the underlying fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Serve serves on ln until Shutdown
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("web dashboard listening", "addr", ln.Addr().String())
	err := s.app.Listener(ln)
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// UpdateState updates the dashboard state and broadcasts it to clients
func (s *Server) UpdateState(update func(*State)) {
	s.stateMu.Lock()
	update(&s.state)
	state := s.state
	s.stateMu.Unlock()

	if err := s.statusHub.BroadcastJSON(state); err != nil {
		s.logger.Warn("status broadcast failed", "error", err)
	}
}

// State returns a copy of the current state
func (s *Server) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// PublishFrame sends an annotated JPEG to live view clients
func (s *Server) PublishFrame(jpeg []byte) {
	s.cameraHub.BroadcastBinary(jpeg)
}

// Shutdown stops the server and disconnects every stream
func (s *Server) Shutdown(ctx context.Context) error {
	s.hubCancel()
	return s.app.ShutdownWithContext(ctx)
}
