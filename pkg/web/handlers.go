package web

import (
	"bufio"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-sentinel/pkg/hub"
	"github.com/teslashibe/go-sentinel/pkg/motion"
	"github.com/teslashibe/go-sentinel/pkg/recorder"
)

// MotionStatus is the /motion_status response
type MotionStatus struct {
	MotionDetected bool     `json:"motion_detected"`
	MotionEvents   []string `json:"motion_events"`
}

// Health carries the side-effect counters of a running sentinel
type Health struct {
	CaptureReads   uint64 `json:"capture_reads"`
	CaptureDropped uint64 `json:"capture_dropped"`
	CaptureReopens uint64 `json:"capture_reopens"`
	AlertPlays     uint64 `json:"alert_plays"`
	AlertFailures  uint64 `json:"alert_failures"`
	RecordsWritten uint64 `json:"records_written"`
	RecordsFailed  uint64 `json:"records_failed"`
	RecordsDropped uint64 `json:"records_dropped"`
}

// StatusResponse is the /api/status response
type StatusResponse struct {
	State
	Engine        *motion.Stats `json:"engine,omitempty"`
	Health        *Health       `json:"health,omitempty"`
	CameraClients int           `json:"camera_clients"`
	StatusClients int           `json:"status_clients"`
	SlowClients   uint64        `json:"slow_clients_dropped"`
	Uptime        string        `json:"uptime"`
}

// handleIndex serves the dashboard page
func (s *Server) handleIndex(c *fiber.Ctx) error {
	page, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		return fiber.ErrNotFound
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(page)
}

// handleMotionStatus returns the motion flag and the latest event timestamps
func (s *Server) handleMotionStatus(c *fiber.Ctx) error {
	resp := MotionStatus{
		MotionDetected: s.State().MotionDetected,
		MotionEvents:   []string{},
	}

	if s.events != nil {
		recent, err := s.events.Recent(c.UserContext(), s.cfg.RecentEvents)
		if err != nil {
			s.logger.Warn("failed to read recent events", "error", err)
		} else {
			resp.MotionEvents = recorder.FormatTimestamps(recent)
		}
	}
	return c.JSON(resp)
}

// handleStatus returns the extended status
func (s *Server) handleStatus(c *fiber.Ctx) error {
	resp := StatusResponse{
		State:         s.State(),
		CameraClients: s.cameraHub.ClientCount(),
		StatusClients: s.statusHub.ClientCount(),
		SlowClients:   s.cameraHub.Dropped() + s.statusHub.Dropped(),
		Uptime:        time.Since(s.startedAt).Round(time.Second).String(),
	}
	if s.Stats != nil {
		stats := s.Stats()
		resp.Engine = &stats
	}
	if s.Health != nil {
		health := s.Health()
		resp.Health = &health
	}
	return c.JSON(resp)
}

// handleFrame returns the latest annotated frame as a single JPEG
func (s *Server) handleFrame(c *fiber.Ctx) error {
	msg, ok := s.cameraHub.Last()
	if !ok {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "no frame yet",
		})
	}
	c.Set(fiber.HeaderContentType, "image/jpeg")
	return c.Send(msg.Data)
}

// handleVideoFeed streams annotated frames as multipart MJPEG
func (s *Server) handleVideoFeed(c *fiber.Ctx) error {
	sub := s.cameraHub.Subscribe()
	last, hasLast := s.cameraHub.Last()

	c.Set(fiber.HeaderContentType, mjpegContentType)
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer sub.Cancel()

		if hasLast {
			if err := writeMJPEGPart(w, last.Data); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}

		for msg := range sub.C() {
			if err := writeMJPEGPart(w, msg.Data); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	})
	return nil
}

// handleCameraWS streams binary JPEG frames
func (s *Server) handleCameraWS(c *websocket.Conn) {
	hub.NewClient(s.cameraHub, c).Run()
}

// handleStatusWS sends the current state, then every change
func (s *Server) handleStatusWS(c *websocket.Conn) {
	client := hub.NewClient(s.statusHub, c)
	if err := c.WriteJSON(s.State()); err != nil {
		s.logger.Debug("status websocket write failed", "error", err)
	}
	client.Run()
}
