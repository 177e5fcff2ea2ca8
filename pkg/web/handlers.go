package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-framegate/pkg/classifier"
	"github.com/teslashibe/go-framegate/pkg/display"
	"github.com/teslashibe/go-framegate/pkg/hub"
)

// Status is the dashboard summary.
type Status struct {
	Session string          `json:"session,omitempty"`
	Active  bool            `json:"active"`
	Config  ConfigView      `json:"config"`
	Clients int             `json:"clients"`
	Last    *display.Update `json:"last,omitempty"`
}

// ConfigView is the classifier configuration as shown to a user.
type ConfigView struct {
	Device  classifier.Device `json:"device"`
	Threads int               `json:"threads"`
	Label   string            `json:"threads_label"`
}

func (s *Server) configView() ConfigView {
	settings := s.pipeline.Settings()
	cfg := settings.Config()
	return ConfigView{Device: cfg.Device, Threads: cfg.Threads, Label: settings.ThreadsLabel()}
}

func (s *Server) status() Status {
	session := s.pipeline.Session()
	st := Status{
		Session: session,
		Active:  session != "",
		Config:  s.configView(),
		Clients: s.statusHub.ClientCount(),
	}
	if last, ok := s.Last(); ok {
		st.Last = &last
	}
	return st
}

// handleStatus returns the current session, config and latest update
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

// handleStats returns pipeline counters
func (s *Server) handleStats(c *fiber.Ctx) error {
	st := s.pipeline.Stats()
	return c.JSON(fiber.Map{
		"stats":     st,
		"drop_rate": st.DropRate(),
	})
}

// handleResults returns recent updates
func (s *Server) handleResults(c *fiber.Ctx) error {
	return c.JSON(s.Results())
}

func (s *Server) handleGetConfig(c *fiber.Ctx) error {
	return c.JSON(s.configView())
}

// handleSetConfig applies {"device": ..., "threads": ...}
func (s *Server) handleSetConfig(c *fiber.Ctx) error {
	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	changed, err := s.pipeline.Settings().Update(params)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"changed": changed,
		"config":  s.configView(),
	})
}

// handleThreads handles the increment and decrement buttons
func (s *Server) handleThreads(c *fiber.Ctx) error {
	settings := s.pipeline.Settings()

	var changed bool
	switch c.Params("op") {
	case "inc":
		changed = settings.IncrementThreads()
	case "dec":
		changed = settings.DecrementThreads()
	default:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "unknown operation " + c.Params("op"),
		})
	}
	return c.JSON(fiber.Map{
		"changed": changed,
		"config":  s.configView(),
	})
}

// handleStatusWS replays the latest config and result, then streams broadcasts
func (s *Server) handleStatusWS(c *websocket.Conn) {
	hub.NewClient(s.statusHub, c).Run()
}
