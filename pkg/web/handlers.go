package web

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-lightwall/pkg/hub"
)

const (
	sayTimeout  = 30 * time.Second
	maxSayChars = 500
)

// SayRequest is the body of POST /api/say.
type SayRequest struct {
	Text string `json:"text"`
}

func errorJSON(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// handleStatus returns the current status
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.cfg.Status())
}

// handleConversation returns the recent conversation
func (s *Server) handleConversation(c *fiber.Ctx) error {
	s.conversationMu.RLock()
	defer s.conversationMu.RUnlock()
	return c.JSON(s.conversation)
}

func (s *Server) handleVisits(c *fiber.Ctx) error {
	if s.cfg.Journal == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "journal disabled")
	}
	visits, err := s.cfg.Journal.Visits(c.UserContext(), c.QueryInt("limit", 0))
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	if visits == nil {
		return c.JSON([]any{})
	}
	return c.JSON(visits)
}

func (s *Server) handleVisit(c *fiber.Ctx) error {
	if s.cfg.Journal == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "journal disabled")
	}
	ctx := c.UserContext()
	id := c.Params("id")

	visit, err := s.cfg.Journal.Visit(ctx, id)
	if err != nil {
		return errorJSON(c, fiber.StatusNotFound, err.Error())
	}
	turns, err := s.cfg.Journal.Turns(ctx, id)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	transitions, err := s.cfg.Journal.Transitions(ctx, id)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{
		"visit":       visit,
		"turns":       turns,
		"transitions": transitions,
	})
}

// handleSay speaks a phrase and returns once it has been said
func (s *Server) handleSay(c *fiber.Ctx) error {
	if s.cfg.Say == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "speech disabled")
	}

	var req SayRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid body")
	}
	text := strings.TrimSpace(req.Text)
	switch {
	case text == "":
		return errorJSON(c, fiber.StatusBadRequest, "text is required")
	case len(text) > maxSayChars:
		return errorJSON(c, fiber.StatusBadRequest, "text too long")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), sayTimeout)
	defer cancel()
	if err := s.cfg.Say(ctx, text); err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	}
	s.AddConversation("operator", text)
	return c.JSON(fiber.Map{"spoken": text})
}

func (s *Server) handleStatusWS(c *websocket.Conn) {
	var initial []hub.Message
	if msg, err := hub.NewEvent("status", s.cfg.Status()); err == nil {
		initial = append(initial, msg)
	}
	hub.NewClient(s.statusHub, c, initial...).Run()
}

func (s *Server) handleConversationWS(c *websocket.Conn) {
	s.conversationMu.RLock()
	initial := make([]hub.Message, 0, len(s.conversation))
	for _, e := range s.conversation {
		if msg, err := hub.NewEvent("turn", e); err == nil {
			initial = append(initial, msg)
		}
	}
	s.conversationMu.RUnlock()
	hub.NewClient(s.conversationHub, c, initial...).Run()
}
