// Package web serves the installation's live dashboard: a small REST API
// plus websocket feeds for status and conversation.
package web

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-lightwall/internal/log"
	"github.com/teslashibe/go-lightwall/pkg/conversation"
	"github.com/teslashibe/go-lightwall/pkg/engagement"
	"github.com/teslashibe/go-lightwall/pkg/hub"
	"github.com/teslashibe/go-lightwall/pkg/inference"
	"github.com/teslashibe/go-lightwall/pkg/journal"
)

// Defaults for the dashboard.
const (
	DefaultPort           = "8181"
	DefaultStatusInterval = time.Second
	maxConversation       = 100
)

// Status is the live state shown on the dashboard.
type Status struct {
	State        string                     `json:"state"`
	Since        time.Time                  `json:"since"`
	DistanceMM   int                        `json:"distance_mm"`
	LastPresence time.Time                  `json:"last_presence,omitempty"`
	Sequences    []string                   `json:"sequences"`
	Listening    bool                       `json:"listening"`
	Speaking     bool                       `json:"speaking"`
	VoiceLevel   float64                    `json:"voice_level"`
	Personality  string                     `json:"personality,omitempty"`
	Visit        string                     `json:"visit,omitempty"`
	Session      *conversation.SessionStats `json:"session,omitempty"`
	Latency      *conversation.Metrics      `json:"latency,omitempty"`
	Uptime       string                     `json:"uptime"`
}

// ConversationEntry is one message shown in the conversation feed.
type ConversationEntry struct {
	Time    time.Time `json:"time"`
	Role    string    `json:"role"`
	Message string    `json:"message"`
}

// Config wires the dashboard to the running installation.
type Config struct {
	Port           string
	StatusInterval time.Duration

	// Status returns the current status. Required.
	Status func() Status

	// Say speaks a phrase through the wall. Optional.
	Say func(ctx context.Context, text string) error

	// Journal serves visit history. Optional.
	Journal *journal.Journal

	Logger *slog.Logger
}

// Server is the dashboard server.
type Server struct {
	app    *fiber.App
	cfg    Config
	logger *slog.Logger

	conversation   []ConversationEntry
	conversationMu sync.RWMutex

	statusHub       *hub.Hub
	conversationHub *hub.Hub

	ctx    context.Context
	cancel context.CancelFunc
}

var (
	_ engagement.Handler    = (*Server)(nil)
	_ conversation.Observer = (*Server)(nil)
)

// NewServer creates the dashboard.
func NewServer(cfg Config) *Server {
	if cfg.Port == "" {
		cfg.Port = DefaultPort
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = DefaultStatusInterval
	}
	if cfg.Status == nil {
		cfg.Status = func() Status { return Status{} }
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Component("web")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:             cfg,
		logger:          cfg.Logger,
		conversation:    make([]ConversationEntry, 0, maxConversation),
		statusHub:       hub.New("status"),
		conversationHub: hub.New("conversation"),
		ctx:             ctx,
		cancel:          cancel,
	}

	app := fiber.New(fiber.Config{
		AppName:               "Lightwall Dashboard",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/conversation", s.handleConversation)
	api.Get("/visits", s.handleVisits)
	api.Get("/visits/:id", s.handleVisit)
	api.Post("/say", s.handleSay)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/conversation", websocket.New(s.handleConversationWS))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Start runs the hubs and serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("dashboard listening", "url", "http://localhost:"+s.cfg.Port)
	s.run()
	return s.app.Listen(":" + s.cfg.Port)
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("dashboard stopped", "error", err)
		}
	}()
}

func (s *Server) run() {
	go s.statusHub.Run(s.ctx)
	go s.conversationHub.Run(s.ctx)
	go func() {
		ticker := time.NewTicker(s.cfg.StatusInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				if s.statusHub.ClientCount() > 0 {
					s.PublishStatus()
				}
			}
		}
	}()
}

// PublishStatus broadcasts the current status.
func (s *Server) PublishStatus() {
	if err := s.statusHub.BroadcastEvent("status", s.cfg.Status()); err != nil {
		s.logger.Warn("encoding status", "error", err)
	}
}

// OnTransition broadcasts the new status immediately.
func (s *Server) OnTransition(next, prev engagement.State) {
	if err := s.statusHub.BroadcastEvent("transition", map[string]string{
		"from": prev.String(),
		"to":   next.String(),
	}); err != nil {
		s.logger.Warn("encoding transition", "error", err)
	}
	s.PublishStatus()
}

// OnTurn adds a conversation message and broadcasts it.
func (s *Server) OnTurn(role inference.Role, content string) {
	s.AddConversation(string(role), content)
}

// AddConversation records a message in the conversation feed.
func (s *Server) AddConversation(role, message string) {
	entry := ConversationEntry{
		Time:    time.Now(),
		Role:    role,
		Message: message,
	}

	s.conversationMu.Lock()
	s.conversation = append(s.conversation, entry)
	if len(s.conversation) > maxConversation {
		s.conversation = s.conversation[1:]
	}
	s.conversationMu.Unlock()

	if err := s.conversationHub.BroadcastEvent("turn", entry); err != nil {
		s.logger.Warn("encoding turn", "error", err)
	}
}

// ClearConversation empties the conversation feed.
func (s *Server) ClearConversation() {
	s.conversationMu.Lock()
	s.conversation = s.conversation[:0]
	s.conversationMu.Unlock()
	if err := s.conversationHub.BroadcastEvent("reset", nil); err != nil {
		s.logger.Warn("encoding reset", "error", err)
	}
}

// Shutdown stops the hubs and the HTTP server.
func (s *Server) Shutdown() error {
	s.cancel()
	return s.app.Shutdown()
}
