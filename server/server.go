// Package server exposes the operator surface over HTTP: pausing the loop,
// changing the tick duration, inspecting queue depths, and resetting the
// data set.
package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/burrowgame/burrow/queue"
	"github.com/burrowgame/burrow/tickloop"
)

const shutdownTimeout = 5 * time.Second

// LoopControl is what the admin surface may do to the tick loop.
type LoopControl interface {
	Pause()
	Resume()
	Paused() bool
	SetMinTickDuration(d time.Duration)
	MinTickDuration() time.Duration
	CurrentStage() tickloop.Stage
	TickCount() uint64
}

// Resetter wipes the persistent data set.
type Resetter interface {
	ResetAll(ctx context.Context) error
}

type Server struct {
	app      *fiber.App
	loop     LoopControl
	queues   []*queue.Channel
	resetter Resetter
	log      zerolog.Logger
}

func New(loop LoopControl, queues []*queue.Channel, resetter Resetter, log zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	s := &Server{
		app:      app,
		loop:     loop,
		queues:   queues,
		resetter: resetter,
		log:      log,
	}
	s.registerHandlers()
	return s
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) registerHandlers() {
	s.app.Get("/health", s.handleHealth)
	s.app.Post("/pause", s.handlePause)
	s.app.Post("/resume", s.handleResume)
	s.app.Put("/tick-duration", s.handleTickDuration)
	s.app.Get("/queues", s.handleQueues)
	s.app.Post("/reset", s.handleReset)
}

// Serve blocks until Shutdown.
func (s *Server) Serve(port string) error {
	s.log.Info().Str("port", port).Msg("admin server listening")
	if err := s.app.Listen(":" + port); err != nil {
		return eris.Wrap(err, "admin server")
	}
	return nil
}

func (s *Server) Shutdown() error {
	return eris.Wrap(s.app.ShutdownWithTimeout(shutdownTimeout), "admin server shutdown")
}

type statusResponse struct {
	Paused    bool   `json:"paused"`
	Stage     string `json:"stage"`
	TickCount uint64 `json:"tickCount"`
	MinTickMS int64  `json:"minTickMs"`
}

func (s *Server) status() statusResponse {
	return statusResponse{
		Paused:    s.loop.Paused(),
		Stage:     string(s.loop.CurrentStage()),
		TickCount: s.loop.TickCount(),
		MinTickMS: s.loop.MinTickDuration().Milliseconds(),
	}
}

func (s *Server) handleHealth(ctx *fiber.Ctx) error {
	return ctx.JSON(s.status())
}

func (s *Server) handlePause(ctx *fiber.Ctx) error {
	s.loop.Pause()
	s.log.Info().Msg("tick loop paused")
	return ctx.JSON(s.status())
}

func (s *Server) handleResume(ctx *fiber.Ctx) error {
	s.loop.Resume()
	s.log.Info().Msg("tick loop resumed")
	return ctx.JSON(s.status())
}

type tickDurationRequest struct {
	Millis int64 `json:"ms"`
}

func (s *Server) handleTickDuration(ctx *fiber.Ctx) error {
	req := new(tickDurationRequest)
	if err := ctx.BodyParser(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed body")
	}
	if req.Millis <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "ms must be positive")
	}
	s.loop.SetMinTickDuration(time.Duration(req.Millis) * time.Millisecond)
	s.log.Info().Int64("ms", req.Millis).Msg("tick duration updated")
	return ctx.JSON(s.status())
}

type queueStatus struct {
	Stream string `json:"stream"`
	Depth  int64  `json:"depth"`
}

func (s *Server) handleQueues(ctx *fiber.Ctx) error {
	statuses := make([]queueStatus, 0, len(s.queues))
	for _, ch := range s.queues {
		depth, err := ch.PendingCount(ctx.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		statuses = append(statuses, queueStatus{Stream: ch.Stream(), Depth: depth})
	}
	return ctx.JSON(statuses)
}

// handleReset pauses the loop, clears the queues, and wipes storage. The
// loop stays paused; the operator resumes after reseeding.
func (s *Server) handleReset(ctx *fiber.Ctx) error {
	s.loop.Pause()
	for _, ch := range s.queues {
		if err := ch.Reset(ctx.Context()); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
	}
	if err := s.resetter.ResetAll(ctx.Context()); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	s.log.Warn().Msg("data set reset")
	return ctx.JSON(s.status())
}
