// Package api serves the dispatcher's operational HTTP endpoints.
package api

import (
	"context"
	"time"

	"autotrade/internal/accounts"
	"autotrade/internal/interfaces"
	"autotrade/internal/logger"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
)

type Options struct {
	Addr   string
	DryRun bool // process-wide flag, OR-ed with each account's own
	// Registerer receives the HTTP request metrics.
	Registerer prometheus.Registerer
}

type Server struct {
	app      *fiber.App
	opts     Options
	engine   interfaces.Engine
	accounts *accounts.Registry
}

type accountView struct {
	Name     string `json:"name"`
	DryRun   bool   `json:"dry_run"`
	Exchange string `json:"exchange,omitempty"`
}

func New(opts Options, eng interfaces.Engine, reg *accounts.Registry) *Server {
	if opts.Registerer == nil {
		opts.Registerer = prometheus.DefaultRegisterer
	}
	s := &Server{
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
			ReadTimeout:           10 * time.Second,
			WriteTimeout:          10 * time.Second,
		}),
		opts:     opts,
		engine:   eng,
		accounts: reg,
	}

	prom := fiberprometheus.NewWithRegistry(opts.Registerer, "autotrade", "autotrade", "ops", nil)
	prom.RegisterAt(s.app, "/metrics")
	s.app.Use(prom.Middleware)
	s.app.Use(requestLogger)

	s.app.Get("/healthz", s.health)
	s.app.Get("/accounts", s.listAccounts)
	s.app.Get("/signals/active", s.activeSignals)
	s.app.Post("/signals/:id/cancel", s.cancelSignal)
	return s
}

func (s *Server) App() *fiber.App { return s.app }

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() { errc <- s.app.Listen(s.opts.Addr) }()
	logger.Info(ctx, "Ops server listening", "addr", s.opts.Addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		if err := s.app.Shutdown(); err != nil {
			return err
		}
		logger.Info(context.WithoutCancel(ctx), "Ops server stopped")
		return nil
	}
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"accounts": s.accounts.Len(),
		"active":   len(s.engine.Active()),
	})
}

func (s *Server) listAccounts(c *fiber.Ctx) error {
	accts := s.accounts.Accounts()
	out := make([]accountView, 0, len(accts))
	for _, a := range accts {
		out = append(out, accountView{
			Name:     a.Name(),
			DryRun:   s.opts.DryRun || a.Config.DryRun,
			Exchange: a.Config.Exchange,
		})
	}
	return c.JSON(out)
}

func (s *Server) activeSignals(c *fiber.Ctx) error {
	return c.JSON(s.engine.Active())
}

// cancelSignal answers 404 for an unknown id and 409 for a flow that is
// already placing orders.
func (s *Server) cancelSignal(c *fiber.Ctx) error {
	id := c.Params("id")
	if s.engine.Cancel(id) {
		return c.JSON(fiber.Map{"signal_id": id, "cancelled": true})
	}
	for _, f := range s.engine.Active() {
		if f.SignalID == id {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"signal_id": id,
				"error":     "signal is already " + string(f.State),
			})
		}
	}
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"signal_id": id,
		"error":     "no active flow for signal",
	})
}

func requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	logger.Debug(c.UserContext(), "Ops request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return err
}
