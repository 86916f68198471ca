// Package server wires together Store, Rendezvous, the event bus, the
// HTTP/stdio transports, and the terminal controller into the single
// process tinymem runs as, and owns the background sweep ticker and
// orderly shutdown sequence.
package server

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/advpropsys/tinymem/internal/api"
	"github.com/advpropsys/tinymem/internal/config"
	"github.com/advpropsys/tinymem/internal/eventbus"
	"github.com/advpropsys/tinymem/internal/logging"
	"github.com/advpropsys/tinymem/internal/model"
	"github.com/advpropsys/tinymem/internal/rendezvous"
	"github.com/advpropsys/tinymem/internal/store"
	"github.com/advpropsys/tinymem/internal/tui"
)

// Server owns every long-lived component and the goroutines that run
// them. New wires dependencies; Run blocks until shutdown.
type Server struct {
	cfg *config.Config
	log logging.Logger

	store      *store.Store
	bus        *eventbus.Bus
	rendezvous *rendezvous.Rendezvous
	svc        *api.Service
}

// New builds every component but starts nothing.
func New(cfg *config.Config, log logging.Logger) (*Server, error) {
	st, err := store.New(store.Options{
		URL:         cfg.Redis.URL,
		MappingTTL:  cfg.Rendezvous.MappingTTL,
		ArtifactCap: cfg.Artifact.MaxBytes,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	bus := eventbus.New(0)
	rz := rendezvous.New(st, bus, log)
	svc := api.NewService(st, rz, bus, log, cfg.Rendezvous.Deadline)

	return &Server{cfg: cfg, log: log, store: st, bus: bus, rendezvous: rz, svc: svc}, nil
}

// Run starts the sweep ticker and then one of three foreground modes:
// --mcp serves the stdio tool protocol alone, in place of HTTP and the
// TUI; --headless serves HTTP alone; otherwise HTTP runs alongside the
// TUI, which owns the foreground. It returns the process exit code per
// the documented contract: 0 on orderly shutdown, 2 on bind failure.
func (s *Server) Run(ctx context.Context) int {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sweepDone := s.runSweepLoop(ctx)
	defer func() { <-sweepDone }()

	if s.cfg.Stdio.MCP {
		stdio := api.NewStdioServer(s.svc, s.cfg.Stdio.Session)
		err := stdio.Run(ctx)
		cancel()
		s.shutdown(context.Background())
		if err != nil {
			s.log.Error("server", "stdio reader exited", map[string]any{"error": err.Error()})
			return 1
		}
		return 0
	}

	httpErrCh := s.runHTTP(ctx)

	if s.cfg.HTTP.Headless {
		select {
		case err := <-httpErrCh:
			s.log.Error("server", "http listener failed to bind", map[string]any{"error": err.Error()})
			cancel()
			s.shutdown(context.Background())
			return 2
		case <-ctx.Done():
			s.shutdown(context.Background())
			return 0
		}
	}

	bindFailed := make(chan struct{})
	tuiCtx, cancelTUIOnBindFailure := context.WithCancel(ctx)
	defer cancelTUIOnBindFailure()
	go func() {
		select {
		case err := <-httpErrCh:
			s.log.Error("server", "http listener failed to bind", map[string]any{"error": err.Error()})
			close(bindFailed)
			cancelTUIOnBindFailure()
		case <-ctx.Done():
		}
	}()

	exitCode := s.runTUI(tuiCtx)
	cancel()
	s.shutdown(context.Background())

	select {
	case <-bindFailed:
		return 2
	default:
		return exitCode
	}
}

func (s *Server) runSweepLoop(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.cfg.Rendezvous.SweepPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.rendezvous.Sweep(ctx, s.cfg.Rendezvous.Deadline, time.Now().Unix())
			}
		}
	}()
	return done
}

func (s *Server) runHTTP(ctx context.Context) chan error {
	app := api.NewHTTPServer(s.svc, api.HTTPConfig{
		Token:          s.cfg.HTTP.Token,
		CorsOrigins:    "*",
		BodyLimitBytes: 10 * 1024 * 1024,
	})
	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", s.cfg.HTTP.Port)
		if err := app.Listen(addr); err != nil {
			errCh <- err
		}
	}()
	go func() {
		<-ctx.Done()
		_ = app.ShutdownWithTimeout(5 * time.Second)
	}()
	return errCh
}

// runTUI runs the terminal controller in the foreground. 'q' triggers
// onQuit, which cancels this function's own child context so the
// program is told to quit; once the program returns, Run cancels the
// shared context and the other goroutines begin shutting down.
func (s *Server) runTUI(ctx context.Context) int {
	ctx, cancelTUI := context.WithCancel(ctx)
	defer cancelTUI()

	model := tui.New(s.store, s.rendezvous, s.bus, func() int64 { return time.Now().Unix() }, cancelTUI)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())

	go func() {
		<-ctx.Done()
		program.Quit()
	}()

	if _, err := program.Run(); err != nil {
		s.log.Error("server", "tui exited with error", map[string]any{"error": err.Error()})
		return 1
	}
	return 0
}

// shutdown drains every question still pending as expired, flushes
// the logger, and closes the Store's connection pool, in that order,
// per the controller's documented 'q' behavior: close API, drain
// pending waiters with expired, flush, exit 0.
func (s *Server) shutdown(ctx context.Context) {
	pending, err := s.store.GlobalPendingQuestions(ctx)
	if err == nil {
		ids := make([]string, 0, len(pending))
		for _, q := range pending {
			ids = append(ids, q.ID)
		}
		if len(ids) > 0 {
			now := time.Now().Unix()
			actuallyExpired := make([]string, 0, len(ids))
			for _, id := range ids {
				q, err := s.store.ExpireQuestion(ctx, id, now)
				if err == nil && q.State == model.QuestionExpired {
					actuallyExpired = append(actuallyExpired, id)
				}
			}
			s.rendezvous.ExpireForDone(ctx, actuallyExpired)
		}
	}
	_ = s.log.Sync()
	_ = s.store.Close()
}
