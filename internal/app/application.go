// Package app wires the relay server together: config, history log,
// registry, relay, coordinator, transport, and HTTP surface, with a
// deterministic start and stop order.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"slidecast/internal/api"
	"slidecast/internal/config"
	"slidecast/internal/coordinator"
	"slidecast/internal/history"
	"slidecast/internal/observability"
	"slidecast/internal/relay"
	"slidecast/internal/session"
	"slidecast/internal/websocket"
)

// Application owns every long-lived server component.
type Application struct {
	cfg *config.Config

	historyStore *history.Store
	registry     *session.Registry
	table        *websocket.Table
	coordinator  *coordinator.Coordinator
	httpServer   *http.Server
}

// NewApplication builds the component graph in dependency order:
// history → registry → relay → coordinator → transport → HTTP.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	observability.RegisterMetrics()

	var (
		historyStore  *history.Store
		recorder      relay.Recorder
		historyReader api.HistoryReader
	)
	if cfg.History.Enabled {
		store, err := history.NewStore(cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open relay event log: %w", err)
		}
		historyStore = store
		recorder = store
		historyReader = store
	}

	registry := session.NewRegistry()
	table := websocket.NewTable()
	rly := relay.NewRelay(registry, table, recorder)
	coord := coordinator.NewCoordinator(rly)

	wsHandler := websocket.NewHandler(coord, websocket.Options{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		SendBuffer:   cfg.WebSocket.SendBuffer,
		JoinTimeout:  cfg.WebSocket.JoinTimeout,
	})

	apiServer := api.NewServer(registry, historyReader)
	engine := apiServer.Router(cfg.Mode, wsHandler.ServeWS)

	httpServer := &http.Server{
		Addr:    cfg.Addr(),
		Handler: engine,
		// No WriteTimeout: it would sever long-lived WebSocket
		// connections on the same listener.
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Application{
		cfg:          cfg,
		historyStore: historyStore,
		registry:     registry,
		table:        table,
		coordinator:  coord,
		httpServer:   httpServer,
	}, nil
}

// Start launches the coordinator and the HTTP listener. It returns once the
// listener is accepting connections or fails to bind.
func (a *Application) Start(ctx context.Context) error {
	log.Info().Str("module", "app").Str("addr", a.httpServer.Addr).Msg("starting slidecast relay")

	if err := a.coordinator.Start(ctx); err != nil {
		return fmt.Errorf("failed to start coordinator: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		_ = a.coordinator.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Info().Str("module", "app").Msg("slidecast relay started")
		return nil
	case <-ctx.Done():
		_ = a.coordinator.Stop()
		return ctx.Err()
	}
}

// Stop shuts everything down in reverse order: listener, coordinator,
// event log.
func (a *Application) Stop(ctx context.Context) error {
	log.Info().Str("module", "app").Msg("shutting down slidecast relay")

	if err := a.httpServer.Shutdown(ctx); err != nil {
		log.Warn().Str("module", "app").Err(err).Msg("http shutdown error")
	}

	if err := a.coordinator.Stop(); err != nil && err != coordinator.ErrNotRunning {
		log.Warn().Str("module", "app").Err(err).Msg("coordinator shutdown error")
	}

	if a.historyStore != nil {
		if err := a.historyStore.Close(); err != nil {
			log.Warn().Str("module", "app").Err(err).Msg("event log shutdown error")
		}
	}

	log.Info().Str("module", "app").Msg("shutdown complete")
	return nil
}

// Addr returns the listen address.
func (a *Application) Addr() string {
	return a.httpServer.Addr
}
