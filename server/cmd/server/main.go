package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/portwatch/portwatch/pkg/reservationrpc"
	"github.com/portwatch/portwatch/pkg/types"
	"github.com/portwatch/portwatch/server/internal/alerts"
	"github.com/portwatch/portwatch/server/internal/api"
	"github.com/portwatch/portwatch/server/internal/auth"
	"github.com/portwatch/portwatch/server/internal/config"
	"github.com/portwatch/portwatch/server/internal/lease"
	"github.com/portwatch/portwatch/server/internal/metrics"
	"github.com/portwatch/portwatch/server/internal/monitor"
	"github.com/portwatch/portwatch/server/internal/rpc"
	"github.com/portwatch/portwatch/server/internal/store"
	"github.com/portwatch/portwatch/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("portwatch-server starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.Server.SlogLevel())

	slog.Info("config loaded",
		"grpc_port", cfg.Server.GRPCPort,
		"http_port", cfg.Server.HTTPPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"timezone", cfg.Server.Timezone,
		"lease_duration", cfg.Server.Lease.Duration,
		"lease_backend", cfg.Server.Lease.Backend,
		"store", cfg.Server.Store.Path,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, cfg, level); err != nil {
		slog.Error("portwatch-server stopped", "err", err)
		os.Exit(1)
	}
	slog.Info("portwatch-server stopped")
}

func run(ctx context.Context, configPath string, cfg *config.Config, level *slog.LevelVar) error {
	sc := cfg.Server
	m := metrics.New()

	// Activity store, seeded from the configured portfolio list.
	st, err := store.Open(ctx, sc.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	if len(sc.Portfolios) > 0 {
		seeds := make([]types.Portfolio, 0, len(sc.Portfolios))
		for _, p := range sc.Portfolios {
			seeds = append(seeds, types.Portfolio{ID: p.ID, Name: p.Name, AllSitesChecked: true})
		}
		n, err := st.Seed(ctx, seeds)
		if err != nil {
			return fmt.Errorf("seed portfolios: %w", err)
		}
		slog.Info("portfolios seeded", "configured", len(seeds), "created", n)
	}

	backend, err := newBackend(ctx, sc.Lease.Backend, st)
	if err != nil {
		return err
	}
	leases := lease.NewManager(backend, sc.Lease.Duration,
		lease.WithCatalog(st),
		lease.WithMetrics(m),
		lease.WithSweepInterval(sc.Lease.SweepInterval),
	)

	svc := monitor.New(st, leases,
		monitor.WithLocation(sc.Location()),
		monitor.WithMetrics(m),
	)
	alertEngine := alerts.New(sc.Alerts, m)
	hub := ws.New(svc, sc.Board.Interval, m)
	guard := auth.NewGuard(sc.Auth.Mode, sc.Auth.EffectiveHeader(), sc.Auth.Key())
	if sc.Auth.Mode == "apikey" && !guard.Enabled() {
		slog.Warn("auth mode is apikey but the key is empty; requests are not authenticated",
			"key_env", sc.Auth.KeyEnv)
	}

	// gRPC reservation service.
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(guard.UnaryInterceptor()))
	reservationrpc.RegisterReservationServer(grpcSrv, rpc.New(leases))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", sc.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen on gRPC port %d: %w", sc.GRPCPort, err)
	}

	// Combined HTTP server: REST API, WebSocket hub and metrics on HTTPPort.
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", api.New(svc, alertEngine, m))
	httpMux.Handle("/ws/stream", hub)
	httpMux.Handle("/metrics", m.Handler())

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", sc.HTTPPort),
		Handler:           guard.Middleware(httpMux, "/api/v1/health", "/metrics"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("gRPC reservation service listening", "port", sc.GRPCPort)
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		slog.Info("HTTP server listening", "port", sc.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		leases.Run(gctx)
		return nil
	})
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		alertEngine.Run(gctx, svc, sc.Alerts.Interval)
		return nil
	})
	g.Go(func() error {
		err := config.Watch(gctx, configPath, func(next *config.Config) {
			level.Set(next.Server.SlogLevel())
			leases.SetLeaseDuration(next.Server.Lease.Duration)
			alertEngine.Reload(next.Server.Alerts)
			slog.Info("config reloaded",
				"log_level", next.Server.LogLevel,
				"lease_duration", next.Server.Lease.Duration,
				"alert_rules", len(next.Server.Alerts.Rules),
			)
		})
		if err != nil {
			// Hot reload is optional; keep serving with the startup config.
			slog.Warn("config watch disabled", "err", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("portwatch-server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcSrv.GracefulStop()
		return httpSrv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	alertEngine.Wait()
	return err
}

// newBackend picks the reservation backend. The sqlite backend shares the
// activity store's database so every server pointed at the same file sees
// the same leases.
func newBackend(ctx context.Context, kind string, st *store.SQLite) (lease.Backend, error) {
	switch kind {
	case "sqlite":
		return lease.NewSQLite(ctx, st.DB())
	default:
		return lease.NewMemory(), nil
	}
}
