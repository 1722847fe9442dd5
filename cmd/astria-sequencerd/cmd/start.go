package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cosmossdk.io/log"
	abciserver "github.com/cometbft/cometbft/abci/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/astriaorg/astria-sequencer/app"
	"github.com/astriaorg/astria-sequencer/app/grpc/oracle"
	"github.com/astriaorg/astria-sequencer/app/grpc/sequencer"
	"github.com/astriaorg/astria-sequencer/app/metrics"
	"github.com/astriaorg/astria-sequencer/pkg/storage"
	"github.com/astriaorg/astria-sequencer/pkg/upgrades"
)

const shutdownTimeout = 5 * time.Second

// errUpgradeShutdown is the cancellation cause when the node stops ahead of
// an upgrade that needs a new binary.
var errUpgradeShutdown = errors.New("shutting down for upgrade")

func startCommand() *cobra.Command {
	v := newViper()
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the sequencer app, serving ABCI to CometBFT and the gRPC read API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			return runNode(cmd.Context(), cfg, logger)
		},
	}
	addConfigFlags(cmd.Flags(), DefaultConfig())
	return cmd
}

// runNode starts every service of the node and blocks until one of them
// fails, the process is signalled or an upgrade requires a restart.
func runNode(ctx context.Context, cfg Config, logger log.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	store, err := storage.Open(cfg.DBFilepath, storeCacheSize)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("closing storage", "err", err)
		}
	}()

	table := upgrades.Empty()
	if cfg.UpgradesFilepath != "" {
		if table, err = upgrades.Load(cfg.UpgradesFilepath); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	appMetrics := metrics.NewNop()
	if !cfg.NoMetrics {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		if appMetrics, err = metrics.New(reg); err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
	}

	opts := app.Options{
		Logger:   logger,
		Config:   cfg.AppConfig(),
		Storage:  store,
		Upgrades: table,
		Metrics:  appMetrics,
		OnShutdown: func(upgrade string) {
			cancel(fmt.Errorf("%w %s", errUpgradeShutdown, upgrade))
		},
	}
	if !cfg.NoPriceFeed {
		client, err := oracle.Dial(cfg.PriceFeedGRPCAddr)
		if err != nil {
			return err
		}
		defer client.Close()
		opts.Oracle = client
	}
	if cfg.CometBFTRPCAddr != "" {
		vals, err := app.NewCometValidators(cfg.CometBFTRPCAddr)
		if err != nil {
			return err
		}
		opts.Validators = vals
	}

	sequencerApp, err := app.New(opts)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serveABCI(gctx, cfg.ListenAddr, sequencerApp, logger) })
	g.Go(func() error { return serveGRPC(gctx, cfg.GRPCAddr, sequencerApp, logger) })
	g.Go(func() error { return sequencerApp.MaintainMempool(gctx, mempoolMaintenanceInterval) })
	if !cfg.NoMetrics {
		disk, err := metrics.NewDiskSpace(reg, cfg.DBFilepath, logger)
		if err != nil {
			return fmt.Errorf("registering disk space metrics: %w", err)
		}
		g.Go(func() error { return disk.Run(gctx) })
		g.Go(func() error { return serveMetrics(gctx, cfg.MetricsHTTPListenerAddr, reg, logger) })
	}

	err = g.Wait()
	if cause := context.Cause(ctx); errors.Is(cause, errUpgradeShutdown) {
		logger.Info("node stopped", "reason", cause.Error())
		return nil
	}
	return err
}

func serveABCI(ctx context.Context, addr string, a *app.App, logger log.Logger) error {
	srv, err := abciserver.NewServer(addr, "socket", a)
	if err != nil {
		return fmt.Errorf("creating abci server: %w", err)
	}
	srv.SetLogger(cometLogger{logger.With(log.ModuleKey, "abci_server")})
	if err := srv.Start(); err != nil {
		return fmt.Errorf("starting abci server on %s: %w", addr, err)
	}
	logger.Info("abci server listening", "addr", addr)
	<-ctx.Done()
	return srv.Stop()
}

func serveGRPC(ctx context.Context, addr string, a *app.App, logger log.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening for grpc on %s: %w", addr, err)
	}
	srv := sequencer.NewGRPCServer(a, logger.With(log.ModuleKey, "grpc"))
	go func() {
		<-ctx.Done()
		// block streams never finish on their own
		stopped := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(shutdownTimeout):
			srv.Stop()
		}
	}()
	logger.Info("grpc server listening", "addr", addr)
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger log.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info("metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
