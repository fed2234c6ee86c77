package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"jobmate/alert-service/internal/grpcserver"
	"jobmate/alert-service/internal/httpapi"
	"jobmate/alert-service/internal/scheduler"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve HTTP and gRPC and run alert batches on a schedule",
	RunE: func(_ *cobra.Command, _ []string) error {
		return serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve() error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := wire(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer d.close()

	sched, err := scheduler.New(d.runner, cfg.Schedules(), log.Named("scheduler"))
	if err != nil {
		return err
	}
	if err := sched.Start(ctx, cfg.RunOnStart); err != nil {
		return err
	}

	// ── HTTP ────────────────────────────────────────────────────────────────
	e := httpapi.NewHandler(d.service, d.runner, cfg.AdminToken, d.metrics.Handler(), log.Named("http")).NewServer()
	e.Server.ReadTimeout = 10 * time.Second

	// ── gRPC ────────────────────────────────────────────────────────────────
	gs := grpc.NewServer()
	grpcserver.Register(gs, grpcserver.NewServer(d.runner, d.service, cfg.AdminToken, log.Named("grpc")))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return err
	}

	v, rev := buildVersion()
	log.Info("alertd starting",
		zap.String("version", v),
		zap.String("revision", rev),
		zap.String("store", cfg.Store),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("grpc_port", cfg.GRPCPort),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := e.Start(":" + cfg.HTTPPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return gs.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		hs.Shutdown()
		sched.Stop(shutdownCtx)
		if err := e.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", zap.Error(err))
		}
		gs.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("stopped")
	return nil
}
