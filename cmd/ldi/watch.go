package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	grpcadapter "github.com/simaogato/wealthflow-ldi/internal/adapter/grpc"
)

func newWatchCmd(flags *globalFlags) *cobra.Command {
	var runOnStart bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-run every portfolio on a schedule and serve metrics and gRPC",
		Long: `Run every portfolio on the schedule.cron expression, expose Prometheus
metrics on metrics.addr and serve the LDIService gRPC API on grpc.addr until
interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			a, err := newApp(cmd.Context(), flags, reg)
			if err != nil {
				return err
			}
			defer a.Close()

			return watch(cmd.Context(), a, reg, runOnStart)
		},
	}

	cmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "Run every portfolio once before waiting for the schedule")
	return cmd
}

// watch serves until ctx is canceled
// Logic:
//  1. Register the batch run on the cron schedule
//  2. Serve /metrics over HTTP and the LDIService over gRPC
//  3. On cancellation stop the scheduler, waiting for a running batch, then the servers
func watch(ctx context.Context, a *app, reg *prometheus.Registry, runOnStart bool) error {
	log := a.logger.Named("watch")

	batch := func() {
		runCtx, cancel := context.WithTimeout(ctx, a.cfg.Run.Timeout)
		defer cancel()

		asOf, _ := parseAsOf("", time.Now)
		outcomes, err := a.runner.RunAll(runCtx, asOf)
		if err != nil {
			log.Error("batch run failed", zap.Error(err))
			return
		}
		failed := 0
		for _, o := range outcomes {
			if o.Err != nil {
				failed++
			}
		}
		log.Info("batch run finished", zap.Int("portfolios", len(outcomes)), zap.Int("failed", failed))
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(a.cfg.Schedule.Cron, batch); err != nil {
		return fmt.Errorf("register batch run: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	httpServer := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	var opts []grpclib.ServerOption
	if a.cfg.GRPC.Token != "" {
		opts = append(opts, grpclib.UnaryInterceptor(grpcadapter.AuthInterceptor(a.cfg.GRPC.Token, log)))
	} else {
		log.Warn("grpc.token is empty; the gRPC API accepts unauthenticated calls")
	}
	grpcServer := grpclib.NewServer(opts...)
	grpcadapter.Register(grpcServer, grpcadapter.NewServer(a.runner, a.store))
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", a.cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.GRPC.Addr, err)
	}

	if runOnStart {
		batch()
	}
	scheduler.Start()
	log.Info("scheduler started", zap.String("cron", a.cfg.Schedule.Cron))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("metrics server listening", zap.String("addr", a.cfg.Metrics.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("gRPC server listening", zap.String("addr", a.cfg.GRPC.Addr))
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("gRPC server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		<-scheduler.Stop().Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		grpcServer.GracefulStop()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
