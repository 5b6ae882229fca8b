package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/vitwit/payless"
	"github.com/vitwit/payless/clients"
	"github.com/vitwit/payless/logger"
	"github.com/vitwit/payless/metrics"
	"github.com/vitwit/payless/types"
)

const shutdownTimeout = 15 * time.Second

var (
	configPath  string
	envFile     string
	listenAddr  string
	staticTiers bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway with the demo priced endpoints and the admin API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath, envFile)
		if err != nil {
			return err
		}
		if listenAddr != "" {
			cfg.ListenAddr = listenAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServer(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a JSON config file (defaults are used when empty)")
	serveCmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before applying environment overrides")
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "listen address, overrides LISTEN_ADDR and the config")
	serveCmd.Flags().BoolVar(&staticTiers, "static-balances", false, "answer tier lookups from an empty in-memory balance table instead of RPC")
}

func runServer(ctx context.Context, cfg *types.Config) error {
	zl, err := logger.NewZapLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec, err := metrics.NewPrometheusRecorder(reg)
	if err != nil {
		return err
	}

	opts := []payless.Option{payless.WithLogger(zl), payless.WithMetrics(rec)}
	if staticTiers {
		opts = append(opts, payless.WithBalanceClient(clients.NewStaticClient(cfg.TokenGate.Chain)))
	}
	p, err := payless.New(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	p.Start()

	for _, c := range cfg.Chains {
		if c.Recipient == "" {
			zl.Warn("no recipient configured, payments on this chain will be rejected", map[string]any{"chain": c.Chain})
		}
	}

	mux := http.NewServeMux()
	p.Mount(mux, Version, demoHandlers())
	mountTierRoutes(mux, p)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("payless listening", map[string]any{"addr": cfg.ListenAddr, "version": Version})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		zl.Info("shutting down", nil)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		zl.Warn("http server did not shut down cleanly", map[string]any{"error": serr})
	}
	if cerr := p.Close(shutdownCtx); cerr != nil {
		zl.Warn("webhook deliveries still in flight at shutdown", map[string]any{"error": cerr})
	}
	return err
}
