package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/llmer/x402-demo/internal/config"
	"github.com/llmer/x402-demo/server"
)

func main() {
	root := &cobra.Command{
		Use:          "x402-demo",
		Short:        "Pay-per-request x402 demo gateway",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		RunE:  runServe,
	}

	serveCmd.Flags().String("listen", ":8402", "HTTP listen address")
	serveCmd.Flags().String("site-url", "http://localhost:8402", "public site URL (origin used in the discovery document)")
	serveCmd.Flags().String("facilitator", "https://x402.org/facilitator", "facilitator base URL")
	serveCmd.Flags().String("rpc", "https://sepolia.base.org", "Base Sepolia RPC URL")
	serveCmd.Flags().String("payto", "", "payment recipient address (defaults to the facilitator key's address)")
	serveCmd.Flags().String("redis-url", "", "redis URL for the rate-limit counter store (empty disables rate limiting)")
	serveCmd.Flags().Duration("drain-timeout", 0, "graceful shutdown budget")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	srv, err := server.New(server.Config{
		ListenAddr:     cfg.ListenAddr,
		SiteURL:        cfg.SiteURL,
		FacilitatorURL: cfg.FacilitatorURL,
		RPCURL:         cfg.RPCURL,
		PrivateKey:     cfg.PrivateKey,
		PayTo:          cfg.PayTo,
		RedisURL:       cfg.RedisURL,
		DrainTimeout:   cfg.DrainTimeout,
	}, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
