package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"payments/internal/checkout"
	"payments/internal/db"
	"payments/internal/identity"
	"payments/internal/metrics"
	"payments/internal/processor"
	"payments/internal/server"
	"payments/internal/store"
)

func serveCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the payments HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if migrate {
				if err := db.Migrate(cfg.Database.URL); err != nil {
					return err
				}
				logger.Info("migrations applied")
			}

			pool, err := db.NewPool(ctx, cfg.Database.URL)
			if err != nil {
				return err
			}
			defer pool.Close()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m := metrics.New(reg)

			st := store.New(pool)
			auth := identity.NewVerifier(identity.Options{
				Secret:   cfg.Auth.JWTSecret,
				Audience: cfg.Auth.Audience,
				Issuer:   cfg.Auth.Issuer,
			})
			proc := processor.NewClient(processor.Config{
				SecretKey:           cfg.Processor.SecretKey,
				Currency:            cfg.Processor.Currency,
				EphemeralKeyVersion: cfg.Processor.EphemeralKeyVersion,
			})
			verifier := processor.NewWebhookVerifier(cfg.Processor.WebhookSecret, cfg.Processor.WebhookTolerance)

			issuer := checkout.NewIssuer(auth, st, proc, checkout.IssuerOptions{
				RejectUnknownItems: cfg.Checkout.RejectUnknownItems,
			}, logger)
			reconciler := checkout.NewReconciler(verifier, st, logger)
			handlers := checkout.NewHandlers(issuer, reconciler, m, logger)

			srv := server.New(handlers, st, m, reg, server.Options{
				Addr:            cfg.HTTP.Addr,
				ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
				RateLimit:       cfg.HTTP.RateLimit,
				RateBurst:       cfg.HTTP.RateBurst,
			}, logger)
			return srv.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before serving")
	return cmd
}
