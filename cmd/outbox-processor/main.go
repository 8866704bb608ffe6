package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"payments/internal/config"
	"payments/internal/db"
	"payments/internal/metrics"
	"payments/internal/outbox"
	"payments/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to a config file")
	metricsAddr := flag.String("metrics-addr", ":9091", "address for the metrics endpoint, empty to disable")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.ValidateOutbox(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	logger, err := cfg.Log.NewLogger(os.Stdout)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if *metricsAddr != "" {
		srv := &http.Server{Addr: *metricsAddr, Handler: metrics.Handler(reg), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
		defer srv.Close()
	}

	publisher := outbox.NewKafkaPublisher(cfg.Outbox.Brokers, cfg.Outbox.Topic)
	defer publisher.Close()

	relay := outbox.NewRelay(store.New(pool), publisher, outbox.Options{
		Interval:  cfg.Outbox.Interval,
		BatchSize: cfg.Outbox.BatchSize,
	}, m, logger)

	if err := relay.Run(ctx); err != nil {
		logger.Error("outbox relay failed", "error", err)
	}
}
