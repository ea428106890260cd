package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/vogiaan1904/regflow-gatekeeper/config"
	"github.com/vogiaan1904/regflow-gatekeeper/internal/infra/redis"
	"github.com/vogiaan1904/regflow-gatekeeper/internal/kafka"
	repo "github.com/vogiaan1904/regflow-gatekeeper/internal/repository/redis"
	"github.com/vogiaan1904/regflow-gatekeeper/internal/service"
	pkgKafka "github.com/vogiaan1904/regflow-gatekeeper/pkg/kafka"
	pkgLog "github.com/vogiaan1904/regflow-gatekeeper/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	l := pkgLog.InitializeZapLogger(pkgLog.ZapConfig{
		Level:    cfg.Log.Level,
		Mode:     cfg.Log.Mode,
		Encoding: cfg.Log.Encoding,
	})

	redisCli, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		l.Fatalf(ctx, "Failed to connect to Redis: %v", err)
	}
	defer redis.Disconnect(redisCli)

	entryRepo := repo.NewRedisEntryRepository(redisCli, cfg.Queue.EntryTTL, l)
	settingsRepo := repo.NewRedisSettingsRepository(redisCli, l)

	var prod kafka.Producer
	var cons *kafka.Consumer

	settingsSvc := service.NewSettingsService(settingsRepo, l)

	if cfg.Kafka.Enabled {
		syncProd, err := pkgKafka.NewProducer(pkgKafka.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			Version:      cfg.Kafka.Version,
			RetryMax:     cfg.Kafka.ProducerRetryMax,
			RequiredAcks: cfg.Kafka.ProducerRequiredAcks,
		}, l)
		if err != nil {
			l.Fatalf(ctx, "Failed to initialize Kafka producer: %v", err)
		}
		prod = kafka.NewProducer(syncProd, l)
		defer prod.Close()
	}

	admissionSvc := service.NewAdmissionService(entryRepo, settingsSvc, prod, l)
	sweeperSvc := service.NewSweeperService(entryRepo, settingsRepo, prod, l)

	if cfg.Kafka.Enabled {
		consGr, err := pkgKafka.NewConsumer(pkgKafka.ConsumerConfig{
			Brokers:       cfg.Kafka.Brokers,
			GroupID:       cfg.Kafka.ConsumerGroupID,
			Version:       cfg.Kafka.Version,
			InitialOffset: cfg.Kafka.ConsumerInitialOffset,
		}, l)
		if err != nil {
			l.Fatalf(ctx, "Failed to initialize Kafka consumer: %v", err)
		}
		cons = kafka.NewConsumer(consGr, admissionSvc, l)
		if err := cons.Start(ctx); err != nil {
			l.Fatalf(ctx, "Failed to start Kafka consumer: %v", err)
		}
		defer cons.Close()
	}

	runner := service.NewSweepRunner(sweeperSvc, service.RunnerConfig{
		Interval:        cfg.Sweep.Interval,
		ShutdownTimeout: cfg.Sweep.ShutdownTimeout,
	}, l)

	if err := runner.Start(ctx); err != nil {
		l.Fatalf(ctx, "Failed to start sweep runner: %v", err)
	}

	g, gCtx := errgroup.WithContext(ctx)

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}

		g.Go(func() error {
			l.Infof(gCtx, "Metrics listening on %s", cfg.Metrics.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info(ctx, "Sweeper shutting down...")

	if err := runner.Stop(); err != nil {
		l.Errorf(ctx, "Failed to stop sweep runner: %v", err)
	}

	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			l.Errorf(ctx, "Failed to shut down metrics server: %v", err)
		}
	}

	cancel()
	if err := g.Wait(); err != nil {
		l.Errorf(ctx, "Shutdown error: %v", err)
	}

	l.Info(context.Background(), "Sweeper exited")
}
