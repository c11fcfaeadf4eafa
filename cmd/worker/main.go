package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"batchexport/internal/artifactindex"
	"batchexport/internal/artifactstore"
	"batchexport/internal/clock"
	"batchexport/internal/config"
	"batchexport/internal/executor"
	"batchexport/internal/exportproc"
	"batchexport/internal/finalizer"
	"batchexport/internal/lease"
	"batchexport/internal/poller"
	"batchexport/internal/pollhint"
	"batchexport/internal/retry"
	"batchexport/internal/store"
	"batchexport/internal/telemetry"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	realClock := clock.Real{}
	workerID := clock.WorkerID()

	reuseIndex, err := artifactindex.New(st, realClock, cfg.ReuseEnabled, cfg.ReuseDays, cfg.Timezone)
	if err != nil {
		log.Fatalf("build artifact index: %v", err)
	}

	s3Client, err := artifactstore.NewS3Client(ctx, cfg)
	if err != nil {
		log.Fatalf("build s3 client: %v", err)
	}
	uploader := artifactstore.NewS3Uploader(s3Client, cfg.StorageBucket)

	source := exportproc.NewPostgresSource(st.Pool(), cfg.ExportFunctionName)

	leaseMgr := lease.New(st, realClock, cfg.LeaseSeconds)
	retryPolicy := retry.New(cfg.RetryMaxAttempts,
		time.Duration(cfg.RetryBaseDelayMs)*time.Millisecond,
		time.Duration(cfg.RetryMaxDelayMs)*time.Millisecond)

	finalize := finalizer.New(st, realClock, time.Duration(cfg.FinalizerIntervalMs)*time.Millisecond)

	exec := executor.New(st, reuseIndex, source, uploader, leaseMgr, retryPolicy,
		retry.DefaultClassifier, finalize, realClock, cfg.StorageBasePath, workerID)

	pollerCfg := poller.Config{
		BatchSize:    cfg.PollBatchSize,
		PollInterval: time.Duration(cfg.PollIntervalMs) * time.Millisecond,
		MaxInFlight:  cfg.WorkerMaxInFlight,
	}
	p := poller.New(st, leaseMgr, exec, realClock, pollerCfg, workerID)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	hintSub := pollhint.Subscribe(ctx, redisClient, cfg.PollHintChan)
	defer hintSub.Close()
	p = p.WithWakeChannel(hintSub.C())

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			log.Printf("metrics server stopped: %v", err)
		}
	}()

	go func() {
		if err := finalize.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("finalizer stopped: %v", err)
		}
	}()

	log.Printf("worker %s started with lease=%ds poll_interval=%dms", workerID, cfg.LeaseSeconds, cfg.PollIntervalMs)
	if err := p.Run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("poller stopped: %v", err)
	}
}
