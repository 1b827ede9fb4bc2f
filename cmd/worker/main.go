package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/tagrel/internal/queue"
	"github.com/OFFIS-RIT/tagrel/internal/scheduler"
	"github.com/OFFIS-RIT/tagrel/internal/server"
	"github.com/OFFIS-RIT/tagrel/internal/storage"
	"github.com/OFFIS-RIT/tagrel/internal/util"
	"github.com/OFFIS-RIT/tagrel/pkg/engine"
	"github.com/OFFIS-RIT/tagrel/pkg/leaselock"
	"github.com/OFFIS-RIT/tagrel/pkg/logger"
	"github.com/OFFIS-RIT/tagrel/pkg/logger/console"
	"github.com/OFFIS-RIT/tagrel/pkg/notify"
	"github.com/OFFIS-RIT/tagrel/pkg/rewrite"
	pgxstore "github.com/OFFIS-RIT/tagrel/pkg/store/pgx"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/semaphore"
)

type workerStats struct {
	started   time.Time
	inFlight  atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	sched     *scheduler.Scheduler
}

func (s *workerStats) Stats() any {
	return map[string]any{
		"uptime_sec": int64(time.Since(s.started).Seconds()),
		"in_flight":  s.inFlight.Load(),
		"processed":  s.processed.Load(),
		"failed":     s.failed.Load(),
		"tasks":      s.sched.Tasks(),
	}
}

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: util.GetEnvBool("DEBUG", false),
		JSON:  util.GetEnvBool("LOG_JSON", false),
	})
	logger.Init(consoleLogger)

	// Init pgx client
	pgConn, err := pgxpool.New(ctx, util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pgConn.Close()

	// Init rabbitmq
	conn := queue.Init()
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	defer ch.Close()

	if err := queue.SetupQueues(ch, []string{queue.JobQueue}); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	opts := []engine.Option{
		engine.WithLocker(leaselock.New(pgConn)),
		engine.WithForumNotifier(notify.NewAMQPNotifier(ch)),
		engine.WithDispatcher(queue.NewDispatcher(ch)),
	}
	if s3Client := storage.NewS3Client(ctx); s3Client != nil {
		opts = append(opts, engine.WithArchiver(storage.NewUndoArchive(s3Client, util.GetEnv("AWS_BUCKET"))))
		logger.Info("Undo snapshots are archived to S3", "bucket", util.GetEnv("AWS_BUCKET"))
	}

	executor := engine.New(pgxstore.New(pgConn), loadConfig(), opts...)

	// maintenance
	sched := scheduler.New(30 * time.Minute)
	schedule := util.GetEnvString("MAINTENANCE_SCHEDULE", "0 */15 * * * *")
	tasks := map[string]scheduler.TaskFunc{
		"recover_stale": func(ctx context.Context) error {
			n, err := executor.RecoverStale(ctx)
			logger.Debug("[Maintenance] Recovered stale relationships", "count", n)
			return err
		},
		"fix_nonzero_counts": func(ctx context.Context) error {
			n, err := executor.FixNonzeroCounts(ctx)
			logger.Debug("[Maintenance] Fixed antecedent counts", "count", n)
			return err
		},
		"refresh_post_counts": func(ctx context.Context) error {
			n, err := executor.RefreshPostCounts(ctx)
			logger.Debug("[Maintenance] Refreshed post counts", "count", n)
			return err
		},
	}
	for name, task := range tasks {
		if err := sched.AddCronTask(name, schedule, task); err != nil {
			logger.Fatal("Invalid maintenance schedule", "schedule", schedule, "err", err)
		}
	}
	sched.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		sched.Stop(stopCtx)
	}()

	stats := &workerStats{started: time.Now(), sched: sched}
	go server.New(util.GetEnvString("WORKER_PORT", "8081"), stats).Start(ctx)

	concurrency := max(int(util.GetEnvNumeric("WORKER_CONCURRENCY", 4)), 1)

	consumerCh, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open consumer channel", "err", err)
	}
	defer consumerCh.Close()

	// prefetch matches the number of jobs processed in parallel
	if err := consumerCh.Qos(concurrency, 0, false); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	msgs, err := consumerCh.Consume(
		queue.JobQueue,
		fmt.Sprintf("%s_consumer", queue.JobQueue),
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		logger.Fatal("Failed to start consuming", "queue", queue.JobQueue, "err", err)
	}

	logger.Info("Listening for messages", "queue", queue.JobQueue, "concurrency", concurrency)

	sem := semaphore.NewWeighted(int64(concurrency))
	var wg sync.WaitGroup

consume:
	for {
		select {
		case <-ctx.Done():
			break consume
		case msg, ok := <-msgs:
			if !ok {
				logger.Info("Message channel closed", "queue", queue.JobQueue)
				break consume
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				_ = msg.Nack(false, true)
				break consume
			}
			wg.Add(1)
			go func(msg amqp.Delivery) {
				defer wg.Done()
				defer sem.Release(1)
				handle(ctx, executor, consumerCh, msg, stats)
			}(msg)
		}
	}

	logger.Info("Shutdown signal received, waiting for running jobs...")
	wg.Wait()
	logger.Info("Exiting")
}

func handle(ctx context.Context, executor *engine.Executor, ch queue.Channel, msg amqp.Delivery, stats *workerStats) {
	stats.inFlight.Add(1)
	defer stats.inFlight.Add(-1)

	start := time.Now()
	err := queue.ProcessJobMessage(ctx, executor, msg.Body)
	if err != nil {
		stats.failed.Add(1)
	} else {
		stats.processed.Add(1)
	}
	// settle with a fresh context so shutdown does not strand the delivery
	queue.HandleDelivery(context.WithoutCancel(ctx), ch, msg, queue.JobQueue, err)

	duration := time.Since(start)
	logger.Info(
		"Processing time",
		"duration", fmt.Sprintf("%02d:%02d:%02d", int(duration.Hours()), int(duration.Minutes())%60, int(duration.Seconds())%60),
	)
}

func loadConfig() engine.Config {
	return engine.Config{
		MaxRetries: int(util.GetEnvNumeric("PROCESS_MAX_RETRIES", engine.DefaultMaxRetries)),
		BaseDelay:  time.Duration(util.GetEnvNumeric("PROCESS_BASE_DELAY_MS", 2000)) * time.Millisecond,
		StaleAfter: time.Duration(util.GetEnvNumeric("STALE_PROCESSING_MINUTES", 30)) * time.Minute,
		Rewrite: rewrite.Config{
			BatchSize:            int(util.GetEnvNumeric("REWRITE_BATCH_SIZE", rewrite.DefaultBatchSize)),
			CategoryChangeCutoff: int64(util.GetEnvNumeric("ALIAS_CATEGORY_CHANGE_CUTOFF", rewrite.DefaultCategoryChangeCutoff)),
		},
		Lease: leaselock.Options{
			TTL:         5 * time.Minute,
			TokenPrefix: "worker/",
		},
	}
}
