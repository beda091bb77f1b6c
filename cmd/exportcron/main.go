package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/davolpi-it/export-cron/internal/analytics"
	"github.com/davolpi-it/export-cron/internal/bus"
	"github.com/davolpi-it/export-cron/internal/config"
	"github.com/davolpi-it/export-cron/internal/connections"
	"github.com/davolpi-it/export-cron/internal/delivery"
	"github.com/davolpi-it/export-cron/internal/executor"
	"github.com/davolpi-it/export-cron/internal/history"
	"github.com/davolpi-it/export-cron/internal/metrics"
	"github.com/davolpi-it/export-cron/internal/queryrun"
	"github.com/davolpi-it/export-cron/internal/report"
	"github.com/davolpi-it/export-cron/internal/scheduler"
	"github.com/davolpi-it/export-cron/internal/transport/channel"
	"github.com/davolpi-it/export-cron/internal/trigger"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess       = 0
	exitRuntimeError  = 1
	exitInvalidConfig = 2
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitRuntimeError)
	}

	cmd := os.Args[1]

	switch cmd {
	case "serve":
		os.Exit(runServe())
	case "validate":
		os.Exit(runValidate())
	case "config":
		os.Exit(runConfig())
	case "version":
		os.Exit(runVersion())
	case "--help", "-h", "help":
		printUsage()
		os.Exit(exitSuccess)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(exitRuntimeError)
	}
}

func printUsage() {
	fmt.Println(`exportcron - scheduled query export and delivery service

Usage:
  exportcron <command>

Commands:
  serve      Start the scheduler and executors
  validate   Validate configuration (no connections made)
  config     Print effective configuration as JSON (secrets masked)
  version    Print version information

Environment Variables:
  EXPORT_DIR                  Export root directory (required)
  CONNECTIONS_FILE            Path to the configuration document (required)
  QUERIES_DIR                 Directory holding the .sql catalog (required)
  TICK_INTERVAL               Scheduler tick interval (default: "30s")
  WORKERS                     Executor worker count (default: "1")
  EVENTBUS_BUFFER_SIZE        Fire event buffer size (default: "100")

  SCHEDULER_QUERY_TIMEOUT_SEC Query stage timeout in seconds (default: "300")
  SCHEDULER_WRITE_TIMEOUT_SEC Artifact write timeout in seconds (default: "120")

  RETRY_ENABLED               Re-fire failed jobs (default: "true")
  RETRY_DELAY_MINUTES         Delay before a retry fire (default: "30")
  RETRY_MAX_ATTEMPTS          Max retry fires per failure chain (default: "3")

  BUS_MAX_RETRIES             Publish attempts per batch (default: "3")
  BUS_RETRY_BACKOFF_MS        Base backoff between attempts (default: "100")
  BUS_SUCCESS_THRESHOLD       Success-rate threshold in percent (default: "95")
  BUS_RANDOM_KEY_FALLBACK     Random key for rows missing the key field (default: "true")

  EXPORT_RETENTION_DAYS       Days to keep compressed exports (default: "30")
  METRICS_RETENTION_DAYS      Days to keep publish metric entries (default: "90", min 7)

  METRICS_ENABLED             Enable Prometheus metrics (default: "false")
  METRICS_PATH                Metrics endpoint path (default: "/metrics")
  HTTP_ADDR                   Metrics server address (default: ":8080")
  REDIS_ADDR                  Redis address for analytics counters (optional)

  SMTP_HOST / SMTP_PORT       SMTP relay (optional; email jobs keep artifacts when unset)
  SMTP_USER / SMTP_PASSWORD   SMTP credentials (optional)
  SMTP_FROM                   Sender address

  DAILY_REPORT_ENABLED        Send the daily execution report (default: "false")
  DAILY_REPORT_CRON           Report cron spec (default: "0 6 * * *")
  DAILY_REPORT_RECIPIENTS     Report To list, pipe-separated
  DAILY_REPORT_CC             Report CC list, pipe-separated
  DAILY_REPORT_SUBJECT        Report subject (default: "Report schedulazioni")`)
}

func runServe() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitInvalidConfig
	}

	provider := connections.NewProvider(cfg.ConnectionsFile)
	if err := provider.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration document: %v\n", err)
		return exitRuntimeError
	}

	recorder := history.NewRecorder(cfg.ExportDir)
	if err := recorder.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load execution history: %v\n", err)
		return exitRuntimeError
	}
	metricsStore := history.NewMetricsStore(cfg.ExportDir)

	runner := queryrun.NewSQLRunner(cfg.QueriesDir, provider)
	defer runner.Close()

	// Metrics sink: Prometheus when enabled, noop otherwise.
	var metricsSink metrics.Sink = metrics.NewNoopSink()
	var metricsServer *http.Server

	if cfg.MetricsEnabled {
		metricsSink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
		log.Printf("exportcron: metrics enabled (addr=%s, path=%s)", cfg.HTTPAddr, cfg.MetricsPath)

		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.MetricsPath, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: metricsMux,
		}
		go func() {
			log.Printf("exportcron: metrics server listening on %s", cfg.HTTPAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("exportcron: metrics server error: %v", err)
			}
		}()
	} else {
		log.Println("exportcron: METRICS_ENABLED not set; metrics disabled")
	}

	eventBus := channel.NewEventBus(cfg.EventBusBufferSize)
	resolver := trigger.NewResolver()

	sched := scheduler.New(
		scheduler.Config{TickInterval: cfg.TickInterval},
		resolver,
		eventBus,
	).WithMetrics(metricsSink)

	jobs, problems := provider.Jobs()
	for _, problem := range problems {
		log.Printf("exportcron: %v", problem)
	}
	sched.Reload(jobs)

	files := delivery.NewFilesystem(delivery.ExcelWriter{}, cfg.WriteTimeout())

	kafkaFactory := bus.NewKafkaFactory(provider)
	defer kafkaFactory.Close()
	messaging := delivery.NewMessaging(kafkaFactory, delivery.MessagingOptions{
		MaxRetries:        cfg.BusMaxRetries,
		RetryBackoff:      cfg.BusRetryBackoff(),
		SuccessThreshold:  cfg.BusSuccessThreshold,
		RandomKeyFallback: cfg.BusRandomKeyFallback,
	}).WithMetrics(metricsStore)

	retrier := executor.NewRetrier(executor.RetryPolicy{
		Enabled:     cfg.RetryEnabled,
		Delay:       cfg.RetryDelay(),
		MaxAttempts: cfg.RetryMaxAttempts,
	}, recorder, sched)

	exec := executor.New(
		executor.Config{QueryTimeout: cfg.QueryTimeout(), ExportDir: cfg.ExportDir},
		runner,
		files,
		recorder,
		retrier,
	).WithBus(messaging).WithMetrics(metricsSink).WithExportMetrics(metricsStore)

	var mailer delivery.Mailer
	if cfg.SMTPHost != "" && cfg.SMTPFrom != "" {
		mailer = &delivery.SMTPMailer{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}
		exec = exec.WithEmail(delivery.NewEmail(mailer))
	} else {
		log.Println("exportcron: SMTP not configured; email jobs keep filesystem artifacts only")
	}

	// Wire analytics if Redis is configured
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		exec = exec.WithAnalytics(analytics.NewRedisSink(redisClient))
		log.Printf("exportcron: analytics enabled (redis=%s)", cfg.RedisAddr)
	} else {
		log.Println("exportcron: REDIS_ADDR not set; analytics disabled")
	}

	registerSystemJobs(sched, cfg, metricsStore, recorder, mailer)

	// Use separate contexts for scheduler and executors to enable ordered shutdown.
	schedulerCtx, cancelScheduler := context.WithCancel(context.Background())
	executorCtx, cancelExecutors := context.WithCancel(context.Background())

	var schedulerWg sync.WaitGroup
	var executorWg sync.WaitGroup

	schedulerWg.Add(1)
	go func() {
		defer schedulerWg.Done()
		sched.Run(schedulerCtx)
	}()

	for i := 0; i < cfg.Workers; i++ {
		executorWg.Add(1)
		go func() {
			defer executorWg.Done()
			exec.Run(executorCtx, eventBus.Channel())
		}()
	}

	log.Printf("exportcron: started (tick=%s, workers=%d, jobs=%d)", cfg.TickInterval, cfg.Workers, len(jobs))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig

	log.Printf("exportcron: received signal %v, shutting down", received)

	// Phase 1: Stop scheduler (no new fires emitted)
	log.Println("exportcron: stopping scheduler...")
	cancelScheduler()
	schedulerWg.Wait()
	log.Println("exportcron: scheduler stopped")

	// Phase 2: Stop executors (drain buffered fires before returning)
	log.Println("exportcron: stopping executors (draining fires)...")
	cancelExecutors()
	executorWg.Wait()
	log.Println("exportcron: executors stopped")

	// Phase 3: Stop metrics server if running
	if metricsServer != nil {
		log.Println("exportcron: stopping metrics server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("exportcron: metrics server shutdown error: %v", err)
		}
		log.Println("exportcron: metrics server stopped")
	}

	log.Println("exportcron: stopped")
	return exitSuccess
}

// registerSystemJobs wires the internal maintenance jobs: export
// retention cleanup, metric entry cleanup, and the daily report.
func registerSystemJobs(sched *scheduler.Scheduler, cfg config.Config, metricsStore *history.MetricsStore, recorder *history.Recorder, mailer delivery.Mailer) {
	cleanup := scheduler.SystemJob{
		Name: "export-retention-cleanup",
		Spec: "0 7 * * *",
		Run: func(ctx context.Context) {
			removed := cleanupExports(cfg.ExportDir, cfg.ExportRetentionDays)
			if removed > 0 {
				log.Printf("exportcron: retention cleanup removed %d exports", removed)
			}
			if n, err := metricsStore.Cleanup(cfg.MetricsRetentionDays); err != nil {
				log.Printf("exportcron: metrics cleanup: %v", err)
			} else if n > 0 {
				log.Printf("exportcron: metrics cleanup removed %d entries", n)
			}
		},
	}
	if err := sched.RegisterSystemJob(cleanup); err != nil {
		log.Printf("exportcron: register cleanup job: %v", err)
	}

	if cfg.DailyReportEnabled && mailer != nil {
		daily := report.NewDaily(recorder, mailer, report.Config{
			To:      cfg.DailyReportRecipients,
			CC:      cfg.DailyReportCC,
			Subject: cfg.DailyReportSubject,
		})
		job := scheduler.SystemJob{
			Name: "daily-report",
			Spec: cfg.DailyReportCron,
			Run:  daily.Send,
		}
		if err := sched.RegisterSystemJob(job); err != nil {
			log.Printf("exportcron: register daily report job: %v", err)
		}
	}
}

// cleanupExports removes compressed exports older than the retention
// window. Only .gz artifacts are touched; uncompressed exports are the
// operator's to manage.
func cleanupExports(exportDir string, retentionDays int) int {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	removed := 0
	entries, err := os.ReadDir(exportDir)
	if err != nil {
		log.Printf("exportcron: retention cleanup: %v", err)
		return 0
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".gz") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(exportDir, entry.Name())
		if err := os.Remove(path); err != nil {
			log.Printf("exportcron: retention cleanup remove %s: %v", path, err)
			continue
		}
		removed++
	}
	return removed
}

func runValidate() int {
	cfg := config.Load()

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitInvalidConfig
	}

	fmt.Println("configuration valid")
	return exitSuccess
}

func runConfig() int {
	cfg := config.Load()

	data, err := cfg.MaskedJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal config: %v\n", err)
		return exitRuntimeError
	}

	fmt.Println(string(data))
	return exitSuccess
}

func runVersion() int {
	fmt.Printf("exportcron version %s (commit: %s)\n", version, commit)
	return exitSuccess
}
