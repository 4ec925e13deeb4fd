// cmd/sweep-runner/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"pcots-notifications/internal/common/aws"
	"pcots-notifications/internal/common/config"
	"pcots-notifications/internal/common/database"
	"pcots-notifications/internal/common/logger"
	"pcots-notifications/internal/common/observability"
	"pcots-notifications/internal/dispatch"
	"pcots-notifications/internal/registry"
	"pcots-notifications/internal/scheduler"
	"pcots-notifications/internal/store"

	ae "pcots-notifications/internal/sweeps/escalation"
	ir "pcots-notifications/internal/sweeps/inspectionreminder"
	pe "pcots-notifications/internal/sweeps/permitexpiry"
	rd "pcots-notifications/internal/sweeps/reportdue"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting sweep runner...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("sweep-runner")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch with retry (optional, audit trail only) ---
	var auditor *dispatch.Auditor
	if cfg.Database.Elasticsearch.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		auditor = dispatch.NewAuditor(esClient, cfg.Database.Elasticsearch.AuditIndex, log)
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Init AWS delivery clients ---
	var sesService dispatch.SESService
	if cfg.Notifications.Email.Enabled {
		sesClient, err := aws.NewSESClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Fatal("SES client initialization failed", zap.Error(err))
		}
		sesService = sesClient
		zapLog.Info("SES client initialized")
	}

	var snsService dispatch.SNSService
	if cfg.Notifications.SMS.Enabled {
		snsClient, err := aws.NewSNSClient(ctx, cfg.Notifications.AWS.Region)
		if err != nil {
			zapLog.Fatal("SNS client initialization failed", zap.Error(err))
		}
		snsService = snsClient
		zapLog.Info("SNS client initialized")
	}

	// --- Stores ---
	notifications := store.NewNotificationStore(pg.DB)
	users := store.NewUserStore(pg.DB, rdb.Client, time.Duration(cfg.Notifications.RoleCacheTTL)*time.Second)
	permits := store.NewPermitStore(pg.DB)
	inspections := store.NewInspectionStore(pg.DB)
	reports := store.NewReportStore(pg.DB)

	// --- Dispatcher ---
	dispatcher := dispatch.New(
		&dispatch.Config{
			EmailEnabled: cfg.Notifications.Email.Enabled,
			FromEmail:    cfg.Notifications.Email.FromEmail,
			SMSEnabled:   cfg.Notifications.SMS.Enabled,
			SMSSenderID:  cfg.Notifications.SMS.SenderID,
		},
		notifications, sesService, snsService, auditor, log,
	)

	// --- Sweep registry ---
	defs, err := registry.Load(cfg.Sweeps.RegistryPath)
	if err != nil {
		zapLog.Fatal("sweep registry load failed", zap.Error(err))
	}
	byName := registry.ByName(defs)

	// --- Register sweep jobs ---
	var jobs []scheduler.Job

	if def, jc := byName[pe.JobName], cfg.Sweeps.PermitExpiry; jc.Enabled && def.Enabled {
		peCfg := pe.LoadConfig()
		peCfg.Timeout = config.GetDuration(jc.Timeout)
		peCfg.Window = windowFor(jc, def)
		handler := pe.NewHandler(peCfg, permits, users, notifications, dispatcher, log)
		jobs = append(jobs, scheduler.Job{Name: pe.JobName, Interval: intervalFor(jc, def), Handler: withObservability(obs, pe.JobName, handler.Run)})
	}

	if def, jc := byName[ae.JobName], cfg.Sweeps.AlertEscalation; jc.Enabled && def.Enabled {
		aeCfg := ae.LoadConfig()
		aeCfg.Timeout = config.GetDuration(jc.Timeout)
		aeCfg.UnreadAge = windowFor(jc, def)
		handler := ae.NewHandler(aeCfg, users, notifications, dispatcher, log)
		jobs = append(jobs, scheduler.Job{Name: ae.JobName, Interval: intervalFor(jc, def), Handler: withObservability(obs, ae.JobName, handler.Run)})
	}

	if def, jc := byName[rd.JobName], cfg.Sweeps.LcReportDue; jc.Enabled && def.Enabled {
		rdCfg := rd.LoadConfig()
		rdCfg.Timeout = config.GetDuration(jc.Timeout)
		rdCfg.Window = windowFor(jc, def)
		handler := rd.NewHandler(rdCfg, reports, users, notifications, dispatcher, log)
		jobs = append(jobs, scheduler.Job{Name: rd.JobName, Interval: intervalFor(jc, def), Handler: withObservability(obs, rd.JobName, handler.Run)})
	}

	if def, jc := byName[ir.JobName], cfg.Sweeps.InspectionReminder; jc.Enabled && def.Enabled {
		irCfg := ir.LoadConfig()
		irCfg.Timeout = config.GetDuration(jc.Timeout)
		irCfg.Window = windowFor(jc, def)
		handler := ir.NewHandler(irCfg, inspections, users, notifications, dispatcher, log)
		jobs = append(jobs, scheduler.Job{Name: ir.JobName, Interval: intervalFor(jc, def), Handler: withObservability(obs, ir.JobName, handler.Run)})
	}

	sched := scheduler.New(log, cfg.Sweeps.RunOnStart, jobs...)
	sched.Start()
	zapLog.Info("All sweep jobs registered successfully", zap.Int("jobs", len(jobs)))

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", cfg.App.MetricsPort)
		zapLog.Info("Health/Metrics server listening", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping sweeps...")
	sched.Stop()

	zapLog.Info("Sweep runner stopped gracefully")
}

// withObservability records each run in the OTel meters alongside whatever
// the handler itself reports.
func withObservability(obs *observability.Observability, job string, h scheduler.Handler) scheduler.Handler {
	return func(ctx context.Context) {
		start := time.Now()
		h(ctx)
		obs.RecordSweepRun(ctx, job, "completed")
		obs.RecordSweepDuration(ctx, job, time.Since(start))
	}
}

// intervalFor resolves a job's trigger interval, config first, registry
// definition as fallback.
func intervalFor(jc config.SweepJobConfig, def registry.SweepDefinition) time.Duration {
	hours := jc.IntervalHours
	if hours <= 0 {
		hours = def.IntervalHours
	}
	return time.Duration(hours) * time.Hour
}

// windowFor resolves a job's lookahead window the same way.
func windowFor(jc config.SweepJobConfig, def registry.SweepDefinition) time.Duration {
	days := jc.WindowDays
	if days <= 0 {
		days = def.WindowDays
	}
	return time.Duration(days) * 24 * time.Hour
}
