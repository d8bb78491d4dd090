// cmd/notification-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"notification-system/internal/api"
	"notification-system/internal/audit"
	"notification-system/internal/common/config"
	"notification-system/internal/common/database"
	httpclient "notification-system/internal/common/http"
	"notification-system/internal/common/logger"
	"notification-system/internal/common/metrics"
	"notification-system/internal/dispatch"
	"notification-system/internal/models"
	"notification-system/internal/providers"
	"notification-system/internal/registry"
	"notification-system/internal/store"
	emailworker "notification-system/internal/workers/email"
	smsworker "notification-system/internal/workers/sms"
	whatsappworker "notification-system/internal/workers/whatsapp"
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
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "console")
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting notification manager...")

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
	var redisClient *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redisClient, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		// The registry degrades to uncached reads without Redis.
		zapLog.Warn("redis unavailable, layout caching disabled", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
		zapLog.Info("Redis connected successfully")
	}

	// --- Init Elasticsearch with retry (audit trail only) ---
	var auditIndexer *audit.Indexer
	if cfg.Audit.Enabled {
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
			zapLog.Warn("elasticsearch unavailable, audit trail disabled", zap.Error(err))
		} else {
			auditIndexer = audit.NewIndexer(esClient.Client, cfg.Audit.IndexPrefix, log)
			zapLog.Info("Elasticsearch connected successfully")
		}
	}

	// --- Stores & Services ---
	db := pg.DB
	masterStore := store.NewMasterStore(db)
	notificationStore := store.NewNotificationStore(db)
	queueStore := store.NewQueueStore(db)
	userStore := store.NewUserStore(db)

	var cache *redis.Client
	if redisClient != nil {
		cache = redisClient.GetClient()
	}
	registrySvc := registry.NewService(masterStore, cache, log)
	dispatchSvc := dispatch.NewService(db, notificationStore, queueStore, registrySvc, log)

	// --- Channel Workers ---
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	startDelay := time.Duration(0)
	nextDelay := func() time.Duration {
		d := startDelay
		startDelay += 500 * time.Millisecond
		return d
	}

	if cfg.Workers[emailworker.WorkerName].Enabled && cfg.Providers.AWS.SES.Enabled {
		from := cfg.Providers.AWS.SES.FromEmail
		if cfg.Providers.AWS.SES.FromName != "" {
			from = fmt.Sprintf("%s <%s>", cfg.Providers.AWS.SES.FromName, cfg.Providers.AWS.SES.FromEmail)
		}
		provider, err := providers.NewEmailProvider(ctx, cfg.Providers.AWS.Region, from, log)
		if err != nil {
			zapLog.Fatal("failed to create email provider", zap.Error(err))
		}

		handler := emailworker.NewHandler(
			emailworker.NewConfig(cfg, nextDelay()),
			db, notificationStore, queueStore, masterStore, userStore,
			provider, auditIndexer, log,
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			handler.Run(workerCtx)
		}()
		zapLog.Info("email worker started")
	}

	if cfg.Workers[whatsappworker.WorkerName].Enabled && cfg.Providers.WhatsApp.Enabled {
		wc := config.GetWorkerConfig(cfg, whatsappworker.WorkerName)
		provider := providers.NewWhatsAppProvider(
			httpclient.NewClient(config.GetDuration(wc.SendTimeout)),
			cfg.Providers.WhatsApp.BaseURL,
			cfg.Providers.WhatsApp.APIKey,
			cfg.Providers.WhatsApp.LanguageCode,
			log,
		)

		handler := whatsappworker.NewHandler(
			whatsappworker.NewConfig(cfg, nextDelay()),
			db, notificationStore, queueStore, masterStore, userStore,
			provider, auditIndexer, log,
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			handler.Run(workerCtx)
		}()
		zapLog.Info("whatsapp worker started")
	}

	if cfg.Workers[smsworker.WorkerName].Enabled && cfg.Providers.AWS.SNS.Enabled {
		provider, err := providers.NewSMSProvider(ctx, cfg.Providers.AWS.Region, cfg.Providers.AWS.SNS.DefaultSMSSenderID, log)
		if err != nil {
			zapLog.Fatal("failed to create sms provider", zap.Error(err))
		}

		handler := smsworker.NewHandler(
			smsworker.NewConfig(cfg, nextDelay()),
			db, notificationStore, queueStore, masterStore, userStore,
			provider, auditIndexer, log,
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			handler.Run(workerCtx)
		}()
		zapLog.Info("sms worker started")
	}

	// --- Queue Maintenance ---
	wg.Add(1)
	go func() {
		defer wg.Done()
		runQueueMaintenance(workerCtx, queueStore, log)
	}()

	// --- API Server ---
	handlers := api.NewHandlers(registrySvc, dispatchSvc, log)
	apiServer := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: api.NewRouter(handlers, log),
	}
	go func() {
		zapLog.Info("API server listening", zap.String("address", cfg.Server.Address))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("API server failed", zap.Error(err))
		}
	}()

	// --- Health & Metrics Server ---
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		mux.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Server.MetricsAddress))
		if err := http.ListenAndServe(cfg.Server.MetricsAddress, mux); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down API server", zap.Error(err))
	}

	stopWorkers()
	wg.Wait()

	zapLog.Info("Notification manager stopped gracefully")
}

// runQueueMaintenance reclaims expired leases and keeps the depth gauges fresh.
func runQueueMaintenance(ctx context.Context, queue *store.QueueStore, log logger.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	queues := []models.QueueType{
		models.QueueEmail, models.QueueWhatsApp, models.QueueSMS,
		models.QueueWeb, models.QueueInApp,
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reclaimed, err := queue.ReclaimExpired(ctx)
			if err != nil {
				log.Warn("lease reclaim failed", map[string]interface{}{"error": err.Error()})
			} else if reclaimed > 0 {
				log.Info("reclaimed expired claims", map[string]interface{}{"count": reclaimed})
			}

			for _, q := range queues {
				depth, err := queue.Depth(ctx, q)
				if err != nil {
					continue
				}
				metrics.QueueDepth.WithLabelValues(string(q)).Set(float64(depth))
			}
		}
	}
}
