// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"analyst-workers/internal/analysis/calc"
	"analyst-workers/internal/analysis/grounding"
	"analyst-workers/internal/analysis/lookup"
	"analyst-workers/internal/analysis/routing"
	"analyst-workers/internal/analysis/tabular"
	commonaws "analyst-workers/internal/common/aws"
	"analyst-workers/internal/common/camunda"
	"analyst-workers/internal/common/config"
	"analyst-workers/internal/common/database"
	httpclient "analyst-workers/internal/common/http"
	"analyst-workers/internal/common/logger"
	"analyst-workers/internal/common/observability"
	"analyst-workers/internal/models"

	// Data Worker (1)
	but "analyst-workers/internal/workers/data/build-unified-table"

	// Analysis Workers (5)
	rp "analyst-workers/internal/workers/analysis/retrieve-passages"
	rq "analyst-workers/internal/workers/analysis/route-question"
	rc "analyst-workers/internal/workers/analysis/run-calculation"
	rl "analyst-workers/internal/workers/analysis/run-lookup"
	sa "analyst-workers/internal/workers/analysis/synthesize-answer"

	// Communication Worker (1)
	da "analyst-workers/internal/workers/communication/deliver-answer"
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
	bootLog := logger.New("info", "console")
	bootLog.Info("Starting worker manager...")

	cfg, err := config.Load()
	if err != nil {
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	obs := observability.New("worker-manager")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init Zeebe Client with retry ---
	var camundaClient *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		camundaClient, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      10 * time.Second,
			RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")

	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zeebeClient := camundaClient.GetClient()
	zapLog.Info("Zeebe client connected successfully")

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

	// --- Init Elasticsearch with retry ---
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
	zapLog.Info("Elasticsearch connected successfully")

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
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redisClient.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Delivery Clients ---
	// Senders stay nil when their channel is disabled; the worker then
	// rejects jobs that ask for that channel.
	var emailSender da.EmailSender
	var smsSender da.SMSSender
	if cfg.Delivery.Email.Enabled {
		sesClient, err := commonaws.NewSESClient(ctx, cfg.Delivery.AWS.Region)
		if err != nil {
			zapLog.Fatal("SES client failed", zap.Error(err))
		}
		emailSender = sesClient
	}
	if cfg.Delivery.SMS.Enabled {
		snsClient, err := commonaws.NewSNSClient(ctx, cfg.Delivery.AWS.Region)
		if err != nil {
			zapLog.Fatal("SNS client failed", zap.Error(err))
		}
		smsSender = snsClient
	}

	// --- Shared Analysis State ---
	sessionTTL := time.Duration(cfg.Analysis.Tabular.SessionTTL) * time.Minute
	store := tabular.NewSessionStore(sessionTTL)

	sweepStop := make(chan struct{})
	if sessionTTL > 0 {
		go func() {
			ticker := time.NewTicker(10 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if n := store.Sweep(time.Now()); n > 0 {
						log.Info("expired sessions swept", map[string]interface{}{
							"sessions": n,
						})
					}
				case <-sweepStop:
					return
				}
			}
		}()
	}

	normalizer := tabular.NewNormalizer(cfg.Analysis.Tabular.NumericKeywords)
	joiner := tabular.NewJoiner(cfg.Analysis.Tabular.JoinKeyAliases, cfg.Analysis.Tabular.ProtectedColumns)
	router := routing.NewRouter(routing.Config{
		CalcKeywords:   cfg.Analysis.Routing.CalcKeywords,
		LookupKeywords: cfg.Analysis.Routing.LookupKeywords,
		RAGKeywords:    cfg.Analysis.Routing.RAGKeywords,
	})
	calcEngine := calc.NewEngine(calc.Config{
		NumericKeywords: cfg.Analysis.Tabular.NumericKeywords,
		DefaultTopN:     cfg.Analysis.Calc.DefaultTopN,
		MaxTopN:         cfg.Analysis.Calc.MaxTopN,
		EvidenceRows:    cfg.Analysis.Calc.EvidenceRows,
		RecentRows:      cfg.Analysis.Calc.RecentRows,
	})
	lookupEngine := lookup.NewEngine(lookup.Config{
		MaxRows: cfg.Analysis.Lookup.MaxRows,
	})
	assembler := grounding.NewAssembler(grounding.Config{
		MaskSensitive: cfg.Analysis.Grounding.MaskSensitive,
	})
	synthesisClient := httpclient.NewClient(config.GetDuration(cfg.APIs.Synthesis.Timeout))
	answers := database.NewPostgresAnswerRepository(pg.DB)

	// --- Register Workers ---
	var workers []*camunda.Worker

	// --- 1. Data Worker (1) ---
	if wcfg := config.GetWorkerConfig(cfg, but.Name); wcfg.Enabled {
		conf := but.LoadConfig()
		conf.Timeout = config.GetDuration(wcfg.Timeout)
		handler := but.NewHandler(conf, store, normalizer, joiner, log)
		workers = append(workers, camunda.OpenWorker(zeebeClient, workerOpts(but.TaskType, wcfg), handler, log))
	}

	// --- 2. Analysis Workers (5) ---
	if wcfg := config.GetWorkerConfig(cfg, rq.Name); wcfg.Enabled {
		conf := rq.LoadConfig()
		conf.Timeout = config.GetDuration(wcfg.Timeout)
		handler := rq.NewHandler(conf, store, router, log)
		workers = append(workers, camunda.OpenWorker(zeebeClient, workerOpts(rq.TaskType, wcfg), handler, log))
	}

	if wcfg := config.GetWorkerConfig(cfg, rc.Name); wcfg.Enabled {
		conf := rc.LoadConfig()
		conf.Timeout = config.GetDuration(wcfg.Timeout)
		conf.CacheTTL = time.Duration(cfg.Analysis.Calc.CacheTTL) * time.Second
		handler := rc.NewHandler(conf, store, calcEngine, redisClient, log)
		workers = append(workers, camunda.OpenWorker(zeebeClient, workerOpts(rc.TaskType, wcfg), handler, log))
	}

	if wcfg := config.GetWorkerConfig(cfg, rl.Name); wcfg.Enabled {
		conf := rl.LoadConfig()
		conf.Timeout = config.GetDuration(wcfg.Timeout)
		handler := rl.NewHandler(conf, store, lookupEngine, log)
		workers = append(workers, camunda.OpenWorker(zeebeClient, workerOpts(rl.TaskType, wcfg), handler, log))
	}

	if wcfg := config.GetWorkerConfig(cfg, rp.Name); wcfg.Enabled {
		conf := rp.LoadConfig()
		conf.Timeout = config.GetDuration(wcfg.Timeout)
		conf.Index = cfg.Analysis.Retrieval.Index
		conf.MaxPassages = cfg.Analysis.Retrieval.MaxPassages
		handler := rp.NewHandler(conf, esClient, log)
		workers = append(workers, camunda.OpenWorker(zeebeClient, workerOpts(rp.TaskType, wcfg), handler, log))
	}

	if wcfg := config.GetWorkerConfig(cfg, sa.Name); wcfg.Enabled {
		conf := sa.LoadConfig()
		conf.Timeout = config.GetDuration(wcfg.Timeout)
		conf.BaseURL = cfg.APIs.Synthesis.BaseURL
		conf.APIKey = cfg.APIs.Synthesis.APIKey
		handler := sa.NewHandler(conf, assembler, synthesisClient, answers, log)
		workers = append(workers, camunda.OpenWorker(zeebeClient, workerOpts(sa.TaskType, wcfg), handler, log))
	}

	// --- 3. Communication Worker (1) ---
	if wcfg := config.GetWorkerConfig(cfg, da.Name); wcfg.Enabled {
		conf := da.LoadConfig()
		conf.Timeout = config.GetDuration(wcfg.Timeout)
		conf.EmailEnabled = cfg.Delivery.Email.Enabled
		conf.SMSEnabled = cfg.Delivery.SMS.Enabled
		if cfg.Delivery.Email.FromEmail != "" {
			conf.FromEmail = cfg.Delivery.Email.FromEmail
		}
		conf.SenderID = cfg.Delivery.SMS.SenderID
		handler := da.NewHandler(conf, emailSender, smsSender, log)
		workers = append(workers, camunda.OpenWorker(zeebeClient, workerOpts(da.TaskType, wcfg), handler, log))
	}

	zapLog.Info("All workers registered", zap.Int("count", len(workers)))

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		checkCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := camundaClient.HealthCheck(checkCtx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "zeebe broker unavailable"})
			return
		}
		if err := pg.Ping(checkCtx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "postgres unavailable"})
			return
		}
		if err := redisClient.Ping(checkCtx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "redis unavailable"})
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "ready",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/answers", recentAnswersHandler(answers))
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: ":8080", Handler: mux}
	go func() {
		zapLog.Info("Health/Metrics server listening on :8080")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Close()
	}
	close(sweepStop)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down health server", zap.Error(err))
	}
	if err := camundaClient.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

// recentAnswersHandler serves a session's audit trail, most recent first,
// so operators can trace what a session was told.
func recentAnswersHandler(answers models.AnswerRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("sessionId")
		if sessionID == "" {
			http.Error(w, "sessionId is required", http.StatusBadRequest)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		records, err := answers.FindBySession(r.Context(), sessionID, limit)
		if err != nil {
			http.Error(w, "audit lookup failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"sessionId": sessionID,
			"answers":   records,
		})
	}
}

func workerOpts(taskType string, wcfg config.WorkerConfig) camunda.WorkerOptions {
	return camunda.WorkerOptions{
		TaskType:      taskType,
		MaxJobsActive: wcfg.MaxJobsActive,
		Timeout:       config.GetDuration(wcfg.Timeout),
	}
}
