package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"bizledger/internal/audit"
	"bizledger/internal/auth"
	"bizledger/internal/observability/logger"
	"bizledger/internal/observability/metrics"
	"bizledger/internal/observability/tracing"
	"bizledger/internal/receivables/application"
	receivables "bizledger/internal/receivables/domain"
	"bizledger/internal/receivables/infrastructure/postgres"
	"bizledger/internal/receivables/interfaces"
	receivableshttp "bizledger/internal/receivables/interfaces/http"
	"bizledger/internal/receivables/notify"
)

func main() {
	_ = godotenv.Load()
	cfg := loadConfig()

	zlog, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = zlog.Sync() }()
	zap.ReplaceGlobals(zlog)

	shutdownTracing, err := tracing.Setup(context.Background(), cfg.Tracing, zlog)
	if err != nil {
		zlog.Fatal("tracing init error", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			zlog.Warn("tracer shutdown error", zap.Error(err))
		}
	}()

	engineCfg, err := application.LoadConfig()
	if err != nil {
		zlog.Fatal("receivables config error", zap.Error(err))
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal("db open error", zap.Error(err))
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		zlog.Fatal("db ping error", zap.Error(err))
	}

	metrics.Init(db, zlog)
	store := postgres.NewStore(db)
	clock := receivables.SystemClock{}

	auditRepo := audit.NewRepository(db)
	var auditLogger audit.Logger = auditRepo
	if cfg.AuditToLog {
		auditLogger = audit.NewZapLogger(zlog)
	}

	var publisher application.EventPublisher = interfaces.NewLoggingPublisher(zlog)
	if len(engineCfg.Kafka.Brokers) > 0 {
		kafkaPublisher, err := interfaces.NewKafkaPublisher(engineCfg.Kafka.Brokers, engineCfg.Kafka.Topic,
			interfaces.WithBatchTimeout(engineCfg.Kafka.BatchTimeout),
		)
		if err != nil {
			zlog.Fatal("kafka publisher error", zap.Error(err))
		}
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	}

	var notifier application.OverdueNotifier
	if engineCfg.WebhookURL != "" {
		channel, err := notify.NewWebhookChannel(engineCfg.WebhookURL,
			notify.WithHTTPClient(tracing.WrapHTTPClient(&http.Client{Timeout: cfg.NotifyTimeout})),
			notify.WithSigningSecret(cfg.NotifySecret),
		)
		if err != nil {
			zlog.Fatal("webhook channel error", zap.Error(err))
		}
		tpl, err := notify.NewTemplate(cfg.NotifyTemplate)
		if err != nil {
			zlog.Fatal("overdue template error", zap.Error(err))
		}
		overdueNotifier, err := notify.NewNotifier(channel, tpl, notify.WithDedupeWindow(cfg.NotifyDedupeWindow))
		if err != nil {
			zlog.Fatal("overdue notifier error", zap.Error(err))
		}
		notifier = overdueNotifier
	}

	sink, err := application.NewStatusSink(engineCfg.Sweep.NodeID, publisher, notifier, zlog,
		application.WithPublishTimeout(engineCfg.Kafka.PublishTimeout),
	)
	if err != nil {
		zlog.Fatal("status sink error", zap.Error(err))
	}
	resolver := application.NewSettingsResolver(engineCfg.DomainDefaults())

	sweeper, err := application.NewSweeper(store, resolver, sink,
		application.WithSweepClock(clock),
		application.WithSweepLogger(zlog),
		application.WithSweepConcurrency(engineCfg.Sweep.Concurrency),
	)
	if err != nil {
		zlog.Fatal("sweeper error", zap.Error(err))
	}
	settlement, err := application.NewSettlementService(store, sink,
		application.WithSettlementClock(clock),
		application.WithSettlementLogger(zlog),
		application.WithOverpaymentPolicy(engineCfg.Policy()),
	)
	if err != nil {
		zlog.Fatal("settlement service error", zap.Error(err))
	}
	balance, err := application.NewBalanceService(store, clock, zlog)
	if err != nil {
		zlog.Fatal("balance service error", zap.Error(err))
	}
	aging, err := application.NewAgingService(store, resolver, clock)
	if err != nil {
		zlog.Fatal("aging service error", zap.Error(err))
	}
	settings, err := application.NewSettingsService(store, resolver, clock, zlog)
	if err != nil {
		zlog.Fatal("settings service error", zap.Error(err))
	}

	handler, err := receivableshttp.NewHandler(receivableshttp.Services{
		Sweeper:    sweeper,
		Settlement: settlement,
		Balance:    balance,
		Aging:      aging,
		Settings:   settings,
		AuditTrail: auditRepo,
	}, auditLogger, zlog)
	if err != nil {
		zlog.Fatal("receivables handler error", zap.Error(err))
	}
	automationHandler, err := receivableshttp.NewAutomationHandler(sweeper, auditLogger, zlog)
	if err != nil {
		zlog.Fatal("automation handler error", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := application.NewScheduler(sweeper, engineCfg.Sweep.Interval, engineCfg.Sweep.DailyAt, zlog)
	go scheduler.Start(ctx)

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/api/v1/automation/"})
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)
	apiKeyAuth := auth.NewAPIKeyMiddleware(cfg.AutomationAPIKey)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/receivables/", handler)
	mux.Handle("/api/v1/automation/reconcile", apiKeyAuth.Wrap(automationHandler))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: tracing.Middleware(loggingMiddleware(authMiddleware.Wrap(mux), zlog))}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	zlog.Info("http listening", zap.String("addr", cfg.HTTPAddr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		zlog.Fatal("http server error", zap.Error(err))
	}
}

type config struct {
	DatabaseURL        string
	HTTPAddr           string
	LogLevel           string
	LogFormat          string
	JWTSecret          string
	AutomationAPIKey   string
	AuditToLog         bool
	NotifyTemplate     string
	NotifyDedupeWindow time.Duration
	NotifyTimeout      time.Duration
	NotifySecret       string
	Tracing            tracing.Config
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:        getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:           getenvDefault("HTTP_ADDR", ":8080"),
		LogLevel:           getenvDefault("LOG_LEVEL", "info"),
		LogFormat:          getenvDefault("LOG_FORMAT", "json"),
		JWTSecret:          getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		AutomationAPIKey:   getenvDefault("AUTOMATION_API_KEY", ""),
		AuditToLog:         getenvDefault("AUDIT_SINK", "db") == "log",
		NotifyTemplate:     getenvDefault("RECEIVABLES_NOTIFY_TEMPLATE", ""),
		NotifyDedupeWindow: getenvDuration("RECEIVABLES_NOTIFY_DEDUP_WINDOW", 24*time.Hour),
		NotifyTimeout:      getenvDuration("RECEIVABLES_NOTIFY_TIMEOUT", 5*time.Second),
		NotifySecret:       getenvDefault("RECEIVABLES_NOTIFY_SECRET", ""),
		Tracing: tracing.Config{
			Enabled:          getenvBool("OTEL_TRACING_ENABLED", false),
			ServiceName:      getenvDefault("OTEL_SERVICE_NAME", "bizledger"),
			ServiceVersion:   getenvDefault("APP_VERSION", "dev"),
			Environment:      getenvDefault("APP_ENV", "development"),
			ExporterEndpoint: getenvDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			ExporterProtocol: getenvDefault("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"),
			SamplingRatio:    getenvFloat("OTEL_TRACES_SAMPLER_RATIO", 0.1),
		},
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	parsed, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloat(key string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, zlog *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.WithTrace(r.Context(), zlog).Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", resp.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
