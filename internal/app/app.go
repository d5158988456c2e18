package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/campusmarket/internal/health"
	"github.com/vladislavdragonenkov/campusmarket/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/campusmarket/internal/notify"
	"github.com/vladislavdragonenkov/campusmarket/internal/service/auth"
	"github.com/vladislavdragonenkov/campusmarket/internal/service/buyrequest"
	"github.com/vladislavdragonenkov/campusmarket/internal/service/expiry"
	"github.com/vladislavdragonenkov/campusmarket/internal/service/httpapi"
	"github.com/vladislavdragonenkov/campusmarket/internal/service/item"
	"github.com/vladislavdragonenkov/campusmarket/internal/service/outbox"
	"github.com/vladislavdragonenkov/campusmarket/internal/service/review"
	"github.com/vladislavdragonenkov/campusmarket/internal/service/transaction"
	"github.com/vladislavdragonenkov/campusmarket/internal/version"
)

// Run собирает все компоненты сервиса и блокируется до отмены ctx
// либо до фатальной ошибки HTTP-сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	// Kafka опционален: без брокеров сервис работает в пределах одного
	// инстанса, события остаются в outbox.
	producer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(producer, logger)

	var (
		bridge    *notify.KafkaBridge
		publisher notify.Publisher
	)
	if producer != nil {
		bridge = notify.NewKafkaBridge(producer, logger.WithField("component", "notify-bridge"))
		publisher = bridge
	}

	hub := notify.NewHub(deps.store, publisher, logger.WithField("component", "notify-hub"),
		notify.WithChannelBuffer(cfg.NotifyBufferSize))

	if bridge != nil {
		brokers := strings.Split(cfg.KafkaBrokers, ",")
		// Каждый инстанс читает весь поток уведомлений.
		groupID := cfg.KafkaGroupID + "-" + bridge.InstanceID()
		if err := bridge.Start(ctx, brokers, groupID, hub); err != nil {
			logger.WithError(err).Warn("notification bridge failed to start, continuing without fan-out")
		} else {
			defer func() {
				if err := bridge.Stop(); err != nil {
					logger.WithError(err).Warn("failed to stop notification bridge")
				}
			}()
		}
	}

	if producer != nil {
		worker := outbox.NewWorker(
			deps.store.Repos().Outbox,
			kafka.NewOutboxPublisher(producer, kafka.TopicMarketEvents),
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetter)),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		go worker.Run(ctx)
	} else {
		logger.Info("kafka is not configured, outbox worker is disabled")
	}

	sweeper := expiry.NewSweeper(
		deps.store,
		hub,
		expiry.WithLogger(logger.WithField("component", "expiry-sweeper")),
		expiry.WithInterval(cfg.ExpirySweepInterval),
		expiry.WithBatchSize(cfg.ExpiryBatchSize),
		expiry.WithTTL(cfg.BuyRequestTTL),
	)
	go sweeper.Run(ctx)

	api := httpapi.NewServer(httpapi.Config{
		Items:         item.NewLedger(deps.store, logger.WithField("component", "item")),
		BuyRequests:   buyrequest.NewEngine(deps.store, hub, logger.WithField("component", "buyrequest")),
		Transactions:  transaction.NewEngine(deps.store, hub, logger.WithField("component", "transaction")),
		Reviews:       review.NewLedger(deps.store, logger.WithField("component", "review")),
		Hub:           hub,
		Authenticator: auth.NewStaticService(nil, cfg.AuthAllowDevTokens),
		Logger:        logger.WithField("component", "httpapi"),
	})

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.pg != nil {
		healthHandler.RegisterChecker("postgres", healthcheck.NewSimpleChecker("postgres", func() error {
			return deps.pg.Ping(context.Background())
		}))
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: api.Router()}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP API")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez", addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
