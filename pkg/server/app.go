package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	domrepo "PricePulse/internal/domain/repository"
	"PricePulse/internal/relay"
	"PricePulse/internal/scheduler"
	pkgcache "PricePulse/pkg/cache"
	pkgch "PricePulse/pkg/clickhouse"
	"PricePulse/pkg/config"
	xhttp "PricePulse/pkg/http"
	pkgkafka "PricePulse/pkg/kafka"
	applogger "PricePulse/pkg/logger"
	"PricePulse/pkg/queue"
)

// App encapsulates the entire application lifecycle: the poll scheduler,
// the relay hub, the change-feed consumer, the retry queue and the HTTP
// surface.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	sched      *scheduler.Scheduler
	hub        *relay.Hub
	consumer   *pkgkafka.Consumer
	feed       pkgkafka.MessageHandler
	retryQueue *queue.RedisQueue
	publisher  domrepo.TickPublisher
	chClient   *pkgch.Client
	respCache  pkgcache.Service
	handler    xhttp.Handler
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	sched *scheduler.Scheduler,
	hub *relay.Hub,
	consumer *pkgkafka.Consumer,
	feed pkgkafka.MessageHandler,
	retryQueue *queue.RedisQueue,
	publisher domrepo.TickPublisher,
	chClient *pkgch.Client,
	respCache pkgcache.Service,
	handler xhttp.Handler,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		sched:      sched,
		hub:        hub,
		consumer:   consumer,
		feed:       feed,
		retryQueue: retryQueue,
		publisher:  publisher,
		chClient:   chClient,
		respCache:  respCache,
		handler:    handler,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	go a.sched.Run(ctx)
	a.log.Info("poll scheduler started",
		applogger.String("pair", a.cfg.Upstream.Pair),
		applogger.Duration("interval", a.cfg.Upstream.PollInterval),
	)

	go a.hub.Run(ctx)

	if a.consumer != nil && a.feed != nil {
		a.consumer.RegisterHandler(a.feed)
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer start error", applogger.Error(err))
		} else {
			a.log.Info("change feed consumer started", applogger.String("topic", a.feed.Topic()))
		}
	}

	if a.retryQueue != nil {
		if err := a.retryQueue.Start(); err != nil {
			a.log.Error("retry queue start error", applogger.Error(err))
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.retryQueue != nil {
		if err := a.retryQueue.Stop(shutdownCtx); err != nil {
			a.log.Warn("retry queue stop error", applogger.Error(err))
		}
	}

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn("tick publisher close error", applogger.Error(err))
		}
	}

	if a.respCache != nil {
		if err := a.respCache.Close(); err != nil {
			a.log.Warn("response cache close error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
