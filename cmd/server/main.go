package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"consultly/internal/app"
	"consultly/internal/config"
	"consultly/internal/gateway"
	"consultly/internal/notify"
	"consultly/internal/push"
	"consultly/internal/server"
	"consultly/internal/session"
	"consultly/internal/usertoken"
	"consultly/internal/util"
	"consultly/pkg/mq"
	"consultly/pkg/store"
)

func main() {
	configPath := flag.String("config", config.ConfigPath, "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		util.Fatal("load config", "err", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	st, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		util.Fatal("open store", "err", err)
	}

	leeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
	if err != nil {
		util.Fatal("parse jwt leeway", "err", err)
	}
	verifier, err := usertoken.NewVerifier(usertoken.Config{
		Secret: cfg.JWTSecret,
		Issuer: cfg.JWTIssuer,
		Leeway: leeway,
	})
	if err != nil {
		util.Fatal("init token verifier", "err", err)
	}

	hub := gateway.NewHub(gateway.HubConfig{
		Verifier:    verifier,
		Logger:      logger,
		AuthTimeout: time.Duration(cfg.WSAuthTimeoutSeconds) * time.Second,
	})

	var publisher *mq.Publisher
	if cfg.AMQPURL != "" {
		publisher, err = mq.NewPublisher(cfg.AMQPURL, cfg.EventsExchange)
		if err != nil {
			util.Fatal("connect rabbitmq publisher", "err", err)
		}
		defer publisher.Close()
	}

	fanout := notify.New(notify.Config{
		Store:  st,
		Live:   hub,
		Events: publisherOrNil(publisher),
		Logger: logger,
	})

	engine, err := app.New(app.Config{
		Store:    st,
		Notifier: fanout,
		Logger:   logger,
	})
	if err != nil {
		util.Fatal("init engine", "err", err)
	}

	var callTokens *session.Issuer
	if cfg.CallProviderURL != "" {
		provider := session.NewHTTPProvider(cfg.CallProviderURL, cfg.CallProviderKey, 5*time.Second)
		callTokens = session.NewIssuer(provider, nil)
	}

	var pushTokens *push.TokenStore
	if cfg.RedisAddr != "" {
		pushTokens = push.NewTokenStore(cfg.RedisAddr, cfg.RedisPassword)
		defer pushTokens.Close()
	}

	srv := server.New(server.Config{
		Engine:        engine,
		Hub:           hub,
		TokenVerifier: verifier,
		CallTokens:    callTokens,
		PushTokens:    pushTokens,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.Go(func() error {
		logger.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if cfg.AMQPURL != "" && cfg.PushQueue != "" && pushTokens != nil && cfg.PushVendorURL != "" {
		consumer, err := mq.NewConsumer(cfg.AMQPURL, cfg.EventsExchange, cfg.PushQueue, []string{"notify.#"})
		if err != nil {
			util.Fatal("connect rabbitmq consumer", "err", err)
		}
		defer consumer.Close()
		worker := push.NewWorker(push.WorkerConfig{
			Consumer: consumer,
			Tokens:   pushTokens,
			Sender:   push.NewHTTPSender(cfg.PushVendorURL, cfg.PushVendorKey, 5*time.Second),
			Logger:   logger,
		})
		g.Go(func() error {
			logger.Info("push worker started", "queue", cfg.PushQueue)
			return worker.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		util.Fatal("server exited", "err", err)
	}
	slog.Info("shutdown complete")
}

// publisherOrNil avoids storing a typed nil in the fan-out's interface field.
func publisherOrNil(p *mq.Publisher) notify.Publisher {
	if p == nil {
		return nil
	}
	return p
}
