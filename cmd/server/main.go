package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-sync/auth"
	"chat-sync/domain/event"
	"chat-sync/gateway"
	"chat-sync/internal"
	"chat-sync/observability"
	"chat-sync/publications"
	"chat-sync/runtime"
	"chat-sync/runtime/workers"
	"chat-sync/sink"
	"chat-sync/store"
	"chat-sync/transport"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the engine lifecycle, and centralizes
// error reporting so every defer (store close included) executes before exit.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := internal.GetLoggerFromString(config.LogLevel)

	// 2. Storage (BadgerDB + Bluge name index)
	st, err := store.Open(config.BadgerFilepath, config.BlugeFilepath, log)
	if err != nil {
		return fmt.Errorf("store opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing store...")
		_ = st.Close()
	}()

	// 3. Engine wiring
	mutations := make(chan event.FeedEvent, config.BufferSize)
	evaluator := runtime.NewEvaluator(st, log)
	composer := runtime.NewComposer(evaluator, log)
	registry := runtime.NewRegistry()
	pubs := publications.NewServer(st, composer, registry, config.PageSize, log)
	gw := gateway.New(st, evaluator, mutations, log)
	tokens := auth.NewTokens([]byte(config.AuthSigningKey), config.AuthTokenDuration)
	authService := auth.NewAuthService(st, tokens)

	// 4. Background workers
	languages := sink.NewLanguageSink()
	fanout := workers.NewMutationFanout(log, mutations, languages)
	sampler := observability.NewSampler(log, config.MetricInterval, evaluator, registry)
	sup := workers.NewSupervisor(log).Add(fanout, sampler)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	supDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supDone)
	}()

	// 6. HTTP server (commands + SSE feeds)
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{
		Addr:    address,
		Handler: transport.NewServer(log, authService, gw, pubs).Handler(),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 8. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	sup.Stop()
	<-supDone
	log.Info("Program stopped cleanly", "languages_seen", languages.Stats())

	return nil
}
