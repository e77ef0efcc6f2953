package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keyawins-art/Time-stamp/internal/config"
	"github.com/keyawins-art/Time-stamp/internal/export"
	"github.com/keyawins-art/Time-stamp/internal/httpapi"
	"github.com/keyawins-art/Time-stamp/internal/session"
	"github.com/keyawins-art/Time-stamp/internal/tracker"
)

func main() {
	logger := log.New(os.Stdout, "trackerd ", log.Ldate|log.Ltime|log.Lmicroseconds|log.LUTC)
	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid config: %v", err)
	}

	store, err := session.NewGormStore(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.Fatalf("failed to initialize session store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Printf("store close error: %v", err)
		}
	}()

	sessionLog := export.NewWriter(cfg.LogDir)
	service := tracker.New(logger, store, sessionLog,
		tracker.WithStaleAfter(cfg.StaleAfter),
		tracker.WithHistoryEpoch(cfg.HistoryEpoch),
	)

	srv := httpapi.NewServer(logger, cfg.HTTPAddr, service, cfg.WatchInterval)

	go func() {
		logger.Printf("listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server crashed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Printf("server shutdown error: %v", err)
	}
}
