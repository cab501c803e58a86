// Package main runs the rank tracker API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ranklens/ranklens/internal/api"
	"github.com/ranklens/ranklens/internal/app"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	a, err := app.New(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	server := api.NewServer(a.Store, a.Store, a.Orchestrator, a.Settings(), a.Config, a.Logger)
	httpServer := &http.Server{
		Addr:    a.Config.ListenAddr,
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("api server listening", zap.String("addr", a.Config.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		a.Logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		a.Logger.Error("server failed", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		a.Logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}
