package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server over the model store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := config.Server.ApiAddr
		if cmd.Flags().Changed("addr") {
			addr, _ = cmd.Flags().GetString("addr")
		}

		db, store, err := openStore()
		if err != nil {
			return err
		}

		server, err := NewServer(config, store, logger)
		if err != nil {
			store.Close()
			_ = db.Close()
			return err
		}

		httpServer := &http.Server{Addr: addr, Handler: server.Handler()}

		errChan := make(chan error, 1)
		go func() {
			logger.Info("Starting api server", "address", httpServer.Addr)
			if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				errChan <- serveErr
			}
		}()

		osSignalChan := make(chan os.Signal, 1)
		signal.Notify(osSignalChan, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err = <-errChan:
			store.Close()
			_ = db.Close()
			return fmt.Errorf("api server failed: %w", err)
		case sig := <-osSignalChan:
			logger.Info("OS signal received, initiating shutdown.", "signal", sig.String())
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err = httpServer.Shutdown(ctx); err != nil {
			logger.Error("Api server shutdown failed", "error", err)
		}
		logger.Info("HTTP server stopped.")

		logger.Info("Closing database connection.")
		store.Close()
		if err = db.Close(); err != nil {
			logger.Error("Failed to close database", "error", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address; overrides the configured api_addr")
}
