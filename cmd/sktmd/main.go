package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/RH-FMK/sktm/internal/api"
	"github.com/RH-FMK/sktm/internal/auth"
	"github.com/RH-FMK/sktm/internal/backup"
	"github.com/RH-FMK/sktm/internal/reaper"
	"github.com/RH-FMK/sktm/internal/storage"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	host := os.Getenv("HOST")
	if host == "" {
		host = "127.0.0.1"
	}

	dbPath := os.Getenv("SKTM_DB_PATH")
	if dbPath == "" {
		dbPath = os.ExpandEnv("$HOME/.sktm.db")
	}

	// Patches pending past this window are requeued. The driver
	// historically used 12 hours.
	expiry := 12 * time.Hour
	if raw := os.Getenv("SKTM_EXPIRY_SECONDS"); raw != "" {
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || secs <= 0 {
			logrus.Fatalf("Invalid SKTM_EXPIRY_SECONDS: %q", raw)
		}
		expiry = time.Duration(secs) * time.Second
	}

	// Snapshot the database before Open runs migrations against it.
	if backup.Enabled() {
		if _, err := os.Stat(dbPath); err == nil {
			client, err := backup.NewClient()
			if err != nil {
				logrus.Fatalf("Failed to initialize backup client: %v", err)
			}
			if _, err := client.UploadSnapshot(context.Background(), dbPath); err != nil {
				logrus.Fatalf("Failed to upload database snapshot: %v", err)
			}
		}
	}

	store, err := storage.Open(dbPath)
	if err != nil {
		logrus.Fatalf("Failed to open patch ledger: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close patch ledger")
		}
	}()

	authValidator, err := auth.NewValidator()
	if err != nil {
		logrus.Fatalf("Failed to initialize auth validator: %v", err)
	}

	expiryReaper := reaper.New(store, expiry, time.Minute, nil)
	expiryReaper.Start()
	defer expiryReaper.Stop()

	router := gin.Default()

	// Registered before the auth middleware so scrapes need no token.
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.Use(authValidator.Middleware())

	apiHandler := api.NewHandler(store)
	api.SetupRoutes(router, apiHandler)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", host, port),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logrus.Infof("Starting sktm ledger daemon on %s:%s", host, port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Fatalf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}
