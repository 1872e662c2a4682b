package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avolkov/labelscan/internal/dashboard"
	"github.com/avolkov/labelscan/internal/filestore"
	"github.com/avolkov/labelscan/internal/logger"
	"github.com/avolkov/labelscan/internal/mailer"
	"github.com/avolkov/labelscan/internal/metrics"
	"github.com/avolkov/labelscan/internal/order"
	"github.com/avolkov/labelscan/internal/router"
	storage "github.com/avolkov/labelscan/internal/storage/postgres"
	"github.com/avolkov/labelscan/internal/user"
)

func main() {
	if err := run(); err != nil {
		panic(err)
	}
}

func run() error {
	cfg, err := NewConfig()
	if err != nil {
		log.Fatal(err)
	}
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := storage.NewPostgresStorage(cfg.DatabaseConnection)
	if err != nil {
		log.Fatalf("Failed to initialize Postgres storage: %v", err)
	}
	if err := store.Ping(ctx); err != nil {
		log.Fatalf("Unable to ping database: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("Warning: failed to close storage: %v", err)
		}
	}()

	files, err := filestore.New(cfg.FileStoragePath)
	if err != nil {
		log.Fatalf("Failed to initialize file storage: %v", err)
	}

	reg := metrics.New()

	userSvc := user.NewService(store, []byte(cfg.JWTSecret), cfg.JWTTTL)
	if err := userSvc.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Fatalf("Failed to seed admin user: %v", err)
	}
	userHandler := user.NewHandler(userSvc)

	orderSvc := order.NewService(store, files)
	orderHandler := order.NewHandler(orderSvc, reg)

	dashSvc := dashboard.NewService(store, store)
	dashHandler := dashboard.NewHandler(dashSvc)

	mailSvc := mailer.NewService(mailer.SMTPConfig{
		Host:       cfg.SMTPHost,
		Port:       cfg.SMTPPort,
		Username:   cfg.SMTPUsername,
		Password:   cfg.SMTPPassword,
		Encryption: cfg.SMTPEncryption,
		FromEmail:  cfg.SMTPFromEmail,
		FromName:   cfg.SMTPFromName,
	})
	mailHandler := mailer.NewHandler(mailSvc, reg)

	r := router.NewRouter(userHandler, orderHandler, dashHandler, mailHandler, reg, store, router.Config{
		JWTSecret:  []byte(cfg.JWTSecret),
		APIKey:     cfg.APIKey,
		AllowedIPs: cfg.AllowedIPs,
		FileDir:    files.Dir(),
	})

	srv := &http.Server{
		Addr:         cfg.Address,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped gracefully")
	return nil
}
