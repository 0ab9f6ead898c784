package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"church-portal-be/internal/bootstrap"
	"church-portal-be/internal/config"
	"church-portal-be/internal/server"
	"church-portal-be/internal/tracer"
	"church-portal-be/pkg/database"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Database
	gormDB, err := database.NewGormDBFromDSN(cfg.Database.Connection, cfg.IsProduction())
	if err != nil {
		log.Panicf("Unable to connect to GORM DB: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(ctx, gormDB, cfg)
	if err != nil {
		log.Fatalf("Unable to bootstrap: %v", err)
	}
	defer container.Close()
	defer container.Logger.Sync()

	shutdownTracer := tracer.InitTracer(container.Logger)

	// 4. Start Background Services
	if err := container.ReportWorker.Start(ctx); err != nil {
		log.Fatalf("Unable to start report worker: %v", err)
	}

	// 5. Initialize and run server
	srv := server.New(cfg, container)
	go func() {
		if err := srv.Run(); err != nil {
			container.Logger.Error("Main", "Server stopped", map[string]interface{}{"error": err})
			stop()
		}
	}()

	<-ctx.Done()
	container.Logger.Info("Main", "Shutting down", nil)

	if err := srv.Shutdown(); err != nil {
		container.Logger.Warn("Main", "Server shutdown failed", map[string]interface{}{"error": err})
	}
	container.ReportWorker.Stop()
	container.Transfers.Flush()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracer(shutdownCtx); err != nil {
		container.Logger.Warn("Main", "Tracer shutdown failed", map[string]interface{}{"error": err})
	}
}
