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

	"github.com/gin-gonic/gin"
	flag "github.com/spf13/pflag"

	"journalsync/config"
	"journalsync/controllers"
	"journalsync/metrics"
	"journalsync/routes"
	"journalsync/services"
)

func main() {
	cfgPath := flag.StringP("config", "c", "config.yml", "Path to YAML config file")
	host := flag.String("host", "", "Listen host (overrides config)")
	port := flag.IntP("port", "p", 0, "Listen port (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging and gin debug mode")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *debug {
		cfg.Server.Debug = true
	}

	logger := cfg.NewLogger()
	if cfg.Server.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	ingestor, err := services.NewPipeline(ctx, cfg, logger, m)
	if err != nil {
		logger.Error("building pipeline", "err", err)
		os.Exit(1)
	}
	if !ingestor.CanFetch() {
		logger.Warn("ElevenLabs key not set, conversation lookups are disabled")
	}

	router := routes.SetupRouter(controllers.NewWebhookController(ingestor, logger), m, logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}
