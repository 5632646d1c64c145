package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rgbkrk/honchkrow/internal/config"
	"github.com/rgbkrk/honchkrow/internal/kernel/pyproc"
	"github.com/rgbkrk/honchkrow/internal/logger"
	"github.com/rgbkrk/honchkrow/internal/mcpbridge"
	"github.com/rgbkrk/honchkrow/internal/monitoring"
	"github.com/rgbkrk/honchkrow/internal/server"
	"github.com/rgbkrk/honchkrow/internal/store"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to YAML config file")
		mcpMode    = flag.Bool("mcp", false, "serve MCP over stdio instead of HTTP")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.New("error", "text", "main").Fatal("Failed to load config", logger.Fields{
			"error": err.Error(),
		})
	}
	if err := cfg.Validate(); err != nil {
		logger.New("error", "text", "main").Fatal("Invalid config", logger.Fields{
			"error": err.Error(),
		})
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format, "honchkrow")
	log := logger.GetDefault()
	if *mcpMode {
		// Stdout carries the MCP stream in this mode
		log.SetOutput(os.Stderr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the execution session
	session, err := pyproc.New(ctx, pyproc.Config{
		PythonBin:      cfg.Kernel.PythonBin,
		StartupTimeout: cfg.Kernel.StartupTimeout,
		Logger:         log.WithComponent("pyproc"),
	})
	if err != nil {
		log.Fatal("Failed to start kernel session", logger.Fields{
			"error": err.Error(),
		})
	}
	defer session.Close()

	// Pick the image store backend
	var images store.ImageStore
	switch cfg.Images.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Images.Redis.RedisAddr(),
			Password: cfg.Images.Redis.Password,
			DB:       cfg.Images.Redis.DB,
		})
		images = store.NewRedis(client, cfg.Images.TTL)
	default:
		images = store.NewMemory()
	}
	defer images.Close()

	if *mcpMode {
		bridge := mcpbridge.New(mcpbridge.Config{
			Session: session,
			Images:  images,
			BaseURL: cfg.Server.BaseURL,
			Logger:  log.WithComponent("mcp"),
		})
		if err := bridge.Run(ctx); err != nil {
			log.Fatal("MCP bridge stopped", logger.Fields{
				"error": err.Error(),
			})
		}
		return
	}

	srv := server.NewServer(server.Config{
		Addr:          cfg.Server.ListenAddr,
		BaseURL:       cfg.Server.BaseURL,
		AllowedOrigin: cfg.Server.AllowedOrigin,
		Session:       session,
		Images:        images,
		Metrics:       monitoring.NewMetrics(),
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received signal, shutting down", logger.Fields{
			"signal": sig.String(),
		})
	case err := <-errCh:
		if err != nil {
			log.Error("Server stopped", logger.Fields{
				"error": err.Error(),
			})
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("Failed to shut down cleanly", logger.Fields{
			"error": err.Error(),
		})
	}
}
