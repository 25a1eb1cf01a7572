package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/nggdpp/ndc-harvester/internal/api"
	"github.com/nggdpp/ndc-harvester/internal/catalog"
	"github.com/nggdpp/ndc-harvester/internal/config"
	"github.com/nggdpp/ndc-harvester/internal/events"
	"github.com/nggdpp/ndc-harvester/internal/fetch"
	"github.com/nggdpp/ndc-harvester/internal/jobs"
	"github.com/nggdpp/ndc-harvester/internal/logging"
	"github.com/nggdpp/ndc-harvester/internal/metrics"
	"github.com/nggdpp/ndc-harvester/internal/normalizer"
	"github.com/nggdpp/ndc-harvester/internal/pipeline"
	"github.com/nggdpp/ndc-harvester/internal/scheduler"
	"github.com/nggdpp/ndc-harvester/internal/storage"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configFlag := flag.String("config", "", "path to the XML configuration (default: next to the executable)")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Printf("Warning: failed to read .env: %v\n", err)
	}

	configPath := *configFlag
	if configPath == "" {
		exePath, err := os.Executable()
		if err != nil {
			fmt.Printf("Failed to get executable path: %v\n", err)
			os.Exit(1)
		}
		configPath = filepath.Join(filepath.Dir(exePath), config.DefaultConfigFile)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	log := logging.NewLogger(cfg.Advanced.LogLevel)
	api.ShowErrorDetails = strings.EqualFold(cfg.Advanced.LogLevel, "debug")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	records, err := storage.Open(ctx, cfg.StoreOptions(), log)
	if err != nil {
		log.Error("failed to open record store", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	defer records.Close()

	files, err := storage.NewLocalStore(cfg.Storage.UploadsDirectory)
	if err != nil {
		log.Error("failed to initialize upload storage", "error", err)
		os.Exit(1)
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Messaging.Enabled {
		natsPub, err := events.Connect(cfg.Messaging.NATSURL, cfg.Messaging.Subject, log)
		if err != nil {
			log.Warn("event publishing disabled", "url", cfg.Messaging.NATSURL, "error", err)
		} else {
			publisher = natsPub
		}
	}
	defer publisher.Close()

	m := metrics.New(nil)
	fetcher := fetch.NewClient(cfg.FetchOptions())
	harvester := pipeline.New(pipeline.Config{
		Fetcher:          fetcher,
		Registry:         normalizer.NewRegistry(cfg.NormalizerOptions()),
		Publisher:        publisher,
		Metrics:          m,
		Logger:           log,
		ListingExtension: cfg.Harvest.ListingExtension,
		AcceptableTypes:  cfg.AcceptableContentTypes(),
	})

	catalogClient := catalog.NewClient(fetcher, cfg.Harvest.CatalogURL, log)
	jobMgr := jobs.NewManager(jobs.Config{
		Harvester:     harvester,
		Catalog:       catalogClient,
		Store:         records,
		Publisher:     publisher,
		Metrics:       m,
		Logger:        log,
		MaxConcurrent: cfg.Harvest.MaxConcurrentJobs,
	})

	// Start background job cleanup
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				jobMgr.CleanupOldJobs(cfg.JobRetention())
			case <-ctx.Done():
				return
			}
		}
	}()

	var sched *scheduler.Scheduler
	if cfg.Schedule.Enabled {
		sched = scheduler.New(jobMgr, cfg.Schedule.Cron, cfg.Schedule.SourcesFile, log)
		if err := sched.Start(); err != nil {
			log.Error("scheduler not started", "error", err)
			sched = nil
		}
	}

	e := echo.New()
	e.HideBanner = true
	api.SetupMiddleware(e)

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/status") ||
				strings.HasSuffix(path, "/progress") ||
				path == "/health" ||
				path == "/metrics"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.RequestTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			return strings.HasSuffix(c.Request().URL.Path, "/progress") ||
				c.Request().Header.Get("Accept") == "text/event-stream"
		},
		ErrorMessage: "Request timeout - the source took too long",
	}))

	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			return c.Request().Header.Get("Accept") == "text/event-stream" ||
				strings.HasSuffix(c.Request().URL.Path, "/progress")
		},
	}))

	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Normalizer: harvester,
		Jobs:       jobMgr,
		Records:    records,
		Files:      files,
		Catalog:    catalogClient,
		Metrics:    m,
		Logger:     log,
		Version:    Version,

		AcceptableTypes: cfg.AcceptableContentTypes(),
	}))

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	schedule := "off"
	if sched != nil {
		schedule = cfg.Schedule.Cron
	}
	eventsTarget := "off"
	if cfg.Messaging.Enabled {
		eventsTarget = cfg.Messaging.NATSURL
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           NDC Harvester Server                            ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Store:      %-45s║\n", cfg.Storage.Backend)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.Storage.DataDirectory)
	fmt.Printf("║  Schedule:  %-46s║\n", schedule)
	fmt.Printf("║  Events:    %-46s║\n", eventsTarget)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	if err := jobMgr.Shutdown(shutdownCtx); err != nil {
		log.Warn("jobs did not stop in time", "error", err)
	}
}
