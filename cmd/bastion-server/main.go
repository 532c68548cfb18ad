/*-------------------------------------------------------------------------
 *
 * main.go
 *    Main entry point for the bastion gateway server
 *
 * IDENTIFICATION
 *    cmd/bastion-server/main.go
 *
 *-------------------------------------------------------------------------
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joshuaohana/the-bastion/internal/api"
	"github.com/joshuaohana/the-bastion/internal/auth"
	"github.com/joshuaohana/the-bastion/internal/config"
	"github.com/joshuaohana/the-bastion/internal/db"
	"github.com/joshuaohana/the-bastion/internal/engine"
	"github.com/joshuaohana/the-bastion/internal/metrics"
	"github.com/joshuaohana/the-bastion/internal/plugin"
)

var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

func main() {
	var (
		showVersion      = flag.Bool("version", false, "Show version information")
		showVersionShort = flag.Bool("v", false, "Show version information (short)")
		configPath       = flag.String("c", "", "Path to configuration file")
		configPathLong   = flag.String("config", "", "Path to configuration file")
		showHelp         = flag.Bool("help", false, "Show help message")
		showHelpShort    = flag.Bool("h", false, "Show help message (short)")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Bastion Server - human approval gateway for agent actions\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                    Start server with default configuration\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -c config.yaml     Start server with custom config file\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --version          Show version information\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nConfiguration:\n")
		fmt.Fprintf(os.Stderr, "  Configuration can be provided via:\n")
		fmt.Fprintf(os.Stderr, "  - Command line flag: -c or --config\n")
		fmt.Fprintf(os.Stderr, "  - Environment variable: CONFIG_PATH\n")
		fmt.Fprintf(os.Stderr, "  - Environment variables (see config package for details)\n")
	}
	flag.Parse()

	/* Handle version flag */
	if *showVersion || *showVersionShort {
		fmt.Printf("bastion version %s\n", version)
		fmt.Printf("Build date: %s\n", buildDate)
		fmt.Printf("Git commit: %s\n", gitCommit)
		os.Exit(0)
	}

	/* Handle help flag */
	if *showHelp || *showHelpShort {
		flag.Usage()
		os.Exit(0)
	}

	/* Load configuration */
	cfg := config.DefaultConfig()

	/* Command line flag takes precedence over environment variable */
	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = *configPathLong
	}
	if cfgPath == "" {
		cfgPath = os.Getenv("CONFIG_PATH")
	}

	if cfgPath != "" {
		var err error
		cfg, err = config.LoadConfig(cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: Failed to load config: %v\n", err)
			os.Exit(1)
		}
	}
	config.LoadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	/* Initialize logging */
	metrics.InitLogging(cfg.Logging.Level, cfg.Logging.Format)

	/* Initialize the request store */
	var store db.Store
	switch cfg.Database.Driver {
	case "memory":
		store = db.NewMemStore()
		fmt.Println("Using in-memory request store; requests will not survive a restart")
	default:
		connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Password, cfg.Database.Database)

		database, err := db.NewDB(connStr, db.PoolConfig{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: Failed to connect to database: %v\n", err)
			fmt.Fprintf(os.Stderr, "Connection string: host=%s port=%d user=%s dbname=%s\n",
				cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Database)
			os.Exit(1)
		}
		defer database.Close()

		/* Run migrations */
		migrationRunner, err := db.NewMigrationRunner(database, "./migrations")
		if err == nil {
			if err := migrationRunner.Run(context.Background()); err != nil {
				fmt.Printf("Warning: Migration failed: %v\n", err)
			}
		}

		store = db.NewQueries(database)
	}

	/* Load plugin manifests; a plugin that cannot be reached at startup
	 * is a fatal configuration error */
	client := plugin.NewClient(cfg.Plugins.CallTimeout)
	registry := plugin.NewRegistry(client, cfg.Plugins.Addresses)
	if err := registry.Load(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load plugins: %v\n", err)
		os.Exit(1)
	}

	/* Initialize components */
	eng := engine.New(store, registry, cfg.Approval.DefaultTTLSeconds)
	sessions := auth.NewSessionManager(cfg.Auth.SessionTTL)
	handlers := api.NewHandlers(eng, store, registry, sessions, cfg.Auth.AgentAPIKey, cfg.Auth.AdminPasswordHash, cfg.Auth.RateLimitPerMin)

	/* Start expiry sweeper */
	sweeper := engine.NewSweeper(store, cfg.Sweeper.Interval)
	sweeper.Start()
	defer sweeper.Stop()

	/* Start server */
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handlers.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	/* Graceful shutdown */
	go func() {
		fmt.Printf("Server starting on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "FATAL: Server failed to start on %s: %v\n", addr, err)
			os.Exit(1)
		}
	}()

	/* Wait for interrupt signal */
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		fmt.Printf("Server forced to shutdown: %v\n", err)
	}

	fmt.Println("Server exited")
}
