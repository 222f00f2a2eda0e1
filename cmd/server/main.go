package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	iofs "io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/yte121/openswarm/internal/audit"
	"github.com/yte121/openswarm/internal/auth"
	"github.com/yte121/openswarm/internal/cleanup"
	"github.com/yte121/openswarm/internal/config"
	"github.com/yte121/openswarm/internal/filter"
	"github.com/yte121/openswarm/internal/gateway"
	"github.com/yte121/openswarm/internal/logger"
	"github.com/yte121/openswarm/internal/mcp"
	"github.com/yte121/openswarm/internal/process"
	"github.com/yte121/openswarm/internal/process/docker"
	"github.com/yte121/openswarm/internal/schedule"
	"github.com/yte121/openswarm/internal/stream"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0"
var Version = "dev"

func main() {
	// Check for subcommands before parsing flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "init":
			cmdInit()
			return
		case "token":
			cmdToken(os.Args[2:])
			return
		case "--version", "-v":
			fmt.Printf("openswarm %s\n", Version)
			return
		case "--help", "-h", "help":
			printUsage()
			return
		}
	}

	// Default: run server
	runServer()
}

func printUsage() {
	fmt.Printf(`Openswarm %s - Process Output Capture and Streaming

Usage: openswarm [command] [options]

Commands:
  (default)    Start the MCP server
  init         Initialize Openswarm directory structure
  token        Manage authentication tokens

Server Options:
  --dir <path>       Openswarm home directory
  --addr <address>   Listen address (overrides config)

Config Precedence (for server):
  1. --dir flag
  2. OPENSWARM_HOME env var
  3. ./.openswarm (if initialized in current directory)
  4. ~/.openswarm (default)

Examples:
  openswarm                              Start the server (auto-detect config)
  openswarm --dir /path/to/openswarm     Start with specific config directory
  openswarm init                         Set up ~/.openswarm
  openswarm init --dir .                 Set up in current directory
  openswarm token create --name "Local Dev" --scope admin
`, Version)
}

func runServer() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	dirFlag := flag.String("dir", "", "Openswarm home directory (default: ~/.openswarm)")
	addrFlag := flag.String("addr", "", "Listen address (overrides config)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("openswarm %s\n", Version)
		os.Exit(0)
	}

	homeDir := resolveHomeDir(*dirFlag)
	dataDir := filepath.Join(homeDir, "data")
	configDir := filepath.Join(homeDir, "config")

	// Check if initialized
	if _, err := os.Stat(filepath.Join(configDir, "openswarm.jsonc")); errors.Is(err, iofs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "Openswarm not initialized. Run 'openswarm init' first.")
		os.Exit(1)
	}

	// Load configuration
	configPath, err := config.FindConfigPath(configDir)
	if err != nil {
		log.Fatalf("Failed to locate configuration: %v", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	logDir := filepath.Join(dataDir, "logs")
	if err := logger.Init(logDir); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Println("🐝 Openswarm - Process Output Capture and Streaming")
	logger.Println("")

	audit.Default().SetEnabled(cfg.AuditEnabled())

	// Compile the redaction chain before anything launches
	var chain *filter.Chain
	if len(cfg.Filters) > 0 {
		chain, err = filter.NewChain(cfg.Filters)
		if err != nil {
			logger.Fatalf("Failed to compile filter rules: %v", err)
		}
		logger.Printf("🔒 Loaded %d filter rule(s)", chain.Len())
	}

	addr := cfg.Server.Address
	if *addrFlag != "" {
		addr = *addrFlag
	}

	// Select the process launcher
	var launcher process.Launcher
	var pinger mcp.Pinger
	switch cfg.Launcher.Type {
	case "docker":
		dl, err := docker.NewLauncher(docker.Options{
			Image:       cfg.Launcher.Docker.Image,
			NetworkMode: cfg.Launcher.Docker.NetworkMode,
			Memory:      cfg.Launcher.Docker.Memory,
			CPUs:        cfg.Launcher.Docker.CPUs,
		})
		if err != nil {
			logger.Fatalf("Failed to initialize Docker launcher: %v", err)
		}
		if err := dl.Ping(context.Background()); err != nil {
			logger.Fatalf("Failed to connect to Docker daemon: %v", err)
		}
		defer func() { _ = dl.Close() }()
		launcher = dl
		pinger = dl
		logger.Printf("🐳 Docker launcher (image=%s)", cfg.Launcher.Docker.Image)
	default:
		launcher = process.NewLocalLauncher()
		logger.Println("💻 Local launcher")
	}

	// Wire capture: supervisor feeds the multiplexer, gateway fronts both
	mux := stream.NewMultiplexer()
	sup := process.NewSupervisor(launcher, chain, mux, process.Options{
		GracePeriod:     time.Duration(cfg.Capture.GracePeriodSeconds) * time.Second,
		FlushInterval:   time.Duration(cfg.Capture.FlushIntervalMs) * time.Millisecond,
		MaxBufferChunks: cfg.Capture.MaxBufferChunks,
		MaxBufferBytes:  cfg.Capture.MaxBufferBytes,
		DefaultPolicy:   cfg.Capture.SubscriberPolicy,
	})

	muxCtx, muxCancel := context.WithCancel(context.Background())
	defer muxCancel()
	go mux.Run(muxCtx, sup.Events())

	gw := gateway.New(sup, mux)

	logger.Printf("📁 Data directory: %s", dataDir)
	logger.Printf("📝 Logs directory: %s", logDir)
	logger.Println("")

	// Initialize auth store
	authStore, err := auth.NewStore(dataDir)
	if err != nil {
		logger.Fatalf("Failed to initialize auth store: %v", err)
	}
	defer func() { _ = authStore.Close() }()
	logger.Printf("🔐 Auth database: %s/auth.db", dataDir)

	// Initialize schedule store
	scheduleStore, err := schedule.NewStore(dataDir)
	if err != nil {
		logger.Fatalf("Failed to initialize schedule store: %v", err)
	}
	defer func() { _ = scheduleStore.Close() }()
	logger.Printf("📅 Schedule database: %s/schedules.db", dataDir)

	server := mcp.NewServer(gw, authStore, &mcp.ServerConfig{
		ScheduleStore: scheduleStore,
		Pinger:        pinger,
	})

	// Start buffer retention sweeping
	cleaner := cleanup.New(gw, cleanup.Config{
		Interval:  time.Duration(cfg.Retention.SweepIntervalMinutes) * time.Minute,
		Retention: time.Duration(cfg.Retention.WindowMinutes) * time.Minute,
	})
	cleaner.Start()

	logger.Println("🚀 Starting Openswarm MCP server...")
	logger.Printf("📡 Server address: http://localhost%s/mcp", addr)
	logger.Println("   Use the process, exec, stream, schedule, and token tools")
	logger.Println("")

	// Setup graceful shutdown
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Serve(addr)
	}()

	select {
	case err := <-serverErr:
		logger.Fatalf("Server error: %v", err)
	case sig := <-shutdownChan:
		logger.Printf("⚠️  Received signal %v, initiating graceful shutdown...", sig)

		logger.Println("   Stopping schedule runner...")
		server.Close()

		logger.Println("   Stopping cleanup...")
		cleaner.Stop()

		logger.Println("   Terminating managed processes...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		for _, info := range gw.List() {
			if info.State.Terminal() {
				continue
			}
			if err := gw.Terminate(shutdownCtx, info.ID, syscall.SIGTERM); err != nil {
				logger.Printf("⚠️  Failed to terminate %s: %v", info.ID, err)
			}
		}
		cancel()
		muxCancel()

		logger.Println("   Closing auth database...")
		_ = authStore.Close()

		logger.Println("   Closing schedule database...")
		_ = scheduleStore.Close()

		logger.Println("✅ Shutdown complete")
		_ = logger.Close()
		os.Exit(0) //nolint:gocritic // intentional exit after manual cleanup
	}
}

func cmdInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	dirFlag := fs.String("dir", "", "Directory to initialize (default: ~/.openswarm)")
	_ = fs.Parse(os.Args[2:])

	var homeDir string
	if *dirFlag != "" {
		absDir, err := filepath.Abs(*dirFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid directory: %v\n", err)
			os.Exit(1)
		}
		homeDir = absDir
	} else {
		userHome, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: could not determine home directory: %v\n", err)
			os.Exit(1)
		}
		homeDir = filepath.Join(userHome, ".openswarm")
	}

	configDir := filepath.Join(homeDir, "config")
	dataDir := filepath.Join(homeDir, "data")

	// Check if already initialized (look for config file, not just directory)
	configFile := filepath.Join(configDir, "openswarm.jsonc")
	if _, err := os.Stat(configFile); err == nil {
		fmt.Printf("⚠️  %s is already initialized.\n", homeDir)
		fmt.Print("Overwrite? [y/N]: ")
		var response string
		_, _ = fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return
		}
	}

	fmt.Println("🐝 Initializing Openswarm")
	fmt.Println("")

	dirs := []string{
		configDir,
		filepath.Join(dataDir, "logs"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", dir, err)
			os.Exit(1)
		}
		fmt.Printf("   Created %s\n", dir)
	}

	defaultConfig := `{
  // Openswarm Configuration

  "server": {
    "address": ":8080"
  },

  // How processes are spawned: "local" runs them on this host,
  // "docker" runs each one in a container.
  "launcher": {
    "type": "local",
    "docker": {
      "image": "",
      "network_mode": "none",
      "memory": "512M",
      "cpus": 1
    }
  },

  "capture": {
    "max_buffer_chunks": 1000,
    "max_buffer_bytes": 0,
    "flush_interval_ms": 50,
    "grace_period_seconds": 5,
    "default_subscriber_policy": "drop-oldest",
    "subscriber_queue_size": 100
  },

  // Ordered redaction rules applied to every line of output.
  // Example:
  //   { "pattern": "osw_[A-Za-z0-9]+", "replacement": "[REDACTED]" }
  "filters": [],

  "retention": {
    "window_minutes": 30,
    "sweep_interval_minutes": 5
  },

  "audit": {
    "enabled": true
  }
}
`
	configPath := filepath.Join(configDir, "openswarm.jsonc")
	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating openswarm.jsonc: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("   Created %s\n", configPath)

	// Create admin token
	fmt.Println("")
	fmt.Println("Creating admin token...")
	authStore, err := auth.NewStore(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing auth store: %v\n", err)
		os.Exit(1)
	}

	token, tokenID, err := authStore.CreateToken("admin", auth.ScopeAdmin, nil)
	if err != nil {
		_ = authStore.Close()
		fmt.Fprintf(os.Stderr, "Error creating token: %v\n", err)
		os.Exit(1)
	}
	_ = authStore.Close()

	fmt.Println("")
	fmt.Println("✅ Openswarm initialized!")
	fmt.Println("")
	fmt.Printf("Admin token: %s\n", tokenID)
	fmt.Printf("Scope:       %s\n", token.Scope)
	fmt.Println("")
	fmt.Println("IMPORTANT: Save this token now. It cannot be retrieved later.")
	fmt.Println("")
	fmt.Println("Start the server with: openswarm")
}

func cmdToken(args []string) {
	if len(args) < 1 {
		printTokenUsage()
		os.Exit(1)
	}

	homeDir := resolveHomeDir("")
	dataDir := filepath.Join(homeDir, "data")

	store, err := auth.NewStore(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing auth store: %v\n", err)
		os.Exit(1)
	}

	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "create":
		tokenCreate(store, cmdArgs)
	case "list":
		tokenList(store)
	case "revoke":
		tokenRevoke(store, cmdArgs)
	case "help", "-h", "--help":
		_ = store.Close()
		printTokenUsage()
		return
	default:
		_ = store.Close()
		fmt.Fprintf(os.Stderr, "Unknown token command: %s\n", cmd)
		printTokenUsage()
		os.Exit(1)
	}
	_ = store.Close()
}

func printTokenUsage() {
	fmt.Println(`Token Management

Usage: openswarm token <command> [options]

Commands:
  create    Create a new API token
  list      List all tokens
  revoke    Revoke a token
  help      Show this help

Scope Formats:
  admin      Full access
  admin:ro   Read-only access

Examples:
  openswarm token create --name "Local Dev" --scope admin
  openswarm token list
  openswarm token revoke osw_xxxx...`)
}

func tokenCreate(store *auth.Store, args []string) {
	fs := flag.NewFlagSet("token create", flag.ExitOnError)
	name := fs.String("name", "", "Human-readable token name (required)")
	scope := fs.String("scope", "", "Token scope: admin or admin:ro (required)")
	_ = fs.Parse(args)

	if *name == "" || *scope == "" {
		fmt.Fprintln(os.Stderr, "Error: --name and --scope are required")
		fs.PrintDefaults()
		os.Exit(1)
	}

	if !auth.IsValidScope(*scope) {
		fmt.Fprintf(os.Stderr, "Error: invalid scope '%s'\n", *scope)
		fmt.Fprintln(os.Stderr, "Valid scopes: admin, admin:ro")
		os.Exit(1)
	}

	token, tokenID, err := store.CreateToken(*name, *scope, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Token created successfully!")
	fmt.Println()
	fmt.Printf("Token ID: %s\n", tokenID)
	fmt.Printf("Name:     %s\n", token.Name)
	fmt.Printf("Scope:    %s\n", token.Scope)
	fmt.Println()
	fmt.Println("IMPORTANT: Save this token now. It cannot be retrieved later.")
}

func tokenList(store *auth.Store) {
	tokens, err := store.ListTokens()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing tokens: %v\n", err)
		os.Exit(1)
	}

	if len(tokens) == 0 {
		fmt.Println("No tokens found.")
		fmt.Println()
		fmt.Println("Create one with: openswarm token create --name \"My Token\" --scope admin")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tSCOPE\tCREATED\tLAST USED")
	_, _ = fmt.Fprintln(w, "--\t----\t-----\t-------\t---------")

	for _, t := range tokens {
		lastUsed := "never"
		if t.LastUsedAt != nil {
			lastUsed = t.LastUsedAt.Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			maskTokenID(t.ID),
			t.Name,
			t.Scope,
			t.CreatedAt.Format("2006-01-02 15:04"),
			lastUsed,
		)
	}
	_ = w.Flush()
}

func tokenRevoke(store *auth.Store, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Error: token ID required")
		fmt.Fprintln(os.Stderr, "Usage: openswarm token revoke <token-id>")
		os.Exit(1)
	}

	tokenID := args[0]
	if err := store.RevokeToken(tokenID); err != nil {
		fmt.Fprintf(os.Stderr, "Error revoking token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Token %s revoked.\n", maskTokenID(tokenID))
}

func maskTokenID(tokenID string) string {
	if len(tokenID) <= 12 {
		return "***"
	}
	return tokenID[:8] + "..." + tokenID[len(tokenID)-4:]
}

// resolveHomeDir determines the openswarm home directory with
// precedence: flag, OPENSWARM_HOME, ./.openswarm, ~/.openswarm.
func resolveHomeDir(flagDir string) string {
	if flagDir != "" {
		absDir, err := filepath.Abs(flagDir)
		if err != nil {
			log.Fatalf("Invalid directory: %v", err)
		}
		return absDir
	}

	if envDir := os.Getenv("OPENSWARM_HOME"); envDir != "" {
		absDir, err := filepath.Abs(envDir)
		if err != nil {
			log.Fatalf("Invalid OPENSWARM_HOME: %v", err)
		}
		return absDir
	}

	cwd, err := os.Getwd()
	if err == nil {
		directConfig := filepath.Join(cwd, "config", "openswarm.jsonc")
		if _, err := os.Stat(directConfig); err == nil {
			return cwd
		}
		localDir := filepath.Join(cwd, ".openswarm")
		configFile := filepath.Join(localDir, "config", "openswarm.jsonc")
		if _, err := os.Stat(configFile); err == nil {
			return localDir
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Fatalf("Failed to get home directory: %v", err)
	}
	return filepath.Join(homeDir, ".openswarm")
}
