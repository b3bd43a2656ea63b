package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/unklstewy/flighttrack/internal/session"
	"github.com/unklstewy/flighttrack/pkg/config"
	"github.com/unklstewy/flighttrack/pkg/gateway"
)

var (
	// Version information (set by build flags)
	version = "dev"
	commit  = "unknown"
)

// maxLogMessages is how many lines the log panel keeps
const maxLogMessages = 500

func main() {
	// Parse command line flags
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	flightArg := flag.String("flight", "", "Flight number to track on startup")
	showVersion := flag.Bool("version", false, "Show version information")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("flight-console version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Library logs are shown in the log panel
	logs := NewLogManager(maxLogMessages, cfg.Logging.SlogLevel())
	logger := slog.New(logs.Handler())

	client := gateway.NewClient(cfg.Backend.Gateway())
	client.SetLogger(logger)

	sess := session.New(client, session.Options{
		Render:      cfg.Map.RenderOptions(),
		Interpolate: cfg.UI.Interpolate,
	})
	sess.SetLogger(logger)

	app := NewApp(&AppConfig{
		Config:  cfg,
		Session: sess,
		Logs:    logs,
	})

	logs.Info("Backend %s", cfg.Backend.BaseURL)
	if *flightArg != "" {
		app.track(*flightArg)
	}

	if err := app.Run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

// printHelp prints usage information
func printHelp() {
	fmt.Println("flight-console - Terminal flight path console")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  flight-console [options]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to configuration file (default: configs/config.json)")
	fmt.Println("  -flight string")
	fmt.Println("        Flight number to track on startup")
	fmt.Println("  -version")
	fmt.Println("        Show version information")
	fmt.Println("  -help")
	fmt.Println("        Show this help message")
	fmt.Println()
	fmt.Println("KEYBOARD SHORTCUTS:")
	fmt.Println("  Flight:")
	fmt.Println("    / or f         Track a flight by number")
	fmt.Println("    a              List active flights (ENTER to track)")
	fmt.Println("    r              Reload the tracked flight")
	fmt.Println("    c              Mark the tracked flight completed")
	fmt.Println()
	fmt.Println("  Time:")
	fmt.Println("    t              Position at a time (HH:MM[:SS] or RFC 3339)")
	fmt.Println("    [ / ]          Step back / forward one sample")
	fmt.Println("    n              Back to the current position")
	fmt.Println()
	fmt.Println("  Control:")
	fmt.Println("    click          Inspect a marker")
	fmt.Println("    q or ESC       Quit application")
}
