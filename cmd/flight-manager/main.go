// Flight manager
// Administers flights on the tracking backend: creates them, feeds them
// tracking samples, moves them through their lifecycle and reads the
// archived flight logs
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/unklstewy/flighttrack/internal/session"
	"github.com/unklstewy/flighttrack/pkg/config"
	"github.com/unklstewy/flighttrack/pkg/gateway"
)

var (
	// Version information (set by build flags)
	version = "dev"
	commit  = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Usage = printHelp
	flag.Parse()

	if *showVersion {
		fmt.Printf("flight-manager version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}
	if flag.NArg() == 0 {
		printHelp()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := cfg.Logging.Logger(os.Stderr)
	client := gateway.NewClient(cfg.Backend.Gateway())
	client.SetLogger(logger)

	sess := session.New(client, session.Options{Render: cfg.Map.RenderOptions()})
	sess.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := &manager{client: client, session: sess, out: os.Stdout, in: os.Stdin}
	if err := m.run(ctx, flag.Args()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		stop()
		log.Fatalf("%s: %v", flag.Arg(0), err)
	}
}

func printHelp() {
	fmt.Println("flight-manager - Flight tracking backend administration")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  flight-manager [-config path] <command> [arguments]")
	fmt.Println()
	fmt.Println("COMMANDS:")
	fmt.Println("  list [-status s] [-airline a] [-limit n]   List flights")
	fmt.Println("  active                                      List active flights with positions")
	fmt.Println("  show <flight>                               Show a flight and its path summary")
	fmt.Println("  position <flight> [-at time]                Position at a time (default: now)")
	fmt.Println("  create -flight n [options]                  Create a flight")
	fmt.Println("  ingest -flight n [-file f]                  Send one sample (JSON object)")
	fmt.Println("  batch -flight n [-file f]                   Send samples (JSON array)")
	fmt.Println("  status <flight> <scheduled|active|completed>")
	fmt.Println("  complete <flight>                           Complete and archive a flight")
	fmt.Println("  delete <flight>                             Delete a flight")
	fmt.Println("  logs [list | latest <flight> | all <flight> | stats <flight> | delete <id>]")
	fmt.Println()
	fmt.Println("Files default to stdin; use - for stdin explicitly.")
	fmt.Println("Run 'flight-manager <command> -h' for command options.")
}
