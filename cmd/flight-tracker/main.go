// Flight tracker TUI
// Looks up a flight, draws its path on a terminal map and answers
// "where was it at time T" queries
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/unklstewy/flighttrack/internal/session"
	"github.com/unklstewy/flighttrack/pkg/config"
	"github.com/unklstewy/flighttrack/pkg/gateway"
)

var (
	configPath = flag.String("config", "configs/config.json", "Path to configuration file")
	flightArg  = flag.String("flight", "", "Flight number to track on startup")
	logPath    = flag.String("log", "", "Write library logs to this file (default: discarded)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// The alt screen owns stdout, so library logs go to a file or nowhere
	var logOut io.Writer = io.Discard
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		defer f.Close()
		logOut = f
	}
	logger := cfg.Logging.Logger(logOut)

	client := gateway.NewClient(cfg.Backend.Gateway())
	client.SetLogger(logger)

	sess := session.New(client, session.Options{
		Render:      cfg.Map.RenderOptions(),
		Interpolate: cfg.UI.Interpolate,
	})
	sess.SetLogger(logger)

	m := newModel(sess, cfg)

	var cmds []tea.Cmd
	if *flightArg != "" {
		m.loading = true
		cmds = append(cmds, m.trackCmd(*flightArg))
	}
	m.startup = cmds

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
