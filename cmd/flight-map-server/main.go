// Flight map server
// Serves flight scenes as GeoJSON over REST and a WebSocket feed
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unklstewy/flighttrack/internal/metrics"
	"github.com/unklstewy/flighttrack/internal/session"
	"github.com/unklstewy/flighttrack/pkg/config"
	"github.com/unklstewy/flighttrack/pkg/gateway"
)

var (
	configPath = flag.String("config", "configs/config.json", "Path to configuration file")
	port       = flag.String("port", "", "HTTP server port (overrides config)")
)

func main() {
	flag.Parse()

	log.Println("Starting flight map server...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := cfg.Logging.Logger(os.Stderr)
	m := metrics.New()

	client := gateway.NewClient(cfg.Backend.Gateway())
	client.SetLogger(logger)
	client.SetObserver(m)

	sess := session.New(client, session.Options{
		Render:      cfg.Map.RenderOptions(),
		Interpolate: cfg.UI.Interpolate,
	})
	sess.SetLogger(logger)
	sess.SetObserver(m)
	sess.SetAssemblyObserver(m)
	stopWatch := m.WatchStore(sess.Store())
	defer stopWatch()

	srv := NewServer(cfg, sess, m)
	if srv.renderer == nil {
		log.Printf("Warning: %v; map endpoints will answer 503", srv.mapErr)
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      srv.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server listening on http://%s", httpServer.Addr)
		log.Printf("Backend: %s", client.BaseURL())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
