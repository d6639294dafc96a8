package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/conclave-run/conclave/internal/config"
	"github.com/conclave-run/conclave/internal/core"
	"github.com/conclave-run/conclave/internal/httpapi"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (defaults used if omitted)")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	nodeID := flag.String("node-id", "", "node identifier used for queue leadership (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.HTTPPort = *port
	}
	if *nodeID != "" {
		cfg.NodeID = *nodeID
	}
	if cfg.NodeID == "" {
		hostname, _ := os.Hostname()
		cfg.NodeID = fmt.Sprintf("%s-%d", hostname, os.Getpid())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := core.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start runtime: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close()

	go rt.Run(ctx)

	srv := httpapi.New(rt)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: srv.Handler(),
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("[conclaved] node=%s listening on %s", cfg.NodeID, httpServer.Addr)
		serverErr <- httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		}
	case sig := <-shutdown:
		log.Printf("[conclaved] received %s, shutting down", sig)
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[conclaved] http shutdown: %v", err)
	}

	log.Println("[conclaved] stopped")
}
