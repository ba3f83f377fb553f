package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/workerd/internal/config"
	"github.com/GriffinCanCode/workerd/internal/server"
)

func main() {
	port := flag.String("port", "", "Server port (overrides PORT)")
	scripts := flag.String("scripts", "", "Script root directory (overrides WORKERD_SCRIPT_ROOT)")
	manifest := flag.String("manifest", "", "Worker manifest path (overrides WORKERD_MANIFEST)")
	dev := flag.Bool("dev", false, "Development mode: colored logs, debug level")
	flag.Parse()

	cfg := config.LoadOrDefault()
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *scripts != "" {
		cfg.Worker.ScriptRoot = *scripts
	}
	if *manifest != "" {
		cfg.Worker.Manifest = *manifest
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	srv, err := server.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		log.Println("Shutting down gracefully...")
		if err := srv.Close(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	case err := <-errChan:
		log.Fatalf("Server error: %v", err)
	}
}
