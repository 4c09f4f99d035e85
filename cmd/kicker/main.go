package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sytexa-julia/docker-kicker/internal/config"
	"github.com/sytexa-julia/docker-kicker/internal/containerd"
	"github.com/sytexa-julia/docker-kicker/internal/docker"
	"github.com/sytexa-julia/docker-kicker/internal/kick"
	"github.com/sytexa-julia/docker-kicker/internal/runtime"
	"github.com/sytexa-julia/docker-kicker/internal/tracker"
	"github.com/sytexa-julia/docker-kicker/internal/web"
)

var (
	// Version is set during build
	Version = "dev"
	// BuildTime is set during build
	BuildTime = "unknown"
	// Default configuration file path
	defaultConfigPath = "/etc/kicker/kicker.json"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// Config path from environment variable if set
	envConfigPath := os.Getenv("KICKER_CONFIG")

	var (
		configPath       string
		port             uint16 = 8080
		runtimeName             = "docker"
		containerdSocket        = "/run/containerd/containerd.sock"
	)

	rootCmd := &cobra.Command{
		Use:   "kicker",
		Short: "Webhook-triggered container launcher",
		Long: `Kicker exposes an HTTP endpoint that matches a secret key against a
static configuration table and launches one instance of a preconfigured
container image, subject to per-configuration concurrency limits and IP
allowlisting.`,
		Run: func(cmd *cobra.Command, args []string) {
			log.Infof("Starting kicker %s (built at %s)", Version, BuildTime)
			runServer(log, configPath, port, runtimeName, containerdSocket)
		},
	}

	defaultPath := defaultConfigPath
	if envConfigPath != "" {
		defaultPath = envConfigPath
	}

	rootCmd.Flags().StringVar(&configPath, "config", defaultPath, "Configuration file (can also be set via KICKER_CONFIG env var)")
	rootCmd.Flags().Uint16Var(&port, "port", port, "HTTP listen port")
	rootCmd.Flags().StringVar(&runtimeName, "runtime", runtimeName, "Container runtime to use (docker or containerd)")
	rootCmd.Flags().StringVar(&containerdSocket, "containerd-socket", containerdSocket, "Path to the containerd socket")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kicker %s (built at %s)\n", Version, BuildTime)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Failed to execute command: %v", err)
	}
}

func runServer(log *logrus.Logger, configPath string, port uint16, runtimeName, containerdSocket string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// A configuration that fails validation must never serve requests
	if err := config.Validate(cfg.Configs, log); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	containerRuntime, err := createRuntime(log, cfg, runtimeName, containerdSocket)
	if err != nil {
		log.Fatalf("Failed to create container runtime: %v", err)
	}

	launchTracker := tracker.NewTracker(log)
	kickManager := kick.NewManager(containerRuntime, launchTracker, log)

	server, err := web.NewServer(cfg, kickManager, log, port)
	if err != nil {
		log.Fatalf("Failed to create web server: %v", err)
	}

	if err := server.Start(); err != nil {
		log.Fatalf("Failed to start web server: %v", err)
	}

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	log.Info("Kicker is running. Press Ctrl+C to stop.")

	sig := <-sigCh
	log.Infof("Received signal %v, shutting down...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		log.Errorf("Failed to stop web server: %v", err)
	}
	if err := containerRuntime.Close(); err != nil {
		log.Errorf("Failed to close container runtime: %v", err)
	}

	log.Info("Shutdown complete")
}

func createRuntime(log *logrus.Logger, cfg *config.Config, runtimeName, containerdSocket string) (runtime.ContainerRuntime, error) {
	switch runtimeName {
	case "docker", "":
		log.Info("Using Docker runtime")
		return docker.NewManager(cfg.Docker.Host, log)
	case "containerd":
		log.Info("Using containerd runtime")
		return containerd.NewManager(containerdSocket, log)
	default:
		return nil, fmt.Errorf("unsupported runtime: %s (supported: docker, containerd)", runtimeName)
	}
}
