package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/docker/docker/client"
	"github.com/spf13/cobra"

	"github.com/jbweber/anvil/internal/config"
	"github.com/jbweber/anvil/internal/container"
	"github.com/jbweber/anvil/internal/httpapi"
	anvillibvirt "github.com/jbweber/anvil/internal/libvirt"
	"github.com/jbweber/anvil/internal/lifecycle"
	"github.com/jbweber/anvil/internal/metrics"
	"github.com/jbweber/anvil/internal/storage"
	"github.com/jbweber/anvil/internal/vm"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the anvil API server",
	Long: `Connect to the configured libvirt and Docker daemons and serve the
lifecycle API over HTTP until interrupted.

Backends disabled in the configuration answer every request for their
kind with a connection error.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if token != "" {
			cfg.HTTP.Token = token
		}

		logger := newLogger(os.Stderr, cfg.Log)
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, logger)
	},
}

// backends holds the daemon connections a server owns.
type backends struct {
	libvirt *anvillibvirt.Client
	docker  *client.Client

	vms        lifecycle.VMBackend
	containers lifecycle.ContainerBackend
}

// connect opens every enabled backend. Disabled backends stay nil.
func connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backends, error) {
	b := &backends{}

	if cfg.LibvirtEnabled() {
		lv, err := anvillibvirt.ConnectWithContext(ctx, cfg.Libvirt.Socket, cfg.Libvirt.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to libvirt: %w", err)
		}
		b.libvirt = lv

		store := storage.NewManager(lv.Libvirt(), cfg.Libvirt.StoragePool, logger)
		if cfg.Libvirt.EnsurePool {
			if err := store.EnsurePool(ctx, cfg.Libvirt.PoolPath); err != nil {
				b.close(logger)
				return nil, fmt.Errorf("failed to ensure storage pool %s: %w", cfg.Libvirt.StoragePool, err)
			}
		}

		b.vms = vm.New(lv, store, vm.Options{
			Timeout:  cfg.BackendTimeout,
			Network:  cfg.Libvirt.Network,
			ImageDir: cfg.Libvirt.ImageDir,
			Logger:   logger,
		})
		logger.Info("libvirt backend ready", "socket", lv.SocketPath(), "pool", store.Pool())
	}

	if cfg.DockerEnabled() {
		cli, err := container.Connect(ctx, cfg.Docker.Host, cfg.Docker.APIVersion)
		if err != nil {
			b.close(logger)
			return nil, fmt.Errorf("failed to connect to docker: %w", err)
		}
		b.docker = cli

		b.containers = container.New(cli, container.Options{
			Timeout: cfg.BackendTimeout,
			Logger:  logger,
		})
		logger.Info("docker backend ready", "host", cli.DaemonHost(), "api_version", cli.ClientVersion())
	}

	return b, nil
}

func (b *backends) close(logger *slog.Logger) {
	if b.libvirt != nil {
		if err := b.libvirt.Close(); err != nil {
			logger.Warn("failed to close libvirt connection", "error", err)
		}
	}
	if b.docker != nil {
		if err := b.docker.Close(); err != nil {
			logger.Warn("failed to close docker client", "error", err)
		}
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	b, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.close(logger)

	ctrlOpts := lifecycle.Options{Logger: logger}
	srvOpts := httpapi.Options{
		Listen:       cfg.HTTP.Listen,
		Token:        cfg.HTTP.Token,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		Logger:       logger,
	}

	if cfg.Metrics.Enabled {
		recorder, err := metrics.NewRecorder(cfg.Metrics.Namespace)
		if err != nil {
			return fmt.Errorf("failed to create metrics recorder: %w", err)
		}
		ctrlOpts.Observer = recorder
		srvOpts.Metrics = recorder.Handler()
		srvOpts.MetricsPath = cfg.Metrics.Path
		srvOpts.Health = recorder
	}

	if cfg.HTTP.Token == "" {
		logger.Warn("no API token configured, requests are not authenticated")
	}

	ctrl := lifecycle.NewController(b.vms, b.containers, ctrlOpts)
	srv := httpapi.NewServer(ctrl, srvOpts)

	return srv.Run(ctx)
}

var testConnCmd = &cobra.Command{
	Use:   "test-conn",
	Short: "Test backend connections",
	Long:  `Test connectivity to the configured libvirt and Docker daemons and display version information.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		ctx := cmd.Context()

		if cfg.LibvirtEnabled() {
			if err := testLibvirt(cfg); err != nil {
				return err
			}
		}
		if cfg.DockerEnabled() {
			if err := testDocker(ctx, cfg); err != nil {
				return err
			}
		}

		fmt.Println("\nConnection test successful!")
		return nil
	},
}

func testLibvirt(cfg *config.Config) error {
	fmt.Println("Testing libvirt connection...")

	lv, err := anvillibvirt.Connect(cfg.Libvirt.Socket, cfg.Libvirt.Timeout)
	if err != nil {
		return fmt.Errorf("failed to connect to libvirt: %w", err)
	}
	defer func() {
		if closeErr := lv.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close libvirt connection: %v\n", closeErr)
		}
	}()

	fmt.Println("✓ Connected to libvirt daemon")

	if err := lv.Ping(); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}

	libVersion, err := lv.Libvirt().ConnectGetLibVersion()
	if err != nil {
		return fmt.Errorf("failed to get libvirt version: %w", err)
	}

	// libvirt encodes 8.6.0 as 8006000
	major := libVersion / 1000000
	minor := (libVersion % 1000000) / 1000
	patch := libVersion % 1000
	fmt.Printf("✓ Libvirt version: %d.%d.%d\n", major, minor, patch)

	hostname, err := lv.Libvirt().ConnectGetHostname()
	if err != nil {
		return fmt.Errorf("failed to get hostname: %w", err)
	}
	fmt.Printf("✓ Hypervisor hostname: %s\n", hostname)

	store := storage.NewManager(lv.Libvirt(), cfg.Libvirt.StoragePool, nil)
	info, err := store.GetPoolInfo(context.Background())
	if err != nil {
		fmt.Printf("✗ Storage pool %s: %v\n", cfg.Libvirt.StoragePool, err)
		return nil
	}
	fmt.Printf("✓ Storage pool %s: %s\n", info.Name, info.State)
	return nil
}

func testDocker(ctx context.Context, cfg *config.Config) error {
	fmt.Println("Testing docker connection...")

	cli, err := container.Connect(ctx, cfg.Docker.Host, cfg.Docker.APIVersion)
	if err != nil {
		return fmt.Errorf("failed to connect to docker: %w", err)
	}
	defer func() {
		if closeErr := cli.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close docker client: %v\n", closeErr)
		}
	}()

	fmt.Println("✓ Connected to docker daemon")

	v, err := cli.ServerVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get docker version: %w", err)
	}
	fmt.Printf("✓ Docker version: %s (API %s)\n", v.Version, v.APIVersion)
	fmt.Printf("✓ Docker host: %s\n", cli.DaemonHost())
	return nil
}
