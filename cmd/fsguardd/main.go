package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/docker/go-plugins-helpers/volume"
	"github.com/urfave/cli/v3"

	"github.com/powersafefs/fsguard/internal/config"
	"github.com/powersafefs/fsguard/internal/device"
	"github.com/powersafefs/fsguard/internal/driver"
	"github.com/powersafefs/fsguard/internal/guard"
	"github.com/powersafefs/fsguard/internal/log"
	"github.com/powersafefs/fsguard/internal/version"
)

const (
	// deviceWaitAttempts and deviceWaitDelay bound how long startup waits
	// for the device node to show up (card readers can be slow to settle)
	deviceWaitAttempts = 10
	deviceWaitDelay    = 3 * time.Second

	// drainTimeout is how long shutdown waits for mount holders to leave
	drainTimeout = 30 * time.Second
)

func main() {
	cmd := &cli.Command{
		Name:  "fsguardd",
		Usage: "Guards a removable storage device and serves it as a podman volume",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "device",
				Aliases: []string{"d"},
				Usage:   "Block device node to guard (e.g. /dev/mmcblk0p1)",
			},
			// Flags other than --config carry no default value so that an
			// unset flag never overrides the configuration file; Merge only
			// applies non-empty values and ApplyDefaults fills the rest.
			&cli.StringFlag{
				Name:    "backend",
				Aliases: []string{"b"},
				Usage:   "Device backend: syscall or udisks",
			},
			&cli.StringFlag{
				Name:  "fstype",
				Usage: "Filesystem type for the syscall backend",
			},
			&cli.StringFlag{
				Name:    "mount-path",
				Aliases: []string{"m"},
				Usage:   "Mount point for the syscall backend",
			},
			&cli.StringFlag{
				Name:    "socket",
				Aliases: []string{"s"},
				Usage:   "Unix socket path for the plugin",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Configuration file path",
				Value:   config.DefaultConfigPath,
			},
			&cli.StringFlag{
				Name:  "mode",
				Usage: "Initial guard mode",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
			&cli.BoolFlag{
				Name:    "version",
				Aliases: []string{"V"},
				Usage:   "Print version information",
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	// Handle version flag
	if cmd.Bool("version") {
		fmt.Println(version.String())
		return nil
	}

	// Setup logging
	log.Setup(cmd.Bool("verbose"))

	// Load config file
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Merge CLI flags (CLI takes precedence)
	cfg.Merge(
		cmd.String("device"),
		cmd.String("backend"),
		cmd.String("fstype"),
		cmd.String("mount-path"),
		cmd.String("socket"),
		cmd.String("mode"),
	)

	// Apply defaults
	cfg.ApplyDefaults()

	// Validate config
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	initialMode, err := guard.ParseMode(cfg.Mode)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log.Info("starting guard daemon",
		"device", cfg.Device,
		"backend", cfg.Backend,
		"mount_path", cfg.MountPath,
		"socket", cfg.SocketPath,
		"mode", initialMode,
	)

	// Wait for the device node to appear
	if err := retry.Do(
		func() error {
			_, err := os.Stat(cfg.Device)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(deviceWaitAttempts),
		retry.Delay(deviceWaitDelay),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("waiting for device", "device", cfg.Device, "attempt", n+1, "error", err)
		}),
	); err != nil {
		return fmt.Errorf("device %s did not appear: %w", cfg.Device, err)
	}

	// Create components
	dev, err := device.New(cfg.Backend, cfg.Device, cfg.MountPath, cfg.FSType)
	if err != nil {
		return fmt.Errorf("create device backend: %w", err)
	}
	defer dev.Close()

	g := guard.New(dev)
	g.SetMode(initialMode)

	// Create driver
	d := driver.NewDriver(g, dev)

	// Create handler
	h := volume.NewHandler(d)

	// Ensure socket directory exists
	socketDir := filepath.Dir(cfg.SocketPath)
	if err := os.MkdirAll(socketDir, 0755); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}

	// Remove existing socket if present (stale from previous run)
	if err := os.Remove(cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	// SIGTERM/SIGINT drain the guard before exit; SIGUSR1 toggles lame
	// duck for operator-driven drains without stopping the daemon.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	go func() {
		for sig := range sigCh {
			if sig == syscall.SIGUSR1 {
				if g.Mode() == guard.LameDuck {
					g.SetMode(guard.Normal)
				} else {
					g.SetMode(guard.LameDuck)
				}
				log.Info("lame duck toggled", "mode", g.Mode())
				continue
			}

			log.Info("shutting down", "signal", sig)
			d.DrainAndStop(drainTimeout)
			if err := dev.Close(); err != nil {
				log.Warn("failed to close device backend", "error", err)
			}
			if err := os.Remove(cfg.SocketPath); err != nil && !os.IsNotExist(err) {
				log.Warn("failed to remove socket on shutdown", "path", cfg.SocketPath, "error", err)
			}
			os.Exit(0)
		}
	}()

	log.Info("listening on socket", "path", cfg.SocketPath)
	return h.ServeUnix(cfg.SocketPath, 0)
}
