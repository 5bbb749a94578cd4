package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/syncbridge/syncbridge/internal/config"
	"github.com/syncbridge/syncbridge/internal/daemon"
	"github.com/syncbridge/syncbridge/internal/logger"
	"github.com/syncbridge/syncbridge/internal/orchestrator"
)

var (
	// Version info (set by ldflags)
	version = "dev"

	// Flags
	configPath string
	baseDir    string
	debug      bool
	userMode   bool
	jsonOutput bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "syncbridge",
		Short: "Replication orchestrator for the local/remote PostgreSQL pair",
		Long: `syncbridge supervises the replication engines that keep a local
PostgreSQL database in sync with its remote counterpart. It generates engine
configuration, launches the hosting web server, configures the replication
topology on both databases, and monitors engine health.

Service Management:
  syncbridge install [--user]   Install as system/user service
  syncbridge uninstall          Remove the service
  syncbridge start              Start the installed service
  syncbridge stop               Stop the running service
  syncbridge status [--json]    Show orchestrator status

Direct Run (for debugging):
  syncbridge run [--debug]      Run in foreground mode`,
		Version: version,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default <base>/config.json)")
	rootCmd.PersistentFlags().StringVar(&baseDir, "base", "", "base directory (default ~/.config/syncbridge)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(
		newRunCmd(),
		newInstallCmd(),
		newUninstallCmd(),
		newStartCmd(),
		newStopCmd(),
		newStatusCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		// Error already printed by cobra
		os.Exit(1)
	}
}

// newRunCmd creates the run subcommand for foreground execution
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the orchestrator in foreground (for debugging)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForeground()
		},
	}
}

// runForeground runs the orchestrator in foreground mode.
func runForeground() error {
	paths := config.NewPaths(baseDir)

	logLevel := logger.LevelInfo
	if debug {
		logLevel = logger.LevelDebug
	}
	logger.Init(logLevel, "")
	defer logger.Close()
	if debug {
		fmt.Fprintf(os.Stderr, "Debug mode: Logs written to %s\n", logger.LogPath)
	}

	if err := daemon.WritePIDFile(paths.PIDFile()); err != nil {
		if errors.Is(err, daemon.ErrDaemonRunning) {
			fmt.Fprintln(os.Stderr, "Error: another syncbridge instance is already running")
			os.Exit(daemon.ExitAlreadyRunning)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = daemon.RemovePIDFile(paths.PIDFile()) }()

	path := configPath
	if path == "" {
		path = paths.ConfigFile()
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(daemon.ExitConfigError)
	}
	cfg.WriteNormalized(paths.ConfigFile())

	orchestrator.Version = version
	orch := orchestrator.New(cfg, paths)

	if err := orch.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting orchestrator: %v\n", err)
		os.Exit(daemon.ExitStartFailed)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	fmt.Printf("\nReceived signal %v, shutting down...\n", sig)

	if err := orch.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "Error stopping orchestrator: %v\n", err)
		os.Exit(1)
	}
	return nil
}

// newInstallCmd creates the install subcommand
func newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install syncbridge as a system service",
		Long: `Install syncbridge as a system service that starts on boot.

Use --user to install as a user service (no elevated privileges required).
System service installation requires administrator/root privileges.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svcConfig := daemon.ServiceConfig{
				ConfigPath: configPath,
				BaseDir:    baseDir,
				UserMode:   userMode,
			}

			if err := daemon.Install(svcConfig); err != nil {
				var permErr *daemon.PermissionError
				if errors.As(err, &permErr) {
					fmt.Fprintf(os.Stderr, "Error: %v\n", permErr)
					os.Exit(daemon.ExitPermissionDenied)
				}
				if err.Error() == "service already installed" {
					fmt.Fprintln(os.Stderr, "Error: service already installed")
					fmt.Fprintln(os.Stderr, "Use 'syncbridge uninstall' first to reinstall")
					os.Exit(daemon.ExitServiceExists)
				}
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(daemon.ExitConfigError)
			}

			fmt.Println("syncbridge installed successfully")
			fmt.Println("\nTo start the service:")
			fmt.Println("  syncbridge start")
			return nil
		},
	}
	cmd.Flags().BoolVar(&userMode, "user", false, "install as user service instead of system")
	return cmd
}

// newUninstallCmd creates the uninstall subcommand
func newUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the syncbridge service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := daemon.Uninstall(); err != nil {
				var permErr *daemon.PermissionError
				if errors.As(err, &permErr) {
					fmt.Fprintf(os.Stderr, "Error: %v\n", permErr)
					os.Exit(daemon.ExitPermissionDenied)
				}
				if err.Error() == "service not installed" {
					fmt.Fprintln(os.Stderr, "Error: service not installed")
					os.Exit(daemon.ExitServiceNotFound)
				}
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("syncbridge uninstalled successfully")
			return nil
		},
	}
}

// newStartCmd creates the start subcommand
func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the installed service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := daemon.StartService(); err != nil {
				errMsg := err.Error()
				if errMsg == "service not installed" {
					fmt.Fprintln(os.Stderr, "Error: service not installed")
					fmt.Fprintln(os.Stderr, "Use 'syncbridge install' first")
					os.Exit(daemon.ExitServiceNotFound)
				}
				if errMsg == "service already running" {
					fmt.Fprintln(os.Stderr, "Error: service already running")
					os.Exit(daemon.ExitAlreadyRunning)
				}
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(daemon.ExitStartFailed)
			}
			fmt.Println("syncbridge started")
			return nil
		},
	}
}

// newStopCmd creates the stop subcommand
func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := daemon.StopService(); err != nil {
				errMsg := err.Error()
				if errMsg == "service not installed" {
					fmt.Fprintln(os.Stderr, "Error: service not installed")
					os.Exit(daemon.ExitServiceNotFound)
				}
				if errMsg == "service not running" {
					fmt.Fprintln(os.Stderr, "Error: service not running")
					os.Exit(daemon.ExitNotRunning)
				}
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(daemon.ExitStopFailed)
			}
			fmt.Println("syncbridge stopped")
			return nil
		},
	}
}

// newStatusCmd creates the status subcommand
func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show orchestrator status",
		Long: `Show the last published orchestrator status: whether the engines are
running, the engine ports, the selected Java runtime, and the client node
identity.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := config.NewPaths(baseDir)

			status, err := orchestrator.ReadStatus(paths.StatusFile())
			if err != nil {
				if os.IsNotExist(err) {
					if jsonOutput {
						fmt.Println(`{"running": false, "message": "never started"}`)
						return nil
					}
					fmt.Println("syncbridge: never started")
					return nil
				}
				return fmt.Errorf("error reading status: %w", err)
			}

			if jsonOutput {
				data, err := json.MarshalIndent(status, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			stateWord := "stopped"
			if status.Running {
				stateWord = "running"
			}
			fmt.Printf("syncbridge: %s\n", stateWord)
			fmt.Printf("  Message:       %s\n", status.Message)
			fmt.Printf("  Engine ports:  local=%d remote=%d\n", status.LocalPort, status.RemotePort)
			if status.JavaVersion != "" {
				fmt.Printf("  Java:          %s\n", status.JavaVersion)
			}
			fmt.Printf("  External ID:   %s\n", status.ExternalID)
			fmt.Printf("  Last check:    %s\n", time.Unix(status.LastCheckTS, 0).Format(time.RFC3339))
			fmt.Printf("  Service:       %s\n", daemon.ServiceState())

			if running, pid, err := daemon.InstanceRunning(paths.PIDFile()); err == nil && running {
				fmt.Printf("  PID:           %d\n", pid)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output status as JSON")
	return cmd
}
