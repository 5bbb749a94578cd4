package daemon

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/kardianos/service"

	"github.com/syncbridge/syncbridge/internal/config"
	"github.com/syncbridge/syncbridge/internal/logger"
	"github.com/syncbridge/syncbridge/internal/orchestrator"
)

// Exit codes for CLI commands
const (
	ExitSuccess          = 0
	ExitPermissionDenied = 1
	ExitServiceExists    = 2
	ExitConfigError      = 3
	ExitServiceNotFound  = 1
	ExitAlreadyRunning   = 2
	ExitStartFailed      = 3
	ExitNotRunning       = 1
	ExitStopFailed       = 2
)

// ServiceConfig holds configuration for creating the service.
type ServiceConfig struct {
	ConfigPath string
	BaseDir    string
	UserMode   bool
}

// program implements the service.Program interface for kardianos/service.
type program struct {
	orch       *orchestrator.Orchestrator
	configPath string
	baseDir    string
}

// Start is called when the service starts.
// Per kardianos/service, this must return quickly - start work in goroutine.
func (p *program) Start(s service.Service) error {
	// Service managers give us no terminal; the rotating log file is the
	// only place output goes.
	logger.Init(logger.LevelInfo, "")

	paths := config.NewPaths(p.baseDir)
	configPath := p.configPath
	if configPath == "" {
		configPath = paths.ConfigFile()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	p.orch = orchestrator.New(cfg, paths)

	go func() {
		if err := p.orch.Start(); err != nil {
			// Log error but don't crash - service manager will restart
			fmt.Fprintf(os.Stderr, "Orchestrator start error: %v\n", err)
		}
	}()

	return nil
}

// Stop is called when the service stops.
func (p *program) Stop(s service.Service) error {
	defer logger.Close()
	if p.orch != nil {
		return p.orch.Stop()
	}
	return nil
}

// NewService creates a new service instance.
func NewService(svcConfig ServiceConfig) (service.Service, error) {
	prg := &program{
		configPath: svcConfig.ConfigPath,
		baseDir:    svcConfig.BaseDir,
	}

	cfg := &service.Config{
		Name:        "syncbridge",
		DisplayName: "SyncBridge Replication Orchestrator",
		Description: "Supervises the replication engines that keep the local and remote PostgreSQL databases in sync.",
	}

	if svcConfig.UserMode {
		cfg.Option = service.KeyValue{
			"UserService": true,
		}
	}

	switch runtime.GOOS {
	case "darwin":
		cfg.Option = mergeOptions(cfg.Option, service.KeyValue{
			"KeepAlive": true,
			"RunAtLoad": true,
		})
	case "linux":
		cfg.Option = mergeOptions(cfg.Option, service.KeyValue{
			"Restart": "on-failure",
		})
	case "windows":
		cfg.Option = mergeOptions(cfg.Option, service.KeyValue{
			"OnFailure":              "restart",
			"OnFailureDelayDuration": "5s",
			"OnFailureResetPeriod":   10,
		})
	}

	cfg.Arguments = []string{"run"}
	if svcConfig.ConfigPath != "" {
		cfg.Arguments = append(cfg.Arguments, "--config", svcConfig.ConfigPath)
	}

	return service.New(prg, cfg)
}

// mergeOptions merges two KeyValue maps.
func mergeOptions(base, additional service.KeyValue) service.KeyValue {
	if base == nil {
		base = service.KeyValue{}
	}
	for k, v := range additional {
		base[k] = v
	}
	return base
}

// Install installs the service.
func Install(svcConfig ServiceConfig) error {
	svc, err := NewService(svcConfig)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	status, err := svc.Status()
	if err == nil && status != service.StatusUnknown {
		return fmt.Errorf("service already installed")
	}

	if err := svc.Install(); err != nil {
		if os.IsPermission(err) {
			return &PermissionError{Err: err}
		}
		return fmt.Errorf("failed to install service: %w", err)
	}
	return nil
}

// Uninstall removes the service.
func Uninstall() error {
	svc, err := NewService(ServiceConfig{})
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	status, err := svc.Status()
	if err != nil || status == service.StatusUnknown {
		return fmt.Errorf("service not installed")
	}

	if status == service.StatusRunning {
		_ = svc.Stop()
	}

	if err := svc.Uninstall(); err != nil {
		if os.IsPermission(err) {
			return &PermissionError{Err: err}
		}
		return fmt.Errorf("failed to uninstall service: %w", err)
	}
	return nil
}

// StartService starts the installed service.
func StartService() error {
	svc, err := NewService(ServiceConfig{})
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	status, err := svc.Status()
	if err != nil {
		return fmt.Errorf("service not installed")
	}
	if status == service.StatusRunning {
		return fmt.Errorf("service already running")
	}

	if err := svc.Start(); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	// Verify the service actually started
	time.Sleep(500 * time.Millisecond)
	status, err = svc.Status()
	if err != nil || status != service.StatusRunning {
		return fmt.Errorf("service failed to start (check logs)")
	}
	return nil
}

// StopService stops the running service.
func StopService() error {
	svc, err := NewService(ServiceConfig{})
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	status, err := svc.Status()
	if err != nil {
		return fmt.Errorf("service not installed")
	}
	if status != service.StatusRunning {
		return fmt.Errorf("service not running")
	}

	if err := svc.Stop(); err != nil {
		return fmt.Errorf("failed to stop service: %w", err)
	}
	return nil
}

// ServiceState returns the installed service state as a display string.
func ServiceState() string {
	svc, err := NewService(ServiceConfig{})
	if err != nil {
		return "unknown"
	}
	status, err := svc.Status()
	if err != nil {
		return "not_installed"
	}
	switch status {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// PermissionError indicates an operation requires elevated privileges.
type PermissionError struct {
	Err error
}

func (e *PermissionError) Error() string {
	if runtime.GOOS == "windows" {
		return "administrator privileges required"
	}
	return "permission denied (try with sudo)"
}

func (e *PermissionError) Unwrap() error {
	return e.Err
}
