// Package orchestrator coordinates the replication control plane: it
// resolves configuration and credentials, generates engine properties,
// launches the hosting web server, configures the topology on both
// databases, triggers the initial load, and keeps a health loop running
// until stopped.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/syncbridge/syncbridge/internal/config"
	"github.com/syncbridge/syncbridge/internal/db"
	"github.com/syncbridge/syncbridge/internal/engine"
	"github.com/syncbridge/syncbridge/internal/identity"
	"github.com/syncbridge/syncbridge/internal/jvm"
	"github.com/syncbridge/syncbridge/internal/logger"
	"github.com/syncbridge/syncbridge/internal/secrets"
	"github.com/syncbridge/syncbridge/internal/topology"
)

// Version is set by ldflags during build.
var Version = "dev"

// ErrAlreadyRunning indicates an orchestrator is already supervising
// engines in this process.
var ErrAlreadyRunning = errors.New("orchestrator already running")

// State represents the orchestrator's current operational state.
type State string

const (
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
)

// Orchestrator owns the full lifecycle of the replication engines.
type Orchestrator struct {
	cfg      *config.Config
	paths    config.Paths
	resolver *secrets.Resolver

	state     State
	stateMu   sync.RWMutex
	startTime time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	deviceID       string
	localPassword  string
	remotePassword string

	clientCfg engine.EngineConfig
	serverCfg engine.EngineConfig

	manager *engine.Manager
	status  *StatusWriter

	// One-shot flags owned by the run goroutine: topology per side and the
	// initial load request flip once their step lands, and the health loop
	// retries whatever is still pending.
	localConfigured  bool
	remoteConfigured bool
	initialLoadDone  bool
}

// New creates an Orchestrator for the given configuration and layout.
func New(cfg *config.Config, paths config.Paths) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:      cfg,
		paths:    paths,
		resolver: secrets.NewResolver(cfg.KeyringService),
		state:    StateStopped,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start runs the startup pipeline and launches the background run loop.
// Fatal setup problems (no usable Java, incomplete engine installation,
// spawn failure) are returned and also published to the status document so
// the GUI sees the cause; a database side that is merely unreachable is
// handled later by the run loop.
func (o *Orchestrator) Start() error {
	o.stateMu.Lock()
	if o.state == StateStarting || o.state == StateRunning {
		o.stateMu.Unlock()
		return ErrAlreadyRunning
	}
	o.state = StateStarting
	// A previous run's cancelled context must not carry into this one, or
	// the new run loop would exit immediately.
	o.ctx, o.cancel = context.WithCancel(context.Background())
	o.localConfigured = false
	o.remoteConfigured = false
	o.initialLoadDone = false
	o.stateMu.Unlock()
	o.startTime = time.Now()

	if err := o.startPipeline(); err != nil {
		o.publishFailure(err)
		o.setState(StateStopped)
		return err
	}

	o.setState(StateRunning)

	o.wg.Add(1)
	go o.run()

	return nil
}

func (o *Orchestrator) startPipeline() error {
	if err := o.paths.EnsureDirs(); err != nil {
		return fmt.Errorf("error preparing directories: %w", err)
	}

	o.deviceID = identity.DeviceID(o.paths.DeviceIDFile())
	logger.Info("starting orchestrator", "device_id", o.deviceID, "version", Version)

	o.localPassword = o.resolver.Resolve(
		o.cfg.Local.User, o.cfg.Local.Host, o.cfg.Local.Port, o.cfg.Local.Password)
	o.remotePassword = o.resolver.Resolve(
		o.cfg.Remote.User, o.cfg.Remote.Host, o.cfg.Remote.Port, o.cfg.Remote.Password)

	o.clientCfg, o.serverCfg = engine.BuildConfigs(
		o.cfg, o.deviceID, o.localPassword, o.remotePassword)

	clientPath, serverPath, err := engine.WriteProperties(
		o.paths.EnginesDir(), o.clientCfg, o.serverCfg)
	if err != nil {
		return err
	}
	if err := engine.EnsureCommonProperties(o.paths.CommonPropertiesFile()); err != nil {
		logger.Warn("could not ensure common properties", "error", err)
	}

	locator := jvm.NewLocator(filepath.Join(o.paths.Base, "jre"))
	rt, err := locator.Find()
	if err != nil {
		return fmt.Errorf("error locating Java runtime: %w", err)
	}
	logger.Info("Java runtime selected", "path", rt.Path, "major", rt.Major)

	install, err := engine.DiscoverInstall(o.paths.InstallSearchDir())
	if err != nil {
		return err
	}
	if err := engine.MirrorProperties(install.EnginesDir(), clientPath, serverPath); err != nil {
		return fmt.Errorf("error mirroring properties into installation: %w", err)
	}
	if err := engine.EnsureCommonProperties(
		filepath.Join(install.Home, "conf", "symmetric-ds.properties")); err != nil {
		logger.Warn("could not ensure installation common properties", "error", err)
	}

	tz := engine.NormalizeTimezone(o.cfg.Timezone)
	o.manager = engine.NewManager(rt.Path, install, o.paths.LogsDir(), o.cfg.WebPort, tz)
	if _, err := o.manager.Start(); err != nil {
		return err
	}

	o.status = &StatusWriter{
		Path:        o.paths.StatusFile(),
		LocalPort:   o.cfg.LocalHTTPPort,
		RemotePort:  o.cfg.RemoteHTTPPort,
		JavaVersion: rt.Version,
		ExternalID:  o.clientCfg.ExternalID,
	}
	if err := o.status.Write(true, "engines launched"); err != nil {
		logger.Warn("could not publish status", "error", err)
	}
	return nil
}

// publishFailure records a fatal startup error in the status document. The
// writer may not exist yet when setup fails early, so a minimal one is
// built from whatever was resolved before the failure.
func (o *Orchestrator) publishFailure(cause error) {
	w := o.status
	if w == nil {
		w = &StatusWriter{
			Path:       o.paths.StatusFile(),
			LocalPort:  o.cfg.LocalHTTPPort,
			RemotePort: o.cfg.RemoteHTTPPort,
			ExternalID: o.clientCfg.ExternalID,
		}
	}
	if err := w.Write(false, cause.Error()); err != nil {
		logger.Warn("could not publish failure status", "error", err)
	}
}

// Stop shuts the orchestrator down. Idempotent; safe on a never-started or
// already-stopped instance.
func (o *Orchestrator) Stop() error {
	o.stateMu.Lock()
	if o.state == StateStopped || o.state == StateStopping {
		o.stateMu.Unlock()
		return nil
	}
	o.state = StateStopping
	o.stateMu.Unlock()

	logger.Info("stopping orchestrator")
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Warn("shutdown timeout, forcing stop")
	}

	if o.manager != nil {
		o.manager.Stop()
	}
	if o.status != nil {
		if err := o.status.Write(false, "stop requested"); err != nil {
			logger.Warn("could not publish final status", "error", err)
		}
	}

	o.setState(StateStopped)
	logger.Info("orchestrator stopped")
	return nil
}

// Wait blocks until the orchestrator is told to stop.
func (o *Orchestrator) Wait() {
	o.stateMu.RLock()
	ctx := o.ctx
	o.stateMu.RUnlock()
	<-ctx.Done()
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.state
}

func (o *Orchestrator) setState(state State) {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	o.state = state
}

// Uptime returns how long the orchestrator has been running.
func (o *Orchestrator) Uptime() time.Duration {
	if o.startTime.IsZero() {
		return 0
	}
	return time.Since(o.startTime)
}

// run is the background pipeline: wait for the engines to create their
// schemas, configure the topology on whichever sides are ready, request the
// initial load, then settle into the health loop.
func (o *Orchestrator) run() {
	defer o.wg.Done()

	waiter := NewWaiter()
	localOK, remoteOK := waiter.Wait(o.ctx, o.localReady, o.remoteReady)
	if o.ctx.Err() != nil {
		return
	}

	if remoteOK {
		o.remoteConfigured = o.configureSide(o.cfg.Remote, o.remotePassword, topology.ServerSide)
	} else {
		logger.Warn("remote schema not ready, server topology deferred to health loop")
	}
	if localOK {
		o.localConfigured = o.configureSide(o.cfg.Local, o.localPassword, topology.ClientSide)
	} else {
		logger.Warn("local schema not ready, client topology deferred to health loop")
	}

	o.tryInitialLoad()

	ticker := time.NewTicker(o.cfg.CheckInterval())
	defer ticker.Stop()
	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			o.healthCheck()
		}
	}
}

// withConn runs fn with a short-lived connection to one side.
func (o *Orchestrator) withConn(profile config.SyncProfile, password string, fn func(q db.Querier) error) error {
	conn, err := db.Connect(o.ctx, profile, password)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())
	return fn(conn)
}

func (o *Orchestrator) localReady(ctx context.Context) bool {
	ready := false
	err := o.withConn(o.cfg.Local, o.localPassword, func(q db.Querier) error {
		ready = topology.SchemaReady(ctx, q)
		return nil
	})
	return err == nil && ready
}

func (o *Orchestrator) remoteReady(ctx context.Context) bool {
	ready := false
	err := o.withConn(o.cfg.Remote, o.remotePassword, func(q db.Querier) error {
		ready = topology.SchemaReady(ctx, q)
		return nil
	})
	return err == nil && ready
}

// configureSide applies the topology to one database and reports whether it
// landed. Failures are logged, not fatal; the health loop retries pending
// sides so a late engine still gets configured.
func (o *Orchestrator) configureSide(profile config.SyncProfile, password string, side topology.Side) bool {
	err := o.withConn(profile, password, func(q db.Querier) error {
		cfg, err := topology.NewConfigurator(o.ctx, q, side)
		if err != nil {
			return err
		}
		_, err = cfg.Configure(o.ctx)
		return err
	})
	if errors.Is(err, topology.ErrSchemaNotReady) {
		logger.Warn("schema not ready, topology skipped", "side", side.Name)
		return false
	}
	if err != nil {
		logger.Error("topology configuration failed", "side", side.Name, "error", err)
		return false
	}
	return true
}

// tryInitialLoad requests the initial load once. Harmless before the client
// registers; the health loop retries until it lands.
func (o *Orchestrator) tryInitialLoad() {
	if o.initialLoadDone {
		return
	}
	err := o.withConn(o.cfg.Remote, o.remotePassword, func(q db.Querier) error {
		_, err := topology.RequestInitialLoad(
			o.ctx, q, o.clientCfg.ExternalID, o.serverCfg.ExternalID)
		return err
	})
	switch {
	case err == nil:
		o.initialLoadDone = true
	case errors.Is(err, topology.ErrClientNotRegistered):
		logger.Debug("client not registered yet, initial load deferred")
	case errors.Is(err, topology.ErrSchemaNotReady):
		logger.Debug("server schema not ready, initial load deferred")
	default:
		logger.Warn("initial load attempt failed", "error", err)
	}
}

// healthCheck verifies the engine process, restarts it if it died, retries
// the initial load while pending, and publishes status.
func (o *Orchestrator) healthCheck() {
	alive := o.manager.Alive()
	message := "OK"

	if !alive {
		logger.Warn("engine process down, restarting")
		if _, err := o.manager.Restart(); err != nil {
			message = fmt.Sprintf("restart failed: %v", err)
			logger.Error("engine restart failed", "error", err)
			// Attach the most recent captured problem so the status
			// document shows the proximate cause, not just the symptom.
			if problems := logger.RecentProblems(1); len(problems) > 0 {
				message += "; " + problems[0].Format()
			}
		} else {
			alive = true
			message = "engines restarted"
		}
	} else {
		if !o.remoteConfigured {
			o.remoteConfigured = o.configureSide(o.cfg.Remote, o.remotePassword, topology.ServerSide)
		}
		if !o.localConfigured {
			o.localConfigured = o.configureSide(o.cfg.Local, o.localPassword, topology.ClientSide)
		}
		o.tryInitialLoad()
		logger.Debug("health check passed")
	}

	if err := o.status.Write(alive, message); err != nil {
		logger.Warn("could not publish status", "error", err)
	}
}
