package engine

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/syncbridge/syncbridge/internal/logger"
)

// ErrSpawnFailed indicates the engine process could not be started.
var ErrSpawnFailed = errors.New("engine process spawn failed")

// State is the engine process lifecycle state.
type State string

const (
	StateNotStarted State = "not_started"
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateRestarting State = "restarting"
	StateStopping   State = "stopping"
	StateStopped    State = "stopped"
)

// webServerClass hosts every engine discovered under engines/ on a single
// embedded web server.
const webServerClass = "org.jumpmind.symmetric.SymmetricWebServer"

// stopGrace is how long Stop waits for a terminated process to exit before
// killing it.
const stopGrace = 5 * time.Second

// Handle is a supervised engine process.
type Handle struct {
	Role    string
	OutPath string
	ErrPath string

	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	exitErr error
	outFile *os.File
	errFile *os.File
}

// Alive reports whether the process is still running.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// ExitError returns the process exit error once it has terminated.
func (h *Handle) ExitError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

func (h *Handle) closeLogs() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.outFile != nil {
		_ = h.outFile.Close()
		h.outFile = nil
	}
	if h.errFile != nil {
		_ = h.errFile.Close()
		h.errFile = nil
	}
}

// Manager supervises the hosting web server process. One process serves
// both engines, tracked in a registry keyed by logical role so future
// split deployments need no structural change.
type Manager struct {
	Java     string
	Install  *Install
	LogsDir  string
	WebPort  int
	Timezone string

	mu      sync.Mutex
	state   State
	handles map[string]*Handle
}

// NewManager returns a Manager in the not-started state.
func NewManager(java string, install *Install, logsDir string, webPort int, timezone string) *Manager {
	return &Manager{
		Java:     java,
		Install:  install,
		LogsDir:  logsDir,
		WebPort:  webPort,
		Timezone: timezone,
		state:    StateNotStarted,
		handles:  make(map[string]*Handle),
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// launchArgs builds the JVM argument list. The timezone is forced onto the
// JVM so the JDBC driver sends a zone identifier the database accepts, and
// the web port and bind address are forced so every deployment surface sees
// the same endpoint.
func (m *Manager) launchArgs() []string {
	return []string{
		"-Duser.timezone=" + m.Timezone,
		fmt.Sprintf("-Dserver.port=%d", m.WebPort),
		"-Dserver.address=0.0.0.0",
		"-cp", m.Install.Classpath,
		webServerClass,
	}
}

// Start spawns the hosting web server. Stdout and stderr are appended to
// per-role log files so output survives restarts.
func (m *Manager) Start() (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.handles["web"]; ok && existing.Alive() {
		return existing, nil
	}
	m.state = StateStarting

	h, err := m.spawnLocked("web")
	if err != nil {
		m.state = StateStopped
		return nil, err
	}
	m.handles["web"] = h
	m.state = StateRunning
	return h, nil
}

// Restart replaces a dead process with a fresh one.
func (m *Manager) Restart() (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = StateRestarting
	if old, ok := m.handles["web"]; ok {
		if old.Alive() {
			terminate(old)
		}
		// The replacement opens its own log files; the old descriptors
		// must not outlive the handle or a crash loop leaks them.
		old.closeLogs()
	}

	h, err := m.spawnLocked("web")
	if err != nil {
		m.state = StateStopped
		return nil, err
	}
	m.handles["web"] = h
	m.state = StateRunning
	return h, nil
}

// Alive reports whether the supervised process is running.
func (m *Manager) Alive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles["web"]
	return ok && h.Alive()
}

// Stop terminates the supervised process. Idempotent; safe to call on a
// manager that never started or already stopped.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateStopped || m.state == StateNotStarted {
		m.state = StateStopped
		return
	}
	m.state = StateStopping

	for role, h := range m.handles {
		if h.Alive() {
			terminate(h)
		}
		h.closeLogs()
		delete(m.handles, role)
		logger.Info("engine process stopped", "role", role)
	}
	m.state = StateStopped
}

// spawnLocked starts the JVM process. Caller holds m.mu.
func (m *Manager) spawnLocked(role string) (*Handle, error) {
	if err := os.MkdirAll(m.LogsDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	outPath := filepath.Join(m.LogsDir, role+".out.log")
	errPath := filepath.Join(m.LogsDir, role+".err.log")
	outFile, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	errFile, err := os.OpenFile(errPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		_ = outFile.Close()
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	cmd := exec.Command(m.Java, m.launchArgs()...)
	cmd.Dir = m.Install.Home
	cmd.Stdout = outFile
	cmd.Stderr = errFile

	logger.Info("launching engine web server",
		"java", m.Java, "port", m.WebPort, "home", m.Install.Home)

	if err := cmd.Start(); err != nil {
		_ = outFile.Close()
		_ = errFile.Close()
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	h := &Handle{
		Role:    role,
		OutPath: outPath,
		ErrPath: errPath,
		cmd:     cmd,
		done:    make(chan struct{}),
		outFile: outFile,
		errFile: errFile,
	}

	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		h.exitErr = err
		h.mu.Unlock()
		close(h.done)
		if err != nil {
			logger.Warn("engine process exited", "role", role, "error", err)
		} else {
			logger.Info("engine process exited", "role", role)
		}
	}()

	return h, nil
}

// terminate asks the process to exit and escalates to a kill after the
// grace period.
func terminate(h *Handle) {
	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		_ = h.cmd.Process.Kill()
	}
	select {
	case <-h.done:
	case <-time.After(stopGrace):
		_ = h.cmd.Process.Kill()
		select {
		case <-h.done:
		case <-time.After(stopGrace):
		}
	}
}
