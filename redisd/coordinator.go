// Package redisd coordinates the shared singleton redis-server process.
//
// Instances in shared cache mode all talk to one redis-server owned by the
// daemon rather than by any single instance. The coordinator starts it on
// demand and shuts it down automatically when the last running instance
// exits, unless the persisted keep-alive override is set.
package redisd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	ps "github.com/mitchellh/go-ps"
)

var (
	// ErrAlreadyRunning means a shared redis-server handle is already live.
	ErrAlreadyRunning = errors.New("shared redis-server already running")
	// ErrNotRunning means no shared redis-server handle exists.
	ErrNotRunning = errors.New("shared redis-server not running")
)

// KeepAliveSource reads the persisted keep-alive override. Implemented by
// *registry.Store.
type KeepAliveSource interface {
	RedisKeepAlive() (bool, error)
}

// Coordinator owns the single shared redis-server handle. At most one
// process exists at a time; Start on a live handle is an error, not a
// duplicate spawn.
type Coordinator struct {
	mu       sync.Mutex
	cmd      *exec.Cmd
	binary   string
	argv     []string
	settings KeepAliveSource
	logger   *slog.Logger
}

// New creates a coordinator that will run binary on the given port.
func New(binary string, port int, settings KeepAliveSource, logger *slog.Logger) *Coordinator {
	if binary == "" {
		binary = "redis-server"
	}
	return &Coordinator{
		binary:   binary,
		argv:     []string{binary, "--port", strconv.Itoa(port)},
		settings: settings,
		logger:   logger.With("component", "redisd"),
	}
}

// Start spawns the shared redis-server. Stray same-named processes from a
// crashed previous session are killed first so the new process does not lose
// the port bind to an orphan.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd != nil {
		return ErrAlreadyRunning
	}

	c.sweepStray()

	cmd := exec.Command(c.argv[0], c.argv[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start shared redis-server: %w", err)
	}
	c.cmd = cmd
	c.logger.Info("shared redis-server started", "pid", cmd.Process.Pid)

	go func() {
		err := cmd.Wait()
		c.mu.Lock()
		if c.cmd == cmd {
			c.cmd = nil
		}
		c.mu.Unlock()
		c.logger.Info("shared redis-server exited", "error", err)
	}()
	return nil
}

// Stop terminates the shared redis-server and clears the handle.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	cmd := c.cmd
	c.cmd = nil
	c.mu.Unlock()

	if cmd == nil {
		return ErrNotRunning
	}
	if err := cmd.Process.Kill(); err != nil {
		return fmt.Errorf("stop shared redis-server: %w", err)
	}
	c.logger.Info("shared redis-server stopped", "pid", cmd.Process.Pid)
	return nil
}

// Running reports whether a live handle exists.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cmd != nil
}

// MaybeAutoStop is invoked after every runtime-table removal. When the
// running-instance count has reached zero and the keep-alive override is
// unset, the shared redis-server is stopped best-effort: failures are logged
// as warnings and never surfaced, and stopping an already-stopped server is
// a safe no-op.
func (c *Coordinator) MaybeAutoStop(runningCount int) {
	if runningCount != 0 {
		return
	}

	keepAlive, err := c.settings.RedisKeepAlive()
	if err != nil {
		c.logger.Warn("could not read keep-alive override, assuming unset", "error", err)
	}
	if keepAlive {
		c.logger.Debug("keep-alive override set, leaving shared redis-server running")
		return
	}

	switch err := c.Stop(); {
	case errors.Is(err, ErrNotRunning):
		c.logger.Debug("auto-stop requested but shared redis-server not running")
	case err != nil:
		c.logger.Warn("failed to auto-stop shared redis-server", "error", err)
	default:
		c.logger.Info("shared redis-server auto-stopped, no instances running")
	}
}

// sweepStray kills leftover same-named processes from a crashed session.
// Caller must hold c.mu.
func (c *Coordinator) sweepStray() {
	procs, err := ps.Processes()
	if err != nil {
		c.logger.Warn("could not enumerate processes for stray sweep", "error", err)
		return
	}
	name := filepath.Base(c.binary)
	for _, p := range procs {
		if p.Executable() != name || p.Pid() == os.Getpid() {
			continue
		}
		proc, err := os.FindProcess(p.Pid())
		if err != nil {
			continue
		}
		if err := proc.Kill(); err == nil {
			c.logger.Info("killed stray redis-server from a previous session", "pid", p.Pid())
		}
	}
}
