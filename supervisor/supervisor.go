// Package supervisor owns the running-process table for bot instances. It
// spawns and kills the OS processes behind instance records, drives the
// per-instance state machine (stopped -> starting -> running -> stopped),
// and feeds every console line into the broadcast hub.
//
// Stop is optimistic: it reports success as soon as the kill signal is sent
// and the runtime entry is removed; the process's own exit callback is the
// authoritative confirmation and arrives through the status stream.
package supervisor

import (
	"bufio"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/botloft/botloft/hub"
	"github.com/botloft/botloft/metrics"
	"github.com/botloft/botloft/registry"
)

// Status is the lifecycle state of an instance.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
)

// RecordSource resolves instance records. Implemented by *registry.Store.
type RecordSource interface {
	Get(id string) (registry.InstanceRecord, error)
}

// Recounter reacts to running-instance count changes. Implemented by
// *redisd.Coordinator.
type Recounter interface {
	MaybeAutoStop(runningCount int)
}

// runtimeState is the live half of an instance: it exists only between a
// successful spawn and the process exit (or an explicit Stop).
type runtimeState struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	status    Status
	hasOutput bool
}

// Supervisor owns the runtime table and all process lifecycle transitions.
type Supervisor struct {
	mu        sync.Mutex
	running   map[string]*runtimeState
	records   RecordSource
	hub       *hub.Hub
	recounter Recounter
	toolDirs  []string
	launch    LaunchFunc
	logger    *slog.Logger
}

// New creates a Supervisor. toolDirs are candidate bundled tool install
// directories prepended to every instance's search path.
func New(records RecordSource, h *hub.Hub, recounter Recounter, toolDirs []string, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		running:   make(map[string]*runtimeState),
		records:   records,
		hub:       h,
		recounter: recounter,
		toolDirs:  toolDirs,
		launch:    DefaultLaunch,
		logger:    logger.With("component", "supervisor"),
	}
}

// SetLaunchFunc overrides the launch strategy table. Intended for tests.
func (s *Supervisor) SetLaunchFunc(launch LaunchFunc) {
	s.launch = launch
}

func (s *Supervisor) getRecord(id string) (registry.InstanceRecord, error) {
	rec, err := s.records.Get(id)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, ErrNotFound
	}
	return rec, err
}

// Start launches the instance's process. It fails synchronously for
// validation problems (unknown id, already running, missing path); a refusal
// by the OS to spawn is reported only through the log and status stream. The
// instance stays in starting until its first non-empty output line — there is
// no readiness probe, first output is the liveness signal.
func (s *Supervisor) Start(id string) error {
	rec, err := s.getRecord(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.running[id]; exists {
		return ErrAlreadyRunning
	}
	if info, err := os.Stat(rec.Path); err != nil || !info.IsDir() {
		return ErrPathMissing
	}

	spec, err := s.launch(rec)
	if err != nil {
		return err
	}

	env := BuildEnvironment(s.toolDirs, rec.Proxy)
	if rec.Proxy != nil && rec.Proxy.Host != "" {
		s.logger.Info("instance proxy configured", "instance", rec.Name, "proxy", RedactedProxyURL(rec.Proxy))
	}

	cmd := exec.Command(spec.Name, spec.Args...)
	cmd.Dir = rec.Path
	cmd.Env = env
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("open stderr pipe: %w", err)
	}

	s.hub.BroadcastStatus(id, string(StatusStarting))

	if err := cmd.Start(); err != nil {
		// Spawn refusal short-circuits starting -> stopped. Callers already
		// got an accepted result; the failure is only observable here. The
		// pipes never got a reader, close them or the descriptors leak.
		stdin.Close()
		stdout.Close()
		stderr.Close()
		s.logger.Error("failed to spawn instance process", "instance", rec.Name, "command", spec.Name, "error", err)
		s.hub.Broadcast(id, fmt.Sprintf("[botloft] failed to start %s: %v", rec.Name, err))
		s.hub.BroadcastStatus(id, string(StatusStopped))
		return nil
	}

	rt := &runtimeState{cmd: cmd, stdin: stdin, status: StatusStarting}
	s.running[id] = rt
	metrics.InstancesRunning.Set(float64(len(s.running)))
	metrics.InstanceStarts.Inc()

	s.logger.Info("instance process spawned", "instance", rec.Name, "pid", cmd.Process.Pid, "command", spec.Name)
	s.hub.Broadcast(id, fmt.Sprintf("[botloft] starting %s (pid %d)", rec.Name, cmd.Process.Pid))
	s.hub.Broadcast(hub.GlobalKey, fmt.Sprintf("instance %s starting (pid %d)", rec.Name, cmd.Process.Pid))

	go s.readStream(id, rt, stdout)
	go s.readStream(id, rt, stderr)
	go func() {
		waitErr := cmd.Wait()
		s.handleExit(id, rt, exitCode(waitErr))
	}()

	return nil
}

// readStream consumes one output pipe, stripping ANSI escapes and feeding
// each line into the hub. The first non-empty line flips starting -> running.
func (s *Supervisor) readStream(id string, rt *runtimeState, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := StripANSI(scanner.Text())
		if strings.TrimSpace(line) != "" {
			s.markOutput(id, rt)
		}
		s.hub.Broadcast(id, line)
	}
}

// markOutput records the first output and promotes starting to running.
func (s *Supervisor) markOutput(id string, rt *runtimeState) {
	s.mu.Lock()
	promoted := false
	if cur, ok := s.running[id]; ok && cur == rt && !rt.hasOutput {
		rt.hasOutput = true
		if rt.status == StatusStarting {
			rt.status = StatusRunning
			promoted = true
		}
	}
	s.mu.Unlock()

	if promoted {
		s.logger.Info("instance produced first output", "instance", id)
		s.hub.BroadcastStatus(id, string(StatusRunning))
	}
}

// handleExit is the process-of-origin exit callback. It removes the runtime
// entry if an explicit Stop has not already done so, emits the stopped event
// with the exit code, and triggers the shared-resource recount for the
// removal it performed.
func (s *Supervisor) handleExit(id string, rt *runtimeState, code int) {
	s.mu.Lock()
	cur, ok := s.running[id]
	removed := ok && cur == rt
	if removed {
		delete(s.running, id)
		metrics.InstancesRunning.Set(float64(len(s.running)))
	}
	count := len(s.running)
	s.mu.Unlock()

	s.logger.Info("instance process exited", "instance", id, "exitCode", code)
	s.hub.Broadcast(id, fmt.Sprintf("[botloft] process exited with code %d", code))
	s.hub.BroadcastStatus(id, string(StatusStopped))

	if removed {
		metrics.InstanceStops.Inc()
		s.recounter.MaybeAutoStop(count)
	}
}

// Stop force-terminates the instance's process tree. It is optimistic: the
// runtime entry is removed and the stopped event emitted before the OS-level
// exit is confirmed.
func (s *Supervisor) Stop(id string) error {
	s.mu.Lock()
	rt, ok := s.running[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotRunning
	}
	delete(s.running, id)
	metrics.InstancesRunning.Set(float64(len(s.running)))
	count := len(s.running)
	s.mu.Unlock()

	killTree(rt.cmd)

	s.logger.Info("instance stop requested", "instance", id)
	s.hub.Broadcast(id, "[botloft] instance stopped")
	s.hub.Broadcast(hub.GlobalKey, fmt.Sprintf("instance %s stopped", id))
	s.hub.BroadcastStatus(id, string(StatusStopped))
	metrics.InstanceStops.Inc()

	s.recounter.MaybeAutoStop(count)
	return nil
}

// SendCommand writes text to a running instance's stdin. When the instance
// is not running the text is instead executed as a one-off shell command in
// the instance's root path; that helper process is not tracked and has no
// lifecycle beyond its own completion.
func (s *Supervisor) SendCommand(id, text string) error {
	s.mu.Lock()
	rt, ok := s.running[id]
	if ok {
		stdin := rt.stdin
		s.mu.Unlock()
		if stdin == nil {
			return ErrStdinUnavailable
		}
		s.hub.Broadcast(id, "> "+text)
		if _, err := io.WriteString(stdin, text+"\n"); err != nil {
			return fmt.Errorf("%w: %v", ErrStdinUnavailable, err)
		}
		return nil
	}
	s.mu.Unlock()

	rec, err := s.getRecord(id)
	if err != nil {
		return err
	}
	if info, err := os.Stat(rec.Path); err != nil || !info.IsDir() {
		return ErrPathMissing
	}
	return s.runMaintenance(id, rec, text)
}

// runMaintenance executes text as an untracked shell command scoped to the
// instance directory, streaming its combined output into the instance buffer.
func (s *Supervisor) runMaintenance(id string, rec registry.InstanceRecord, text string) error {
	cmd := exec.Command("sh", "-c", text)
	cmd.Dir = rec.Path
	cmd.Env = BuildEnvironment(s.toolDirs, rec.Proxy)

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	s.hub.Broadcast(id, "$ "+text)
	s.hub.Broadcast(hub.TerminalKey, fmt.Sprintf("[%s] $ %s", rec.Name, text))

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return fmt.Errorf("run maintenance command: %w", err)
	}

	go func() {
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			s.hub.Broadcast(id, StripANSI(scanner.Text()))
		}
	}()
	go func() {
		err := cmd.Wait()
		pw.Close()
		if err != nil {
			s.hub.Broadcast(id, fmt.Sprintf("[botloft] command finished: %v", err))
		}
	}()
	return nil
}

// Status returns the instance's current lifecycle state.
func (s *Supervisor) Status(id string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rt, ok := s.running[id]; ok {
		return rt.status
	}
	return StatusStopped
}

// Statuses returns the status of every instance with a live runtime entry.
func (s *Supervisor) Statuses() map[string]Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Status, len(s.running))
	for id, rt := range s.running {
		out[id] = rt.status
	}
	return out
}

// IsRunning reports whether a live runtime entry exists for id.
func (s *Supervisor) IsRunning(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[id]
	return ok
}

// RunningCount returns the number of live runtime entries.
func (s *Supervisor) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

// Shutdown kills every running instance. Used on daemon exit only; it does
// not trigger the shared-resource recount.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	entries := make(map[string]*runtimeState, len(s.running))
	for id, rt := range s.running {
		entries[id] = rt
	}
	s.running = make(map[string]*runtimeState)
	metrics.InstancesRunning.Set(0)
	s.mu.Unlock()

	for id, rt := range entries {
		s.logger.Info("killing instance on shutdown", "instance", id)
		killTree(rt.cmd)
	}
}

// exitCode extracts the process exit code from cmd.Wait's error.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}
