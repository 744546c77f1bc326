// Package ports resolves effective instance ports and validates port and
// name uniqueness across the registry.
package ports

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/botloft/botloft/registry"
)

// PortConflictError reports a candidate port already claimed by another
// registered instance.
type PortConflictError struct {
	Port   int
	UsedBy string // display name of the conflicting instance
}

func (e *PortConflictError) Error() string {
	return fmt.Sprintf("port %d is already used by instance %q", e.Port, e.UsedBy)
}

// PortUnavailableError reports a port the OS refused to bind.
type PortUnavailableError struct {
	Port int
}

func (e *PortUnavailableError) Error() string {
	return fmt.Sprintf("port %d is not available on this host", e.Port)
}

// NameConflictError reports a display name already in use.
type NameConflictError struct {
	Name string
}

func (e *NameConflictError) Error() string {
	return fmt.Sprintf("instance name %q is already in use", e.Name)
}

// Per-type on-disk config file and fallback port. The config files are plain
// KEY=VALUE lines maintained outside this subsystem.
var typeConfig = map[registry.InstanceType]struct {
	file        string
	key         string
	defaultPort int
}{
	registry.TypeNode:   {file: "config.env", key: "PORT", defaultPort: 5140},
	registry.TypeNPM:    {file: ".env", key: "PORT", defaultPort: 3000},
	registry.TypePython: {file: "bot.env", key: "PORT", defaultPort: 8080},
}

// EffectivePort resolves the port an instance actually uses: the explicit
// record field, else the port parsed from the instance's on-disk config,
// else the type default.
func EffectivePort(rec registry.InstanceRecord) int {
	if rec.Port > 0 {
		return rec.Port
	}
	cfg, ok := typeConfig[rec.Type]
	if !ok {
		return 0
	}
	if port := parsePortFile(filepath.Join(rec.Path, cfg.file), cfg.key); port > 0 {
		return port
	}
	return cfg.defaultPort
}

// DefaultPort returns the fallback port for an instance type.
func DefaultPort(t registry.InstanceType) int {
	return typeConfig[t].defaultPort
}

// parsePortFile scans a KEY=VALUE file for key and parses its value as a
// port. Returns 0 when the file is missing or the key absent or malformed.
func parsePortFile(path, key string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, found := strings.Cut(line, "=")
		if !found || strings.TrimSpace(k) != key {
			continue
		}
		port, err := strconv.Atoi(strings.Trim(strings.TrimSpace(v), `"'`))
		if err != nil || port <= 0 || port > 65535 {
			return 0
		}
		return port
	}
	return 0
}

// Probe performs a bind-and-release test on the loopback interface.
// Any bind failure, including "address already in use", reports false.
func Probe(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	l.Close()
	return true
}

// FindUser returns the name of the registered instance (other than selfID)
// whose effective port equals port, or "" if none.
func FindUser(records []registry.InstanceRecord, selfID string, port int) string {
	for _, rec := range records {
		if rec.ID == selfID {
			continue
		}
		if EffectivePort(rec) == port {
			return rec.Name
		}
	}
	return ""
}

// ValidatePort rejects a candidate port that collides with another
// registered instance's effective port, or that the OS cannot bind. The
// system-level probe is skipped while the target instance itself is running,
// since its own occupied port would otherwise be flagged as a conflict.
func ValidatePort(records []registry.InstanceRecord, selfID string, port int, selfRunning bool) error {
	if name := FindUser(records, selfID, port); name != "" {
		return &PortConflictError{Port: port, UsedBy: name}
	}
	if !selfRunning && !Probe(port) {
		return &PortUnavailableError{Port: port}
	}
	return nil
}

// ValidateName rejects a display name already used by another instance.
// Matching is case-sensitive and exact.
func ValidateName(records []registry.InstanceRecord, selfID, name string) error {
	for _, rec := range records {
		if rec.ID == selfID {
			continue
		}
		if rec.Name == name {
			return &NameConflictError{Name: name}
		}
	}
	return nil
}
