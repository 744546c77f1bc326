package ports

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/botloft/botloft/registry"
)

func TestEffectivePortExplicit(t *testing.T) {
	rec := registry.InstanceRecord{Type: registry.TypeNode, Port: 4321}
	if got := EffectivePort(rec); got != 4321 {
		t.Fatalf("expected explicit port 4321, got %d", got)
	}
}

func TestEffectivePortFromConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := "# bot settings\nHOST=0.0.0.0\nPORT=6150\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	rec := registry.InstanceRecord{Type: registry.TypeNPM, Path: dir}
	if got := EffectivePort(rec); got != 6150 {
		t.Fatalf("expected port 6150 from .env, got %d", got)
	}
}

func TestEffectivePortTypeDefault(t *testing.T) {
	rec := registry.InstanceRecord{Type: registry.TypePython, Path: t.TempDir()}
	if got := EffectivePort(rec); got != 8080 {
		t.Fatalf("expected python default 8080, got %d", got)
	}
}

func TestEffectivePortMalformedConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.env"), []byte("PORT=not-a-number\n"), 0644); err != nil {
		t.Fatal(err)
	}

	rec := registry.InstanceRecord{Type: registry.TypeNode, Path: dir}
	if got := EffectivePort(rec); got != 5140 {
		t.Fatalf("expected node default 5140 for malformed config, got %d", got)
	}
}

func TestProbeReportsBusyPort(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	port := l.Addr().(*net.TCPAddr).Port

	if Probe(port) {
		t.Errorf("expected Probe(%d) to report busy", port)
	}

	l.Close()
	if !Probe(port) {
		t.Errorf("expected Probe(%d) to report available after release", port)
	}
}

func TestValidatePortConflict(t *testing.T) {
	records := []registry.InstanceRecord{
		{ID: "a", Name: "alpha", Type: registry.TypeNode, Port: 3000},
		{ID: "b", Name: "beta", Type: registry.TypeNode, Port: 3001},
	}

	err := ValidatePort(records, "b", 3000, true)
	var conflict *PortConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected PortConflictError, got %v", err)
	}
	if conflict.UsedBy != "alpha" {
		t.Errorf("conflict should name alpha, got %q", conflict.UsedBy)
	}
}

func TestValidatePortSelfExcluded(t *testing.T) {
	records := []registry.InstanceRecord{
		{ID: "a", Name: "alpha", Type: registry.TypeNode, Port: 3000},
	}

	// Re-validating alpha's own port must not conflict with itself, and with
	// selfRunning the system probe is skipped even if something holds the port.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	busy := l.Addr().(*net.TCPAddr).Port
	records[0].Port = busy

	if err := ValidatePort(records, "a", busy, true); err != nil {
		t.Errorf("expected no error while instance is running, got %v", err)
	}

	var unavailable *PortUnavailableError
	if err := ValidatePort(records, "a", busy, false); !errors.As(err, &unavailable) {
		t.Errorf("expected PortUnavailableError while stopped, got %v", err)
	}
}

func TestValidateName(t *testing.T) {
	records := []registry.InstanceRecord{
		{ID: "a", Name: "alpha"},
		{ID: "b", Name: "Beta"},
	}

	var conflict *NameConflictError
	if err := ValidateName(records, "", "alpha"); !errors.As(err, &conflict) {
		t.Fatalf("expected NameConflictError, got %v", err)
	}

	// Case-sensitive: "beta" does not collide with "Beta".
	if err := ValidateName(records, "", "beta"); err != nil {
		t.Errorf("expected no conflict for different case, got %v", err)
	}

	// Renaming an instance to its own name is allowed.
	if err := ValidateName(records, "a", "alpha"); err != nil {
		t.Errorf("expected self rename to pass, got %v", err)
	}
}
