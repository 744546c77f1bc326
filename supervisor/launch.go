package supervisor

import (
	"fmt"
	"path/filepath"

	"github.com/botloft/botloft/registry"
)

// LaunchSpec is the executable and argument vector used to start an instance.
type LaunchSpec struct {
	Name string
	Args []string
}

// LaunchFunc selects the launch strategy for a record. It is a Supervisor
// field so tests can substitute a harmless command.
type LaunchFunc func(rec registry.InstanceRecord) (LaunchSpec, error)

// DefaultLaunch maps each instance type to its launch strategy:
//
//   - node: the node binary (resolved through the assembled PATH) running the
//     framework entry script
//   - npm: the package manager's run script, which goes through a shell and
//     can leave descendant processes behind
//   - python: the instance's virtualenv interpreter on the entry script
func DefaultLaunch(rec registry.InstanceRecord) (LaunchSpec, error) {
	switch rec.Type {
	case registry.TypeNode:
		return LaunchSpec{Name: "node", Args: []string{"index.js"}}, nil
	case registry.TypeNPM:
		return LaunchSpec{Name: "npm", Args: []string{"run", "start"}}, nil
	case registry.TypePython:
		interpreter := filepath.Join(rec.Path, ".venv", "bin", "python3")
		return LaunchSpec{Name: interpreter, Args: []string{"bot.py"}}, nil
	default:
		return LaunchSpec{}, fmt.Errorf("unknown instance type %q", rec.Type)
	}
}
