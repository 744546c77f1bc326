// Package registry persists instance records and daemon settings in sqlite.
package registry

// InstanceType selects the launch strategy for an instance.
type InstanceType string

const (
	// TypeNode runs the bundled node binary on the framework entry script.
	TypeNode InstanceType = "node"
	// TypeNPM launches through the package manager's run script.
	TypeNPM InstanceType = "npm"
	// TypePython runs the virtualenv interpreter on the entry script.
	TypePython InstanceType = "python"
)

// Valid reports whether t is one of the known instance types.
func (t InstanceType) Valid() bool {
	switch t {
	case TypeNode, TypeNPM, TypePython:
		return true
	}
	return false
}

// RedisMode selects whether an instance uses the shared redis-server or
// manages its own.
type RedisMode string

const (
	RedisShared      RedisMode = "shared"
	RedisIndependent RedisMode = "independent"
)

// ProxyConfig describes an outbound proxy applied to an instance's
// environment at launch.
type ProxyConfig struct {
	Protocol string `json:"protocol"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// InstanceRecord is the persisted identity of a configured instance.
type InstanceRecord struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Path      string       `json:"path"`
	Type      InstanceType `json:"type"`
	Port      int          `json:"port"`
	Proxy     *ProxyConfig `json:"proxy,omitempty"`
	AutoStart bool         `json:"autoStart"`
	RedisMode RedisMode    `json:"redisMode"`
}
