package supervisor

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/botloft/botloft/registry"
)

// BuildEnvironment assembles the process environment for an instance.
//
// The search path is rebuilt by prepending, in priority order, every bundled
// tool directory that exists on disk, followed by the inherited ambient PATH.
// A proxy descriptor, when present, is injected as the standard HTTP_PROXY /
// HTTPS_PROXY / ALL_PROXY variables with percent-encoded credentials.
//
// Deterministic apart from directory existence checks; no other side effects.
func BuildEnvironment(toolDirs []string, proxy *registry.ProxyConfig) []string {
	env := make([]string, 0, len(os.Environ())+4)
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "PATH=") {
			continue
		}
		env = append(env, kv)
	}

	path := make([]string, 0, len(toolDirs)+1)
	for _, dir := range toolDirs {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			path = append(path, dir)
		}
	}
	if ambient := os.Getenv("PATH"); ambient != "" {
		path = append(path, ambient)
	}
	env = append(env, "PATH="+strings.Join(path, string(os.PathListSeparator)))

	if proxy != nil && proxy.Host != "" {
		u := ProxyURL(proxy)
		env = append(env,
			"HTTP_PROXY="+u,
			"HTTPS_PROXY="+u,
			"ALL_PROXY="+u,
		)
	}
	return env
}

// ProxyURL renders a proxy descriptor as a URL with percent-encoded
// credentials.
func ProxyURL(proxy *registry.ProxyConfig) string {
	protocol := proxy.Protocol
	if protocol == "" {
		protocol = "http"
	}
	u := &url.URL{
		Scheme: protocol,
		Host:   fmt.Sprintf("%s:%d", proxy.Host, proxy.Port),
	}
	if proxy.Username != "" {
		if proxy.Password != "" {
			u.User = url.UserPassword(proxy.Username, proxy.Password)
		} else {
			u.User = url.User(proxy.Username)
		}
	}
	return u.String()
}

// RedactedProxyURL is ProxyURL with credentials masked, safe for logging.
func RedactedProxyURL(proxy *registry.ProxyConfig) string {
	masked := *proxy
	if masked.Username != "" {
		masked.Username = "***"
	}
	if masked.Password != "" {
		masked.Password = "***"
	}
	return ProxyURL(&masked)
}
