package supervisor

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/botloft/botloft/registry"
)

func envValue(env []string, key string) (string, bool) {
	prefix := key + "="
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			return strings.TrimPrefix(kv, prefix), true
		}
	}
	return "", false
}

func TestBuildEnvironmentPathAssembly(t *testing.T) {
	existing := t.TempDir()
	missing := filepath.Join(t.TempDir(), "not-installed")

	env := BuildEnvironment([]string{existing, missing}, nil)
	path, ok := envValue(env, "PATH")
	if !ok {
		t.Fatal("PATH missing from environment")
	}

	parts := strings.Split(path, string(os.PathListSeparator))
	if parts[0] != existing {
		t.Errorf("existing tool dir should lead the path, got %q", parts[0])
	}
	for _, p := range parts {
		if p == missing {
			t.Errorf("missing tool dir %q should not be on the path", missing)
		}
	}
	if ambient := os.Getenv("PATH"); ambient != "" && !strings.Contains(path, ambient) {
		t.Error("ambient PATH should follow the tool dirs")
	}
}

func TestBuildEnvironmentProxyVariables(t *testing.T) {
	proxy := &registry.ProxyConfig{
		Protocol: "http",
		Host:     "proxy.local",
		Port:     8888,
		Username: "user name",
		Password: "p@ss:word",
	}

	env := BuildEnvironment(nil, proxy)
	for _, key := range []string{"HTTP_PROXY", "HTTPS_PROXY", "ALL_PROXY"} {
		value, ok := envValue(env, key)
		if !ok {
			t.Fatalf("%s missing from environment", key)
		}
		if !strings.Contains(value, "proxy.local:8888") {
			t.Errorf("%s does not contain proxy host: %q", key, value)
		}
		// Credentials must be percent-encoded; userinfo escaping covers
		// the colon inside the password as well.
		if !strings.Contains(value, "user%20name") {
			t.Errorf("%s username not percent-encoded: %q", key, value)
		}
		if !strings.Contains(value, "p%40ss%3Aword") {
			t.Errorf("%s password not percent-encoded: %q", key, value)
		}

		parsed, err := url.Parse(value)
		if err != nil {
			t.Fatalf("%s is not a valid URL: %q", key, value)
		}
		if user := parsed.User.Username(); user != "user name" {
			t.Errorf("%s username does not decode back: %q", key, user)
		}
		if pass, _ := parsed.User.Password(); pass != "p@ss:word" {
			t.Errorf("%s password does not decode back: %q", key, pass)
		}
	}
}

func TestBuildEnvironmentNoProxy(t *testing.T) {
	env := BuildEnvironment(nil, nil)
	if _, ok := envValue(env, "HTTP_PROXY"); ok {
		t.Error("HTTP_PROXY should not be set without a proxy descriptor")
	}
}

func TestRedactedProxyURL(t *testing.T) {
	proxy := &registry.ProxyConfig{Protocol: "socks5", Host: "proxy.local", Port: 1080, Username: "bob", Password: "hunter2"}
	redacted := RedactedProxyURL(proxy)

	if strings.Contains(redacted, "bob") || strings.Contains(redacted, "hunter2") {
		t.Errorf("credentials leaked into redacted URL: %q", redacted)
	}
	if !strings.Contains(redacted, "proxy.local:1080") {
		t.Errorf("redacted URL lost the host: %q", redacted)
	}
}

func TestStripANSI(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"\x1b[32mready\x1b[0m", "ready"},
		{"plain text", "plain text"},
		{"\x1b[1;31mbold red\x1b[0m rest", "bold red rest"},
		{"\x1b[2J\x1b[Hcleared", "cleared"},
	}
	for _, tc := range tests {
		if got := StripANSI(tc.in); got != tc.want {
			t.Errorf("StripANSI(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
