package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
mcpServers:
  filesystem:
    command: npx
    args: ["-y", "@modelcontextprotocol/server-filesystem", "/tmp"]
    autoStart: true
  optional-server:
    command: some-tool
    autoStart: true
    optional: true
daemon:
  socket: /tmp/test-mcp-daemon.sock
  timeout: 10
  maxServers: 5
  initializationTimeout: 5
  parallelInitialization: 2
  onInitFailure: warn
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	servers := cfg.Servers()
	require.Contains(t, servers, "filesystem")
	assert.Equal(t, "npx", servers["filesystem"].Command)
	assert.True(t, servers["filesystem"].AutoStart)
	assert.True(t, servers["optional-server"].Optional)

	assert.Equal(t, "/tmp/test-mcp-daemon.sock", cfg.Socket())
	assert.Equal(t, 10, cfg.ToolTimeout())
	assert.Equal(t, 5, cfg.Daemon().MaxServers)
}

func TestLoadRejectsEmptyCommand(t *testing.T) {
	path := writeConfig(t, "mcpServers:\n  bad:\n    command: \"\"\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadOnInitFailure(t *testing.T) {
	path := writeConfig(t, "daemon:\n  onInitFailure: explode\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "mcpServers: {}\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.ToolTimeout())
	assert.Equal(t, 4, cfg.Daemon().ParallelInitialization)
	assert.Equal(t, "warn", cfg.Daemon().OnInitFailure)
}

func TestResolveSocketPathPrecedence(t *testing.T) {
	assert.Equal(t, "/explicit/path.sock", ResolveSocketPath("/explicit/path.sock"))

	t.Setenv("MCP_DAEMON_SOCKET", "/env/path.sock")
	assert.Equal(t, "/env/path.sock", ResolveSocketPath(""))

	t.Setenv("MCP_DAEMON_SOCKET", "")
	assert.Equal(t, defaultSocket, ResolveSocketPath(""))
}

func TestDiscoverPath(t *testing.T) {
	path, err := DiscoverPath("/explicit.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/explicit.yaml", path)

	t.Setenv("MCPGATE_CONFIG", "/env/config.yaml")
	path, err = DiscoverPath("")
	require.NoError(t, err)
	assert.Equal(t, "/env/config.yaml", path)
}

func TestAutoStartDefaultsToTrue(t *testing.T) {
	path := writeConfig(t, "mcpServers:\n  plain:\n    command: echo\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Servers()["plain"].AutoStart)
}

func TestLoadParsesOAuthProviders(t *testing.T) {
	path := writeConfig(t, `
oauthProviders:
  github:
    clientId: abc
    clientSecret: def
    authUrl: https://example.com/auth
    tokenUrl: https://example.com/token
    scopes: ["repo"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	providers := cfg.OAuthProviders()
	require.Len(t, providers, 1)
	assert.Equal(t, "github", providers[0].Name)
	assert.Equal(t, "abc", providers[0].ClientID)
	assert.Equal(t, []string{"repo"}, providers[0].Scopes)
}
