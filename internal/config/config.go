// Package config discovers and loads the daemon's configuration file:
// the external collaborator spec.md §1 calls out as out of the core's
// scope. The core only ever consumes the Config interface; nothing in
// internal/registry, internal/initializer, internal/health, or
// internal/ipc imports this package directly.
//
// Grounded on mcp-scooter's internal/domain/profile.Store: YAML
// persistence via gopkg.in/yaml.v3 with sensible defaults filled in
// after unmarshal, generalized from profile/settings persistence into
// the mcpServers/daemon schema of §6.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/mcp-scooter/mcpgate/internal/credentials"
	"github.com/mcp-scooter/mcpgate/internal/registry"
)

// Config is the validated, already-loaded configuration record the
// core consumes through this interface.
type Config interface {
	Servers() map[string]registry.ServerSpec
	Daemon() registry.DaemonSettings
	ConfigPath() string
	Socket() string
	ToolTimeout() int
	OAuthProviders() []credentials.ProviderConfig
}

// fileConfig is the YAML document shape.
type fileConfig struct {
	McpServers     map[string]yamlServerSpec         `yaml:"mcpServers"`
	Daemon         registry.DaemonSettings           `yaml:"daemon"`
	OAuthProviders map[string]yamlOAuthProviderConfig `yaml:"oauthProviders"`
}

// yamlOAuthProviderConfig configures one named OAuth provider that
// ServerSpec.Env "oauth:<name>" placeholders resolve against (§2 of
// SPEC_FULL's DOMAIN STACK, internal/credentials.TokenStore).
type yamlOAuthProviderConfig struct {
	ClientID     string   `yaml:"clientId"`
	ClientSecret string   `yaml:"clientSecret"`
	AuthURL      string   `yaml:"authUrl"`
	TokenURL     string   `yaml:"tokenUrl"`
	Scopes       []string `yaml:"scopes"`
}

// yamlServerSpec mirrors registry.ServerSpec but with an explicit
// autoStart default, since YAML has no notion of "default true".
type yamlServerSpec struct {
	Command     string            `yaml:"command"`
	Args        []string          `yaml:"args"`
	Env         map[string]string `yaml:"env"`
	Description string            `yaml:"description"`
	AutoStart   *bool             `yaml:"autoStart"`
	Optional    bool              `yaml:"optional"`
}

// loaded is the concrete Config implementation.
type loaded struct {
	path      string
	servers   map[string]registry.ServerSpec
	daemon    registry.DaemonSettings
	providers []credentials.ProviderConfig
}

func (l *loaded) Servers() map[string]registry.ServerSpec      { return l.servers }
func (l *loaded) Daemon() registry.DaemonSettings              { return l.daemon }
func (l *loaded) ConfigPath() string                           { return l.path }
func (l *loaded) Socket() string                               { return l.daemon.Socket }
func (l *loaded) ToolTimeout() int                             { return l.daemon.Timeout }
func (l *loaded) OAuthProviders() []credentials.ProviderConfig { return l.providers }

// defaultSocket is used when neither an explicit path, environment
// variable, nor config field supplies one (§6).
const defaultSocket = "/tmp/mcp-daemon.sock"

// ResolveSocketPath applies §6's precedence: argument > environment >
// default. An explicit non-empty argument always wins.
func ResolveSocketPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if v := os.Getenv("MCP_DAEMON_SOCKET"); v != "" {
		return v
	}
	return defaultSocket
}

// DiscoverPath finds the config file the way the daemon resolves it:
// an explicit path, then $MCPGATE_CONFIG, then
// ~/.config/mcpgate/config.yaml.
func DiscoverPath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if v := os.Getenv("MCPGATE_CONFIG"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving default config path: %w", err)
	}
	return filepath.Join(home, ".config", "mcpgate", "config.yaml"), nil
}

// Load reads and validates the config file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %q: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", path, err)
	}

	servers := make(map[string]registry.ServerSpec, len(fc.McpServers))
	for name, s := range fc.McpServers {
		if s.Command == "" {
			return nil, fmt.Errorf("server %q: command must not be empty", name)
		}
		autoStart := true
		if s.AutoStart != nil {
			autoStart = *s.AutoStart
		}
		servers[name] = registry.ServerSpec{
			Name:        name,
			Command:     s.Command,
			Args:        s.Args,
			Env:         s.Env,
			Description: s.Description,
			AutoStart:   autoStart,
			Optional:    s.Optional,
		}
	}

	daemon := applyDaemonDefaults(fc.Daemon)
	if err := validateDaemon(daemon); err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}

	providers := make([]credentials.ProviderConfig, 0, len(fc.OAuthProviders))
	for name, p := range fc.OAuthProviders {
		providers = append(providers, credentials.ProviderConfig{
			Name:         name,
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			AuthURL:      p.AuthURL,
			TokenURL:     p.TokenURL,
			Scopes:       p.Scopes,
		})
	}

	return &loaded{path: path, servers: servers, daemon: daemon, providers: providers}, nil
}

func applyDaemonDefaults(d registry.DaemonSettings) registry.DaemonSettings {
	d.Socket = ResolveSocketPath(d.Socket)
	if d.Timeout <= 0 {
		d.Timeout = 30
	}
	if d.InitializationTimeout <= 0 {
		d.InitializationTimeout = 15
	}
	if d.ParallelInitialization <= 0 {
		d.ParallelInitialization = 4
	}
	if d.OnInitFailure == "" {
		d.OnInitFailure = "warn"
	}
	return d
}

// validateDaemon checks only what the core actually reads, per §6:
// batch width >= 1, timeouts > 0, onInitFailure in the enum.
func validateDaemon(d registry.DaemonSettings) error {
	if d.ParallelInitialization < 1 {
		return fmt.Errorf("daemon.parallelInitialization must be >= 1")
	}
	if d.Timeout <= 0 {
		return fmt.Errorf("daemon.timeout must be > 0")
	}
	if d.InitializationTimeout <= 0 {
		return fmt.Errorf("daemon.initializationTimeout must be > 0")
	}
	switch d.OnInitFailure {
	case "fail", "warn", "ignore":
	default:
		return fmt.Errorf("daemon.onInitFailure must be one of fail|warn|ignore, got %q", d.OnInitFailure)
	}
	return nil
}
