package bridged

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration for mabd.
type Config struct {
	Server         ServerConfig         `toml:"server"`
	MusicAssistant MusicAssistantConfig `toml:"music_assistant"`
	HomeAssistant  HomeAssistantConfig  `toml:"home_assistant"`
	Modules        ModulesConfig        `toml:"modules"`
}

// ServerConfig defines shared daemon settings.
type ServerConfig struct {
	Broker    string     `toml:"broker"`
	Identity  string     `toml:"identity"`
	TopicBase string     `toml:"topic_base"`
	LogLevel  string     `toml:"log_level"`
	LogFormat string     `toml:"log_format"`
	LogOutput string     `toml:"log_output"`
	TLS       TLSConfig  `toml:"tls"`
	Auth      AuthConfig `toml:"auth"`
}

// TLSConfig holds TLS paths for MQTT.
type TLSConfig struct {
	CA   string `toml:"ca"`
	Cert string `toml:"cert"`
	Key  string `toml:"key"`
}

// AuthConfig holds MQTT auth credentials.
type AuthConfig struct {
	User string `toml:"user"`
	Pass string `toml:"pass"`
}

// MusicAssistantConfig holds the connection settings captured at setup.
type MusicAssistantConfig struct {
	Host  string `toml:"host"`
	Port  int    `toml:"port"`
	Token string `toml:"token"`
	TLS   bool   `toml:"tls"`
}

// URL returns the websocket endpoint for the configured server.
func (c MusicAssistantConfig) URL() string {
	scheme := "ws"
	if c.TLS {
		scheme = "wss"
	}
	port := c.Port
	if port == 0 {
		port = 8095
	}
	return fmt.Sprintf("%s://%s:%d/ws", scheme, c.Host, port)
}

// HomeAssistantConfig holds the entity platform connection settings.
type HomeAssistantConfig struct {
	URL   string `toml:"url"`
	Token string `toml:"token"`
}

// WebsocketURL returns the websocket API endpoint for the configured
// Home Assistant instance.
func (c HomeAssistantConfig) WebsocketURL() string {
	base := strings.TrimRight(c.URL, "/")
	if strings.HasSuffix(base, "/api/websocket") {
		return base
	}
	return base + "/api/websocket"
}

// ModulesConfig holds module configurations.
type ModulesConfig struct {
	Players      PlayersConfig      `toml:"players"`
	Controls     ControlsConfig     `toml:"controls"`
	EmbeddedMQTT EmbeddedMQTTConfig `toml:"embedded_mqtt"`
}

// PlayersConfig configures the player facade module.
type PlayersConfig struct {
	Enabled bool `toml:"enabled"`
}

// ControlsConfig configures the player-control bridge module. The two id
// lists are the user's enabled-set, keyed by deterministic control ids.
type ControlsConfig struct {
	Enabled        bool     `toml:"enabled"`
	PowerControls  []string `toml:"power_controls"`
	VolumeControls []string `toml:"volume_controls"`
}

// EmbeddedMQTTConfig configures the embedded MQTT broker.
type EmbeddedMQTTConfig struct {
	Enabled        bool   `toml:"enabled"`
	Listen         string `toml:"listen"`
	AllowAnonymous bool   `toml:"allow_anonymous"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	TLSCA          string `toml:"tls_ca"`
	TLSCert        string `toml:"tls_cert"`
	TLSKey         string `toml:"tls_key"`
}

// LoadConfig loads a config file from path.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Config{}, err
	}
	if info.IsDir() {
		return Config{}, errors.New("config path is a directory")
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.Server.Identity == "" {
		host, err := os.Hostname()
		if err == nil {
			cfg.Server.Identity = host
		}
	}
	return cfg, nil
}

// DefaultConfigPath returns the default config location.
func DefaultConfigPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "mab", "mabd.toml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "mab", "mabd.toml"), nil
}
