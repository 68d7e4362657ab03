package config

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	goconf "github.com/kayac/go-config"
	"github.com/kayac/pushtester/apns"
	"github.com/pkg/errors"
)

// Limit values
const (
	MaxConnections = 1024  // Maximum of concurrent connections to the local server.
	MinPort        = 1024  // Minimum of port number.
	MaxPort        = 65535 // Maximum of port number.
	MaxHistorySize = 200   // Maximum of records kept in the history file.
)

const (
	// Default port number of the local push server
	DefaultPort = 8003
	// Default connection limit of the local push server
	DefaultMaxConnections = 16
	// Default size in megabytes of a log file before it is rotated
	DefaultLogMaxSize = 10
	// Default number of rotated log files to keep
	DefaultLogMaxBackups = 3
)

// Config is the configure of pushtester. It doubles as the credential store
// of the tool, so it holds sensitive values and is written with 0600.
type Config struct {
	Apns     SectionApns     `toml:"apns"`
	Provider SectionProvider `toml:"provider"`
	Log      SectionLog      `toml:"log"`
}

// SectionApns holds the credentials and the target of a push.
type SectionApns struct {
	KeyID       string `toml:"key_id"`
	TeamID      string `toml:"team_id"`
	BundleID    string `toml:"bundle_id"`
	KeyFile     string `toml:"key_file"`
	PrivateKey  string `toml:"private_key,omitempty"`
	DeviceToken string `toml:"device_token"`
	Environment string `toml:"environment"`
	Host        string `toml:"host,omitempty"`
	UserAgent   string `toml:"user_agent,omitempty"`

	// InsecureSkipVerify is for apnsmock and its self-signed certificate.
	InsecureSkipVerify bool `toml:"insecure_skip_verify,omitempty"`
}

// SectionProvider is the configuration of the local push server and the history.
type SectionProvider struct {
	Port           int    `toml:"port"`
	MaxConnections int    `toml:"max_connections"`
	HistoryFile    string `toml:"history_file"`
	HistorySize    int    `toml:"history_size"`
	DebugPort      int    `toml:"-"`
}

// SectionLog is the configuration of logging.
type SectionLog struct {
	File       string `toml:"file,omitempty"`
	MaxSize    int    `toml:"max_size"`
	MaxBackups int    `toml:"max_backups"`
}

// DefaultPath returns the default location of the config file.
func DefaultPath() string {
	return filepath.Join(baseDir(), "config.toml")
}

// DefaultHistoryFile returns the default location of the history file.
func DefaultHistoryFile() string {
	return filepath.Join(baseDir(), "history.json")
}

func baseDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "pushtester")
}

// DefaultConfig returns a config with every default applied.
func DefaultConfig() Config {
	var c Config
	c.setDefaults()
	return c
}

// DefaultLoadConfig loads the config at DefaultPath, or the defaults when it does not exist.
func DefaultLoadConfig() (Config, error) {
	fn := DefaultPath()
	if _, err := os.Stat(fn); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	return LoadConfig(fn)
}

// LoadConfig reads config.toml, expanding {{ env }} templates.
func LoadConfig(fn string) (Config, error) {
	var config Config

	if err := goconf.LoadWithEnvTOML(&config, fn); err != nil {
		return config, errors.Wrapf(err, "load config %s failed", fn)
	}

	config.setDefaults()

	// validates config parameters
	if err := (&config).validateConfig(); err != nil {
		return config, errors.Wrap(err, "validate config failed")
	}

	return config, nil
}

func (c *Config) setDefaults() {
	// if not set parameters, set default value.
	if c.Provider.Port == 0 {
		c.Provider.Port = DefaultPort
	}
	if c.Provider.MaxConnections == 0 {
		c.Provider.MaxConnections = DefaultMaxConnections
	}
	if c.Provider.HistorySize == 0 {
		c.Provider.HistorySize = MaxHistorySize
	}
	if c.Provider.HistoryFile == "" {
		c.Provider.HistoryFile = DefaultHistoryFile()
	}
	if c.Apns.Environment == "" {
		c.Apns.Environment = apns.Sandbox.String()
	}
	if c.Log.MaxSize == 0 {
		c.Log.MaxSize = DefaultLogMaxSize
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = DefaultLogMaxBackups
	}
}

func (c *Config) validateConfig() error {
	if err := c.validateConfigProvider(); err != nil {
		return errors.Wrap(err, "[provider]")
	}
	if err := c.validateConfigAPNs(); err != nil {
		return errors.Wrap(err, "[apns]")
	}
	return nil
}

func (c *Config) validateConfigProvider() error {
	if c.Provider.Port < MinPort || c.Provider.Port > MaxPort {
		return fmt.Errorf("Port was out of available range: %d. (%d-%d)", c.Provider.Port, MinPort, MaxPort)
	}

	if c.Provider.MaxConnections < 1 || c.Provider.MaxConnections > MaxConnections {
		return fmt.Errorf("MaxConnections was out of available range: %d. (%d-%d)", c.Provider.MaxConnections,
			1, MaxConnections)
	}

	if c.Provider.HistorySize < 1 || c.Provider.HistorySize > MaxHistorySize {
		return fmt.Errorf("HistorySize was out of available range: %d. (%d-%d)", c.Provider.HistorySize,
			1, MaxHistorySize)
	}

	return nil
}

func (c *Config) validateConfigAPNs() error {
	if _, err := apns.ParseEnvironment(c.Apns.Environment); err != nil {
		return err
	}
	if c.Apns.KeyFile != "" && c.Apns.PrivateKey != "" {
		return fmt.Errorf("key_file and private_key are exclusive")
	}
	return nil
}

// Env returns the configured APNs environment.
func (c Config) Env() apns.Environment {
	env, _ := apns.ParseEnvironment(c.Apns.Environment)
	return env
}

// Credentials builds the credentials of a push, reading the key file if needed.
// Every field is trimmed, as values are often pasted from the developer portal.
func (c Config) Credentials() (apns.Credentials, error) {
	creds := apns.Credentials{
		KeyID:         strings.TrimSpace(c.Apns.KeyID),
		TeamID:        strings.TrimSpace(c.Apns.TeamID),
		BundleID:      strings.TrimSpace(c.Apns.BundleID),
		PrivateKeyPEM: c.Apns.PrivateKey,
	}
	if creds.PrivateKeyPEM == "" && c.Apns.KeyFile != "" {
		pem, err := ReadKeyFile(c.Apns.KeyFile)
		if err != nil {
			return creds, err
		}
		creds.PrivateKeyPEM = pem
	}
	return creds, nil
}

// ReadKeyFile reads a .p8 private key downloaded from the developer portal.
func ReadKeyFile(fn string) (string, error) {
	b, err := ioutil.ReadFile(fn)
	if err != nil {
		return "", errors.Wrap(err, "read key file failed")
	}
	if !bytes.Contains(b, []byte("PRIVATE KEY")) {
		return "", fmt.Errorf("%s is not a .p8 private key", fn)
	}
	return string(b), nil
}

// Save writes the config to fn with 0600 permissions. Templates of the
// loaded file are replaced by their expanded values.
func (c Config) Save(fn string) error {
	if err := os.MkdirAll(filepath.Dir(fn), 0700); err != nil {
		return errors.Wrap(err, "create config directory failed")
	}
	var b bytes.Buffer
	if err := toml.NewEncoder(&b).Encode(c); err != nil {
		return errors.Wrap(err, "encode config failed")
	}
	if err := ioutil.WriteFile(fn, b.Bytes(), 0600); err != nil {
		return errors.Wrapf(err, "write config %s failed", fn)
	}
	return os.Chmod(fn, 0600)
}
