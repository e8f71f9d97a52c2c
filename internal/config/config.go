// Package config loads the agent's JSON configuration file and the YAML
// network definitions that supply default liteserver endpoints.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	xerrors "github.com/DenzelPenzel/ton-agent/internal/errors"
)

// EnvConfigPath names the variable that overrides the configuration path.
const EnvConfigPath = "TON_AGENT_CONFIG"

// DefaultPath is used when EnvConfigPath is unset.
const DefaultPath = "configs/tonagent.json"

// Config is the root of configs/tonagent.json.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Wallet    WalletConfig    `json:"wallet"`
	Agent     AgentConfig     `json:"agent"`
	Storage   StorageConfig   `json:"storage"`
	TaskQueue TaskQueueConfig `json:"task_queue"`
	Auth      AuthConfig      `json:"auth"`
	Alerting  AlertingConfig  `json:"alerting"`
	Log       LogConfig       `json:"log"`
	Metrics   MetricsConfig   `json:"metrics"`
	Runtime   RuntimeConfig   `json:"runtime"`
}

// ServerConfig controls the HTTP API listener.
type ServerConfig struct {
	Address             string `json:"address"`
	ReadTimeoutSeconds  int    `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `json:"write_timeout_seconds"`
}

// WalletConfig describes the single TON wallet owned by the agent. Secrets can
// be inlined or referenced by environment variable name.
type WalletConfig struct {
	Network        string `json:"network"`
	RPCEndpoint    string `json:"rpc_endpoint"`
	RPCKey         string `json:"rpc_key"`
	RPCKeyEnv      string `json:"rpc_key_env"`
	Mnemonic       string `json:"mnemonic"`
	MnemonicEnv    string `json:"mnemonic_env"`
	MnemonicFormat string `json:"mnemonic_format"`
	Workchain      int    `json:"workchain"`
	NetworksFile   string `json:"networks_file"`

	ConnectAttempts     uint `json:"connect_attempts"`
	ConnectDelaySeconds int  `json:"connect_delay_seconds"`
}

// AgentConfig selects the action providers attached to the agent.
type AgentConfig struct {
	Providers []string `json:"providers"`
}

// StorageConfig groups persistence backends.
type StorageConfig struct {
	TaskStore TaskStoreConfig `json:"task_store"`
}

// TaskStoreConfig selects where invocation records are kept.
type TaskStoreConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	DSNEnv                 string `json:"dsn_env"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `json:"conn_max_idle_time_seconds"`
}

// TaskQueueConfig controls the invocation queue and its processor.
type TaskQueueConfig struct {
	Driver               string         `json:"driver"`
	Workers              int            `json:"workers"`
	Buffer               int            `json:"buffer"`
	MaxRetries           int            `json:"max_retries"`
	RetryBackoffSeconds  int            `json:"retry_backoff_seconds"`
	InvokeTimeoutSeconds int            `json:"invoke_timeout_seconds"`
	FailureLimit         int            `json:"failure_limit"`
	Redis                RedisConfig    `json:"redis"`
	RabbitMQ             RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig configures the Redis list queue.
type RedisConfig struct {
	Address          string `json:"address"`
	Password         string `json:"password"`
	PasswordEnv      string `json:"password_env"`
	DB               int    `json:"db"`
	Queue            string `json:"queue"`
	BlockWaitSeconds int    `json:"block_wait_seconds"`
}

// RabbitMQConfig configures the RabbitMQ queue.
type RabbitMQConfig struct {
	URL      string `json:"url"`
	URLEnv   string `json:"url_env"`
	Queue    string `json:"queue"`
	Prefetch int    `json:"prefetch"`
	Durable  bool   `json:"durable"`
}

// AuthConfig enables static API key authentication on the HTTP API.
type AuthConfig struct {
	Enabled bool           `json:"enabled"`
	Keys    []APIKeyConfig `json:"keys"`
}

// APIKeyConfig binds one bearer token to a set of permissions.
type APIKeyConfig struct {
	Name        string   `json:"name"`
	Key         string   `json:"key"`
	KeyEnv      string   `json:"key_env"`
	Permissions []string `json:"permissions"`
}

// AlertingConfig routes invocation failure alerts.
type AlertingConfig struct {
	WebhookURL     string `json:"webhook_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// LogConfig mirrors pkg/logger.Config in JSON form.
type LogConfig struct {
	Level       string         `json:"level"`
	Format      string         `json:"format"`
	OutputPaths []string       `json:"output_paths"`
	AddSource   bool           `json:"add_source"`
	Audit       AuditLogConfig `json:"audit"`
}

// AuditLogConfig configures the rotated audit log.
type AuditLogConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// MetricsConfig exposes Prometheus metrics on the API listener.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// RuntimeConfig holds process-wide knobs.
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// PathFromEnv returns the configuration path chosen by the environment.
func PathFromEnv() string {
	if path := strings.TrimSpace(os.Getenv(EnvConfigPath)); path != "" {
		return path
	}
	return DefaultPath
}

// Load parses the JSON file at path, fills defaults relative to the file's
// directory and validates the result.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, configError("path", "configuration path is empty")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "failed to read configuration file",
			xerrors.WithMetadata("path", path))
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "failed to parse configuration file",
			xerrors.WithMetadata("path", path))
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ReadTimeoutSeconds <= 0 {
		c.Server.ReadTimeoutSeconds = 15
	}
	if c.Server.WriteTimeoutSeconds <= 0 {
		c.Server.WriteTimeoutSeconds = 120
	}

	if c.Wallet.Network == "" {
		c.Wallet.Network = "testnet"
	}
	c.Wallet.Network = strings.ToLower(strings.TrimSpace(c.Wallet.Network))
	if c.Wallet.MnemonicFormat == "" {
		c.Wallet.MnemonicFormat = "ton"
	}
	if c.Wallet.RPCKeyEnv == "" {
		c.Wallet.RPCKeyEnv = "TON_RPC_KEY"
	}
	if c.Wallet.MnemonicEnv == "" {
		c.Wallet.MnemonicEnv = "TON_MNEMONIC"
	}
	if c.Wallet.NetworksFile != "" && !filepath.IsAbs(c.Wallet.NetworksFile) {
		c.Wallet.NetworksFile = filepath.Join(baseDir, c.Wallet.NetworksFile)
	}
	if c.Wallet.ConnectAttempts == 0 {
		c.Wallet.ConnectAttempts = 3
	}
	if c.Wallet.ConnectDelaySeconds <= 0 {
		c.Wallet.ConnectDelaySeconds = 2
	}

	if len(c.Agent.Providers) == 0 {
		c.Agent.Providers = []string{"wallet", "utility"}
	}

	if c.Storage.TaskStore.Driver == "" {
		c.Storage.TaskStore.Driver = "memory"
	}

	if c.TaskQueue.Driver == "" {
		c.TaskQueue.Driver = "memory"
	}
	if c.TaskQueue.Workers <= 0 {
		c.TaskQueue.Workers = 1
	}
	if c.TaskQueue.Buffer <= 0 {
		c.TaskQueue.Buffer = 128
	}
	if c.TaskQueue.MaxRetries <= 0 {
		c.TaskQueue.MaxRetries = 3
	}
	if c.TaskQueue.RetryBackoffSeconds <= 0 {
		c.TaskQueue.RetryBackoffSeconds = 2
	}
	if c.TaskQueue.InvokeTimeoutSeconds <= 0 {
		c.TaskQueue.InvokeTimeoutSeconds = 90
	}

	if c.Alerting.TimeoutSeconds <= 0 {
		c.Alerting.TimeoutSeconds = 5
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}

	if c.Log.Audit.Enabled && c.Log.Audit.Path == "" {
		c.Log.Audit.Path = filepath.Join(c.Runtime.DataDir, "audit.log")
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate reports the first structurally invalid field. Wallet secrets are
// checked by the wallet factory once environment and network defaults merge.
func (c *Config) Validate() error {
	switch c.Wallet.Network {
	case "mainnet", "testnet":
	default:
		return configError("wallet.network", fmt.Sprintf("unsupported network %q", c.Wallet.Network))
	}
	switch c.Wallet.MnemonicFormat {
	case "ton", "bip39":
	default:
		return configError("wallet.mnemonic_format", fmt.Sprintf("unsupported mnemonic format %q", c.Wallet.MnemonicFormat))
	}
	if c.Wallet.Workchain != 0 && c.Wallet.Workchain != -1 {
		return configError("wallet.workchain", "workchain must be 0 or -1")
	}

	switch strings.ToLower(c.Storage.TaskStore.Driver) {
	case "memory":
	case "mysql":
		if c.Storage.TaskStore.ResolveDSN() == "" {
			return configError("storage.task_store.dsn", "mysql driver requires a dsn")
		}
	default:
		return configError("storage.task_store.driver", fmt.Sprintf("unsupported driver %q", c.Storage.TaskStore.Driver))
	}

	switch strings.ToLower(c.TaskQueue.Driver) {
	case "memory":
	case "redis":
		if c.TaskQueue.Redis.Address == "" {
			return configError("task_queue.redis.address", "redis queue requires an address")
		}
	case "rabbitmq":
		if c.TaskQueue.RabbitMQ.ResolveURL() == "" {
			return configError("task_queue.rabbitmq.url", "rabbitmq queue requires a url")
		}
	default:
		return configError("task_queue.driver", fmt.Sprintf("unsupported driver %q", c.TaskQueue.Driver))
	}

	if c.Auth.Enabled {
		if len(c.Auth.Keys) == 0 {
			return configError("auth.keys", "auth is enabled but no keys are configured")
		}
		for i, key := range c.Auth.Keys {
			if key.ResolveKey() == "" {
				return configError(fmt.Sprintf("auth.keys[%d].key", i), "api key is empty")
			}
		}
	}
	return nil
}

// ResolveRPCKey returns the inline key or the value of RPCKeyEnv.
func (w WalletConfig) ResolveRPCKey() string {
	return firstNonEmpty(w.RPCKey, envValue(w.RPCKeyEnv))
}

// ResolveMnemonic returns the inline mnemonic or the value of MnemonicEnv.
func (w WalletConfig) ResolveMnemonic() string {
	return firstNonEmpty(w.Mnemonic, envValue(w.MnemonicEnv))
}

// ResolveDSN returns the inline DSN or the value of DSNEnv.
func (t TaskStoreConfig) ResolveDSN() string {
	return firstNonEmpty(t.DSN, envValue(t.DSNEnv))
}

// ResolvePassword returns the inline password or the value of PasswordEnv.
func (r RedisConfig) ResolvePassword() string {
	return firstNonEmpty(r.Password, envValue(r.PasswordEnv))
}

// ResolveURL returns the inline URL or the value of URLEnv.
func (r RabbitMQConfig) ResolveURL() string {
	return firstNonEmpty(r.URL, envValue(r.URLEnv))
}

// ResolveKey returns the inline key or the value of KeyEnv.
func (k APIKeyConfig) ResolveKey() string {
	return firstNonEmpty(k.Key, envValue(k.KeyEnv))
}

func envValue(name string) string {
	if strings.TrimSpace(name) == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(name))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func configError(field, message string) error {
	return xerrors.New(xerrors.CodeConfiguration, message, xerrors.WithMetadata("field", field))
}
