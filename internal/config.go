package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configDirName         = ".grover"
	serverConfigName      = "tftp_server"
	clientConfigName      = "tftp_client"
	serverConfigEnvPrefix = "GROVER_TFTP"
	clientConfigEnvPrefix = "GROVER_TFTP_CLIENT"
)

type ServerConfig struct {
	ListenHost      string `mapstructure:"listen_host"`
	Port            int    `mapstructure:"port"`
	RootDir         string `mapstructure:"root_dir"`
	AllowWrite      bool   `mapstructure:"allow_write"`
	TimeoutMs       int    `mapstructure:"timeout_ms"`
	MaxRetries      int    `mapstructure:"max_retries"`
	InboxDepth      int    `mapstructure:"inbox_depth"`
	ReadBufferSize  int    `mapstructure:"read_buffer_size"`
	WriteBufferSize int    `mapstructure:"write_buffer_size"`
	LogLevel        string `mapstructure:"log_level"`
	LogFormat       string `mapstructure:"log_format"`
	MetricsAddr     string `mapstructure:"metrics_addr"`
	ControlAddr     string `mapstructure:"control_addr"`
	ControlCertFile string `mapstructure:"control_cert_file"`
	ControlKeyFile  string `mapstructure:"control_key_file"`
}

type ClientConfig struct {
	Server     string `mapstructure:"server"`
	TimeoutMs  int    `mapstructure:"timeout_ms"`
	MaxRetries int    `mapstructure:"max_retries"`
	Mode       string `mapstructure:"mode"`
	LogLevel   string `mapstructure:"log_level"`
}

// DefaultServerConfig is the configuration used when no file or
// environment override is present.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ListenHost:      "0.0.0.0",
		Port:            69,
		RootDir:         ".",
		AllowWrite:      true,
		TimeoutMs:       5000,
		MaxRetries:      5,
		InboxDepth:      16,
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Server:     "127.0.0.1:69",
		TimeoutMs:  2000,
		MaxRetries: 5,
		Mode:       "octet",
		LogLevel:   "info",
	}
}

func (cfg *ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", cfg.ListenHost, cfg.Port)
}

func (cfg *ServerConfig) Timeout() time.Duration {
	return time.Duration(cfg.TimeoutMs) * time.Millisecond
}

func (cfg *ClientConfig) Timeout() time.Duration {
	return time.Duration(cfg.TimeoutMs) * time.Millisecond
}

func (cfg *ServerConfig) Validate() error {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("port %d out of range", cfg.Port)
	}
	if strings.TrimSpace(cfg.RootDir) == "" {
		return errors.New("root_dir is required")
	}
	if cfg.TimeoutMs <= 0 {
		return fmt.Errorf("timeout_ms must be positive, got %d", cfg.TimeoutMs)
	}
	if cfg.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", cfg.MaxRetries)
	}
	if cfg.InboxDepth <= 0 {
		return fmt.Errorf("inbox_depth must be positive, got %d", cfg.InboxDepth)
	}
	if (cfg.ControlCertFile == "") != (cfg.ControlKeyFile == "") {
		return errors.New("control_cert_file and control_key_file must be set together")
	}
	return nil
}

func LoadServerConfig(configPath string) (*ServerConfig, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New("failed to load users home directory: " + err.Error())
	}
	v, found, err := initViper(configPath, filepath.Join(home, configDirName), serverConfigName, "toml", serverConfigEnvPrefix)
	if err != nil {
		return nil, errors.New("failed to load server config: " + err.Error())
	}

	def := DefaultServerConfig()
	v.SetDefault("listen_host", def.ListenHost)
	v.SetDefault("port", def.Port)
	v.SetDefault("root_dir", def.RootDir)
	v.SetDefault("allow_write", def.AllowWrite)
	v.SetDefault("timeout_ms", def.TimeoutMs)
	v.SetDefault("max_retries", def.MaxRetries)
	v.SetDefault("inbox_depth", def.InboxDepth)
	v.SetDefault("read_buffer_size", def.ReadBufferSize)
	v.SetDefault("write_buffer_size", def.WriteBufferSize)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_format", def.LogFormat)
	v.SetDefault("metrics_addr", def.MetricsAddr)
	v.SetDefault("control_addr", def.ControlAddr)
	v.SetDefault("control_cert_file", def.ControlCertFile)
	v.SetDefault("control_key_file", def.ControlKeyFile)

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.RootDir = expandPath(cfg.RootDir)
	cfg.ControlCertFile = expandPath(cfg.ControlCertFile)
	cfg.ControlKeyFile = expandPath(cfg.ControlKeyFile)

	if !found {
		writePath := configPath
		if writePath == "" {
			writePath = filepath.Join(home, configDirName, serverConfigName+".toml")
		}
		if _, statErr := os.Stat(writePath); errors.Is(statErr, os.ErrNotExist) {
			if _, err := cfg.Save(writePath); err != nil {
				return nil, fmt.Errorf("persist default server config: %w", err)
			}
			Info("server config written", Fields{
				ConfigPath: writePath,
			})
		}
	}

	return &cfg, nil
}

func LoadClientConfig(configPath string) (*ClientConfig, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	v, found, err := initViper(configPath, filepath.Join(home, configDirName), clientConfigName, "toml", clientConfigEnvPrefix)
	if err != nil {
		return nil, err
	}

	def := DefaultClientConfig()
	v.SetDefault("server", def.Server)
	v.SetDefault("timeout_ms", def.TimeoutMs)
	v.SetDefault("max_retries", def.MaxRetries)
	v.SetDefault("mode", def.Mode)
	v.SetDefault("log_level", def.LogLevel)

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if !found {
		writePath := configPath
		if writePath == "" {
			writePath = filepath.Join(home, configDirName, clientConfigName+".toml")
		}
		if _, statErr := os.Stat(writePath); errors.Is(statErr, os.ErrNotExist) {
			if _, err := cfg.Save(writePath); err != nil {
				return nil, fmt.Errorf("persist default client config: %w", err)
			}
			Info("client config written", Fields{
				ConfigPath: writePath,
			})
		}
	}
	return &cfg, nil
}

// initViper reports whether a config file was actually read.
func initViper(configPath, defaultDir, defaultName, defaultType, envPrefix string) (*viper.Viper, bool, error) {
	v := viper.New()
	v.SetConfigType(defaultType)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(defaultDir)
		v.AddConfigPath(".")
		v.SetConfigName(defaultName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, false, nil
		}
		// An explicit path that does not exist yet is written on first run.
		if configPath != "" && errors.Is(err, os.ErrNotExist) {
			return v, false, nil
		}
		Error("config file could not be read", Fields{
			ConfigPath: configPath,
			FieldError: err.Error(),
		})
		return nil, false, fmt.Errorf("read config: %w", err)
	}
	return v, true, nil
}

func (cfg *ServerConfig) Save(path string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if path == "" {
		path = filepath.Join(home, configDirName, serverConfigName+".toml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("listen_host", cfg.ListenHost)
	v.Set("port", cfg.Port)
	v.Set("root_dir", cfg.RootDir)
	v.Set("allow_write", cfg.AllowWrite)
	v.Set("timeout_ms", cfg.TimeoutMs)
	v.Set("max_retries", cfg.MaxRetries)
	v.Set("inbox_depth", cfg.InboxDepth)
	v.Set("read_buffer_size", cfg.ReadBufferSize)
	v.Set("write_buffer_size", cfg.WriteBufferSize)
	v.Set("log_level", cfg.LogLevel)
	v.Set("log_format", cfg.LogFormat)
	v.Set("metrics_addr", cfg.MetricsAddr)
	v.Set("control_addr", cfg.ControlAddr)
	v.Set("control_cert_file", cfg.ControlCertFile)
	v.Set("control_key_file", cfg.ControlKeyFile)

	if err := v.WriteConfigAs(path); err != nil {
		return "", fmt.Errorf("write server config: %w", err)
	}
	_ = os.Chmod(path, 0o600)
	return path, nil
}

func (cfg *ClientConfig) Save(path string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if path == "" {
		path = filepath.Join(home, configDirName, clientConfigName+".toml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	v := viper.New()
	v.SetConfigType("toml")
	v.Set("server", cfg.Server)
	v.Set("timeout_ms", cfg.TimeoutMs)
	v.Set("max_retries", cfg.MaxRetries)
	v.Set("mode", cfg.Mode)
	v.Set("log_level", cfg.LogLevel)

	if err := v.WriteConfigAs(path); err != nil {
		return "", fmt.Errorf("write client config: %w", err)
	}
	_ = os.Chmod(path, 0o600)
	return path, nil
}

func expandPath(p string) string {
	if p == "" {
		return p
	}
	p = os.ExpandEnv(p)
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
