package cli

import (
	"fmt"
	"strings"

	"github.com/jgoldverg/grover-tftp/cli/output"
	"github.com/jgoldverg/grover-tftp/internal"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func ConfigCommand() *cobra.Command {
	var serverConfigPath string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View or update grover-tftp configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVar(&serverConfigPath, "server-config", "", "Path to the server config file")
	cmd.AddCommand(configShowCommand(&serverConfigPath))
	cmd.AddCommand(configSetCommand(&serverConfigPath))
	return cmd
}

func configShowCommand(serverConfigPath *string) *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective client or server configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch normalizeTarget(target) {
			case "client":
				return output.PrintSettings("client config", clientSettings(GetClientConfig(cmd)))
			case "server":
				cfg, err := internal.LoadServerConfig(*serverConfigPath)
				if err != nil {
					return fmt.Errorf("load server config: %w", err)
				}
				return output.PrintSettings("server config", serverSettings(cfg))
			default:
				return fmt.Errorf("--target must be either client or server")
			}
		},
	}
	cmd.Flags().StringVar(&target, "target", "client", "Which config to show: client or server")
	return cmd
}

type configSetOpts struct {
	target string

	server     string
	timeoutMs  int
	maxRetries int
	mode       string

	listenHost string
	port       int
	rootDir    string
	allowWrite bool
	logLevel   string
}

func configSetCommand(serverConfigPath *string) *cobra.Command {
	var opts configSetOpts
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update the client or server configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch normalizeTarget(opts.target) {
			case "client":
				return updateClientConfig(cmd, cmd.Flags(), opts)
			case "server":
				return updateServerConfig(*serverConfigPath, cmd.Flags(), opts)
			default:
				return fmt.Errorf("--target must be either client or server")
			}
		},
	}

	cmd.Flags().StringVar(&opts.target, "target", "client", "Which config to update: client or server")
	cmd.Flags().StringVar(&opts.server, "default-server", "", "Client: default server host:port")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "Client: transfer mode (octet, netascii, mail)")
	cmd.Flags().IntVar(&opts.timeoutMs, "timeout-ms", 0, "Client or server: retransmission timeout in milliseconds")
	cmd.Flags().IntVar(&opts.maxRetries, "max-retries", 0, "Client or server: resends before giving up")
	cmd.Flags().StringVar(&opts.listenHost, "listen-host", "", "Server: bind address")
	cmd.Flags().IntVar(&opts.port, "port", 0, "Server: UDP port")
	cmd.Flags().StringVar(&opts.rootDir, "root", "", "Server: directory files are served from")
	cmd.Flags().BoolVar(&opts.allowWrite, "allow-write", true, "Server: accept write requests")
	cmd.Flags().StringVar(&opts.logLevel, "server-log-level", "", "Server: log level")
	return cmd
}

func normalizeTarget(target string) string {
	scope := strings.ToLower(strings.TrimSpace(target))
	if scope == "" {
		return "client"
	}
	return scope
}

func updateClientConfig(cmd *cobra.Command, flags *pflag.FlagSet, opts configSetOpts) error {
	cfg := GetClientConfig(cmd)
	if cfg == nil {
		return fmt.Errorf("client config unavailable")
	}
	if flags.Changed("default-server") {
		cfg.Server = strings.TrimSpace(opts.server)
	}
	if flags.Changed("mode") {
		cfg.Mode = opts.mode
	}
	if flags.Changed("timeout-ms") {
		cfg.TimeoutMs = opts.timeoutMs
	}
	if flags.Changed("max-retries") {
		cfg.MaxRetries = opts.maxRetries
	}

	path, err := cfg.Save(getClientConfigPath(cmd))
	if err != nil {
		return fmt.Errorf("saving client config: %w", err)
	}
	internal.Info("client configuration updated", internal.Fields{
		internal.ConfigPath: path,
	})
	return nil
}

func updateServerConfig(path string, flags *pflag.FlagSet, opts configSetOpts) error {
	cfg, err := internal.LoadServerConfig(path)
	if err != nil {
		return fmt.Errorf("load server config: %w", err)
	}
	if flags.Changed("listen-host") {
		cfg.ListenHost = opts.listenHost
	}
	if flags.Changed("port") {
		cfg.Port = opts.port
	}
	if flags.Changed("root") {
		cfg.RootDir = opts.rootDir
	}
	if flags.Changed("allow-write") {
		cfg.AllowWrite = opts.allowWrite
	}
	if flags.Changed("timeout-ms") {
		cfg.TimeoutMs = opts.timeoutMs
	}
	if flags.Changed("max-retries") {
		cfg.MaxRetries = opts.maxRetries
	}
	if flags.Changed("server-log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	saved, err := cfg.Save(path)
	if err != nil {
		return fmt.Errorf("saving server config: %w", err)
	}
	internal.Info("server configuration updated", internal.Fields{
		internal.ConfigPath: saved,
	})
	return nil
}

func clientSettings(cfg *internal.ClientConfig) map[string]any {
	if cfg == nil {
		return nil
	}
	return map[string]any{
		"server":      cfg.Server,
		"timeout_ms":  cfg.TimeoutMs,
		"max_retries": cfg.MaxRetries,
		"mode":        cfg.Mode,
		"log_level":   cfg.LogLevel,
	}
}

func serverSettings(cfg *internal.ServerConfig) map[string]any {
	return map[string]any{
		"listen_host":       cfg.ListenHost,
		"port":              cfg.Port,
		"root_dir":          cfg.RootDir,
		"allow_write":       cfg.AllowWrite,
		"timeout_ms":        cfg.TimeoutMs,
		"max_retries":       cfg.MaxRetries,
		"inbox_depth":       cfg.InboxDepth,
		"read_buffer_size":  cfg.ReadBufferSize,
		"write_buffer_size": cfg.WriteBufferSize,
		"log_level":         cfg.LogLevel,
		"log_format":        cfg.LogFormat,
		"metrics_addr":      cfg.MetricsAddr,
		"control_addr":      cfg.ControlAddr,
		"control_cert_file": cfg.ControlCertFile,
		"control_key_file":  cfg.ControlKeyFile,
	}
}
