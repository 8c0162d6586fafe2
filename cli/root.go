package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/jgoldverg/grover-tftp/internal"
	"github.com/jgoldverg/grover-tftp/pkg/tftpclient"
	"github.com/jgoldverg/grover-tftp/pkg/tftpwire"
	"github.com/spf13/cobra"
)

type ctxKey string

const clientCtxKey ctxKey = "clientConfig"
const clientConfigPathKey ctxKey = "clientConfigPath"

func NewRootCommand() *cobra.Command {
	var clientConfigPath string
	var serverFlag string
	var logLevelFlag string

	rootCmd := &cobra.Command{
		Use:   "grover-tftp",
		Short: "grover-tftp serves and fetches files over TFTP",
		Long:  `grover-tftp runs a single-port RFC 1350 TFTP server and provides get, put and batch transfers against any TFTP server.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := internal.LoadClientConfig(clientConfigPath)
			if err != nil {
				return fmt.Errorf("failed to load client config: %w", err)
			}

			if serverFlag != "" {
				cfg.Server = serverFlag
			}
			if logLevelFlag != "" {
				cfg.LogLevel = logLevelFlag
			}
			if err := internal.ConfigureLogger(cfg.LogLevel); err != nil {
				internal.Warn("invalid log level in client config, defaulting to info", internal.Fields{
					internal.FieldError: err.Error(),
				})
			}

			ctx := context.WithValue(cmd.Context(), clientCtxKey, cfg)
			ctx = context.WithValue(ctx, clientConfigPathKey, clientConfigPath)
			cmd.SetContext(ctx)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&clientConfigPath, "client-config", "", "Path to client config file (TOML)")
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "TFTP server host:port (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("progress", false, "Show a progress bar for each transfer")

	rootCmd.AddCommand(ServeCommand())
	rootCmd.AddCommand(GetCommand())
	rootCmd.AddCommand(PutCommand())
	rootCmd.AddCommand(BatchCommand())
	rootCmd.AddCommand(ConfigCommand())
	rootCmd.AddCommand(FilesCommand())

	return rootCmd
}

// GetClientConfig returns the config loaded by the root command.
func GetClientConfig(cmd *cobra.Command) *internal.ClientConfig {
	if v := cmd.Context().Value(clientCtxKey); v != nil {
		if cfg, ok := v.(*internal.ClientConfig); ok {
			return cfg
		}
	}
	return nil
}

func getClientConfigPath(cmd *cobra.Command) string {
	if v := cmd.Context().Value(clientConfigPathKey); v != nil {
		if path, ok := v.(string); ok {
			return path
		}
	}
	return ""
}

func newClient(cfg *internal.ClientConfig) (*tftpclient.Client, error) {
	mode := tftpwire.ModeOctet
	if strings.TrimSpace(cfg.Mode) != "" {
		m, err := tftpwire.ParseMode(cfg.Mode)
		if err != nil {
			return nil, err
		}
		mode = m
	}
	return &tftpclient.Client{
		Addr:       cfg.Server,
		Timeout:    cfg.Timeout(),
		MaxRetries: cfg.MaxRetries,
		Mode:       mode,
	}, nil
}
