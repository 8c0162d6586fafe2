package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jgoldverg/grover-tftp/internal"
	"github.com/jgoldverg/grover-tftp/server"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type ServeOpts struct {
	ConfigPath  string
	ListenHost  string
	Port        int
	RootDir     string
	AllowWrite  bool
	TimeoutMs   int
	MaxRetries  int
	LogFormat   string
	MetricsAddr string
	ControlAddr string
}

func ServeCommand() *cobra.Command {
	var opts ServeOpts

	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"s", "server"},
		Short:   "Run the TFTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := internal.LoadServerConfig(opts.ConfigPath)
			if err != nil {
				return err
			}
			if err := applyServeOverrides(cfg, cmd.Flags(), opts); err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
			}
			if err := internal.ConfigureLogger(cfg.LogLevel); err != nil {
				internal.Warn("invalid log level in server config, defaulting to info", internal.Fields{
					internal.FieldError: err.Error(),
				})
			}
			if err := internal.ConfigureLogFormat(cfg.LogFormat); err != nil {
				return err
			}

			internal.Info("starting tftp server", internal.Fields{
				internal.FieldAddr:            cfg.ListenAddr(),
				internal.FieldKey("root_dir"): cfg.RootDir,
				internal.FieldKey("timeout"):  cfg.Timeout().String(),
				internal.FieldRetries:         cfg.MaxRetries,
			})
			return server.NewDaemon(cfg).Run(ctx)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "Path to server config file (TOML)")
	cmd.Flags().StringVar(&opts.ListenHost, "listen-host", "", "Address to bind")
	cmd.Flags().IntVar(&opts.Port, "port", 0, "UDP port to listen on")
	cmd.Flags().StringVar(&opts.RootDir, "root", "", "Directory files are served from")
	cmd.Flags().BoolVar(&opts.AllowWrite, "allow-write", true, "Accept write requests")
	cmd.Flags().IntVar(&opts.TimeoutMs, "timeout-ms", 0, "Retransmission timeout in milliseconds")
	cmd.Flags().IntVar(&opts.MaxRetries, "max-retries", 0, "Resends without progress before a transfer is abandoned")
	cmd.Flags().StringVar(&opts.LogFormat, "log-format", "", "Log format: text or json")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address")
	cmd.Flags().StringVar(&opts.ControlAddr, "control-addr", "", "Serve gRPC health on this address")
	return cmd
}

// applyServeOverrides copies only the flags the user set onto cfg.
func applyServeOverrides(cfg *internal.ServerConfig, flags *pflag.FlagSet, opts ServeOpts) error {
	if flags.Changed("listen-host") {
		cfg.ListenHost = opts.ListenHost
	}
	if flags.Changed("port") {
		if opts.Port < 0 || opts.Port > 65535 {
			return fmt.Errorf("port %d out of range", opts.Port)
		}
		cfg.Port = opts.Port
	}
	if flags.Changed("root") {
		cfg.RootDir = opts.RootDir
	}
	if flags.Changed("allow-write") {
		cfg.AllowWrite = opts.AllowWrite
	}
	if flags.Changed("timeout-ms") {
		cfg.TimeoutMs = opts.TimeoutMs
	}
	if flags.Changed("max-retries") {
		cfg.MaxRetries = opts.MaxRetries
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = opts.LogFormat
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = opts.MetricsAddr
	}
	if flags.Changed("control-addr") {
		cfg.ControlAddr = opts.ControlAddr
	}
	return cfg.Validate()
}
