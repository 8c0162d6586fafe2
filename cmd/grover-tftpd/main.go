package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jgoldverg/grover-tftp/internal"
	"github.com/jgoldverg/grover-tftp/server"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.String("config", "", "Path to server config file (TOML)")
	pflag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := internal.LoadServerConfig(*configPath)
	if err != nil {
		internal.Error("failed to load server config", internal.Fields{
			internal.FieldError: err.Error(),
		})
		os.Exit(1)
	}
	if err := internal.ConfigureLogger(cfg.LogLevel); err != nil {
		internal.Warn("invalid log level in server config, defaulting to info", internal.Fields{
			internal.FieldError: err.Error(),
		})
	}
	if err := internal.ConfigureLogFormat(cfg.LogFormat); err != nil {
		internal.Warn("invalid log format in server config, using text", internal.Fields{
			internal.FieldError: err.Error(),
		})
	}

	if err := server.NewDaemon(cfg).Run(ctx); err != nil {
		internal.Error("server error", internal.Fields{
			internal.FieldError: err.Error(),
		})
		os.Exit(1)
	}
	internal.Info("grover-tftpd shutdown complete", nil)
}
