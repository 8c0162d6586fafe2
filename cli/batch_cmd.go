package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/jgoldverg/grover-tftp/internal"
	"github.com/spf13/cobra"
)

func BatchCommand() *cobra.Command {
	var continueOnError bool

	cmd := &cobra.Command{
		Use:   "batch <plan.{yaml,yml,json,toml}>",
		Short: "Run a plan of get and put steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			doc, err := loadTransferPlanDocument(args[0])
			if err != nil {
				return err
			}
			cfg := *GetClientConfig(cmd)
			doc.applyTo(&cfg)
			client, err := newClient(&cfg)
			if err != nil {
				return err
			}

			steps := doc.toSteps()
			internal.Info("running transfer plan", internal.Fields{
				internal.FieldKey("plan"):  args[0],
				internal.FieldKey("steps"): len(steps),
				internal.FieldAddr:         client.Addr,
			})
			opts := newRunOpts(cmd)
			opts.continueOnError = continueOnError || doc.ContinueOnError
			return runSteps(ctx, client, steps, opts)
		},
	}
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "Keep going after a failed step")
	return cmd
}
