package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jgoldverg/grover-tftp/cli/output"
	"github.com/jgoldverg/grover-tftp/internal"
	"github.com/jgoldverg/grover-tftp/pkg/tftpclient"
	"github.com/spf13/cobra"
)

func GetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <remote> [local]",
		Short: "Download a file from a TFTP server",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := newClient(GetClientConfig(cmd))
			if err != nil {
				return err
			}
			local := ""
			if len(args) == 2 {
				local = args[1]
			}
			step := transferStep{Op: opGet, Remote: args[0], Local: local}.withDefaults()
			return runSteps(ctx, client, []transferStep{step}, newRunOpts(cmd))
		},
	}
	return cmd
}

func PutCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <local> [remote]",
		Short: "Upload a file to a TFTP server",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := newClient(GetClientConfig(cmd))
			if err != nil {
				return err
			}
			remote := ""
			if len(args) == 2 {
				remote = args[1]
			}
			step := transferStep{Op: opPut, Local: args[0], Remote: remote}.withDefaults()
			return runSteps(ctx, client, []transferStep{step}, newRunOpts(cmd))
		},
	}
	return cmd
}

const (
	opGet = "get"
	opPut = "put"
)

// transferStep is one file moved in either direction.
type transferStep struct {
	Op     string
	Remote string
	Local  string
}

func (s transferStep) withDefaults() transferStep {
	switch s.Op {
	case opGet:
		if s.Local == "" {
			s.Local = path.Base(s.Remote)
		}
	case opPut:
		if s.Remote == "" {
			s.Remote = filepath.Base(s.Local)
		}
	}
	return s
}

type runOpts struct {
	printer         *output.Printer
	progress        bool
	continueOnError bool
}

func newRunOpts(cmd *cobra.Command) runOpts {
	progress, _ := cmd.Flags().GetBool("progress")
	return runOpts{printer: output.NewPrinter(), progress: progress}
}

// runSteps executes steps in order. It stops at the first failure unless
// continueOnError is set, in which case every failure is returned joined.
func runSteps(ctx context.Context, client *tftpclient.Client, steps []transferStep, opts runOpts) error {
	printer := opts.printer
	var errs []error
	for i, step := range steps {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		start := time.Now()
		n, err := runStep(ctx, client, step, opts.progress)
		fields := map[string]any{
			"op":     step.Op,
			"remote": step.Remote,
			"local":  step.Local,
			"server": client.Addr,
		}
		if err != nil {
			fields["error"] = err.Error()
			printer.Error(fmt.Sprintf("transfer %d/%d failed", i+1, len(steps)), fields)
			errs = append(errs, fmt.Errorf("%s %s: %w", step.Op, step.Remote, err))
			if !opts.continueOnError {
				break
			}
			continue
		}
		printer.Transfer(step.Op, step.Remote, n, time.Since(start))
		internal.Debug("transfer step finished", internal.Fields{
			internal.FieldDirection: step.Op,
			internal.FieldFile:      step.Remote,
			internal.FieldBytes:     n,
		})
	}
	return errors.Join(errs...)
}

func runStep(ctx context.Context, client *tftpclient.Client, step transferStep, progress bool) (int64, error) {
	switch step.Op {
	case opGet:
		if dir := filepath.Dir(step.Local); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return 0, err
			}
		}
		f, err := os.Create(step.Local)
		if err != nil {
			return 0, err
		}
		bar := output.StartProgress(progress, step.Remote, 0)
		n, err := client.Get(ctx, step.Remote, bar.Writer(f))
		bar.Stop()
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(step.Local)
		}
		return n, err
	case opPut:
		f, err := os.Open(step.Local)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		var size int64
		if info, err := f.Stat(); err == nil {
			size = info.Size()
		}
		bar := output.StartProgress(progress, step.Local, size)
		defer bar.Stop()
		return client.Put(ctx, step.Remote, bar.Reader(f))
	default:
		return 0, fmt.Errorf("unknown transfer op %q", step.Op)
	}
}
