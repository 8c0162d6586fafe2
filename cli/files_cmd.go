package cli

import (
	"github.com/jgoldverg/grover-tftp/backend/localfs"
	"github.com/jgoldverg/grover-tftp/cli/output"
	"github.com/jgoldverg/grover-tftp/internal"
	"github.com/spf13/cobra"
)

func FilesCommand() *cobra.Command {
	var rootDir string
	var serverConfigPath string
	cmd := &cobra.Command{
		Use:     "files",
		Aliases: []string{"ls"},
		Short:   "List the files a local server would serve",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("root") {
				cfg, err := internal.LoadServerConfig(serverConfigPath)
				if err != nil {
					return err
				}
				rootDir = cfg.RootDir
			}
			root, err := localfs.NewRoot(rootDir)
			if err != nil {
				return err
			}
			files, err := root.List()
			if err != nil {
				return err
			}
			return output.PrintFileTable(files)
		},
	}
	cmd.Flags().StringVar(&rootDir, "root", "", "Directory to list (defaults to the server config root_dir)")
	cmd.Flags().StringVar(&serverConfigPath, "server-config", "", "Path to the server config file")
	return cmd
}
