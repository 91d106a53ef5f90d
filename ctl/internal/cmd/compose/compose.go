package compose

import (
	"github.com/relaydeck/deploykit/common/compose"
	"github.com/relaydeck/deploykit/ctl/internal/cmdfmt"
	"github.com/relaydeck/deploykit/ctl/pkg/config"
	"github.com/spf13/cobra"
)

// Creates new "compose" command
func NewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Manage projects that ship a compose file",
		Long: `Manage projects that ship a compose file (docker-compose.yml, docker-compose.yaml,
compose.yml or compose.yaml). docker-compose is used if installed, otherwise the compose plugin
of the docker CLI.`,
	}
	cmd.AddCommand(newUpCmd(), newDownCmd(), newLogsCmd(), newPsCmd(), newRestartCmd())
	return cmd
}

func client() *compose.Client {
	log, _ := config.GetLogger()
	return compose.New(config.Runner(), compose.WithLogger(log))
}

func newUpCmd() *cobra.Command {
	opts := compose.UpOptions{}
	cmd := &cobra.Command{
		Use:   "up <project>",
		Short: "Create and start the services of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdfmt.PrintOutcome(client().Up(cmd.Context(), args[0], opts))
		},
	}
	cmd.Flags().BoolVarP(&opts.Detach, "detach", "d", true, "Run services in the background.")
	cmd.Flags().BoolVar(&opts.Build, "build", false, "Build images before starting services.")
	return cmd
}

func newDownCmd() *cobra.Command {
	var volumes bool
	cmd := &cobra.Command{
		Use:   "down <project>",
		Short: "Stop and remove the services of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdfmt.PrintOutcome(client().Down(cmd.Context(), args[0], volumes))
		},
	}
	cmd.Flags().BoolVar(&volumes, "volumes", false, "Also remove named volumes.")
	return cmd
}

func newLogsCmd() *cobra.Command {
	var tail int
	cmd := &cobra.Command{
		Use:   "logs <project> [<service>]",
		Short: "Print the logs of a project or one of its services",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			service := ""
			if len(args) == 2 {
				service = args[1]
			}
			return cmdfmt.PrintOutcome(client().Logs(cmd.Context(), args[0], service, tail))
		},
	}
	cmd.Flags().IntVarP(&tail, "tail", "n", compose.DefaultTail, "Number of lines to print from the end of the logs.")
	return cmd
}

func newPsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ps <project>",
		Short: "List the containers of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdfmt.PrintOutcome(client().Ps(cmd.Context(), args[0]))
		},
	}
}

func newRestartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restart <project> [<service>]",
		Short: "Restart a project or one of its services",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			service := ""
			if len(args) == 2 {
				service = args[1]
			}
			return cmdfmt.PrintOutcome(client().Restart(cmd.Context(), args[0], service))
		},
	}
}
