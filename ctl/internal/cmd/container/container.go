package container

import (
	"time"

	"github.com/relaydeck/deploykit/common/container"
	"github.com/relaydeck/deploykit/ctl/internal/cmdfmt"
	"github.com/relaydeck/deploykit/ctl/pkg/config"
	"github.com/spf13/cobra"
)

// Creates new "container" command
func NewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "container",
		Short: "Manage containers started from deployed images",
	}
	cmd.AddCommand(
		newPullCmd(),
		newRunCmd(),
		newPsCmd(),
		newLogsCmd(),
		newStopCmd(),
		newStartCmd(),
		newRestartCmd(),
		newInspectCmd(),
		newStatsCmd(),
	)
	return cmd
}

func client() *container.Client {
	return container.New(config.Runner())
}

func newPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull <image>",
		Short: "Pull an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdfmt.PrintOutcome(client().Pull(cmd.Context(), args[0]))
		},
	}
}

func newRunCmd() *cobra.Command {
	spec := container.RunSpec{}
	cmd := &cobra.Command{
		Use:   "run <image>",
		Short: "Run an image as a detached container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec.Image = args[0]
			return cmdfmt.PrintOutcome(client().Run(cmd.Context(), spec))
		},
	}
	cmd.Flags().StringVar(&spec.Name, "name", "", "Name of the container (required).")
	cmd.MarkFlagRequired("name")
	cmd.Flags().IntVarP(&spec.Port, "port", "p", 0, "Publish this container port on the same host port.")
	cmd.Flags().StringArrayVarP(&spec.Env, "env", "e", nil, "Environment variable as KEY=VALUE (can be repeated).")
	cmd.Flags().StringArrayVarP(&spec.Volumes, "volume", "v", nil, "Volume as HOST:CONTAINER (can be repeated).")
	return cmd
}

func newPsCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "ps",
		Short: "List containers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdfmt.PrintOutcome(client().List(cmd.Context(), all))
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Also list stopped containers.")
	return cmd
}

func newLogsCmd() *cobra.Command {
	var tail int
	var since string
	cmd := &cobra.Command{
		Use:   "logs <container>",
		Short: "Print the logs of a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdfmt.PrintOutcome(client().Logs(cmd.Context(), args[0], tail, since))
		},
	}
	cmd.Flags().IntVarP(&tail, "tail", "n", container.DefaultTail, "Number of lines to print from the end of the logs.")
	cmd.Flags().StringVar(&since, "since", "", "Only print logs newer than this (e.g. 10m or a timestamp).")
	return cmd
}

func newStopCmd() *cobra.Command {
	var grace time.Duration
	cmd := &cobra.Command{
		Use:   "stop <container>",
		Short: "Stop a running container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdfmt.PrintOutcome(client().Stop(cmd.Context(), args[0], grace))
		},
	}
	cmd.Flags().DurationVarP(&grace, "time", "t", container.StopGrace, "Time to wait for the container to stop before killing it.")
	return cmd
}

func newRestartCmd() *cobra.Command {
	var grace time.Duration
	cmd := &cobra.Command{
		Use:   "restart <container>",
		Short: "Restart a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdfmt.PrintOutcome(client().Restart(cmd.Context(), args[0], grace))
		},
	}
	cmd.Flags().DurationVarP(&grace, "time", "t", container.StopGrace, "Time to wait for the container to stop before killing it.")
	return cmd
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <container>",
		Short: "Start a stopped container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdfmt.PrintOutcome(client().Start(cmd.Context(), args[0]))
		},
	}
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <container>",
		Short: "Print low level information about a container as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdfmt.PrintOutcome(client().Inspect(cmd.Context(), args[0]))
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats [<container>]",
		Short: "Print a single resource usage sample for one or all running containers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return cmdfmt.PrintOutcome(client().Stats(cmd.Context(), name))
		},
	}
}
