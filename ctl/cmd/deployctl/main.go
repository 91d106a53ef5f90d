package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/relaydeck/deploykit/ctl/internal/cmd/compose"
	"github.com/relaydeck/deploykit/ctl/internal/cmd/container"
	"github.com/relaydeck/deploykit/ctl/internal/cmd/deploy"
	"github.com/relaydeck/deploykit/ctl/internal/cmd/image"
	"github.com/relaydeck/deploykit/ctl/internal/cmd/probe"
	"github.com/relaydeck/deploykit/ctl/internal/cmd/process"
	"github.com/relaydeck/deploykit/ctl/internal/config"
	"github.com/relaydeck/deploykit/ctl/pkg/util"
	"github.com/spf13/cobra"
)

// Set by the build process using ldflags.
var (
	binaryName = "deployctl"
	version    = "unknown"
	commit     = "unknown"
	buildTime  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	cmd := &cobra.Command{
		Use:   binaryName,
		Short: "Deploy projects from git, images, packages or local directories and check their health",
		Long: `Deploy projects from git repositories, container images, PyPI/npm packages or local
directories, install their dependencies, start them and check whether they are running.

All work is done by running external tools (git, docker, docker-compose, uv/pip, npm, ps and
lsof), which need to be installed and found in $PATH.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.ValidateGlobalFlags()
		},
	}
	config.InitGlobalFlags(cmd)
	defer config.Cleanup()

	cmd.AddCommand(
		deploy.NewCmd(),
		probe.NewCmd(),
		compose.NewCmd(),
		container.NewCmd(),
		image.NewCmd(),
		process.NewCmd(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return int(util.GetExitCode(err))
	}
	return int(util.Success)
}
