package probe

import (
	"fmt"
	"strings"

	"github.com/relaydeck/deploykit/agent/pkg/probe"
	"github.com/relaydeck/deploykit/ctl/internal/cmdfmt"
	"github.com/relaydeck/deploykit/ctl/pkg/config"
	"github.com/relaydeck/deploykit/ctl/pkg/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Creates new "probe" command
func NewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe <target> [<target>...]",
		Short: "Check if deployed projects are running",
		Long: `Check if deployed projects are running.

Projects with a compose file are healthy if compose ps reports a running or up container. Other
projects are healthy if at least one process mentions the name of the target directory. Probing
only reads state and can be repeated as often as needed.

Exits with a non-zero status if any target is unhealthy.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbeCmd(cmd, args)
		},
	}
	return cmd
}

func runProbeCmd(cmd *cobra.Command, targets []string) error {
	log, _ := config.GetLogger()
	prober := probe.New(config.Runner(), probe.WithLogger(log))

	allColumns := []string{"target", "healthy", "type", "error kind", "message", "diagnostics"}
	defaultColumns := []string{"target", "healthy", "type", "message"}
	if viper.GetBool(config.DebugKey) {
		defaultColumns = allColumns
	}
	tbl := cmdfmt.NewPrintomatic(allColumns, defaultColumns)

	unhealthy := 0
	for _, target := range targets {
		report := prober.Probe(cmd.Context(), target)
		if !report.Healthy {
			unhealthy++
		}
		message := report.Outcome.Message
		if report.Outcome.Success {
			message = fmt.Sprintf("%d matching entries", len(report.Diagnostics))
		}
		tbl.AddItem(target, report.Healthy, report.DeploymentType.String(), report.Outcome.ErrorKind.String(), message,
			strings.Join(report.Diagnostics, "\n"))
	}
	tbl.PrintRemaining()

	if unhealthy > 0 {
		return util.NewCtlError(fmt.Errorf("%d of %d targets are not healthy", unhealthy, len(targets)), util.Unhealthy)
	}
	return nil
}
