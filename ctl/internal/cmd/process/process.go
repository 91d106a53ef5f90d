package process

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/relaydeck/deploykit/common/outcome"
	"github.com/relaydeck/deploykit/common/process"
	"github.com/relaydeck/deploykit/ctl/internal/cmdfmt"
	"github.com/relaydeck/deploykit/ctl/pkg/config"
	"github.com/relaydeck/deploykit/ctl/pkg/util"
	"github.com/spf13/cobra"
)

// Creates new "process" command
func NewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Inspect processes, ports and host resources",
	}
	cmd.AddCommand(newStatusCmd(), newPortsCmd(), newSysInfoCmd())
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <name> [<name>...]",
		Short: "Check if processes mentioning a name are running",
		Long: fmt.Sprintf(`Check if processes mentioning a name are running. The name is matched against the full
ps line ignoring case and at most %d matching lines are shown per name.

Exits with a non-zero status if any name has no matching process.`, process.MaxMatches),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			monitor := process.New(config.Runner())
			tbl := cmdfmt.NewPrintomatic([]string{"name", "running", "processes"}, []string{"name", "running", "processes"})
			stopped := 0
			var errs []error
			for _, name := range args {
				status := monitor.ServiceStatus(cmd.Context(), name)
				if status.Outcome.ErrorKind != outcome.None {
					errs = append(errs, status.Outcome.AsError())
				}
				if !status.Running {
					stopped++
				}
				tbl.AddItem(name, status.Running, strings.Join(status.Matches, "\n"))
			}
			tbl.PrintRemaining()
			if err := errors.Join(errs...); err != nil {
				return err
			}
			if stopped > 0 {
				return util.NewCtlError(fmt.Errorf("%d of %d services are not running", stopped, len(args)), util.Unhealthy)
			}
			return nil
		},
	}
}

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports [<port>]",
		Short: "List processes using a port, or all network connections",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			port := 0
			if len(args) == 1 {
				var err error
				if port, err = strconv.Atoi(args[0]); err != nil {
					return fmt.Errorf("invalid port %q: %w", args[0], err)
				}
			}
			usage := process.New(config.Runner()).Ports(cmd.Context(), port)
			return cmdfmt.PrintOutcome(usage.Outcome)
		},
	}
}

func newSysInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sysinfo",
		Short: "Print memory, disk and uptime information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := process.New(config.Runner()).SystemInfo(cmd.Context())
			var errs []error
			for _, section := range []struct {
				title   string
				outcome outcome.StepOutcome
			}{
				{"Memory", info.Memory},
				{"Disk", info.Disk},
				{"Uptime", info.Uptime},
			} {
				fmt.Printf("%s:\n", section.title)
				if err := cmdfmt.PrintOutcome(section.outcome); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", strings.ToLower(section.title), err))
				}
				fmt.Println()
			}
			return errors.Join(errs...)
		},
	}
}
