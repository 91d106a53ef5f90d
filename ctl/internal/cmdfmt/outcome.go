package cmdfmt

import (
	"fmt"
	"os"

	"github.com/relaydeck/deploykit/common/outcome"
	"github.com/relaydeck/deploykit/ctl/pkg/config"
)

// PrintOutcome prints the raw output of a command, or the whole outcome when JSON output is
// requested. A failed outcome is returned as an error.
func PrintOutcome(o outcome.StepOutcome) error {
	switch config.Output() {
	case config.OutputJSON:
		fmt.Println(marshal(o, false))
	case config.OutputJSONPretty:
		fmt.Println(marshal(o, true))
	default:
		if o.Stdout != "" {
			fmt.Print(o.Stdout)
			if o.Stdout[len(o.Stdout)-1] != '\n' {
				fmt.Println()
			}
		}
		if !o.Success && o.Stderr != "" {
			fmt.Fprint(os.Stderr, o.Stderr)
		}
		if o.Success && o.Stdout == "" && o.Message != "" {
			fmt.Println(o.Message)
		}
	}
	if !o.Success {
		return fmt.Errorf("%s (%s)", o.Message, o.ErrorKind)
	}
	return nil
}
