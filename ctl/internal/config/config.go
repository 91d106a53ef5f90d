package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/relaydeck/deploykit/ctl/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// This package handles the global command line tool config - the global flags and environment
// variable bindings.

// Defines all the global flags and binds them to the backends config singleton
func InitGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool(config.DebugKey, false, "Print additional details that are normally hidden (such as the raw output of each command).")

	cmd.PersistentFlags().Bool(config.RawKey, false, "Print raw values, for example durations in milliseconds instead of a human readable format.")

	cmd.PersistentFlags().Int(config.NumWorkersKey, runtime.GOMAXPROCS(0), "The maximum number of deployments to run in parallel when a command deploys several projects (default: number of CPUs).")

	cmd.PersistentFlags().Int8(config.LogLevelKey, 0, fmt.Sprintf(`By default all logging is disabled except for fatal errors.
	Optionally additional logging to stderr can be enabled to assist with debugging (0=Fatal, 1=Error, 2=Warn, 3=Info, 4+5=Debug).
	When enabling logging you may wish to set --%s=0 to ensure output and log messages are synchronized.`, config.PageSizeKey))

	cmd.PersistentFlags().String(config.LogTypeKey, "stderr", "Where log messages should be sent ('stderr', 'stdout', 'logfile').")
	cmd.PersistentFlags().String(config.LogFileKey, "", fmt.Sprintf("The log file used when --%s=logfile. It is rotated once it reaches 100MB.", config.LogTypeKey))

	cmd.PersistentFlags().Bool(config.LogDeveloperKey, false, "Enable logging at DebugLevel and above and print stack traces at WarnLevel and above.")
	cmd.PersistentFlags().MarkHidden(config.LogDeveloperKey)

	cmd.PersistentFlags().StringSlice(config.ColumnsKey, []string{}, `When printing structured data, the columns/fields to include (use 'all' to include everything).`)
	cmd.PersistentFlags().Uint(config.PageSizeKey, 100, `The number of rows/elements to print before output is flushed to stdout.
	When printing using a table, the header will be repeated after printing this many rows (no headers are printed when set to 0).
	If set to 0, rows are written immediately and table columns may not be aligned.`)
	cmd.PersistentFlags().String(config.OutputKey, config.OutputTable.String(), fmt.Sprintf(`How structured output is printed ('%s', '%s' or '%s').
	If the number of elements to print is greater than %s multiple JSON lists separated by newlines will be printed (increase %s if needed).`,
		config.OutputTable, config.OutputJSON, config.OutputJSONPretty, config.PageSizeKey, config.PageSizeKey))

	// Environment variables should start with DEPLOYKIT_
	viper.SetEnvPrefix("deploykit")
	// Environment variables cannot use "-", replace with "_"
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	os.Setenv("DEPLOYKIT_BINARY_NAME", "deployctl")

	// Bind all persistent pflags to viper
	cmd.PersistentFlags().VisitAll(func(flag *pflag.Flag) {
		viper.BindEnv(flag.Name)
		viper.BindPFlag(flag.Name, flag)
	})
}

// ValidateGlobalFlags checks global flags that can't be validated by their type alone.
func ValidateGlobalFlags() error {
	if _, err := config.OutputTypeFromString(viper.GetString(config.OutputKey)); err != nil {
		return err
	}
	if viper.GetInt(config.NumWorkersKey) < 1 {
		return fmt.Errorf("--%s must be at least 1", config.NumWorkersKey)
	}
	return nil
}

func Cleanup() {
	config.Cleanup()
}
