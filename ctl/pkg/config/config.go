// Package config holds the configuration shared by the deployctl frontend and the backend
// packages under ctl/pkg/ctl. Values are read from viper which the frontend populates from global
// flags and DEPLOYKIT_ environment variables.
package config

import (
	"fmt"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/relaydeck/deploykit/common/logger"
	"github.com/relaydeck/deploykit/common/runner"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Viper keys of the global flags.
const (
	DebugKey        = "debug"
	RawKey          = "raw"
	LogLevelKey     = "log-level"
	LogTypeKey      = "log-type"
	LogFileKey      = "log-file"
	LogDeveloperKey = "log-developer"
	NumWorkersKey   = "num-workers"
	OutputKey       = "output"
	ColumnsKey      = "columns"
	PageSizeKey     = "page-size"
)

type OutputType string

const (
	OutputTable      OutputType = "table"
	OutputJSON       OutputType = "json"
	OutputJSONPretty OutputType = "json-pretty"
)

func (o OutputType) String() string {
	return string(o)
}

// OutputTypeFromString returns an error for anything but the supported output types.
func OutputTypeFromString(s string) (OutputType, error) {
	switch OutputType(s) {
	case OutputTable, OutputJSON, OutputJSONPretty:
		return OutputType(s), nil
	default:
		return "", fmt.Errorf("unsupported output type %q (supported: %s, %s, %s)", s, OutputTable, OutputJSON, OutputJSONPretty)
	}
}

// Output returns the configured output type falling back to a table if it is invalid.
func Output() OutputType {
	o, err := OutputTypeFromString(viper.GetString(OutputKey))
	if err != nil {
		return OutputTable
	}
	return o
}

var (
	globalMu     sync.Mutex
	globalLogger *logger.Logger
	globalRunner runner.Runner
)

// GetLogger returns the logger configured by the global flags. It is created on first use. If the
// configuration is invalid a no-op logger is returned together with the error so callers that
// don't care can ignore it.
func GetLogger() (*zap.Logger, error) {
	globalMu.Lock()
	defer globalMu.Unlock()
	return getLoggerUnlocked()
}

func getLoggerUnlocked() (*zap.Logger, error) {
	if globalLogger != nil {
		return globalLogger.Logger, nil
	}
	cfg, err := loggerConfig()
	if err != nil {
		return zap.NewNop(), err
	}
	l, err := logger.New(cfg)
	if err != nil {
		return zap.NewNop(), fmt.Errorf("unable to initialize logger: %w", err)
	}
	globalLogger = l
	return globalLogger.Logger, nil
}

// loggerConfig decodes the log flags into a logger.Config. Values set through environment
// variables are strings so the decoder is weakly typed.
func loggerConfig() (logger.Config, error) {
	cfg := logger.Config{MaxSize: 100, NumRotatedFiles: 5}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return cfg, err
	}
	raw := map[string]any{
		"type":      viper.Get(LogTypeKey),
		"file":      viper.Get(LogFileKey),
		"level":     viper.Get(LogLevelKey),
		"developer": viper.Get(LogDeveloperKey),
	}
	for k, v := range raw {
		if v == nil {
			delete(raw, k)
		}
	}
	if err := decoder.Decode(raw); err != nil {
		return cfg, fmt.Errorf("invalid log configuration: %w", err)
	}
	return cfg, nil
}

// Runner returns the command runner used by all backends.
func Runner() runner.Runner {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalRunner == nil {
		log, _ := getLoggerUnlocked()
		globalRunner = runner.NewExecRunner(runner.WithLogger(log))
	}
	return globalRunner
}

// SetRunner replaces the runner returned by Runner. It is used by tests to avoid spawning processes.
func SetRunner(r runner.Runner) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalRunner = r
}

// Cleanup flushes and closes the global logger. It should be deferred by main.
func Cleanup() {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger != nil {
		_ = globalLogger.Close()
		globalLogger = nil
	}
	globalRunner = nil
}
