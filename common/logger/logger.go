// Package logger builds the zap logger shared by the deploykit command line tool and libraries.
package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogType string

const (
	StdOut  LogType = "stdout"
	StdErr  LogType = "stderr"
	LogFile LogType = "logfile"
)

// Config is usually populated by viper so fields use mapstructure tags matching the flag names.
type Config struct {
	Type LogType `mapstructure:"type"`
	File string  `mapstructure:"file"`
	// Level uses the 0=Fatal, 1=Error, 2=Warn, 3=Info, 4+5=Debug scale.
	Level           int8 `mapstructure:"level"`
	MaxSize         int  `mapstructure:"max-size"`
	NumRotatedFiles int  `mapstructure:"num-rotated-files"`
	Developer       bool `mapstructure:"developer"`
}

// Logger wraps a zap.Logger with the resources that must be released when logging stops.
type Logger struct {
	*zap.Logger
	rotator *lumberjack.Logger
}

// New returns a logger for the provided configuration. Callers should defer Close().
func New(cfg Config) (*Logger, error) {
	level, err := levelFromInt(cfg.Level)
	if err != nil {
		return nil, err
	}
	if cfg.Developer {
		level = zapcore.DebugLevel
	}

	var encoderCfg zapcore.EncoderConfig
	if cfg.Developer {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
	} else {
		encoderCfg = zap.NewProductionEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	l := &Logger{}
	var sink zapcore.WriteSyncer
	var encoder zapcore.Encoder
	switch cfg.Type {
	case StdErr, "":
		sink = zapcore.Lock(os.Stderr)
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	case StdOut:
		sink = zapcore.Lock(os.Stdout)
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	case LogFile:
		if cfg.File == "" {
			return nil, fmt.Errorf("log type %s requires a log file path", LogFile)
		}
		l.rotator = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.NumRotatedFiles,
		}
		sink = zapcore.AddSync(l.rotator)
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	default:
		return nil, fmt.Errorf("unsupported log type: %s", cfg.Type)
	}

	opts := []zap.Option{}
	if cfg.Developer {
		opts = append(opts, zap.Development(), zap.AddCaller(), zap.AddStacktrace(zapcore.WarnLevel))
	}
	l.Logger = zap.New(zapcore.NewCore(encoder, sink, level), opts...)
	return l, nil
}

// Close flushes buffered log entries and closes the log file if one is used.
func (l *Logger) Close() error {
	// Syncing stderr/stdout returns EINVAL on some platforms which is safe to ignore.
	if err := l.Sync(); err != nil && l.rotator != nil {
		return err
	}
	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

func levelFromInt(level int8) (zapcore.Level, error) {
	switch level {
	case 0:
		return zapcore.FatalLevel, nil
	case 1:
		return zapcore.ErrorLevel, nil
	case 2:
		return zapcore.WarnLevel, nil
	case 3:
		return zapcore.InfoLevel, nil
	case 4, 5:
		return zapcore.DebugLevel, nil
	default:
		return zapcore.InvalidLevel, fmt.Errorf("invalid log level %d (valid levels: 0=Fatal, 1=Error, 2=Warn, 3=Info, 4+5=Debug)", level)
	}
}

// ParseType returns the LogType for s or an error if it is not supported.
func ParseType(s string) (LogType, error) {
	switch t := LogType(strings.ToLower(s)); t {
	case StdOut, StdErr, LogFile:
		return t, nil
	default:
		return "", fmt.Errorf("unsupported log type: %s", s)
	}
}
