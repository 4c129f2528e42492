// Package logging builds the zap loggers used by the command line tools.
package logging

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config returns a console logger config at the given level.  Development
// mode adds colored levels and stack traces on warnings.
func Config(level zapcore.Level, development bool) zap.Config {

	encodeLevel := zapcore.CapitalLevelEncoder

	if development {
		encodeLevel = zapcore.CapitalColorLevelEncoder
	}

	return zap.Config{
		Level:       zap.NewAtomicLevelAt(level),
		Development: development,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    encodeLevel,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: !development,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}
}

// New returns a named sugared logger.  level is a zap level name such as
// "debug" or "info".
func New(name, level string, development bool) (*zap.SugaredLogger, error) {

	lvl, err := zapcore.ParseLevel(level)

	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", level)
	}

	logger, err := Config(lvl, development).Build()

	if err != nil {
		return nil, errors.Wrap(err, "error building logger")
	}

	return logger.Sugar().Named(name), nil
}
