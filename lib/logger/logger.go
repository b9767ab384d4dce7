package logger

import (
	"context"
	"os"
	"strings"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
)

// Fields is an alias for the logrus fields map.
type Fields = logrus.Fields

// Config stores the logger output destination and severity threshold.
type Config struct {
	Output   string `toml:"output"`
	Severity string `toml:"severity"`
}

type contextKey struct{}

// Setup configures the standard logger according to conf.
func Setup(conf Config) error {
	switch conf.Output {
	case "stderr", "error", "2":
		logrus.SetOutput(os.Stderr)
	case "", "stdout", "out", "1":
		logrus.SetOutput(os.Stdout)
	default:
		// Assume the output is a file path.
		file, err := os.OpenFile(conf.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
		if err != nil {
			return trace.Wrap(err, "failed to open the log file")
		}
		logrus.SetOutput(file)
	}

	switch strings.ToLower(conf.Severity) {
	case "", "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	default:
		return trace.BadParameter("unknown log severity %q", conf.Severity)
	}

	return nil
}

// Standard returns the standard logger.
func Standard() logrus.FieldLogger {
	return logrus.StandardLogger()
}

// Get returns the logger stored in ctx or the standard one.
func Get(ctx context.Context) logrus.FieldLogger {
	if log, ok := ctx.Value(contextKey{}).(logrus.FieldLogger); ok && log != nil {
		return log
	}
	return Standard()
}

// With stores a logger in the context.
func With(ctx context.Context, log logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, contextKey{}, log)
}

// WithField returns a context carrying a logger annotated with the given field.
func WithField(ctx context.Context, key string, value interface{}) (context.Context, logrus.FieldLogger) {
	log := Get(ctx).WithField(key, value)
	return With(ctx, log), log
}

// WithFields returns a context carrying a logger annotated with the given fields.
func WithFields(ctx context.Context, fields Fields) (context.Context, logrus.FieldLogger) {
	log := Get(ctx).WithFields(fields)
	return With(ctx, log), log
}
