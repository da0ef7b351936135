package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Log represents singleton access to the default logger
var Log = NewLogger(os.Stderr)

// Logger represents a logger
type Logger struct {
	logger *logrus.Logger
}

// NewLogger creates a new Logger writing to out
func NewLogger(out io.Writer) Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000000Z07:00",
	})
	return Logger{logger: l}
}

// SetLevel parses and applies a level name such as "debug" or "warn".
func (l Logger) SetLevel(level string) error {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	l.logger.SetLevel(parsed)
	return nil
}

// SetOutput redirects the logger.
func (l Logger) SetOutput(out io.Writer) {
	l.logger.SetOutput(out)
}

func (l Logger) Debug(format string, args ...interface{}) {
	l.logger.Debugf(format, args...)
}

func (l Logger) Info(format string, args ...interface{}) {
	l.logger.Infof(format, args...)
}

func (l Logger) Warn(format string, args ...interface{}) {
	l.logger.Warnf(format, args...)
}

func (l Logger) Error(format string, args ...interface{}) {
	l.logger.Errorf(format, args...)
}

func (l Logger) Fatal(format string, args ...interface{}) {
	l.logger.Fatalf(format, args...)
}

// WithObject returns an entry tagged with a monitored object's id and type.
func (l Logger) WithObject(id string, objectType string) *logrus.Entry {
	return l.logger.WithFields(logrus.Fields{
		"object_id":   id,
		"object_type": objectType,
	})
}
