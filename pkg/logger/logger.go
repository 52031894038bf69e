// Package logger provides process-wide file logging for debugging runs.
// Logging is a no-op until Init is called, so library code can log
// unconditionally.
package logger

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	mu      sync.Mutex
	logFile *os.File
	log     = disabledLogger()
)

func disabledLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func fileLogger(f *os.File) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(f)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000000",
		DisableColors:   true,
	})
	return l
}

// Init opens (or creates) the log file and routes all subsequent log
// calls to it. Calling Init again switches to the new file.
func Init(logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	log = fileLogger(f)
	return nil
}

// SetLevel adjusts the minimum level ("debug", "info", "warn", "error").
// Unknown levels are ignored.
func SetLevel(level string) {
	mu.Lock()
	defer mu.Unlock()

	if parsed, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(parsed)
	}
}

// Close flushes and closes the log file. Logging becomes a no-op again.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	log = disabledLogger()
}

// Info logs at info level with printf formatting.
func Info(format string, args ...interface{}) {
	log.Infof(format, args...)
}

// Debug logs at debug level with printf formatting.
func Debug(format string, args ...interface{}) {
	log.Debugf(format, args...)
}

// Warn logs at warn level with printf formatting.
func Warn(format string, args ...interface{}) {
	log.Warnf(format, args...)
}

// Error logs at error level with printf formatting.
func Error(format string, args ...interface{}) {
	log.Errorf(format, args...)
}

// WithFields returns an entry carrying structured fields.
func WithFields(fields map[string]interface{}) *logrus.Entry {
	return log.WithFields(logrus.Fields(fields))
}

// GetWriter returns a writer that logs each line at info level. Useful
// for wiring subprocess output into the run log.
func GetWriter() io.Writer {
	return log.WriterLevel(logrus.InfoLevel)
}
