// Package logging configures the process-wide logrus logger for the
// capture and ETL daemons, mirroring console output into a log file
// when one is configured.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Init parses the level string and points logrus at stdout, or at
// stdout plus the given file. The file is appended to, and its parent
// directory is created if missing.
func Init(logLevel, logFile string) error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return err
	}

	customFormatter := &logrus.TextFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FullTimestamp:   false,
	}
	logrus.SetFormatter(customFormatter)
	logrus.SetLevel(level)

	if logFile == "" {
		logrus.SetOutput(os.Stdout)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	logrus.SetOutput(io.MultiWriter(os.Stdout, file))
	return nil
}
