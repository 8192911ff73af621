package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New builds the process logger. When logFile is set, output goes to stdout and the file.
// The returned closer releases the file and is never nil.
func New(level, logFile string) (*logrus.Logger, io.Closer, error) {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, nil, fmt.Errorf("parse log level: %w", err)
	}

	logger := logrus.New()
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	if logFile == "" {
		logger.SetOutput(os.Stdout)
		return logger, nopCloser{}, nil
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, file))
	return logger, file, nil
}

// ForPLC tags every entry with the PLC it concerns.
func ForPLC(logger logrus.FieldLogger, name, address string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{"plc": name, "address": address})
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
