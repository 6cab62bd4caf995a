package obs

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the daemon's structured logger: JSON formatter, always
// writing to stderr and, when logFile is non-empty, duplicating every line
// to that file too (the effect log_file has in the configuration design).
func NewLogger(logFile string) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if logFile == "" {
		log.SetOutput(os.Stderr)
		return log, nil
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return log, nil
}
