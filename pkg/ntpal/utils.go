package ntpal

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger returns the default client logger. INFO=1 and DEBUG=1 in the
// environment raise its level.
func NewLogger(out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(logrus.WarnLevel)
	if isInfo() {
		log.SetLevel(logrus.InfoLevel)
	}
	if isDebug() {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

func isInfo() bool {
	return os.Getenv("INFO") == "1"
}

func isDebug() bool {
	return os.Getenv("DEBUG") == "1"
}
