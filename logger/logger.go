package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var root = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()

	levelStr := os.Getenv("LOG_LEVEL")
	if levelStr == "" {
		levelStr = "info"
	}
	if lvl, err := logrus.ParseLevel(strings.ToLower(levelStr)); err == nil {
		l.SetLevel(lvl)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}

	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	// LOG_FILE enables rotated file output alongside stdout.
	if file := os.Getenv("LOG_FILE"); file != "" {
		l.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}))
	}

	return l
}

// Component returns an entry tagged with the originating component,
// e.g. logger.Component("stream-client").
func Component(name string) *logrus.Entry {
	return root.WithField("component", name)
}

// SetLevel overrides the level picked up from LOG_LEVEL.
func SetLevel(level logrus.Level) {
	root.SetLevel(level)
}
