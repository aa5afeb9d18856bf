package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// cliLogLevels are the values accepted by --log-level
var cliLogLevels = map[string]logrus.Level{
	"debug": logrus.DebugLevel,
	"info":  logrus.InfoLevel,
	"warn":  logrus.WarnLevel,
	"error": logrus.ErrorLevel,
}

// configureLogger builds the command logger. --log-level wins over --verbose;
// with neither, fallback applies, and without a fallback the logger stays at
// panic level so that normal runs print only the activity log.
// Log output goes to the command's stderr.
func configureLogger(cmd *cobra.Command, verboseFlagName string, fallback *logrus.Level) (*logrus.Logger, error) {
	level := logrus.PanicLevel
	if fallback != nil {
		level = *fallback
	}

	flags := cmd.Flags()
	if name, _ := flags.GetString("log-level"); name != "" {
		l, ok := cliLogLevels[name]
		if !ok {
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", name)
		}
		level = l
	} else if verbose, _ := flags.GetBool(verboseFlagName); verbose {
		level = logrus.DebugLevel
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger, nil
}
