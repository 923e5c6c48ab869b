package config

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	logger     *logrus.Logger
	loggerOnce sync.Once
)

// GetLogger returns the process-wide JSON logger.
func GetLogger() *logrus.Logger {
	loggerOnce.Do(func() {
		logger = logrus.New()
		logger.SetOutput(os.Stdout)
		logger.SetFormatter(&logrus.JSONFormatter{})

		level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info"))
		if err != nil {
			level = logrus.InfoLevel
		}
		logger.SetLevel(level)
	})
	return logger
}

func LogError(logger *logrus.Logger, moduleName string, funcName string, message string, data interface{}, err error) {
	logger.WithFields(logrus.Fields{
		"module":   moduleName,
		"function": funcName,
		"data":     data,
		"error":    err,
	}).Error(message)
}

