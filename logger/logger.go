// Package logger provides leveled logging for the bidding theater.
package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Level represents a logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// Logger provides leveled logging.
type Logger struct {
	level  Level
	logger *log.Logger
}

var defaultLogger = &Logger{
	level:  InfoLevel,
	logger: log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds),
}

// Init initializes the default logger with the specified level and format.
func Init(level string, format string) {
	var l Level
	switch strings.ToLower(level) {
	case "debug":
		l = DebugLevel
	case "info":
		l = InfoLevel
	case "warn":
		l = WarnLevel
	case "error":
		l = ErrorLevel
	default:
		l = InfoLevel
	}

	flags := log.LstdFlags | log.Lmicroseconds
	if strings.ToLower(format) == "text" {
		flags |= log.Lshortfile
	}

	defaultLogger = &Logger{
		level:  l,
		logger: log.New(os.Stderr, "", flags),
	}
}

func Debug(format string, args ...interface{}) {
	if defaultLogger.level <= DebugLevel {
		_ = defaultLogger.logger.Output(2, fmt.Sprintf("[DEBUG] "+format, args...))
	}
}

func Info(format string, args ...interface{}) {
	if defaultLogger.level <= InfoLevel {
		_ = defaultLogger.logger.Output(2, fmt.Sprintf("[INFO] "+format, args...))
	}
}

func Warn(format string, args ...interface{}) {
	if defaultLogger.level <= WarnLevel {
		_ = defaultLogger.logger.Output(2, fmt.Sprintf("[WARN] "+format, args...))
	}
}

func Error(format string, args ...interface{}) {
	if defaultLogger.level <= ErrorLevel {
		_ = defaultLogger.logger.Output(2, fmt.Sprintf("[ERROR] "+format, args...))
	}
}

func Fatal(format string, args ...interface{}) {
	_ = defaultLogger.logger.Output(2, fmt.Sprintf("[FATAL] "+format, args...))
	os.Exit(1)
}
