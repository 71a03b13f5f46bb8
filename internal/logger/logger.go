// Package logger provides leveled logging in text or JSON-line format.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents a logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "FATAL"
	}
}

// ParseLevel maps a config string to a Level, defaulting to InfoLevel.
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Logger provides leveled logging.
type Logger struct {
	level  Level
	json   bool
	out    io.Writer
	mu     sync.Mutex
	logger *log.Logger
}

var defaultLogger *Logger

// Init initializes the default logger with the specified level and format.
func Init(level string, format string) {
	InitWriter(os.Stderr, level, format)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, level string, format string) {
	flags := log.LstdFlags | log.Lmicroseconds
	isJSON := strings.ToLower(format) == "json"
	if !isJSON {
		flags |= log.Lshortfile
	}

	defaultLogger = &Logger{
		level:  ParseLevel(level),
		json:   isJSON,
		out:    w,
		logger: log.New(w, "", flags),
	}
}

// Enabled reports whether messages at level would be written.
func Enabled(level Level) bool {
	return defaultLogger != nil && defaultLogger.level <= level
}

func write(level Level, format string, args ...interface{}) {
	if !Enabled(level) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if defaultLogger.json {
		line, err := json.Marshal(struct {
			Time  string `json:"time"`
			Level string `json:"level"`
			Msg   string `json:"msg"`
		}{time.Now().UTC().Format(time.RFC3339Nano), level.String(), msg})
		if err != nil {
			return
		}
		defaultLogger.mu.Lock()
		_, _ = defaultLogger.out.Write(append(line, '\n'))
		defaultLogger.mu.Unlock()
		return
	}
	_ = defaultLogger.logger.Output(3, "["+level.String()+"] "+msg)
}

func Debug(format string, args ...interface{}) {
	write(DebugLevel, format, args...)
}

func Info(format string, args ...interface{}) {
	write(InfoLevel, format, args...)
}

func Warn(format string, args ...interface{}) {
	write(WarnLevel, format, args...)
}

func Error(format string, args ...interface{}) {
	write(ErrorLevel, format, args...)
}

func Fatal(format string, args ...interface{}) {
	write(ErrorLevel+1, format, args...)
	os.Exit(1)
}
