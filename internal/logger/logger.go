package logger

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fatih/color"
)

type LogLevel string

const (
	LevelInfo    LogLevel = "INFO"
	LevelSuccess LogLevel = "SUCCESS"
	LevelWarning LogLevel = "WARNING"
	LevelError   LogLevel = "ERROR"
	LevelDebug   LogLevel = "DEBUG"
)

var (
	mu sync.Mutex

	console io.Writer = color.Output

	errorLogger  *stdlog.Logger
	errorLogFile *os.File

	// Run and tool traces go to their own file so error.log stays readable
	aiLogger  *stdlog.Logger
	aiLogFile *os.File
)

// Init opens error.log and ai.log inside dir, creating the directory if needed.
// Calling it again closes the previous files first.
func Init(dir string) error {
	CloseLogFile()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	errFile, err := os.OpenFile(filepath.Join(dir, "error.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open error log: %w", err)
	}

	aiFile, err := os.OpenFile(filepath.Join(dir, "ai.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		errFile.Close()
		return fmt.Errorf("failed to open AI log: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	errorLogFile, errorLogger = errFile, stdlog.New(errFile, "", 0)
	aiLogFile, aiLogger = aiFile, stdlog.New(aiFile, "", 0)
	return nil
}

// SetOutput redirects console output. Tests use it to silence or capture logs.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	console = w
}

// CloseLogFile should be called during shutdown to properly close all log files
func CloseLogFile() {
	mu.Lock()
	defer mu.Unlock()

	if errorLogFile != nil {
		errorLogFile.Close()
		errorLogFile, errorLogger = nil, nil
	}

	if aiLogFile != nil {
		aiLogFile.Close()
		aiLogFile, aiLogger = nil, nil
	}
}

var colorMap = map[LogLevel]func(a ...interface{}) string{
	LevelInfo:    color.New(color.FgBlue).SprintFunc(),
	LevelSuccess: color.New(color.FgGreen).SprintFunc(),
	LevelWarning: color.New(color.FgYellow).SprintFunc(),
	LevelError:   color.New(color.FgRed).SprintFunc(),
	LevelDebug:   color.New(color.FgCyan).SprintFunc(),
}

func logMessage(level LogLevel, tag string, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("2006-01-02 15:04:05")

	mu.Lock()
	defer mu.Unlock()

	fmt.Fprintln(console, colorMap[level](fmt.Sprintf("[%s] ", tag))+message)

	// Only errors and warnings land in error.log
	if (level == LevelError || level == LevelWarning) && errorLogger != nil {
		errorLogger.Printf("[%s] %s: %s", level, timestamp, message)
	}
}

func Infof(format string, args ...interface{}) {
	logMessage(LevelInfo, string(LevelInfo), format, args...)
}

func Successf(format string, args ...interface{}) {
	logMessage(LevelSuccess, string(LevelSuccess), format, args...)
}

func Warnf(format string, args ...interface{}) {
	logMessage(LevelWarning, string(LevelWarning), format, args...)
}

func Errorf(format string, args ...interface{}) {
	logMessage(LevelError, string(LevelError), format, args...)
}

func Debugf(format string, args ...interface{}) {
	logMessage(LevelDebug, string(LevelDebug), format, args...)
}

// AIDebugf logs run and tool-call traces to ai.log instead of error.log
func AIDebugf(format string, args ...interface{}) {
	logMessage(LevelDebug, "AI-DEBUG", format, args...)

	message := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("2006-01-02 15:04:05")

	mu.Lock()
	defer mu.Unlock()
	if aiLogger != nil {
		aiLogger.Printf("[DEBUG] %s: %s", timestamp, message)
	}
}
