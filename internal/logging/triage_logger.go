package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger. Verbose enables debug level and
// a human-readable console writer; otherwise JSON at info level.
func Setup(verbose bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// TriageLogger manages logging for a single triage invocation (one external
// event flowing once through the workflow engine).
type TriageLogger struct {
	runID     string
	logFile   *os.File
	mutex     sync.Mutex
	startTime time.Time
}

var (
	currentLogger *TriageLogger
	loggerMutex   sync.Mutex
)

// StartTriageLogging initializes logging for a new triage invocation
func StartTriageLogging(runID string) (*TriageLogger, error) {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	// Close previous logger if exists
	if currentLogger != nil {
		currentLogger.Close()
	}

	timestamp := time.Now().Format("20060102_150405")
	logFileName := fmt.Sprintf("triage_%s_%s.log", runID, timestamp)
	logPath := filepath.Join("triage_logs", logFileName)

	if err := os.MkdirAll("triage_logs", 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	logger := &TriageLogger{
		runID:     runID,
		logFile:   logFile,
		startTime: time.Now(),
	}

	currentLogger = logger
	logger.writeHeader()

	return logger, nil
}

// GetCurrentLogger returns the current active logger
func GetCurrentLogger() *TriageLogger {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	return currentLogger
}

// Log writes a message to the triage log
func (t *TriageLogger) Log(format string, args ...interface{}) {
	if t == nil {
		return
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	timestamp := time.Now().Format("15:04:05.000")
	elapsed := time.Since(t.startTime)
	logMessage := fmt.Sprintf(format, args...)

	message := fmt.Sprintf("[%s] [+%v] %s\n", timestamp, elapsed.Round(time.Millisecond), logMessage)
	t.logFile.WriteString(message)
	t.logFile.Sync()

	log.Debug().Str("run_id", t.runID).Msg(logMessage)
}

// LogError writes an error message to the triage log
func (t *TriageLogger) LogError(format string, args ...interface{}) {
	if t == nil {
		return
	}
	t.Log("ERROR: "+format, args...)
	log.Error().Str("run_id", t.runID).Msgf(format, args...)
}

// LogSection writes a section header to the log
func (t *TriageLogger) LogSection(title string) {
	if t == nil {
		return
	}

	separator := strings.Repeat("=", 80)
	t.Log("%s", separator)
	t.Log("= %s", title)
	t.Log("%s", separator)
}

// LogRequest logs an agent request
func (t *TriageLogger) LogRequest(phase, model string, prompt string) {
	if t == nil {
		return
	}

	t.LogSection(fmt.Sprintf("AGENT REQUEST - Phase %s", phase))
	t.Log("Model: %s", model)
	t.Log("Prompt length: %d characters", len(prompt))
	t.mutex.Lock()
	t.logFile.WriteString(prompt + "\n")
	t.mutex.Unlock()
}

// LogResponse logs an agent response
func (t *TriageLogger) LogResponse(phase string, response string) {
	if t == nil {
		return
	}

	t.LogSection(fmt.Sprintf("AGENT RESPONSE - Phase %s", phase))
	t.Log("Response length: %d characters", len(response))
	t.mutex.Lock()
	t.logFile.WriteString(response + "\n")
	t.mutex.Unlock()
}

// Close finalizes the log and closes the file
func (t *TriageLogger) Close() {
	if t == nil || t.logFile == nil {
		return
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	elapsed := time.Since(t.startTime)
	t.logFile.WriteString(fmt.Sprintf("\n=== Triage run %s finished after %v ===\n", t.runID, elapsed.Round(time.Millisecond)))
	t.logFile.Close()
	t.logFile = nil
}

func (t *TriageLogger) writeHeader() {
	t.logFile.WriteString(fmt.Sprintf("=== Triage run %s started at %s ===\n\n", t.runID, t.startTime.Format(time.RFC3339)))
}
