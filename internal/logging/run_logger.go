package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// RunLogger captures the full trace of one pipeline run in its own log file
// under logDir, with elapsed timestamps and section banners. Runs execute in
// parallel, so each run owns its logger; there is no process-global current
// logger. A nil *RunLogger is safe to call.
type RunLogger struct {
	runID     string
	logFile   *os.File
	mutex     sync.Mutex
	startTime time.Time
}

var (
	registry      = map[string]*RunLogger{}
	registryMutex sync.Mutex
)

// StartRunLogging creates a log file for the run and registers the logger
// under its run ID.
func StartRunLogging(runID, logDir string) (*RunLogger, error) {
	if logDir == "" {
		logDir = "review_logs"
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	logPath := filepath.Join(logDir, fmt.Sprintf("review_%s_%s.log", runID, timestamp))
	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	r := &RunLogger{
		runID:     runID,
		logFile:   logFile,
		startTime: time.Now(),
	}

	registryMutex.Lock()
	registry[runID] = r
	registryMutex.Unlock()

	r.Log("Review run %s started at %s", runID, r.startTime.Format("2006-01-02 15:04:05.000"))
	return r, nil
}

// ByRunID returns the logger registered for a run, or nil.
func ByRunID(runID string) *RunLogger {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	return registry[runID]
}

// Log writes one formatted line with wall-clock and elapsed timestamps.
func (r *RunLogger) Log(format string, args ...interface{}) {
	if r == nil {
		return
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	timestamp := time.Now().Format("15:04:05.000")
	elapsed := time.Since(r.startTime).Round(time.Millisecond)
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(r.logFile, "[%s] [+%v] %s\n", timestamp, elapsed, msg)
	r.logFile.Sync()

	log.Debug().Str("run_id", r.runID).Msg(msg)
}

// LogSection writes a banner separating the log into readable phases.
func (r *RunLogger) LogSection(title string) {
	if r == nil {
		return
	}
	separator := strings.Repeat("=", 80)
	r.Log(separator)
	r.Log("= %s", title)
	r.Log(separator)
}

// LogError logs an error with its surrounding context label.
func (r *RunLogger) LogError(context string, err error) {
	if r == nil {
		return
	}
	r.Log("ERROR in %s: %v", context, err)
}

// LogPrompt records a full collaborator prompt for a stage.
func (r *RunLogger) LogPrompt(stage, prompt string) {
	if r == nil {
		return
	}
	r.LogSection(fmt.Sprintf("COLLABORATOR REQUEST - %s", stage))
	r.Log("Prompt length: %d characters", len(prompt))
	r.writeBlock(prompt)
}

// LogResponse records a full collaborator response for a stage.
func (r *RunLogger) LogResponse(stage, response string) {
	if r == nil {
		return
	}
	r.LogSection(fmt.Sprintf("COLLABORATOR RESPONSE - %s", stage))
	r.Log("Response length: %d characters", len(response))
	r.writeBlock(response)
}

func (r *RunLogger) writeBlock(content string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	fmt.Fprintln(r.logFile, "--- BLOCK START ---")
	fmt.Fprintln(r.logFile, content)
	fmt.Fprintln(r.logFile, "--- BLOCK END ---")
	r.logFile.Sync()
}

// Close finalizes and deregisters the logger.
func (r *RunLogger) Close() {
	if r == nil {
		return
	}

	r.Log("Run %s finished after %v", r.runID, time.Since(r.startTime).Round(time.Millisecond))

	r.mutex.Lock()
	r.logFile.Close()
	r.mutex.Unlock()

	registryMutex.Lock()
	delete(registry, r.runID)
	registryMutex.Unlock()
}
