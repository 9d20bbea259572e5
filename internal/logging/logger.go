// Package logging provides config-driven categorized file-based logging for the agent.
// Logs are written to .pilot/logs/ with separate files per category.
// Logging is controlled by debug_mode in the agent's config, either via the
// top-level config.yaml's logging section or the .pilot/logging.json
// sidecar written alongside it -- this package never imports internal/config
// directly, to avoid a cycle (config logs through this package at boot).
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot        Category = "boot"        // startup, shutdown, config load
	CategoryFSM         Category = "fsm"         // agent state transitions
	CategoryOracle      Category = "oracle"      // planner LLM calls, validation, retries
	CategoryExecutor    Category = "executor"    // action execution
	CategoryAnalyzer    Category = "analyzer"    // page analysis / DOM scraping
	CategoryCache       Category = "cache"       // UI cache hits/misses/eviction
	CategoryCredentials Category = "credentials" // credential store access
	CategoryBrowser     Category = "browser"     // browser session lifecycle, CDP events
	CategoryCLI         Category = "cli"         // command line front end
)

// categories lists every category this build knows about, in the order
// Initialize reports them and convenience functions get generated for.
var categories = []Category{
	CategoryBoot,
	CategoryFSM,
	CategoryOracle,
	CategoryExecutor,
	CategoryAnalyzer,
	CategoryCache,
	CategoryCredentials,
	CategoryBrowser,
	CategoryCLI,
}

// loggingConfig mirrors the relevant parts of config.LoggingConfig
// to avoid circular imports.
type loggingConfig struct {
	DebugMode  bool            `json:"debug_mode"`
	Categories map[string]bool `json:"categories"`
	Level      string          `json:"level"`
	JSONFormat bool            `json:"json_format"`
}

type configFile struct {
	Logging loggingConfig `json:"logging"`
}

// StructuredLogEntry represents a JSON log entry.
type StructuredLogEntry struct {
	Timestamp int64                  `json:"ts"`
	Category  string                 `json:"cat"`
	Level     string                 `json:"lvl"`
	Message   string                 `json:"msg"`
	File      string                 `json:"file"`
	Line      int                    `json:"line"`
	RequestID string                 `json:"req,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers      = make(map[Category]*Logger)
	loggersMu    sync.RWMutex
	logsDir      string
	workspace    string
	config       loggingConfig
	configLoaded bool
	configMu     sync.RWMutex
	logLevel     int
)

const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// sidecarPaths returns the config files Initialize consults for logging
// settings, most specific first: a run can carry a logging.json sidecar
// (written independently of config.yaml, e.g. by a wrapper script) that
// overrides whatever the main YAML config's logging section says.
func sidecarPaths(ws string) []string {
	return []string{
		filepath.Join(ws, ".pilot", "logging.json"),
		filepath.Join(ws, ".pilot", "config.json"),
	}
}

// Initialize sets up the logging directory and loads config.
// Should be called once at startup with the workspace path.
func Initialize(ws string) error {
	if ws == "" {
		return fmt.Errorf("workspace path required")
	}

	workspace = ws
	logsDir = filepath.Join(workspace, ".pilot", "logs")

	if err := loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not load config: %v\n", err)
		config.DebugMode = false
	}

	if !config.DebugMode {
		return nil // silent no-op in production mode
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	bootLogger := Get(CategoryBoot)
	bootLogger.Info("=== agent logging initialized ===")
	bootLogger.Info("Workspace: %s", workspace)
	bootLogger.Info("Logs directory: %s", logsDir)
	bootLogger.Info("Debug mode: %v", config.DebugMode)
	bootLogger.Info("Log level: %s", config.Level)

	if len(config.Categories) > 0 {
		enabledCount := 0
		for _, cat := range categories {
			enabled, explicit := config.Categories[string(cat)]
			if !explicit {
				enabled = true
			}
			if enabled {
				enabledCount++
			}
			bootLogger.Debug("Category '%s': %v", cat, enabled)
		}
		bootLogger.Info("Enabled categories: %d/%d", enabledCount, len(categories))
	} else {
		bootLogger.Info("All categories enabled (no category filter)")
	}

	return nil
}

// loadConfig reads the first logging sidecar that exists under workspace.
// Neither sidecar existing is not an error -- it just means production mode.
func loadConfig() error {
	configMu.Lock()
	defer configMu.Unlock()

	var data []byte
	for _, path := range sidecarPaths(workspace) {
		d, err := os.ReadFile(path)
		if err == nil {
			data = d
			break
		}
		if !os.IsNotExist(err) {
			return err
		}
	}
	if data == nil {
		config.DebugMode = false
		configLoaded = true
		return nil
	}

	var cf configFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	config = cf.Logging
	configLoaded = true

	switch config.Level {
	case "debug":
		logLevel = LevelDebug
	case "info":
		logLevel = LevelInfo
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}

	return nil
}

// ReloadConfig reloads the config from disk. Call this if config changes at runtime.
func ReloadConfig() error {
	return loadConfig()
}

// IsDebugMode returns whether debug logging is enabled.
func IsDebugMode() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled.
func IsCategoryEnabled(category Category) bool {
	configMu.RLock()
	defer configMu.RUnlock()

	if !config.DebugMode {
		return false
	}

	if config.Categories == nil {
		return true
	}

	enabled, exists := config.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}

	if logsDir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	if l, ok := loggers[category]; ok {
		return l
	}

	date := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s.log", date, category)
	logPath := filepath.Join(logsDir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l

	return l
}

func (l *Logger) logJSON(level, msg string) {
	entry := StructuredLogEntry{
		Timestamp: time.Now().UnixMilli(),
		Category:  string(l.category),
		Level:     level,
		Message:   msg,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		l.logger.Printf("[%s] %s", level, msg)
		return
	}
	l.logger.Printf("%s", data)
}

func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if config.JSONFormat {
		l.logJSON("debug", msg)
	} else {
		l.logger.Printf("[DEBUG] %s", msg)
	}
}

func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if config.JSONFormat {
		l.logJSON("info", msg)
	} else {
		l.logger.Printf("[INFO] %s", msg)
	}
}

func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if config.JSONFormat {
		l.logJSON("warn", msg)
	} else {
		l.logger.Printf("[WARN] %s", msg)
	}
}

func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if config.JSONFormat {
		l.logJSON("error", msg)
	} else {
		l.logger.Printf("[ERROR] %s", msg)
	}
}

// StructuredLog writes a fully structured log entry with custom fields.
func (l *Logger) StructuredLog(level string, msg string, fields map[string]interface{}) {
	if l.logger == nil {
		return
	}
	entry := StructuredLogEntry{
		Timestamp: time.Now().UnixMilli(),
		Category:  string(l.category),
		Level:     level,
		Message:   msg,
		Fields:    fields,
	}
	if config.JSONFormat {
		data, err := json.Marshal(entry)
		if err == nil {
			l.logger.Printf("%s", data)
			return
		}
	}
	l.logger.Printf("[%s] %s | fields=%v", level, msg, fields)
}

// IsJSONFormat returns whether JSON logging is enabled.
func IsJSONFormat() bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return config.JSONFormat
}

// WithContext returns a context logger for structured logging.
func (l *Logger) WithContext(ctx map[string]interface{}) *ContextLogger {
	return &ContextLogger{logger: l, context: ctx}
}

// ContextLogger provides structured logging with key-value context.
type ContextLogger struct {
	logger  *Logger
	context map[string]interface{}
}

func (c *ContextLogger) Debug(format string, args ...interface{}) {
	if c.logger.logger == nil || logLevel > LevelDebug {
		return
	}
	msg := fmt.Sprintf(format, args...)
	c.logger.logger.Printf("[DEBUG] %s | ctx=%v", msg, c.context)
}

func (c *ContextLogger) Info(format string, args ...interface{}) {
	if c.logger.logger == nil || logLevel > LevelInfo {
		return
	}
	msg := fmt.Sprintf(format, args...)
	c.logger.logger.Printf("[INFO] %s | ctx=%v", msg, c.context)
}

func (c *ContextLogger) Warn(format string, args ...interface{}) {
	if c.logger.logger == nil || logLevel > LevelWarn {
		return
	}
	msg := fmt.Sprintf(format, args...)
	c.logger.logger.Printf("[WARN] %s | ctx=%v", msg, c.context)
}

func (c *ContextLogger) Error(format string, args ...interface{}) {
	if c.logger.logger == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	c.logger.logger.Printf("[ERROR] %s | ctx=%v", msg, c.context)
}

// CloseAll closes all open log files (call at shutdown).
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first.
// These are no-ops if the category is disabled.
//
// Each category's four level funcs (Info/Debug/Warn/Error) are built once,
// here, from the categories table above, rather than hand-written one at a
// time per category per level. The named functions below (Boot, FSMWarn,
// CLIError, ...) are thin call-site-stable wrappers over this table, since
// every caller in the rest of the module already spells them as free
// functions (logging.Boot(...), logging.FSMWarn(...), etc).
// =============================================================================

type levelFuncs struct {
	Info, Debug, Warn, Error func(format string, args ...interface{})
}

var categoryFuncs = buildCategoryFuncs()

func buildCategoryFuncs() map[Category]levelFuncs {
	funcs := make(map[Category]levelFuncs, len(categories))
	for _, cat := range categories {
		cat := cat // capture per category
		funcs[cat] = levelFuncs{
			Info:  func(format string, args ...interface{}) { Get(cat).Info(format, args...) },
			Debug: func(format string, args ...interface{}) { Get(cat).Debug(format, args...) },
			Warn:  func(format string, args ...interface{}) { Get(cat).Warn(format, args...) },
			Error: func(format string, args ...interface{}) { Get(cat).Error(format, args...) },
		}
	}
	return funcs
}

func Boot(format string, args ...interface{})      { categoryFuncs[CategoryBoot].Info(format, args...) }
func BootDebug(format string, args ...interface{}) { categoryFuncs[CategoryBoot].Debug(format, args...) }
func BootWarn(format string, args ...interface{})  { categoryFuncs[CategoryBoot].Warn(format, args...) }
func BootError(format string, args ...interface{}) { categoryFuncs[CategoryBoot].Error(format, args...) }

func FSM(format string, args ...interface{})      { categoryFuncs[CategoryFSM].Info(format, args...) }
func FSMDebug(format string, args ...interface{}) { categoryFuncs[CategoryFSM].Debug(format, args...) }
func FSMWarn(format string, args ...interface{})  { categoryFuncs[CategoryFSM].Warn(format, args...) }
func FSMError(format string, args ...interface{}) { categoryFuncs[CategoryFSM].Error(format, args...) }

func Oracle(format string, args ...interface{})      { categoryFuncs[CategoryOracle].Info(format, args...) }
func OracleDebug(format string, args ...interface{}) { categoryFuncs[CategoryOracle].Debug(format, args...) }
func OracleWarn(format string, args ...interface{})  { categoryFuncs[CategoryOracle].Warn(format, args...) }
func OracleError(format string, args ...interface{}) { categoryFuncs[CategoryOracle].Error(format, args...) }

func Executor(format string, args ...interface{}) { categoryFuncs[CategoryExecutor].Info(format, args...) }
func ExecutorDebug(format string, args ...interface{}) {
	categoryFuncs[CategoryExecutor].Debug(format, args...)
}
func ExecutorWarn(format string, args ...interface{}) {
	categoryFuncs[CategoryExecutor].Warn(format, args...)
}
func ExecutorError(format string, args ...interface{}) {
	categoryFuncs[CategoryExecutor].Error(format, args...)
}

func Analyzer(format string, args ...interface{}) { categoryFuncs[CategoryAnalyzer].Info(format, args...) }
func AnalyzerDebug(format string, args ...interface{}) {
	categoryFuncs[CategoryAnalyzer].Debug(format, args...)
}
func AnalyzerWarn(format string, args ...interface{}) {
	categoryFuncs[CategoryAnalyzer].Warn(format, args...)
}
func AnalyzerError(format string, args ...interface{}) {
	categoryFuncs[CategoryAnalyzer].Error(format, args...)
}

func Cache(format string, args ...interface{})      { categoryFuncs[CategoryCache].Info(format, args...) }
func CacheDebug(format string, args ...interface{}) { categoryFuncs[CategoryCache].Debug(format, args...) }
func CacheWarn(format string, args ...interface{})  { categoryFuncs[CategoryCache].Warn(format, args...) }
func CacheError(format string, args ...interface{}) { categoryFuncs[CategoryCache].Error(format, args...) }

func Credentials(format string, args ...interface{}) {
	categoryFuncs[CategoryCredentials].Info(format, args...)
}
func CredentialsDebug(format string, args ...interface{}) {
	categoryFuncs[CategoryCredentials].Debug(format, args...)
}
func CredentialsWarn(format string, args ...interface{}) {
	categoryFuncs[CategoryCredentials].Warn(format, args...)
}
func CredentialsError(format string, args ...interface{}) {
	categoryFuncs[CategoryCredentials].Error(format, args...)
}

func Browser(format string, args ...interface{}) { categoryFuncs[CategoryBrowser].Info(format, args...) }
func BrowserDebug(format string, args ...interface{}) {
	categoryFuncs[CategoryBrowser].Debug(format, args...)
}
func BrowserWarn(format string, args ...interface{}) {
	categoryFuncs[CategoryBrowser].Warn(format, args...)
}
func BrowserError(format string, args ...interface{}) {
	categoryFuncs[CategoryBrowser].Error(format, args...)
}

func CLI(format string, args ...interface{})      { categoryFuncs[CategoryCLI].Info(format, args...) }
func CLIDebug(format string, args ...interface{}) { categoryFuncs[CategoryCLI].Debug(format, args...) }
func CLIWarn(format string, args ...interface{})  { categoryFuncs[CategoryCLI].Warn(format, args...) }
func CLIError(format string, args ...interface{}) { categoryFuncs[CategoryCLI].Error(format, args...) }

// =============================================================================
// REQUEST ID TRACING - For correlating logs across a single agent run.
// =============================================================================

// RequestLogger provides run-scoped logging with a correlation ID.
type RequestLogger struct {
	logger    *Logger
	requestID string
	fields    map[string]interface{}
}

// WithRequestID creates a run-scoped logger, keyed by session ID.
func WithRequestID(category Category, requestID string) *RequestLogger {
	return &RequestLogger{
		logger:    Get(category),
		requestID: requestID,
		fields:    make(map[string]interface{}),
	}
}

func (r *RequestLogger) WithField(key string, value interface{}) *RequestLogger {
	r.fields[key] = value
	return r
}

func (r *RequestLogger) formatMsg(format string, args ...interface{}) string {
	msg := fmt.Sprintf(format, args...)
	if len(r.fields) > 0 {
		return fmt.Sprintf("[req:%s] %s | %v", r.requestID, msg, r.fields)
	}
	return fmt.Sprintf("[req:%s] %s", r.requestID, msg)
}

func (r *RequestLogger) Debug(format string, args ...interface{}) {
	if r.logger.logger == nil || logLevel > LevelDebug {
		return
	}
	r.logger.logger.Printf("[DEBUG] %s", r.formatMsg(format, args...))
}

func (r *RequestLogger) Info(format string, args ...interface{}) {
	if r.logger.logger == nil || logLevel > LevelInfo {
		return
	}
	r.logger.logger.Printf("[INFO] %s", r.formatMsg(format, args...))
}

func (r *RequestLogger) Warn(format string, args ...interface{}) {
	if r.logger.logger == nil || logLevel > LevelWarn {
		return
	}
	r.logger.logger.Printf("[WARN] %s", r.formatMsg(format, args...))
}

func (r *RequestLogger) Error(format string, args ...interface{}) {
	if r.logger.logger == nil {
		return
	}
	r.logger.logger.Printf("[ERROR] %s", r.formatMsg(format, args...))
}

// =============================================================================
// TIMING HELPERS - For performance logging.
// =============================================================================

// Timer helps measure operation duration.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s completed in %v", t.op, elapsed)
	return elapsed
}

func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
