package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func resetState() {
	CloseAll()
	loggers = make(map[Category]*Logger)
	logsDir = ""
	workspace = ""
	configLoaded = false
	config = loggingConfig{}
}

func writeLoggingConfig(t *testing.T, tempDir string, content string) {
	t.Helper()
	configDir := filepath.Join(tempDir, ".pilot")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	configPath := filepath.Join(configDir, "logging.json")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}

func TestAllCategoriesLog(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	writeLoggingConfig(t, tempDir, `{
		"logging": {
			"level": "debug",
			"debug_mode": true,
			"categories": {
				"boot": true,
				"fsm": true,
				"oracle": true,
				"executor": true,
				"analyzer": true,
				"cache": true,
				"credentials": true,
				"browser": true,
				"cli": true
			}
		}
	}`)

	resetState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if !IsDebugMode() {
		t.Error("Expected debug mode to be enabled")
	}

	categories := []Category{
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

	for _, cat := range categories {
		if !IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be enabled", cat)
		}

		logger := Get(cat)
		logger.Info("Test info message for %s", cat)
		logger.Debug("Test debug message for %s", cat)
		logger.Warn("Test warn message for %s", cat)
		logger.Error("Test error message for %s", cat)
	}

	Boot("Convenience boot log")
	FSM("Convenience fsm log")
	Oracle("Convenience oracle log")
	Executor("Convenience executor log")
	Analyzer("Convenience analyzer log")
	Cache("Convenience cache log")
	Credentials("Convenience credentials log")
	Browser("Convenience browser log")
	CLI("Convenience cli log")

	CloseAll()

	logsPath := filepath.Join(tempDir, ".pilot", "logs")
	entries, err := os.ReadDir(logsPath)
	if err != nil {
		t.Fatalf("Failed to read logs dir: %v", err)
	}

	t.Logf("Created %d log files in %s", len(entries), logsPath)

	for _, cat := range categories {
		found := false
		for _, entry := range entries {
			if strings.Contains(entry.Name(), string(cat)+".log") {
				found = true
				content, err := os.ReadFile(filepath.Join(logsPath, entry.Name()))
				if err != nil {
					t.Errorf("Failed to read log file for %s: %v", cat, err)
					continue
				}
				if len(content) == 0 {
					t.Errorf("Log file for %s is empty", cat)
				}
				break
			}
		}
		if !found {
			t.Errorf("No log file found for category: %s", cat)
		}
	}
}

func TestDebugModeDisabled(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test_disabled")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	writeLoggingConfig(t, tempDir, `{
		"logging": {
			"level": "debug",
			"debug_mode": false,
			"categories": {
				"boot": true,
				"fsm": true
			}
		}
	}`)

	resetState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	if IsDebugMode() {
		t.Error("Expected debug mode to be DISABLED (production mode)")
	}

	categories := []Category{CategoryBoot, CategoryFSM, CategoryOracle}
	for _, cat := range categories {
		if IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be DISABLED when debug_mode=false", cat)
		}
	}

	Boot("This should NOT be logged")
	FSM("This should NOT be logged")

	logger := Get(CategoryBoot)
	logger.Info("This should NOT be logged")
	logger.Debug("This should NOT be logged")
	logger.Error("This should NOT be logged")

	CloseAll()

	logsPath := filepath.Join(tempDir, ".pilot", "logs")
	_, err = os.Stat(logsPath)
	if err == nil {
		entries, _ := os.ReadDir(logsPath)
		if len(entries) > 0 {
			t.Errorf("Expected NO log files in production mode, but found %d files", len(entries))
		}
	} else if !os.IsNotExist(err) {
		t.Errorf("unexpected stat error: %v", err)
	}
}

func TestCategoryToggle(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test_category")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	writeLoggingConfig(t, tempDir, `{
		"logging": {
			"level": "debug",
			"debug_mode": true,
			"categories": {
				"boot": true,
				"fsm": true,
				"oracle": false,
				"cache": false
			}
		}
	}`)

	resetState()

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Failed to initialize: %v", err)
	}

	if !IsCategoryEnabled(CategoryBoot) {
		t.Error("boot should be enabled")
	}
	if !IsCategoryEnabled(CategoryFSM) {
		t.Error("fsm should be enabled")
	}
	if IsCategoryEnabled(CategoryOracle) {
		t.Error("oracle should be DISABLED")
	}
	if IsCategoryEnabled(CategoryCache) {
		t.Error("cache should be DISABLED")
	}
	if !IsCategoryEnabled(CategoryExecutor) {
		t.Error("executor (not in config) should default to enabled")
	}

	Boot("This SHOULD be logged")
	FSM("This SHOULD be logged")
	Oracle("This should NOT be logged")
	Cache("This should NOT be logged")
	Executor("This SHOULD be logged (default enabled)")

	CloseAll()

	logsPath := filepath.Join(tempDir, ".pilot", "logs")
	entries, _ := os.ReadDir(logsPath)

	var hasBootLog, hasFSMLog, hasOracleLog, hasCacheLog bool
	for _, e := range entries {
		name := e.Name()
		if strings.Contains(name, "boot") {
			hasBootLog = true
		}
		if strings.Contains(name, "fsm") {
			hasFSMLog = true
		}
		if strings.Contains(name, "oracle") {
			hasOracleLog = true
		}
		if strings.Contains(name, "cache") {
			hasCacheLog = true
		}
	}

	if !hasBootLog {
		t.Error("Expected boot log file")
	}
	if !hasFSMLog {
		t.Error("Expected fsm log file")
	}
	if hasOracleLog {
		t.Error("Should NOT have oracle log file (disabled)")
	}
	if hasCacheLog {
		t.Error("Should NOT have cache log file (disabled)")
	}
}

func TestTimerLogging(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "logging_test_timer")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	writeLoggingConfig(t, tempDir, `{"logging": {"level": "debug", "debug_mode": true}}`)

	resetState()
	Initialize(tempDir)

	timer := StartTimer(CategoryExecutor, "TestOperation")
	time.Sleep(time.Millisecond)
	elapsed := timer.Stop()

	if elapsed <= 0 {
		t.Error("Timer should have recorded non-zero duration")
	}

	CloseAll()
}
