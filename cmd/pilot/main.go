// Package main implements the pilot CLI, the only user-facing surface of
// the adaptive browser automation agent.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pilot/internal/actions"
	"pilot/internal/agentfsm"
	"pilot/internal/browser"
	"pilot/internal/cache"
	"pilot/internal/config"
	"pilot/internal/credentials"
	"pilot/internal/logging"
	"pilot/internal/oracle"
	"pilot/internal/pageanalysis"
)

var (
	configPath  string
	noApproval  bool
	headless    bool
	modelFlag   string
	timeoutSecs int
	verbose     bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pilot [task]",
	Short: "pilot drives a browser through a natural-language task with adaptive recovery",
	Long: `pilot is an adaptive browser automation agent. Give it a goal in plain
language and it plans a sequence of browser actions, executes them, and
replans from scratch whenever a step fails, until the goal is met or
recovery is exhausted.`,
	Args: cobra.MaximumNArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		ws, _ := os.Getwd()
		if err := logging.Initialize(ws); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
	RunE: runTask,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML agent config")
	rootCmd.PersistentFlags().BoolVar(&noApproval, "no-approval", false, "auto-approve risky actions")
	rootCmd.PersistentFlags().BoolVar(&headless, "headless", false, "run the browser headless")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "planner model id, optionally prefixed ollama:/zai:/anthropic:/openai:")
	rootCmd.PersistentFlags().IntVar(&timeoutSecs, "timeout", 0, "per-action timeout in seconds")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose console logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runTask(cmd *cobra.Command, args []string) error {
	goal := promptForGoal(args)
	if goal == "" {
		return fmt.Errorf("no task given")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlagOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	interrupted := false
	go func() {
		<-sigCh
		interrupted = true
		cancel()
	}()

	store := cache.Open(cache.Options{
		Path:       cfg.Cache.CacheFile,
		MaxEntries: cfg.Cache.MaxEntries,
		MaxAge:     cfg.MaxAge(),
	})
	creds := credentials.Open(cfg.Security.CredentialsFile)

	browserCfg := toBrowserConfig(cfg)
	session := browser.NewSession(browserCfg)
	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer session.Stop()

	analyzer := pageanalysis.New(session, store)
	executor := actions.New(session, store, creds, analyzer)
	executor.HumanInput = func(message string) error {
		fmt.Printf("\n=== HUMAN INPUT REQUIRED ===\n%s\nPress Enter once done: ", message)
		reader := bufio.NewReader(os.Stdin)
		_, _ = reader.ReadString('\n')
		return nil
	}

	planner, err := oracle.New(cfg.Oracle)
	if err != nil {
		return fmt.Errorf("init planner: %w", err)
	}

	agent := agentfsm.New(cfg, planner, executor, analyzer, store, session)
	if !noApproval && cfg.Security.RequireApproval {
		agent.Approval = consoleApproval
	}
	if noApproval {
		cfg.Security.RequireApproval = false
	}

	logging.CLI("starting task: %s", goal)
	summary := agent.Run(ctx, goal)

	fmt.Println()
	fmt.Println(summary.String())

	if interrupted {
		os.Exit(130)
	}
	if summary.Error != "" {
		os.Exit(1)
	}
	return nil
}

func promptForGoal(args []string) string {
	if len(args) > 0 {
		return strings.TrimSpace(args[0])
	}
	fmt.Print("Task: ")
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func applyFlagOverrides(cfg *config.Config) {
	if headless {
		cfg.Browser.Headless = true
	}
	if timeoutSecs > 0 {
		cfg.Browser.TimeoutMs = timeoutSecs * 1000
	}
	if modelFlag != "" {
		provider, model, ok := strings.Cut(modelFlag, ":")
		if !ok {
			cfg.Oracle.Ollama.Model = modelFlag
			return
		}
		cfg.Oracle.Provider = provider
		switch provider {
		case "ollama":
			cfg.Oracle.Ollama.Model = model
		case "zai":
			cfg.Oracle.ZAI.Model = model
		case "anthropic":
			cfg.Oracle.Anthropic.Model = model
		case "openai":
			cfg.Oracle.OpenAI.Model = model
		}
	}
}

func toBrowserConfig(cfg *config.Config) browser.Config {
	bc := browser.DefaultConfig()
	bc.Headless = cfg.Browser.Headless
	bc.ViewportWidth = cfg.Browser.ViewportWidth
	bc.ViewportHeight = cfg.Browser.ViewportHeight
	bc.NavigationTimeoutMs = cfg.Browser.TimeoutMs
	bc.UserAgent = cfg.Browser.UserAgent
	bc.DisableImages = cfg.Browser.DisableImages
	bc.DisableJavaScript = cfg.Browser.DisableJavaScript
	bc.DebuggerURL = cfg.Browser.DebuggerURL
	return bc
}

func consoleApproval(plan actions.Plan) bool {
	fmt.Println("\n=== PLAN REQUIRES APPROVAL ===")
	for i, a := range plan {
		detail := a.URL
		if detail == "" {
			detail = a.Selector
		}
		fmt.Printf("%d. %s %s\n", i+1, a.Action, detail)
	}
	fmt.Print("Proceed? [y/N]: ")
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
