// Command stmtsep splits multi-statement bank PDFs into one PDF per
// statement, named {bank}-{account_last4}-{closing_date}.pdf.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"stmtsep/internal/config"
	"stmtsep/internal/detect"
	"stmtsep/internal/extract"
	"stmtsep/internal/halluc"
	"stmtsep/internal/logging"
	"stmtsep/internal/output"
	"stmtsep/internal/pdf"
	"stmtsep/internal/provider"
	"stmtsep/internal/quarantine"
	"stmtsep/internal/resilience"
	"stmtsep/internal/sink"
	"stmtsep/internal/store"
	"stmtsep/internal/types"
	"stmtsep/internal/workflow"
)

// Exit codes surfaced to calling scripts.
const (
	exitOK             = 0
	exitGeneral        = 1
	exitInvalidArgs    = 2
	exitInputNotFound  = 3
	exitPermission     = 4
	exitProcessingFail = 5
	exitProviderError  = 6
)

var (
	cfgPath string
	verbose bool

	cfg     *config.Config
	logSync func()
)

// exitError carries an explicit process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit code %d", e.code)
	}
	return e.err.Error()
}

func exitf(code int, format string, args ...any) *exitError {
	return &exitError{code: code, err: fmt.Errorf(format, args...)}
}

var rootCmd = &cobra.Command{
	Use:   "stmtsep",
	Short: "Split multi-statement bank PDFs into one file per statement",
	Long: `stmtsep detects statement boundaries in concatenated bank statement
PDFs and writes one output per statement, named
{bank}-{account_last4}-{closing_date}.pdf.

Detection combines a model-assisted analyzer (validated against
hallucinations) with deterministic content analysis; without a configured
provider the deterministic path runs alone. Failed inputs are moved to the
quarantine directory with a JSON error report.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logSync, err = logging.Init(verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(cfgPath)
		if err != nil {
			return exitf(exitInvalidArgs, "config: %v", err)
		}
		if err := cfg.Validate(); err != nil {
			return exitf(exitInvalidArgs, "config: %v", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logSync != nil {
			logSync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "stmtsep.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(quarantineCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(fetchCmd)
}

// buildRunner wires the workflow runner from the loaded configuration. The
// returned cleanup closes the ledger when one is configured.
func buildRunner() (*workflow.Runner, func(), error) {
	p, err := provider.New(cfg)
	if err != nil {
		return nil, nil, exitf(exitProviderError, "provider: %v", err)
	}

	limiter := resilience.NewRateLimiter(resilience.LimiterConfig{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		BurstLimit:        cfg.RateLimit.BurstLimit,
	})
	backoff := resilience.NewBackoff(cfg.BackoffBase(), cfg.BackoffCap(), cfg.RateLimit.BackoffMultiplier)
	exec := resilience.NewExecutor(limiter, backoff, cfg.RateLimit.MaxAttempts)

	validator := halluc.New()
	backend := pdf.NewToolchain()
	engine := detect.NewEngine(p, validator, exec, detect.Options{
		TextCharCap: cfg.Detection.TextAnalysisCharCap,
		CacheSize:   cfg.Detection.CacheSize,
	})
	extractor := extract.New(p, validator, exec)
	qm := quarantine.NewManager(cfg.Paths.QuarantineDir)

	var ledger *store.Ledger
	cleanup := func() {}
	if cfg.Paths.LedgerPath != "" {
		ledger, err = store.Open(cfg.Paths.LedgerPath)
		if err != nil {
			return nil, nil, fmt.Errorf("ledger: %w", err)
		}
		cleanup = func() { ledger.Close() }
	}

	var docSink sink.DocumentSink
	if cfg.Sink.Enabled {
		docSink = sink.NewPaperless(cfg.Sink)
	}

	runner := workflow.NewRunner(cfg, backend, engine, extractor,
		output.NewValidator(backend), qm, ledger, docSink)
	return runner, cleanup, nil
}

// codeFor maps a terminal result to a process exit code.
func codeFor(res workflow.Result) int {
	switch res.Outcome {
	case workflow.OutcomeQuarantine:
		if types.KindOf(res.Err) == types.KindProviderExhausted {
			return exitProviderError
		}
		return exitProcessingFail
	default:
		return exitOK
	}
}

func main() {
	err := rootCmd.Execute()
	if err == nil {
		os.Exit(exitOK)
	}

	fmt.Fprintln(os.Stderr, "Error:", err)

	var ee *exitError
	if errors.As(err, &ee) {
		os.Exit(ee.code)
	}
	if errors.Is(err, os.ErrNotExist) {
		os.Exit(exitInputNotFound)
	}
	if errors.Is(err, os.ErrPermission) {
		os.Exit(exitPermission)
	}
	os.Exit(exitGeneral)
}
