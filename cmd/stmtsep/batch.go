package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"stmtsep/internal/workflow"
)

const msRound = time.Millisecond

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	titleStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

var (
	batchInputDir  string
	batchOutputDir string
	batchPattern   string
	batchExclude   string
	batchMaxFiles  int
	batchWorkers   int
	batchDryRun    bool
	batchSkipSeen  bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Process every matching PDF in a directory",
	Long: `Processes all PDFs matching the pattern under the input directory.
Documents run in parallel up to --workers; a quarantined document does not
stop the batch. The run ends with a summary of counts and rates.

Example:
  stmtsep batch --input ./inbox --output ./out --workers 4`,
	Args: cobra.NoArgs,
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVarP(&batchInputDir, "input", "i", "", "input directory (default from config)")
	batchCmd.Flags().StringVarP(&batchOutputDir, "output", "o", "", "output directory (default from config)")
	batchCmd.Flags().StringVar(&batchPattern, "pattern", "*.pdf", "glob over input basenames")
	batchCmd.Flags().StringVar(&batchExclude, "exclude", "", "glob of basenames to skip")
	batchCmd.Flags().IntVar(&batchMaxFiles, "max-files", 0, "stop after this many inputs (0 = unlimited)")
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "concurrent documents (default from config)")
	batchCmd.Flags().BoolVar(&batchDryRun, "dry-run", false, "detect and extract without writing outputs")
	batchCmd.Flags().BoolVar(&batchSkipSeen, "skip-processed", false, "skip inputs already recorded in the ledger")
}

func runBatch(cmd *cobra.Command, args []string) error {
	inputDir := batchInputDir
	if inputDir == "" {
		inputDir = cfg.Paths.InputDir
	}
	if _, err := os.Stat(inputDir); err != nil {
		if os.IsNotExist(err) {
			return exitf(exitInputNotFound, "input directory not found: %s", inputDir)
		}
		if os.IsPermission(err) {
			return exitf(exitPermission, "cannot read %s: %v", inputDir, err)
		}
		return err
	}

	outputDir := batchOutputDir
	if outputDir == "" {
		outputDir = cfg.Paths.OutputDir
	}
	workers := batchWorkers
	if workers <= 0 {
		workers = cfg.Workers
	}

	runner, cleanup, err := buildRunner()
	if err != nil {
		return err
	}
	defer cleanup()
	runner.SkipProcessed = batchSkipSeen

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := runner.Batch(ctx, workflow.BatchOptions{
		InputDir:  inputDir,
		OutputDir: outputDir,
		Pattern:   batchPattern,
		Exclude:   batchExclude,
		MaxFiles:  batchMaxFiles,
		Workers:   workers,
		DryRun:    batchDryRun,
	})
	if err != nil {
		return err
	}

	for _, res := range summary.Results {
		printResult(res)
	}
	printSummary(summary)

	if summary.Quarantined > 0 {
		return &exitError{code: exitProcessingFail,
			err: fmt.Errorf("%d document(s) quarantined", summary.Quarantined)}
	}
	return nil
}

func printSummary(s *workflow.Summary) {
	fmt.Println()
	fmt.Println(titleStyle.Render("Batch summary"))
	fmt.Printf("  processed:   %d\n", s.Processed)
	fmt.Printf("  succeeded:   %s\n", okStyle.Render(fmt.Sprintf("%d", s.Succeeded)))
	if s.Quarantined > 0 {
		fmt.Printf("  quarantined: %s\n", failStyle.Render(fmt.Sprintf("%d", s.Quarantined)))
	} else {
		fmt.Printf("  quarantined: %d\n", s.Quarantined)
	}
	if s.Skipped > 0 {
		fmt.Printf("  skipped:     %d\n", s.Skipped)
	}
	fmt.Printf("  statements:  %d\n", s.Statements)
	fmt.Printf("  success:     %.0f%%\n", s.SuccessRate()*100)
	fmt.Printf("  elapsed:     %s\n", s.Elapsed.Round(msRound))
}
