package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"stmtsep/internal/workflow"
)

var (
	processOutputDir string
	processDryRun    bool
)

var processCmd = &cobra.Command{
	Use:   "process [input.pdf]",
	Short: "Process a single multi-statement PDF",
	Long: `Processes one PDF through the full pipeline: ingest, boundary
detection, metadata extraction, generation, validation, and the optional
document sink. On failure the input is moved to quarantine with a JSON
error report.

Example:
  stmtsep process statements.pdf --output ./out`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVarP(&processOutputDir, "output", "o", "", "output directory (default from config)")
	processCmd.Flags().BoolVar(&processDryRun, "dry-run", false, "detect and extract without writing outputs")
}

func runProcess(cmd *cobra.Command, args []string) error {
	input := args[0]
	if _, err := os.Stat(input); err != nil {
		if os.IsNotExist(err) {
			return exitf(exitInputNotFound, "input not found: %s", input)
		}
		if os.IsPermission(err) {
			return exitf(exitPermission, "cannot read %s: %v", input, err)
		}
		return err
	}

	outputDir := processOutputDir
	if outputDir == "" {
		outputDir = cfg.Paths.OutputDir
	}

	runner, cleanup, err := buildRunner()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := runner.Process(ctx, input, outputDir, processDryRun)
	printResult(res)

	if code := codeFor(res); code != exitOK {
		return &exitError{code: code, err: res.Err}
	}
	return nil
}

func printResult(res workflow.Result) {
	switch res.Outcome {
	case workflow.OutcomeSuccess:
		fmt.Printf("%s %s: %d statement(s) via %s in %s\n",
			okStyle.Render("ok"), filepath.Base(res.InputPath),
			res.Statements, res.DetectionMethod, res.Elapsed.Round(msRound))
		for _, f := range res.OutputFiles {
			fmt.Println("  ", f)
		}
	case workflow.OutcomeSkipped:
		fmt.Printf("%s %s: already processed\n",
			dimStyle.Render("skip"), filepath.Base(res.InputPath))
	case workflow.OutcomeQuarantine:
		fmt.Printf("%s %s: %v\n",
			failStyle.Render("quarantined"), filepath.Base(res.InputPath), res.Err)
		if res.QuarantinePath != "" {
			fmt.Println("  moved to", res.QuarantinePath)
		}
	}
	for _, w := range res.Warnings {
		fmt.Println("  ", warnStyle.Render("warning:"), w)
	}
}
