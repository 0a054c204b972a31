package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stmtsep/internal/logging"
	"stmtsep/internal/sink"
	"stmtsep/internal/types"
	"stmtsep/internal/workflow"
)

var (
	fetchTags          []string
	fetchCorrespondent string
	fetchDocType       string
	fetchLimit         int
	fetchProcess       bool
	fetchOutputDir     string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Pull PDFs from the document sink and optionally process them",
	Long: `Queries the configured document management system for matching PDFs,
downloads them into the input directory, and with --process runs each one
through the pipeline. Processed source documents are re-tagged; failures
get the configured error tags when their severity meets the threshold.

Example:
  stmtsep fetch --tag unprocessed --limit 20 --process`,
	Args: cobra.NoArgs,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringSliceVar(&fetchTags, "tag", nil, "filter by tag (repeatable)")
	fetchCmd.Flags().StringVar(&fetchCorrespondent, "correspondent", "", "filter by correspondent")
	fetchCmd.Flags().StringVar(&fetchDocType, "type", "", "filter by document type")
	fetchCmd.Flags().IntVar(&fetchLimit, "limit", 50, "maximum documents to pull")
	fetchCmd.Flags().BoolVar(&fetchProcess, "process", false, "process each download immediately")
	fetchCmd.Flags().StringVarP(&fetchOutputDir, "output", "o", "", "output directory (default from config)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	if !cfg.Sink.Enabled {
		return exitf(exitInvalidArgs, "fetch requires sink.enabled in the configuration")
	}
	log := logging.For("fetch")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := sink.NewPaperless(cfg.Sink)
	if err := client.TestConnection(ctx); err != nil {
		return exitf(exitGeneral, "sink unreachable: %v", err)
	}

	queryCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Sink.QueryTimeoutSeconds)*time.Second)
	refs, err := client.Query(queryCtx, sink.QueryOptions{
		Tags:          fetchTags,
		Correspondent: fetchCorrespondent,
		DocumentType:  fetchDocType,
		Limit:         fetchLimit,
	})
	cancel()
	if err != nil {
		return fmt.Errorf("sink query: %w", err)
	}
	if len(refs) == 0 {
		fmt.Println("no matching documents")
		return nil
	}
	fmt.Printf("pulling %d document(s)\n", len(refs))

	if err := os.MkdirAll(cfg.Paths.InputDir, 0o755); err != nil {
		return err
	}

	var runner *workflow.Runner
	if fetchProcess {
		var cleanup func()
		runner, cleanup, err = buildRunner()
		if err != nil {
			return err
		}
		defer cleanup()
	}

	outputDir := fetchOutputDir
	if outputDir == "" {
		outputDir = cfg.Paths.OutputDir
	}

	quarantined := 0
	for _, ref := range refs {
		local, err := client.Download(ctx, ref, cfg.Paths.InputDir)
		if err != nil {
			log.Warn("download failed", zap.Int("document_id", ref.ID), zap.Error(err))
			fmt.Printf("%s #%d %s: %v\n", failStyle.Render("download failed"), ref.ID, ref.Title, err)
			continue
		}
		fmt.Println("downloaded", local)
		if runner == nil {
			continue
		}

		res := runner.Process(ctx, local, outputDir, false)
		printResult(res)
		switch res.Outcome {
		case workflow.OutcomeSuccess:
			if len(cfg.Sink.Tags) > 0 {
				if err := client.ApplyTags(ctx, ref.ID, cfg.Sink.Tags); err != nil {
					log.Warn("failed to re-tag source document",
						zap.Int("document_id", ref.ID), zap.Error(err))
				}
			}
		case workflow.OutcomeQuarantine:
			quarantined++
			if err := client.TagFailure(ctx, ref.ID, severityFor(res.Err)); err != nil {
				log.Warn("failed to apply error tags",
					zap.Int("document_id", ref.ID), zap.Error(err))
			}
		}
	}

	if quarantined > 0 {
		return &exitError{code: exitProcessingFail,
			err: fmt.Errorf("%d document(s) quarantined", quarantined)}
	}
	return nil
}

// severityFor grades a processing failure for error tagging.
func severityFor(err error) types.Severity {
	switch types.KindOf(err) {
	case types.KindEncrypted, types.KindPdfUnreadable, types.KindValidationFailed:
		return types.SeverityCritical
	case types.KindSizeExceeded, types.KindPageCountExceeded, types.KindProviderExhausted:
		return types.SeverityHigh
	default:
		return types.SeverityMedium
	}
}
