package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"stmtsep/internal/quarantine"
)

var (
	quarantineDirFlag  string
	cleanOlderThanDays int
	cleanDryRun        bool
)

var quarantineCmd = &cobra.Command{
	Use:   "quarantine",
	Short: "Inspect and clean the quarantine directory",
}

var quarantineStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List quarantined documents with their failure reports",
	Args:  cobra.NoArgs,
	RunE:  runQuarantineStatus,
}

var quarantineCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete quarantined documents and reports older than a cutoff",
	Args:  cobra.NoArgs,
	RunE:  runQuarantineClean,
}

func init() {
	quarantineCmd.PersistentFlags().StringVar(&quarantineDirFlag, "dir", "", "quarantine directory (default from config)")
	quarantineCleanCmd.Flags().IntVar(&cleanOlderThanDays, "older-than", 30, "delete entries older than this many days")
	quarantineCleanCmd.Flags().BoolVar(&cleanDryRun, "dry-run", false, "list what would be deleted without deleting")

	quarantineCmd.AddCommand(quarantineStatusCmd)
	quarantineCmd.AddCommand(quarantineCleanCmd)
}

func quarantineManager() *quarantine.Manager {
	dir := quarantineDirFlag
	if dir == "" {
		dir = cfg.Paths.QuarantineDir
	}
	return quarantine.NewManager(dir)
}

func runQuarantineStatus(cmd *cobra.Command, args []string) error {
	entries, err := quarantineManager().Status()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("quarantine is empty")
		return nil
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("%d quarantined document(s)", len(entries))))
	for _, e := range entries {
		fmt.Printf("  %s (%d bytes, %s)\n",
			filepath.Base(e.Path), e.Size, e.ModTime.Format("2006-01-02 15:04"))
		if e.Report != nil {
			fmt.Printf("    stage=%s reason=%s\n", e.Report.StageAtFailure, e.Report.ReasonCategory)
			fmt.Printf("    %s\n", dimStyle.Render(e.Report.Detail))
			for _, hint := range e.Report.RecoveryHints {
				fmt.Printf("    hint: %s\n", hint)
			}
		} else {
			fmt.Println("    ", warnStyle.Render("no report found"))
		}
	}
	return nil
}

func runQuarantineClean(cmd *cobra.Command, args []string) error {
	removed, err := quarantineManager().Clean(cleanOlderThanDays, cleanDryRun)
	if err != nil {
		return err
	}

	verb := "removed"
	if cleanDryRun {
		verb = "would remove"
	}
	if len(removed) == 0 {
		fmt.Printf("nothing older than %d day(s)\n", cleanOlderThanDays)
		return nil
	}
	for _, path := range removed {
		fmt.Printf("%s %s\n", verb, path)
	}
	fmt.Printf("%s %d file(s)\n", verb, len(removed))
	return nil
}
